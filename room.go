package main

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// Phase is the stage a room is currently in. Exactly one is active at a
// time; reset is the only way back to the lobby once a result is in.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseReveal  Phase = "reveal"
	PhaseTalking Phase = "talking"
	PhaseVoting  Phase = "voting"
	PhaseResult  Phase = "result"
)

// Player holds one connected participant's state within a room. Username
// and emoji are fixed at join time.
type Player struct {
	ID       string
	Username string
	Emoji    string
	IsReady  bool
}

// Room is a single game session and the unit of concurrency isolation:
// every operation on it runs under mu, so invariants like one-vote-per-
// player and a monotonic turn index hold without further coordination.
type Room struct {
	code    string
	ownerID string
	phase   Phase
	players []*Player // join order

	impostorID       string
	turnOrder        []Player // snapshot fixed at the reveal→talking transition
	currentTurnIndex int
	votes            map[string]string // voter id -> target id

	// timerGen is bumped whenever the discussion timer is armed or
	// cancelled; a tick whose generation no longer matches is stale and
	// must not mutate the room.
	timerGen int

	// done is closed when the room is deleted, ending every scheduled
	// action still tied to it (countdown, reveal delay, discussion timer).
	done chan struct{}

	mu sync.Mutex
}

func newRoom(code string) *Room {
	return &Room{
		code:  code,
		phase: PhaseLobby,
		votes: make(map[string]string),
		done:  make(chan struct{}),
	}
}

// playerLocked returns the player with the given id, or nil.
func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerIDsLocked() []string {
	ids := make([]string, 0, len(r.players))
	for _, p := range r.players {
		ids = append(ids, p.ID)
	}
	return ids
}

func (r *Room) rosterLocked() []PlayerInfo {
	roster := make([]PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		roster = append(roster, PlayerInfo{
			ID:       p.ID,
			Username: p.Username,
			Emoji:    p.Emoji,
			IsReady:  p.IsReady,
		})
	}
	return roster
}

// removePlayerLocked drops the player with the given id, preserving join
// order, and reports whether anything changed.
func (r *Room) removePlayerLocked(id string) bool {
	for i, p := range r.players {
		if p.ID == id {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return true
		}
	}
	return false
}

// RoomRegistry maps room codes to live rooms. Its lock covers only the
// mapping itself; room state is guarded per-room.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func newRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*Room),
	}
}

// Create allocates an empty lobby-phase room under a code guaranteed
// unused among currently live rooms.
func (rr *RoomRegistry) Create() *Room {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var code string
	for {
		code = newRoomCode()
		if _, exists := rr.rooms[code]; !exists {
			break
		}
	}

	room := newRoom(code)
	rr.rooms[code] = room
	return room
}

func (rr *RoomRegistry) Get(code string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	room, ok := rr.rooms[code]
	return room, ok
}

// Delete removes the room and closes its done channel, so any scheduled
// action still holding a reference becomes a no-op.
func (rr *RoomRegistry) Delete(code string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if room, ok := rr.rooms[code]; ok {
		delete(rr.rooms, code)
		close(room.done)
	}
}

// Rooms returns a snapshot of every live room, for operations keyed by
// connection rather than room code (disconnect handling).
func (rr *RoomRegistry) Rooms() []*Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	rooms := make([]*Room, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Len reports the number of live rooms.
func (rr *RoomRegistry) Len() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return len(rr.rooms)
}

const roomCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newRoomCode generates a crypto-random 4-character room code; collision
// checking against live rooms happens in the registry.
func newRoomCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, 4)
	for i := range out {
		out[i] = roomCodeLetters[int(buf[i])%len(roomCodeLetters)]
	}
	return string(out)
}

// randomIndex returns a uniform index in [0, n).
func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return int(binary.BigEndian.Uint64(buf) % uint64(n))
}

// shuffledPlayersLocked returns a Fisher-Yates shuffled value snapshot of
// the room's players, used to fix the turn order for one game.
func (r *Room) shuffledPlayersLocked() []Player {
	order := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		order = append(order, *p)
	}
	for i := len(order) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}
