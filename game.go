// Impostor game coordinator
//
// One player in each room secretly becomes the impostor and receives no
// word; everyone else is crew and shares the same secret word. Players
// take turns describing the word during a timed talking phase, then vote
// to expel a suspect. A tie expels no one and the impostor escapes.
//
// Rules of engagement for this file:
// - Every operation resolves the room through the registry, then runs
//   under that room's mutex; rooms never nest locks.
// - Outbound delivery goes through the Notifier, whose sends never block,
//   so broadcasting while holding a room lock is safe.
// - Scheduled actions (countdown, reveal delay, discussion timer) watch
//   the room's done channel, and the discussion timer additionally checks
//   its generation, so nothing stale ever mutates a room.

package main

import (
	"time"
)

const (
	roleImpostor = "impostor"
	roleCrew     = "crew"

	// noWordSentinel is what the impostor sees instead of the secret word.
	noWordSentinel = "YOU ARE THE IMPOSTOR"

	expelledTie  = "No one (tie)"
	expelledNone = "No one"

	roomNotFoundError = "Room not found"
)

// Notifier delivers coordinator output to connected clients. Unicast
// targets a single connection; Multicast targets every listed connection.
// Implementations must not block.
type Notifier interface {
	Unicast(playerID string, msg any)
	Multicast(playerIDs []string, msg any)
}

// Game drives rooms through their phases in response to inbound events
// and timer expirations.
type Game struct {
	cfg      *Config
	registry *RoomRegistry
	words    *WordBank
	notify   Notifier

	// tick is the broadcast interval for countdowns and the discussion
	// timer; one second in production, shortened in tests.
	tick time.Duration
}

func newGame(cfg *Config, words *WordBank, notify Notifier) *Game {
	return &Game{
		cfg:      cfg,
		registry: newRoomRegistry(),
		words:    words,
		notify:   notify,
		tick:     time.Second,
	}
}

// CreateRoom allocates a room, joins the requester as its owner, and
// reports the new code to the requester alone.
func (g *Game) CreateRoom(connID, username, emoji string) {
	room := g.registry.Create()

	room.mu.Lock()
	room.ownerID = connID
	g.joinLocked(room, connID, username, emoji)
	room.mu.Unlock()

	g.notify.Unicast(connID, RoomCreatedMessage{
		Type:   "room-created",
		RoomID: room.code,
	})

	logf(g.cfg, "GAMES: Player %q created room %s", username, room.code)
}

// JoinRoom adds the connection to an existing room, in any phase.
// Late joiners do not retroactively receive role or word state.
func (g *Game) JoinRoom(connID, code, username, emoji string) {
	room, ok := g.registry.Get(code)
	if !ok {
		g.notify.Unicast(connID, ErrorMessage{
			Type:    "error",
			Message: roomNotFoundError,
		})
		return
	}

	room.mu.Lock()
	select {
	case <-room.done:
		// Lost a race with deletion; the code no longer resolves.
		room.mu.Unlock()
		g.notify.Unicast(connID, ErrorMessage{
			Type:    "error",
			Message: roomNotFoundError,
		})
		return
	default:
	}
	g.joinLocked(room, connID, username, emoji)
	room.mu.Unlock()

	logf(g.cfg, "GAMES: Player %q joined room %s", username, code)
}

// joinLocked inserts (or, for a reconnecting id, replaces) a player and
// broadcasts the roster. If the current owner is no longer present, the
// joining player takes ownership.
func (g *Game) joinLocked(room *Room, connID, username, emoji string) {
	room.removePlayerLocked(connID)

	if room.playerLocked(room.ownerID) == nil {
		room.ownerID = connID
	}

	room.players = append(room.players, &Player{
		ID:       connID,
		Username: username,
		Emoji:    emoji,
	})

	g.broadcastRosterLocked(room)
}

func (g *Game) broadcastRosterLocked(room *Room) {
	g.notify.Multicast(room.playerIDsLocked(), UpdatePlayersMessage{
		Type:    "update-players",
		Players: room.rosterLocked(),
		OwnerID: room.ownerID,
	})
}

// SetReady updates the caller's ready flag. When enough players are
// present and all of them are ready, an advisory countdown starts; it
// never transitions phase itself, that takes the owner's explicit
// start signal. Overlapping countdowns are tolerated for the same
// reason: each one is display-only.
func (g *Game) SetReady(connID, code string, ready bool) {
	room, ok := g.registry.Get(code)
	if !ok {
		return
	}

	room.mu.Lock()
	if p := room.playerLocked(connID); p != nil {
		p.IsReady = ready
	}
	g.broadcastRosterLocked(room)

	start := len(room.players) >= g.cfg.minPlayers
	for _, p := range room.players {
		if !p.IsReady {
			start = false
			break
		}
	}
	room.mu.Unlock()

	if start {
		g.startCountdown(room)
	}
}

// startCountdown broadcasts countdownStart..0, one number per tick, then
// stops. Deleting the room ends it early.
func (g *Game) startCountdown(room *Room) {
	go func() {
		ticker := time.NewTicker(g.tick)
		defer ticker.Stop()

		count := g.cfg.countdownStart
		for {
			select {
			case <-room.done:
				return
			case <-ticker.C:
				room.mu.Lock()
				ids := room.playerIDsLocked()
				room.mu.Unlock()

				g.notify.Multicast(ids, CountdownMessage{
					Type:  "countdown",
					Count: count,
				})

				if count == 0 {
					return
				}
				count--
			}
		}
	}()
}

// StartGame picks the secret word and the impostor, delivers roles
// individually, and broadcasts the reveal phase. After the reveal delay
// the room moves to talking with a fresh shuffled turn order.
func (g *Game) StartGame(code, category string, showHint bool) {
	room, ok := g.registry.Get(code)
	if !ok {
		return
	}

	room.mu.Lock()
	if len(room.players) == 0 {
		room.mu.Unlock()
		return
	}

	word := g.words.Pick(category)
	room.impostorID = room.players[randomIndex(len(room.players))].ID
	room.phase = PhaseReveal

	for _, p := range room.players {
		msg := AssignRoleMessage{Type: "assign-role"}
		if p.ID == room.impostorID {
			msg.Role = roleImpostor
			msg.Word = noWordSentinel
			if showHint {
				msg.Category = category
			}
		} else {
			msg.Role = roleCrew
			msg.Word = word
			msg.Category = category
		}
		g.notify.Unicast(p.ID, msg)
	}

	g.notify.Multicast(room.playerIDsLocked(), ChangePhaseMessage{
		Type:  "change-phase",
		Phase: PhaseReveal,
	})
	room.mu.Unlock()

	logf(g.cfg, "GAMES: Room %s started a game (category %q)", code, category)

	g.scheduleTalking(room)
}

// scheduleTalking waits out the role-reveal animation, then fixes the
// turn order and starts the discussion timer. A deleted room never
// reaches the transition.
func (g *Game) scheduleTalking(room *Room) {
	go func() {
		select {
		case <-room.done:
			return
		case <-time.After(g.cfg.revealDelay):
		}

		room.mu.Lock()
		defer room.mu.Unlock()

		if len(room.players) == 0 {
			return
		}

		room.turnOrder = room.shuffledPlayersLocked()
		room.currentTurnIndex = 0
		room.phase = PhaseTalking

		ids := room.playerIDsLocked()
		g.notify.Multicast(ids, ChangePhaseMessage{
			Type:  "change-phase",
			Phase: PhaseTalking,
		})
		g.notify.Multicast(ids, NextTurnMessage{
			Type:     "next-turn",
			Username: room.turnOrder[0].Username,
		})

		g.startDiscussionTimerLocked(room)
	}()
}

// startDiscussionTimerLocked arms the single per-room discussion timer,
// cancelling any previous one by bumping the generation. The initial
// value is broadcast immediately, then once per tick; reaching zero
// moves the room to voting.
func (g *Game) startDiscussionTimerLocked(room *Room) {
	room.timerGen++
	gen := room.timerGen

	seconds := int(g.cfg.discussion / time.Second)
	g.notify.Multicast(room.playerIDsLocked(), TimerUpdateMessage{
		Type:        "timer-update",
		SecondsLeft: seconds,
	})

	go func() {
		ticker := time.NewTicker(g.tick)
		defer ticker.Stop()

		left := seconds
		for {
			select {
			case <-room.done:
				return
			case <-ticker.C:
				room.mu.Lock()
				if room.timerGen != gen {
					room.mu.Unlock()
					return
				}

				left--
				g.notify.Multicast(room.playerIDsLocked(), TimerUpdateMessage{
					Type:        "timer-update",
					SecondsLeft: left,
				})
				if left > 0 {
					room.mu.Unlock()
					continue
				}

				room.timerGen++
				g.beginVotingLocked(room)
				room.mu.Unlock()
				return
			}
		}
	}()
}

// beginVotingLocked clears the tally and broadcasts the voting phase.
func (g *Game) beginVotingLocked(room *Room) {
	room.votes = make(map[string]string)
	room.phase = PhaseVoting

	g.notify.Multicast(room.playerIDsLocked(), ChangePhaseMessage{
		Type:  "change-phase",
		Phase: PhaseVoting,
	})
}

// FinishTurn advances the speaker. Exhausting the turn order cancels the
// discussion timer early and opens voting. Outside the talking phase it
// is a no-op.
func (g *Game) FinishTurn(code string) {
	room, ok := g.registry.Get(code)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.phase != PhaseTalking {
		return
	}

	room.currentTurnIndex++
	if room.currentTurnIndex < len(room.turnOrder) {
		g.notify.Multicast(room.playerIDsLocked(), NextTurnMessage{
			Type:     "next-turn",
			Username: room.turnOrder[room.currentTurnIndex].Username,
		})
		return
	}

	room.timerGen++
	g.beginVotingLocked(room)
}

// Vote records the caller's vote. The first vote sticks; repeats are
// silently ignored. Once every current player has voted, the result is
// resolved immediately.
func (g *Game) Vote(connID, code, targetID string) {
	room, ok := g.registry.Get(code)
	if !ok {
		g.notify.Unicast(connID, ErrorMessage{
			Type:    "error",
			Message: roomNotFoundError,
		})
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, voted := room.votes[connID]; voted {
		return
	}
	room.votes[connID] = targetID

	counts := make(map[string]int)
	for _, target := range room.votes {
		counts[target]++
	}

	g.notify.Multicast(room.playerIDsLocked(), UpdateVotesMessage{
		Type:  "update-votes",
		Votes: counts,
	})

	if len(room.votes) == len(room.players) {
		g.resolveVotesLocked(room, counts)
	}
}

// resolveVotesLocked turns the final tally into a result. More than one
// target sharing the maximum is a tie: no one is expelled and the
// impostor escapes. Otherwise the crew wins exactly when the expelled
// player is the impostor.
func (g *Game) resolveVotesLocked(room *Room, counts map[string]int) {
	maxVotes := 0
	for _, c := range counts {
		if c > maxVotes {
			maxVotes = c
		}
	}

	candidates := make([]string, 0, 1)
	for id, c := range counts {
		if c == maxVotes {
			candidates = append(candidates, id)
		}
	}

	impostorName := ""
	if imp := room.playerLocked(room.impostorID); imp != nil {
		impostorName = imp.Username
	}

	result := GameResultMessage{
		Type:         "game-result",
		ImpostorName: impostorName,
	}

	if len(candidates) > 1 {
		result.Success = false
		result.ExpelledName = expelledTie
	} else {
		expelledID := candidates[0]
		if p := room.playerLocked(expelledID); p != nil {
			result.ExpelledName = p.Username
		} else {
			result.ExpelledName = expelledNone
		}
		result.Success = expelledID == room.impostorID
	}

	room.phase = PhaseResult
	g.notify.Multicast(room.playerIDsLocked(), result)

	logf(g.cfg, "GAMES: Room %s resolved votes (success=%t, expelled=%q)",
		room.code, result.Success, result.ExpelledName)
}

// ResetGame returns the room to the lobby: votes cleared, everyone
// unreadied. Stale role and turn state is simply overwritten by the
// next start.
func (g *Game) ResetGame(code string) {
	room, ok := g.registry.Get(code)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.phase = PhaseLobby
	room.votes = make(map[string]string)
	for _, p := range room.players {
		p.IsReady = false
	}

	g.notify.Multicast(room.playerIDsLocked(), ChangePhaseMessage{
		Type:  "change-phase",
		Phase: PhaseLobby,
	})
	g.broadcastRosterLocked(room)
}

// Disconnect removes the connection from every room holding it. An
// emptied room is deleted on the spot, cancelling its scheduled work;
// otherwise ownership falls back to the oldest remaining player. Turn
// order and recorded votes are intentionally left untouched.
func (g *Game) Disconnect(connID string) {
	for _, room := range g.registry.Rooms() {
		room.mu.Lock()
		if !room.removePlayerLocked(connID) {
			room.mu.Unlock()
			continue
		}

		if len(room.players) == 0 {
			// Deleting while still holding the room lock closes the window
			// where a concurrent join could land in a dead room.
			g.registry.Delete(room.code)
			room.mu.Unlock()
			logf(g.cfg, "GAMES: Room %s is empty, deleting", room.code)
			continue
		}

		if room.ownerID == connID {
			room.ownerID = room.players[0].ID
		}
		g.broadcastRosterLocked(room)
		room.mu.Unlock()
	}
}
