package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures coordinator output per connection id, standing in
// for the websocket gateway.
type recorder struct {
	mu   sync.Mutex
	msgs map[string][]any
}

func newRecorder() *recorder {
	return &recorder{
		msgs: make(map[string][]any),
	}
}

func (r *recorder) Unicast(playerID string, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs[playerID] = append(r.msgs[playerID], msg)
}

func (r *recorder) Multicast(playerIDs []string, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range playerIDs {
		r.msgs[id] = append(r.msgs[id], msg)
	}
}

func messagesOf[T any](r *recorder, playerID string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []T
	for _, msg := range r.msgs[playerID] {
		if typed, ok := msg.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func lastOf[T any](r *recorder, playerID string) (T, bool) {
	msgs := messagesOf[T](r, playerID)
	if len(msgs) == 0 {
		var zero T
		return zero, false
	}
	return msgs[len(msgs)-1], true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestGame(t *testing.T) (*Game, *recorder) {
	t.Helper()

	cfg := &Config{
		countdownStart: 3,
		discussion:     3600 * time.Second,
		minPlayers:     2,
		revealDelay:    10 * time.Millisecond,
	}

	words, err := newWordBank([]byte(`{"Random": ["Pizza", "Taco"], "Animals": ["Owl", "Fox"]}`))
	require.NoError(t, err)

	rec := newRecorder()
	g := newGame(cfg, words, rec)
	g.tick = 5 * time.Millisecond
	return g, rec
}

// createRoomWith creates a room owned by the first id and joins the rest.
func createRoomWith(t *testing.T, g *Game, rec *recorder, ids ...string) (string, *Room) {
	t.Helper()

	g.CreateRoom(ids[0], "player-"+ids[0], "👽")
	created, ok := lastOf[RoomCreatedMessage](rec, ids[0])
	require.True(t, ok)

	for _, id := range ids[1:] {
		g.JoinRoom(id, created.RoomID, "player-"+id, "🤖")
	}

	room, ok := g.registry.Get(created.RoomID)
	require.True(t, ok)
	return created.RoomID, room
}

func (r *Room) snapshotPhase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func TestCreateRoomDesignatesOwner(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a")

	assert.Len(t, code, 4)
	assert.Equal(t, "a", room.ownerID)
	assert.Equal(t, PhaseLobby, room.snapshotPhase())

	roster, ok := lastOf[UpdatePlayersMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, "a", roster.OwnerID)
	require.Len(t, roster.Players, 1)
	assert.False(t, roster.Players[0].IsReady)
}

func TestJoinUnknownRoom(t *testing.T) {
	g, rec := newTestGame(t)

	g.JoinRoom("a", "ZZZZ", "player-a", "👽")

	errMsg, ok := lastOf[ErrorMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, roomNotFoundError, errMsg.Message)
}

func TestJoinNeverDuplicatesIDs(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b")

	// Reconnection: the same id joining again replaces its entry.
	g.JoinRoom("a", code, "player-a", "👽")

	room.mu.Lock()
	defer room.mu.Unlock()

	seen := make(map[string]bool)
	for _, p := range room.players {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}
	assert.Len(t, room.players, 2)
	assert.NotNil(t, room.playerLocked(room.ownerID))
}

func TestDisconnectReassignsOwner(t *testing.T) {
	g, rec := newTestGame(t)

	_, room := createRoomWith(t, g, rec, "a", "b", "c")

	g.Disconnect("a")

	room.mu.Lock()
	owner := room.ownerID
	count := len(room.players)
	room.mu.Unlock()

	// Join order, not turn order, decides the fallback.
	assert.Equal(t, "b", owner)
	assert.Equal(t, 2, count)

	roster, ok := lastOf[UpdatePlayersMessage](rec, "b")
	require.True(t, ok)
	assert.Equal(t, "b", roster.OwnerID)
	assert.Len(t, roster.Players, 2)
}

func TestLastDisconnectDeletesRoom(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a")

	g.Disconnect("a")

	_, ok := g.registry.Get(code)
	assert.False(t, ok)
	assert.Zero(t, g.registry.Len())

	select {
	case <-room.done:
	default:
		t.Fatal("room deletion must cancel its scheduled actions")
	}
}

func TestReadyCountdownIsAdvisory(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b")

	g.SetReady("a", code, true)
	assert.Empty(t, messagesOf[CountdownMessage](rec, "a"))

	g.SetReady("b", code, true)

	waitFor(t, func() bool {
		msgs := messagesOf[CountdownMessage](rec, "a")
		return len(msgs) > 0 && msgs[len(msgs)-1].Count == 0
	})

	counts := make([]int, 0, 4)
	for _, msg := range messagesOf[CountdownMessage](rec, "a") {
		counts = append(counts, msg.Count)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, counts)

	// The countdown itself never starts the game.
	assert.Equal(t, PhaseLobby, room.snapshotPhase())
}

func TestStartGameAssignsRoles(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b", "c")

	g.StartGame(code, "Animals", true)

	impostors := 0
	crewWords := make(map[string]bool)
	for _, id := range []string{"a", "b", "c"} {
		roles := messagesOf[AssignRoleMessage](rec, id)
		require.Len(t, roles, 1)

		role := roles[0]
		switch role.Role {
		case roleImpostor:
			impostors++
			assert.Equal(t, noWordSentinel, role.Word)
			assert.Equal(t, "Animals", role.Category)
		case roleCrew:
			assert.Contains(t, []string{"Owl", "Fox"}, role.Word)
			assert.Equal(t, "Animals", role.Category)
			crewWords[role.Word] = true
		default:
			t.Fatalf("unexpected role %q", role.Role)
		}
	}

	assert.Equal(t, 1, impostors)
	assert.Len(t, crewWords, 1, "every crew member must receive the identical word")

	room.mu.Lock()
	assert.NotEmpty(t, room.impostorID)
	assert.NotNil(t, room.playerLocked(room.impostorID))
	room.mu.Unlock()

	phase, ok := lastOf[ChangePhaseMessage](rec, "b")
	require.True(t, ok)
	assert.Equal(t, PhaseReveal, phase.Phase)
}

func TestStartGameHidesHintFromImpostor(t *testing.T) {
	g, rec := newTestGame(t)

	code, _ := createRoomWith(t, g, rec, "a", "b")

	g.StartGame(code, "Animals", false)

	for _, id := range []string{"a", "b"} {
		roles := messagesOf[AssignRoleMessage](rec, id)
		require.Len(t, roles, 1)
		if roles[0].Role == roleImpostor {
			assert.Empty(t, roles[0].Category)
		} else {
			assert.Equal(t, "Animals", roles[0].Category)
		}
	}
}

func TestStartGameUnknownCategoryFallsBack(t *testing.T) {
	g, rec := newTestGame(t)

	code, _ := createRoomWith(t, g, rec, "a", "b")

	g.StartGame(code, "Nonexistent", true)

	for _, id := range []string{"a", "b"} {
		roles := messagesOf[AssignRoleMessage](rec, id)
		require.Len(t, roles, 1)
		if roles[0].Role == roleCrew {
			assert.Contains(t, []string{"Pizza", "Taco"}, roles[0].Word)
		}
	}
}

func TestRevealTransitionsToTalking(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b", "c")

	g.StartGame(code, "Random", true)

	waitFor(t, func() bool {
		return room.snapshotPhase() == PhaseTalking
	})

	room.mu.Lock()
	require.Len(t, room.turnOrder, 3)
	first := room.turnOrder[0].Username
	assert.Zero(t, room.currentTurnIndex)
	room.mu.Unlock()

	turn, ok := lastOf[NextTurnMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, first, turn.Username)

	// The discussion timer's opening broadcast.
	timers := messagesOf[TimerUpdateMessage](rec, "a")
	require.NotEmpty(t, timers)
	assert.Equal(t, 3600, timers[0].SecondsLeft)
}

func TestRoomDeletionCancelsRevealDelay(t *testing.T) {
	g, rec := newTestGame(t)

	code, _ := createRoomWith(t, g, rec, "a")

	g.StartGame(code, "Random", true)
	g.Disconnect("a")

	time.Sleep(50 * time.Millisecond)

	for _, msg := range messagesOf[ChangePhaseMessage](rec, "a") {
		assert.NotEqual(t, PhaseTalking, msg.Phase,
			"the reveal delay must not fire against a deleted room")
	}
}

func TestFinishTurnMonotonicAndTerminates(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b", "c")

	// finish-turn before the game is a no-op.
	g.FinishTurn(code)
	assert.Empty(t, messagesOf[NextTurnMessage](rec, "a"))

	g.StartGame(code, "Random", true)
	waitFor(t, func() bool {
		return room.snapshotPhase() == PhaseTalking
	})

	// Exactly |turnOrder| calls force the voting transition.
	g.FinishTurn(code)
	g.FinishTurn(code)
	assert.Equal(t, PhaseTalking, room.snapshotPhase())

	g.FinishTurn(code)
	assert.Equal(t, PhaseVoting, room.snapshotPhase())

	phase, ok := lastOf[ChangePhaseMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, PhaseVoting, phase.Phase)

	// One announcement per speaker: the opener plus one per advance.
	assert.Len(t, messagesOf[NextTurnMessage](rec, "a"), 3)

	// Further calls outside the talking phase change nothing.
	g.FinishTurn(code)
	room.mu.Lock()
	assert.Equal(t, 3, room.currentTurnIndex)
	assert.Empty(t, room.votes)
	room.mu.Unlock()
	assert.Equal(t, PhaseVoting, room.snapshotPhase())
}

func TestVoteMajorityExpels(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b", "c")

	room.mu.Lock()
	room.impostorID = "c"
	room.phase = PhaseVoting
	room.mu.Unlock()

	g.Vote("a", code, "b")
	g.Vote("b", code, "c")

	// No result until every player has voted.
	_, resolved := lastOf[GameResultMessage](rec, "a")
	assert.False(t, resolved)

	g.Vote("c", code, "b")

	tally, ok := lastOf[UpdateVotesMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"b": 2, "c": 1}, tally.Votes)

	result, ok := lastOf[GameResultMessage](rec, "a")
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.Equal(t, "player-b", result.ExpelledName)
	assert.Equal(t, "player-c", result.ImpostorName)
	assert.Equal(t, PhaseResult, room.snapshotPhase())
}

func TestVoteExpelsImpostor(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b", "c")

	room.mu.Lock()
	room.impostorID = "b"
	room.mu.Unlock()

	g.Vote("a", code, "b")
	g.Vote("b", code, "c")
	g.Vote("c", code, "b")

	result, ok := lastOf[GameResultMessage](rec, "a")
	require.True(t, ok)
	assert.True(t, result.Success)
	assert.Equal(t, "player-b", result.ExpelledName)
	assert.Equal(t, "player-b", result.ImpostorName)
}

func TestVoteTieExpelsNoOne(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b")

	room.mu.Lock()
	room.impostorID = "a"
	room.mu.Unlock()

	g.Vote("a", code, "b")
	g.Vote("b", code, "a")

	result, ok := lastOf[GameResultMessage](rec, "a")
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.Equal(t, expelledTie, result.ExpelledName)
	assert.Equal(t, "player-a", result.ImpostorName)
}

func TestVoteIsIdempotentOnce(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b", "c")

	g.Vote("a", code, "b")
	g.Vote("a", code, "c")

	room.mu.Lock()
	assert.Equal(t, map[string]string{"a": "b"}, room.votes)
	room.mu.Unlock()

	tally, ok := lastOf[UpdateVotesMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"b": 1}, tally.Votes)
}

func TestVoteForAbsentPlayer(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b")

	room.mu.Lock()
	room.impostorID = "a"
	room.mu.Unlock()

	// Both votes target someone who has already left.
	g.Vote("a", code, "ghost")
	g.Vote("b", code, "ghost")

	result, ok := lastOf[GameResultMessage](rec, "a")
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.Equal(t, expelledNone, result.ExpelledName)
}

func TestVoteUnknownRoom(t *testing.T) {
	g, rec := newTestGame(t)

	g.Vote("a", "ZZZZ", "b")

	errMsg, ok := lastOf[ErrorMessage](rec, "a")
	require.True(t, ok)
	assert.Equal(t, roomNotFoundError, errMsg.Message)
}

func TestDiscussionTimerRunsOutIntoVoting(t *testing.T) {
	g, rec := newTestGame(t)
	g.cfg.discussion = 3 * time.Second

	code, room := createRoomWith(t, g, rec, "a", "b")

	g.StartGame(code, "Random", true)

	waitFor(t, func() bool {
		return room.snapshotPhase() == PhaseVoting
	})

	ticks := make([]int, 0, 4)
	for _, msg := range messagesOf[TimerUpdateMessage](rec, "a") {
		ticks = append(ticks, msg.SecondsLeft)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, ticks)

	room.mu.Lock()
	assert.Empty(t, room.votes)
	room.mu.Unlock()
}

func TestDiscussionTimerNeverDoubles(t *testing.T) {
	g, rec := newTestGame(t)
	g.cfg.discussion = 4 * time.Second

	code, room := createRoomWith(t, g, rec, "a", "b")

	g.StartGame(code, "Random", true)
	waitFor(t, func() bool {
		return room.snapshotPhase() == PhaseTalking
	})

	// Re-arm; the first stream must die without ticking again. Every
	// tick is emitted under the room lock, so snapshotting the message
	// count inside the same critical section gives an exact cut.
	room.mu.Lock()
	seen := len(messagesOf[TimerUpdateMessage](rec, "a"))
	g.startDiscussionTimerLocked(room)
	room.mu.Unlock()

	waitFor(t, func() bool {
		return room.snapshotPhase() == PhaseVoting
	})

	// From the re-arm on there is exactly one stream: the opening
	// broadcast, then strictly decreasing ticks down to zero.
	msgs := messagesOf[TimerUpdateMessage](rec, "a")[seen:]
	require.NotEmpty(t, msgs)
	assert.Equal(t, 4, msgs[0].SecondsLeft)
	assert.Equal(t, 0, msgs[len(msgs)-1].SecondsLeft)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i-1].SecondsLeft, msgs[i].SecondsLeft)
	}

	votingTransitions := 0
	for _, msg := range messagesOf[ChangePhaseMessage](rec, "a") {
		if msg.Phase == PhaseVoting {
			votingTransitions++
		}
	}
	assert.Equal(t, 1, votingTransitions)
}

func TestTurnExhaustionCancelsTimer(t *testing.T) {
	g, rec := newTestGame(t)
	g.cfg.discussion = 4 * time.Second

	code, room := createRoomWith(t, g, rec, "a", "b")

	g.StartGame(code, "Random", true)
	waitFor(t, func() bool {
		return room.snapshotPhase() == PhaseTalking
	})

	g.FinishTurn(code)
	g.FinishTurn(code)
	assert.Equal(t, PhaseVoting, room.snapshotPhase())

	before := len(messagesOf[TimerUpdateMessage](rec, "a"))
	time.Sleep(50 * time.Millisecond)
	after := len(messagesOf[TimerUpdateMessage](rec, "a"))
	assert.Equal(t, before, after, "a cancelled timer must stop ticking")
}

func TestResetReturnsToLobby(t *testing.T) {
	g, rec := newTestGame(t)

	code, room := createRoomWith(t, g, rec, "a", "b")

	g.SetReady("a", code, true)
	g.SetReady("b", code, true)
	g.Vote("a", code, "b")
	g.Vote("b", code, "a")

	g.ResetGame(code)

	room.mu.Lock()
	assert.Equal(t, PhaseLobby, room.phase)
	assert.Empty(t, room.votes)
	for _, p := range room.players {
		assert.False(t, p.IsReady)
	}
	room.mu.Unlock()

	phase, ok := lastOf[ChangePhaseMessage](rec, "b")
	require.True(t, ok)
	assert.Equal(t, PhaseLobby, phase.Phase)

	roster, ok := lastOf[UpdatePlayersMessage](rec, "b")
	require.True(t, ok)
	for _, p := range roster.Players {
		assert.False(t, p.IsReady)
	}
}

func TestOperationsOnUnknownRoomsAreNoOps(t *testing.T) {
	g, rec := newTestGame(t)

	g.SetReady("a", "ZZZZ", true)
	g.StartGame("ZZZZ", "Random", true)
	g.FinishTurn("ZZZZ")
	g.ResetGame("ZZZZ")
	g.Disconnect("a")

	assert.Empty(t, messagesOf[UpdatePlayersMessage](rec, "a"))
	assert.Empty(t, messagesOf[ChangePhaseMessage](rec, "a"))
}
