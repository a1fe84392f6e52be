package main

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "create-room", "join-room", "player-ready", "start-game-signal", "finish-turn", "vote-player", "reset-game"
	RoomID   string `json:"roomId,omitempty"`   // all but create-room
	Username string `json:"username,omitempty"` // create-room / join-room
	Emoji    string `json:"emoji,omitempty"`    // create-room / join-room
	IsReady  bool   `json:"isReady,omitempty"`  // player-ready
	Category string `json:"category,omitempty"` // start-game-signal
	ShowHint bool   `json:"showHint,omitempty"` // start-game-signal
	TargetID string `json:"targetId,omitempty"` // vote-player
}

// RoomCreatedMessage is sent only to the requester after create-room.
type RoomCreatedMessage struct {
	Type   string `json:"type"` // "room-created"
	RoomID string `json:"roomId"`
}

// PlayerInfo is the public view of a player used in roster updates.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Emoji    string `json:"emoji"`
	IsReady  bool   `json:"isReady"`
}

// UpdatePlayersMessage broadcasts the current roster and owner.
type UpdatePlayersMessage struct {
	Type    string       `json:"type"` // "update-players"
	Players []PlayerInfo `json:"players"`
	OwnerID string       `json:"ownerId"`
}

// CountdownMessage carries one tick of the advisory lobby countdown.
type CountdownMessage struct {
	Type  string `json:"type"` // "countdown"
	Count int    `json:"count"`
}

// AssignRoleMessage is sent individually to each player at game start.
// The impostor's Word is the noWordSentinel, and their Category is only
// filled in when hints are enabled.
type AssignRoleMessage struct {
	Type     string `json:"type"` // "assign-role"
	Role     string `json:"role"` // "impostor" or "crew"
	Word     string `json:"word"`
	Category string `json:"category"`
}

// ChangePhaseMessage broadcasts a phase transition.
type ChangePhaseMessage struct {
	Type  string `json:"type"` // "change-phase"
	Phase Phase  `json:"phase"`
}

// NextTurnMessage broadcasts whose turn it is to describe the word.
type NextTurnMessage struct {
	Type     string `json:"type"` // "next-turn"
	Username string `json:"username"`
}

// TimerUpdateMessage broadcasts the remaining discussion seconds.
type TimerUpdateMessage struct {
	Type        string `json:"type"` // "timer-update"
	SecondsLeft int    `json:"secondsLeft"`
}

// UpdateVotesMessage broadcasts the live per-target tally.
type UpdateVotesMessage struct {
	Type  string         `json:"type"` // "update-votes"
	Votes map[string]int `json:"votes"`
}

// GameResultMessage broadcasts the outcome once every player has voted.
type GameResultMessage struct {
	Type         string `json:"type"` // "game-result"
	Success      bool   `json:"success"`
	ExpelledName string `json:"expelledName"`
	ImpostorName string `json:"impostorName"`
}

// ErrorMessage is sent to a single client, e.g. for an unknown room code.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
