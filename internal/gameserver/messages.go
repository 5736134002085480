package gameserver

import "github.com/cory-johannsen/mimic/internal/game/room"

// Inbound message types.
const (
	TypeUser        = "user"
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeStartGame   = "start_game"
	TypeSubmitGuess = "submit_guess"
)

// Outbound event types.
const (
	TypeConnectionReady     = "connection_ready"
	TypeRoomCreated         = "room_created"
	TypeJoinedRoom          = "joined_room"
	TypeError               = "error"
	TypeParticipantsUpdated = "participants_updated"
	TypeGameStarted         = "game_started"
	TypeGuessResult         = "guess_result"
	TypeGuessSubmitted      = "guess_submitted"
)

// Participant actions carried by participants_updated.
const (
	ActionUserJoined = "user_joined"
	ActionUserLeft   = "user_left"
)

// Roles carried by game_started.
const (
	RoleActor   = "actor"
	RoleGuesser = "guesser"
)

// inboundMessage is the union of every inbound payload. Fields a type does
// not use are ignored.
type inboundMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
	Guess    string `json:"guess"`
}

type userRequest struct {
	Username string `validate:"required,max=32"`
}

type joinRequest struct {
	RoomID string `validate:"required,len=8,alpha,uppercase"`
}

// ConnectionReady is sent once when a connection opens.
type ConnectionReady struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ConnectionReady) EventType() string { return TypeConnectionReady }

// RoomSnapshot is the reply to create_room and join_room.
type RoomSnapshot struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"room_id"`
	Participants []string `json:"participants"`
	Timer        int      `json:"timer"`
	Rounds       int      `json:"rounds"`
}

func (s RoomSnapshot) EventType() string { return s.Type }

func newRoomSnapshot(typ string, r *room.Room) RoomSnapshot {
	return RoomSnapshot{
		Type:         typ,
		RoomID:       r.ID,
		Participants: r.Participants,
		Timer:        r.Timer,
		Rounds:       r.Rounds,
	}
}

// ErrorMessage reports a failed request to the requesting connection only.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ErrorMessage) EventType() string { return TypeError }

func newErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// ParticipantsUpdated announces a membership change to the whole room.
type ParticipantsUpdated struct {
	Type         string     `json:"type"`
	RoomID       string     `json:"room_id"`
	Participants []string   `json:"participants"`
	Action       string     `json:"action"`
	Username     string     `json:"username"`
	GameState    room.State `json:"game_state"`
}

func (ParticipantsUpdated) EventType() string { return TypeParticipantsUpdated }

func newParticipantsUpdated(r *room.Room, action, username string) ParticipantsUpdated {
	return ParticipantsUpdated{
		Type:         TypeParticipantsUpdated,
		RoomID:       r.ID,
		Participants: r.Participants,
		Action:       action,
		Username:     username,
		GameState:    r.GameState,
	}
}

// GameStarted announces the turn assignment. As broadcast it carries the
// symbol; every recipient sees the output of Localize for its own username.
type GameStarted struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	CurrentTurn string `json:"current_turn"`
	Role        string `json:"role,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
}

func (GameStarted) EventType() string { return TypeGameStarted }

// Localize returns the view of g for username: the actor keeps the symbol,
// everyone else gets the guesser role and no symbol.
func (g GameStarted) Localize(username string) GameStarted {
	if username != "" && username == g.CurrentTurn {
		g.Role = RoleActor
		return g
	}
	g.Role = RoleGuesser
	g.Emoji = ""
	return g
}

// GuessResult is the requester's private verdict on a guess.
type GuessResult struct {
	Type         string `json:"type"`
	Correct      bool   `json:"correct"`
	Guess        string `json:"guess"`
	CorrectEmoji string `json:"correct_emoji,omitempty"`
	Message      string `json:"message"`
	Error        string `json:"error,omitempty"`
	Hint         string `json:"hint,omitempty"`
}

func (GuessResult) EventType() string { return TypeGuessResult }

// GuessSubmitted tells the whole room that someone guessed.
type GuessSubmitted struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	Guess    string `json:"guess"`
	Correct  bool   `json:"correct"`
	Message  string `json:"message"`
}

func (GuessSubmitted) EventType() string { return TypeGuessSubmitted }
