// Package room implements the charades room model and its state machine.
//
// A Room is pure data plus transition methods; it performs no I/O. Callers
// persist rooms through a Store, which applies mutations atomically per room id.
package room

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cory-johannsen/mimic/internal/game/dice"
)

// State is the game state of a room.
type State string

const (
	StateWaiting    State = "waiting"
	StateInProgress State = "in_progress"
	// StateFinished is terminal and currently never entered.
	StateFinished State = "finished"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateWaiting, StateInProgress, StateFinished:
		return true
	}
	return false
}

const (
	MinRounds     = 1
	MaxRounds     = 10
	DefaultRounds = 3

	MinTimer     = 0
	MaxTimer     = 3600
	DefaultTimer = 60
)

var (
	// ErrRoomNotFound is returned when no room exists for an id.
	ErrRoomNotFound = errors.New("room does not exist")
	// ErrRoomExists is returned when creating a room whose id is already taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrInvalidID is returned for ids outside the A-Z, IDLength alphabet.
	ErrInvalidID = errors.New("invalid room id")
	// ErrEmptyUsername is returned when joining with an empty username.
	ErrEmptyUsername = errors.New("username must not be empty")
	// ErrNoParticipants is returned when starting a room nobody has joined.
	ErrNoParticipants = errors.New("room has no participants")
	// ErrGameInProgress is returned when starting a room that is not waiting.
	ErrGameInProgress = errors.New("game already in progress")
	// ErrNoActiveTurn is returned when guessing while no symbol is assigned.
	ErrNoActiveTurn = errors.New("no active turn")
	// ErrEmptyGuess is returned for blank guesses.
	ErrEmptyGuess = errors.New("guess must not be empty")
)

// Settings are the per-room configuration values. Both are declarative;
// nothing in the coordinator enforces them at runtime.
type Settings struct {
	Timer  int
	Rounds int
}

// DefaultSettings returns the default timer and round count.
func DefaultSettings() Settings {
	return Settings{Timer: DefaultTimer, Rounds: DefaultRounds}
}

// Validate checks the timer and round bounds.
//
// Postcondition: Returns nil if both values are in range.
func (s Settings) Validate() error {
	var errs []string
	if s.Timer < MinTimer || s.Timer > MaxTimer {
		errs = append(errs, fmt.Sprintf("timer must be %d-%d, got %d", MinTimer, MaxTimer, s.Timer))
	}
	if s.Rounds < MinRounds || s.Rounds > MaxRounds {
		errs = append(errs, fmt.Sprintf("rounds must be %d-%d, got %d", MinRounds, MaxRounds, s.Rounds))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid room settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Room is one game session.
//
// CurrentTurn and CurrentEmoji use the empty string for "unset"; neither a
// valid username nor a catalog symbol is ever empty.
type Room struct {
	ID           string    `json:"id"`
	Rounds       int       `json:"rounds"`
	Timer        int       `json:"timer"`
	Participants []string  `json:"participants"`
	CurrentTurn  string    `json:"current_turn,omitempty"`
	CurrentEmoji string    `json:"current_emoji,omitempty"`
	GameState    State     `json:"game_state"`
	CreatedAt    time.Time `json:"created_at"`
}

// New creates a waiting room with no participants.
//
// Precondition: id must satisfy ValidID; s must satisfy Settings.Validate.
// Postcondition: Returns a Room in StateWaiting, or a non-nil error.
func New(id string, s Settings, now time.Time) (*Room, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Room{
		ID:           id,
		Rounds:       s.Rounds,
		Timer:        s.Timer,
		Participants: []string{},
		GameState:    StateWaiting,
		CreatedAt:    now.UTC(),
	}, nil
}

// HasParticipant reports whether username is a member of the room.
func (r *Room) HasParticipant(username string) bool {
	return slices.Contains(r.Participants, username)
}

// Join appends username to the participants if it is not already present.
//
// Precondition: username must be non-empty.
// Postcondition: username occurs exactly once in Participants. Returns true
// only if the membership changed.
func (r *Room) Join(username string) (bool, error) {
	if username == "" {
		return false, ErrEmptyUsername
	}
	if r.HasParticipant(username) {
		return false, nil
	}
	r.Participants = append(r.Participants, username)
	return true, nil
}

// Leave removes username from the participants if present. When the leaving
// user is the current actor the room returns to StateWaiting.
//
// Postcondition: username is absent from Participants. Returns true only if
// the membership changed.
func (r *Room) Leave(username string) bool {
	idx := slices.Index(r.Participants, username)
	if idx < 0 {
		return false
	}
	r.Participants = slices.Delete(r.Participants, idx, idx+1)
	if r.CurrentTurn == username {
		r.resetTurn()
	}
	return true
}

// Start moves the room from waiting to in_progress, picking the actor
// uniformly from the participants and the symbol uniformly from catalog.
//
// Precondition: src and catalog must be non-nil.
// Postcondition: On success GameState is StateInProgress, CurrentTurn is a
// participant, and CurrentEmoji is a catalog symbol. On error the room is unchanged.
func (r *Room) Start(src dice.Source, catalog *Catalog) error {
	if r.GameState != StateWaiting {
		return ErrGameInProgress
	}
	actor, err := dice.Choose(src, r.Participants)
	if err != nil {
		return ErrNoParticipants
	}
	sym, err := dice.Choose(src, catalog.Symbols())
	if err != nil {
		return fmt.Errorf("picking symbol: %w", err)
	}
	r.CurrentTurn = actor
	r.CurrentEmoji = sym.Emoji
	r.GameState = StateInProgress
	return nil
}

// Outcome is the result of evaluating one guess.
type Outcome struct {
	Correct bool
	Guess   string
	// Symbol is the active symbol. Callers reveal it only when Correct.
	Symbol string
}

// Evaluate compares guess to the active symbol by exact string equality.
// It never changes the room.
//
// Postcondition: Returns ErrNoActiveTurn when no symbol is assigned and
// ErrEmptyGuess for an empty guess; otherwise an Outcome.
func (r *Room) Evaluate(guess string) (Outcome, error) {
	if guess == "" {
		return Outcome{}, ErrEmptyGuess
	}
	if r.CurrentEmoji == "" {
		return Outcome{}, ErrNoActiveTurn
	}
	return Outcome{
		Correct: guess == r.CurrentEmoji,
		Guess:   guess,
		Symbol:  r.CurrentEmoji,
	}, nil
}

// Validate checks every room invariant.
//
// Postcondition: Returns nil if the room is internally consistent.
func (r *Room) Validate() error {
	var errs []string
	if !ValidID(r.ID) {
		errs = append(errs, fmt.Sprintf("id %q is not valid", r.ID))
	}
	if err := (Settings{Timer: r.Timer, Rounds: r.Rounds}).Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if !r.GameState.Valid() {
		errs = append(errs, fmt.Sprintf("unknown game state %q", r.GameState))
	}
	seen := make(map[string]bool, len(r.Participants))
	for _, p := range r.Participants {
		if p == "" {
			errs = append(errs, "participants contain an empty username")
		}
		if seen[p] {
			errs = append(errs, fmt.Sprintf("participant %q is duplicated", p))
		}
		seen[p] = true
	}
	if r.CurrentTurn != "" && !seen[r.CurrentTurn] {
		errs = append(errs, fmt.Sprintf("current turn %q is not a participant", r.CurrentTurn))
	}
	switch r.GameState {
	case StateInProgress:
		if r.CurrentTurn == "" || r.CurrentEmoji == "" {
			errs = append(errs, "in_progress room must have a current turn and emoji")
		}
	case StateWaiting:
		if r.CurrentTurn != "" || r.CurrentEmoji != "" {
			errs = append(errs, "waiting room must not have a current turn or emoji")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("room %s invariant violated: %s", r.ID, strings.Join(errs, "; "))
	}
	return nil
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	if c.Participants == nil {
		c.Participants = []string{}
	}
	return &c
}

func (r *Room) resetTurn() {
	r.CurrentTurn = ""
	r.CurrentEmoji = ""
	r.GameState = StateWaiting
}
