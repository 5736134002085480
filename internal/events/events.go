// Package events publishes room lifecycle events to an external stream.
//
// Publishing is fire-and-forget from the coordinator's point of view: a
// failed publish is logged and never fails the client request.
package events

import (
	"context"
	"time"
)

// Type names a room lifecycle event.
type Type string

const (
	RoomCreated Type = "room_created"
	UserJoined  Type = "user_joined"
	UserLeft    Type = "user_left"
	GameStarted Type = "game_started"
	GuessMade   Type = "guess_made"
)

// Event is one room lifecycle record. The active symbol is only ever
// present as the text of a correct guess.
type Event struct {
	Type         Type      `json:"type"`
	RoomID       string    `json:"room_id"`
	Username     string    `json:"username,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	CurrentTurn  string    `json:"current_turn,omitempty"`
	Guess        string    `json:"guess,omitempty"`
	Correct      *bool     `json:"correct,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher emits room events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }
