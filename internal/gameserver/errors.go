package gameserver

import (
	"errors"
	"strings"

	"github.com/cory-johannsen/mimic/internal/game/room"
)

var (
	// ErrInvalidMessage is returned for frames that are not a typed JSON object.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownType is returned for an unrecognized message type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrUsernameNotSet is returned for room requests before a user message.
	ErrUsernameNotSet = errors.New("username not set")
	// ErrInvalidUsername is returned when a user message fails validation.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrUsernameLocked is returned when renaming while in a room.
	ErrUsernameLocked = errors.New("username cannot be changed after joining a room")
	// ErrNotInRoom is returned for game requests outside a room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrRateLimited is returned when a connection sends too fast.
	ErrRateLimited = errors.New("too many messages")
	// ErrRoomIDExhausted is returned when no free room id was found.
	ErrRoomIDExhausted = errors.New("no free room id")
)

// clientMessages maps known errors to the text shown to the requester.
var clientMessages = []struct {
	err  error
	text string
}{
	{ErrInvalidMessage, "Invalid message"},
	{ErrUsernameNotSet, "Username not set"},
	{ErrInvalidUsername, "Username must be 1-32 characters"},
	{ErrUsernameLocked, "Username cannot be changed after joining a room"},
	{ErrNotInRoom, "Not in a room"},
	{ErrRateLimited, "Too many messages"},
	{room.ErrRoomNotFound, "Room does not exist"},
	{room.ErrNoParticipants, "Room has no participants"},
	{room.ErrGameInProgress, "Game already in progress"},
	{room.ErrNoActiveTurn, "No active turn"},
	{room.ErrEmptyGuess, "Guess cannot be empty"},
	{room.ErrEmptyUsername, "Username not set"},
}

// describe returns the requester-facing text for err and whether err is an
// expected rejection rather than a server fault.
func describe(err error) (string, bool) {
	if errors.Is(err, ErrUnknownType) {
		// Wrapped as "unknown message type: <type>".
		_, typ, _ := strings.Cut(err.Error(), ": ")
		return "Unknown message type: " + typ, true
	}
	for _, m := range clientMessages {
		if errors.Is(err, m.err) {
			return m.text, true
		}
	}
	return "Internal error", false
}
