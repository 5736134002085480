package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/mimic/internal/game/session"
)

// ErrUnknownEvent is returned when decoding an event type this server does not emit.
var ErrUnknownEvent = errors.New("unknown event type")

// JSONCodec converts outbound events to and from their wire form. The same
// encoding is written to connections and relayed between instances.
type JSONCodec struct{}

// Encode marshals ev to JSON.
func (JSONCodec) Encode(ev session.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ev.EventType(), err)
	}
	return data, nil
}

// Decode restores an event produced by Encode.
//
// Postcondition: Returns ErrUnknownEvent for types outside the outbound set.
func (JSONCodec) Decode(data []byte) (session.Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}

	var (
		ev  session.Event
		err error
	)
	switch head.Type {
	case TypeConnectionReady:
		ev, err = decodeAs[ConnectionReady](data)
	case TypeRoomCreated, TypeJoinedRoom:
		ev, err = decodeAs[RoomSnapshot](data)
	case TypeError:
		ev, err = decodeAs[ErrorMessage](data)
	case TypeParticipantsUpdated:
		ev, err = decodeAs[ParticipantsUpdated](data)
	case TypeGameStarted:
		ev, err = decodeAs[GameStarted](data)
	case TypeGuessResult:
		ev, err = decodeAs[GuessResult](data)
	case TypeGuessSubmitted:
		ev, err = decodeAs[GuessSubmitted](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
	}
	return ev, nil
}

func decodeAs[T session.Event](data []byte) (session.Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
