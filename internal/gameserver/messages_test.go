package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mimic/internal/game/room"
	"github.com/cory-johannsen/mimic/internal/game/session"
)

func TestGameStarted_Localize(t *testing.T) {
	g := GameStarted{Type: TypeGameStarted, RoomID: "ABCDEFGH", CurrentTurn: "Alice", Emoji: "🐶"}

	actor := g.Localize("Alice")
	assert.Equal(t, RoleActor, actor.Role)
	assert.Equal(t, "🐶", actor.Emoji)

	guesser := g.Localize("Bob")
	assert.Equal(t, RoleGuesser, guesser.Role)
	assert.Empty(t, guesser.Emoji)

	anonymous := g.Localize("")
	assert.Equal(t, RoleGuesser, anonymous.Role)
	assert.Empty(t, anonymous.Emoji)

	assert.Equal(t, "🐶", g.Emoji, "localizing never mutates the original")
	assert.Equal(t, actor, actor.Localize("Alice"))
}

// Property: only the actor's view of a turn announcement carries the symbol.
func TestProperty_LocalizeHidesSymbolFromGuessers(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		actor := rapid.StringMatching(`[A-Za-z]{1,12}`).Draw(rt, "actor")
		viewer := rapid.StringMatching(`[A-Za-z]{0,12}`).Draw(rt, "viewer")
		g := GameStarted{Type: TypeGameStarted, CurrentTurn: actor, Emoji: "🐱"}.Localize(viewer)
		if viewer == actor {
			if g.Role != RoleActor || g.Emoji != "🐱" {
				rt.Fatalf("actor view %+v", g)
			}
			return
		}
		if g.Role != RoleGuesser || g.Emoji != "" {
			rt.Fatalf("guesser view leaks symbol: %+v", g)
		}
	})
}

func TestGuessResult_CorrectAlwaysEncoded(t *testing.T) {
	data, err := json.Marshal(GuessResult{Type: TypeGuessResult, Guess: "🐭", Message: "Incorrect, try again."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"guess_result","correct":false,"guess":"🐭","message":"Incorrect, try again."}`, string(data))
}

func TestJSONCodec_DecodeRestoresEvent(t *testing.T) {
	r := &room.Room{ID: "ABCDEFGH", Participants: []string{"Alice"}, Timer: 60, Rounds: 3, GameState: room.StateWaiting}
	cases := []session.Event{
		ConnectionReady{Type: TypeConnectionReady, Message: "ready"},
		newRoomSnapshot(TypeRoomCreated, r),
		newRoomSnapshot(TypeJoinedRoom, r),
		newErrorMessage("Room does not exist"),
		newParticipantsUpdated(r, ActionUserLeft, "Bob"),
		GameStarted{Type: TypeGameStarted, RoomID: r.ID, CurrentTurn: "Alice", Emoji: "🐶"},
		GuessResult{Type: TypeGuessResult, Correct: true, Guess: "🐶", CorrectEmoji: "🐶", Message: "Correct!"},
		GuessSubmitted{Type: TypeGuessSubmitted, RoomID: r.ID, Username: "Bob", Guess: "🐶", Correct: true},
	}
	var codec JSONCodec
	for _, ev := range cases {
		t.Run(fmt.Sprintf("%T/%s", ev, ev.EventType()), func(t *testing.T) {
			data, err := codec.Encode(ev)
			require.NoError(t, err)
			got, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
		})
	}
}

func TestJSONCodec_DecodeRejectsUnknown(t *testing.T) {
	var codec JSONCodec
	_, err := codec.Decode([]byte(`{"type":"teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = codec.Decode([]byte(`nope`))
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	text, known := describe(fmt.Errorf("joining room X: %w", room.ErrRoomNotFound))
	assert.True(t, known)
	assert.Equal(t, "Room does not exist", text)

	text, known = describe(fmt.Errorf("%w: %s", ErrUnknownType, "dance"))
	assert.True(t, known)
	assert.Equal(t, "Unknown message type: dance", text)

	text, known = describe(errors.New("connection refused"))
	assert.False(t, known)
	assert.Equal(t, "Internal error", text)
}

func TestHinterChain(t *testing.T) {
	chain := HinterChain{hintFunc(func(string, string) string { return "" }), hintFunc(func(g, _ string) string { return "second:" + g })}
	assert.Equal(t, "second:x", chain.Hint("x", "🐶"))
	assert.Empty(t, HinterChain(nil).Hint("x", "🐶"))
}

type hintFunc func(guess, emoji string) string

func (f hintFunc) Hint(guess, emoji string) string { return f(guess, emoji) }
