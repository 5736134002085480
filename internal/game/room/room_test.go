package room_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mimic/internal/game/dice"
	"github.com/cory-johannsen/mimic/internal/game/room"
)

// fixedSource returns the queued values in order, then zeros.
type fixedSource struct {
	vals []int
}

func (f *fixedSource) Intn(n int) int {
	if len(f.vals) == 0 {
		return 0
	}
	v := f.vals[0]
	f.vals = f.vals[1:]
	return v % n
}

func newRoom(t *testing.T, participants ...string) *room.Room {
	t.Helper()
	r, err := room.New("ABCDEFGH", room.DefaultSettings(), time.Now())
	require.NoError(t, err)
	for _, p := range participants {
		_, err := r.Join(p)
		require.NoError(t, err)
	}
	return r
}

func TestNew_Defaults(t *testing.T) {
	r := newRoom(t)
	assert.Equal(t, "ABCDEFGH", r.ID)
	assert.Equal(t, room.DefaultTimer, r.Timer)
	assert.Equal(t, room.DefaultRounds, r.Rounds)
	assert.Empty(t, r.Participants)
	assert.NotNil(t, r.Participants)
	assert.Equal(t, room.StateWaiting, r.GameState)
	assert.Empty(t, r.CurrentTurn)
	assert.Empty(t, r.CurrentEmoji)
	assert.NoError(t, r.Validate())
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := room.New("abc", room.DefaultSettings(), time.Now())
	assert.ErrorIs(t, err, room.ErrInvalidID)

	_, err = room.New("ABCDEFGH", room.Settings{Timer: 3601, Rounds: 3}, time.Now())
	assert.Error(t, err)

	_, err = room.New("ABCDEFGH", room.Settings{Timer: 60, Rounds: 0}, time.Now())
	assert.Error(t, err)
}

func TestSettingsBounds(t *testing.T) {
	assert.NoError(t, room.Settings{Timer: 0, Rounds: 1}.Validate())
	assert.NoError(t, room.Settings{Timer: 3600, Rounds: 10}.Validate())
	assert.Error(t, room.Settings{Timer: -1, Rounds: 3}.Validate())
	assert.Error(t, room.Settings{Timer: 60, Rounds: 11}.Validate())
}

func TestJoin_Idempotent(t *testing.T) {
	r := newRoom(t)
	changed, err := r.Join("Alice")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.Join("Alice")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"Alice"}, r.Participants)
}

func TestJoin_PreservesOrder(t *testing.T) {
	r := newRoom(t, "Alice", "Bob", "Carol")
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, r.Participants)
}

func TestJoin_EmptyUsername(t *testing.T) {
	r := newRoom(t)
	_, err := r.Join("")
	assert.ErrorIs(t, err, room.ErrEmptyUsername)
	assert.Empty(t, r.Participants)
}

func TestLeave_Idempotent(t *testing.T) {
	r := newRoom(t, "Alice", "Bob")
	assert.True(t, r.Leave("Alice"))
	assert.False(t, r.Leave("Alice"))
	assert.Equal(t, []string{"Bob"}, r.Participants)
}

func TestLeave_ActorResetsTurn(t *testing.T) {
	r := newRoom(t, "Alice", "Bob")
	require.NoError(t, r.Start(&fixedSource{vals: []int{0, 0}}, room.DefaultCatalog()))
	require.Equal(t, "Alice", r.CurrentTurn)

	assert.True(t, r.Leave("Alice"))
	assert.Equal(t, room.StateWaiting, r.GameState)
	assert.Empty(t, r.CurrentTurn)
	assert.Empty(t, r.CurrentEmoji)
	assert.NoError(t, r.Validate())
}

func TestLeave_GuesserKeepsTurn(t *testing.T) {
	r := newRoom(t, "Alice", "Bob")
	require.NoError(t, r.Start(&fixedSource{vals: []int{0, 5}}, room.DefaultCatalog()))

	assert.True(t, r.Leave("Bob"))
	assert.Equal(t, room.StateInProgress, r.GameState)
	assert.Equal(t, "Alice", r.CurrentTurn)
	assert.NoError(t, r.Validate())
}

func TestStart_PicksFromParticipantsAndCatalog(t *testing.T) {
	cat := room.DefaultCatalog()
	r := newRoom(t, "A", "B", "C")
	require.NoError(t, r.Start(&fixedSource{vals: []int{2, 10}}, cat))

	assert.Equal(t, room.StateInProgress, r.GameState)
	assert.Equal(t, "C", r.CurrentTurn)
	assert.Equal(t, cat.Symbols()[10].Emoji, r.CurrentEmoji)
	assert.NoError(t, r.Validate())
}

func TestStart_NoParticipants(t *testing.T) {
	r := newRoom(t)
	err := r.Start(dice.NewCryptoSource(), room.DefaultCatalog())
	assert.ErrorIs(t, err, room.ErrNoParticipants)
	assert.Equal(t, room.StateWaiting, r.GameState)
}

func TestStart_AlreadyInProgress(t *testing.T) {
	r := newRoom(t, "A")
	require.NoError(t, r.Start(dice.NewCryptoSource(), room.DefaultCatalog()))
	turn, emoji := r.CurrentTurn, r.CurrentEmoji

	err := r.Start(dice.NewCryptoSource(), room.DefaultCatalog())
	assert.ErrorIs(t, err, room.ErrGameInProgress)
	assert.Equal(t, turn, r.CurrentTurn)
	assert.Equal(t, emoji, r.CurrentEmoji)
}

func TestEvaluate(t *testing.T) {
	r := newRoom(t, "Alice", "Bob")

	_, err := r.Evaluate("🐶")
	assert.ErrorIs(t, err, room.ErrNoActiveTurn)

	require.NoError(t, r.Start(&fixedSource{vals: []int{0, 0}}, room.DefaultCatalog()))
	emoji := r.CurrentEmoji

	out, err := r.Evaluate(emoji)
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.Equal(t, emoji, out.Symbol)

	out, err = r.Evaluate("definitely not it")
	require.NoError(t, err)
	assert.False(t, out.Correct)

	_, err = r.Evaluate("")
	assert.ErrorIs(t, err, room.ErrEmptyGuess)
	out, err = r.Evaluate("   ")
	require.NoError(t, err, "whitespace is a guess like any other")
	assert.False(t, out.Correct)
	assert.Equal(t, "   ", out.Guess)

	assert.Equal(t, room.StateInProgress, r.GameState, "evaluation never changes state")
}

func TestEvaluate_EmptyGuessWithoutTurn(t *testing.T) {
	r := newRoom(t, "Alice")
	_, err := r.Evaluate("")
	assert.ErrorIs(t, err, room.ErrEmptyGuess)
}

func TestClone_IsDeep(t *testing.T) {
	r := newRoom(t, "Alice")
	c := r.Clone()
	c.Participants[0] = "Mallory"
	assert.Equal(t, "Alice", r.Participants[0])
}

func TestValidate_DetectsViolations(t *testing.T) {
	r := newRoom(t, "Alice")
	r.CurrentTurn = "Bob"
	assert.Error(t, r.Validate())

	r = newRoom(t, "Alice")
	r.GameState = room.StateInProgress
	assert.Error(t, r.Validate())

	r = newRoom(t, "Alice")
	r.Participants = append(r.Participants, "Alice")
	assert.Error(t, r.Validate())

	r = newRoom(t)
	r.Participants = []string{""}
	assert.Error(t, r.Validate())
}

// TestStart_ApproximatesUniform runs many starts over {A,B,C} and checks the
// actor and symbol distributions stay near uniform.
func TestStart_ApproximatesUniform(t *testing.T) {
	cat := room.DefaultCatalog()
	src := dice.NewSeededSource(99)
	actors := map[string]int{}
	symbols := map[string]int{}
	const trials = 24000
	for i := 0; i < trials; i++ {
		r := newRoom(t, "A", "B", "C")
		require.NoError(t, r.Start(src, cat))
		actors[r.CurrentTurn]++
		symbols[r.CurrentEmoji]++
	}
	for _, a := range []string{"A", "B", "C"} {
		assert.InDelta(t, trials/3, actors[a], trials*0.03, "actor %s", a)
	}
	assert.Len(t, symbols, cat.Len())
	for emoji, n := range symbols {
		assert.InDelta(t, trials/cat.Len(), n, float64(trials/cat.Len())*0.4, "symbol %s", emoji)
		assert.True(t, cat.Contains(emoji))
	}
}

// Property: any sequence of joins and leaves keeps the room valid, with no
// duplicates and at most one occurrence per username.
func TestProperty_MembershipInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r, err := room.New("QWERTYUI", room.DefaultSettings(), time.Now())
		if err != nil {
			rt.Fatal(err)
		}
		names := []string{"ann", "bo", "cy", "di"}
		model := map[string]bool{}
		ops := rapid.IntRange(1, 60).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			name := rapid.SampledFrom(names).Draw(rt, "name")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0, 1:
				changed, err := r.Join(name)
				if err != nil {
					rt.Fatal(err)
				}
				if changed == model[name] {
					rt.Fatalf("join %q changed=%v but present=%v", name, changed, model[name])
				}
				model[name] = true
			case 2:
				changed := r.Leave(name)
				if changed != model[name] {
					rt.Fatalf("leave %q changed=%v but present=%v", name, changed, model[name])
				}
				delete(model, name)
			}
			if r.GameState == room.StateWaiting && len(r.Participants) > 0 && rapid.Bool().Draw(rt, "start") {
				if err := r.Start(dice.NewSeededSource(uint64(i)), room.DefaultCatalog()); err != nil {
					rt.Fatal(err)
				}
			}
			if err := r.Validate(); err != nil {
				rt.Fatal(err)
			}
			if len(r.Participants) != len(model) {
				rt.Fatalf("participants %v disagree with model %v", r.Participants, model)
			}
		}
	})
}
