package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mimic/internal/game/dice"
)

// TestCryptoSource_Intn_InRange verifies the postcondition:
// every value returned by Intn(6) is in [0, 6).
func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

// TestCryptoSource_Intn_PanicsOnZero verifies the precondition:
// Intn panics when called with n <= 0.
func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := dice.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := dice.NewSeededSource(42)
	b := dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Intn(1000), b.Intn(1000))
	}
}

func TestSeededSource_PanicsOnNegative(t *testing.T) {
	assert.Panics(t, func() { dice.NewSeededSource(1).Intn(-3) })
}

func TestChoose_Empty(t *testing.T) {
	_, err := dice.Choose(dice.NewCryptoSource(), []string{})
	assert.ErrorIs(t, err, dice.ErrEmptySequence)
}

func TestChoose_Single(t *testing.T) {
	got, err := dice.Choose(dice.NewCryptoSource(), []string{"only"})
	require.NoError(t, err)
	assert.Equal(t, "only", got)
}

// TestChoose_ApproximatelyUniform draws many times from three elements and
// checks each element is picked within a generous band around n/3.
func TestChoose_ApproximatelyUniform(t *testing.T) {
	src := dice.NewSeededSource(7)
	items := []string{"A", "B", "C"}
	counts := map[string]int{}
	const n = 30000
	for i := 0; i < n; i++ {
		v, err := dice.Choose(src, items)
		require.NoError(t, err)
		counts[v]++
	}
	for _, it := range items {
		assert.InDelta(t, n/3, counts[it], n*0.03, "element %s", it)
	}
}

// Property: Choose always returns an element of a non-empty input.
func TestChoose_Property_Member(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOfN(rapid.String(), 1, 50).Draw(rt, "items")
		seed := rapid.Uint64().Draw(rt, "seed")
		got, err := dice.Choose(dice.NewSeededSource(seed), items)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		assert.Contains(rt, items, got)
	})
}

func TestLoggedSource_Delegates(t *testing.T) {
	src := dice.NewLoggedSource(dice.NewSeededSource(3), zaptest.NewLogger(t))
	ref := dice.NewSeededSource(3)
	for i := 0; i < 20; i++ {
		assert.Equal(t, ref.Intn(10), src.Intn(10))
	}
}
