package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/mimic/internal/game/dice"
	"github.com/cory-johannsen/mimic/internal/game/room"
)

// NewTestRoom returns a valid waiting room with a random id.
func NewTestRoom(t *testing.T) *room.Room {
	t.Helper()
	r, err := room.New(room.NewID(dice.NewCryptoSource()), room.DefaultSettings(), time.Now().Truncate(time.Microsecond))
	require.NoError(t, err)
	return r
}

// RunStoreSuite exercises the room.Store contract against the store built by
// newStore. Every room.Store implementation runs it.
//
// Precondition: newStore must return a usable store; ids are random so the
// store may be shared between subtests.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) room.Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewTestRoom(t)
		require.NoError(t, s.Create(ctx, r))

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.Timer, got.Timer)
		assert.Equal(t, r.Rounds, got.Rounds)
		assert.Equal(t, room.StateWaiting, got.GameState)
		assert.Empty(t, got.Participants)
		assert.WithinDuration(t, r.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewTestRoom(t)
		require.NoError(t, s.Create(ctx, r))
		assert.ErrorIs(t, s.Create(ctx, r), room.ErrRoomExists)
	})

	t.Run("MissingRoom", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Get(ctx, "ZZZZZZZZ")
		assert.ErrorIs(t, err, room.ErrRoomNotFound)

		_, err = s.Update(ctx, "ZZZZZZZZ", func(r *room.Room) (bool, error) { return r.Join("x") })
		assert.ErrorIs(t, err, room.ErrRoomNotFound)
	})

	t.Run("UpdatePersists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewTestRoom(t)
		require.NoError(t, s.Create(ctx, r))

		updated, err := s.Update(ctx, r.ID, func(r *room.Room) (bool, error) { return r.Join("Alice") })
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice"}, updated.Participants)

		updated, err = s.Update(ctx, r.ID, func(r *room.Room) (bool, error) {
			return true, r.Start(dice.NewCryptoSource(), room.DefaultCatalog())
		})
		require.NoError(t, err)
		assert.Equal(t, room.StateInProgress, updated.GameState)

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.CurrentTurn)
		assert.Equal(t, updated.CurrentEmoji, got.CurrentEmoji)
		assert.True(t, room.DefaultCatalog().Contains(got.CurrentEmoji))
	})

	t.Run("UpdateErrorAborts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewTestRoom(t)
		require.NoError(t, s.Create(ctx, r))

		boom := errors.New("boom")
		_, err := s.Update(ctx, r.ID, func(r *room.Room) (bool, error) {
			_, _ = r.Join("Alice")
			return true, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Participants)
	})

	t.Run("UpdateUnchanged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewTestRoom(t)
		require.NoError(t, s.Create(ctx, r))

		got, err := s.Update(ctx, r.ID, func(r *room.Room) (bool, error) { return r.Leave("nobody"), nil })
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
	})

	t.Run("ConcurrentJoinsLoseNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewTestRoom(t)
		require.NoError(t, s.Create(ctx, r))

		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := fmt.Sprintf("player%02d", i)
				_, err := s.Update(ctx, r.ID, func(r *room.Room) (bool, error) { return r.Join(name) })
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Len(t, got.Participants, n)
		for i := 0; i < n; i++ {
			assert.Contains(t, got.Participants, fmt.Sprintf("player%02d", i))
		}
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b := NewTestRoom(t), NewTestRoom(t)
		require.NoError(t, s.Create(ctx, a))
		require.NoError(t, s.Create(ctx, b))

		rooms, err := s.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(rooms))
		for _, r := range rooms {
			ids = append(ids, r.ID)
		}
		assert.Contains(t, ids, a.ID)
		assert.Contains(t, ids, b.ID)
	})
}
