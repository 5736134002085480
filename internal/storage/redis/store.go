package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/mimic/internal/game/room"
)

// DefaultTxRetries bounds optimistic transaction retries per Create or Update.
const DefaultTxRetries = 100

const (
	roomKeyPrefix = "mimic:rooms:"
	roomIndexKey  = "mimic:rooms"
)

// ErrTxConflict is returned when a Create or Update lost every optimistic
// retry.
var ErrTxConflict = errors.New("room update conflicted too many times")

// RoomStore is a room.Store that keeps each room as a JSON string and
// indexes ids in a sorted set scored by creation time.
//
// Create and Update use WATCH/MULTI/EXEC and retry on conflict.
type RoomStore struct {
	client  goredis.UniversalClient
	retries int
}

// NewRoomStore creates a RoomStore.
//
// Precondition: client must be connected.
// Postcondition: retries <= 0 selects DefaultTxRetries.
func NewRoomStore(client goredis.UniversalClient, retries int) *RoomStore {
	if retries <= 0 {
		retries = DefaultTxRetries
	}
	return &RoomStore{client: client, retries: retries}
}

func roomKey(id string) string { return roomKeyPrefix + id }

// Create stores r if its id is free. The room key and its index entry are
// written in one MULTI/EXEC, so a failed Create leaves neither behind.
//
// Postcondition: Returns room.ErrRoomExists if the id is taken.
func (s *RoomStore) Create(ctx context.Context, r *room.Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", r.ID, err)
	}
	key := roomKey(r.ID)
	score := float64(r.CreatedAt.UnixMicro())
	for attempt := 0; attempt < s.retries; attempt++ {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return room.ErrRoomExists
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.ZAdd(ctx, roomIndexKey, goredis.Z{Score: score, Member: r.ID})
				return nil
			})
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if errors.Is(err, room.ErrRoomExists) {
			return err
		}
		if err != nil {
			return fmt.Errorf("storing room %s: %w", r.ID, err)
		}
		return nil
	}
	return fmt.Errorf("storing room %s: %w", r.ID, ErrTxConflict)
}

// Get returns the room stored under id.
func (s *RoomStore) Get(ctx context.Context, id string) (*room.Room, error) {
	return s.load(ctx, s.client, id)
}

// Update applies fn under an optimistic transaction on the room's key.
//
// Postcondition: The stored room satisfies Validate. Returns ErrTxConflict
// when every retry conflicted with another writer.
func (s *RoomStore) Update(ctx context.Context, id string, fn room.Mutation) (*room.Room, error) {
	key := roomKey(id)
	for attempt := 0; attempt < s.retries; attempt++ {
		var out *room.Room
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			r, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			changed, err := fn(r)
			if err != nil {
				return err
			}
			out = r
			if !changed {
				return nil
			}
			if err := r.Validate(); err != nil {
				return err
			}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encoding room %s: %w", id, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("updating room %s: %w", id, ErrTxConflict)
}

// List returns every indexed room, oldest first. Index entries whose key
// has vanished are skipped.
func (s *RoomStore) List(ctx context.Context) ([]*room.Room, error) {
	ids, err := s.client.ZRange(ctx, roomIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing room index: %w", err)
	}
	out := make([]*room.Room, 0, len(ids))
	for _, id := range ids {
		r, err := s.load(ctx, s.client, id)
		if errors.Is(err, room.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// getter is the part of a client or transaction that load reads through.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *RoomStore) load(ctx context.Context, c getter, id string) (*room.Room, error) {
	data, err := c.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, room.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", id, err)
	}
	var r room.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", id, err)
	}
	if r.Participants == nil {
		r.Participants = []string{}
	}
	return &r, nil
}
