package room

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Mutation edits a room in place. It reports whether anything changed;
// unchanged rooms are not written back. A non-nil error aborts the update
// and leaves the stored room untouched.
type Mutation func(r *Room) (changed bool, err error)

// Store persists rooms keyed by id.
//
// Update is the only way to modify a stored room. Implementations apply the
// load, mutate, and save steps atomically with respect to other Updates on
// the same id, so concurrent joins never lose a participant.
type Store interface {
	// Create inserts a new room. Returns ErrRoomExists if the id is taken.
	Create(ctx context.Context, r *Room) error
	// Get returns a copy of the room. Returns ErrRoomNotFound if absent.
	Get(ctx context.Context, id string) (*Room, error)
	// Update applies fn atomically and returns the resulting room.
	// Returns ErrRoomNotFound if absent.
	Update(ctx context.Context, id string, fn Mutation) (*Room, error)
	// List returns every stored room ordered by creation time.
	List(ctx context.Context) ([]*Room, error)
}

type memEntry struct {
	mu   sync.Mutex
	room *Room
}

// MemoryStore is an in-process Store. Each room has its own lock so
// updates to different rooms never contend.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memEntry)}
}

// Create stores a copy of r.
//
// Precondition: r must satisfy Validate.
// Postcondition: Returns ErrRoomExists if r.ID is already stored.
func (s *MemoryStore) Create(_ context.Context, r *Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return ErrRoomExists
	}
	s.rooms[r.ID] = &memEntry{room: r.Clone()}
	return nil
}

// Get returns a copy of the stored room.
func (s *MemoryStore) Get(_ context.Context, id string) (*Room, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

// Update applies fn under the room's lock.
//
// Postcondition: The stored room satisfies Validate; fn's changes are
// written only when fn reports a change and returns no error.
func (s *MemoryStore) Update(_ context.Context, id string, fn Mutation) (*Room, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.room.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return e.room.Clone(), nil
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	e.room = next
	return next.Clone(), nil
}

// List returns copies of all rooms, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]*Room, error) {
	s.mu.RLock()
	entries := make([]*memEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.room.Clone())
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) entry(id string) (*memEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

