package session

import (
	"sync"

	"go.uber.org/zap"
)

// roomGroup is the subscriber set of one room. Once reclaimed it is detached
// from the Group and must not gain members.
type roomGroup struct {
	mu        sync.RWMutex
	members   map[string]*Subscriber
	reclaimed bool
}

// Group tracks, per room id, the subscribers that receive that room's
// broadcasts. Each room has its own lock; the room index lock is held only
// for lookups and for reclaiming empty rooms.
//
// All methods are safe for concurrent use.
type Group struct {
	mu     sync.RWMutex
	rooms  map[string]*roomGroup
	logger *zap.Logger
}

// NewGroup creates an empty Group.
//
// Precondition: logger must be non-nil.
func NewGroup(logger *zap.Logger) *Group {
	return &Group{
		rooms:  make(map[string]*roomGroup),
		logger: logger,
	}
}

// Subscribe adds sub to roomID's set. Subscribing twice is a no-op.
//
// Precondition: roomID must be non-empty; sub must be non-nil.
// Postcondition: sub receives every later Broadcast to roomID until
// Unsubscribe. Returns true if sub is the room's first local subscriber.
func (g *Group) Subscribe(roomID string, sub *Subscriber) bool {
	for {
		rg := g.getOrCreate(roomID)
		rg.mu.Lock()
		if rg.reclaimed {
			// Lost a race with the last Unsubscribe; fetch the new group.
			rg.mu.Unlock()
			continue
		}
		if _, ok := rg.members[sub.ID()]; ok {
			rg.mu.Unlock()
			return false
		}
		first := len(rg.members) == 0
		rg.members[sub.ID()] = sub
		rg.mu.Unlock()
		return first
	}
}

// Unsubscribe removes sub from roomID's set. Removing an absent subscriber
// is a no-op. An emptied room set is reclaimed.
//
// Postcondition: sub receives no further broadcasts for roomID. Returns true
// if the room's set was reclaimed.
func (g *Group) Unsubscribe(roomID string, sub *Subscriber) bool {
	rg, ok := g.get(roomID)
	if !ok {
		return false
	}

	rg.mu.Lock()
	if _, ok := rg.members[sub.ID()]; !ok {
		rg.mu.Unlock()
		return false
	}
	delete(rg.members, sub.ID())
	empty := len(rg.members) == 0
	rg.mu.Unlock()

	if !empty {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if len(rg.members) != 0 || rg.reclaimed || g.rooms[roomID] != rg {
		return false
	}
	rg.reclaimed = true
	delete(g.rooms, roomID)
	return true
}

// Broadcast pushes ev to every subscriber of roomID. Delivery is best-effort
// and non-blocking: a closed or full subscriber is skipped and logged.
//
// Postcondition: Returns the number of subscribers that accepted ev.
func (g *Group) Broadcast(roomID string, ev Event) int {
	rg, ok := g.get(roomID)
	if !ok {
		return 0
	}

	rg.mu.RLock()
	defer rg.mu.RUnlock()

	delivered := 0
	for _, sub := range rg.members {
		if err := sub.Push(ev); err != nil {
			g.logger.Warn("dropping broadcast",
				zap.String("room_id", roomID),
				zap.String("subscriber", sub.ID()),
				zap.String("event", ev.EventType()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Members returns a snapshot of roomID's subscribers.
func (g *Group) Members(roomID string) []*Subscriber {
	rg, ok := g.get(roomID)
	if !ok {
		return nil
	}
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	out := make([]*Subscriber, 0, len(rg.members))
	for _, sub := range rg.members {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of subscribers of roomID.
func (g *Group) Count(roomID string) int {
	rg, ok := g.get(roomID)
	if !ok {
		return 0
	}
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return len(rg.members)
}

// RoomCount returns the number of rooms with at least one subscriber.
func (g *Group) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Group) get(roomID string) (*roomGroup, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rg, ok := g.rooms[roomID]
	return rg, ok
}

func (g *Group) getOrCreate(roomID string) *roomGroup {
	if rg, ok := g.get(roomID); ok {
		return rg
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if rg, ok := g.rooms[roomID]; ok {
		return rg
	}
	rg := &roomGroup{members: make(map[string]*Subscriber)}
	g.rooms[roomID] = rg
	return rg
}
