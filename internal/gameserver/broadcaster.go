package gameserver

import (
	"context"

	"github.com/cory-johannsen/mimic/internal/game/session"
)

// Broadcaster fans room events out to every subscribed connection.
//
// Implementations must make Subscribe and Unsubscribe idempotent and must
// preserve, per subscriber, the order of Broadcast calls made by one caller.
type Broadcaster interface {
	Subscribe(ctx context.Context, roomID string, sub *session.Subscriber) error
	Unsubscribe(ctx context.Context, roomID string, sub *session.Subscriber) error
	Broadcast(ctx context.Context, roomID string, ev session.Event) error
}

// LocalBroadcaster delivers within this process only.
type LocalBroadcaster struct {
	group *session.Group
}

// NewLocalBroadcaster wraps group.
//
// Precondition: group must be non-nil.
func NewLocalBroadcaster(group *session.Group) *LocalBroadcaster {
	return &LocalBroadcaster{group: group}
}

// Subscribe adds sub to roomID's group.
func (b *LocalBroadcaster) Subscribe(_ context.Context, roomID string, sub *session.Subscriber) error {
	b.group.Subscribe(roomID, sub)
	return nil
}

// Unsubscribe removes sub from roomID's group.
func (b *LocalBroadcaster) Unsubscribe(_ context.Context, roomID string, sub *session.Subscriber) error {
	b.group.Unsubscribe(roomID, sub)
	return nil
}

// Broadcast pushes ev to roomID's local subscribers.
func (b *LocalBroadcaster) Broadcast(_ context.Context, roomID string, ev session.Event) error {
	b.group.Broadcast(roomID, ev)
	return nil
}

// Group exposes the underlying group for connection counts.
func (b *LocalBroadcaster) Group() *session.Group {
	return b.group
}
