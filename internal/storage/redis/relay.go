package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mimic/internal/game/session"
)

// DefaultChannelPrefix prefixes every room's pub/sub channel.
const DefaultChannelPrefix = "mimic:room:"

// Codec converts events to and from the payload published on a channel.
type Codec interface {
	Encode(ev session.Event) ([]byte, error)
	Decode(data []byte) (session.Event, error)
}

// Relay broadcasts room events through Redis pub/sub so that every instance
// sharing the Redis server delivers them to its local subscribers.
//
// An instance holds one channel subscription per room with at least one
// local subscriber. Broadcast publishes and never delivers locally; local
// delivery happens when the instance receives its own publication, which
// keeps one ordering for all instances.
//
// Subscribing and releasing a room's channel are serialized per room, so a
// slow Redis round trip for one room never delays another.
type Relay struct {
	client goredis.UniversalClient
	codec  Codec
	group  *session.Group
	prefix string
	logger *zap.Logger

	mu    sync.Mutex // guards rooms only; never held across I/O
	rooms map[string]*relayRoom
}

// relayRoom is one room's channel subscription. Its lock is taken before
// Relay.mu, never after.
type relayRoom struct {
	mu       sync.Mutex
	pubsub   *goredis.PubSub
	done     chan struct{}
	released bool
}

// NewRelay creates a Relay delivering into group.
//
// Precondition: client, codec, group, and logger must be non-nil.
// Postcondition: An empty prefix selects DefaultChannelPrefix.
func NewRelay(client goredis.UniversalClient, codec Codec, group *session.Group, prefix string, logger *zap.Logger) *Relay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Relay{
		client: client,
		codec:  codec,
		group:  group,
		prefix: prefix,
		logger: logger,
		rooms:  make(map[string]*relayRoom),
	}
}

// Channel returns the pub/sub channel for roomID.
func (r *Relay) Channel(roomID string) string { return r.prefix + roomID }

// Subscribe adds sub to roomID and makes sure this instance listens on the
// room's channel before returning.
//
// Postcondition: sub receives every event published to roomID after the
// call returns, or a non-nil error is returned and sub is not added.
func (r *Relay) Subscribe(ctx context.Context, roomID string, sub *session.Subscriber) error {
	for {
		rr := r.entry(roomID, true)
		rr.mu.Lock()
		if rr.released {
			// Lost a race with the last Unsubscribe; start over on a fresh entry.
			rr.mu.Unlock()
			continue
		}
		if rr.pubsub == nil {
			if err := r.listen(ctx, roomID, rr); err != nil {
				rr.mu.Unlock()
				return err
			}
		}
		r.group.Subscribe(roomID, sub)
		rr.mu.Unlock()
		return nil
	}
}

// Unsubscribe removes sub from roomID and drops the channel subscription
// once the room has no local subscribers.
func (r *Relay) Unsubscribe(_ context.Context, roomID string, sub *session.Subscriber) error {
	for {
		rr := r.entry(roomID, false)
		if rr == nil {
			r.group.Unsubscribe(roomID, sub)
			return nil
		}
		rr.mu.Lock()
		if rr.released {
			rr.mu.Unlock()
			continue
		}
		r.group.Unsubscribe(roomID, sub)
		var err error
		if rr.pubsub != nil && r.group.Count(roomID) == 0 {
			err = r.release(roomID, rr)
		}
		rr.mu.Unlock()
		return err
	}
}

// Broadcast publishes ev on roomID's channel.
func (r *Relay) Broadcast(ctx context.Context, roomID string, ev session.Event) error {
	data, err := r.codec.Encode(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.Channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", ev.EventType(), r.Channel(roomID), err)
	}
	return nil
}

// Close releases every channel subscription.
//
// Postcondition: No forwarding goroutines remain.
func (r *Relay) Close() error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.rooms))
	entries := make([]*relayRoom, 0, len(r.rooms))
	for id, rr := range r.rooms {
		ids = append(ids, id)
		entries = append(entries, rr)
	}
	r.mu.Unlock()

	var first error
	for i, rr := range entries {
		rr.mu.Lock()
		if !rr.released && rr.pubsub != nil {
			if err := r.release(ids[i], rr); err != nil && first == nil {
				first = err
			}
		}
		rr.mu.Unlock()
	}
	return first
}

// Group exposes the local subscriber group.
func (r *Relay) Group() *session.Group { return r.group }

// entry returns roomID's subscription entry, creating it when create is set.
func (r *Relay) entry(roomID string, create bool) *relayRoom {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.rooms[roomID]
	if !ok && create {
		rr = &relayRoom{}
		r.rooms[roomID] = rr
	}
	return rr
}

// forget removes rr from the index unless it was already replaced.
func (r *Relay) forget(roomID string, rr *relayRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == rr {
		delete(r.rooms, roomID)
	}
}

// listen subscribes to roomID's channel and starts forwarding.
//
// Precondition: rr.mu is held and rr has no subscription.
// Postcondition: On error rr is released and removed from the index.
func (r *Relay) listen(ctx context.Context, roomID string, rr *relayRoom) error {
	ps := r.client.Subscribe(ctx, r.Channel(roomID))
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		rr.released = true
		r.forget(roomID, rr)
		return fmt.Errorf("subscribing to %s: %w", r.Channel(roomID), err)
	}
	rr.pubsub = ps
	rr.done = make(chan struct{})
	go r.forward(roomID, ps, rr.done)
	r.logger.Debug("relay channel subscribed", zap.String("room_id", roomID))
	return nil
}

// release closes rr's channel subscription and waits for its forwarder.
//
// Precondition: rr.mu is held and rr holds a subscription.
func (r *Relay) release(roomID string, rr *relayRoom) error {
	rr.released = true
	r.forget(roomID, rr)
	err := rr.pubsub.Close()
	<-rr.done
	r.logger.Debug("relay channel released", zap.String("room_id", roomID))
	if err != nil {
		return fmt.Errorf("closing subscription %s: %w", r.Channel(roomID), err)
	}
	return nil
}

func (r *Relay) forward(roomID string, ps *goredis.PubSub, done chan struct{}) {
	defer close(done)
	for msg := range ps.Channel() {
		ev, err := r.codec.Decode([]byte(msg.Payload))
		if err != nil {
			r.logger.Warn("dropping relayed event",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
			continue
		}
		r.group.Broadcast(roomID, ev)
	}
}
