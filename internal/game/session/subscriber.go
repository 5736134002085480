// Package session provides per-room subscriber groups and the subscriber
// handles that bridge room broadcasts to a single connection.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the outbound queue depth used when none is given.
const DefaultBufferSize = 256

var (
	// ErrSubscriberClosed is returned by Push after Close.
	ErrSubscriberClosed = errors.New("subscriber is closed")
	// ErrBufferFull is returned by Push when the outbound queue is full.
	ErrBufferFull = errors.New("subscriber event buffer full")
)

// Event is anything that can be queued for a connection.
type Event interface {
	EventType() string
}

// Subscriber routes events to a buffered channel drained by one connection's
// writer. It is the handle a connection registers with a Group.
type Subscriber struct {
	id       string
	username string
	events   chan Event
	mu       sync.Mutex
	closed   bool
}

// NewSubscriber creates a Subscriber with a fresh unique id.
//
// Postcondition: Returns a Subscriber with an open events channel of
// bufferSize (DefaultBufferSize when bufferSize <= 0).
func NewSubscriber(bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscriber{
		id:     uuid.NewString(),
		events: make(chan Event, bufferSize),
	}
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Username returns the username of the connection behind this subscriber.
func (s *Subscriber) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// SetUsername records the connection's username.
func (s *Subscriber) SetUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// Push enqueues ev without blocking.
//
// Precondition: ev must be non-nil.
// Postcondition: ev is enqueued, or ErrSubscriberClosed / ErrBufferFull is returned.
func (s *Subscriber) Push(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber %s: %w", s.id, ErrSubscriberClosed)
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return fmt.Errorf("subscriber %s: %w", s.id, ErrBufferFull)
	}
}

// Events returns the read-only events channel. It is closed by Close.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Close marks the subscriber closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls fail.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// IsClosed reports whether the subscriber has been closed.
func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
