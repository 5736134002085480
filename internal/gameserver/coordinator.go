// Package gameserver implements the per-connection session coordinator for
// charades rooms: it decodes client messages, applies them to rooms through
// the room store, and fans the resulting events out to every connection in
// the room.
package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/mimic/internal/events"
	"github.com/cory-johannsen/mimic/internal/game/dice"
	"github.com/cory-johannsen/mimic/internal/game/room"
	"github.com/cory-johannsen/mimic/internal/game/session"
)

// DefaultCreateAttempts bounds id collisions tolerated when creating a room.
const DefaultCreateAttempts = 16

// DefaultOpTimeout bounds store and broadcast work done after a connection
// has already gone away.
const DefaultOpTimeout = 5 * time.Second

// Conn is one established client connection carrying text frames.
//
// Read blocks for the next frame and returns io.EOF once the peer has closed.
// Write must be safe to call from one goroutine while another is in Read.
// Close unblocks a pending Read and may be called more than once.
type Conn interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Close() error
}

// Hinter suggests a hint for a wrong guess, or "" for none.
type Hinter interface {
	Hint(guess, emoji string) string
}

// HinterChain asks each hinter in order and returns the first hint.
type HinterChain []Hinter

// Hint implements Hinter.
func (c HinterChain) Hint(guess, emoji string) string {
	for _, h := range c {
		if hint := h.Hint(guess, emoji); hint != "" {
			return hint
		}
	}
	return ""
}

// Options tunes a Coordinator. Zero values select defaults.
type Options struct {
	// Settings are applied to every new room.
	Settings room.Settings
	// SendBuffer is the outbound queue depth per connection.
	SendBuffer int
	// RateLimit is the sustained inbound messages per second per connection.
	RateLimit rate.Limit
	// RateBurst is the inbound burst allowance per connection.
	RateBurst int
	// CreateAttempts bounds id collisions when creating a room.
	CreateAttempts int
	// OpTimeout bounds the leave performed on disconnect.
	OpTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Settings == (room.Settings{}) {
		o.Settings = room.DefaultSettings()
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = session.DefaultBufferSize
	}
	if o.RateLimit <= 0 {
		o.RateLimit = rate.Inf
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	if o.CreateAttempts <= 0 {
		o.CreateAttempts = DefaultCreateAttempts
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	return o
}

// Coordinator runs sessions. One Coordinator serves every connection; all
// per-connection state lives in the session record owned by HandleSession.
type Coordinator struct {
	store     room.Store
	bc        Broadcaster
	src       dice.Source
	catalog   *room.Catalog
	hinter    Hinter
	publisher events.Publisher
	opts      Options
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	active sync.WaitGroup
}

// NewCoordinator creates a Coordinator with the given dependencies.
//
// Precondition: store, bc, src, catalog, and logger must be non-nil.
// hinter and publisher may be nil (no hints, no event stream).
// Postcondition: Returns a Coordinator ready to serve sessions.
func NewCoordinator(
	store room.Store,
	bc Broadcaster,
	src dice.Source,
	catalog *room.Catalog,
	hinter Hinter,
	publisher events.Publisher,
	opts Options,
	logger *zap.Logger,
) *Coordinator {
	if hinter == nil {
		hinter = HinterChain(nil)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Coordinator{
		store:     store,
		bc:        bc,
		src:       src,
		catalog:   catalog,
		hinter:    hinter,
		publisher: publisher,
		opts:      opts.withDefaults(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		now:       time.Now,
	}
}

// sessionState is the connection-local record. Only the goroutine running
// HandleSession touches it; the writer reads the username through sub.
type sessionState struct {
	id         string
	remote     string
	sub        *session.Subscriber
	limiter    *rate.Limiter
	username   string
	roomID     string
	subscribed bool
}

// HandleSession serves one connection until the peer disconnects, ctx is
// cancelled, or a transport error occurs. On return the session has left its
// room and conn has been closed.
//
// Precondition: conn must be open; remote identifies the peer in logs.
// Postcondition: Returns nil on a clean disconnect.
func (c *Coordinator) HandleSession(ctx context.Context, conn Conn, remote string) error {
	c.active.Add(1)
	defer c.active.Done()

	sub := session.NewSubscriber(c.opts.SendBuffer)
	sess := &sessionState{
		id:      sub.ID(),
		remote:  remote,
		sub:     sub,
		limiter: rate.NewLimiter(c.opts.RateLimit, c.opts.RateBurst),
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- c.writeLoop(conn, sub)
	}()

	c.logger.Debug("session opened",
		zap.String("session", sess.id),
		zap.String("remote_addr", remote),
	)
	c.reply(sess, ConnectionReady{Type: TypeConnectionReady, Message: "ready"})

	readErr := c.readLoop(ctx, conn, sess)

	c.disconnect(sess)
	sub.Close()
	writeErr := <-writerDone

	c.logger.Debug("session closed",
		zap.String("session", sess.id),
		zap.String("remote_addr", remote),
		zap.NamedError("read_error", readErr),
		zap.NamedError("write_error", writeErr),
	)
	if readErr != nil {
		return readErr
	}
	return writeErr
}

// Wait blocks until every running session has returned or ctx expires.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) readLoop(ctx context.Context, conn Conn, sess *sessionState) error {
	for {
		data, err := conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}
		if !sess.limiter.Allow() {
			c.fail(sess, "", ErrRateLimited)
			continue
		}
		c.dispatch(ctx, sess, data)
	}
}

// writeLoop is the only writer of conn. It drains the subscriber until the
// subscriber is closed, localizing turn announcements for this connection.
func (c *Coordinator) writeLoop(conn Conn, sub *session.Subscriber) error {
	var codec JSONCodec
	for ev := range sub.Events() {
		if gs, ok := ev.(GameStarted); ok {
			ev = gs.Localize(sub.Username())
		}
		data, err := codec.Encode(ev)
		if err != nil {
			c.logger.Error("dropping unencodable event",
				zap.String("session", sub.ID()),
				zap.String("event", ev.EventType()),
				zap.Error(err),
			)
			continue
		}
		if err := conn.Write(data); err != nil {
			// Unblock the reader; the session then tears down normally.
			conn.Close()
			return fmt.Errorf("writing %s: %w", ev.EventType(), err)
		}
	}
	return nil
}

// dispatch routes one inbound frame to its handler.
func (c *Coordinator) dispatch(ctx context.Context, sess *sessionState, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.fail(sess, "", ErrInvalidMessage)
		return
	}

	var err error
	switch msg.Type {
	case TypeUser:
		err = c.handleUser(sess, msg)
	case TypeCreateRoom:
		err = c.handleCreateRoom(ctx, sess)
	case TypeJoinRoom:
		err = c.handleJoinRoom(ctx, sess, msg)
	case TypeStartGame:
		err = c.handleStartGame(ctx, sess)
	case TypeSubmitGuess:
		err = c.handleSubmitGuess(ctx, sess, msg)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}
	if err != nil {
		c.fail(sess, msg.Type, err)
	}
}

// fail replies to the requester with an error event. Unrecognized errors are
// logged in full and reported generically.
func (c *Coordinator) fail(sess *sessionState, msgType string, err error) {
	text, known := describe(err)
	if known {
		c.logger.Debug("request rejected",
			zap.String("session", sess.id),
			zap.String("type", msgType),
			zap.String("room_id", sess.roomID),
			zap.Error(err),
		)
	} else {
		c.logger.Error("request failed",
			zap.String("session", sess.id),
			zap.String("type", msgType),
			zap.String("room_id", sess.roomID),
			zap.Error(err),
		)
	}
	c.reply(sess, newErrorMessage(text))
}

// reply queues ev for the requesting connection only.
func (c *Coordinator) reply(sess *sessionState, ev session.Event) {
	if err := sess.sub.Push(ev); err != nil {
		c.logger.Warn("dropping reply",
			zap.String("session", sess.id),
			zap.String("event", ev.EventType()),
			zap.Error(err),
		)
	}
}

// broadcast queues ev for every connection in roomID. Failures are logged;
// the request that triggered the broadcast has already been applied.
func (c *Coordinator) broadcast(ctx context.Context, roomID string, ev session.Event) {
	if err := c.bc.Broadcast(ctx, roomID, ev); err != nil {
		c.logger.Error("broadcast failed",
			zap.String("room_id", roomID),
			zap.String("event", ev.EventType()),
			zap.Error(err),
		)
	}
}

// publish emits ev on the room event stream. Failures are logged only.
func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	ev.At = c.now().UTC()
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.Warn("publishing room event",
			zap.String("room_id", ev.RoomID),
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// disconnect performs the implicit leave when a connection closes. It runs
// on a fresh context because the session's context may already be done.
func (c *Coordinator) disconnect(sess *sessionState) {
	if sess.roomID == "" || sess.username == "" || !sess.subscribed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.OpTimeout)
	defer cancel()
	c.leaveRoom(ctx, sess)
}
