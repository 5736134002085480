package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mimic/internal/events"
	"github.com/cory-johannsen/mimic/internal/game/room"
)

// handleUser sets the connection's username. Renaming is allowed until the
// session has joined a room.
func (c *Coordinator) handleUser(sess *sessionState, msg inboundMessage) error {
	if err := c.validate.Struct(userRequest{Username: msg.Username}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if sess.roomID != "" && msg.Username != sess.username {
		return ErrUsernameLocked
	}
	sess.username = msg.Username
	sess.sub.SetUsername(msg.Username)
	c.logger.Debug("username set",
		zap.String("session", sess.id),
		zap.String("username", msg.Username),
	)
	return nil
}

// handleCreateRoom creates a room with the requester as its only member.
func (c *Coordinator) handleCreateRoom(ctx context.Context, sess *sessionState) error {
	if sess.username == "" {
		return ErrUsernameNotSet
	}
	if sess.roomID != "" {
		c.leaveRoom(ctx, sess)
	}

	r, err := c.createRoom(ctx, sess.username)
	if err != nil {
		return err
	}
	if err := c.enterRoom(ctx, sess, r.ID); err != nil {
		c.undoJoin(ctx, r.ID, sess.username)
		return err
	}

	c.logger.Info("room created",
		zap.String("room_id", r.ID),
		zap.String("username", sess.username),
	)
	c.reply(sess, newRoomSnapshot(TypeRoomCreated, r))
	c.broadcast(ctx, r.ID, newParticipantsUpdated(r, ActionUserJoined, sess.username))
	c.publish(ctx, events.Event{Type: events.RoomCreated, RoomID: r.ID, Username: sess.username, Participants: r.Participants})
	return nil
}

// handleJoinRoom adds the requester to an existing room. Joining a room the
// requester already belongs to changes nothing but still replies.
func (c *Coordinator) handleJoinRoom(ctx context.Context, sess *sessionState, msg inboundMessage) error {
	if sess.username == "" {
		return ErrUsernameNotSet
	}
	if err := c.validate.Struct(joinRequest{RoomID: msg.RoomID}); err != nil {
		return fmt.Errorf("%w: %q", room.ErrRoomNotFound, msg.RoomID)
	}
	if sess.roomID != "" && sess.roomID != msg.RoomID {
		c.leaveRoom(ctx, sess)
	}

	var joined bool
	r, err := c.store.Update(ctx, msg.RoomID, func(r *room.Room) (bool, error) {
		changed, err := r.Join(sess.username)
		joined = changed
		return changed, err
	})
	if err != nil {
		return fmt.Errorf("joining room %s: %w", msg.RoomID, err)
	}
	if err := c.enterRoom(ctx, sess, r.ID); err != nil {
		if joined {
			c.undoJoin(ctx, r.ID, sess.username)
		}
		return err
	}

	c.logger.Info("room joined",
		zap.String("room_id", r.ID),
		zap.String("username", sess.username),
		zap.Bool("new_member", joined),
	)
	c.reply(sess, newRoomSnapshot(TypeJoinedRoom, r))
	c.broadcast(ctx, r.ID, newParticipantsUpdated(r, ActionUserJoined, sess.username))
	if joined {
		c.publish(ctx, events.Event{Type: events.UserJoined, RoomID: r.ID, Username: sess.username, Participants: r.Participants})
	}
	return nil
}

// enterRoom subscribes the session to roomID's group and records it.
func (c *Coordinator) enterRoom(ctx context.Context, sess *sessionState, roomID string) error {
	if err := c.bc.Subscribe(ctx, roomID, sess.sub); err != nil {
		return fmt.Errorf("subscribing to room %s: %w", roomID, err)
	}
	sess.roomID = roomID
	sess.subscribed = true
	return nil
}

// undoJoin removes a member whose subscription could not be established.
func (c *Coordinator) undoJoin(ctx context.Context, roomID, username string) {
	_, err := c.store.Update(ctx, roomID, func(r *room.Room) (bool, error) {
		return r.Leave(username), nil
	})
	if err != nil {
		c.logger.Error("rolling back join",
			zap.String("room_id", roomID),
			zap.String("username", username),
			zap.Error(err),
		)
	}
}

// leaveRoom removes the session's user from its room, tells the room, and
// unsubscribes. Store failures are logged; the session always ends up
// outside the room.
func (c *Coordinator) leaveRoom(ctx context.Context, sess *sessionState) {
	roomID, username := sess.roomID, sess.username

	var left bool
	r, err := c.store.Update(ctx, roomID, func(r *room.Room) (bool, error) {
		left = r.Leave(username)
		return left, nil
	})
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		c.logger.Warn("leaving vanished room",
			zap.String("room_id", roomID),
			zap.String("username", username),
		)
	case err != nil:
		c.logger.Error("leaving room",
			zap.String("room_id", roomID),
			zap.String("username", username),
			zap.Error(err),
		)
	default:
		c.broadcast(ctx, roomID, newParticipantsUpdated(r, ActionUserLeft, username))
		if left {
			c.publish(ctx, events.Event{Type: events.UserLeft, RoomID: roomID, Username: username, Participants: r.Participants})
		}
		c.logger.Info("room left",
			zap.String("room_id", roomID),
			zap.String("username", username),
			zap.String("game_state", string(r.GameState)),
		)
	}

	if sess.subscribed {
		if err := c.bc.Unsubscribe(ctx, roomID, sess.sub); err != nil {
			c.logger.Error("unsubscribing from room",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
	}
	sess.roomID = ""
	sess.subscribed = false
}

// createRoom stores a new room with a fresh id. owner, when non-empty, is
// its first participant.
func (c *Coordinator) createRoom(ctx context.Context, owner string) (*room.Room, error) {
	for attempt := 0; attempt < c.opts.CreateAttempts; attempt++ {
		r, err := room.New(room.NewID(c.src), c.opts.Settings, c.now())
		if err != nil {
			return nil, err
		}
		if owner != "" {
			if _, err := r.Join(owner); err != nil {
				return nil, err
			}
		}
		err = c.store.Create(ctx, r)
		if errors.Is(err, room.ErrRoomExists) {
			c.logger.Debug("room id collision", zap.String("room_id", r.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating room: %w", err)
		}
		return r, nil
	}
	return nil, ErrRoomIDExhausted
}

// CreateRoom stores an empty room with default settings. It backs the HTTP
// bootstrap route; members arrive later through join_room.
//
// Postcondition: Returns the stored room or a non-nil error.
func (c *Coordinator) CreateRoom(ctx context.Context) (*room.Room, error) {
	r, err := c.createRoom(ctx, "")
	if err != nil {
		return nil, err
	}
	c.logger.Info("room created", zap.String("room_id", r.ID))
	c.publish(ctx, events.Event{Type: events.RoomCreated, RoomID: r.ID, Participants: r.Participants})
	return r, nil
}

// Room returns a snapshot of the room with the given id.
//
// Postcondition: Returns room.ErrRoomNotFound when absent.
func (c *Coordinator) Room(ctx context.Context, id string) (*room.Room, error) {
	if !room.ValidID(id) {
		return nil, room.ErrRoomNotFound
	}
	return c.store.Get(ctx, id)
}

// Rooms returns every stored room, oldest first.
func (c *Coordinator) Rooms(ctx context.Context) ([]*room.Room, error) {
	return c.store.List(ctx)
}
