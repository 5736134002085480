package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mimic/internal/events"
	"github.com/cory-johannsen/mimic/internal/game/room"
)

// handleStartGame picks the actor and symbol. The requester gets its own
// view immediately; the room-wide announcement is localized per recipient
// by each connection's writer.
func (c *Coordinator) handleStartGame(ctx context.Context, sess *sessionState) error {
	if sess.roomID == "" {
		return ErrNotInRoom
	}

	r, err := c.store.Update(ctx, sess.roomID, func(r *room.Room) (bool, error) {
		if err := r.Start(c.src, c.catalog); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("starting game in room %s: %w", sess.roomID, err)
	}

	c.logger.Info("game started",
		zap.String("room_id", r.ID),
		zap.String("current_turn", r.CurrentTurn),
		zap.Int("participants", len(r.Participants)),
	)
	announce := GameStarted{
		Type:        TypeGameStarted,
		RoomID:      r.ID,
		CurrentTurn: r.CurrentTurn,
		Emoji:       r.CurrentEmoji,
	}
	c.reply(sess, announce.Localize(sess.username))
	c.broadcast(ctx, r.ID, announce)
	c.publish(ctx, events.Event{Type: events.GameStarted, RoomID: r.ID, CurrentTurn: r.CurrentTurn, Participants: r.Participants})
	return nil
}

// handleSubmitGuess evaluates a guess. Every failure is reported as an
// error-flagged guess_result to the requester only.
func (c *Coordinator) handleSubmitGuess(ctx context.Context, sess *sessionState, msg inboundMessage) error {
	guess := msg.Guess
	if guess == "" {
		c.rejectGuess(sess, guess, room.ErrEmptyGuess)
		return nil
	}
	if sess.roomID == "" {
		c.rejectGuess(sess, guess, ErrNotInRoom)
		return nil
	}

	r, err := c.store.Get(ctx, sess.roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.rejectGuess(sess, guess, err)
			return nil
		}
		return fmt.Errorf("loading room %s: %w", sess.roomID, err)
	}
	outcome, err := r.Evaluate(guess)
	if err != nil {
		c.rejectGuess(sess, guess, err)
		return nil
	}

	result := GuessResult{
		Type:    TypeGuessResult,
		Correct: outcome.Correct,
		Guess:   outcome.Guess,
	}
	var announcement string
	if outcome.Correct {
		result.CorrectEmoji = outcome.Symbol
		result.Message = "Correct!"
		announcement = fmt.Sprintf("%s guessed correctly!", sess.username)
	} else {
		result.Message = "Incorrect, try again."
		result.Hint = c.hinter.Hint(guess, outcome.Symbol)
		announcement = fmt.Sprintf("%s guessed %s", sess.username, guess)
	}

	c.logger.Debug("guess evaluated",
		zap.String("room_id", r.ID),
		zap.String("username", sess.username),
		zap.Bool("correct", outcome.Correct),
	)
	c.reply(sess, result)
	c.broadcast(ctx, r.ID, GuessSubmitted{
		Type:     TypeGuessSubmitted,
		RoomID:   r.ID,
		Username: sess.username,
		Guess:    guess,
		Correct:  outcome.Correct,
		Message:  announcement,
	})
	correct := outcome.Correct
	c.publish(ctx, events.Event{Type: events.GuessMade, RoomID: r.ID, Username: sess.username, Guess: guess, Correct: &correct})
	return nil
}

func (c *Coordinator) rejectGuess(sess *sessionState, guess string, err error) {
	text, _ := describe(err)
	c.logger.Debug("guess rejected",
		zap.String("session", sess.id),
		zap.String("room_id", sess.roomID),
		zap.Error(err),
	)
	c.reply(sess, GuessResult{
		Type:    TypeGuessResult,
		Correct: false,
		Guess:   guess,
		Message: text,
		Error:   text,
	})
}
