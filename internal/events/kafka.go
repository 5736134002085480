package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mimic/internal/config"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by room id, so every
// event of one room lands on the same partition in order.
type KafkaPublisher struct {
	w      messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher builds a publisher backed by a kafka.Writer.
//
// Precondition: cfg.Brokers and cfg.Topic must be non-empty; logger must be non-nil.
// Postcondition: Returns a publisher; no connection is made until the first Publish.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("async room event delivery failed",
					zap.Int("count", len(msgs)),
					zap.Error(err),
				)
			}
		},
	}
	return newKafkaPublisher(w, cfg.Topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, topic: topic, logger: logger}
}

// Publish encodes ev as JSON and writes it with the room id as key.
//
// Postcondition: Returns a non-nil error if encoding or the write fails.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing %s event for room %s to %s: %w", ev.Type, ev.RoomID, p.topic, err)
	}
	p.logger.Debug("room event published",
		zap.String("type", string(ev.Type)),
		zap.String("room_id", ev.RoomID),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
