// Package kafka publishes claim events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/event"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config holds producer settings
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// MessageWriter is the part of kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends claim events keyed by claim ID, so events of one claim stay ordered
type Producer struct {
	writer MessageWriter
	logger *zap.Logger
}

var _ port.EventSink = (*Producer)(nil)

// NewProducer creates a producer writing to cfg.Topic
func NewProducer(cfg Config, logger *zap.Logger) *Producer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: batchTimeout,
	}, logger)
}

// NewProducerWithWriter creates a producer on an existing writer
func NewProducerWithWriter(w MessageWriter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, logger: logger}
}

// Name implements port.EventSink
func (p *Producer) Name() string { return "kafka" }

// Send implements port.EventSink
func (p *Producer) Send(ctx context.Context, evt *event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.ClaimID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type.String())},
			{Key: "recipient", Value: []byte(evt.Recipient)},
		},
		Time: evt.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", evt.ID),
			zap.String("claim_id", evt.ClaimID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()))
	return nil
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
