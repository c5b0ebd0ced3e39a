// Package consumers reads the audit event stream back from Kafka.
package consumers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/secure-banking-ledger/internal/config"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/segmentio/kafka-go"
)

// EventHandler processes one decoded audit event
type EventHandler func(ctx context.Context, event *auditevent.Event) error

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditConsumer follows the audit topic as part of a consumer group
type AuditConsumer struct {
	reader     KafkaReader
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewAuditConsumer(logger *slog.Logger, cfg *config.KafkaConfig) *AuditConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.AuditTopic,
		GroupID:     cfg.ConsumerGroup,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	return newAuditConsumer(logger, reader)
}

func newAuditConsumer(logger *slog.Logger, reader KafkaReader) *AuditConsumer {
	return &AuditConsumer{
		reader:     reader,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Consume blocks, passing each event to handler until ctx is cancelled.
// Offsets are committed only after the handler succeeds; messages that do
// not decode are logged and committed so they cannot stall the group.
func (c *AuditConsumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping audit consumer")
				return nil
			}
			c.logger.Error("Failed to fetch audit event from Kafka", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		var event auditevent.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("Skipping undecodable audit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			c.commit(ctx, msg)
			continue
		}

		if err := handler(ctx, &event); err != nil {
			c.logger.Error("Failed to handle audit event, will not commit offset",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_id", event.ID.String(),
				"error", err,
			)
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *AuditConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit audit message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

func (c *AuditConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
