package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/secure-banking-ledger/internal/config"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/segmentio/kafka-go"
)

var _ auditevent.Publisher = (*AuditEventProducer)(nil)

// AuditEventProducer streams audit events keyed by event ID. Writes are
// synchronous so the relay only marks an event forwarded once the broker
// has acknowledged it.
type AuditEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// Creates a new audit event producer and ensures the topic exists
func NewAuditEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*AuditEventProducer, error) {
	if cfg.AuditTopic == "" {
		return nil, fmt.Errorf("kafka audit topic is not configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for audit producer: %w", err)
	}
	defer conn.Close()

	err = ensureTopic(ctx, conn, kafka.TopicConfig{
		Topic:             cfg.AuditTopic,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}, topicProbeDelay, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure audit topic %s exists: %w", cfg.AuditTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
	}

	return newAuditEventProducer(logger, writer, cfg.AuditTopic), nil
}

func newAuditEventProducer(logger *slog.Logger, writer KafkaWriter, topic string) *AuditEventProducer {
	return &AuditEventProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Publish writes event to the audit topic, keyed by event ID.
func (p *AuditEventProducer) Publish(ctx context.Context, event *auditevent.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := event.ID.String()
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "audit-action", Value: []byte(event.Action)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish audit event",
			"topic", p.topic,
			"event_id", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish audit event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published audit event",
		"topic", p.topic,
		"event_id", key,
		"action", string(event.Action),
	)
	return nil
}

func (p *AuditEventProducer) Close() error {
	p.logger.Info("Closing audit event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close audit kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
