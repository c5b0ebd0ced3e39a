package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	topicProbeAttempts = 5
	topicProbeDelay    = 2 * time.Second
)

// topicConn is the part of kafka.Conn used to manage topics
type topicConn interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

// ensureTopic creates topic unless the broker already reports partitions for
// it. Partition reads are retried because a freshly started broker answers
// with errors for a while.
func ensureTopic(ctx context.Context, conn topicConn, topic kafka.TopicConfig, delay time.Duration, log *slog.Logger) error {
	if topic.NumPartitions <= 0 {
		topic.NumPartitions = 1
	}
	if topic.ReplicationFactor <= 0 {
		topic.ReplicationFactor = 1
	}

	var lastErr error
	for attempt := 1; attempt <= topicProbeAttempts; attempt++ {
		partitions, err := conn.ReadPartitions(topic.Topic)
		if err == nil && len(partitions) > 0 {
			log.Info("Kafka topic already exists", "topic", topic.Topic, "partitions", len(partitions))
			return nil
		}
		if err == nil {
			break
		}
		lastErr = err
		log.Warn("Failed to read partitions, retrying", "topic", topic.Topic, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	log.Info("Creating Kafka topic", "topic", topic.Topic, "partitions", topic.NumPartitions, "last_read_error", lastErr)
	if err := conn.CreateTopics(topic); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic.Topic, err)
	}
	return nil
}
