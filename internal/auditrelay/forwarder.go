// Package auditrelay moves audit events out of the relational store: each
// pending event is archived in MongoDB and streamed to Kafka, then marked
// forwarded. Failures are counted per event and retried on later polls.
package auditrelay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

// Forwarder delivers one event to every downstream target
type Forwarder interface {
	Forward(ctx context.Context, event *auditevent.Event) error
}

// TargetForwarder archives then publishes. Both targets tolerate the same
// event twice, so a retry after a partial failure is safe.
type TargetForwarder struct {
	archive   auditevent.Archive
	publisher auditevent.Publisher
	logger    *slog.Logger
}

// NewForwarder creates a forwarder. publisher may be nil when streaming is
// disabled.
func NewForwarder(archive auditevent.Archive, publisher auditevent.Publisher, logger *slog.Logger) *TargetForwarder {
	return &TargetForwarder{
		archive:   archive,
		publisher: publisher,
		logger:    logger,
	}
}

func (f *TargetForwarder) Forward(ctx context.Context, event *auditevent.Event) error {
	logger := f.logger.With("event_id", event.ID.String(), "action", string(event.Action))

	if err := f.archive.Save(ctx, event); err != nil {
		return fmt.Errorf("archive event %s: %w", event.ID, err)
	}
	logger.Debug("Archived audit event")

	if f.publisher == nil {
		return nil
	}
	if err := f.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	logger.Debug("Published audit event")

	return nil
}
