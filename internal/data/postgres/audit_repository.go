package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/platform/persistence"
)

// AuditRepository implements the auditevent.Repository interface for PostgreSQL
type AuditRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewAuditRepository(logger *slog.Logger, db *persistence.PostgresDB) auditevent.Repository {
	return &AuditRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *AuditRepository) WithTx(tx pgx.Tx) auditevent.Repository {
	return &AuditRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new audit event. It will be picked up by the relay.
func (r *AuditRepository) Create(ctx context.Context, event *auditevent.Event) error {
	query := `
		INSERT INTO audit_events (id, account_number, subject, action, success, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.querier.Exec(ctx, query,
		event.ID,
		event.AccountNumber,
		event.Subject,
		event.Action,
		event.Success,
		event.OccurredAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit event",
			"event_id", event.ID.String(),
			"action", string(event.Action),
			"error", err,
		)
		return fmt.Errorf("failed to create audit event: %w", err)
	}

	return nil
}

// GetPending retrieves unforwarded events in FIFO order, skipping those that
// have exhausted their retries. Rows locked by another relay are skipped.
func (r *AuditRepository) GetPending(ctx context.Context, limit, maxAttempts int) ([]*auditevent.Event, error) {
	query := `
		SELECT id, account_number, subject, action, success, occurred_at, forwarded_at, forward_attempts, COALESCE(last_error, '')
		FROM audit_events
		WHERE forwarded_at IS NULL AND forward_attempts < $1
		ORDER BY occurred_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.querier.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		r.logger.Error("Failed to get pending audit events", "error", err)
		return nil, fmt.Errorf("failed to get pending audit events: %w", err)
	}
	defer rows.Close()

	var events []*auditevent.Event
	for rows.Next() {
		var event auditevent.Event
		err := rows.Scan(
			&event.ID,
			&event.AccountNumber,
			&event.Subject,
			&event.Action,
			&event.Success,
			&event.OccurredAt,
			&event.ForwardedAt,
			&event.ForwardAttempts,
			&event.LastError,
		)
		if err != nil {
			r.logger.Error("Failed to scan audit event", "error", err)
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over audit events", "error", err)
		return nil, fmt.Errorf("error iterating over audit events: %w", err)
	}

	return events, nil
}

// MarkForwarded records that the event reached every downstream target
func (r *AuditRepository) MarkForwarded(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE audit_events
		SET forwarded_at = NOW(), last_error = NULL
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to mark audit event forwarded", "event_id", id.String(), "error", err)
		return fmt.Errorf("failed to mark audit event forwarded: %w", err)
	}

	if result.RowsAffected() == 0 {
		return auditevent.ErrEventNotFound{ID: id}
	}

	return nil
}

// RecordForwardFailure bumps the retry counter and keeps the last error text
func (r *AuditRepository) RecordForwardFailure(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE audit_events
		SET forward_attempts = forward_attempts + 1, last_error = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, reason, id)
	if err != nil {
		r.logger.Error("Failed to record audit forward failure", "event_id", id.String(), "error", err)
		return fmt.Errorf("failed to record audit forward failure: %w", err)
	}

	if result.RowsAffected() == 0 {
		return auditevent.ErrEventNotFound{ID: id}
	}

	return nil
}
