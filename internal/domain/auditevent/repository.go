package auditevent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository persists audit events in the relational store
type Repository interface {
	Create(ctx context.Context, event *Event) error
	// GetPending returns unforwarded events that have been tried fewer than
	// maxAttempts times, oldest first.
	GetPending(ctx context.Context, limit, maxAttempts int) ([]*Event, error)
	MarkForwarded(ctx context.Context, id uuid.UUID) error
	RecordForwardFailure(ctx context.Context, id uuid.UUID, reason string) error
	WithTx(tx pgx.Tx) Repository
}

// Archive is the long-term copy of forwarded audit events
type Archive interface {
	// Save stores event; saving the same event twice is not an error.
	Save(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByAccountNumber(ctx context.Context, accountNumber string, limit, offset int) ([]*Event, error)
}

// Publisher streams audit events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// ErrEventNotFound indicates missing audit event
type ErrEventNotFound struct {
	ID uuid.UUID
}

func (e ErrEventNotFound) Error() string {
	return "audit event not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrEventNotFound
func (e ErrEventNotFound) Is(target error) bool {
	t, ok := target.(ErrEventNotFound)
	if !ok {
		return false
	}
	// If the target ID is empty, consider it a match for any ErrEventNotFound
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
