package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository manages append-only ledger persistence. There is deliberately no
// update or delete operation.
type Repository interface {
	// Append inserts entry and fills in ID and OccurredAt.
	Append(ctx context.Context, entry *Entry) error
	// ListByAccountID returns the account's entries, newest first.
	ListByAccountID(ctx context.Context, accountID int64) ([]*Entry, error)
	CountByAccountID(ctx context.Context, accountID int64) (int64, error)
	WithTx(tx pgx.Tx) Repository
}
