package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/platform/persistence"
)

// TransactionRepository implements the ledger.Repository interface for PostgreSQL.
// It only ever inserts and reads; the table rejects UPDATE and DELETE.
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *TransactionRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Append inserts an immutable ledger row. A reference to a missing account
// maps to ErrAccountNotFound.
func (r *TransactionRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO transactions (account_id, type, amount_cipher, description_cipher)
		VALUES ($1, $2, $3, $4)
		RETURNING id, occurred_at
	`

	err := r.querier.QueryRow(ctx, query,
		entry.AccountID,
		entry.Type,
		entry.AmountCipher,
		entry.DescriptionCipher,
	).Scan(&entry.ID, &entry.OccurredAt)
	if err != nil {
		if persistence.ForeignKeyViolation(err) {
			return account.ErrAccountNotFound{AccountID: entry.AccountID}
		}
		r.logger.Error("Failed to append ledger entry",
			"account_id", entry.AccountID,
			"type", string(entry.Type),
			"error", err,
		)
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// ListByAccountID returns all entries for an account, newest first
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*ledger.Entry, error) {
	query := `
		SELECT id, account_id, type, amount_cipher, description_cipher, occurred_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY occurred_at DESC, id DESC
	`

	rows, err := r.querier.Query(ctx, query, accountID)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*ledger.Entry, 0)
	for rows.Next() {
		var entry ledger.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Type,
			&entry.AmountCipher,
			&entry.DescriptionCipher,
			&entry.OccurredAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger entries", "error", err)
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}

	return entries, nil
}

func (r *TransactionRepository) CountByAccountID(ctx context.Context, accountID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE account_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "account_id", accountID, "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}
