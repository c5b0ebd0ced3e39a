// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// mapping constraint violations onto domain errors.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/platform/persistence"
)

// Constraint names from migrations/postgres
const (
	constraintHolderIndex   = "accounts_holder_index_key"
	constraintAccountNumber = "accounts_account_number_key"
)

const accountColumns = `id, account_number, holder_cipher, holder_index, password_hash, password_salt,
		balance_cipher, failed_attempts, locked, version, created_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx, so several calls commit or roll
// back together.
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a new account. A clash on the holder blind index maps to
// ErrDuplicateAccount; a clash on the account number maps to
// ErrDuplicateAccountNumber so the caller can draw a new number.
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO accounts (account_number, holder_cipher, holder_index, password_hash, password_salt, balance_cipher)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, failed_attempts, locked, version, created_at
	`

	err := r.querier.QueryRow(ctx, query,
		acc.AccountNumber,
		acc.HolderCipher,
		acc.HolderIndex,
		acc.PasswordHash,
		acc.PasswordSalt,
		acc.BalanceCipher,
	).Scan(&acc.ID, &acc.FailedAttempts, &acc.Locked, &acc.Version, &acc.CreatedAt)
	if err != nil {
		if constraint, ok := persistence.UniqueViolation(err); ok {
			switch constraint {
			case constraintHolderIndex:
				return account.ErrDuplicateAccount{}
			case constraintAccountNumber:
				return account.ErrDuplicateAccountNumber{AccountNumber: acc.AccountNumber}
			}
		}
		r.logger.Error("Failed to create account", "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// GetByHolderIndex retrieves the account whose holder name has the given
// blind index. Returns nil, nil when none exists.
func (r *AccountRepository) GetByHolderIndex(ctx context.Context, holderIndex string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE holder_index = $1
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, holderIndex))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get account by holder index", "error", err)
		return nil, fmt.Errorf("failed to get account by holder index: %w", err)
	}

	return acc, nil
}

// ListAll returns every account, oldest first
func (r *AccountRepository) ListAll(ctx context.Context) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list accounts", "error", err)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			r.logger.Error("Failed to scan account", "error", err)
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over accounts", "error", err)
		return nil, fmt.Errorf("error iterating over accounts: %w", err)
	}

	return accounts, nil
}

// UpdateBalance replaces the balance ciphertext using optimistic locking.
// Returns ErrConcurrentModification if the version moved since the read.
func (r *AccountRepository) UpdateBalance(ctx context.Context, id int64, balanceCipher string, version int) error {
	query := `
		UPDATE accounts
		SET balance_cipher = $1, version = version + 1
		WHERE id = $2 AND version = $3
	`

	result, err := r.querier.Exec(ctx, query, balanceCipher, id, version)
	if err != nil {
		r.logger.Error("Failed to update account balance", "id", id, "error", err)
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrConcurrentModification{AccountID: id}
	}

	return nil
}

// RecordLoginFailure increments the failure counter in a single statement
// and sets the locked flag when the threshold is reached.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id int64) (account.LockState, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = LEAST(failed_attempts + 1, $2),
		    locked = failed_attempts + 1 >= $2
		WHERE id = $1 AND NOT locked
		RETURNING failed_attempts, locked
	`

	var attempts int
	var locked bool
	err := r.querier.QueryRow(ctx, query, id, account.MaxFailedAttempts).Scan(&attempts, &locked)
	if err == nil {
		return account.LockStateOf(attempts, locked), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to record login failure", "id", id, "error", err)
		return account.LockState{}, fmt.Errorf("failed to record login failure: %w", err)
	}

	// Nothing updated: the account is already locked or does not exist.
	acc, err := r.GetByID(ctx, id)
	if err != nil {
		return account.LockState{}, err
	}
	return acc.LockState(), nil
}

// ResetLoginFailures clears the failure counter. A locked account is left
// untouched and reported as ErrAccountLocked.
func (r *AccountRepository) ResetLoginFailures(ctx context.Context, id int64) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0
		WHERE id = $1 AND NOT locked
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to reset login failures", "id", id, "error", err)
		return fmt.Errorf("failed to reset login failures: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrAccountLocked{}
	}

	return nil
}

// LockForUpdate obtains a row lock on the account and returns its current state.
// Must be used inside a transaction.
func (r *AccountRepository) LockForUpdate(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to lock account for update", "id", id, "error", err)
		return nil, fmt.Errorf("failed to lock account for update: %w", err)
	}

	return acc, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID,
		&acc.AccountNumber,
		&acc.HolderCipher,
		&acc.HolderIndex,
		&acc.PasswordHash,
		&acc.PasswordSalt,
		&acc.BalanceCipher,
		&acc.FailedAttempts,
		&acc.Locked,
		&acc.Version,
		&acc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
