package account

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/shared"
)

// Repository defines account persistence operations
type Repository interface {
	// Create inserts the account and fills in ID, Version and CreatedAt.
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByHolderIndex(ctx context.Context, holderIndex string) (*Account, error)
	// ListAll returns every account ordered by creation time ascending.
	ListAll(ctx context.Context) ([]*Account, error)

	// UpdateBalance uses optimistic locking to replace the balance ciphertext
	UpdateBalance(ctx context.Context, id int64, balanceCipher string, version int) error

	// RecordLoginFailure atomically increments the failure counter, locking the
	// account once it reaches MaxFailedAttempts, and returns the new state.
	RecordLoginFailure(ctx context.Context, id int64) (LockState, error)
	// ResetLoginFailures clears the counter of an account that is not locked.
	ResetLoginFailures(ctx context.Context, id int64) error

	// LockForUpdate acquires a pessimistic lock for balance mutation
	LockForUpdate(ctx context.Context, id int64) (*Account, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	AccountID int64
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for account: " + strconv.FormatInt(e.AccountID, 10)
}

func (e ErrConcurrentModification) Kind() shared.Kind { return shared.KindPersistence }

// ErrAccountNotFound indicates missing account. AccountID is zero for
// lookups by holder name.
type ErrAccountNotFound struct {
	AccountID int64
}

func (e ErrAccountNotFound) Error() string {
	if e.AccountID == 0 {
		return "account not found"
	}
	return "account not found: " + strconv.FormatInt(e.AccountID, 10)
}

func (e ErrAccountNotFound) Kind() shared.Kind { return shared.KindNotFound }

// Is implements the errors.Is interface for ErrAccountNotFound
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	return t.AccountID == 0 || t.AccountID == e.AccountID
}

// ErrDuplicateAccount indicates that an account already exists for the holder name
type ErrDuplicateAccount struct{}

func (e ErrDuplicateAccount) Error() string {
	return "an account already exists for this holder name"
}

func (e ErrDuplicateAccount) Kind() shared.Kind { return shared.KindDuplicateAccount }

// ErrDuplicateAccountNumber indicates an account number collision on insert
type ErrDuplicateAccountNumber struct {
	AccountNumber string
}

func (e ErrDuplicateAccountNumber) Error() string {
	return "account number already in use"
}

func (e ErrDuplicateAccountNumber) Kind() shared.Kind { return shared.KindPersistence }

// ErrAccountLocked indicates that the account is in the terminal LOCKED state
type ErrAccountLocked struct {
	// JustLocked is set when the failure being reported caused the lock.
	JustLocked bool
}

func (e ErrAccountLocked) Error() string {
	if e.JustLocked {
		return "too many failed attempts, account locked"
	}
	return "account is locked"
}

func (e ErrAccountLocked) Kind() shared.Kind { return shared.KindLockedAccount }

// Is matches any ErrAccountLocked
func (e ErrAccountLocked) Is(target error) bool {
	_, ok := target.(ErrAccountLocked)
	return ok
}

// ErrInsufficientFunds indicates a withdrawal above the current balance
type ErrInsufficientFunds struct {
	AccountID int64
}

func (e ErrInsufficientFunds) Error() string {
	return "insufficient funds for withdrawal"
}

func (e ErrInsufficientFunds) Kind() shared.Kind { return shared.KindInsufficientFunds }

// Is matches any ErrInsufficientFunds
func (e ErrInsufficientFunds) Is(target error) bool {
	_, ok := target.(ErrInsufficientFunds)
	return ok
}

// ErrInvalidCredentials indicates a wrong password on an active account
type ErrInvalidCredentials struct {
	Remaining int
}

func (e ErrInvalidCredentials) Error() string {
	return fmt.Sprintf("wrong password, %d attempts remaining", e.Remaining)
}

func (e ErrInvalidCredentials) Kind() shared.Kind { return shared.KindInvalidCredentials }

// Is matches any ErrInvalidCredentials
func (e ErrInvalidCredentials) Is(target error) bool {
	_, ok := target.(ErrInvalidCredentials)
	return ok
}
