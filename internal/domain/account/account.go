package account

import (
	"time"

	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MaxFailedAttempts is the number of consecutive failed logins that locks an account.
const MaxFailedAttempts = 5

// ErrInvalidAmount rejects zero and negative deposit or withdrawal amounts.
var ErrInvalidAmount = shared.ErrValidation{Field: "amount", Reason: "must be positive"}

// Account is the persisted form of a bank account. Holder name and balance
// only ever exist here as ciphertext tokens.
type Account struct {
	ID             int64     `json:"id"`
	AccountNumber  string    `json:"account_number"`
	HolderCipher   string    `json:"-"`
	HolderIndex    string    `json:"-"`
	PasswordHash   string    `json:"-"`
	PasswordSalt   string    `json:"-"`
	BalanceCipher  string    `json:"-"`
	FailedAttempts int       `json:"failed_attempts"`
	Locked         bool      `json:"locked"`
	Version        int       `json:"version"` // For optimistic locking
	CreatedAt      time.Time `json:"created_at"`
}

// LockState returns the account's position in the login state machine.
func (a *Account) LockState() LockState {
	return LockStateOf(a.FailedAttempts, a.Locked)
}

// Status returns ACTIVE or LOCKED for display.
func (a *Account) Status() shared.AccountStatus {
	if a.LockState().IsLocked() {
		return shared.AccountStatusLocked
	}
	return shared.AccountStatusActive
}

// Snapshot is a decrypted view of an account for its own holder.
type Snapshot struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	HolderName    string          `json:"holder_name"`
	Balance       decimal.Decimal `json:"balance"`
}

// Deposit adds amount to the snapshot balance
func (s *Snapshot) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.Balance = s.Balance.Add(amount)
	return nil
}

// Withdraw subtracts amount from the snapshot balance. The balance is left
// untouched when funds are short.
func (s *Snapshot) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if !s.CanWithdraw(amount) {
		return ErrInsufficientFunds{AccountID: s.ID}
	}

	s.Balance = s.Balance.Sub(amount)
	return nil
}

// CanWithdraw checks if the balance covers amount
func (s *Snapshot) CanWithdraw(amount decimal.Decimal) bool {
	return s.Balance.GreaterThanOrEqual(amount)
}

// MaskedAccount is the administrative listing row.
type MaskedAccount struct {
	ID                  int64                `json:"id"`
	MaskedAccountNumber string               `json:"account_number"`
	MaskedHolderName    string               `json:"holder_name"`
	CreatedAt           time.Time            `json:"created_at"`
	Status              shared.AccountStatus `json:"status"`
}
