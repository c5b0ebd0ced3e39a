// Package securestore keeps accounts and their ledger. Holder names,
// balances, amounts and descriptions only reach the repositories as
// ciphertext; every balance change happens under a row lock together with
// its ledger entry.
package securestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/secure-banking-ledger/internal/audit"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMinPasswordLength applies when Options leaves it unset.
	DefaultMinPasswordLength = 6

	initialBalanceDescription = "Initial balance"
	maxAccountNumberAttempts  = 5
)

type Options struct {
	MinPasswordLength int
}

// Store is safe for concurrent use.
type Store struct {
	accounts account.Repository
	entries  ledger.Repository
	uow      UnitOfWork
	crypto   *crypto.Service
	audit    AuditRecorder
	logger   *slog.Logger

	minPasswordLength int
}

func New(
	accounts account.Repository,
	entries ledger.Repository,
	uow UnitOfWork,
	cryptoService *crypto.Service,
	auditRecorder AuditRecorder,
	logger *slog.Logger,
	opts Options,
) *Store {
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = DefaultMinPasswordLength
	}
	return &Store{
		accounts:          accounts,
		entries:           entries,
		uow:               uow,
		crypto:            cryptoService,
		audit:             auditRecorder,
		logger:            logger,
		minPasswordLength: opts.MinPasswordLength,
	}
}

// CreateAccount opens an account and, for a positive initial balance, books
// the matching DEPOSIT in the same transaction.
func (s *Store) CreateAccount(ctx context.Context, name, password string, initialBalance decimal.Decimal) (int64, string, error) {
	holder, err := s.crypto.Sanitize(name, crypto.InputName)
	if err != nil {
		s.record(ctx, "", name, auditevent.ActionAccountCreateFailed, false)
		return 0, "", err
	}

	if err := s.checkPassword(password); err != nil {
		s.record(ctx, "", holder, auditevent.ActionAccountCreateFailed, false)
		return 0, "", err
	}

	if err := s.crypto.CheckAmount(initialBalance); err != nil {
		s.record(ctx, "", holder, auditevent.ActionAccountCreateFailed, false)
		return 0, "", err
	}

	acc, err := s.createAccount(ctx, holder, password, initialBalance)
	if err != nil {
		action := auditevent.ActionAccountCreateFailed
		if errors.Is(err, account.ErrDuplicateAccount{}) {
			action = auditevent.ActionAccountDuplicate
		}
		s.record(ctx, "", holder, action, false)
		return 0, "", err
	}

	s.logger.Info("Account created", "account_id", acc.ID, "account_number", crypto.Mask(acc.AccountNumber, crypto.MaskAccount))
	s.record(ctx, acc.AccountNumber, holder, auditevent.ActionAccountCreated, true)
	return acc.ID, acc.AccountNumber, nil
}

func (s *Store) createAccount(ctx context.Context, holder, password string, initialBalance decimal.Decimal) (*account.Account, error) {
	existing, err := s.FindByHolder(ctx, holder)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, account.ErrDuplicateAccount{}
	}

	hash, salt, err := s.crypto.HashPassword(password, "")
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	holderCipher, err := s.crypto.EncryptField(holder)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt holder name: %w", err)
	}
	balanceCipher, err := s.crypto.EncryptField(initialBalance.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt balance: %w", err)
	}

	var initialEntry *ledger.Entry
	if initialBalance.IsPositive() {
		initialEntry, err = s.sealEntry(0, shared.TransactionTypeDeposit, initialBalance, initialBalanceDescription)
		if err != nil {
			return nil, err
		}
	}

	for attempt := 1; attempt <= maxAccountNumberAttempts; attempt++ {
		number, err := s.crypto.GenerateAccountNumber()
		if err != nil {
			return nil, fmt.Errorf("failed to generate account number: %w", err)
		}

		acc := &account.Account{
			AccountNumber: number,
			HolderCipher:  holderCipher,
			HolderIndex:   s.crypto.BlindIndex(holder),
			PasswordHash:  hash,
			PasswordSalt:  salt,
			BalanceCipher: balanceCipher,
		}

		err = s.uow.InTx(ctx, func(accounts account.Repository, entries ledger.Repository) error {
			if err := accounts.Create(ctx, acc); err != nil {
				return err
			}
			if initialEntry == nil {
				return nil
			}
			entry := *initialEntry
			entry.AccountID = acc.ID
			return entries.Append(ctx, &entry)
		})
		if err == nil {
			return acc, nil
		}

		var collision account.ErrDuplicateAccountNumber
		if !errors.As(err, &collision) {
			return nil, shared.NewPersistenceError("create account", err)
		}
		s.logger.Warn("Account number collision, drawing a new one", "attempt", attempt)
	}

	return nil, shared.ErrPersistence{
		Op:  "create account",
		Err: fmt.Errorf("no free account number after %d attempts", maxAccountNumberAttempts),
	}
}

func (s *Store) checkPassword(password string) error {
	if password == "" {
		return shared.ErrValidation{Field: "password", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return shared.ErrValidation{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", s.minPasswordLength)}
	}
	return nil
}

// FindByHolder looks the holder up through the blind index and confirms the
// match by decrypting the stored name. Returns nil, nil when there is none.
func (s *Store) FindByHolder(ctx context.Context, name string) (*account.Account, error) {
	acc, err := s.accounts.GetByHolderIndex(ctx, s.crypto.BlindIndex(name))
	if err != nil {
		return nil, shared.NewPersistenceError("find account by holder", err)
	}
	if acc == nil {
		return nil, nil
	}

	stored, err := s.crypto.DecryptField(acc.HolderCipher)
	if err != nil {
		return nil, err
	}
	if crypto.NormalizeName(stored) != crypto.NormalizeName(name) {
		s.logger.Warn("Holder index matched a different name", "account_id", acc.ID)
		return nil, nil
	}

	return acc, nil
}

// GetAccountByID returns the decrypted snapshot, or nil, nil if no account
// has that ID.
func (s *Store) GetAccountByID(ctx context.Context, id int64) (*account.Snapshot, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			return nil, nil
		}
		return nil, shared.NewPersistenceError("get account", err)
	}

	return s.Snapshot(acc)
}

// Snapshot decrypts the holder name and balance of acc.
func (s *Store) Snapshot(acc *account.Account) (*account.Snapshot, error) {
	holder, err := s.crypto.DecryptField(acc.HolderCipher)
	if err != nil {
		return nil, err
	}
	balance, err := s.decryptAmount(acc.BalanceCipher)
	if err != nil {
		return nil, err
	}

	return &account.Snapshot{
		ID:            acc.ID,
		AccountNumber: acc.AccountNumber,
		HolderName:    holder,
		Balance:       balance,
	}, nil
}

// ListAccountsMasked returns every account, oldest first, with number and
// holder redacted.
func (s *Store) ListAccountsMasked(ctx context.Context) ([]account.MaskedAccount, error) {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return nil, shared.NewPersistenceError("list accounts", err)
	}

	masked := make([]account.MaskedAccount, 0, len(accounts))
	for _, acc := range accounts {
		holder, err := s.crypto.DecryptField(acc.HolderCipher)
		if err != nil {
			return nil, err
		}
		masked = append(masked, account.MaskedAccount{
			ID:                  acc.ID,
			MaskedAccountNumber: crypto.Mask(acc.AccountNumber, crypto.MaskAccount),
			MaskedHolderName:    crypto.Mask(holder, crypto.MaskName),
			CreatedAt:           acc.CreatedAt,
			Status:              acc.Status(),
		})
	}

	return masked, nil
}

// RecordLoginFailure and ResetLoginFailures expose the atomic counter updates
// to the authentication engine.
func (s *Store) RecordLoginFailure(ctx context.Context, id int64) (account.LockState, error) {
	state, err := s.accounts.RecordLoginFailure(ctx, id)
	if err != nil {
		return account.LockState{}, shared.NewPersistenceError("record login failure", err)
	}
	return state, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, id int64) error {
	if err := s.accounts.ResetLoginFailures(ctx, id); err != nil {
		return shared.NewPersistenceError("reset login failures", err)
	}
	return nil
}

func (s *Store) decryptAmount(token string) (decimal.Decimal, error) {
	plain, err := s.crypto.DecryptField(token)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := decimal.NewFromString(plain)
	if err != nil {
		return decimal.Zero, crypto.ErrDecryption{Reason: "stored amount is not a number"}
	}
	return amount, nil
}

func (s *Store) record(ctx context.Context, accountNumber, subject string, action auditevent.Action, success bool) {
	s.audit.Record(ctx, audit.Entry{
		AccountNumber: accountNumber,
		Subject:       subject,
		Action:        action,
		Success:       success,
	})
}
