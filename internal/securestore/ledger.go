package securestore

import (
	"context"
	"fmt"

	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Deposit credits amount and books a DEPOSIT entry. Returns the new balance.
func (s *Store) Deposit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.apply(ctx, id, shared.TransactionTypeDeposit, amount)
}

// Withdraw debits amount and books a WITHDRAWAL entry. An amount above the
// balance fails with ErrInsufficientFunds and changes nothing.
func (s *Store) Withdraw(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.apply(ctx, id, shared.TransactionTypeWithdrawal, amount)
}

func (s *Store) apply(ctx context.Context, id int64, txType shared.TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	success, failure := auditevent.ActionDeposit, auditevent.ActionDepositFailed
	if txType == shared.TransactionTypeWithdrawal {
		success, failure = auditevent.ActionWithdrawal, auditevent.ActionWithdrawalRejected
	}

	var snapshot *account.Snapshot
	subject := func() (string, string) {
		if snapshot == nil {
			return "", "unknown"
		}
		return snapshot.AccountNumber, snapshot.HolderName
	}

	if err := s.checkTransactionAmount(amount); err != nil {
		number, holder := subject()
		s.record(ctx, number, holder, failure, false)
		return decimal.Zero, err
	}

	entry, err := s.sealEntry(id, txType, amount, "")
	if err != nil {
		return decimal.Zero, err
	}

	err = s.uow.InTx(ctx, func(accounts account.Repository, entries ledger.Repository) error {
		acc, err := accounts.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err = s.Snapshot(acc)
		if err != nil {
			return err
		}
		if acc.LockState().IsLocked() {
			return account.ErrAccountLocked{}
		}

		if txType == shared.TransactionTypeWithdrawal {
			err = snapshot.Withdraw(amount)
		} else {
			err = snapshot.Deposit(amount)
		}
		if err != nil {
			return err
		}

		balanceCipher, err := s.crypto.EncryptField(snapshot.Balance.String())
		if err != nil {
			return fmt.Errorf("failed to encrypt balance: %w", err)
		}
		if err := accounts.UpdateBalance(ctx, acc.ID, balanceCipher, acc.Version); err != nil {
			return err
		}

		return entries.Append(ctx, entry)
	})

	number, holder := subject()
	if err != nil {
		s.record(ctx, number, holder, failure, false)
		return decimal.Zero, shared.NewPersistenceError(string(txType), err)
	}

	s.logger.Info("Transaction booked",
		"account_id", id,
		"type", string(txType),
		"entry_id", entry.ID,
	)
	s.record(ctx, number, holder, success, true)
	return snapshot.Balance, nil
}

// UpdateBalance overwrites the balance under a row lock, bumping the version.
// It books no ledger entry.
func (s *Store) UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return shared.ErrValidation{Field: "balance", Reason: "must not be negative"}
	}

	balanceCipher, err := s.crypto.EncryptField(newBalance.String())
	if err != nil {
		return fmt.Errorf("failed to encrypt balance: %w", err)
	}

	err = s.uow.InTx(ctx, func(accounts account.Repository, _ ledger.Repository) error {
		acc, err := accounts.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return accounts.UpdateBalance(ctx, acc.ID, balanceCipher, acc.Version)
	})
	if err != nil {
		return shared.NewPersistenceError("update balance", err)
	}
	return nil
}

// AppendTransaction books an immutable ledger entry without touching the
// balance. The description is optional.
func (s *Store) AppendTransaction(ctx context.Context, id int64, txType shared.TransactionType, amount decimal.Decimal, description string) (*ledger.View, error) {
	if !txType.Valid() {
		return nil, shared.ErrValidation{Field: "type", Reason: "unknown transaction type " + string(txType)}
	}
	if err := s.checkTransactionAmount(amount); err != nil {
		return nil, err
	}
	if description != "" {
		clean, err := s.crypto.Sanitize(description, crypto.InputText)
		if err != nil {
			return nil, err
		}
		description = clean
	}

	entry, err := s.sealEntry(id, txType, amount, description)
	if err != nil {
		return nil, err
	}
	if err := s.entries.Append(ctx, entry); err != nil {
		return nil, shared.NewPersistenceError("append transaction", err)
	}

	return &ledger.View{
		ID:          entry.ID,
		Type:        entry.Type,
		Amount:      amount,
		Description: description,
		OccurredAt:  entry.OccurredAt,
	}, nil
}

// ListTransactions returns the decrypted ledger of an account, newest first.
func (s *Store) ListTransactions(ctx context.Context, id int64) ([]ledger.View, error) {
	entries, err := s.entries.ListByAccountID(ctx, id)
	if err != nil {
		return nil, shared.NewPersistenceError("list transactions", err)
	}

	views := make([]ledger.View, 0, len(entries))
	for _, entry := range entries {
		amount, err := s.decryptAmount(entry.AmountCipher)
		if err != nil {
			return nil, err
		}

		var description string
		if entry.DescriptionCipher != nil {
			description, err = s.crypto.DecryptField(*entry.DescriptionCipher)
			if err != nil {
				return nil, err
			}
		}

		views = append(views, ledger.View{
			ID:          entry.ID,
			Type:        entry.Type,
			Amount:      amount,
			Description: description,
			OccurredAt:  entry.OccurredAt,
		})
	}

	return views, nil
}

func (s *Store) checkTransactionAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.ErrValidation{Field: string(crypto.InputAmount), Reason: "must be greater than zero"}
	}
	return s.crypto.CheckAmount(amount)
}

// sealEntry builds a ledger entry with amount and description encrypted.
func (s *Store) sealEntry(accountID int64, txType shared.TransactionType, amount decimal.Decimal, description string) (*ledger.Entry, error) {
	amountCipher, err := s.crypto.EncryptField(amount.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt amount: %w", err)
	}

	entry := &ledger.Entry{
		AccountID:    accountID,
		Type:         txType,
		AmountCipher: amountCipher,
	}
	if description != "" {
		descriptionCipher, err := s.crypto.EncryptField(description)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt description: %w", err)
		}
		entry.DescriptionCipher = &descriptionCipher
	}

	return entry, nil
}
