package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(number, index string) *account.Account {
	return &account.Account{AccountNumber: number, HolderIndex: index, HolderCipher: "h", BalanceCipher: "b"}
}

func TestStore_AccountConstraints(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Accounts()

	first := newAccount("00000001", "idx-a")
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, 1, first.Version)

	assert.ErrorIs(t, repo.Create(ctx, newAccount("00000002", "idx-a")), account.ErrDuplicateAccount{})

	var collision account.ErrDuplicateAccountNumber
	assert.ErrorAs(t, repo.Create(ctx, newAccount("00000001", "idx-b")), &collision)

	found, err := repo.GetByHolderIndex(ctx, "idx-a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	missing, err := repo.GetByHolderIndex(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_UpdateBalanceChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Accounts()
	acc := newAccount("00000001", "idx")
	require.NoError(t, repo.Create(ctx, acc))

	require.NoError(t, repo.UpdateBalance(ctx, acc.ID, "b2", 1))
	err := repo.UpdateBalance(ctx, acc.ID, "b3", 1)
	assert.ErrorAs(t, err, &account.ErrConcurrentModification{})

	stored, err := repo.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "b2", stored.BalanceCipher)
	assert.Equal(t, 2, stored.Version)
}

func TestStore_LoginCounters(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Accounts()
	acc := newAccount("00000001", "idx")
	require.NoError(t, repo.Create(ctx, acc))

	for i := 1; i < account.MaxFailedAttempts; i++ {
		state, err := repo.RecordLoginFailure(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, i, state.Attempts)
	}
	state, err := repo.RecordLoginFailure(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, state.IsLocked())

	assert.ErrorIs(t, repo.ResetLoginFailures(ctx, acc.ID), account.ErrAccountLocked{})

	state, err = repo.RecordLoginFailure(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, state.IsLocked())
}

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	acc := newAccount("00000001", "idx")
	require.NoError(t, store.Accounts().Create(ctx, acc))

	boom := errors.New("boom")
	err := store.InTx(ctx, func(accounts account.Repository, entries ledger.Repository) error {
		require.NoError(t, accounts.UpdateBalance(ctx, acc.ID, "b2", 1))
		require.NoError(t, entries.Append(ctx, &ledger.Entry{AccountID: acc.ID, Type: shared.TransactionTypeDeposit, AmountCipher: "a"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := store.Accounts().GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", stored.BalanceCipher)
	count, err := store.Ledger().CountByAccountID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_InTxRollbackKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	acc := newAccount("00000001", "idx")
	require.NoError(t, store.Accounts().Create(ctx, acc))

	boom := errors.New("boom")
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.InTx(ctx, func(accounts account.Repository, entries ledger.Repository) error {
			if err := accounts.UpdateBalance(ctx, acc.ID, "b2", 1); err != nil {
				return err
			}
			if err := entries.Append(ctx, &ledger.Entry{AccountID: acc.ID, Type: shared.TransactionTypeWithdrawal, AmountCipher: "a"}); err != nil {
				return err
			}
			close(inside)
			<-release
			return boom
		})
	}()

	<-inside
	state, err := store.Accounts().RecordLoginFailure(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Attempts)
	require.NoError(t, store.AuditEvents().Create(ctx, auditevent.NewEvent("00000001", "a", auditevent.ActionLoginWrongPassword, false)))
	close(release)
	assert.ErrorIs(t, <-done, boom)

	stored, err := store.Accounts().GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedAttempts)
	assert.False(t, stored.Locked)
	assert.Equal(t, "b", stored.BalanceCipher)
	assert.Equal(t, 1, stored.Version)

	count, err := store.Ledger().CountByAccountID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, store.AuditEventsSnapshot(), 1)
}

func TestStore_InTxRollbackReleasesIDs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.InTx(ctx, func(accounts account.Repository, _ ledger.Repository) error {
		require.NoError(t, accounts.Create(ctx, newAccount("00000001", "idx-a")))
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = store.Accounts().GetByID(ctx, 1)
	assert.ErrorIs(t, err, account.ErrAccountNotFound{AccountID: 1})

	acc := newAccount("00000001", "idx-a")
	require.NoError(t, store.Accounts().Create(ctx, acc))
	assert.Equal(t, int64(1), acc.ID)
}

func TestStore_LedgerOrderingAndForeignKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	acc := newAccount("00000001", "idx")
	require.NoError(t, store.Accounts().Create(ctx, acc))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Ledger().Append(ctx, &ledger.Entry{AccountID: acc.ID, Type: shared.TransactionTypeDeposit, AmountCipher: "a"}))
	}
	entries, err := store.Ledger().ListByAccountID(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{entries[0].ID, entries[1].ID, entries[2].ID})

	err = store.Ledger().Append(ctx, &ledger.Entry{AccountID: 99, Type: shared.TransactionTypeDeposit})
	assert.ErrorIs(t, err, account.ErrAccountNotFound{AccountID: 99})
}

func TestStore_AuditPending(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.AuditEvents()

	first := auditevent.NewEvent("", "a", auditevent.ActionDeposit, true)
	second := auditevent.NewEvent("", "b", auditevent.ActionDeposit, true)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.RecordForwardFailure(ctx, first.ID, "down"))
	require.NoError(t, repo.MarkForwarded(ctx, second.ID))

	pending, err := repo.GetPending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].ForwardAttempts)

	pending, err = repo.GetPending(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_FailOn(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("disk gone")

	store.FailOn(OpListAccounts, boom)
	_, err := store.Accounts().ListAll(ctx)
	assert.ErrorIs(t, err, boom)

	store.FailOn(OpListAccounts, nil)
	_, err = store.Accounts().ListAll(ctx)
	assert.NoError(t, err)
}
