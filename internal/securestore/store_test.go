package securestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/secure-banking-ledger/internal/audit"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/data/memory"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *Store
	mem   *memory.Store
}

func newCryptoService(t *testing.T, fill byte) *crypto.Service {
	t.Helper()
	svc, err := crypto.NewService(
		crypto.NewStaticKeyStore(bytes.Repeat([]byte{fill}, crypto.KeySize)),
		crypto.Options{PBKDF2Iterations: 1000},
	)
	require.NoError(t, err)
	return svc
}

func newStoreOver(t *testing.T, mem *memory.Store, fill byte) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewLogger(logger, nil).AddSink(audit.NewRepositorySink(mem.AuditEvents()))
	return New(mem.Accounts(), mem.Ledger(), mem, newCryptoService(t, fill), recorder, logger, Options{})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewStore()
	return &fixture{store: newStoreOver(t, mem, 7), mem: mem}
}

func (f *fixture) actions() []auditevent.Action {
	var actions []auditevent.Action
	for _, e := range f.mem.AuditEventsSnapshot() {
		actions = append(actions, e.Action)
	}
	return actions
}

func (f *fixture) lastEvent(t *testing.T) auditevent.Event {
	t.Helper()
	events := f.mem.AuditEventsSnapshot()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestStore_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("with initial balance", func(t *testing.T) {
		f := newFixture(t)

		id, number, err := f.store.CreateAccount(ctx, "  Ana Souza ", "abcdef1", dec("100.0"))
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{8}$`, number)

		snapshot, err := f.store.GetAccountByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Equal(t, "Ana Souza", snapshot.HolderName)
		assert.Equal(t, number, snapshot.AccountNumber)
		assert.True(t, dec("100").Equal(snapshot.Balance))

		history, err := f.store.ListTransactions(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, shared.TransactionTypeDeposit, history[0].Type)
		assert.True(t, dec("100").Equal(history[0].Amount))
		assert.Equal(t, "Initial balance", history[0].Description)

		event := f.lastEvent(t)
		assert.Equal(t, auditevent.ActionAccountCreated, event.Action)
		assert.True(t, event.Success)
		assert.Equal(t, "Ana S****", event.Subject)
		require.NotNil(t, event.AccountNumber)
		assert.Equal(t, number, *event.AccountNumber)
	})

	t.Run("stored fields are ciphertext", func(t *testing.T) {
		f := newFixture(t)

		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("10"))
		require.NoError(t, err)

		acc, err := f.mem.Accounts().GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(acc.HolderCipher, crypto.TokenPrefix))
		assert.True(t, strings.HasPrefix(acc.BalanceCipher, crypto.TokenPrefix))
		assert.NotEqual(t, "10", acc.BalanceCipher)
		assert.NotEqual(t, "abcdef1", acc.PasswordHash)
		assert.Len(t, acc.PasswordSalt, 64)
	})

	t.Run("zero initial balance books nothing", func(t *testing.T) {
		f := newFixture(t)

		id, _, err := f.store.CreateAccount(ctx, "Bruno Lima", "secret99", decimal.Zero)
		require.NoError(t, err)

		history, err := f.store.ListTransactions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("duplicate holder name variants", func(t *testing.T) {
		f := newFixture(t)

		_, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("1"))
		require.NoError(t, err)

		_, _, err = f.store.CreateAccount(ctx, "ana   souza", "other12", dec("1"))
		assert.ErrorIs(t, err, account.ErrDuplicateAccount{})
		assert.Equal(t, shared.KindDuplicateAccount, shared.KindOf(err))
		assert.Equal(t, auditevent.ActionAccountDuplicate, f.lastEvent(t).Action)

		accounts, err := f.store.ListAccountsMasked(ctx)
		require.NoError(t, err)
		assert.Len(t, accounts, 1)
	})

	t.Run("concurrent creators with one name", func(t *testing.T) {
		f := newFixture(t)

		const creators = 8
		var wg sync.WaitGroup
		errs := make([]error, creators)
		for i := 0; i < creators; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = f.store.CreateAccount(ctx, "Maria Lima", "abcdef1", dec("5"))
			}(i)
		}
		wg.Wait()

		var created int
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, account.ErrDuplicateAccount{})
		}
		assert.Equal(t, 1, created)
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			name     string
			holder   string
			password string
			balance  decimal.Decimal
		}{
			{"empty name", "   ", "abcdef1", decimal.Zero},
			{"unsafe name", "Robert'); DROP TABLE accounts", "abcdef1", decimal.Zero},
			{"digits in name", "Ana 2", "abcdef1", decimal.Zero},
			{"short password", "Ana Souza", "abc", decimal.Zero},
			{"empty password", "Ana Souza", "", decimal.Zero},
			{"negative balance", "Ana Souza", "abcdef1", dec("-1")},
			{"balance over limit", "Ana Souza", "abcdef1", dec("1000000.01")},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)

				_, _, err := f.store.CreateAccount(ctx, tt.holder, tt.password, tt.balance)
				assert.ErrorIs(t, err, shared.ErrValidation{})
				assert.Equal(t, shared.KindValidation, shared.KindOf(err))
				assert.Equal(t, []auditevent.Action{auditevent.ActionAccountCreateFailed}, f.actions())
			})
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t)
		f.mem.FailOn(memory.OpCreateAccount, errors.New("connection reset"))

		_, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("1"))
		assert.Equal(t, shared.KindPersistence, shared.KindOf(err))
		assert.ErrorContains(t, err, "connection reset")
		assert.Equal(t, auditevent.ActionAccountCreateFailed, f.lastEvent(t).Action)
	})

	t.Run("failed initial deposit rolls back the account", func(t *testing.T) {
		f := newFixture(t)
		f.mem.FailOn(memory.OpAppendEntry, errors.New("disk full"))

		_, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("50"))
		assert.Equal(t, shared.KindPersistence, shared.KindOf(err))

		f.mem.FailOn(memory.OpAppendEntry, nil)
		accounts, err := f.store.ListAccountsMasked(ctx)
		require.NoError(t, err)
		assert.Empty(t, accounts)
	})
}

func TestStore_GetAccountByID(t *testing.T) {
	ctx := context.Background()

	t.Run("missing account", func(t *testing.T) {
		f := newFixture(t)

		snapshot, err := f.store.GetAccountByID(ctx, 404)
		assert.NoError(t, err)
		assert.Nil(t, snapshot)
	})

	t.Run("foreign key material", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("1"))
		require.NoError(t, err)

		other := newStoreOver(t, f.mem, 9)
		snapshot, err := other.GetAccountByID(ctx, id)
		assert.Nil(t, snapshot)
		assert.ErrorIs(t, err, crypto.ErrDecryption{})
		assert.Equal(t, shared.KindDecryption, shared.KindOf(err))
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t)
		f.mem.FailOn(memory.OpGetAccount, errors.New("timeout"))

		_, err := f.store.GetAccountByID(ctx, 1)
		assert.ErrorIs(t, err, shared.ErrPersistence{})
	})
}

func TestStore_BalanceConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	initial := dec("100.00")
	id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", initial)
	require.NoError(t, err)

	deposits := []string{"10.50", "0.01", "250", "999999.99"}
	withdrawals := []string{"60.51", "0.01", "1000000"}

	expected := initial
	for _, d := range deposits {
		balance, err := f.store.Deposit(ctx, id, dec(d))
		require.NoError(t, err)
		expected = expected.Add(dec(d))
		assert.True(t, expected.Equal(balance), "after deposit %s", d)
	}
	for _, w := range withdrawals {
		balance, err := f.store.Withdraw(ctx, id, dec(w))
		require.NoError(t, err)
		expected = expected.Sub(dec(w))
		assert.True(t, expected.Equal(balance), "after withdrawal %s", w)
	}

	snapshot, err := f.store.GetAccountByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, expected.Equal(snapshot.Balance), "got %s want %s", snapshot.Balance, expected)

	history, err := f.store.ListTransactions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, len(deposits)+len(withdrawals)+1)

	// newest first
	assert.Equal(t, shared.TransactionTypeWithdrawal, history[0].Type)
	assert.True(t, dec("1000000").Equal(history[0].Amount))
	assert.Equal(t, "Initial balance", history[len(history)-1].Description)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].OccurredAt.After(history[i-1].OccurredAt))
	}
}

func TestStore_ConcurrentDeposits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", decimal.Zero)
	require.NoError(t, err)

	const workers, each = 10, 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_, err := f.store.Deposit(ctx, id, dec("1.25"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snapshot, err := f.store.GetAccountByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("62.5").Equal(snapshot.Balance), "got %s", snapshot.Balance)

	count, err := f.mem.Ledger().CountByAccountID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*each), count)
}

func TestStore_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient funds changes nothing", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("100"))
		require.NoError(t, err)

		_, err = f.store.Withdraw(ctx, id, dec("100.01"))
		assert.ErrorIs(t, err, account.ErrInsufficientFunds{})
		assert.Equal(t, shared.KindInsufficientFunds, shared.KindOf(err))

		snapshot, err := f.store.GetAccountByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, dec("100").Equal(snapshot.Balance))

		history, err := f.store.ListTransactions(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 1)

		event := f.lastEvent(t)
		assert.Equal(t, auditevent.ActionWithdrawalRejected, event.Action)
		assert.False(t, event.Success)
	})

	t.Run("whole balance", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("100"))
		require.NoError(t, err)

		balance, err := f.store.Withdraw(ctx, id, dec("100"))
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
		assert.Equal(t, auditevent.ActionWithdrawal, f.lastEvent(t).Action)
	})
}

func TestStore_TransactionRules(t *testing.T) {
	ctx := context.Background()

	t.Run("amount bounds", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("10"))
		require.NoError(t, err)

		for _, amount := range []string{"0", "-5", "1000000.01"} {
			_, err := f.store.Deposit(ctx, id, dec(amount))
			assert.ErrorIs(t, err, shared.ErrValidation{}, amount)
			_, err = f.store.Withdraw(ctx, id, dec(amount))
			assert.ErrorIs(t, err, shared.ErrValidation{}, amount)
		}
		assert.Equal(t, auditevent.ActionWithdrawalRejected, f.lastEvent(t).Action)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.store.Deposit(ctx, 77, dec("1"))
		assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
		assert.Equal(t, auditevent.ActionDepositFailed, f.lastEvent(t).Action)
	})

	t.Run("locked account", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("10"))
		require.NoError(t, err)
		for i := 0; i < account.MaxFailedAttempts; i++ {
			_, err := f.store.RecordLoginFailure(ctx, id)
			require.NoError(t, err)
		}

		_, err = f.store.Deposit(ctx, id, dec("1"))
		assert.ErrorIs(t, err, account.ErrAccountLocked{})
		_, err = f.store.Withdraw(ctx, id, dec("1"))
		assert.ErrorIs(t, err, account.ErrAccountLocked{})
	})

	t.Run("failed ledger write rolls back balance", func(t *testing.T) {
		f := newFixture(t)
		id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("10"))
		require.NoError(t, err)

		f.mem.FailOn(memory.OpAppendEntry, errors.New("disk full"))
		_, err = f.store.Deposit(ctx, id, dec("5"))
		assert.ErrorIs(t, err, shared.ErrPersistence{})
		f.mem.FailOn(memory.OpAppendEntry, nil)

		snapshot, err := f.store.GetAccountByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, dec("10").Equal(snapshot.Balance))
	})
}

func TestStore_UpdateBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", dec("10"))
	require.NoError(t, err)

	require.NoError(t, f.store.UpdateBalance(ctx, id, dec("42.42")))
	snapshot, err := f.store.GetAccountByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("42.42").Equal(snapshot.Balance))

	acc, err := f.mem.Accounts().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Version)

	assert.ErrorIs(t, f.store.UpdateBalance(ctx, id, dec("-1")), shared.ErrValidation{})
	assert.Equal(t, shared.KindNotFound, shared.KindOf(f.store.UpdateBalance(ctx, 999, dec("1"))))
}

func TestStore_AppendTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", decimal.Zero)
	require.NoError(t, err)

	view, err := f.store.AppendTransaction(ctx, id, shared.TransactionTypeDeposit, dec("12.34"), "  Salary  ")
	require.NoError(t, err)
	assert.Equal(t, "Salary", view.Description)
	assert.NotZero(t, view.ID)

	_, err = f.store.AppendTransaction(ctx, id, shared.TransactionTypeWithdrawal, dec("1"), "")
	require.NoError(t, err)

	_, err = f.store.AppendTransaction(ctx, id, shared.TransactionType("REFUND"), dec("1"), "")
	assert.ErrorIs(t, err, shared.ErrValidation{Field: "type"})

	_, err = f.store.AppendTransaction(ctx, id, shared.TransactionTypeDeposit, dec("1"), "<script>")
	assert.ErrorIs(t, err, shared.ErrValidation{})

	_, err = f.store.AppendTransaction(ctx, 404, shared.TransactionTypeDeposit, dec("1"), "")
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	history, err := f.store.ListTransactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, shared.TransactionTypeWithdrawal, history[0].Type)
	assert.Empty(t, history[0].Description)
	assert.Equal(t, "Salary", history[1].Description)
	assert.True(t, dec("12.34").Equal(history[1].Amount))

	// balance is maintained separately from the ledger
	snapshot, err := f.store.GetAccountByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, snapshot.Balance.IsZero())
}

func TestStore_ListAccountsMasked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	firstID, firstNumber, err := f.store.CreateAccount(ctx, "João Silva", "abcdef1", decimal.Zero)
	require.NoError(t, err)
	secondID, _, err := f.store.CreateAccount(ctx, "Ana", "abcdef1", decimal.Zero)
	require.NoError(t, err)
	for i := 0; i < account.MaxFailedAttempts; i++ {
		_, err := f.store.RecordLoginFailure(ctx, secondID)
		require.NoError(t, err)
	}

	accounts, err := f.store.ListAccountsMasked(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, firstID, accounts[0].ID)
	assert.Equal(t, "****-**"+firstNumber[6:], accounts[0].MaskedAccountNumber)
	assert.Equal(t, "João S****", accounts[0].MaskedHolderName)
	assert.Equal(t, shared.AccountStatusActive, accounts[0].Status)

	assert.Equal(t, secondID, accounts[1].ID)
	assert.Equal(t, "An****", accounts[1].MaskedHolderName)
	assert.Equal(t, shared.AccountStatusLocked, accounts[1].Status)
	assert.False(t, accounts[1].CreatedAt.Before(accounts[0].CreatedAt))
}

func TestStore_FindByHolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _, err := f.store.CreateAccount(ctx, "Ana Souza", "abcdef1", decimal.Zero)
	require.NoError(t, err)

	acc, err := f.store.FindByHolder(ctx, "ANA  SOUZA")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, id, acc.ID)

	acc, err = f.store.FindByHolder(ctx, "Ana Sousa")
	assert.NoError(t, err)
	assert.Nil(t, acc)

	f.mem.FailOn(memory.OpGetByHolderIndex, errors.New("gone"))
	_, err = f.store.FindByHolder(ctx, "Ana Souza")
	assert.ErrorIs(t, err, shared.ErrPersistence{})
}
