// Package memory provides in-process implementations of the repositories.
// They mirror the PostgreSQL constraints (unique holder index and account
// number, version check, append-only ledger) and serve tests and tooling
// that run without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/ledger"
)

// Operation names accepted by FailOn
const (
	OpCreateAccount       = "accounts.Create"
	OpGetAccount          = "accounts.GetByID"
	OpGetByHolderIndex    = "accounts.GetByHolderIndex"
	OpListAccounts        = "accounts.ListAll"
	OpUpdateBalance       = "accounts.UpdateBalance"
	OpRecordLoginFailure  = "accounts.RecordLoginFailure"
	OpResetLoginFailures  = "accounts.ResetLoginFailures"
	OpLockForUpdate       = "accounts.LockForUpdate"
	OpAppendEntry         = "ledger.Append"
	OpListEntries         = "ledger.ListByAccountID"
	OpCreateAuditEvent    = "audit.Create"
	OpGetPendingEvents    = "audit.GetPending"
	OpMarkEventForwarded  = "audit.MarkForwarded"
	OpRecordForwardFailed = "audit.RecordForwardFailure"
)

type state struct {
	accounts      map[int64]account.Account
	entries       []ledger.Entry
	events        []auditevent.Event
	nextAccountID int64
	nextEntryID   int64
}

// journal collects the inverse of every write made through a transaction's
// repositories. Entries are appended and replayed with Store.mu held.
type journal struct {
	undo []func(*state)
}

func (j *journal) add(fn func(*state)) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

// Store holds all tables. The zero value is not usable; call NewStore.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data state

	failures map[string]error
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		data: state{
			accounts:      make(map[int64]account.Account),
			nextAccountID: 1,
			nextEntryID:   1,
		},
		failures: make(map[string]error),
		now:      monotonicClock(),
	}
}

// FailOn makes every call of op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) Accounts() account.Repository {
	return &accountRepository{store: s}
}

func (s *Store) Ledger() ledger.Repository {
	return &ledgerRepository{store: s}
}

func (s *Store) AuditEvents() auditevent.Repository {
	return &auditRepository{store: s}
}

// InTx serializes fn against every other InTx call. If fn returns an error
// or panics, only the writes fn made through the repositories it was handed
// are undone; writes made outside the transaction meanwhile are kept.
func (s *Store) InTx(ctx context.Context, fn func(accounts account.Repository, entries ledger.Repository) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &journal{}
	defer func() {
		if r := recover(); r != nil {
			s.rollback(tx)
			panic(r)
		}
		if err != nil {
			s.rollback(tx)
		}
	}()

	return fn(&accountRepository{store: s, tx: tx}, &ledgerRepository{store: s, tx: tx})
}

func (s *Store) rollback(tx *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i](&s.data)
	}
}

// lock acquires the data mutex and reports any injected failure for op.
// The caller must unlock s.mu.
func (s *Store) lock(op string) error {
	s.mu.Lock()
	return s.failures[op]
}

// monotonicClock returns strictly increasing timestamps so ordering by time
// is stable in tests.
func monotonicClock() func() time.Time {
	var mu sync.Mutex
	var last time.Time
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now().UTC()
		if !now.After(last) {
			now = last.Add(time.Microsecond)
		}
		last = now
		return now
	}
}
