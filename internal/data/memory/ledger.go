package memory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/ledger"
)

type ledgerRepository struct {
	store *Store
	tx    *journal
}

func (r *ledgerRepository) WithTx(pgx.Tx) ledger.Repository {
	return r
}

func (r *ledgerRepository) Append(_ context.Context, entry *ledger.Entry) error {
	s := r.store
	if err := s.lock(OpAppendEntry); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.data.accounts[entry.AccountID]; !ok {
		return account.ErrAccountNotFound{AccountID: entry.AccountID}
	}

	entry.ID = s.data.nextEntryID
	entry.OccurredAt = s.now()
	s.data.nextEntryID++
	s.data.entries = append(s.data.entries, *entry)

	id := entry.ID
	r.tx.add(func(st *state) {
		for i := range st.entries {
			if st.entries[i].ID == id {
				st.entries = append(st.entries[:i], st.entries[i+1:]...)
				break
			}
		}
		if st.nextEntryID == id+1 {
			st.nextEntryID = id
		}
	})
	return nil
}

func (r *ledgerRepository) ListByAccountID(_ context.Context, accountID int64) ([]*ledger.Entry, error) {
	s := r.store
	if err := s.lock(OpListEntries); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	entries := make([]*ledger.Entry, 0)
	for _, e := range s.data.entries {
		if e.AccountID == accountID {
			e := e
			entries = append(entries, &e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OccurredAt.Equal(entries[j].OccurredAt) {
			return entries[i].OccurredAt.After(entries[j].OccurredAt)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries, nil
}

func (r *ledgerRepository) CountByAccountID(_ context.Context, accountID int64) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, e := range s.data.entries {
		if e.AccountID == accountID {
			count++
		}
	}
	return count, nil
}
