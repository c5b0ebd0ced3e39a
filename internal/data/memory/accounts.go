package memory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/account"
)

type accountRepository struct {
	store *Store
	tx    *journal
}

func (r *accountRepository) WithTx(pgx.Tx) account.Repository {
	return r
}

func (r *accountRepository) Create(_ context.Context, acc *account.Account) error {
	s := r.store
	if err := s.lock(OpCreateAccount); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	for _, existing := range s.data.accounts {
		if existing.HolderIndex == acc.HolderIndex {
			return account.ErrDuplicateAccount{}
		}
		if existing.AccountNumber == acc.AccountNumber {
			return account.ErrDuplicateAccountNumber{AccountNumber: acc.AccountNumber}
		}
	}

	acc.ID = s.data.nextAccountID
	acc.FailedAttempts = 0
	acc.Locked = false
	acc.Version = 1
	acc.CreatedAt = s.now()
	s.data.nextAccountID++
	s.data.accounts[acc.ID] = *acc

	id := acc.ID
	r.tx.add(func(st *state) {
		delete(st.accounts, id)
		if st.nextAccountID == id+1 {
			st.nextAccountID = id
		}
	})
	return nil
}

func (r *accountRepository) GetByID(_ context.Context, id int64) (*account.Account, error) {
	s := r.store
	if err := s.lock(OpGetAccount); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	return r.get(id)
}

func (r *accountRepository) get(id int64) (*account.Account, error) {
	acc, ok := r.store.data.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	return &acc, nil
}

func (r *accountRepository) GetByHolderIndex(_ context.Context, holderIndex string) (*account.Account, error) {
	s := r.store
	if err := s.lock(OpGetByHolderIndex); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	for _, acc := range s.data.accounts {
		if acc.HolderIndex == holderIndex {
			found := acc
			return &found, nil
		}
	}
	return nil, nil
}

func (r *accountRepository) ListAll(_ context.Context) ([]*account.Account, error) {
	s := r.store
	if err := s.lock(OpListAccounts); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	accounts := make([]*account.Account, 0, len(s.data.accounts))
	for _, acc := range s.data.accounts {
		acc := acc
		accounts = append(accounts, &acc)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

func (r *accountRepository) UpdateBalance(_ context.Context, id int64, balanceCipher string, version int) error {
	s := r.store
	if err := s.lock(OpUpdateBalance); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	acc, ok := s.data.accounts[id]
	if !ok || acc.Version != version {
		return account.ErrConcurrentModification{AccountID: id}
	}
	prevBalance, prevVersion := acc.BalanceCipher, acc.Version
	acc.BalanceCipher = balanceCipher
	acc.Version++
	s.data.accounts[id] = acc

	written := acc.Version
	r.tx.add(func(st *state) {
		cur, ok := st.accounts[id]
		if !ok || cur.Version != written {
			return
		}
		cur.BalanceCipher = prevBalance
		cur.Version = prevVersion
		st.accounts[id] = cur
	})
	return nil
}

func (r *accountRepository) RecordLoginFailure(_ context.Context, id int64) (account.LockState, error) {
	s := r.store
	if err := s.lock(OpRecordLoginFailure); err != nil {
		s.mu.Unlock()
		return account.LockState{}, err
	}
	defer s.mu.Unlock()

	acc, ok := s.data.accounts[id]
	if !ok {
		return account.LockState{}, account.ErrAccountNotFound{AccountID: id}
	}
	if !acc.Locked {
		r.journalLockState(acc)
		acc.FailedAttempts = min(acc.FailedAttempts+1, account.MaxFailedAttempts)
		acc.Locked = acc.FailedAttempts >= account.MaxFailedAttempts
		s.data.accounts[id] = acc
	}
	return acc.LockState(), nil
}

func (r *accountRepository) ResetLoginFailures(_ context.Context, id int64) error {
	s := r.store
	if err := s.lock(OpResetLoginFailures); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	acc, ok := s.data.accounts[id]
	if !ok || acc.Locked {
		return account.ErrAccountLocked{}
	}
	r.journalLockState(acc)
	acc.FailedAttempts = 0
	s.data.accounts[id] = acc
	return nil
}

// journalLockState records how to put back acc's login counters.
func (r *accountRepository) journalLockState(acc account.Account) {
	id, attempts, locked := acc.ID, acc.FailedAttempts, acc.Locked
	r.tx.add(func(st *state) {
		if cur, ok := st.accounts[id]; ok {
			cur.FailedAttempts = attempts
			cur.Locked = locked
			st.accounts[id] = cur
		}
	})
}

// LockForUpdate is GetByID; InTx already serializes writers.
func (r *accountRepository) LockForUpdate(_ context.Context, id int64) (*account.Account, error) {
	s := r.store
	if err := s.lock(OpLockForUpdate); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	return r.get(id)
}
