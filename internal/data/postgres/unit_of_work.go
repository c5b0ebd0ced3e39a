package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/platform/persistence"
)

// UnitOfWork runs account and ledger changes in one database transaction
type UnitOfWork struct {
	db       persistence.TxBeginner
	accounts account.Repository
	entries  ledger.Repository
}

func NewUnitOfWork(db *persistence.PostgresDB, accounts account.Repository, entries ledger.Repository) *UnitOfWork {
	return &UnitOfWork{
		db:       db.Pool(),
		accounts: accounts,
		entries:  entries,
	}
}

// InTx hands fn repositories bound to a fresh transaction. The transaction
// commits if fn returns nil and rolls back otherwise.
func (u *UnitOfWork) InTx(ctx context.Context, fn func(accounts account.Repository, entries ledger.Repository) error) error {
	return persistence.RunInTx(ctx, u.db, func(tx pgx.Tx) error {
		return fn(u.accounts.WithTx(tx), u.entries.WithTx(tx))
	})
}

// AuditBatch runs one relay batch in a transaction, so the row locks taken
// by GetPending hold until every event in the batch is settled.
type AuditBatch struct {
	db     persistence.TxBeginner
	events auditevent.Repository
}

func NewAuditBatch(db *persistence.PostgresDB, events auditevent.Repository) *AuditBatch {
	return &AuditBatch{
		db:     db.Pool(),
		events: events,
	}
}

func (b *AuditBatch) InBatch(ctx context.Context, fn func(events auditevent.Repository) error) error {
	return persistence.RunInTx(ctx, b.db, func(tx pgx.Tx) error {
		return fn(b.events.WithTx(tx))
	})
}
