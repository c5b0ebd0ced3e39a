package securestore

import (
	"context"

	"github.com/secure-banking-ledger/internal/audit"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/ledger"
)

// UnitOfWork runs fn against repositories that commit or roll back together
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(accounts account.Repository, entries ledger.Repository) error) error
}

// AuditRecorder records outcomes. It never fails from the caller's point of view.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) audit.Result
}
