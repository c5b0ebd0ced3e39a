// Package core is the entry point presentation layers call. It wires the
// crypto service, audit log, secure store and authentication engine
// together and exposes the account operations in one place.
package core

import (
	"context"
	"log/slog"

	"github.com/secure-banking-ledger/internal/authn"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/securestore"
	"github.com/shopspring/decimal"
)

type Core struct {
	store  *securestore.Store
	auth   *authn.Engine
	admin  *authn.AdminGate
	crypto *crypto.Service
	logger *slog.Logger

	closers []func()
}

func (c *Core) CreateAccount(ctx context.Context, name, password string, initialBalance decimal.Decimal) (int64, string, error) {
	return c.store.CreateAccount(ctx, name, password, initialBalance)
}

func (c *Core) Authenticate(ctx context.Context, name, password string) (*account.Snapshot, error) {
	return c.auth.Login(ctx, name, password)
}

// GetAccountByID returns nil, nil for an unknown ID.
func (c *Core) GetAccountByID(ctx context.Context, id int64) (*account.Snapshot, error) {
	return c.store.GetAccountByID(ctx, id)
}

func (c *Core) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.store.Deposit(ctx, accountID, amount)
}

func (c *Core) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.store.Withdraw(ctx, accountID, amount)
}

func (c *Core) ListTransactionHistory(ctx context.Context, accountID int64) ([]ledger.View, error) {
	return c.store.ListTransactions(ctx, accountID)
}

// ListAccountsMasked is for administrative use; callers gate it with
// AuthorizeAdmin.
func (c *Core) ListAccountsMasked(ctx context.Context) ([]account.MaskedAccount, error) {
	return c.store.ListAccountsMasked(ctx)
}

func (c *Core) AuthorizeAdmin(ctx context.Context, password string) error {
	return c.admin.Verify(ctx, password)
}

// ParseAmount validates user-entered amount text.
func (c *Core) ParseAmount(value string) (decimal.Decimal, error) {
	return c.crypto.ParseAmount(value)
}

// Close flushes pending audit writes and releases every resource the
// factory opened, in reverse order.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
