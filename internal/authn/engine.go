// Package authn implements holder login with lockout and the single
// administrative credential check.
package authn

import (
	"context"
	"errors"
	"log/slog"

	"github.com/secure-banking-ledger/internal/audit"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/shared"
)

// AccountStore is the part of the secure store the engine needs
type AccountStore interface {
	FindByHolder(ctx context.Context, name string) (*account.Account, error)
	Snapshot(acc *account.Account) (*account.Snapshot, error)
	RecordLoginFailure(ctx context.Context, id int64) (account.LockState, error)
	ResetLoginFailures(ctx context.Context, id int64) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) audit.Result
}

// Engine drives the per-account login state machine (see account.LockState).
type Engine struct {
	store  AccountStore
	crypto *crypto.Service
	audit  AuditRecorder
	logger *slog.Logger
}

func NewEngine(store AccountStore, cryptoService *crypto.Service, auditRecorder AuditRecorder, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		crypto: cryptoService,
		audit:  auditRecorder,
		logger: logger,
	}
}

// Login authenticates a holder by name and password and returns the
// decrypted snapshot of their account.
//
// A locked account is refused whatever the password. A wrong password on an
// active account returns ErrInvalidCredentials with the attempts left, or
// ErrAccountLocked{JustLocked: true} when that failure locked the account.
// Storage and decryption failures are audited as LOGIN_ERROR and returned.
func (e *Engine) Login(ctx context.Context, name, password string) (*account.Snapshot, error) {
	holder, err := e.crypto.Sanitize(name, crypto.InputName)
	if err != nil {
		e.record(ctx, "", name, auditevent.ActionLoginInvalidInput, false)
		return nil, err
	}
	if password == "" {
		e.record(ctx, "", holder, auditevent.ActionLoginInvalidInput, false)
		return nil, shared.ErrValidation{Field: "password", Reason: "must not be empty"}
	}

	acc, err := e.store.FindByHolder(ctx, holder)
	if err != nil {
		return nil, e.abort(ctx, "", holder, err)
	}
	if acc == nil {
		e.record(ctx, "", holder, auditevent.ActionLoginAccountNotFound, false)
		return nil, account.ErrAccountNotFound{}
	}

	if acc.LockState().IsLocked() {
		e.record(ctx, acc.AccountNumber, holder, auditevent.ActionLoginAccountLocked, false)
		return nil, account.ErrAccountLocked{}
	}

	if !e.crypto.VerifyPassword(password, acc.PasswordHash, acc.PasswordSalt) {
		return nil, e.fail(ctx, acc, holder)
	}

	if err := e.store.ResetLoginFailures(ctx, acc.ID); err != nil {
		if errors.Is(err, account.ErrAccountLocked{}) {
			e.record(ctx, acc.AccountNumber, holder, auditevent.ActionLoginAccountLocked, false)
			return nil, err
		}
		return nil, e.abort(ctx, acc.AccountNumber, holder, err)
	}

	snapshot, err := e.store.Snapshot(acc)
	if err != nil {
		return nil, e.abort(ctx, acc.AccountNumber, holder, err)
	}

	e.logger.Info("Login succeeded", "account_id", acc.ID)
	e.record(ctx, acc.AccountNumber, holder, auditevent.ActionLoginSuccess, true)
	return snapshot, nil
}

func (e *Engine) fail(ctx context.Context, acc *account.Account, holder string) error {
	state, err := e.store.RecordLoginFailure(ctx, acc.ID)
	if err != nil {
		return e.abort(ctx, acc.AccountNumber, holder, err)
	}

	e.record(ctx, acc.AccountNumber, holder, auditevent.ActionLoginWrongPassword, false)

	if state.IsLocked() {
		e.logger.Warn("Account locked after repeated login failures", "account_id", acc.ID)
		return account.ErrAccountLocked{JustLocked: true}
	}
	return account.ErrInvalidCredentials{Remaining: state.Remaining()}
}

// abort audits a login cut short by a storage or decryption failure and
// returns err unchanged.
func (e *Engine) abort(ctx context.Context, accountNumber, holder string, err error) error {
	e.logger.Error("Login aborted", "kind", shared.KindOf(err).String(), "error", err)
	e.record(ctx, accountNumber, holder, auditevent.ActionLoginError, false)
	return err
}

func (e *Engine) record(ctx context.Context, accountNumber, subject string, action auditevent.Action, success bool) {
	entry := auditEntry(subject, action, success)
	entry.AccountNumber = accountNumber
	e.audit.Record(ctx, entry)
}

func auditEntry(subject string, action auditevent.Action, success bool) audit.Entry {
	return audit.Entry{Subject: subject, Action: action, Success: success}
}
