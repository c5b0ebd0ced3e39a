package authn

import (
	"context"

	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/shared"
)

const adminSubject = "administrator"

// ErrAdminDenied is returned for a wrong or unconfigured admin credential
type ErrAdminDenied struct {
	NotConfigured bool
}

func (e ErrAdminDenied) Error() string {
	if e.NotConfigured {
		return "administrative access is not configured"
	}
	return "administrative access denied"
}

func (e ErrAdminDenied) Kind() shared.Kind { return shared.KindInvalidCredentials }

// Is matches any ErrAdminDenied
func (e ErrAdminDenied) Is(target error) bool {
	_, ok := target.(ErrAdminDenied)
	return ok
}

// AdminGate checks the one administrative password. Failures are audited but
// never lock anything.
type AdminGate struct {
	hash   string
	salt   string
	crypto *crypto.Service
	audit  AuditRecorder
}

func NewAdminGate(hash, salt string, cryptoService *crypto.Service, auditRecorder AuditRecorder) *AdminGate {
	return &AdminGate{
		hash:   hash,
		salt:   salt,
		crypto: cryptoService,
		audit:  auditRecorder,
	}
}

func (g *AdminGate) Configured() bool {
	return g.hash != "" && g.salt != ""
}

func (g *AdminGate) Verify(ctx context.Context, password string) error {
	if !g.Configured() {
		g.record(ctx, false)
		return ErrAdminDenied{NotConfigured: true}
	}

	if !g.crypto.VerifyPassword(password, g.hash, g.salt) {
		g.record(ctx, false)
		return ErrAdminDenied{}
	}

	g.record(ctx, true)
	return nil
}

func (g *AdminGate) record(ctx context.Context, success bool) {
	g.audit.Record(ctx, auditEntry(adminSubject, auditevent.ActionAdminAccess, success))
}
