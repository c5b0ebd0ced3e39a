package audit

import (
	"context"

	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

// RepositorySink stores events in the audit_events table, from where the
// relay forwards them.
type RepositorySink struct {
	repo auditevent.Repository
}

func NewRepositorySink(repo auditevent.Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Name() string {
	return "database"
}

func (s *RepositorySink) Write(ctx context.Context, event *auditevent.Event) error {
	return s.repo.Create(ctx, event)
}
