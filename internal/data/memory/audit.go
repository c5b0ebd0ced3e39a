package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

type auditRepository struct {
	store *Store
}

func (r *auditRepository) WithTx(pgx.Tx) auditevent.Repository {
	return r
}

func (r *auditRepository) Create(_ context.Context, event *auditevent.Event) error {
	s := r.store
	if err := s.lock(OpCreateAuditEvent); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	s.data.events = append(s.data.events, *event)
	return nil
}

func (r *auditRepository) GetPending(_ context.Context, limit, maxAttempts int) ([]*auditevent.Event, error) {
	s := r.store
	if err := s.lock(OpGetPendingEvents); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var pending []*auditevent.Event
	for _, e := range s.data.events {
		if e.ForwardedAt == nil && e.ForwardAttempts < maxAttempts {
			e := e
			pending = append(pending, &e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].OccurredAt.Before(pending[j].OccurredAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *auditRepository) MarkForwarded(_ context.Context, id uuid.UUID) error {
	s := r.store
	if err := s.lock(OpMarkEventForwarded); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	for i := range s.data.events {
		if s.data.events[i].ID == id {
			now := time.Now().UTC()
			s.data.events[i].ForwardedAt = &now
			s.data.events[i].LastError = ""
			return nil
		}
	}
	return auditevent.ErrEventNotFound{ID: id}
}

func (r *auditRepository) RecordForwardFailure(_ context.Context, id uuid.UUID, reason string) error {
	s := r.store
	if err := s.lock(OpRecordForwardFailed); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	for i := range s.data.events {
		if s.data.events[i].ID == id {
			s.data.events[i].RecordForwardFailure(reason)
			return nil
		}
	}
	return auditevent.ErrEventNotFound{ID: id}
}

// AuditEventsSnapshot returns copies of every stored audit event in insert order.
func (s *Store) AuditEventsSnapshot() []auditevent.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auditevent.Event(nil), s.data.events...)
}

// InBatch hands fn the audit repository. Each call on it is atomic on its
// own; there is no batch-wide rollback.
func (s *Store) InBatch(_ context.Context, fn func(events auditevent.Repository) error) error {
	return fn(s.AuditEvents())
}
