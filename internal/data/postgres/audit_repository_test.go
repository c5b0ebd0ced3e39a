package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AuditRepository{querier: mock, logger: newTestLogger()}
	query := `INSERT INTO audit_events \(id, account_number, subject, action, success, occurred_at\)`

	t.Run("success", func(t *testing.T) {
		event := auditevent.NewEvent("12345678", "Ana S****", auditevent.ActionLoginSuccess, true)
		mock.ExpectExec(query).
			WithArgs(event.ID, event.AccountNumber, event.Subject, event.Action, event.Success, event.OccurredAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		event := auditevent.NewEvent("", "Jo****", auditevent.ActionLoginAccountNotFound, false)
		dbErr := errors.New("insert failed")
		mock.ExpectExec(query).
			WithArgs(event.ID, event.AccountNumber, event.Subject, event.Action, event.Success, event.OccurredAt).
			WillReturnError(dbErr)

		err := repo.Create(ctx, event)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to create audit event")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuditRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AuditRepository{querier: mock, logger: newTestLogger()}
	query := `FROM audit_events\s+WHERE forwarded_at IS NULL AND forward_attempts < \$1\s+ORDER BY occurred_at ASC\s+LIMIT \$2\s+FOR UPDATE SKIP LOCKED`
	columns := []string{"id", "account_number", "subject", "action", "success", "occurred_at", "forwarded_at", "forward_attempts", "last_error"}

	t.Run("success", func(t *testing.T) {
		acct := "12345678"
		firstID, secondID := uuid.New(), uuid.New()
		now := time.Now().UTC()
		rows := pgxmock.NewRows(columns).
			AddRow(firstID, &acct, "Ana S****", auditevent.ActionDeposit, true, now.Add(-time.Second), nil, 0, "").
			AddRow(secondID, nil, "Jo****", auditevent.ActionLoginAccountNotFound, false, now, nil, 2, "broker down")
		mock.ExpectQuery(query).WithArgs(5, 100).WillReturnRows(rows)

		events, err := repo.GetPending(ctx, 100, 5)
		require.NoError(t, err)
		require.Len(t, events, 2)

		assert.Equal(t, firstID, events[0].ID)
		require.NotNil(t, events[0].AccountNumber)
		assert.Equal(t, acct, *events[0].AccountNumber)
		assert.Equal(t, auditevent.ActionDeposit, events[0].Action)

		assert.Equal(t, secondID, events[1].ID)
		assert.Nil(t, events[1].AccountNumber)
		assert.Equal(t, 2, events[1].ForwardAttempts)
		assert.Equal(t, "broker down", events[1].LastError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		dbErr := errors.New("select failed")
		mock.ExpectQuery(query).WithArgs(5, 10).WillReturnError(dbErr)

		events, err := repo.GetPending(ctx, 10, 5)
		assert.Nil(t, events)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuditRepository_MarkForwarded(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AuditRepository{querier: mock, logger: newTestLogger()}
	query := `UPDATE audit_events\s+SET forwarded_at = NOW\(\), last_error = NULL\s+WHERE id = \$1`
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkForwarded(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.MarkForwarded(ctx, id)
		assert.ErrorIs(t, err, auditevent.ErrEventNotFound{ID: id})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuditRepository_RecordForwardFailure(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AuditRepository{querier: mock, logger: newTestLogger()}
	query := `SET forward_attempts = forward_attempts \+ 1, last_error = \$1\s+WHERE id = \$2`
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs("timeout", id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.RecordForwardFailure(ctx, id, "timeout"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("update failed")
		mock.ExpectExec(query).WithArgs("timeout", id).WillReturnError(dbErr)

		err := repo.RecordForwardFailure(ctx, id, "timeout")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs("timeout", id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.RecordForwardFailure(ctx, id, "timeout")
		assert.ErrorIs(t, err, auditevent.ErrEventNotFound{})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuditRepository_WithTx(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	originalRepo := &AuditRepository{querier: mockPool, logger: newTestLogger()}

	mockPool.ExpectBegin()
	pgxTx, err := mockPool.Begin(context.Background())
	require.NoError(t, err)

	txRepo, ok := originalRepo.WithTx(pgxTx).(*AuditRepository)
	require.True(t, ok)
	assert.Equal(t, pgxTx, txRepo.querier)
}
