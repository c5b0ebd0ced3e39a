package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// Action is the code recorded for a security-relevant operation
type Action string

const (
	ActionAccountCreated       Action = "ACCOUNT_CREATED"
	ActionAccountCreateFailed  Action = "ACCOUNT_CREATE_FAILED"
	ActionAccountDuplicate     Action = "ACCOUNT_DUPLICATE"
	ActionDeposit              Action = "DEPOSIT"
	ActionDepositFailed        Action = "DEPOSIT_FAILED"
	ActionWithdrawal           Action = "WITHDRAWAL"
	ActionWithdrawalRejected   Action = "WITHDRAWAL_REJECTED"
	ActionLoginInvalidInput    Action = "LOGIN_INVALID_INPUT"
	ActionLoginAccountNotFound Action = "LOGIN_ACCOUNT_NOT_FOUND"
	ActionLoginAccountLocked   Action = "LOGIN_ACCOUNT_LOCKED"
	ActionLoginSuccess         Action = "LOGIN_SUCCESS"
	ActionLoginWrongPassword   Action = "LOGIN_WRONG_PASSWORD"
	ActionLoginError           Action = "LOGIN_ERROR"
	ActionAdminAccess          Action = "ADMIN_ACCESS"
)

// Event is one append-only audit record. The content fields never change
// after creation; ForwardedAt, ForwardAttempts and LastError are relay
// bookkeeping only.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	AccountNumber   *string    `json:"account_number,omitempty"`
	Subject         string     `json:"subject"`
	Action          Action     `json:"action"`
	Success         bool       `json:"success"`
	OccurredAt      time.Time  `json:"occurred_at"`
	ForwardedAt     *time.Time `json:"-"`
	ForwardAttempts int        `json:"-"`
	LastError       string     `json:"-"`
}

// NewEvent stamps a new event with an ID and the current UTC time. Subject
// must already be masked; accountNumber is the full number.
func NewEvent(accountNumber, subject string, action Action, success bool) *Event {
	e := &Event{
		ID:         uuid.New(),
		Subject:    subject,
		Action:     action,
		Success:    success,
		OccurredAt: time.Now().UTC(),
	}
	if accountNumber != "" {
		e.AccountNumber = &accountNumber
	}
	return e
}

// Outcome renders Success as the word used in the line log.
func (e *Event) Outcome() string {
	if e.Success {
		return "SUCCESS"
	}
	return "FAILURE"
}

func (e *Event) RecordForwardFailure(reason string) {
	e.ForwardAttempts++
	e.LastError = reason
}

func (e *Event) MarkForwarded() {
	now := time.Now().UTC()
	e.ForwardedAt = &now
}
