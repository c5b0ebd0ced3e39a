package ledger

import (
	"time"

	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Entry is an immutable ledger row as stored. Amount and description are
// ciphertext tokens; DescriptionCipher is nil when no description was given.
type Entry struct {
	ID                int64                  `json:"id"`
	AccountID         int64                  `json:"account_id"`
	Type              shared.TransactionType `json:"type"`
	AmountCipher      string                 `json:"-"`
	DescriptionCipher *string                `json:"-"`
	OccurredAt        time.Time              `json:"occurred_at"`
}

// View is the decrypted form of an Entry returned to the account holder.
type View struct {
	ID          int64                  `json:"id"`
	Type        shared.TransactionType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Description string                 `json:"description,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
