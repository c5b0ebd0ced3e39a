package crypto

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/secure-banking-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InputKind selects the validation rules applied by Sanitize
type InputKind string

const (
	InputText   InputKind = "text"
	InputName   InputKind = "name"
	InputAmount InputKind = "amount"
)

// MaxNameLength is the longest accepted holder name, in characters.
const MaxNameLength = 100

// DefaultMaxAmount caps amounts when no limit is configured.
var DefaultMaxAmount = decimal.NewFromInt(1_000_000)

var denylist = []string{"<", ">", "\"", "'", "&", ";", "--", "/*", "*/", "DROP", "DELETE", "UPDATE"}

// Sanitizer validates untrusted input.
type Sanitizer struct {
	maxAmount decimal.Decimal
}

func NewSanitizer(maxAmount decimal.Decimal) *Sanitizer {
	if !maxAmount.IsPositive() {
		maxAmount = DefaultMaxAmount
	}
	return &Sanitizer{maxAmount: maxAmount}
}

// Sanitize returns the trimmed value or an ErrValidation.
func (s *Sanitizer) Sanitize(value string, kind InputKind) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", shared.ErrValidation{Field: string(kind), Reason: "must not be empty"}
	}

	upper := strings.ToUpper(trimmed)
	for _, token := range denylist {
		if strings.Contains(upper, token) {
			return "", shared.ErrValidation{Field: string(kind), Reason: "contains forbidden sequence " + token}
		}
	}

	switch kind {
	case InputName:
		if utf8.RuneCountInString(trimmed) > MaxNameLength {
			return "", shared.ErrValidation{Field: string(kind), Reason: "is too long"}
		}
		for _, r := range trimmed {
			if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
				return "", shared.ErrValidation{Field: string(kind), Reason: "may only contain letters and spaces"}
			}
		}
	case InputAmount:
		if _, err := s.parseAmount(trimmed); err != nil {
			return "", err
		}
	}

	return trimmed, nil
}

// ParseAmount sanitizes value as an amount and returns it as a decimal in
// [0, max].
func (s *Sanitizer) ParseAmount(value string) (decimal.Decimal, error) {
	trimmed, err := s.Sanitize(value, InputAmount)
	if err != nil {
		return decimal.Zero, err
	}
	return s.parseAmount(trimmed)
}

// CheckAmount applies the amount range rules to an already parsed value.
func (s *Sanitizer) CheckAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.ErrValidation{Field: string(InputAmount), Reason: "must not be negative"}
	}
	if amount.GreaterThan(s.maxAmount) {
		return shared.ErrValidation{Field: string(InputAmount), Reason: "exceeds the limit of " + s.maxAmount.String()}
	}
	return nil
}

func (s *Sanitizer) parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, shared.ErrValidation{Field: string(InputAmount), Reason: "must be a number"}
	}
	if err := s.CheckAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
