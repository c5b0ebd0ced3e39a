package shared

import (
	"errors"
	"fmt"
)

// Kind classifies errors crossing the core boundary so a presentation layer
// can translate them without knowing concrete types.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDuplicateAccount
	KindNotFound
	KindLockedAccount
	KindInsufficientFunds
	KindDecryption
	KindPersistence
	KindInvalidCredentials
)

var kindNames = map[Kind]string{
	KindUnknown:            "UnknownError",
	KindValidation:         "ValidationError",
	KindDuplicateAccount:   "DuplicateAccountError",
	KindNotFound:           "NotFoundError",
	KindLockedAccount:      "LockedAccountError",
	KindInsufficientFunds:  "InsufficientFundsError",
	KindDecryption:         "DecryptionError",
	KindPersistence:        "PersistenceError",
	KindInvalidCredentials: "InvalidCredentialsError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// KindedError is implemented by every domain error type.
type KindedError interface {
	error
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindUnknown
}

// ErrValidation indicates bad or unsafe input
type ErrValidation struct {
	Field  string
	Reason string
}

func (e ErrValidation) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ErrValidation) Kind() Kind { return KindValidation }

// Is matches any ErrValidation when the target has no field set
func (e ErrValidation) Is(target error) bool {
	t, ok := target.(ErrValidation)
	if !ok {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// ErrPersistence wraps an underlying storage failure
type ErrPersistence struct {
	Op  string
	Err error
}

func (e ErrPersistence) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e ErrPersistence) Unwrap() error { return e.Err }

func (e ErrPersistence) Kind() Kind { return KindPersistence }

// Is matches any ErrPersistence
func (e ErrPersistence) Is(target error) bool {
	_, ok := target.(ErrPersistence)
	return ok
}

// NewPersistenceError wraps err unless it is already classified.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return ErrPersistence{Op: op, Err: err}
}
