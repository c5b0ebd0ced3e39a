package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"Nil", nil, KindUnknown},
		{"Plain", errors.New("boom"), KindUnknown},
		{"Validation", ErrValidation{Field: "name", Reason: "too long"}, KindValidation},
		{"WrappedValidation", fmt.Errorf("create: %w", ErrValidation{Reason: "empty"}), KindValidation},
		{"Persistence", ErrPersistence{Op: "insert", Err: errors.New("conn reset")}, KindPersistence},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, KindOf(tc.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ValidationError", KindValidation.String())
	assert.Equal(t, "InvalidCredentialsError", KindInvalidCredentials.String())
	assert.Equal(t, "UnknownError", Kind(99).String())
}

func TestErrValidation_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrValidation{Field: "amount", Reason: "negative"})

	assert.ErrorIs(t, err, ErrValidation{})
	assert.ErrorIs(t, err, ErrValidation{Field: "amount"})
	assert.NotErrorIs(t, err, ErrValidation{Field: "name"})
	assert.EqualError(t, ErrValidation{Field: "amount", Reason: "negative"}, "invalid amount: negative")
}

func TestNewPersistenceError(t *testing.T) {
	assert.Nil(t, NewPersistenceError("op", nil))

	cause := errors.New("connection refused")
	err := NewPersistenceError("load account", cause)
	assert.ErrorIs(t, err, ErrPersistence{})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindPersistence, KindOf(err))

	validation := ErrValidation{Reason: "bad"}
	assert.Equal(t, validation, NewPersistenceError("op", validation), "classified errors pass through untouched")
}
