package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const accountNumberDigits = 8

var accountNumberSpace = big.NewInt(100_000_000)

// GenerateAccountNumber returns a uniformly random 8-digit, zero-padded
// string. Uniqueness is the caller's concern.
func GenerateAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate account number: %w", err)
	}
	return fmt.Sprintf("%0*d", accountNumberDigits, n.Int64()), nil
}
