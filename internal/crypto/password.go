package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the number of random bytes in a password salt.
	SaltSize = 32
	// DefaultPBKDF2Iterations is the work factor used when none is configured.
	DefaultPBKDF2Iterations = 600000

	hashSize = 32
)

// PasswordHasher derives password hashes with PBKDF2-SHA-256.
type PasswordHasher struct {
	iterations int
}

func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return &PasswordHasher{iterations: iterations}
}

// Hash hashes password with the hex-encoded salt. An empty salt is replaced by
// a fresh random one; the salt actually used is returned.
func (h *PasswordHasher) Hash(password, salt string) (string, string, error) {
	if salt == "" {
		raw := make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return "", "", fmt.Errorf("failed to generate salt: %w", err)
		}
		salt = hex.EncodeToString(raw)
	}

	return h.derive(password, salt), salt, nil
}

// Verify recomputes the hash and compares it in constant time.
func (h *PasswordHasher) Verify(password, hash, salt string) bool {
	if hash == "" || salt == "" {
		return false
	}
	computed := h.derive(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func (h *PasswordHasher) derive(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, hashSize, sha256.New)
	defer ZeroBytes(key)
	return hex.EncodeToString(key)
}
