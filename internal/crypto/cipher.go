package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/secure-banking-ledger/internal/domain/shared"
)

const (
	// TokenPrefix marks a field ciphertext token.
	TokenPrefix = "v1:"

	tokenVersion byte = 0x01
	nonceSize         = 12
)

// ErrDecryption indicates a ciphertext token that is malformed, foreign or
// tampered with. The plaintext is never recoverable from such a token.
type ErrDecryption struct {
	Reason string
}

func (e ErrDecryption) Error() string {
	return "failed to decrypt field: " + e.Reason
}

func (e ErrDecryption) Kind() shared.Kind { return shared.KindDecryption }

// Is matches any ErrDecryption
func (e ErrDecryption) Is(target error) bool {
	_, ok := target.(ErrDecryption)
	return ok
}

// FieldCipher performs randomized AES-256-GCM encryption of single fields.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher builds a cipher from a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Encrypt returns "v1:" + base64url(version ‖ nonce ‖ ciphertext ‖ tag).
// A fresh nonce is drawn for every call.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	buf := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	buf[0] = tokenVersion
	if _, err := io.ReadFull(rand.Reader, buf[1:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(buf, buf[1:], []byte(plaintext), buf[:1])
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Every failure is reported as ErrDecryption.
func (c *FieldCipher) Decrypt(token string) (string, error) {
	encoded, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return "", ErrDecryption{Reason: "unknown token format"}
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryption{Reason: "malformed encoding"}
	}
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return "", ErrDecryption{Reason: "token too short"}
	}
	if raw[0] != tokenVersion {
		return "", ErrDecryption{Reason: fmt.Sprintf("unsupported version %d", raw[0])}
	}

	plaintext, err := c.aead.Open(nil, raw[1:1+nonceSize], raw[1+nonceSize:], raw[:1])
	if err != nil {
		return "", ErrDecryption{Reason: "authentication failed"}
	}
	return string(plaintext), nil
}
