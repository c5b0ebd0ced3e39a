package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeName lower-cases name and collapses runs of whitespace, so that
// "Ana Souza" and "  ana   SOUZA " normalize identically.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// BlindIndexer computes a keyed, deterministic lookup value for names whose
// stored form is randomized ciphertext.
type BlindIndexer struct {
	key []byte
}

func NewBlindIndexer(key []byte) *BlindIndexer {
	return &BlindIndexer{key: append([]byte(nil), key...)}
}

// Index returns hex(HMAC-SHA-256(key, NormalizeName(name))).
func (b *BlindIndexer) Index(name string) string {
	mac := hmac.New(sha256.New, b.key)
	mac.Write([]byte(NormalizeName(name)))
	return hex.EncodeToString(mac.Sum(nil))
}
