// Package crypto holds the primitives the ledger relies on for protecting
// stored fields: field encryption, password hashing, masking, input
// sanitization, account-number generation and blind indexing.
package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/hkdf"
)

const (
	fieldKeyInfo = "secure-ledger/field-encryption/v1"
	indexKeyInfo = "secure-ledger/holder-index/v1"
)

// Options tune the Service.
type Options struct {
	PBKDF2Iterations int
	MaxAmount        decimal.Decimal
}

// Service bundles every primitive behind one value. It is safe for
// concurrent use.
type Service struct {
	cipher    *FieldCipher
	hasher    *PasswordHasher
	sanitizer *Sanitizer
	indexer   *BlindIndexer
}

// NewService loads (or on first use creates) key material from keys and
// derives independent sub-keys for field encryption and the blind index.
func NewService(keys KeyStore, opts Options) (*Service, error) {
	master, err := keys.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to load key material: %w", err)
	}
	defer ZeroBytes(master)

	fieldKey, err := deriveSubKey(master, fieldKeyInfo)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(fieldKey)

	indexKey, err := deriveSubKey(master, indexKeyInfo)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(indexKey)

	fieldCipher, err := NewFieldCipher(fieldKey)
	if err != nil {
		return nil, err
	}

	return &Service{
		cipher:    fieldCipher,
		hasher:    NewPasswordHasher(opts.PBKDF2Iterations),
		sanitizer: NewSanitizer(opts.MaxAmount),
		indexer:   NewBlindIndexer(indexKey),
	}, nil
}

func deriveSubKey(master []byte, info string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}

func (s *Service) EncryptField(plaintext string) (string, error) {
	return s.cipher.Encrypt(plaintext)
}

func (s *Service) DecryptField(token string) (string, error) {
	return s.cipher.Decrypt(token)
}

// HashPassword returns (hash, salt). A fresh salt is generated when salt is empty.
func (s *Service) HashPassword(password, salt string) (string, string, error) {
	return s.hasher.Hash(password, salt)
}

func (s *Service) VerifyPassword(password, hash, salt string) bool {
	return s.hasher.Verify(password, hash, salt)
}

func (s *Service) Mask(value string, class MaskClass) string {
	return Mask(value, class)
}

func (s *Service) Sanitize(value string, kind InputKind) (string, error) {
	return s.sanitizer.Sanitize(value, kind)
}

func (s *Service) ParseAmount(value string) (decimal.Decimal, error) {
	return s.sanitizer.ParseAmount(value)
}

func (s *Service) CheckAmount(amount decimal.Decimal) error {
	return s.sanitizer.CheckAmount(amount)
}

func (s *Service) GenerateAccountNumber() (string, error) {
	return GenerateAccountNumber()
}

func (s *Service) BlindIndex(name string) string {
	return s.indexer.Index(name)
}
