package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// KeySize is the length in bytes of the master key material.
const KeySize = 32

var (
	ErrKeyNotFound    = errors.New("key material not found")
	ErrInvalidKeySize = fmt.Errorf("key material must be exactly %d bytes", KeySize)
)

// KeyStore provides the master key material. Implementations must never
// replace key material that already exists: every stored ciphertext depends
// on it.
type KeyStore interface {
	// LoadOrCreate returns existing key material, generating and persisting
	// fresh material only when none exists yet.
	LoadOrCreate() ([]byte, error)
}

// FileKeyStore keeps the master key as a raw 32-byte file readable only by
// the owner.
type FileKeyStore struct {
	mu   sync.Mutex
	path string
}

func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

func (f *FileKeyStore) LoadOrCreate() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := f.read()
	if err == nil || !errors.Is(err, ErrKeyNotFound) {
		return key, err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	if err := f.publish(key); err != nil {
		ZeroBytes(key)
		if errors.Is(err, fs.ErrExist) {
			// another process created the key first
			return f.read()
		}
		return nil, err
	}

	return key, nil
}

// publish writes key to a temporary file and hard-links it into place, so the
// key file is either absent or complete and an existing file is never
// replaced.
func (f *FileKeyStore) publish(key []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".key-*")
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set key file permissions: %w", err)
	}
	if _, err := tmp.Write(key); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}

	if err := os.Link(tmp.Name(), f.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}
		return fmt.Errorf("failed to install key file: %w", err)
	}
	return nil
}

func (f *FileKeyStore) read() ([]byte, error) {
	key, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return key, nil
}

// StaticKeyStore serves fixed key material held in memory. It never
// creates material; empty material yields ErrKeyNotFound.
type StaticKeyStore struct {
	key []byte
}

func NewStaticKeyStore(key []byte) *StaticKeyStore {
	return &StaticKeyStore{key: append([]byte(nil), key...)}
}

func (s *StaticKeyStore) LoadOrCreate() ([]byte, error) {
	if len(s.key) == 0 {
		return nil, ErrKeyNotFound
	}
	if len(s.key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return append([]byte(nil), s.key...), nil
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
