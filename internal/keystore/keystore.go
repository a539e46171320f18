// Package keystore keeps the device master key that protects sensitive
// settings. The platform keyring is preferred; a 0600 file is the fallback
// for devices without a secret service.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// MasterKeySize is the length of a generated master key
const MasterKeySize = 32

// ErrNoKey is returned by Retrieve when no key has been stored yet
var ErrNoKey = errors.New("no master key stored")

// KeyStore stores a single secret key
type KeyStore interface {
	// Store securely stores the key, replacing any previous one
	Store(key []byte) error
	// Retrieve returns the stored key or ErrNoKey
	Retrieve() ([]byte, error)
	// Delete removes the key; deleting a missing key is not an error
	Delete() error
	// Exists reports whether a key is stored
	Exists() bool
}

// Provider names a KeyStore implementation in configuration
type Provider string

const (
	ProviderKeyring Provider = "keyring"
	ProviderFile    Provider = "file"
)

// Options configures New
type Options struct {
	Provider Provider
	// Path is the key file (file provider) or the keyring file-backend directory
	Path   string
	Logger *logrus.Logger
}

// New returns the configured KeyStore
func New(opts Options) (KeyStore, error) {
	switch opts.Provider {
	case ProviderFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("keystore: file provider needs a path")
		}
		return NewFileKeyStore(opts.Path), nil
	case ProviderKeyring, "":
		return NewKeyringKeyStore(KeyringOptions{FileDir: opts.Path, Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("keystore: unknown provider %q", opts.Provider)
	}
}

// LoadOrCreate returns the stored master key, generating and storing a new
// random one the first time
func LoadOrCreate(ks KeyStore) ([]byte, error) {
	key, err := ks.Retrieve()
	if err == nil {
		if len(key) != MasterKeySize {
			return nil, fmt.Errorf("stored master key has %d bytes, want %d", len(key), MasterKeySize)
		}
		return key, nil
	}
	if !errors.Is(err, ErrNoKey) {
		return nil, err
	}

	key = make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	if err := ks.Store(key); err != nil {
		return nil, fmt.Errorf("failed to store master key: %w", err)
	}
	return key, nil
}

// FileKeyStore keeps the key in a file readable only by the owner
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a file-based key store
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Store writes the key atomically with 0600 permissions
func (f *FileKeyStore) Store(key []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".master-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := tmp.Write(key); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("failed to install key file: %w", err)
	}
	return nil
}

// Retrieve reads the key from the file
func (f *FileKeyStore) Retrieve() ([]byte, error) {
	key, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return key, nil
}

// Delete removes the key file
func (f *FileKeyStore) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists checks if the key file exists
func (f *FileKeyStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}
