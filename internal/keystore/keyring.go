package keystore

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"
)

const (
	serviceName   = "consolesettings"
	masterKeyItem = "master-key"
)

// KeyringOptions configures the keyring-backed store
type KeyringOptions struct {
	// Backends restricts which keyring backends may be used; empty means
	// every backend available on the platform
	Backends []keyring.BackendType
	// FileDir enables the encrypted-file backend as a last resort
	FileDir string
	// FilePassword unlocks the encrypted-file backend
	FilePassword string
	Logger       *logrus.Logger
}

// KeyringKeyStore stores the master key in the platform keyring
// (Keychain, Secret Service, KWallet, WinCred, keyctl or an encrypted file)
type KeyringKeyStore struct {
	ring keyring.Keyring
}

// NewKeyringKeyStore opens the platform keyring
func NewKeyringKeyStore(opts KeyringOptions) (*KeyringKeyStore, error) {
	password := opts.FilePassword
	if password == "" {
		password = serviceName
	}

	cfg := keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          opts.Backends,
		KeychainTrustApplication: true,
		FileDir:                  opts.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
	}
	if opts.FileDir == "" && len(opts.Backends) == 0 {
		cfg.AllowedBackends = withoutFileBackend(keyring.AvailableBackends())
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger.WithField("backends", cfg.AllowedBackends).Debug("Keyring opened")
	}
	return &KeyringKeyStore{ring: ring}, nil
}

func withoutFileBackend(all []keyring.BackendType) []keyring.BackendType {
	out := make([]keyring.BackendType, 0, len(all))
	for _, b := range all {
		if b != keyring.FileBackend {
			out = append(out, b)
		}
	}
	return out
}

// Store saves the key in the keyring
func (k *KeyringKeyStore) Store(key []byte) error {
	err := k.ring.Set(keyring.Item{
		Key:         masterKeyItem,
		Data:        key,
		Label:       "Console settings master key",
		Description: "Protects sensitive console settings",
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

// Retrieve reads the key from the keyring
func (k *KeyringKeyStore) Retrieve() ([]byte, error) {
	item, err := k.ring.Get(masterKeyItem)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key from keyring: %w", err)
	}
	return item.Data, nil
}

// Delete removes the key from the keyring
func (k *KeyringKeyStore) Delete() error {
	err := k.ring.Remove(masterKeyItem)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key from keyring: %w", err)
	}
	return nil
}

// Exists checks if the key is present
func (k *KeyringKeyStore) Exists() bool {
	_, err := k.ring.Get(masterKeyItem)
	return err == nil
}
