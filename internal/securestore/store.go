// Package securestore routes module settings to a plaintext or an
// encrypted key-value store depending on the schema's sensitive flag.
//
// The encrypted side is opened lazily the first time a sensitive key is
// touched. If anything on that path fails (keystore, key derivation,
// backend) the store degrades to plaintext for the rest of the process and
// logs the downgrade once.
package securestore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/keystore"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/kv"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/pkg/encryption"
)

const (
	// saltKey lives in the plaintext store; HKDF salts are not secret
	saltKey   = "_securestore.salt"
	checkKey  = "_securestore.check"
	saltBytes = 16
)

// ErrEncryptionDisabled is reported when encryption is switched off in config
var ErrEncryptionDisabled = errors.New("encryption disabled by configuration")

// Options configures a Store
type Options struct {
	// Plain holds every non-sensitive value (and sensitive ones after a downgrade)
	Plain kv.Store
	// OpenSecure opens the backend for encrypted values; called at most once
	OpenSecure func() (kv.Store, error)
	// KeyStore supplies the master key
	KeyStore keystore.KeyStore
	// Disabled forces plaintext fallback without trying the keystore
	Disabled bool
	// OnEncryptionState is told the outcome of the lazy encrypted-store setup
	OnEncryptionState func(available bool)
	Logger            *logrus.Logger
}

// Store is the process-wide secure value store
type Store struct {
	plain  kv.Store
	opts   Options
	logger *logrus.Logger

	once    sync.Once
	ready   atomic.Bool // secure and sealer are set
	secure  kv.Store
	sealer  *encryption.Sealer
	initErr error
}

// New creates a Store. Nothing on the encrypted path is touched until needed.
func New(opts Options) (*Store, error) {
	if opts.Plain == nil {
		return nil, fmt.Errorf("securestore: plaintext backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Store{plain: opts.Plain, opts: opts, logger: opts.Logger}, nil
}

func (s *Store) initSecure() {
	s.once.Do(func() {
		s.initErr = s.openSecure()
		if s.initErr != nil {
			s.logger.WithError(s.initErr).Warn("Encrypted settings unavailable, sensitive values fall back to plaintext storage")
		} else {
			s.logger.Debug("Encrypted settings store initialized")
		}
		if s.opts.OnEncryptionState != nil {
			s.opts.OnEncryptionState(s.initErr == nil)
		}
	})
}

func (s *Store) openSecure() error {
	if s.opts.Disabled {
		return ErrEncryptionDisabled
	}
	if s.opts.KeyStore == nil || s.opts.OpenSecure == nil {
		return fmt.Errorf("no keystore or encrypted backend configured")
	}

	master, err := keystore.LoadOrCreate(s.opts.KeyStore)
	if err != nil {
		return fmt.Errorf("master key: %w", err)
	}

	salt, err := s.loadSalt()
	if err != nil {
		return err
	}

	sealer, err := encryption.NewSealer(nil, master, salt)
	if err != nil {
		return fmt.Errorf("derive data key: %w", err)
	}

	backend, err := s.opts.OpenSecure()
	if err != nil {
		return fmt.Errorf("open encrypted backend: %w", err)
	}

	s.secure = backend
	s.sealer = sealer
	s.ready.Store(true)
	return nil
}

func (s *Store) loadSalt() ([]byte, error) {
	salt, err := s.plain.Get(saltKey)
	if err == nil && len(salt) == saltBytes {
		return salt, nil
	}
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	salt = make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := s.plain.Put(saltKey, salt); err != nil {
		return nil, fmt.Errorf("store salt: %w", err)
	}
	return salt, nil
}

// IsEncryptionAvailable reports whether sensitive values are being encrypted.
// The first call performs the lazy setup.
func (s *Store) IsEncryptionAvailable() bool {
	s.initSecure()
	return s.initErr == nil
}

// EncryptionError returns why encryption is unavailable, or nil
func (s *Store) EncryptionError() error {
	s.initSecure()
	return s.initErr
}

// ValidateEncryption writes a random value through the encrypted path, reads
// it back, compares and deletes it
func (s *Store) ValidateEncryption() bool {
	if !s.IsEncryptionAvailable() {
		return false
	}

	want := make([]byte, 16)
	if _, err := rand.Read(want); err != nil {
		return false
	}
	if err := s.putSecure(checkKey, want); err != nil {
		s.logger.WithError(err).Warn("Encryption self-check write failed")
		return false
	}
	defer s.secure.Delete(checkKey) //nolint:errcheck

	got, err := s.getSecure(checkKey)
	if err != nil {
		s.logger.WithError(err).Warn("Encryption self-check read failed")
		return false
	}
	return string(got) == string(want)
}

func (s *Store) putSecure(key string, plaintext []byte) error {
	blob, err := s.sealer.Seal(plaintext)
	if err != nil {
		return err
	}
	return s.secure.Put(key, blob)
}

func (s *Store) getSecure(key string) ([]byte, error) {
	blob, err := s.secure.Get(key)
	if err != nil {
		return nil, err
	}
	return s.sealer.Open(blob)
}

// Scope returns a view of the store for one module namespace
func (s *Store) Scope(namespace string, sch *schema.Schema) *Scope {
	return &Scope{store: s, namespace: namespace, schema: sch}
}

// Sync flushes both backends
func (s *Store) Sync() error {
	errs := []error{s.plain.Sync()}
	if s.ready.Load() {
		errs = append(errs, s.secure.Sync())
	}
	return errors.Join(errs...)
}

// Close closes both backends
func (s *Store) Close() error {
	errs := []error{s.plain.Close()}
	if s.ready.Load() {
		errs = append(errs, s.secure.Close())
	}
	return errors.Join(errs...)
}

// Scope is one module's slice of the store. Keys are stored as
// "<namespace>.<key>".
type Scope struct {
	store     *Store
	namespace string
	schema    *schema.Schema
}

// Namespace returns the module id this scope writes under
func (sc *Scope) Namespace() string { return sc.namespace }

func (sc *Scope) fullKey(key string) string {
	return sc.namespace + "." + key
}

// encrypted reports whether key must go to the encrypted backend right now
func (sc *Scope) encrypted(key string) bool {
	if !sc.schema.IsSensitive(key) {
		return false
	}
	return sc.store.IsEncryptionAvailable()
}

// Get returns the stored value, or def when the key is absent, unknown to
// the schema, unreadable, or stored with a type other than the schema's
func (sc *Scope) Get(key string, def schema.Value) schema.Value {
	field, ok := sc.schema.Field(key)
	if !ok {
		return def
	}

	var (
		raw []byte
		err error
	)
	if sc.encrypted(key) {
		raw, err = sc.store.getSecure(sc.fullKey(key))
		if errors.Is(err, kv.ErrNotFound) {
			raw, err = sc.promote(key)
		}
	} else {
		raw, err = sc.store.plain.Get(sc.fullKey(key))
	}
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			sc.logError("read", key, err)
		}
		return def
	}

	v, err := schema.Decode(raw)
	if err != nil {
		sc.logError("decode", key, err)
		return def
	}
	if v.Type() != field.Type {
		return def
	}
	return v
}

// Put writes the value to the store chosen by the schema
func (sc *Scope) Put(key string, v schema.Value) bool {
	raw, err := schema.Encode(v)
	if err != nil {
		sc.logError("encode", key, err)
		return false
	}

	if sc.encrypted(key) {
		err = sc.store.putSecure(sc.fullKey(key), raw)
		if err == nil {
			// Drop a copy left behind by an earlier plaintext fallback
			err = sc.store.plain.Delete(sc.fullKey(key))
		}
	} else {
		err = sc.store.plain.Put(sc.fullKey(key), raw)
	}
	if err != nil {
		sc.logError("write", key, err)
		return false
	}
	return true
}

// promote moves a sensitive value written while encryption was unavailable
// from the plaintext store into the encrypted one. It returns kv.ErrNotFound
// when there is no plaintext copy either.
func (sc *Scope) promote(key string) ([]byte, error) {
	full := sc.fullKey(key)
	raw, err := sc.store.plain.Get(full)
	if err != nil {
		return nil, err
	}
	if err := sc.store.putSecure(full, raw); err != nil {
		return nil, fmt.Errorf("encrypt plaintext copy: %w", err)
	}
	if err := sc.store.plain.Delete(full); err != nil {
		sc.logError("delete", key, err)
	}
	sc.store.logger.WithFields(logrus.Fields{
		"module": sc.namespace,
		"key":    key,
	}).Info("Moved sensitive setting from plaintext to encrypted storage")
	return raw, nil
}

// Remove deletes the key from whichever store could hold it
func (sc *Scope) Remove(key string) bool {
	full := sc.fullKey(key)
	if err := sc.store.plain.Delete(full); err != nil {
		sc.logError("delete", key, err)
		return false
	}
	if sc.encrypted(key) {
		if err := sc.store.secure.Delete(full); err != nil {
			sc.logError("delete", key, err)
			return false
		}
	}
	return true
}

// Contains reports whether a value is stored for key
func (sc *Scope) Contains(key string) bool {
	var err error
	if sc.encrypted(key) {
		_, err = sc.store.secure.Get(sc.fullKey(key))
		if errors.Is(err, kv.ErrNotFound) {
			_, err = sc.promote(key)
		}
	} else {
		_, err = sc.store.plain.Get(sc.fullKey(key))
	}
	return err == nil
}

// Clear removes every key of this namespace from both stores
func (sc *Scope) Clear() bool {
	prefix := sc.namespace + "."
	ok := clearPrefix(sc.store.plain, prefix, sc)

	hasSensitive := false
	for _, f := range sc.schema.Fields() {
		if f.Sensitive {
			hasSensitive = true
			break
		}
	}
	if hasSensitive && sc.store.IsEncryptionAvailable() {
		ok = clearPrefix(sc.store.secure, prefix, sc) && ok
	}
	return ok
}

func clearPrefix(store kv.Store, prefix string, sc *Scope) bool {
	var keys []string
	if err := store.Scan(prefix, func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		sc.logError("scan", "*", err)
		return false
	}
	if len(keys) == 0 {
		return true
	}
	if err := store.Batch(nil, keys); err != nil {
		sc.logError("clear", "*", err)
		return false
	}
	return true
}

func (sc *Scope) logError(op, key string, err error) {
	sc.store.logger.WithFields(logrus.Fields{
		"module": sc.namespace,
		"key":    key,
		"op":     op,
	}).WithError(err).Error("Settings storage operation failed")
}
