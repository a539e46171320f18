package securestore

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/keystore"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/kv"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = schema.MustNew(
	schema.StringField("userName", ""),
	schema.IntField("fetchInterval", 15).Range(1, 1440),
	schema.StringField("accessToken", "").Secret(),
)

func memStore(t *testing.T) kv.Store {
	t.Helper()
	store, err := kv.Open(kv.Options{Backend: kv.BackendBadger, InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fixture struct {
	store  *Store
	plain  kv.Store
	secure kv.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{plain: memStore(t), secure: memStore(t)}
	store, err := New(Options{
		Plain:      f.plain,
		OpenSecure: func() (kv.Store, error) { return f.secure, nil },
		KeyStore:   keystore.NewFileKeyStore(filepath.Join(t.TempDir(), "master.key")),
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	f.store = store
	return f
}

func TestScope_PlainRoundTrip(t *testing.T) {
	f := newFixture(t)
	scope := f.store.Scope("git", testSchema)

	assert.Equal(t, "fallback", mustString(scope.Get("userName", schema.String("fallback"))))
	assert.False(t, scope.Contains("userName"))

	require.True(t, scope.Put("userName", schema.String("octocat")))
	assert.True(t, scope.Contains("userName"))
	assert.Equal(t, "octocat", mustString(scope.Get("userName", schema.String(""))))

	raw, err := f.plain.Get("git.userName")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "octocat")

	require.True(t, scope.Remove("userName"))
	assert.False(t, scope.Contains("userName"))
}

func TestScope_SensitiveNeverInPlaintext(t *testing.T) {
	f := newFixture(t)
	scope := f.store.Scope("git", testSchema)

	require.True(t, scope.Put("accessToken", schema.String("ghp_supersecret")))
	assert.True(t, f.store.IsEncryptionAvailable())

	_, err := f.plain.Get("git.accessToken")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, f.plain.Scan("", func(_ string, value []byte) bool {
		assert.False(t, bytes.Contains(value, []byte("ghp_supersecret")))
		return true
	}))

	blob, err := f.secure.Get("git.accessToken")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(blob, []byte("ghp_supersecret")))

	assert.Equal(t, "ghp_supersecret", mustString(scope.Get("accessToken", schema.String(""))))
	assert.True(t, scope.Contains("accessToken"))
}

func TestScope_TypeMismatchReturnsDefault(t *testing.T) {
	f := newFixture(t)
	scope := f.store.Scope("git", testSchema)

	// A value of the wrong type written behind the schema's back
	raw, err := schema.Encode(schema.String("not a number"))
	require.NoError(t, err)
	require.NoError(t, f.plain.Put("git.fetchInterval", raw))

	got := scope.Get("fetchInterval", schema.Int(15))
	n, ok := got.AsInt()
	assert.True(t, ok)
	assert.Equal(t, 15, n)

	// Unknown keys also fall back to the default
	assert.Equal(t, "d", mustString(scope.Get("nope", schema.String("d"))))
}

func TestScope_Clear(t *testing.T) {
	f := newFixture(t)
	git := f.store.Scope("git", testSchema)
	other := f.store.Scope("gitx", testSchema)

	require.True(t, git.Put("userName", schema.String("a")))
	require.True(t, git.Put("accessToken", schema.String("t")))
	require.True(t, other.Put("userName", schema.String("b")))

	require.True(t, git.Clear())
	assert.False(t, git.Contains("userName"))
	assert.False(t, git.Contains("accessToken"))
	assert.True(t, other.Contains("userName"), "sibling namespaces are untouched")

	var left []string
	require.NoError(t, f.plain.Scan("git", func(key string, _ []byte) bool {
		left = append(left, key)
		return true
	}))
	assert.Equal(t, []string{"gitx.userName"}, left)
}

type brokenKeyStore struct{}

func (brokenKeyStore) Store([]byte) error { return errors.New("keystore locked") }

func (brokenKeyStore) Retrieve() ([]byte, error) { return nil, errors.New("keystore locked") }

func (brokenKeyStore) Delete() error { return nil }

func (brokenKeyStore) Exists() bool { return false }

func TestStore_FallbackToPlaintext(t *testing.T) {
	plain := memStore(t)
	opened := 0
	var reported []bool
	store, err := New(Options{
		Plain: plain,
		OpenSecure: func() (kv.Store, error) {
			opened++
			return memStore(t), nil
		},
		KeyStore:          brokenKeyStore{},
		OnEncryptionState: func(ok bool) { reported = append(reported, ok) },
		Logger:            quietLogger(),
	})
	require.NoError(t, err)

	scope := store.Scope("ai", testSchema)
	require.True(t, scope.Put("accessToken", schema.String("sk-1")))
	assert.Equal(t, "sk-1", mustString(scope.Get("accessToken", schema.String(""))))

	assert.False(t, store.IsEncryptionAvailable())
	assert.False(t, store.ValidateEncryption())
	assert.Error(t, store.EncryptionError())

	// The downgrade is permanent and attempted once
	require.True(t, scope.Put("accessToken", schema.String("sk-2")))
	assert.Equal(t, 0, opened)
	assert.Equal(t, []bool{false}, reported)

	_, err = plain.Get("ai.accessToken")
	assert.NoError(t, err, "fallback writes land in the plaintext store")
}

func TestStore_PromotesFallbackValues(t *testing.T) {
	plain := memStore(t)
	secure := memStore(t)

	// First run: encryption off, the token lands in plaintext
	degraded, err := New(Options{Plain: plain, Disabled: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.True(t, degraded.Scope("git", testSchema).Put("accessToken", schema.String("ghp_secret")))
	_, err = plain.Get("git.accessToken")
	require.NoError(t, err)

	// Next run: encryption works and the old value is still readable
	store, err := New(Options{
		Plain:      plain,
		OpenSecure: func() (kv.Store, error) { return secure, nil },
		KeyStore:   keystore.NewFileKeyStore(filepath.Join(t.TempDir(), "master.key")),
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	scope := store.Scope("git", testSchema)

	assert.True(t, scope.Contains("accessToken"))
	assert.Equal(t, "ghp_secret", mustString(scope.Get("accessToken", schema.String(""))))
	assert.True(t, store.IsEncryptionAvailable())

	_, err = plain.Get("git.accessToken")
	assert.ErrorIs(t, err, kv.ErrNotFound, "plaintext copy is removed")
	raw, err := secure.Get("git.accessToken")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("ghp_secret")))

	// Reads after the move come from the encrypted store
	assert.Equal(t, "ghp_secret", mustString(scope.Get("accessToken", schema.String(""))))
}

func TestStore_EncryptedPutDropsPlaintextCopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.plain.Put("git.accessToken", []byte(`{"t":"STRING","v":"stale"}`)))

	scope := f.store.Scope("git", testSchema)
	require.True(t, scope.Put("accessToken", schema.String("fresh")))

	_, err := f.plain.Get("git.accessToken")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.Equal(t, "fresh", mustString(scope.Get("accessToken", schema.String(""))))
}

func TestStore_Disabled(t *testing.T) {
	store, err := New(Options{Plain: memStore(t), Disabled: true, Logger: quietLogger()})
	require.NoError(t, err)
	assert.ErrorIs(t, store.EncryptionError(), ErrEncryptionDisabled)
}

func TestStore_ValidateEncryption(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.store.ValidateEncryption())

	_, err := f.secure.Get(checkKey)
	assert.ErrorIs(t, err, kv.ErrNotFound, "check value is cleaned up")
}

func TestStore_SaltIsStable(t *testing.T) {
	plain := memStore(t)
	secure := memStore(t)
	ks := keystore.NewFileKeyStore(filepath.Join(t.TempDir(), "master.key"))
	open := func() *Store {
		s, err := New(Options{
			Plain:      plain,
			OpenSecure: func() (kv.Store, error) { return secure, nil },
			KeyStore:   ks,
			Logger:     quietLogger(),
		})
		require.NoError(t, err)
		return s
	}

	first := open().Scope("voice", testSchema)
	require.True(t, first.Put("accessToken", schema.String("persisted")))

	// A second Store over the same backends derives the same data key
	second := open().Scope("voice", testSchema)
	assert.Equal(t, "persisted", mustString(second.Get("accessToken", schema.String(""))))
}

func TestNew_RequiresPlain(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func mustString(v schema.Value) string {
	s, _ := v.AsString()
	return s
}
