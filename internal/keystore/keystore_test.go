package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")
	ks := NewFileKeyStore(path)

	assert.False(t, ks.Exists())
	_, err := ks.Retrieve()
	assert.ErrorIs(t, err, ErrNoKey)

	require.NoError(t, ks.Store([]byte("0123456789abcdef0123456789abcdef")))
	assert.True(t, ks.Exists())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	key, err := ks.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), key)

	require.NoError(t, ks.Delete())
	assert.False(t, ks.Exists())
	assert.NoError(t, ks.Delete())
}

func TestLoadOrCreate(t *testing.T) {
	ks := NewFileKeyStore(filepath.Join(t.TempDir(), "master.key"))

	first, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.Len(t, first, MasterKeySize)

	second, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.Equal(t, first, second, "key must be stable once created")
}

func TestLoadOrCreate_RejectsWrongSize(t *testing.T) {
	ks := NewFileKeyStore(filepath.Join(t.TempDir(), "master.key"))
	require.NoError(t, ks.Store([]byte("short")))

	_, err := LoadOrCreate(ks)
	assert.Error(t, err)
}

func TestKeyringKeyStore_FileBackend(t *testing.T) {
	ks, err := NewKeyringKeyStore(KeyringOptions{
		Backends:     []keyring.BackendType{keyring.FileBackend},
		FileDir:      t.TempDir(),
		FilePassword: "test-password",
	})
	require.NoError(t, err)

	assert.False(t, ks.Exists())
	_, err = ks.Retrieve()
	assert.ErrorIs(t, err, ErrNoKey)

	key, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.True(t, ks.Exists())

	again, err := ks.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, key, again)

	require.NoError(t, ks.Delete())
	assert.False(t, ks.Exists())
}

func TestNew(t *testing.T) {
	ks, err := New(Options{Provider: ProviderFile, Path: filepath.Join(t.TempDir(), "k")})
	require.NoError(t, err)
	assert.IsType(t, &FileKeyStore{}, ks)

	_, err = New(Options{Provider: ProviderFile})
	assert.Error(t, err)

	_, err = New(Options{Provider: "hsm"})
	assert.Error(t, err)
}
