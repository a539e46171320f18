package kv

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// openBackends returns one fresh store per engine
func openBackends(t *testing.T) map[Backend]Store {
	t.Helper()
	stores := make(map[Backend]Store)
	for _, backend := range []Backend{BackendSQLite, BackendPebble, BackendBadger} {
		store, err := Open(Options{
			Backend: backend,
			Dir:     t.TempDir(),
			Name:    "test",
			Logger:  quietLogger(),
		})
		require.NoError(t, err, "open %s", backend)
		t.Cleanup(func() { store.Close() })
		stores[backend] = store
	}
	return stores
}

func TestStore_PutGetDelete(t *testing.T) {
	for backend, store := range openBackends(t) {
		t.Run(string(backend), func(t *testing.T) {
			_, err := store.Get("editor.fontSize")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put("editor.fontSize", []byte("16")))
			val, err := store.Get("editor.fontSize")
			require.NoError(t, err)
			assert.Equal(t, []byte("16"), val)

			require.NoError(t, store.Put("editor.fontSize", []byte("18")))
			val, err = store.Get("editor.fontSize")
			require.NoError(t, err)
			assert.Equal(t, []byte("18"), val)

			require.NoError(t, store.Delete("editor.fontSize"))
			_, err = store.Get("editor.fontSize")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting an absent key is fine
			assert.NoError(t, store.Delete("editor.fontSize"))
		})
	}
}

func TestStore_ScanPrefix(t *testing.T) {
	for backend, store := range openBackends(t) {
		t.Run(string(backend), func(t *testing.T) {
			for i := 0; i < 5; i++ {
				require.NoError(t, store.Put(fmt.Sprintf("editor.k%d", i), []byte{byte(i)}))
			}
			require.NoError(t, store.Put("editorx.other", []byte("x")))
			require.NoError(t, store.Put("git.userName", []byte("y")))

			var keys []string
			err := store.Scan("editor.", func(key string, value []byte) bool {
				keys = append(keys, key)
				return true
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"editor.k0", "editor.k1", "editor.k2", "editor.k3", "editor.k4"}, keys)

			// Early stop
			count := 0
			err = store.Scan("editor.", func(string, []byte) bool {
				count++
				return count < 2
			})
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			// Empty prefix visits everything
			total := 0
			require.NoError(t, store.Scan("", func(string, []byte) bool { total++; return true }))
			assert.Equal(t, 7, total)
		})
	}
}

func TestStore_Batch(t *testing.T) {
	for backend, store := range openBackends(t) {
		t.Run(string(backend), func(t *testing.T) {
			require.NoError(t, store.Put("a.old", []byte("1")))

			err := store.Batch(map[string][]byte{
				"a.one": []byte("1"),
				"a.two": []byte("2"),
			}, []string{"a.old", "a.missing"})
			require.NoError(t, err)

			_, err = store.Get("a.old")
			assert.ErrorIs(t, err, ErrNotFound)
			val, err := store.Get("a.two")
			require.NoError(t, err)
			assert.Equal(t, []byte("2"), val)

			assert.NoError(t, store.Sync())
		})
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	for _, backend := range []Backend{BackendSQLite, BackendPebble, BackendBadger} {
		t.Run(string(backend), func(t *testing.T) {
			dir := t.TempDir()
			opts := Options{Backend: backend, Dir: dir, Name: "persist", Logger: quietLogger()}

			store, err := Open(opts)
			require.NoError(t, err)
			require.NoError(t, store.Put("theme.mode", []byte("dark")))
			require.NoError(t, store.Sync())
			require.NoError(t, store.Close())

			store, err = Open(opts)
			require.NoError(t, err)
			defer store.Close()

			val, err := store.Get("theme.mode")
			require.NoError(t, err)
			assert.Equal(t, []byte("dark"), val)
		})
	}
}

func TestOpen_InMemoryBadger(t *testing.T) {
	store, err := Open(Options{Backend: BackendBadger, InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("k", []byte("v")))
	val, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
	assert.NoError(t, store.Sync())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Options{Backend: BackendSQLite})
	assert.Error(t, err, "directory required")

	_, err = Open(Options{Backend: BackendSQLite, InMemory: true})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "leveldb", Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend(" Pebble ")
	require.NoError(t, err)
	assert.Equal(t, BackendPebble, b)

	b, err = ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b)

	_, err = ParseBackend("bolt")
	assert.Error(t, err)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("editor/"), prefixEnd([]byte("editor.")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	assert.Nil(t, prefixEnd(nil))
}
