// Package kv provides the byte-level key-value stores that back the
// settings engine. Three engines are available: SQLite (default), Pebble
// and BadgerDB. All of them are safe for concurrent use.
package kv

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get when the key is absent
var ErrNotFound = errors.New("key not found")

// Store is a persistent key-value store.
//
// Delete of an absent key is not an error. Scan visits keys sharing a
// prefix in lexicographic order; fn receives copies and returning false
// stops the scan early.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Scan(prefix string, fn func(key string, value []byte) bool) error

	// Batch applies a set of writes and deletes atomically
	Batch(sets map[string][]byte, deletes []string) error

	// Sync flushes buffered writes to durable storage
	Sync() error
	Close() error
}

// Backend selects a storage engine
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendPebble Backend = "pebble"
	BackendBadger Backend = "badger"
)

// ParseBackend validates a backend name from configuration
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendSQLite, BackendPebble, BackendBadger:
		return b, nil
	case "":
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q (want sqlite, pebble or badger)", name)
	}
}

// Options configures Open
type Options struct {
	Backend Backend
	// Dir is the directory that holds the store's files
	Dir string
	// Name distinguishes several stores in the same directory ("settings", "secure")
	Name string
	// InMemory keeps all data in memory (badger only; used by tests and dry runs)
	InMemory bool
	// SyncWrites forces every write to disk before returning
	SyncWrites bool
	Logger     *logrus.Logger
}

// Open creates or opens a store with the given engine
func Open(opts Options) (Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Name == "" {
		opts.Name = "settings"
	}
	if !opts.InMemory {
		if opts.Dir == "" {
			return nil, fmt.Errorf("kv: data directory is required")
		}
		if err := os.MkdirAll(opts.Dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts)
	case BackendPebble:
		return NewPebbleStore(opts)
	case BackendBadger:
		return NewBadgerStore(opts)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// prefixEnd returns the exclusive upper bound for a prefix scan.
// It increments the last byte of the prefix; returns nil if all bytes overflow.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // all bytes overflowed; no upper bound
}
