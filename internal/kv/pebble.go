package kv

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

// PebbleStore implements Store using Pebble (CockroachDB's LSM engine)
type PebbleStore struct {
	db     *pebble.DB
	closed atomic.Bool
	sync   *pebble.WriteOptions
	logger *logrus.Logger
}

// NewPebbleStore opens <Dir>/<Name> as a Pebble database
func NewPebbleStore(opts Options) (*PebbleStore, error) {
	if opts.InMemory {
		return nil, fmt.Errorf("pebble backend does not support in-memory mode")
	}

	dbPath := filepath.Join(opts.Dir, opts.Name)

	cache := pebble.NewCache(8 << 20) // settings are tiny; 8 MB is plenty
	defer cache.Unref()

	db, err := pebble.Open(dbPath, &pebble.Options{
		Cache:  cache,
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	writeOpts := pebble.NoSync
	if opts.SyncWrites {
		writeOpts = pebble.Sync
	}

	opts.Logger.WithField("path", dbPath).Debug("Pebble settings store initialized")
	return &PebbleStore{db: db, sync: writeOpts, logger: opts.Logger}, nil
}

// Get reads a single key and returns a safe copy of the value
func (s *PebbleStore) Get(key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	data := make([]byte, len(val))
	copy(data, val)
	_ = closer.Close()
	return data, nil
}

// Put stores a key-value pair
func (s *PebbleStore) Put(key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, s.sync); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *PebbleStore) Delete(key string) error {
	if err := s.db.Delete([]byte(key), s.sync); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Scan iterates the prefix-bounded range [prefix, prefixEnd(prefix))
func (s *PebbleStore) Scan(prefix string, fn func(key string, value []byte) bool) error {
	lower := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd(lower),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		if !fn(key, val) {
			break
		}
	}
	return iter.Error()
}

// Batch applies writes and deletes atomically via a Pebble batch
func (s *PebbleStore) Batch(sets map[string][]byte, deletes []string) error {
	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	for k, v := range sets {
		if err := batch.Set([]byte(k), v, nil); err != nil {
			return fmt.Errorf("batch set %q: %w", k, err)
		}
	}
	for _, k := range deletes {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return fmt.Errorf("batch delete %q: %w", k, err)
		}
	}
	return batch.Commit(s.sync)
}

// Sync flushes the memtable to disk
func (s *PebbleStore) Sync() error {
	return s.db.Flush()
}

// Close closes the database; later calls are no-ops
func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// pebbleLogger adapts logrus to pebble's Logger interface
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}

var _ Store = (*PebbleStore)(nil)
