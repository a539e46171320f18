package kv

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/db/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite table
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// NewSQLiteStore opens <Dir>/<Name>.db and migrates it to the current schema
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	if opts.InMemory {
		return nil, fmt.Errorf("sqlite backend does not support in-memory mode")
	}

	dbPath := filepath.Join(opts.Dir, opts.Name+".db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if opts.SyncWrites {
		dsn += "&_pragma=synchronous(FULL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One writer at a time; readers share the pool
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrations.Apply(context.Background(), db, migrations.SetKV, opts.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", dbPath, err)
	}

	opts.Logger.WithField("path", dbPath).Debug("SQLite settings store initialized")
	return &SQLiteStore{db: db, path: dbPath, logger: opts.Logger}, nil
}

// Get retrieves a value by exact key
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM settings_kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, nil
}

// Put stores a key-value pair
func (s *SQLiteStore) Put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO settings_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings_kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Scan iterates keys with the given prefix in key order
func (s *SQLiteStore) Scan(prefix string, fn func(key string, value []byte) bool) error {
	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixEnd([]byte(prefix)); end != nil {
		rows, err = s.db.Query(`SELECT key, value FROM settings_kv WHERE key >= ? AND key < ? ORDER BY key`, prefix, string(end))
	} else {
		rows, err = s.db.Query(`SELECT key, value FROM settings_kv WHERE key >= ? ORDER BY key`, prefix)
	}
	if err != nil {
		return fmt.Errorf("failed to scan prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if !fn(key, value) {
			break
		}
	}
	return rows.Err()
}

// Batch applies writes and deletes in one transaction
func (s *SQLiteStore) Batch(sets map[string][]byte, deletes []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for k, v := range sets {
		if _, err := tx.Exec(`
			INSERT INTO settings_kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, k, v, now); err != nil {
			return fmt.Errorf("batch set %q: %w", k, err)
		}
	}
	for _, k := range deletes {
		if _, err := tx.Exec(`DELETE FROM settings_kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("batch delete %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Sync checkpoints the WAL into the main database file
func (s *SQLiteStore) Sync() error {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		return fmt.Errorf("failed to checkpoint %s: %w", s.path, err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
