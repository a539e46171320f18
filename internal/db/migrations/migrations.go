// Package migrations versions the SQLite files the settings engine owns.
// Each file kind (settings key-value store, change log) has its own ordered
// set of steps; applied steps are tracked per set, so one database file can
// host more than one set.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNewerSchema is returned when a file was migrated by a newer build
var ErrNewerSchema = errors.New("database schema is newer than this build")

// Step is one schema change
type Step struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
}

// Set names a family of steps that belongs to one kind of database file
type Set string

const (
	// SetKV is applied to key-value databases (plaintext and encrypted settings)
	SetKV Set = "kv"
	// SetAudit is applied to the settings change log
	SetAudit Set = "audit"
)

// Applied is a step recorded in the version table
type Applied struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// Runner applies the steps of one set to a database
type Runner struct {
	db     *sql.DB
	set    Set
	steps  []Step
	logger *logrus.Logger
}

// Apply brings db up to date for set
func Apply(ctx context.Context, db *sql.DB, set Set, logger *logrus.Logger) error {
	r, err := NewRunner(db, set, logger)
	if err != nil {
		return err
	}
	return r.Up(ctx)
}

// NewRunner checks the steps of set and prepares a runner
func NewRunner(db *sql.DB, set Set, logger *logrus.Logger) (*Runner, error) {
	if logger == nil {
		logger = logrus.New()
	}
	steps, ok := registry[set]
	if !ok {
		return nil, fmt.Errorf("unknown migration set %q", set)
	}

	sorted := append([]Step(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i, step := range sorted {
		if step.Version != i+1 {
			return nil, fmt.Errorf("migration set %s: expected version %d, found %d", set, i+1, step.Version)
		}
	}

	return &Runner{db: db, set: set, steps: sorted, logger: logger}, nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			set_name TEXT NOT NULL,
			version INTEGER NOT NULL,
			description TEXT NOT NULL,
			applied_at INTEGER NOT NULL,
			PRIMARY KEY (set_name, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// Current returns the highest applied version of the set, 0 for a fresh file
func (r *Runner) Current(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE set_name = ?", string(r.set),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Target returns the version this build expects
func (r *Runner) Target() int {
	return len(r.steps)
}

// Up applies every pending step, each in its own transaction
func (r *Runner) Up(ctx context.Context) error {
	current, err := r.Current(ctx)
	if err != nil {
		return err
	}

	target := r.Target()
	log := r.logger.WithFields(logrus.Fields{"set": r.set, "from": current, "to": target})
	switch {
	case current == target:
		log.Debug("Database schema is up to date")
		return nil
	case current > target:
		return fmt.Errorf("%w: %s is at version %d, this build knows %d", ErrNewerSchema, r.set, current, target)
	}

	log.Info("Migrating database schema")
	for _, step := range r.steps[current:] {
		if err := r.apply(ctx, step); err != nil {
			return fmt.Errorf("migration %s/%d (%s) failed: %w", r.set, step.Version, step.Description, err)
		}
		r.logger.WithFields(logrus.Fields{"set": r.set, "version": step.Version}).Debug(step.Description)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, step Step) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = step.Up(tx); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (set_name, version, description, applied_at) VALUES (?, ?, ?, ?)",
		string(r.set), step.Version, step.Description, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// History lists the applied steps of the set, oldest first
func (r *Runner) History(ctx context.Context) ([]Applied, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT version, description, applied_at FROM schema_migrations WHERE set_name = ? ORDER BY version",
		string(r.set),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var history []Applied
	for rows.Next() {
		var (
			a  Applied
			at int64
		)
		if err := rows.Scan(&a.Version, &a.Description, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		a.AppliedAt = time.Unix(at, 0)
		history = append(history, a)
	}
	return history, rows.Err()
}
