package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/db/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the change log database at dbPath
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrations.Apply(context.Background(), db, migrations.SetAudit, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	logger.WithField("path", dbPath).Debug("Settings audit store initialized")
	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// Record inserts a change record
func (s *SQLiteStore) Record(ctx context.Context, rec *ChangeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().Unix()
	}

	detailsJSON := "{}"
	if len(rec.Details) > 0 {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to marshal change details to JSON")
		} else {
			detailsJSON = string(raw)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings_changes (id, timestamp, event, module_id, setting_key, value_type, value, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp, rec.Event, rec.ModuleID, rec.Key, rec.ValueType, rec.Value, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert change record: %w", err)
	}
	return nil
}

// List retrieves change records with filters
func (s *SQLiteStore) List(ctx context.Context, filters *Filters) ([]*ChangeRecord, int, error) {
	where, args := buildWhereClause(filters)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM settings_changes "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count change records: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT id, timestamp, event, module_id, setting_key, value_type, value, details
		FROM settings_changes %s
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, where)

	rows, err := s.db.QueryContext(ctx, query, append(args, filters.PageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query change records: %w", err)
	}
	defer rows.Close()

	var records []*ChangeRecord
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating change records: %w", err)
	}
	return records, total, nil
}

// Get retrieves a single record by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, event, module_id, setting_key, value_type, value, details
		FROM settings_changes WHERE id = ?
	`, id)

	rec, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return rec, err
}

// Purge deletes records older than olderThanDays
func (s *SQLiteStore) Purge(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := s.now().AddDate(0, 0, -olderThanDays).Unix()
	result, err := s.db.ExecContext(ctx, "DELETE FROM settings_changes WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge change records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted rows count: %w", err)
	}
	return int(deleted), nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scan(row rowScanner) (*ChangeRecord, error) {
	rec := &ChangeRecord{}
	var key, valueType, value, details sql.NullString
	err := row.Scan(&rec.ID, &rec.Timestamp, &rec.Event, &rec.ModuleID, &key, &valueType, &value, &details)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan change record: %w", err)
	}

	rec.Key = key.String
	rec.ValueType = valueType.String
	rec.Value = value.String
	rec.Details = make(map[string]interface{})
	if details.Valid && details.String != "" && details.String != "{}" {
		if err := json.Unmarshal([]byte(details.String), &rec.Details); err != nil {
			s.logger.WithError(err).Warn("Failed to unmarshal change details")
		}
	}
	return rec, nil
}

func buildWhereClause(filters *Filters) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filters.ModuleID != "" {
		conditions = append(conditions, "module_id = ?")
		args = append(args, filters.ModuleID)
	}
	if filters.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filters.Event)
	}
	if filters.StartDate > 0 {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filters.StartDate)
	}
	if filters.EndDate > 0 {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filters.EndDate)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
