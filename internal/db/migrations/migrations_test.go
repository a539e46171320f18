package migrations

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestRunner_FreshDatabase(t *testing.T) {
	db := openDB(t)
	r, err := NewRunner(db, SetKV, nil)
	require.NoError(t, err)

	current, err := r.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, current)
	assert.Equal(t, 2, r.Target())
	assert.True(t, tableExists(t, db, "schema_migrations"))
}

func TestApply_SetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	require.NoError(t, Apply(ctx, db, SetKV, quietLogger()))
	assert.True(t, tableExists(t, db, "settings_kv"))
	assert.False(t, tableExists(t, db, "settings_changes"))

	// Same file, second set starts from zero
	audit, err := NewRunner(db, SetAudit, quietLogger())
	require.NoError(t, err)
	current, err := audit.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	require.NoError(t, audit.Up(ctx))
	assert.True(t, tableExists(t, db, "settings_changes"))
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	require.NoError(t, Apply(ctx, db, SetKV, quietLogger()))
	require.NoError(t, Apply(ctx, db, SetKV, quietLogger()))

	r, err := NewRunner(db, SetKV, quietLogger())
	require.NoError(t, err)
	history, err := r.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, "Index settings_kv by update time", history[1].Description)
	assert.False(t, history[0].AppliedAt.IsZero())
}

func TestApply_NewerDatabase(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	require.NoError(t, Apply(ctx, db, SetAudit, quietLogger()))

	_, err := db.Exec("INSERT INTO schema_migrations (set_name, version, description, applied_at) VALUES ('audit', 99, 'future', 0)")
	require.NoError(t, err)

	err = Apply(ctx, db, SetAudit, quietLogger())
	assert.ErrorIs(t, err, ErrNewerSchema)
}

func TestApply_FailedStepRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	registry["broken"] = []Step{
		{Version: 1, Description: "ok", Up: exec(`CREATE TABLE first (id INTEGER)`)},
		{Version: 2, Description: "bad", Up: exec(`CREATE TABLE second (id INTEGER)`, `NOT SQL`)},
	}
	t.Cleanup(func() { delete(registry, "broken") })

	err := Apply(ctx, db, "broken", quietLogger())
	require.Error(t, err)
	assert.True(t, tableExists(t, db, "first"))
	assert.False(t, tableExists(t, db, "second"))

	r, err := NewRunner(db, "broken", quietLogger())
	require.NoError(t, err)
	current, err := r.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
}

func TestNewRunner_Errors(t *testing.T) {
	db := openDB(t)

	_, err := NewRunner(db, "nope", nil)
	assert.Error(t, err)

	registry["gap"] = []Step{{Version: 2, Description: "gap", Up: exec()}}
	t.Cleanup(func() { delete(registry, "gap") })
	_, err = NewRunner(db, "gap", nil)
	assert.Error(t, err)
}
