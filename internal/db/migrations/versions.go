package migrations

import "database/sql"

var registry = map[Set][]Step{
	SetKV: {
		{
			Version:     1,
			Description: "Create settings_kv table",
			Up: exec(`
				CREATE TABLE IF NOT EXISTS settings_kv (
					key TEXT PRIMARY KEY,
					value BLOB NOT NULL,
					updated_at INTEGER NOT NULL
				)`),
		},
		{
			Version:     2,
			Description: "Index settings_kv by update time",
			Up:          exec(`CREATE INDEX IF NOT EXISTS idx_settings_kv_updated_at ON settings_kv(updated_at DESC)`),
		},
	},
	SetAudit: {
		{
			Version:     1,
			Description: "Create settings_changes table",
			Up: exec(`
				CREATE TABLE IF NOT EXISTS settings_changes (
					id TEXT PRIMARY KEY,
					timestamp INTEGER NOT NULL,
					event TEXT NOT NULL,
					module_id TEXT NOT NULL,
					setting_key TEXT,
					value_type TEXT,
					value TEXT,
					details TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_settings_changes_timestamp ON settings_changes(timestamp DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_settings_changes_module ON settings_changes(module_id)`,
			),
		},
	},
}

// exec runs statements in order
func exec(statements ...string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}
}
