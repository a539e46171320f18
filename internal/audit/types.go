package audit

import "context"

// Event types
const (
	EventSettingChanged = "setting_changed"
	EventModuleReset    = "module_reset"
	EventImported       = "settings_imported"
)

// RedactedValue is stored in place of a sensitive setting's value
const RedactedValue = "[redacted]"

// ChangeRecord represents a stored settings change
type ChangeRecord struct {
	ID        string                 `json:"id"`
	Timestamp int64                  `json:"timestamp"`  // Unix timestamp (seconds)
	Event     string                 `json:"event"`      // see Event types
	ModuleID  string                 `json:"module_id"`  // empty for imports
	Key       string                 `json:"key"`        // empty for resets and imports
	ValueType string                 `json:"value_type"` // export type name
	Value     string                 `json:"value"`      // text form, or RedactedValue
	Details   map[string]interface{} `json:"details"`
}

// Filters for querying the change log
type Filters struct {
	ModuleID  string
	Event     string
	StartDate int64 // Unix timestamp, inclusive
	EndDate   int64 // Unix timestamp, inclusive
	Page      int   // 1-based
	PageSize  int
}

// Store defines the interface for change log storage
type Store interface {
	// Record appends a change; an empty ID is filled in
	Record(ctx context.Context, rec *ChangeRecord) error

	// List returns one page of records, newest first, and the total match count
	List(ctx context.Context, filters *Filters) ([]*ChangeRecord, int, error)

	// Get retrieves a single record
	Get(ctx context.Context, id string) (*ChangeRecord, error)

	// Purge deletes records older than the given number of days
	Purge(ctx context.Context, olderThanDays int) (int, error)

	Close() error
}
