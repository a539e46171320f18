package settings

import "errors"

var (
	// ErrEmptyImport is returned by ImportSettings for an empty or nil entry list
	ErrEmptyImport = errors.New("nothing to import")

	// ErrUnknownModule is returned for a module id that was never registered
	ErrUnknownModule = errors.New("unknown module")

	// ErrDependencyCycle is returned when a dependency edge would close a cycle
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrDuplicateModule is returned when two factories produce the same id
	ErrDuplicateModule = errors.New("duplicate module id")

	// ErrNotInitialized is returned by operations that need Initialize first
	ErrNotInitialized = errors.New("settings manager not initialized")

	// ErrNewerVersion is returned when importing an envelope from a newer schema
	ErrNewerVersion = errors.New("envelope was written by a newer version")

	// ErrInvalidEnvelope is returned for a malformed export document
	ErrInvalidEnvelope = errors.New("invalid settings envelope")

	// ErrStorage is returned when the backing store refuses a write
	ErrStorage = errors.New("settings storage failure")
)
