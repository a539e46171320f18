package logging

import "errors"

var (
	// ErrInvalidFormat is returned for a log format other than json or text
	ErrInvalidFormat = errors.New("invalid log format")

	// ErrInvalidLevel is returned for an unknown log level name
	ErrInvalidLevel = errors.New("invalid log level")
)
