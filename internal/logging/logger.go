// Package logging builds the logrus loggers used across the settings engine.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Format names
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures NewLogger
type Options struct {
	Level  string
	Format string
	// Output defaults to stderr so command output on stdout stays clean
	Output io.Writer
	// File, when set, receives a JSON-lines copy of every entry at or above FileLevel
	File      string
	FileLevel string
}

// NewLogger creates a configured logger. The returned closer releases the
// file output, if any.
func NewLogger(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	if err := SetFormat(logger, opts.Format); err != nil {
		return nil, nil, err
	}

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	if opts.File == "" {
		return logger, nopCloser{}, nil
	}

	out, err := NewFileOutput(opts.File)
	if err != nil {
		return nil, nil, err
	}
	fileLevel := level
	if opts.FileLevel != "" {
		if fileLevel, err = parseLevel(opts.FileLevel); err != nil {
			out.Close()
			return nil, nil, err
		}
	}
	logger.AddHook(NewOutputHook(out, fileLevel))
	return logger, out, nil
}

// SetFormat applies the json or text formatter
func SetFormat(logger *logrus.Logger, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	return nil
}

func parseLevel(name string) (logrus.Level, error) {
	if name == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
	}
	return level, nil
}

// Discard returns a logger that drops everything
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
