package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputHook is a logrus hook that sends logs to an Output
type OutputHook struct {
	output Output
	levels []logrus.Level
}

// NewOutputHook creates a hook for entries at or above minLevel
func NewOutputHook(output Output, minLevel logrus.Level) *OutputHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &OutputHook{output: output, levels: levels}
}

// Levels returns the log levels this hook should fire for
func (h *OutputHook) Levels() []logrus.Level {
	return h.levels
}

// Fire writes the entry synchronously so nothing is lost on exit
func (h *OutputHook) Fire(entry *logrus.Entry) error {
	logEntry := &LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    make(map[string]interface{}, len(entry.Data)),
	}
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		logEntry.Fields[k] = v
	}

	if err := h.output.Write(logEntry); err != nil {
		// Not through logrus: that would re-enter this hook
		fmt.Fprintf(os.Stderr, "failed to write log output: %v\n", err)
	}
	return nil
}
