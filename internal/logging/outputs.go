package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Output represents a log output destination
type Output interface {
	Write(entry *LogEntry) error
	Close() error
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// FileOutput appends entries to a file as JSON lines
type FileOutput struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileOutput opens path for appending, creating it (and its directory)
// owner-only
func NewFileOutput(path string) (*FileOutput, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileOutput{file: f, enc: json.NewEncoder(f)}, nil
}

func (o *FileOutput) Write(entry *LogEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return os.ErrClosed
	}
	return o.enc.Encode(entry)
}

// Close is safe to call more than once
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}
