package settings

import (
	"fmt"
	"reflect"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
)

// State is the lifecycle state of a module
type State int32

const (
	StateUninitialized State = iota
	StateLoaded
	StateDirty
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "LOADED"
	case StateDirty:
		return "DIRTY"
	case StateSaved:
		return "SAVED"
	default:
		return "UNINITIALIZED"
	}
}

// ChangeKind distinguishes single-key writes from a module reset
type ChangeKind int

const (
	ChangeSet ChangeKind = iota
	ChangeReset
)

// Change describes one accepted write (or a reset) on a module.
// Value is left empty for sensitive keys.
type Change struct {
	Module    string
	Key       string
	Value     schema.Value
	Sensitive bool
	Kind      ChangeKind
}

// Listener receives changes of the module it is registered with
type Listener interface {
	OnSettingChanged(Change)
}

// FuncListener adapts a function to Listener. Use NewListener so that the
// listener has a stable identity for AddListener/RemoveListener.
type FuncListener struct {
	fn func(Change)
}

// NewListener wraps fn in a listener with pointer identity
func NewListener(fn func(Change)) *FuncListener {
	return &FuncListener{fn: fn}
}

func (l *FuncListener) OnSettingChanged(c Change) { l.fn(c) }

func isComparable(l Listener) bool {
	return l != nil && reflect.TypeOf(l).Comparable()
}

// Entry is one exported (key, value, type) triple
type Entry struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
	Type  string `json:"type" yaml:"type"`
}

// NewEntry builds an entry from a typed value
func NewEntry(key string, v schema.Value) Entry {
	return Entry{Key: key, Value: v.Interface(), Type: v.Type().String()}
}

// Decode converts the entry back into a typed value
func (e Entry) Decode() (schema.Value, error) {
	t, err := schema.ParseType(e.Type)
	if err != nil {
		return schema.Value{}, fmt.Errorf("entry %q: %w", e.Key, err)
	}
	v, err := schema.FromAny(t, e.Value)
	if err != nil {
		return schema.Value{}, fmt.Errorf("entry %q: %w", e.Key, err)
	}
	return v, nil
}

// Storage is the per-module view of the secure value store
type Storage interface {
	Get(key string, def schema.Value) schema.Value
	Put(key string, v schema.Value) bool
	Remove(key string) bool
	Contains(key string) bool
	Clear() bool
}

// ScopeFunc opens the Storage for one module namespace
type ScopeFunc func(namespace string, s *schema.Schema) Storage

// Recorder observes module activity (metrics)
type Recorder interface {
	RecordWrite(module, key string, accepted bool)
	RecordNotification(module string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWrite(string, string, bool) {}

func (nopRecorder) RecordNotification(string) {}
