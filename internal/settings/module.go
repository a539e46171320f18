package settings

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
)

// Module is a settings module as seen by the Manager and by callers that
// do not know the concrete type. Concrete modules embed *BaseModule.
type Module interface {
	ID() string
	Schema() *schema.Schema

	LoadSettings() error
	SaveSettings() error
	ResetToDefaults() error
	HasUnsavedChanges() bool
	State() State

	Value(key string) (schema.Value, bool)
	Apply(key string, v schema.Value) (schema.Value, error)
	Set(key string, v schema.Value) bool

	ExportSettings() []Entry
	ImportSettings(entries []Entry) error

	AddListener(l Listener) bool
	RemoveListener(l Listener)

	// OnDependencyChanged is invoked once for every change of a module this
	// module depends on
	OnDependencyChanged(c Change)

	base() *BaseModule
}

// ValidateFunc is a module-specific check run after the schema check.
// It may return an adjusted value (clamp) or an error (reject).
type ValidateFunc func(key string, v schema.Value) (schema.Value, error)

// Env carries the collaborators every module is built with
type Env struct {
	Scope    ScopeFunc
	Logger   *logrus.Logger
	Recorder Recorder
	// Sync flushes the backing stores; called by SaveSettings
	Sync func() error
}

// BaseConfig declares a module for NewBaseModule
type BaseConfig struct {
	ID     string
	Schema *schema.Schema
	// Validate runs after the schema check on every write
	Validate ValidateFunc
	// Deprecated keys are deleted from storage on load
	Deprecated []string
}

// BaseModule implements typed, validated access to one module's settings
// and change notification. Values are never cached; every read goes to
// the store.
type BaseModule struct {
	id         string
	schema     *schema.Schema
	store      Storage
	validate   ValidateFunc
	deprecated []string
	env        Env
	logger     *logrus.Logger
	recorder   Recorder

	dirty atomic.Bool
	state atomic.Int32

	listeners sync.Map // Listener -> struct{}
	observer  atomic.Pointer[func(Change)]
	events    *dispatcher

	// dependencyHook lets an embedding module react to upstream changes
	dependencyHook atomic.Pointer[func(Change)]
}

// NewBaseModule creates the shared module implementation
func NewBaseModule(cfg BaseConfig, env Env) *BaseModule {
	if env.Logger == nil {
		env.Logger = logrus.New()
	}
	if env.Recorder == nil {
		env.Recorder = nopRecorder{}
	}

	m := &BaseModule{
		id:         cfg.ID,
		schema:     cfg.Schema,
		store:      env.Scope(cfg.ID, cfg.Schema),
		validate:   cfg.Validate,
		deprecated: cfg.Deprecated,
		env:        env,
		logger:     env.Logger,
		recorder:   env.Recorder,
	}
	m.events = newDispatcher(m.deliver, env.Logger)
	return m
}

func (m *BaseModule) base() *BaseModule { return m }

func (m *BaseModule) ID() string { return m.id }

func (m *BaseModule) Schema() *schema.Schema { return m.schema }

func (m *BaseModule) State() State { return State(m.state.Load()) }

// HasUnsavedChanges is true from the first accepted write until SaveSettings
func (m *BaseModule) HasUnsavedChanges() bool { return m.dirty.Load() }

// LoadSettings drops deprecated keys and marks the module loaded
func (m *BaseModule) LoadSettings() error {
	for _, key := range m.deprecated {
		if !m.store.Remove(key) {
			return fmt.Errorf("%w: failed to remove deprecated setting %s.%s", ErrStorage, m.id, key)
		}
	}
	m.dirty.Store(false)
	m.state.Store(int32(StateLoaded))
	return nil
}

// SaveSettings flushes the stores and clears the unsaved flag
func (m *BaseModule) SaveSettings() error {
	if m.env.Sync != nil {
		if err := m.env.Sync(); err != nil {
			return fmt.Errorf("failed to save %s settings: %w", m.id, err)
		}
	}
	m.dirty.Store(false)
	m.state.Store(int32(StateSaved))
	return nil
}

// ResetToDefaults removes every stored key so reads return the defaults
func (m *BaseModule) ResetToDefaults() error {
	if !m.store.Clear() {
		return fmt.Errorf("%w: failed to reset %s", ErrStorage, m.id)
	}
	m.dirty.Store(false)
	m.state.Store(int32(StateLoaded))

	m.logger.WithField("module", m.id).Info("Settings reset to defaults")
	m.events.publish(Change{Module: m.id, Kind: ChangeReset})
	return nil
}

// Value returns the current value of key, or its schema default
func (m *BaseModule) Value(key string) (schema.Value, bool) {
	field, ok := m.schema.Field(key)
	if !ok {
		return schema.Value{}, false
	}
	return m.store.Get(key, field.Default), true
}

func (m *BaseModule) typed(key string, t schema.Type, def schema.Value) schema.Value {
	field, ok := m.schema.Field(key)
	if !ok || field.Type != t {
		return def
	}
	return m.store.Get(key, def)
}

// GetString returns the stored string or def
func (m *BaseModule) GetString(key, def string) string {
	s, _ := m.typed(key, schema.TypeString, schema.String(def)).AsString()
	return s
}

// GetInt returns the stored integer or def
func (m *BaseModule) GetInt(key string, def int) int {
	i, _ := m.typed(key, schema.TypeInt, schema.Int(def)).AsInt()
	return i
}

// GetBool returns the stored boolean or def
func (m *BaseModule) GetBool(key string, def bool) bool {
	b, _ := m.typed(key, schema.TypeBool, schema.Bool(def)).AsBool()
	return b
}

// GetFloat returns the stored float or def
func (m *BaseModule) GetFloat(key string, def float64) float64 {
	f, _ := m.typed(key, schema.TypeFloat, schema.Float(def)).AsFloat()
	return f
}

// GetLong returns the stored long or def
func (m *BaseModule) GetLong(key string, def int64) int64 {
	l, _ := m.typed(key, schema.TypeLong, schema.Long(def)).AsLong()
	return l
}

// GetStringSet returns the stored set or def
func (m *BaseModule) GetStringSet(key string, def ...string) []string {
	s, _ := m.typed(key, schema.TypeStringSet, schema.StringSet(def...)).AsStringSet()
	return s
}

func (m *BaseModule) SetString(key, v string) bool { return m.Set(key, schema.String(v)) }

func (m *BaseModule) SetInt(key string, v int) bool { return m.Set(key, schema.Int(v)) }

func (m *BaseModule) SetBool(key string, v bool) bool { return m.Set(key, schema.Bool(v)) }

func (m *BaseModule) SetFloat(key string, v float64) bool { return m.Set(key, schema.Float(v)) }

func (m *BaseModule) SetLong(key string, v int64) bool { return m.Set(key, schema.Long(v)) }

func (m *BaseModule) SetStringSet(key string, v ...string) bool {
	return m.Set(key, schema.StringSet(v...))
}

// Set writes a value through the normal validation path. A rejected write
// leaves the stored value unchanged and returns false.
func (m *BaseModule) Set(key string, v schema.Value) bool {
	_, err := m.Apply(key, v)
	return err == nil
}

// Apply is Set that reports the stored (possibly clamped) value or the
// reason for rejection
func (m *BaseModule) Apply(key string, v schema.Value) (schema.Value, error) {
	stored, err := m.check(key, v)
	if err != nil {
		m.reject(key, err)
		return schema.Value{}, err
	}

	if !m.store.Put(key, stored) {
		err := fmt.Errorf("%w: %s.%s", ErrStorage, m.id, key)
		m.reject(key, err)
		return schema.Value{}, err
	}

	m.dirty.Store(true)
	m.state.Store(int32(StateDirty))
	m.recorder.RecordWrite(m.id, key, true)

	change := Change{Module: m.id, Key: key, Kind: ChangeSet}
	if m.schema.IsSensitive(key) {
		change.Sensitive = true
	} else {
		change.Value = stored
	}
	m.events.publish(change)
	return stored, nil
}

// check runs the schema and module validation without writing
func (m *BaseModule) check(key string, v schema.Value) (schema.Value, error) {
	field, ok := m.schema.Field(key)
	if !ok {
		return schema.Value{}, fmt.Errorf("%w: %s.%s", schema.ErrUnknownKey, m.id, key)
	}
	out, err := field.Normalize(v)
	if err != nil {
		return schema.Value{}, err
	}
	if m.validate != nil {
		if out, err = m.validate(key, out); err != nil {
			return schema.Value{}, err
		}
	}
	return out, nil
}

func (m *BaseModule) reject(key string, err error) {
	m.recorder.RecordWrite(m.id, key, false)
	m.logger.WithFields(logrus.Fields{
		"module": m.id,
		"key":    key,
	}).WithError(err).Debug("Setting write rejected")
}

// ExportSettings returns every non-sensitive key with its current value
func (m *BaseModule) ExportSettings() []Entry {
	entries := make([]Entry, 0, m.schema.Len())
	for _, f := range m.schema.Fields() {
		if f.Sensitive {
			continue
		}
		entries = append(entries, NewEntry(f.Key, m.store.Get(f.Key, f.Default)))
	}
	return entries
}

// ImportSettings validates every entry first and only then applies them
// through the normal setter path, so a bad entry leaves the module
// untouched. Sensitive entries are ignored.
func (m *BaseModule) ImportSettings(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyImport
	}

	type pending struct {
		key   string
		value schema.Value
	}
	var (
		plan []pending
		errs []error
	)
	for _, e := range entries {
		if m.schema.IsSensitive(e.Key) {
			m.logger.WithFields(logrus.Fields{"module": m.id, "key": e.Key}).
				Warn("Ignoring sensitive setting in import")
			continue
		}
		if m.isDeprecated(e.Key) {
			continue
		}
		v, err := e.Decode()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := m.check(e.Key, v); err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w", e.Key, err))
			continue
		}
		plan = append(plan, pending{key: e.Key, value: v})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, p := range plan {
		if _, err := m.Apply(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *BaseModule) isDeprecated(key string) bool {
	for _, d := range m.deprecated {
		if d == key {
			return true
		}
	}
	return false
}

// AddListener registers l; registering the same listener again is a no-op.
// Listeners that cannot be compared (func values, maps) are refused.
func (m *BaseModule) AddListener(l Listener) bool {
	if !isComparable(l) {
		m.logger.WithField("module", m.id).Warn("Refusing listener without a stable identity")
		return false
	}
	m.listeners.LoadOrStore(l, struct{}{})
	return true
}

// RemoveListener unregisters l
func (m *BaseModule) RemoveListener(l Listener) {
	if isComparable(l) {
		m.listeners.Delete(l)
	}
}

// OnDependencyChanged runs the hook installed with HandleDependencyChanges
func (m *BaseModule) OnDependencyChanged(c Change) {
	if hook := m.dependencyHook.Load(); hook != nil {
		(*hook)(c)
	}
}

// HandleDependencyChanges installs the reaction to upstream module changes
func (m *BaseModule) HandleDependencyChanges(fn func(Change)) {
	m.dependencyHook.Store(&fn)
}

// setObserver installs the manager's fan-out, called after module listeners
func (m *BaseModule) setObserver(fn func(Change)) {
	m.observer.Store(&fn)
}

func (m *BaseModule) deliver(c Change) {
	m.listeners.Range(func(key, _ any) bool {
		m.callListener(key.(Listener), c)
		return true
	})
	m.recorder.RecordNotification(m.id)

	if obs := m.observer.Load(); obs != nil {
		(*obs)(c)
	}
}

func (m *BaseModule) callListener(l Listener, c Change) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(logrus.Fields{
				"module": m.id,
				"key":    c.Key,
				"panic":  r,
			}).Error("Settings listener panicked")
		}
	}()
	l.OnSettingChanged(c)
}
