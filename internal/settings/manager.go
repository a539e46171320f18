// Package settings implements the settings engine: the shared module
// implementation, the Manager that owns every module, dependency
// propagation and versioned export/import.
package settings

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
)

const metaNamespace = "_meta"

var metaSchema = schema.MustNew(
	schema.StringField("schemaVersion", "").Describe("Schema version that last opened the store"),
)

// ModuleFactory builds one module
type ModuleFactory func(env Env) Module

// EventKind identifies a manager-wide event
type EventKind int

const (
	EventChanged EventKind = iota
	EventReset
	EventImported
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventReset:
		return "reset"
	case EventImported:
		return "imported"
	default:
		return "unknown"
	}
}

// Event is delivered to manager subscribers. Value is empty for sensitive
// keys; Version is set for EventImported.
type Event struct {
	Kind      EventKind
	Module    string
	Key       string
	Value     schema.Value
	Sensitive bool
	Version   string
}

// Subscription is returned by Subscribe
type Subscription struct {
	id      uint64
	manager *Manager
}

// Unsubscribe stops delivery; calling it twice is harmless
func (s *Subscription) Unsubscribe() {
	if s != nil && s.manager != nil {
		s.manager.subscribers.Delete(s.id)
	}
}

// ImportReport describes the outcome of Import
type ImportReport struct {
	SourceVersion string
	Migrations    []string
	Imported      []string
	Failed        map[string]error
}

// Err joins the per-module failures, or returns nil
func (r *ImportReport) Err() error {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, fmt.Errorf("%s: %w", id, r.Failed[id]))
	}
	return errors.Join(errs...)
}

// Options configures a Manager
type Options struct {
	Env Env
	// Version is the running schema version (semver)
	Version    string
	Migrations []Migration
}

// Manager owns every settings module of the process. It is created once by
// the composition root and passed to whoever needs settings.
type Manager struct {
	env      Env
	logger   *logrus.Logger
	migrator *Migrator
	meta     Storage

	once        sync.Once
	initialized atomic.Bool
	initErr     error

	mu      sync.RWMutex
	modules map[string]Module
	byType  map[reflect.Type]Module
	deps    map[string]map[string]struct{} // source -> dependents

	subscribers sync.Map // uint64 -> func(Event)
	nextSubID   atomic.Uint64
}

// NewManager creates a Manager. Modules are added by Initialize.
func NewManager(opts Options) (*Manager, error) {
	if opts.Env.Scope == nil {
		return nil, fmt.Errorf("settings: Env.Scope is required")
	}
	if opts.Env.Logger == nil {
		opts.Env.Logger = logrus.New()
	}
	if opts.Env.Recorder == nil {
		opts.Env.Recorder = nopRecorder{}
	}

	migrator, err := NewMigrator(opts.Version, opts.Migrations...)
	if err != nil {
		return nil, err
	}

	return &Manager{
		env:      opts.Env,
		logger:   opts.Env.Logger,
		migrator: migrator,
		meta:     opts.Env.Scope(metaNamespace, metaSchema),
		modules:  make(map[string]Module),
		byType:   make(map[reflect.Type]Module),
		deps:     make(map[string]map[string]struct{}),
	}, nil
}

// Initialize builds, registers and loads every module. Only the first call
// does anything; later calls return the first call's result.
func (m *Manager) Initialize(factories ...ModuleFactory) error {
	m.once.Do(func() {
		m.initErr = m.initialize(factories)
		m.initialized.Store(m.initErr == nil)
	})
	return m.initErr
}

func (m *Manager) initialize(factories []ModuleFactory) error {
	m.checkStoredVersion()

	for _, factory := range factories {
		mod := factory(m.env)
		if err := m.register(mod); err != nil {
			return err
		}
		if err := mod.LoadSettings(); err != nil {
			return fmt.Errorf("failed to load %s settings: %w", mod.ID(), err)
		}
	}

	m.logger.WithFields(logrus.Fields{
		"modules": len(factories),
		"version": m.migrator.Current().String(),
	}).Info("Settings manager initialized")
	return nil
}

func (m *Manager) register(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := mod.ID()
	if _, exists := m.modules[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, id)
	}
	m.modules[id] = mod
	m.byType[reflect.TypeOf(mod)] = mod

	mod.base().setObserver(m.propagate)
	return nil
}

// checkStoredVersion records the running version and warns when the store
// was last opened by a newer build
func (m *Manager) checkStoredVersion() {
	current := m.migrator.Current()
	stored, _ := m.meta.Get("schemaVersion", schema.String("")).AsString()

	if stored != "" {
		if v, err := semver.NewVersion(stored); err == nil && v.GreaterThan(current) {
			m.logger.WithFields(logrus.Fields{
				"stored":  stored,
				"running": current.String(),
			}).Warn("Settings store was written by a newer version")
			return
		}
	}
	if stored != current.String() {
		m.meta.Put("schemaVersion", schema.String(current.String()))
	}
}

// Initialized reports whether Initialize completed successfully
func (m *Manager) Initialized() bool { return m.initialized.Load() }

// Version returns the running schema version
func (m *Manager) Version() string { return m.migrator.Current().String() }

// Module returns the module registered under id, or nil
func (m *Manager) Module(id string) Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modules[id]
}

// ModuleAs looks a module up by its concrete type
func ModuleAs[T Module](m *Manager) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.byType[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := mod.(T)
	return t, ok
}

// ModuleIDs returns every registered module id, sorted
func (m *Manager) ModuleIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.modules))
	for id := range m.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// modulesSnapshot returns the registered modules in id order
func (m *Manager) modulesSnapshot() []Module {
	ids := m.ModuleIDs()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.modules[id])
	}
	return out
}

// AddDependency makes dependent receive OnDependencyChanged for every
// change of source. An edge that would close a cycle is rejected and the
// graph is left as it was.
func (m *Manager) AddDependency(source, dependent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range []string{source, dependent} {
		if _, ok := m.modules[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModule, id)
		}
	}
	if source == dependent || m.reachable(dependent, source) {
		return fmt.Errorf("%w: %s -> %s", ErrDependencyCycle, source, dependent)
	}

	if m.deps[source] == nil {
		m.deps[source] = make(map[string]struct{})
	}
	m.deps[source][dependent] = struct{}{}

	m.logger.WithFields(logrus.Fields{
		"source":    source,
		"dependent": dependent,
	}).Debug("Settings dependency registered")
	return nil
}

// reachable reports whether to can be reached from from; callers hold mu
func (m *Manager) reachable(from, to string) bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for next := range m.deps[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// RemoveDependency deletes an edge, reporting whether it existed
func (m *Manager) RemoveDependency(source, dependent string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deps[source][dependent]; !ok {
		return false
	}
	delete(m.deps[source], dependent)
	if len(m.deps[source]) == 0 {
		delete(m.deps, source)
	}
	return true
}

// Dependents returns the modules notified when source changes, sorted
func (m *Manager) Dependents(source string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dependentsLocked(source)
}

func (m *Manager) dependentsLocked(source string) []string {
	out := make([]string, 0, len(m.deps[source]))
	for id := range m.deps[source] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns a snapshot of the whole graph
func (m *Manager) Dependencies() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]string, len(m.deps))
	for source := range m.deps {
		out[source] = m.dependentsLocked(source)
	}
	return out
}

// propagate runs on the source module's drain goroutine after its own
// listeners. No manager lock is held while dependents and subscribers run.
func (m *Manager) propagate(c Change) {
	m.mu.RLock()
	dependents := make([]Module, 0, len(m.deps[c.Module]))
	for _, id := range m.dependentsLocked(c.Module) {
		dependents = append(dependents, m.modules[id])
	}
	m.mu.RUnlock()

	for _, dep := range dependents {
		m.safely(func() { dep.OnDependencyChanged(c) })
	}

	ev := Event{Kind: EventChanged, Module: c.Module, Key: c.Key, Value: c.Value, Sensitive: c.Sensitive}
	if c.Kind == ChangeReset {
		ev = Event{Kind: EventReset, Module: c.Module}
	}
	m.publish(ev)
}

// Subscribe registers fn for every change, reset and import across all
// modules
func (m *Manager) Subscribe(fn func(Event)) *Subscription {
	id := m.nextSubID.Add(1)
	m.subscribers.Store(id, fn)
	return &Subscription{id: id, manager: m}
}

func (m *Manager) publish(ev Event) {
	m.subscribers.Range(func(_, value any) bool {
		fn := value.(func(Event))
		m.safely(func() { fn(ev) })
		return true
	})
}

func (m *Manager) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("panic", r).Error("Settings subscriber panicked")
		}
	}()
	fn()
}

// Export collects every module's non-sensitive settings
func (m *Manager) Export() *Envelope {
	env := &Envelope{
		Version:    m.Version(),
		ExportedAt: time.Now().UTC(),
		Modules:    make(map[string][]Entry),
	}
	for _, mod := range m.modulesSnapshot() {
		env.Modules[mod.ID()] = mod.ExportSettings()
	}
	return env
}

// WriteExport encodes Export() to w
func (m *Manager) WriteExport(w io.Writer, format Format) error {
	return m.Export().Encode(w, format)
}

// ReadEnvelope decodes an envelope from r
func (m *Manager) ReadEnvelope(r io.Reader, format Format) (*Envelope, error) {
	return DecodeEnvelope(r, format)
}

// Import applies an envelope. Older envelopes are migrated first; newer
// ones are rejected as a whole. Each module imports all-or-nothing, but a
// failing module does not roll back the others; failures are listed in
// the report.
func (m *Manager) Import(env *Envelope) (*ImportReport, error) {
	if !m.Initialized() {
		return nil, ErrNotInitialized
	}
	if err := env.validate(); err != nil {
		return nil, err
	}

	migrated, steps, err := m.migrator.Migrate(env)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{SourceVersion: env.Version, Failed: make(map[string]error)}
	for _, step := range steps {
		report.Migrations = append(report.Migrations, fmt.Sprintf("%s->%s", step.From, step.To))
	}

	for _, id := range migrated.ModuleIDs() {
		mod := m.Module(id)
		if mod == nil {
			report.Failed[id] = ErrUnknownModule
			continue
		}
		// A section emptied by migration steps has nothing left to apply
		if len(migrated.Modules[id]) == 0 && len(env.Modules[id]) > 0 {
			report.Imported = append(report.Imported, id)
			continue
		}
		if err := mod.ImportSettings(migrated.Modules[id]); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Imported = append(report.Imported, id)
	}

	fields := logrus.Fields{
		"version":  env.Version,
		"imported": len(report.Imported),
		"failed":   len(report.Failed),
	}
	if len(report.Failed) > 0 {
		m.logger.WithFields(fields).WithError(report.Err()).Warn("Settings import completed with failures")
	} else {
		m.logger.WithFields(fields).Info("Settings imported")
	}

	m.publish(Event{Kind: EventImported, Version: env.Version})
	return report, nil
}

// SaveAll saves every module and returns the joined failures
func (m *Manager) SaveAll() error {
	var errs []error
	for _, mod := range m.modulesSnapshot() {
		if err := mod.SaveSettings(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetAll resets every module to its defaults
func (m *Manager) ResetAll() error {
	var errs []error
	for _, mod := range m.modulesSnapshot() {
		if err := mod.ResetToDefaults(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close saves modules with unsaved changes and drops every subscriber
func (m *Manager) Close() error {
	var errs []error
	for _, mod := range m.modulesSnapshot() {
		if mod.HasUnsavedChanges() {
			if err := mod.SaveSettings(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.subscribers.Range(func(key, _ any) bool {
		m.subscribers.Delete(key)
		return true
	})
	return errors.Join(errs...)
}
