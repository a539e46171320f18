package settings

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
)

// memStorage is a map-backed Storage. Sensitive keys go to a separate map
// so tests can assert on routing.
type memStorage struct {
	mu      sync.Mutex
	schema  *schema.Schema
	plain   map[string]schema.Value
	secret  map[string]schema.Value
	failPut bool
}

type memBackend struct {
	mu     sync.Mutex
	scopes map[string]*memStorage
}

func newMemBackend() *memBackend {
	return &memBackend{scopes: make(map[string]*memStorage)}
}

func (b *memBackend) scope(namespace string, s *schema.Schema) Storage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.scopes[namespace]; ok {
		return st
	}
	st := &memStorage{schema: s, plain: map[string]schema.Value{}, secret: map[string]schema.Value{}}
	b.scopes[namespace] = st
	return st
}

func (s *memStorage) target(key string) map[string]schema.Value {
	if s.schema.IsSensitive(key) {
		return s.secret
	}
	return s.plain
}

func (s *memStorage) Get(key string, def schema.Value) schema.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.target(key)[key]; ok {
		return v
	}
	return def
}

func (s *memStorage) Put(key string, v schema.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return false
	}
	s.target(key)[key] = v
	return true
}

func (s *memStorage) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.target(key), key)
	return true
}

func (s *memStorage) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.target(key)[key]
	return ok
}

func (s *memStorage) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plain = map[string]schema.Value{}
	s.secret = map[string]schema.Value{}
	return true
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEnv(b *memBackend) Env {
	return Env{Scope: b.scope, Logger: quietLogger()}
}

var editorSchema = schema.MustNew(
	schema.IntField("fontSize", 14).Range(8, 36),
	schema.IntField("tabSize", 4).Range(1, 16),
	schema.BoolField("autoSave", true),
	schema.StringField("keymap", "default").OneOf("default", "vim", "emacs"),
	schema.StringSetField("recent"),
	schema.StringField("licenseKey", "").Secret(),
)

// testModule is a minimal concrete module
type testModule struct {
	*BaseModule
	upstream []Change
	mu       sync.Mutex
}

func newTestModule(id string, sch *schema.Schema) ModuleFactory {
	return func(env Env) Module {
		m := &testModule{BaseModule: NewBaseModule(BaseConfig{ID: id, Schema: sch}, env)}
		m.HandleDependencyChanges(func(c Change) {
			m.mu.Lock()
			m.upstream = append(m.upstream, c)
			m.mu.Unlock()
		})
		return m
	}
}

func (m *testModule) upstreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upstream)
}

type recordingListener struct {
	mu      sync.Mutex
	changes []Change
}

func (l *recordingListener) OnSettingChanged(c Change) {
	l.mu.Lock()
	l.changes = append(l.changes, c)
	l.mu.Unlock()
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}

type countingRecorder struct {
	mu            sync.Mutex
	accepted      int
	rejected      int
	notifications int
}

func (r *countingRecorder) RecordWrite(_, _ string, accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if accepted {
		r.accepted++
	} else {
		r.rejected++
	}
}

func (r *countingRecorder) RecordNotification(string) {
	r.mu.Lock()
	r.notifications++
	r.mu.Unlock()
}
