package settings

import (
	"bytes"
	"sync"
	"testing"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var themeSchema = schema.MustNew(
	schema.StringField("mode", "system").OneOf("light", "dark", "system"),
	schema.FloatField("fontScale", 1.0).Range(0.5, 2.0),
)

func newTestManager(t *testing.T, migrations ...Migration) *Manager {
	t.Helper()
	m, err := NewManager(Options{Env: testEnv(newMemBackend()), Version: "2.0.0", Migrations: migrations})
	require.NoError(t, err)
	require.NoError(t, m.Initialize(
		newTestModule("editor", editorSchema),
		newTestModule("theme", themeSchema),
		newTestModule("terminal", editorSchema),
	))
	return m
}

func TestManager_InitializeOnce(t *testing.T) {
	m, err := NewManager(Options{Env: testEnv(newMemBackend()), Version: "2.0.0"})
	require.NoError(t, err)

	calls := 0
	factory := func(env Env) Module {
		calls++
		return newTestModule("editor", editorSchema)(env)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Initialize(factory))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.True(t, m.Initialized())
	assert.Equal(t, []string{"editor"}, m.ModuleIDs())
	assert.Equal(t, StateLoaded, m.Module("editor").State())
}

func TestManager_DuplicateModule(t *testing.T) {
	m, err := NewManager(Options{Env: testEnv(newMemBackend()), Version: "2.0.0"})
	require.NoError(t, err)

	err = m.Initialize(newTestModule("editor", editorSchema), newTestModule("editor", editorSchema))
	assert.ErrorIs(t, err, ErrDuplicateModule)
	assert.False(t, m.Initialized())
}

func TestManager_NewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{Version: "1.0.0"})
	assert.Error(t, err, "scope is required")

	_, err = NewManager(Options{Env: testEnv(newMemBackend()), Version: "banana"})
	assert.Error(t, err)
}

func TestManager_Registry(t *testing.T) {
	m := newTestManager(t)

	assert.NotNil(t, m.Module("editor"))
	assert.Nil(t, m.Module("nope"))
	assert.Equal(t, []string{"editor", "terminal", "theme"}, m.ModuleIDs())

	mod, ok := ModuleAs[*testModule](m)
	require.True(t, ok)
	assert.NotNil(t, mod)
}

func TestManager_DependencyPropagation(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddDependency("theme", "editor"))
	require.NoError(t, m.AddDependency("theme", "terminal"))
	require.NoError(t, m.AddDependency("theme", "editor"), "re-adding an edge is harmless")

	theme := m.Module("theme").(*testModule)
	editor := m.Module("editor").(*testModule)
	terminal := m.Module("terminal").(*testModule)

	require.True(t, theme.SetString("mode", "dark"))
	require.True(t, theme.SetFloat("fontScale", 1.2))

	assert.Equal(t, 2, editor.upstreamCount())
	assert.Equal(t, 2, terminal.upstreamCount())
	assert.Equal(t, 0, theme.upstreamCount())
	assert.Equal(t, "mode", editor.upstream[0].Key)

	// Writes on a dependent do not flow back upstream
	require.True(t, editor.SetInt("fontSize", 16))
	assert.Equal(t, 0, theme.upstreamCount())

	assert.True(t, m.RemoveDependency("theme", "terminal"))
	assert.False(t, m.RemoveDependency("theme", "terminal"))
	require.True(t, theme.SetString("mode", "light"))
	assert.Equal(t, 2, terminal.upstreamCount())
	assert.Equal(t, 3, editor.upstreamCount())
}

func TestManager_CycleRejection(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddDependency("editor", "theme"))
	require.NoError(t, m.AddDependency("theme", "terminal"))
	before := m.Dependencies()

	assert.ErrorIs(t, m.AddDependency("theme", "editor"), ErrDependencyCycle)
	assert.ErrorIs(t, m.AddDependency("terminal", "editor"), ErrDependencyCycle)
	assert.ErrorIs(t, m.AddDependency("editor", "editor"), ErrDependencyCycle)
	assert.Equal(t, before, m.Dependencies())

	assert.ErrorIs(t, m.AddDependency("editor", "ghost"), ErrUnknownModule)
	assert.Equal(t, before, m.Dependencies())
	assert.Equal(t, []string{"theme"}, m.Dependents("editor"))
}

func TestManager_Subscribe(t *testing.T) {
	m := newTestManager(t)

	var (
		mu     sync.Mutex
		events []Event
	)
	sub := m.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	editor := m.Module("editor")
	require.True(t, editor.Set("fontSize", schema.Int(30)))
	require.True(t, editor.Set("licenseKey", schema.String("k")))
	require.NoError(t, editor.ResetToDefaults())

	_, err := m.Import(m.Export())
	require.NoError(t, err)

	// set, sensitive set, reset, one change per imported entry, import
	require.Len(t, events, 3+5+2+5+1)
	assert.Equal(t, EventChanged, events[0].Kind)
	assert.Equal(t, "editor", events[0].Module)
	assert.True(t, schema.Int(30).Equal(events[0].Value))
	assert.True(t, events[1].Sensitive)
	assert.True(t, events[1].Value.IsZero())
	assert.Equal(t, EventReset, events[2].Kind)

	last := events[len(events)-1]
	assert.Equal(t, EventImported, last.Kind)
	assert.Equal(t, "2.0.0", last.Version)

	sub.Unsubscribe()
	sub.Unsubscribe()
	before := len(events)
	require.True(t, editor.Set("fontSize", schema.Int(31)))
	assert.Len(t, events, before)
}

func TestManager_ExportExcludesSensitive(t *testing.T) {
	m := newTestManager(t)
	editor := m.Module("editor")
	require.True(t, editor.Set("fontSize", schema.Int(2)))
	require.True(t, editor.Set("licenseKey", schema.String("secret")))

	env := m.Export()
	assert.Equal(t, "2.0.0", env.Version)
	assert.False(t, env.ExportedAt.IsZero())

	entry, ok := env.Lookup("editor", "fontSize")
	require.True(t, ok)
	assert.Equal(t, Entry{Key: "fontSize", Value: 8, Type: "INTEGER"}, entry)

	_, ok = env.Lookup("editor", "licenseKey")
	assert.False(t, ok)

	var buf bytes.Buffer
	require.NoError(t, m.WriteExport(&buf, FormatJSON))
	assert.Contains(t, buf.String(), `"key": "fontSize"`)
	assert.NotContains(t, buf.String(), "secret")
	assert.NotContains(t, buf.String(), "licenseKey")
}

func TestManager_ImportPartialFailure(t *testing.T) {
	m := newTestManager(t)
	editor := m.Module("editor")
	theme := m.Module("theme")
	require.True(t, theme.Set("mode", schema.String("light")))

	env := &Envelope{
		Version: "2.0.0",
		Modules: map[string][]Entry{
			"editor": {
				{Key: "fontSize", Value: 20, Type: "INTEGER"},
				{Key: "tabSize", Value: 2, Type: "INTEGER"},
			},
			"theme": {
				{Key: "mode", Value: "dark", Type: "STRING"},
				{Key: "fontScale", Value: "huge", Type: "FLOAT"},
			},
			"ghost": {{Key: "x", Value: 1, Type: "INTEGER"}},
		},
	}

	report, err := m.Import(env)
	require.NoError(t, err)

	assert.Equal(t, []string{"editor"}, report.Imported)
	assert.Contains(t, report.Failed, "theme")
	assert.ErrorIs(t, report.Failed["ghost"], ErrUnknownModule)
	assert.Error(t, report.Err())

	v, _ := editor.Value("fontSize")
	assert.True(t, schema.Int(20).Equal(v))
	v, _ = theme.Value("mode")
	assert.True(t, schema.String("light").Equal(v), "failed module is unchanged")
}

func TestManager_ImportVersions(t *testing.T) {
	renamed := Migration{
		From: "1.0.0", To: "2.0.0", Description: "rename font_size",
		Apply: func(e *Envelope) error {
			e.Rename("editor", "font_size", "fontSize")
			return nil
		},
	}
	m := newTestManager(t, renamed)

	report, err := m.Import(&Envelope{
		Version: "1.0.0",
		Modules: map[string][]Entry{"editor": {{Key: "font_size", Value: 30, Type: "INTEGER"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0->2.0.0"}, report.Migrations)
	assert.Equal(t, "1.0.0", report.SourceVersion)
	v, _ := m.Module("editor").Value("fontSize")
	assert.True(t, schema.Int(30).Equal(v))

	_, err = m.Import(&Envelope{Version: "3.1.0", Modules: map[string][]Entry{}})
	assert.ErrorIs(t, err, ErrNewerVersion)

	_, err = m.Import(&Envelope{Version: "not-a-version", Modules: map[string][]Entry{}})
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = m.Import(nil)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestManager_ImportBeforeInitialize(t *testing.T) {
	m, err := NewManager(Options{Env: testEnv(newMemBackend()), Version: "2.0.0"})
	require.NoError(t, err)
	_, err = m.Import(&Envelope{Version: "2.0.0", Modules: map[string][]Entry{}})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_SaveResetAll(t *testing.T) {
	m := newTestManager(t)
	editor := m.Module("editor")
	theme := m.Module("theme")

	require.True(t, editor.Set("fontSize", schema.Int(20)))
	require.True(t, theme.Set("mode", schema.String("dark")))
	require.NoError(t, m.SaveAll())
	assert.False(t, editor.HasUnsavedChanges())
	assert.Equal(t, StateSaved, theme.State())

	require.NoError(t, m.ResetAll())
	v, _ := theme.Value("mode")
	assert.True(t, schema.String("system").Equal(v))

	require.True(t, editor.Set("fontSize", schema.Int(21)))
	require.NoError(t, m.Close())
	assert.False(t, editor.HasUnsavedChanges())
}

func TestManager_RecordsSchemaVersion(t *testing.T) {
	backend := newMemBackend()
	m, err := NewManager(Options{Env: testEnv(backend), Version: "2.0.0"})
	require.NoError(t, err)
	require.NoError(t, m.Initialize())

	meta := backend.scopes[metaNamespace]
	v := meta.Get("schemaVersion", schema.String(""))
	assert.True(t, schema.String("2.0.0").Equal(v))

	// A store from a newer build keeps its marker
	meta.Put("schemaVersion", schema.String("9.0.0"))
	m2, err := NewManager(Options{Env: testEnv(backend), Version: "2.0.0"})
	require.NoError(t, err)
	require.NoError(t, m2.Initialize())
	v = meta.Get("schemaVersion", schema.String(""))
	assert.True(t, schema.String("9.0.0").Equal(v))
}
