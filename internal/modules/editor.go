package modules

import (
	"encoding/json"
	"fmt"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var editorSchema = schema.MustNew(
	schema.IntField("fontSize", 14).Range(8, 36).Describe("Editor font size in points"),
	schema.IntField("tabSize", 4).Range(1, 16).Describe("Spaces per tab stop"),
	schema.BoolField("autoSave", true).Describe("Save files automatically"),
	schema.IntField("autoSaveDelay", 1000).Range(100, 60000).Describe("Auto-save delay in milliseconds"),
	schema.BoolField("wordWrap", false),
	schema.BoolField("lineNumbers", true),
	schema.StringField("fontFamily", "monospace").MaxLen(64),
	schema.StringField("keymap", "default").OneOf("default", "vim", "emacs"),
	schema.BoolField("minimap", false),
	schema.StringField("colorTheme", "system").MaxLen(64).Describe("Syntax highlighting theme"),
)

// Editor holds the code editor settings
type Editor struct {
	*settings.BaseModule
	refresh visualRefresh
}

// NewEditor creates the editor module
func NewEditor(env settings.Env) *Editor {
	e := &Editor{
		BaseModule: settings.NewBaseModule(settings.BaseConfig{
			ID:         EditorID,
			Schema:     editorSchema,
			Validate:   validateEditor,
			Deprecated: []string{"theme"},
		}, env),
		refresh: newVisualRefresh(),
	}
	e.HandleDependencyChanges(func(c settings.Change) {
		if c.Module == ThemeID {
			e.refresh.mark()
		}
	})
	return e
}

func validateEditor(key string, v schema.Value) (schema.Value, error) {
	if key == "fontFamily" {
		if s, _ := v.AsString(); s == "" {
			return schema.Value{}, invalid(key, "font family cannot be empty")
		}
	}
	return v, nil
}

func (e *Editor) FontSize() int { return e.GetInt("fontSize", 14) }

func (e *Editor) SetFontSize(n int) bool { return e.SetInt("fontSize", n) }

func (e *Editor) TabSize() int { return e.GetInt("tabSize", 4) }

func (e *Editor) SetTabSize(n int) bool { return e.SetInt("tabSize", n) }

func (e *Editor) IsAutoSave() bool { return e.GetBool("autoSave", true) }

func (e *Editor) SetAutoSave(on bool) bool { return e.SetBool("autoSave", on) }

func (e *Editor) AutoSaveDelay() int { return e.GetInt("autoSaveDelay", 1000) }

func (e *Editor) SetAutoSaveDelay(ms int) bool { return e.SetInt("autoSaveDelay", ms) }

func (e *Editor) WordWrap() bool { return e.GetBool("wordWrap", false) }

func (e *Editor) LineNumbers() bool { return e.GetBool("lineNumbers", true) }

func (e *Editor) FontFamily() string { return e.GetString("fontFamily", "monospace") }

func (e *Editor) Keymap() string { return e.GetString("keymap", "default") }

// NeedsVisualRefresh reports (and clears) a pending theme refresh
func (e *Editor) NeedsVisualRefresh() bool { return e.refresh.take() }

// ToJSON serializes the full settings object for one-shot initialization
// of the embedded editor surface
func (e *Editor) ToJSON() ([]byte, error) {
	obj := make(map[string]any, editorSchema.Len())
	for _, f := range editorSchema.Fields() {
		if f.Sensitive {
			continue
		}
		v, _ := e.Value(f.Key)
		obj[f.Key] = v.Interface()
	}
	return json.Marshal(obj)
}

// SaveSetting applies one change coming from the editor surface. value is
// either the native JSON value or its text form; typeName is one of the
// export type names.
func (e *Editor) SaveSetting(key string, value any, typeName string) bool {
	v, err := DecodeSetting(value, typeName)
	if err != nil {
		return false
	}
	return e.Set(key, v)
}

// DecodeSetting turns a loosely typed (value, type) pair from a UI surface
// into a typed value
func DecodeSetting(value any, typeName string) (schema.Value, error) {
	t, err := schema.ParseType(typeName)
	if err != nil {
		return schema.Value{}, err
	}
	if s, ok := value.(string); ok && t != schema.TypeString {
		return schema.Parse(t, s)
	}
	v, err := schema.FromAny(t, value)
	if err != nil {
		return schema.Value{}, fmt.Errorf("decode %s: %w", typeName, err)
	}
	return v, nil
}
