package modules

import (
	"path"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var terminalSchema = schema.MustNew(
	schema.IntField("fontSize", 12).Range(8, 36),
	schema.IntField("scrollbackLines", 1000).Range(100, 100000),
	schema.StringField("shell", "/system/bin/sh").MaxLen(4096),
	schema.StringField("cursorStyle", "block").OneOf("block", "underline", "bar"),
	schema.BoolField("bell", false),
	schema.LongField("maxOutputBytes", 1<<20).Range(1<<10, 64<<20).Describe("Output kept per command"),
	schema.StringField("colorScheme", "default").MaxLen(64),
)

// Terminal holds the console view settings
type Terminal struct {
	*settings.BaseModule
	refresh visualRefresh
}

// NewTerminal creates the terminal module
func NewTerminal(env settings.Env) *Terminal {
	t := &Terminal{
		BaseModule: settings.NewBaseModule(settings.BaseConfig{
			ID:       TerminalID,
			Schema:   terminalSchema,
			Validate: validateTerminal,
		}, env),
		refresh: newVisualRefresh(),
	}
	t.HandleDependencyChanges(func(c settings.Change) {
		if c.Module == ThemeID {
			t.refresh.mark()
		}
	})
	return t
}

func validateTerminal(key string, v schema.Value) (schema.Value, error) {
	if key == "shell" {
		s, _ := v.AsString()
		if !path.IsAbs(s) {
			return schema.Value{}, invalid(key, "shell must be an absolute path, got %q", s)
		}
	}
	return v, nil
}

func (t *Terminal) FontSize() int { return t.GetInt("fontSize", 12) }

func (t *Terminal) SetFontSize(n int) bool { return t.SetInt("fontSize", n) }

func (t *Terminal) ScrollbackLines() int { return t.GetInt("scrollbackLines", 1000) }

func (t *Terminal) Shell() string { return t.GetString("shell", "/system/bin/sh") }

func (t *Terminal) CursorStyle() string { return t.GetString("cursorStyle", "block") }

func (t *Terminal) MaxOutputBytes() int64 { return t.GetLong("maxOutputBytes", 1<<20) }

func (t *Terminal) SetMaxOutputBytes(n int64) bool { return t.SetLong("maxOutputBytes", n) }

// NeedsVisualRefresh reports (and clears) a pending theme refresh
func (t *Terminal) NeedsVisualRefresh() bool { return t.refresh.take() }
