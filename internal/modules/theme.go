package modules

import (
	"regexp"
	"strings"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

var themeSchema = schema.MustNew(
	schema.StringField("mode", "system").OneOf("light", "dark", "system"),
	schema.StringField("accentColor", "#2196F3").Describe("Accent color as #RRGGBB or #AARRGGBB"),
	schema.FloatField("fontScale", 1.0).Range(0.5, 2.0),
	schema.BoolField("highContrast", false),
)

// Theme holds appearance settings shared by the editor and terminal
type Theme struct {
	*settings.BaseModule
}

// NewTheme creates the theme module
func NewTheme(env settings.Env) *Theme {
	return &Theme{BaseModule: settings.NewBaseModule(settings.BaseConfig{
		ID:       ThemeID,
		Schema:   themeSchema,
		Validate: validateTheme,
	}, env)}
}

func validateTheme(key string, v schema.Value) (schema.Value, error) {
	if key == "accentColor" {
		s, _ := v.AsString()
		if !hexColor.MatchString(s) {
			return schema.Value{}, invalid(key, "%q is not a hex color", s)
		}
		return schema.String(strings.ToUpper(s)), nil
	}
	return v, nil
}

func (t *Theme) Mode() string { return t.GetString("mode", "system") }

func (t *Theme) SetMode(mode string) bool { return t.SetString("mode", mode) }

func (t *Theme) AccentColor() string { return t.GetString("accentColor", "#2196F3") }

func (t *Theme) SetAccentColor(c string) bool { return t.SetString("accentColor", c) }

func (t *Theme) FontScale() float64 { return t.GetFloat("fontScale", 1.0) }

func (t *Theme) HighContrast() bool { return t.GetBool("highContrast", false) }

// IsDark resolves "system" against the platform preference
func (t *Theme) IsDark(systemDark bool) bool {
	switch t.Mode() {
	case "dark":
		return true
	case "light":
		return false
	default:
		return systemDark
	}
}
