package app

import (
	"fmt"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/modules"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// SettingView is one key of a module as shown by the CLI and the bridge.
// Sensitive values are never included; Set tells whether one is stored.
type SettingView struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Sensitive   bool   `json:"sensitive,omitempty"`
	Set         bool   `json:"set"`
	Description string `json:"description,omitempty"`
}

func (a *App) module(id string) (settings.Module, error) {
	mod := a.Settings.Module(id)
	if mod == nil {
		return nil, fmt.Errorf("%w: %s", settings.ErrUnknownModule, id)
	}
	return mod, nil
}

func view(mod settings.Module, f schema.Field) SettingView {
	v, _ := mod.Value(f.Key)
	sv := SettingView{
		Key:         f.Key,
		Type:        f.Type.String(),
		Default:     f.Default.Interface(),
		Sensitive:   f.Sensitive,
		Set:         !v.Equal(f.Default),
		Description: f.Description,
	}
	if !f.Sensitive {
		sv.Value = v.Interface()
	}
	return sv
}

// Describe lists every key of a module in schema order
func (a *App) Describe(id string) ([]SettingView, error) {
	mod, err := a.module(id)
	if err != nil {
		return nil, err
	}
	fields := mod.Schema().Fields()
	out := make([]SettingView, 0, len(fields))
	for _, f := range fields {
		out = append(out, view(mod, f))
	}
	return out, nil
}

// Get describes one key
func (a *App) Get(id, key string) (SettingView, error) {
	mod, err := a.module(id)
	if err != nil {
		return SettingView{}, err
	}
	f, ok := mod.Schema().Field(key)
	if !ok {
		return SettingView{}, fmt.Errorf("%w: %s.%s", schema.ErrUnknownKey, id, key)
	}
	return view(mod, f), nil
}

// Set writes one key. raw is either text (from the command line) or a
// decoded JSON value; it is converted to the key's declared type.
func (a *App) Set(id, key string, raw any) (SettingView, error) {
	mod, err := a.module(id)
	if err != nil {
		return SettingView{}, err
	}
	f, ok := mod.Schema().Field(key)
	if !ok {
		return SettingView{}, fmt.Errorf("%w: %s.%s", schema.ErrUnknownKey, id, key)
	}

	v, err := modules.DecodeSetting(raw, f.Type.String())
	if err != nil {
		return SettingView{}, err
	}
	if _, err := mod.Apply(key, v); err != nil {
		return SettingView{}, err
	}
	if err := mod.SaveSettings(); err != nil {
		return SettingView{}, err
	}
	return view(mod, f), nil
}

// Reset restores one module to defaults, or all of them when id is empty
func (a *App) Reset(id string) error {
	if id == "" {
		return a.Settings.ResetAll()
	}
	mod, err := a.module(id)
	if err != nil {
		return err
	}
	return mod.ResetToDefaults()
}
