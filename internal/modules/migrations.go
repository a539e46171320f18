package modules

import (
	"math"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// Migrations upgrades envelopes written by older builds, oldest first
func Migrations() []settings.Migration {
	return []settings.Migration{
		{
			From:        "1.0.0",
			To:          "1.1.0",
			Description: "rename snake_case keys",
			Apply:       renameLegacyKeys,
		},
		{
			From:        "1.1.0",
			To:          "2.0.0",
			Description: "move editor theme, voice delay in milliseconds",
			Apply:       splitThemeAndMillis,
		},
	}
}

var legacyKeys = map[string]map[string]string{
	EditorID: {
		"font_size":       "fontSize",
		"tab_size":        "tabSize",
		"auto_save":       "autoSave",
		"auto_save_delay": "autoSaveDelay",
		"word_wrap":       "wordWrap",
		"line_numbers":    "lineNumbers",
		"font_family":     "fontFamily",
	},
	TerminalID: {
		"font_size":        "fontSize",
		"scrollback_lines": "scrollbackLines",
		"cursor_style":     "cursorStyle",
		"color_scheme":     "colorScheme",
	},
}

func renameLegacyKeys(env *settings.Envelope) error {
	for module, renames := range legacyKeys {
		for from, to := range renames {
			env.Rename(module, from, to)
		}
	}
	return nil
}

func splitThemeAndMillis(env *settings.Envelope) error {
	// editor.theme was "light" | "dark" | "default"
	if entry, ok := env.Lookup(EditorID, "theme"); ok {
		env.Remove(EditorID, "theme")
		mode := "system"
		if s, ok := entry.Value.(string); ok && (s == "light" || s == "dark") {
			mode = s
		}
		if _, exists := env.Lookup(ThemeID, "mode"); !exists {
			env.Put(ThemeID, settings.NewEntry("mode", schema.String(mode)))
		}
	}

	// voice.autoSendDelay was seconds as FLOAT
	if entry, ok := env.Lookup(VoiceID, "autoSendDelay"); ok {
		env.Remove(VoiceID, "autoSendDelay")
		v, err := schema.FromAny(schema.TypeFloat, entry.Value)
		if err != nil {
			// Unreadable legacy value; the new key keeps its default
			return nil
		}
		seconds, _ := v.AsFloat()
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return nil
		}
		env.Put(VoiceID, settings.NewEntry("autoSendDelayMillis", schema.Long(int64(math.Round(seconds*1000)))))
	}
	return nil
}
