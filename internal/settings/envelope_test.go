package settings

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope() *Envelope {
	return &Envelope{
		Version:    "2.0.0",
		ExportedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Modules: map[string][]Entry{
			"editor": {
				NewEntry("fontSize", schema.Int(8)),
				NewEntry("autoSave", schema.Bool(true)),
				NewEntry("keymap", schema.String("vim")),
			},
			"theme": {
				NewEntry("fontScale", schema.Float(1.25)),
			},
			"terminal": {
				NewEntry("maxOutputBytes", schema.Long(1<<40)),
			},
			"filemanager": {
				NewEntry("bookmarks", schema.StringSet("/sdcard/Download", "/sdcard/DCIM")),
			},
		},
	}
}

// decodedValues reduces an envelope to typed values so JSON and YAML
// number representations compare equal
func decodedValues(t *testing.T, env *Envelope) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for id, entries := range env.Modules {
		for _, e := range entries {
			v, err := e.Decode()
			require.NoError(t, err, "%s.%s", id, e.Key)
			out[id+"."+e.Key] = v.Type().String() + ":" + v.Format()
		}
	}
	return out
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	env := sampleEnvelope()

	var buf bytes.Buffer
	require.NoError(t, env.Encode(&buf, FormatJSON))
	assert.Contains(t, buf.String(), `"exportedAt": "2026-03-01T12:00:00Z"`)
	assert.Contains(t, buf.String(), `"type": "INTEGER"`)

	got, err := DecodeEnvelope(&buf, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, env.Version, got.Version)
	assert.True(t, env.ExportedAt.Equal(got.ExportedAt))
	if diff := cmp.Diff(decodedValues(t, env), decodedValues(t, got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvelope_YAMLRoundTrip(t *testing.T) {
	env := sampleEnvelope()

	var buf bytes.Buffer
	require.NoError(t, env.Encode(&buf, FormatYAML))
	assert.Contains(t, buf.String(), "version: 2.0.0")

	got, err := DecodeEnvelope(&buf, FormatYAML)
	require.NoError(t, err)
	if diff := cmp.Diff(decodedValues(t, env), decodedValues(t, got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{{`,
		"bad version":    `{"version":"x.y","modules":{}}`,
		"missing module": `{"version":"2.0.0"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope(strings.NewReader(doc), FormatJSON)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}

	_, err := DecodeEnvelope(strings.NewReader("{}"), Format("toml"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":                FormatJSON,
		"json":            FormatJSON,
		"backup.json":     FormatJSON,
		"settings.YAML":   FormatYAML,
		"/tmp/export.yml": FormatYAML,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("settings.toml")
	assert.Error(t, err)
}

func TestEnvelope_EditHelpers(t *testing.T) {
	env := sampleEnvelope()
	clone := env.Clone()

	assert.True(t, clone.Rename("editor", "keymap", "keyMap"))
	assert.False(t, clone.Rename("editor", "keymap", "again"))
	assert.True(t, clone.Move("editor", "autoSave", "theme", "autoSave"))
	assert.True(t, clone.Remove("theme", "fontScale"))
	clone.Put("editor", NewEntry("fontSize", schema.Int(12)))

	if diff := cmp.Diff([]Entry{
		NewEntry("fontSize", schema.Int(12)),
		NewEntry("keyMap", schema.String("vim")),
	}, clone.Modules["editor"]); diff != "" {
		t.Errorf("editor section mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []Entry{NewEntry("autoSave", schema.Bool(true))}, clone.Modules["theme"])

	// The original is untouched
	assert.Len(t, env.Modules["editor"], 3)
	assert.Equal(t, []string{"editor", "filemanager", "terminal", "theme"}, env.ModuleIDs())
}
