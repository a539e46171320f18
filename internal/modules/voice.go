package modules

import (
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
	"golang.org/x/text/language"
)

var voiceSchema = schema.MustNew(
	schema.BoolField("enabled", false),
	schema.StringField("language", "en-US").Describe("BCP 47 language tag for recognition"),
	schema.FloatField("speechRate", 1.0).Range(0.25, 4.0),
	schema.FloatField("pitch", 1.0).Range(0.5, 2.0),
	schema.StringField("wakeWord", "").MaxLen(64),
	schema.LongField("autoSendDelayMillis", 1500).Range(0, 10000),
	schema.StringField("apiKey", "").Secret().Describe("Speech service key"),
)

// Voice holds speech input settings
type Voice struct {
	*settings.BaseModule
}

// NewVoice creates the voice module
func NewVoice(env settings.Env) *Voice {
	return &Voice{BaseModule: settings.NewBaseModule(settings.BaseConfig{
		ID:         VoiceID,
		Schema:     voiceSchema,
		Validate:   validateVoice,
		Deprecated: []string{"autoSendDelay"},
	}, env)}
}

func validateVoice(key string, v schema.Value) (schema.Value, error) {
	if key == "language" {
		s, _ := v.AsString()
		tag, err := language.Parse(s)
		if err != nil {
			return schema.Value{}, invalid(key, "%q is not a language tag", s)
		}
		return schema.String(tag.String()), nil
	}
	return v, nil
}

func (v *Voice) Enabled() bool { return v.GetBool("enabled", false) }

func (v *Voice) SetEnabled(on bool) bool { return v.SetBool("enabled", on) }

func (v *Voice) Language() string { return v.GetString("language", "en-US") }

func (v *Voice) SetLanguage(tag string) bool { return v.SetString("language", tag) }

func (v *Voice) SpeechRate() float64 { return v.GetFloat("speechRate", 1.0) }

func (v *Voice) AutoSendDelayMillis() int64 { return v.GetLong("autoSendDelayMillis", 1500) }

func (v *Voice) SetAPIKey(key string) bool { return v.SetString("apiKey", key) }

// ConfigurationStatus reports whether voice input can be used
func (v *Voice) ConfigurationStatus() Status {
	if !v.Enabled() {
		return StatusDisabled
	}
	if v.GetString("apiKey", "") == "" {
		return StatusMissingCredential
	}
	return StatusConfigured
}
