package modules

import (
	"net/url"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var aiSchema = schema.MustNew(
	schema.StringField("provider", "openai").OneOf("openai", "anthropic", "gemini", "ollama"),
	schema.StringField("model", "").MaxLen(128),
	schema.StringField("endpoint", "").MaxLen(2048).Describe("Override of the provider API base URL"),
	schema.FloatField("temperature", 0.7).Range(0, 2),
	schema.IntField("maxTokens", 1024).Range(1, 32768),
	schema.BoolField("streaming", true),
	schema.StringField("systemPrompt", "").MaxLen(4000),
	schema.StringField("apiKey", "").Secret(),
)

// AI holds the chat assistant configuration
type AI struct {
	*settings.BaseModule
}

// NewAI creates the AI assistant module
func NewAI(env settings.Env) *AI {
	return &AI{BaseModule: settings.NewBaseModule(settings.BaseConfig{
		ID:       AIID,
		Schema:   aiSchema,
		Validate: validateAI,
	}, env)}
}

func validateAI(key string, v schema.Value) (schema.Value, error) {
	if key == "endpoint" {
		s, _ := v.AsString()
		if s == "" {
			return v, nil
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return schema.Value{}, invalid(key, "%q is not an http(s) URL", s)
		}
	}
	return v, nil
}

func (a *AI) Provider() string { return a.GetString("provider", "openai") }

func (a *AI) SetProvider(p string) bool { return a.SetString("provider", p) }

func (a *AI) Model() string { return a.GetString("model", "") }

func (a *AI) Endpoint() string { return a.GetString("endpoint", "") }

func (a *AI) Temperature() float64 { return a.GetFloat("temperature", 0.7) }

func (a *AI) MaxTokens() int { return a.GetInt("maxTokens", 1024) }

func (a *AI) Streaming() bool { return a.GetBool("streaming", true) }

func (a *AI) SystemPrompt() string { return a.GetString("systemPrompt", "") }

func (a *AI) SetAPIKey(key string) bool { return a.SetString("apiKey", key) }

// APIKey returns the key for the chat client
func (a *AI) APIKey() string { return a.GetString("apiKey", "") }

// ConfigurationStatus reports whether the assistant can make requests.
// Local ollama needs no key.
func (a *AI) ConfigurationStatus() Status {
	if a.Provider() == "ollama" || a.APIKey() != "" {
		return StatusConfigured
	}
	return StatusMissingCredential
}
