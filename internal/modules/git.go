package modules

import (
	"net/mail"
	"strings"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var gitSchema = schema.MustNew(
	schema.StringField("userName", "").MaxLen(128).Describe("Commit author name"),
	schema.StringField("userEmail", "").MaxLen(254).Describe("Commit author email"),
	schema.StringField("defaultBranch", "main").MaxLen(255),
	schema.BoolField("autoFetch", false),
	schema.IntField("fetchIntervalMinutes", 15).Range(1, 1440),
	schema.BoolField("signCommits", false),
	schema.StringField("accessToken", "").Secret().Describe("Personal access token for HTTPS remotes"),
)

// Git holds version control identity and credentials
type Git struct {
	*settings.BaseModule
}

// NewGit creates the git module
func NewGit(env settings.Env) *Git {
	return &Git{BaseModule: settings.NewBaseModule(settings.BaseConfig{
		ID:       GitID,
		Schema:   gitSchema,
		Validate: validateGit,
	}, env)}
}

func validateGit(key string, v schema.Value) (schema.Value, error) {
	s, _ := v.AsString()
	switch key {
	case "userEmail":
		if s == "" {
			return v, nil
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return schema.Value{}, invalid(key, "%q is not an email address", s)
		}
	case "defaultBranch":
		if s == "" || strings.ContainsAny(s, " \t~^:?*[\\") || strings.Contains(s, "..") {
			return schema.Value{}, invalid(key, "%q is not a valid branch name", s)
		}
	case "userName":
		return schema.String(strings.TrimSpace(s)), nil
	}
	return v, nil
}

func (g *Git) UserName() string { return g.GetString("userName", "") }

func (g *Git) SetUserName(name string) bool { return g.SetString("userName", name) }

func (g *Git) UserEmail() string { return g.GetString("userEmail", "") }

func (g *Git) SetUserEmail(email string) bool { return g.SetString("userEmail", email) }

func (g *Git) DefaultBranch() string { return g.GetString("defaultBranch", "main") }

func (g *Git) AutoFetch() bool { return g.GetBool("autoFetch", false) }

func (g *Git) FetchIntervalMinutes() int { return g.GetInt("fetchIntervalMinutes", 15) }

// SetAccessToken stores the token encrypted; an empty token clears it
func (g *Git) SetAccessToken(token string) bool {
	return g.SetString("accessToken", strings.TrimSpace(token))
}

// AccessToken returns the stored token for the VCS shell-out
func (g *Git) AccessToken() string { return g.GetString("accessToken", "") }

// HasAccessToken reports whether a token is configured without exposing it
func (g *Git) HasAccessToken() bool { return g.AccessToken() != "" }

// ConfigurationStatus summarizes identity and credential state
func (g *Git) ConfigurationStatus() Status {
	if g.UserName() == "" || g.UserEmail() == "" {
		return StatusMissingIdentity
	}
	if !g.HasAccessToken() {
		return StatusMissingCredential
	}
	return StatusConfigured
}
