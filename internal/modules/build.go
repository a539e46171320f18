package modules

import (
	"strings"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var buildSchema = schema.MustNew(
	schema.StringField("tool", "gradle").OneOf("gradle", "maven", "make", "none"),
	schema.StringField("defaultTarget", "assembleDebug").MaxLen(256),
	schema.IntField("parallelJobs", 2).Range(1, 32),
	schema.BoolField("cleanBeforeBuild", false),
	schema.LongField("timeoutMillis", 600000).Range(1000, 3600000),
	schema.StringSetField("extraArgs"),
	schema.StringField("keystoreAlias", "").MaxLen(128),
	schema.StringField("keystorePassword", "").Secret().Describe("Release signing keystore password"),
)

// Build holds build tool settings and release signing credentials
type Build struct {
	*settings.BaseModule
}

// NewBuild creates the build module
func NewBuild(env settings.Env) *Build {
	return &Build{BaseModule: settings.NewBaseModule(settings.BaseConfig{
		ID:       BuildID,
		Schema:   buildSchema,
		Validate: validateBuild,
	}, env)}
}

func validateBuild(key string, v schema.Value) (schema.Value, error) {
	if key == "extraArgs" {
		args, _ := v.AsStringSet()
		for _, a := range args {
			if strings.TrimSpace(a) == "" {
				return schema.Value{}, invalid(key, "empty argument")
			}
		}
	}
	return v, nil
}

func (b *Build) Tool() string { return b.GetString("tool", "gradle") }

func (b *Build) DefaultTarget() string { return b.GetString("defaultTarget", "assembleDebug") }

func (b *Build) ParallelJobs() int { return b.GetInt("parallelJobs", 2) }

func (b *Build) Timeout() int64 { return b.GetLong("timeoutMillis", 600000) }

func (b *Build) ExtraArgs() []string { return b.GetStringSet("extraArgs") }

func (b *Build) SetKeystorePassword(p string) bool { return b.SetString("keystorePassword", p) }

// SigningStatus reports whether release signing can run
func (b *Build) SigningStatus() Status {
	if b.GetString("keystoreAlias", "") == "" {
		return StatusMissingIdentity
	}
	if b.GetString("keystorePassword", "") == "" {
		return StatusMissingCredential
	}
	return StatusConfigured
}
