// Package modules declares the concrete settings modules of the console:
// editor, git, file manager, terminal, build, theme, AI assistant and voice.
package modules

import (
	"errors"
	"fmt"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// SchemaVersion is the version stamped on exports written by this build
const SchemaVersion = "2.0.0"

// Module ids
const (
	EditorID      = "editor"
	GitID         = "git"
	FileManagerID = "filemanager"
	TerminalID    = "terminal"
	BuildID       = "build"
	ThemeID       = "theme"
	AIID          = "ai"
	VoiceID       = "voice"
)

// Status is a derived, display-ready configuration state
type Status string

const (
	StatusConfigured        Status = "fully configured"
	StatusMissingIdentity   Status = "missing identity"
	StatusMissingCredential Status = "missing credential"
	StatusDisabled          Status = "disabled"
)

// ErrInvalidValue is wrapped by module validation failures
var ErrInvalidValue = errors.New("invalid value")

func invalid(key, format string, args ...any) error {
	return fmt.Errorf("%w for %s: %s", ErrInvalidValue, key, fmt.Sprintf(format, args...))
}

// Factories returns a factory for every module, in registration order
func Factories() []settings.ModuleFactory {
	return []settings.ModuleFactory{
		func(env settings.Env) settings.Module { return NewTheme(env) },
		func(env settings.Env) settings.Module { return NewEditor(env) },
		func(env settings.Env) settings.Module { return NewTerminal(env) },
		func(env settings.Env) settings.Module { return NewGit(env) },
		func(env settings.Env) settings.Module { return NewFileManager(env) },
		func(env settings.Env) settings.Module { return NewBuild(env) },
		func(env settings.Env) settings.Module { return NewAI(env) },
		func(env settings.Env) settings.Module { return NewVoice(env) },
	}
}

// Dependencies lists the default source -> dependent edges
func Dependencies() [][2]string {
	return [][2]string{
		{ThemeID, EditorID},
		{ThemeID, TerminalID},
	}
}

// Wire registers the default dependency edges on an initialized manager
func Wire(m *settings.Manager) error {
	for _, edge := range Dependencies() {
		if err := m.AddDependency(edge[0], edge[1]); err != nil {
			return err
		}
	}
	return nil
}

// visualRefresh tracks whether a theme change still has to be applied by
// the UI of a dependent module
type visualRefresh struct {
	pending chan struct{}
}

func newVisualRefresh() visualRefresh {
	return visualRefresh{pending: make(chan struct{}, 1)}
}

func (v visualRefresh) mark() {
	select {
	case v.pending <- struct{}{}:
	default:
	}
}

// take reports and clears the pending flag
func (v visualRefresh) take() bool {
	select {
	case <-v.pending:
		return true
	default:
		return false
	}
}
