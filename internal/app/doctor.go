package app

import (
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/modules"
)

// ModuleReport is one module's line in a health report
type ModuleReport struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Unsaved bool   `json:"unsaved"`
	// Status is empty for modules without credentials or identity
	Status string `json:"status,omitempty"`
}

// Report summarizes storage and module health
type Report struct {
	DataDir             string         `json:"dataDir"`
	Backend             string         `json:"backend"`
	SchemaVersion       string         `json:"schemaVersion"`
	EncryptionAvailable bool           `json:"encryptionAvailable"`
	EncryptionVerified  bool           `json:"encryptionVerified"`
	EncryptionError     string         `json:"encryptionError,omitempty"`
	AuditEnabled        bool           `json:"auditEnabled"`
	Modules             []ModuleReport `json:"modules"`
}

type configurationStatus interface {
	ConfigurationStatus() modules.Status
}

type signingStatus interface {
	SigningStatus() modules.Status
}

// Doctor checks the encrypted path end to end and collects module status
func (a *App) Doctor() Report {
	r := Report{
		DataDir:             a.Config.DataDir,
		Backend:             a.Config.Storage.Backend,
		SchemaVersion:       a.Settings.Version(),
		EncryptionAvailable: a.Store.IsEncryptionAvailable(),
		AuditEnabled:        a.Audit != nil,
	}
	if err := a.Store.EncryptionError(); err != nil {
		r.EncryptionError = err.Error()
	} else {
		r.EncryptionVerified = a.Store.ValidateEncryption()
	}

	r.Modules = a.Modules()
	return r
}

// Modules reports state and configuration status of every module
func (a *App) Modules() []ModuleReport {
	var out []ModuleReport
	for _, id := range a.Settings.ModuleIDs() {
		mod := a.Settings.Module(id)
		line := ModuleReport{
			ID:      id,
			State:   mod.State().String(),
			Unsaved: mod.HasUnsavedChanges(),
		}
		switch m := mod.(type) {
		case configurationStatus:
			line.Status = string(m.ConfigurationStatus())
		case signingStatus:
			line.Status = string(m.SigningStatus())
		}
		out = append(out, line)
	}
	return out
}

// Healthy reports whether every check in r passed
func (r Report) Healthy() bool {
	return r.EncryptionAvailable && r.EncryptionVerified
}
