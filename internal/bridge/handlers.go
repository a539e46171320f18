package bridge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/modules"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// APIResponse is the envelope of every /api response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// settingRequest is the body of setting writes
type settingRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	// Type is one of the export type names; optional for module writes
	Type string `json:"type"`
}

// importResponse summarizes an ImportReport
type importResponse struct {
	SourceVersion string            `json:"sourceVersion"`
	Migrations    []string          `json:"migrations"`
	Imported      []string          `json:"imported"`
	Failed        map[string]string `json:"failed,omitempty"`
}

func (s *Server) handleGetEditorSettings(w http.ResponseWriter, r *http.Request) {
	editor, ok := settings.ModuleAs[*modules.Editor](s.app.Settings)
	if !ok {
		s.writeError(w, r, "editor module not registered", http.StatusNotFound)
		return
	}
	raw, err := editor.ToJSON()
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, json.RawMessage(raw))
}

func (s *Server) handleSaveEditorSetting(w http.ResponseWriter, r *http.Request) {
	editor, ok := settings.ModuleAs[*modules.Editor](s.app.Settings)
	if !ok {
		s.writeError(w, r, "editor module not registered", http.StatusNotFound)
		return
	}

	var req settingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Key == "" || req.Type == "" {
		s.writeError(w, r, "key and type are required", http.StatusBadRequest)
		return
	}
	if !editor.SaveSetting(req.Key, req.Value, req.Type) {
		s.writeError(w, r, "setting rejected", http.StatusUnprocessableEntity)
		return
	}
	if err := editor.SaveSettings(); err != nil {
		s.writeError(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	v, _ := editor.Value(req.Key)
	s.writeJSON(w, http.StatusOK, map[string]any{"key": req.Key, "value": v.Interface()})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Modules())
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	views, err := s.app.Describe(id)
	if err != nil {
		s.writeError(w, r, err.Error(), statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "settings": views})
}

func (s *Server) handleResetModule(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Reset(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req settingRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.app.Set(vars["id"], vars["key"], req.Value)
	if err != nil {
		s.writeError(w, r, err.Error(), statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := settings.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if format == settings.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="settings.`+string(format)+`"`)
	if err := s.app.Settings.WriteExport(w, format); err != nil {
		s.logger.WithError(err).Error("Failed to write settings export")
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	format, err := settings.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.app.Import(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
	if err != nil {
		s.writeError(w, r, err.Error(), statusFor(err))
		return
	}

	resp := importResponse{
		SourceVersion: report.SourceVersion,
		Migrations:    report.Migrations,
		Imported:      report.Imported,
	}
	if len(report.Failed) > 0 {
		resp.Failed = make(map[string]string, len(report.Failed))
		for id, err := range report.Failed {
			resp.Failed[id] = err.Error()
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.app.Store.IsEncryptionAvailable() {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"schemaVersion": s.app.Settings.Version(),
		"modules":       len(s.app.Settings.ModuleIDs()),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, settings.ErrUnknownModule), errors.Is(err, schema.ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, settings.ErrNewerVersion):
		return http.StatusConflict
	case errors.Is(err, settings.ErrInvalidEnvelope), errors.Is(err, settings.ErrEmptyImport):
		return http.StatusBadRequest
	case errors.Is(err, settings.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
	s.logger.WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"error":      message,
		"status":     status,
	}).Debug("Bridge request failed")
}
