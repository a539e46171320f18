// Package bridge serves settings to the embedded editor surface and local
// tools over a loopback HTTP API.
package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/app"
)

// maxBodyBytes bounds request bodies; settings documents are small
const maxBodyBytes = 1 << 20

// Server is the bridge HTTP server
type Server struct {
	app        *app.App
	logger     *logrus.Logger
	httpServer *http.Server
}

// New creates a bridge bound to the configured loopback address
func New(a *app.App) *Server {
	s := &Server{app: a, logger: a.Logger}
	s.httpServer = &http.Server{
		Addr:              a.Config.Bridge.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the routed, instrumented handler
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.tracing, s.app.Metrics.Middleware())

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/editor/settings", s.handleGetEditorSettings).Methods(http.MethodGet)
	api.HandleFunc("/editor/settings", s.handleSaveEditorSetting).Methods(http.MethodPut)
	api.HandleFunc("/modules", s.handleListModules).Methods(http.MethodGet)
	api.HandleFunc("/modules/{id}", s.handleGetModule).Methods(http.MethodGet)
	api.HandleFunc("/modules/{id}", s.handleResetModule).Methods(http.MethodDelete)
	api.HandleFunc("/modules/{id}/{key}", s.handleSetSetting).Methods(http.MethodPut)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", s.app.Metrics.Handler()).Methods(http.MethodGet)

	var h http.Handler = router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"http://localhost", "http://127.0.0.1"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.CombinedLoggingHandler(s.logger.WriterLevel(logrus.DebugLevel), h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(s.logger), handlers.PrintRecoveryStack(false))(h)
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.WithField("address", ln.Addr().String()).Info("Starting settings bridge")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down settings bridge")
	return s.httpServer.Shutdown(shutdownCtx)
}
