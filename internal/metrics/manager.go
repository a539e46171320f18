// Package metrics exposes settings engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// Manager records settings activity. It satisfies settings.Recorder so it
// can be handed to every module through settings.Env.
type Manager interface {
	settings.Recorder

	// RecordEncryptionState tracks whether sensitive values are encrypted
	RecordEncryptionState(available bool)
	// RecordImport counts imported and failed modules of one import
	RecordImport(report *settings.ImportReport)
	// RecordHTTPRequest records one bridge request
	RecordHTTPRequest(method, route string, status int, duration time.Duration)

	// Handler serves the Prometheus exposition format
	Handler() http.Handler
	// Middleware instruments a bridge handler
	Middleware() func(http.Handler) http.Handler
}

// Config holds configuration for the metrics system
type Config struct {
	Enabled   bool
	Namespace string
}

// prometheusManager implements Manager with its own registry
type prometheusManager struct {
	registry *prometheus.Registry

	writesTotal         *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	encryptionAvailable prometheus.Gauge
	importsTotal        *prometheus.CounterVec
	importedModules     prometheus.Counter
	failedModules       *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager; a disabled config yields a no-op
func NewManager(cfg Config) Manager {
	if !cfg.Enabled {
		return noopManager{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "consolesettings"
	}

	m := &prometheusManager{registry: prometheus.NewRegistry()}
	m.initializeMetrics(cfg.Namespace)
	return m
}

func (m *prometheusManager) initializeMetrics(namespace string) {
	m.writesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "writes_total",
			Help:      "Setting writes by module, key and outcome",
		},
		[]string{"module", "key", "status"},
	)

	m.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "notifications_total",
			Help:      "Change notifications delivered per module",
		},
		[]string{"module"},
	)

	m.encryptionAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "securestore",
			Name:      "encryption_available",
			Help:      "1 when sensitive values are stored encrypted, 0 when in plaintext fallback",
		},
	)

	m.importsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Imports by source envelope version",
		},
		[]string{"version"},
	)

	m.importedModules = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "modules_imported_total",
			Help:      "Modules imported successfully",
		},
	)

	m.failedModules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "modules_failed_total",
			Help:      "Modules whose import failed",
		},
		[]string{"module"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "Bridge HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Bridge HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.writesTotal,
		m.notificationsTotal,
		m.encryptionAvailable,
		m.importsTotal,
		m.importedModules,
		m.failedModules,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
	)
}

func (m *prometheusManager) RecordWrite(module, key string, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	m.writesTotal.WithLabelValues(module, key, status).Inc()
}

func (m *prometheusManager) RecordNotification(module string) {
	m.notificationsTotal.WithLabelValues(module).Inc()
}

func (m *prometheusManager) RecordEncryptionState(available bool) {
	if available {
		m.encryptionAvailable.Set(1)
	} else {
		m.encryptionAvailable.Set(0)
	}
}

func (m *prometheusManager) RecordImport(report *settings.ImportReport) {
	if report == nil {
		return
	}
	m.importsTotal.WithLabelValues(report.SourceVersion).Inc()
	m.importedModules.Add(float64(len(report.Imported)))
	for id := range report.Failed {
		m.failedModules.WithLabelValues(id).Inc()
	}
}

func (m *prometheusManager) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *prometheusManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware labels requests with the matched mux route template. It must be
// installed with Router.Use so the route is known; otherwise the raw path is
// used.
func (m *prometheusManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// noopManager is used when metrics are disabled
type noopManager struct{}

func (noopManager) RecordWrite(string, string, bool) {}

func (noopManager) RecordNotification(string) {}

func (noopManager) RecordEncryptionState(bool) {}

func (noopManager) RecordImport(*settings.ImportReport) {}

func (noopManager) RecordHTTPRequest(string, string, int, time.Duration) {}

func (noopManager) Handler() http.Handler { return http.NotFoundHandler() }

func (noopManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}
