// Package app wires the settings engine together: storage engines, the
// keystore, the secure value store, every settings module, the change log
// and metrics. Commands and the bridge receive an *App instead of reaching
// for globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/audit"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/config"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/keystore"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/kv"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/metrics"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/modules"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/securestore"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

// App is the running settings engine
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Settings *settings.Manager
	Store    *securestore.Store
	Metrics  metrics.Manager
	// Audit is nil when the change log is disabled
	Audit *audit.Manager

	auditSub *settings.Subscription
	cancel   context.CancelFunc
}

// New opens the stores and initializes every module
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	backend, err := kv.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}

	plain, err := kv.Open(kv.Options{
		Backend:    backend,
		Dir:        cfg.DataDir,
		Name:       "settings",
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewManager(metrics.Config{Enabled: cfg.Metrics.Enable}),
	}

	var ks keystore.KeyStore
	if cfg.Storage.Encryption {
		ks, err = keystore.New(keystore.Options{
			Provider: keystore.Provider(cfg.Keystore.Provider),
			Path:     cfg.Keystore.Path,
			Logger:   logger,
		})
		if err != nil {
			// securestore reports the downgrade when a sensitive key is first used
			logger.WithError(err).Debug("Keystore unavailable")
			ks = nil
		}
	}

	a.Store, err = securestore.New(securestore.Options{
		Plain: plain,
		OpenSecure: func() (kv.Store, error) {
			return kv.Open(kv.Options{
				Backend:    backend,
				Dir:        cfg.DataDir,
				Name:       "secure",
				SyncWrites: true,
				Logger:     logger,
			})
		},
		KeyStore:          ks,
		Disabled:          !cfg.Storage.Encryption,
		OnEncryptionState: a.Metrics.RecordEncryptionState,
		Logger:            logger,
	})
	if err != nil {
		plain.Close()
		return nil, err
	}

	a.Settings, err = NewSettingsManager(a.Store, logger, a.Metrics)
	if err != nil {
		a.Store.Close()
		return nil, err
	}

	if cfg.Audit.Enable {
		store, err := audit.NewSQLiteStore(filepath.Join(cfg.DataDir, "audit.db"), logger)
		if err != nil {
			a.Store.Close()
			return nil, fmt.Errorf("open change log: %w", err)
		}
		a.Audit = audit.NewManager(store, logger)
		a.auditSub = a.Audit.Subscribe(a.Settings)
	}

	logger.WithFields(logrus.Fields{
		"data_dir":   cfg.DataDir,
		"backend":    backend,
		"encryption": cfg.Storage.Encryption,
		"modules":    len(a.Settings.ModuleIDs()),
	}).Debug("Settings engine ready")
	return a, nil
}

// NewSettingsManager builds an initialized manager with every module
// registered and the default dependency edges wired
func NewSettingsManager(store *securestore.Store, logger *logrus.Logger, recorder settings.Recorder) (*settings.Manager, error) {
	mgr, err := settings.NewManager(settings.Options{
		Env: settings.Env{
			Scope: func(namespace string, s *schema.Schema) settings.Storage {
				return store.Scope(namespace, s)
			},
			Logger:   logger,
			Recorder: recorder,
			Sync:     store.Sync,
		},
		Version:    modules.SchemaVersion,
		Migrations: modules.Migrations(),
	})
	if err != nil {
		return nil, err
	}
	if err := mgr.Initialize(modules.Factories()...); err != nil {
		return nil, fmt.Errorf("initialize settings modules: %w", err)
	}
	if err := modules.Wire(mgr); err != nil {
		return nil, fmt.Errorf("wire module dependencies: %w", err)
	}
	return mgr, nil
}

// Start runs background jobs until ctx is cancelled or Close is called
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	if a.Audit != nil {
		a.Audit.StartRetentionJob(ctx, a.Config.Audit.RetentionDays)
	}
}

// Import reads an envelope and imports it, recording the outcome
func (a *App) Import(r io.Reader, format settings.Format) (*settings.ImportReport, error) {
	env, err := a.Settings.ReadEnvelope(r, format)
	if err != nil {
		return nil, err
	}
	report, err := a.Settings.Import(env)
	if err != nil {
		return nil, err
	}
	a.Metrics.RecordImport(report)
	return report, nil
}

// Close saves pending changes and releases every store
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	errs := []error{a.Settings.Close()}
	if a.auditSub != nil {
		a.auditSub.Unsubscribe()
	}
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
