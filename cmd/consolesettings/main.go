package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/app"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/config"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failMark(), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "consolesettings",
		Short: "Settings engine for the console launcher",
		Long: `consolesettings reads and writes the console launcher's settings.

Every feature (editor, git, file manager, terminal, build, theme, AI and
voice) keeps its own typed settings. Sensitive values such as API keys and
signing passwords are encrypted with a key held by the platform keystore.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("data-dir", "d", "", "Data directory path")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.String("backend", "sqlite", "Storage backend (sqlite, pebble, badger)")
	flags.String("keystore", "keyring", "Master key provider (keyring, file)")
	flags.String("keystore-path", "", "Keystore location (default under the data directory)")
	flags.Bool("no-encryption", false, "Store sensitive values in plaintext")
	flags.Bool("audit", true, "Record setting changes in the change log")
	flags.Int("audit-retention", 90, "Days of change log to keep (0 keeps everything)")

	rootCmd.AddCommand(
		newModulesCmd(),
		newListCmd(),
		newGetCmd(),
		newSetCmd(),
		newResetCmd(),
		newExportCmd(),
		newImportCmd(),
		newHistoryCmd(),
		newDoctorCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// session is an opened engine plus the resources to release with it
type session struct {
	*app.App
	logCloser io.Closer
}

func (s *session) Close() error {
	err := s.App.Close()
	if cerr := s.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}

// openApp loads configuration for cmd and opens the engine
func openApp(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := logging.NewLogger(logging.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    cmd.ErrOrStderr(),
		File:      cfg.LogFile,
		FileLevel: logrus.InfoLevel.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version":  version,
		"data_dir": cfg.DataDir,
		"backend":  cfg.Storage.Backend,
	}).Debug("Opening settings engine")

	a, err := app.New(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	return &session{App: a, logCloser: closer}, nil
}

// withApp runs fn against an opened engine and closes it afterwards
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	runErr := fn(s.App)
	if err := s.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close settings: %w", err)
	}
	return runErr
}
