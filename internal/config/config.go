package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/keystore"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names (CONSOLESETTINGS_DATA_DIR)
const EnvPrefix = "CONSOLESETTINGS"

// Config holds all configuration for the settings engine
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Keystore KeystoreConfig `mapstructure:"keystore"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// StorageConfig selects the key-value engine
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // sqlite, pebble, badger
	Encryption bool   `mapstructure:"encryption"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// KeystoreConfig selects where the master key lives
type KeystoreConfig struct {
	Provider string `mapstructure:"provider"` // keyring, file
	Path     string `mapstructure:"path"`
}

// BridgeConfig configures the loopback HTTP bridge
type BridgeConfig struct {
	Listen string `mapstructure:"listen"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// AuditConfig configures the change log
type AuditConfig struct {
	Enable        bool `mapstructure:"enable"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// Load loads configuration from defaults, an optional config file, the
// environment and command line flags, in increasing priority
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")

	v.SetDefault("storage.backend", string(kv.BackendSQLite))
	v.SetDefault("storage.encryption", true)
	v.SetDefault("storage.sync_writes", false)

	v.SetDefault("keystore.provider", string(keystore.ProviderKeyring))
	v.SetDefault("keystore.path", "") // derived from data_dir

	v.SetDefault("bridge.listen", "127.0.0.1:7420")

	v.SetDefault("metrics.enable", true)

	v.SetDefault("audit.enable", true)
	v.SetDefault("audit.retention_days", 90)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "consolesettings")
	}
	return ".consolesettings"
}

// bindFlags binds the flags that exist on cmd; commands only declare the
// ones they use
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"data-dir":        "data_dir",
		"log-level":       "log_level",
		"log-format":      "log_format",
		"log-file":        "log_file",
		"backend":         "storage.backend",
		"keystore":        "keystore.provider",
		"keystore-path":   "keystore.path",
		"listen":          "bridge.listen",
		"metrics":         "metrics.enable",
		"audit":           "audit.enable",
		"audit-retention": "audit.retention_days",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	// --no-encryption is a negative switch; only an explicit use overrides
	if f := cmd.Flags().Lookup("no-encryption"); f != nil && f.Changed {
		v.Set("storage.encryption", f.Value.String() != "true")
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or %s_DATA_DIR environment variable", EnvPrefix)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}

	backend, err := kv.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return err
	}
	cfg.Storage.Backend = string(backend)

	switch keystore.Provider(cfg.Keystore.Provider) {
	case keystore.ProviderKeyring:
		if cfg.Keystore.Path == "" {
			cfg.Keystore.Path = filepath.Join(cfg.DataDir, "keyring")
		}
	case keystore.ProviderFile:
		if cfg.Keystore.Path == "" {
			cfg.Keystore.Path = filepath.Join(cfg.DataDir, "master.key")
		}
	default:
		return fmt.Errorf("unknown keystore provider %q (want keyring or file)", cfg.Keystore.Provider)
	}

	// The bridge carries unauthenticated settings writes; keep it local
	host, _, err := net.SplitHostPort(cfg.Bridge.Listen)
	if err != nil {
		return fmt.Errorf("invalid bridge.listen %q: %w", cfg.Bridge.Listen, err)
	}
	if host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return fmt.Errorf("bridge.listen must be a loopback address, got %q", cfg.Bridge.Listen)
		}
	}

	if cfg.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	return nil
}
