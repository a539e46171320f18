package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommand(t *testing.T, args map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("data-dir", "", "")
	cmd.Flags().String("backend", "", "")
	cmd.Flags().String("listen", "", "")
	cmd.Flags().String("keystore", "", "")
	cmd.Flags().Bool("no-encryption", false, "")
	for name, value := range args {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	return cmd
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "warn", v.GetString("log_level"))
	assert.Equal(t, "text", v.GetString("log_format"))
	assert.Equal(t, "sqlite", v.GetString("storage.backend"))
	assert.True(t, v.GetBool("storage.encryption"))
	assert.Equal(t, "keyring", v.GetString("keystore.provider"))
	assert.Equal(t, "127.0.0.1:7420", v.GetString("bridge.listen"))
	assert.True(t, v.GetBool("metrics.enable"))
	assert.True(t, v.GetBool("audit.enable"))
	assert.Equal(t, 90, v.GetInt("audit.retention_days"))
	assert.NotEmpty(t, v.GetString("data_dir"))
}

func TestLoad_Flags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(newCommand(t, map[string]string{
		"data-dir":      dir,
		"backend":       "Pebble",
		"keystore":      "file",
		"no-encryption": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "pebble", cfg.Storage.Backend)
	assert.False(t, cfg.Storage.Encryption)
	assert.Equal(t, "file", cfg.Keystore.Provider)
	assert.Equal(t, filepath.Join(dir, "master.key"), cfg.Keystore.Path)
}

func TestLoad_KeyringPathDefaultsUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(newCommand(t, map[string]string{"data-dir": dir}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "keyring"), cfg.Keystore.Path)
	assert.True(t, cfg.Storage.Encryption)
}

func TestLoad_Environment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONSOLESETTINGS_DATA_DIR", dir)
	t.Setenv("CONSOLESETTINGS_STORAGE_BACKEND", "badger")
	t.Setenv("CONSOLESETTINGS_LOG_LEVEL", "debug")

	cfg, err := Load(newCommand(t, nil))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "consolesettings.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
data_dir: `+dir+`
log_format: json
bridge:
  listen: "[::1]:9000"
audit:
  retention_days: 7
`), 0600))

	cfg, err := Load(newCommand(t, map[string]string{"config": file}))
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "[::1]:9000", cfg.Bridge.Listen)
	assert.Equal(t, 7, cfg.Audit.RetentionDays)

	_, err = Load(newCommand(t, map[string]string{"config": filepath.Join(dir, "missing.yaml")}))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]map[string]string{
		"backend":     {"data-dir": dir, "backend": "leveldb"},
		"keystore":    {"data-dir": dir, "keystore": "vault"},
		"public bind": {"data-dir": dir, "listen": "0.0.0.0:7420"},
		"no port":     {"data-dir": dir, "listen": "localhost"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(newCommand(t, args))
			assert.Error(t, err)
		})
	}
}
