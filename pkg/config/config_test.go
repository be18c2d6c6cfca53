package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoConfigFile_UsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.EqualValues(t, 200*1024*1024, cfg.Upload.LimitBytes)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: DEBUG
server:
  port: 9999
upload:
  limit_bytes: 1048576
  max_combined_bytes: 10485760
  timeout_secs: 15
  lifespan_secs_default: 3600
database:
  type: sqlite
  sqlite:
    path: ` + filepath.ToSlash(filepath.Join(dir, "db.sqlite")) + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.EqualValues(t, 1048576, cfg.Upload.LimitBytes)
	// Values omitted from the file still pick up defaults.
	assert.EqualValues(t, 60, cfg.Download.TimeoutSecs)
}

func TestLoad_LogEnvOverridesLevel(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("LOG", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestGetConfigDir_HonorsConfigDirEnv(t *testing.T) {
	t.Setenv("CONFIG_DIR", "/tmp/custom-transferd-dir")
	assert.Equal(t, "/tmp/custom-transferd-dir", GetConfigDir())
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.Port, loaded.Server.Port)
	assert.Equal(t, cfg.Upload.LimitBytes, loaded.Upload.LimitBytes)
}

func TestValidate_RejectsMissingUploadDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Upload.Dir = ""
	assert.Error(t, Validate(cfg))
}
