package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig places a config file under the allowed user directory with
// secure permissions, returning its path. Restores any pre-existing file.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir := filepath.Join(home, ".config", "recalld")
	require.NoError(t, os.MkdirAll(dir, 0700))

	path := filepath.Join(dir, "config_loader_test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Cleanup(func() { os.Remove(path) })

	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
}

func TestLoadWithFile_YAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8085
logging:
  level: debug
decay:
  lambda_episodic: 0.2
retrieval:
  default_limit: 25
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.2, cfg.Decay.LambdaEpisodic)
	assert.Equal(t, 25, cfg.Retrieval.DefaultLimit)

	// Unset fields keep defaults.
	assert.Equal(t, 0.04, cfg.Decay.LambdaSemantic)
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.MaintenanceInterval)
}

// Duration fields decode straight from Go duration strings, both in
// YAML and in environment overrides.
func TestLoadWithFile_DurationStrings(t *testing.T) {
	path := writeConfig(t, `
server:
  shutdown_timeout: 30s
consolidation:
  min_age: 90m
`)
	t.Setenv("SCHEDULER_CONSOLIDATION_INTERVAL", "2h")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 90*time.Minute, cfg.Consolidation.MinAge)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.ConsolidationInterval)
}

func TestLoadWithFile_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8085
`)
	t.Setenv("SERVER_HTTP_PORT", "8099")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8099, cfg.Server.Port)
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "")
	require.NoError(t, os.Chmod(path, 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: chatty
`)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
