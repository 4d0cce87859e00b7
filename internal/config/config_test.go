package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 384, cfg.Store.VectorSize)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, 0.12, cfg.Decay.LambdaEpisodic)
	assert.Equal(t, 0.04, cfg.Decay.LambdaSemantic)
	assert.Equal(t, 0.02, cfg.Decay.LambdaProcedural)
	assert.Equal(t, int64(3), cfg.Consolidation.MinAccessCount)
	assert.Equal(t, 7.0, cfg.Consolidation.MinImportance)
	assert.Equal(t, time.Hour, cfg.Consolidation.MinAge)
	assert.Equal(t, 7*24*time.Hour, cfg.Consolidation.Window)
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.MaintenanceInterval)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.ConsolidationInterval)
	assert.True(t, cfg.Redaction.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, "store path is required"},
		{"bad vector size", func(c *Config) { c.Store.VectorSize = -1 }, "invalid vector size"},
		{"unknown embeddings provider", func(c *Config) { c.Embeddings.Provider = "openai" }, "unknown embeddings provider"},
		{"zero decay rate", func(c *Config) { c.Decay.LambdaSemantic = 0 }, "decay rates must be positive"},
		{"negative access weight", func(c *Config) { c.Retrieval.AccessWeight = -0.5 }, "access weight"},
		{"min_age past window", func(c *Config) {
			c.Consolidation.MinAge = 8 * 24 * time.Hour
		}, "min_age must be shorter than window"},
		{"anthropic without key", func(c *Config) { c.Distill.Provider = "anthropic" }, "api_key is required"},
		{"zero parallelism", func(c *Config) { c.Scheduler.TenantParallelism = 0 }, "tenant parallelism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-ant-abc123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-ant-abc123", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))
	assert.NotContains(t, string(data), "abc123")
}

func TestSecretEmpty(t *testing.T) {
	var s Secret
	assert.Equal(t, "", s.String())
	assert.False(t, s.IsSet())
}

func TestSecretUnmarshal(t *testing.T) {
	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"raw-key"`), &s))
	assert.Equal(t, "raw-key", s.Value())
}
