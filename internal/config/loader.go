package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, STORE_PATH, etc.)
//  2. YAML config file (~/.config/recalld/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/recalld/config.yaml is used.
//
// Config files must live under ~/.config/recalld/ or /etc/recalld/, carry
// 0600 or 0400 permissions, and be at most 1MB. Anything else is rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "recalld", "config.yaml")
	}

	// Validate config path (even if the file doesn't exist)
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. Variables map to config keys by
	// splitting on the first underscore: SERVER_HTTP_PORT -> server.http_port,
	// STORE_VECTOR_PATH -> store.vector_path.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the fully-defaulted configuration without touching the
// filesystem or environment. Useful for tests and embedded use.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// EnsureConfigDir creates the recalld config directory if it doesn't exist.
// The directory is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "recalld")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that don't exist yet still get validated against absPath.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "recalld"),
		"/etc/recalld",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/recalld/ or /etc/recalld/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// 0600 or 0400 only; skip on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.config/recalld/recalld.db"
	}
	if cfg.Store.VectorPath == "" {
		cfg.Store.VectorPath = "~/.config/recalld/vectorstore"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = "recalld_memories"
	}
	if cfg.Store.VectorSize == 0 {
		cfg.Store.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 10 * time.Second
	}
	if cfg.Embeddings.Cache.MaxEntries == 0 {
		cfg.Embeddings.Cache.MaxEntries = 10000
	}

	if cfg.Decay.LambdaEpisodic == 0 {
		cfg.Decay.LambdaEpisodic = 0.12
	}
	if cfg.Decay.LambdaSemantic == 0 {
		cfg.Decay.LambdaSemantic = 0.04
	}
	if cfg.Decay.LambdaProcedural == 0 {
		cfg.Decay.LambdaProcedural = 0.02
	}

	if cfg.Retrieval.DefaultLimit == 0 {
		cfg.Retrieval.DefaultLimit = 10
	}
	if cfg.Retrieval.AccessWeight == 0 {
		cfg.Retrieval.AccessWeight = 0.1
	}
	if cfg.Retrieval.EmbedTimeout == 0 {
		cfg.Retrieval.EmbedTimeout = 5 * time.Second
	}

	if cfg.Consolidation.MinAccessCount == 0 {
		cfg.Consolidation.MinAccessCount = 3
	}
	if cfg.Consolidation.MinImportance == 0 {
		cfg.Consolidation.MinImportance = 7.0
	}
	if cfg.Consolidation.MinAge == 0 {
		cfg.Consolidation.MinAge = time.Hour
	}
	if cfg.Consolidation.Window == 0 {
		cfg.Consolidation.Window = 7 * 24 * time.Hour
	}
	if cfg.Consolidation.CandidateTimeout == 0 {
		cfg.Consolidation.CandidateTimeout = 30 * time.Second
	}

	if cfg.Distill.Provider == "" {
		cfg.Distill.Provider = "heuristic"
	}
	if cfg.Distill.Model == "" {
		cfg.Distill.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.Distill.MaxTokens == 0 {
		cfg.Distill.MaxTokens = 512
	}
	if cfg.Distill.Timeout == 0 {
		cfg.Distill.Timeout = 30 * time.Second
	}

	if cfg.Scheduler.MaintenanceInterval == 0 {
		cfg.Scheduler.MaintenanceInterval = 12 * time.Hour
	}
	if cfg.Scheduler.ConsolidationInterval == 0 {
		cfg.Scheduler.ConsolidationInterval = 6 * time.Hour
	}
	if cfg.Scheduler.TenantParallelism == 0 {
		cfg.Scheduler.TenantParallelism = 4
	}
	if cfg.Scheduler.TenantBudget == 0 {
		cfg.Scheduler.TenantBudget = 100
	}

	if !cfg.Redaction.Enabled && len(cfg.Redaction.Detectors) == 0 {
		cfg.Redaction.Enabled = true
	}
}
