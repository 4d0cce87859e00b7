// Package config provides configuration loading for recalld.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, with hardcoded defaults filling the gaps.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/redact"
)

// Config holds the complete recalld configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Store         StoreConfig         `koanf:"store"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Decay         DecayConfig         `koanf:"decay"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Distill       DistillConfig       `koanf:"distill"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Redaction     redact.Config       `koanf:"redaction"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
}

// StoreConfig holds the relational store and vector index configuration.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" for tests.
	Path string `koanf:"path"`

	// VectorPath is the chromem persistence directory.
	VectorPath string `koanf:"vector_path"`

	// Collection is the chromem collection name.
	Collection string `koanf:"collection"`

	// VectorSize is the embedding dimensionality.
	VectorSize int `koanf:"vector_size"`

	// Compress enables gzip compression of persisted vectors.
	Compress bool `koanf:"compress"`
}

// EmbeddingsConfig holds the embedding provider configuration.
type EmbeddingsConfig struct {
	// Provider selects the backend: "tei" or "mock".
	Provider string `koanf:"provider"`

	// BaseURL is the text-embeddings-inference endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model identifier.
	Model string `koanf:"model"`

	// APIKey authenticates against hosted endpoints. Optional for local TEI.
	APIKey Secret `koanf:"api_key"`

	// Timeout bounds a single embedding request.
	Timeout time.Duration `koanf:"timeout"`

	Cache EmbeddingCacheConfig `koanf:"cache"`
}

// EmbeddingCacheConfig holds the embedding cache configuration.
type EmbeddingCacheConfig struct {
	Enabled    bool  `koanf:"enabled"`
	MaxEntries int64 `koanf:"max_entries"`
}

// DecayConfig holds per-type exponential decay rates, in 1/hour.
type DecayConfig struct {
	LambdaEpisodic   float64 `koanf:"lambda_episodic"`
	LambdaSemantic   float64 `koanf:"lambda_semantic"`
	LambdaProcedural float64 `koanf:"lambda_procedural"`
}

// RetrievalConfig holds ranking configuration.
type RetrievalConfig struct {
	// DefaultLimit is the result count applied by the HTTP layer when a
	// search request omits a limit.
	DefaultLimit int `koanf:"default_limit"`

	// AccessWeight scales the access-frequency bonus in the ranking score.
	AccessWeight float64 `koanf:"access_weight"`

	// EmbedTimeout bounds query embedding before falling back to lexical.
	EmbedTimeout time.Duration `koanf:"embed_timeout"`
}

// ConsolidationConfig holds the thresholds an episodic entry must clear
// before it is distilled into a semantic fact.
type ConsolidationConfig struct {
	MinAccessCount int64         `koanf:"min_access_count"`
	MinImportance  float64       `koanf:"min_importance"`
	MinAge         time.Duration `koanf:"min_age"`
	Window         time.Duration `koanf:"window"`

	// CandidateTimeout bounds the distillation of one candidate.
	CandidateTimeout time.Duration `koanf:"candidate_timeout"`
}

// DistillConfig holds the LLM distillation backend configuration.
type DistillConfig struct {
	// Provider selects the backend: "anthropic" or "heuristic".
	Provider string `koanf:"provider"`

	Model     string        `koanf:"model"`
	APIKey    Secret        `koanf:"api_key"`
	MaxTokens int64         `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
}

// SchedulerConfig holds background job configuration.
type SchedulerConfig struct {
	// MaintenanceInterval is the period of the expiry/decay maintenance job.
	MaintenanceInterval time.Duration `koanf:"maintenance_interval"`

	// ConsolidationInterval is the period of the consolidation sweep.
	ConsolidationInterval time.Duration `koanf:"consolidation_interval"`

	// TenantParallelism bounds how many tenants are processed concurrently.
	TenantParallelism int `koanf:"tenant_parallelism"`

	// TenantBudget caps candidates processed per tenant per sweep.
	TenantBudget int `koanf:"tenant_budget"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	if c.Store.VectorSize <= 0 {
		return fmt.Errorf("invalid vector size: %d", c.Store.VectorSize)
	}

	switch c.Embeddings.Provider {
	case "tei", "mock":
	default:
		return fmt.Errorf("unknown embeddings provider: %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "tei" && c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base_url is required for the tei provider")
	}

	if c.Decay.LambdaEpisodic <= 0 || c.Decay.LambdaSemantic <= 0 || c.Decay.LambdaProcedural <= 0 {
		return errors.New("decay rates must be positive")
	}

	if c.Retrieval.DefaultLimit <= 0 {
		return fmt.Errorf("invalid retrieval default limit: %d", c.Retrieval.DefaultLimit)
	}
	if c.Retrieval.AccessWeight < 0 {
		return fmt.Errorf("access weight cannot be negative: %f", c.Retrieval.AccessWeight)
	}

	if c.Consolidation.MinAccessCount < 0 {
		return errors.New("consolidation min_access_count cannot be negative")
	}
	if c.Consolidation.MinAge <= 0 || c.Consolidation.Window <= 0 {
		return errors.New("consolidation min_age and window must be positive")
	}
	if c.Consolidation.MinAge >= c.Consolidation.Window {
		return errors.New("consolidation min_age must be shorter than window")
	}

	switch c.Distill.Provider {
	case "anthropic", "heuristic":
	default:
		return fmt.Errorf("unknown distill provider: %q", c.Distill.Provider)
	}
	if c.Distill.Provider == "anthropic" && !c.Distill.APIKey.IsSet() {
		return errors.New("distill api_key is required for the anthropic provider")
	}

	if c.Scheduler.MaintenanceInterval <= 0 || c.Scheduler.ConsolidationInterval <= 0 {
		return errors.New("scheduler intervals must be positive")
	}
	if c.Scheduler.TenantParallelism < 1 {
		return fmt.Errorf("tenant parallelism must be at least 1: %d", c.Scheduler.TenantParallelism)
	}

	if err := c.Redaction.Validate(); err != nil {
		return fmt.Errorf("redaction config: %w", err)
	}

	return nil
}
