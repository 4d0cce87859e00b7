// Package embeddings provides embedding generation for memory content.
//
// The default backend is a text-embeddings-inference (TEI) HTTP endpoint.
// A deterministic mock backend exists for tests and offline development.
// Providers can be wrapped with an in-process cache, see NewCached.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider from the configuration.
// The cache wrapper is applied when enabled.
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Provider {
	case "tei", "":
		p, err = NewTEI(cfg)
	case "mock":
		p = NewMock(detectDimension(cfg.Model))
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		return NewCached(p, cfg.Cache.MaxEntries)
	}
	return p, nil
}

// detectDimension returns the embedding dimension for a model name.
// Falls back to 384, the bge-small dimension.
func detectDimension(model string) int {
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}
