package embeddings

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps a Provider with an in-process embedding cache keyed by text.
// Memory content repeats heavily across writes and retrievals (the same
// fragments get re-embedded on every consolidation sweep), so even a small
// cache removes most round-trips to the embedding backend.
type Cached struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCached wraps p with a cache holding up to maxEntries embeddings.
func NewCached(p Provider, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	return &Cached{inner: p, cache: cache}, nil
}

// EmbedDocuments embeds texts, serving cached vectors where possible and
// batching only the misses to the inner provider.
func (c *Cached) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			result[i] = v.([]float32)
			recordCacheHit()
			continue
		}
		recordCacheMiss()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vectors, err := c.inner.EmbedDocuments(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			result[idx] = vectors[j]
			c.cache.Set(missTexts[j], vectors[j], 1)
		}
	}

	return result, nil
}

// EmbedQuery embeds a single query through the cache.
func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	if v, ok := c.cache.Get(text); ok {
		recordCacheHit()
		return v.([]float32), nil
	}
	recordCacheMiss()

	vector, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vector, 1)
	return vector, nil
}

// Dimension returns the inner provider's dimension.
func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

// Close releases the cache and the inner provider.
func (c *Cached) Close() error {
	c.cache.Close()
	return c.inner.Close()
}

var _ Provider = (*Cached)(nil)
