package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Mock is a deterministic embedding provider for tests and offline use.
// Equal texts always map to equal unit vectors; distinct texts map to
// distinct vectors with overwhelming probability.
type Mock struct {
	dimension int

	// Fail, when set, makes every call return ErrEmbeddingFailed.
	// Exercises degraded retrieval paths in tests.
	Fail bool
}

// NewMock creates a mock provider producing vectors of the given dimension.
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 384
	}
	return &Mock{dimension: dimension}
}

func (m *Mock) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if m.Fail {
		return nil, fmt.Errorf("%w: mock failure", ErrEmbeddingFailed)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vector(text)
	}
	return vectors, nil
}

func (m *Mock) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if m.Fail {
		return nil, fmt.Errorf("%w: mock failure", ErrEmbeddingFailed)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return m.vector(text), nil
}

// vector derives a unit vector from the text via a seeded xorshift stream.
func (m *Mock) vector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 1
	}

	v := make([]float32, m.dimension)
	var norm float64
	for i := range v {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		// Map to [-1, 1).
		v[i] = float32(int64(state)) / float32(math.MaxInt64)
		norm += float64(v[i]) * float64(v[i])
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func (m *Mock) Dimension() int {
	return m.dimension
}

func (m *Mock) Close() error {
	return nil
}

var _ Provider = (*Mock)(nil)
