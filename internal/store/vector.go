package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/recalld/internal/memory"
)

// VectorIndex wraps a chromem-go collection indexing active entries.
// Embeddings are always precomputed by the caller; the index never calls
// out to an embedding backend itself.
type VectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// errNoEmbedFunc guards against chromem falling back to its default
// (remote) embedding function. Every document and query must arrive with
// an embedding already attached.
func errNoEmbedFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// NewVectorIndex creates a persistent vector index at path. An empty path
// creates an in-memory index for tests.
func NewVectorIndex(path, collection string, compress bool) (*VectorIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expanded, 0700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
		}
		db, err = chromem.NewPersistentDB(expanded, compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	if collection == "" {
		collection = "recalld_memories"
	}
	col, err := db.GetOrCreateCollection(collection, nil, errNoEmbedFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	return &VectorIndex{db: db, collection: col}, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Add indexes an entry under its tenant and user metadata.
func (v *VectorIndex) Add(ctx context.Context, e *memory.Entry, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("embedding required")
	}

	doc := chromem.Document{
		ID:      e.ID,
		Content: e.Content,
		Metadata: map[string]string{
			"tenant_id": e.Metadata.TenantID,
			"user_id":   e.Metadata.UserID,
		},
		Embedding: embedding,
	}
	if err := v.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("adding document: %w", err)
	}
	return nil
}

// Remove drops entries from the index. Missing IDs are not an error.
func (v *VectorIndex) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := v.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Similarity is one vector search hit.
type Similarity struct {
	ID    string
	Score float32
}

// Query returns up to k entries most similar to the embedding, restricted
// to the given tenant and user. k <= 0 ranks every indexed entry within
// the scope.
func (v *VectorIndex) Query(ctx context.Context, scope memory.Scope, embedding []float32, k int) ([]Similarity, error) {
	// chromem requires nResults <= document count.
	count := v.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k <= 0 || k > count {
		k = count
	}

	where := map[string]string{
		"tenant_id": scope.TenantID,
		"user_id":   scope.UserID,
	}
	results, err := v.collection.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	similarities := make([]Similarity, len(results))
	for i, r := range results {
		similarities[i] = Similarity{ID: r.ID, Score: r.Similarity}
	}
	return similarities, nil
}

// Count returns the number of indexed entries.
func (v *VectorIndex) Count() int {
	return v.collection.Count()
}
