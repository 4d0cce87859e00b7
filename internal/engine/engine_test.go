package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/consolidation"
	"github.com/fyrsmithlabs/recalld/internal/decay"
	"github.com/fyrsmithlabs/recalld/internal/distill"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/redact"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

var (
	aliceScope = memory.Scope{TenantID: "tenant-a", UserID: "alice"}
	bobScope   = memory.Scope{TenantID: "tenant-b", UserID: "bob"}
	adminScope = memory.Scope{TenantID: "tenant-a", UserID: "ops", Role: memory.RoleAdmin}
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	db, err := store.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	vectors, err := store.NewVectorIndex("", "", false)
	require.NoError(t, err)
	st := store.New(db, vectors, nil)

	mock := embeddings.NewMock(32)
	retrievalCfg := config.RetrievalConfig{
		DefaultLimit: 10,
		AccessWeight: 0.1,
		EmbedTimeout: time.Second,
	}
	dec := decay.New(config.DecayConfig{
		LambdaEpisodic:   0.12,
		LambdaSemantic:   0.04,
		LambdaProcedural: 0.02,
	})
	ret := retrieval.New(st, mock, dec, retrievalCfg, nil)
	cons := consolidation.New(st, distill.NewHeuristic(), mock, config.ConsolidationConfig{
		MinAccessCount: 3,
		MinImportance:  7.0,
		MinAge:         time.Hour,
		Window:         7 * 24 * time.Hour,
	}, nil)

	redactor := redact.MustNew(redact.DefaultConfig())

	return New(st, redactor, mock, ret, cons, retrievalCfg, nil), st
}

func TestWrite_RedactsPII(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	entry, err := engine.Write(ctx, aliceScope, WriteRequest{
		Content:    "reach me at user@example.com for details",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 5,
	})
	require.NoError(t, err)
	assert.NotContains(t, entry.Content, "user@example.com")
	assert.Contains(t, entry.Content, "[REDACTED")

	// The stored row carries the redacted content too.
	got, err := st.Get(ctx, aliceScope, entry.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Content, "user@example.com")
}

func TestWrite_PromotesImportantShortTerm(t *testing.T) {
	engine, _ := newTestEngine(t)

	entry, err := engine.Write(context.Background(), aliceScope, WriteRequest{
		Content:    "production database credentials rotate quarterly",
		Type:       memory.TypeSemantic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, memory.NamespaceLongTerm, entry.Namespace)
}

func TestWrite_LowImportanceStaysShortTerm(t *testing.T) {
	engine, _ := newTestEngine(t)

	entry, err := engine.Write(context.Background(), aliceScope, WriteRequest{
		Content:    "the user asked about the weather",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, memory.NamespaceShortTerm, entry.Namespace)
	require.NotNil(t, entry.ExpiresAt)
}

func TestWrite_EmbedsContent(t *testing.T) {
	engine, _ := newTestEngine(t)

	entry, err := engine.Write(context.Background(), aliceScope, WriteRequest{
		Content:    "the staging cluster lives in eu-west",
		Type:       memory.TypeSemantic,
		Namespace:  memory.NamespaceLongTerm,
		Importance: 5,
	})
	require.NoError(t, err)
	assert.Len(t, entry.Embedding, 32)
}

func TestWrite_EmbeddingFailureIsNonFatal(t *testing.T) {
	engine, _ := newTestEngine(t)

	mock := engine.embedder.(*embeddings.Mock)
	mock.Fail = true

	entry, err := engine.Write(context.Background(), aliceScope, WriteRequest{
		Content:    "written while embeddings are down",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceLongTerm,
		Importance: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, entry.Embedding)
}

func TestWrite_ExplicitTTLOverridesNamespaceDefault(t *testing.T) {
	engine, _ := newTestEngine(t)

	entry, err := engine.Write(context.Background(), aliceScope, WriteRequest{
		Content:    "scratch pad for this session only",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 4,
		TTLSeconds: 3600,
	})
	require.NoError(t, err)
	require.NotNil(t, entry.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *entry.ExpiresAt, 5*time.Second)
}

func TestWrite_NegativeTTLRejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Write(context.Background(), aliceScope, WriteRequest{
		Content:    "bad ttl",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 4,
		TTLSeconds: -1,
	})
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestWrite_ScopeRequired(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Write(context.Background(), memory.Scope{}, WriteRequest{
		Content: "no scope", Type: memory.TypeEpisodic,
		Namespace: memory.NamespaceShortTerm, Importance: 5,
	})
	assert.ErrorIs(t, err, memory.ErrScopeViolation)
}

func TestWriteRetrieveRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	written, err := engine.Write(ctx, aliceScope, WriteRequest{
		Content:    "the user prefers concise answers",
		Type:       memory.TypeSemantic,
		Namespace:  memory.NamespaceLongTerm,
		Importance: 6,
	})
	require.NoError(t, err)

	result, err := engine.Retrieve(ctx, aliceScope, retrieval.Query{Text: "the user prefers concise answers", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, result.Entries)
	assert.Equal(t, written.ID, result.Entries[0].Entry.ID)
}

func TestRetrieve_NoCrossTenantLeakage(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Write(ctx, aliceScope, WriteRequest{
		Content:    "tenant-a secret roadmap",
		Type:       memory.TypeSemantic,
		Namespace:  memory.NamespaceLongTerm,
		Importance: 5,
	})
	require.NoError(t, err)

	result, err := engine.Retrieve(ctx, bobScope, retrieval.Query{Text: "tenant-a secret roadmap", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
}

func TestGetAndDelete(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	written, err := engine.Write(ctx, aliceScope, WriteRequest{
		Content:    "temporary note",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 4,
	})
	require.NoError(t, err)

	got, err := engine.Get(ctx, aliceScope, written.ID)
	require.NoError(t, err)
	assert.Equal(t, written.ID, got.ID)

	require.NoError(t, engine.Delete(ctx, aliceScope, written.ID))

	got, err = engine.Get(ctx, aliceScope, written.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.StatusDeleted, got.Status)
}

func TestDelete_ForeignTenantRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	written, err := engine.Write(ctx, aliceScope, WriteRequest{
		Content:    "alice's memory",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 4,
	})
	require.NoError(t, err)

	err = engine.Delete(ctx, bobScope, written.ID)
	assert.ErrorIs(t, err, memory.ErrScopeViolation)
}

func TestConsolidate_Delegates(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	qualifying := &memory.Entry{
		Content:     "The deploy pipeline requires manual approval. Noted repeatedly.",
		Type:        memory.TypeEpisodic,
		Namespace:   memory.NamespaceLongTerm,
		Importance:  8,
		AccessCount: 5,
		CreatedAt:   time.Now().UTC().Add(-2 * time.Hour),
		Metadata: memory.Metadata{
			TenantID: aliceScope.TenantID,
			UserID:   aliceScope.UserID,
		},
	}
	require.NoError(t, st.Write(ctx, aliceScope, qualifying))

	result, err := engine.Consolidate(ctx, aliceScope, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Consolidated)
}

func TestStats_RequiresAdmin(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Stats(ctx, aliceScope)
	assert.ErrorIs(t, err, memory.ErrScopeViolation)

	_, werr := engine.Write(ctx, aliceScope, WriteRequest{
		Content:    "counted memory",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceLongTerm,
		Importance: 5,
	})
	require.NoError(t, werr)

	stats, err := engine.Stats(ctx, adminScope)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}
