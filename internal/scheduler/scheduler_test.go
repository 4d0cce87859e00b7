package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/consolidation"
	"github.com/fyrsmithlabs/recalld/internal/distill"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()

	db, err := store.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	vectors, err := store.NewVectorIndex("", "", false)
	require.NoError(t, err)
	st := store.New(db, vectors, nil)

	cons := consolidation.New(st, distill.NewHeuristic(), embeddings.NewMock(16), config.ConsolidationConfig{
		MinAccessCount: 3,
		MinImportance:  7.0,
		MinAge:         time.Hour,
		Window:         7 * 24 * time.Hour,
	}, nil)

	sched, err := New(st, cons, config.SchedulerConfig{
		MaintenanceInterval:   time.Hour,
		ConsolidationInterval: time.Hour,
		TenantParallelism:     2,
		TenantBudget:          100,
	}, nil)
	require.NoError(t, err)
	return sched, st
}

func TestStartStop_Idempotent(t *testing.T) {
	sched, _ := newTestScheduler(t)

	require.NoError(t, sched.Start())
	assert.Error(t, sched.Start(), "second start must fail")

	sched.Stop()
	sched.Stop() // no-op

	// Restartable after stop.
	require.NoError(t, sched.Start())
	sched.Stop()
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, config.SchedulerConfig{}, nil)
	assert.Error(t, err)
}

func TestRunMaintenanceNow_ExpiresOverdueEntries(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()
	scope := memory.Scope{TenantID: "tenant-a", UserID: "alice"}

	past := time.Now().UTC().Add(-time.Minute)
	stale := &memory.Entry{
		Content:    "overdue entry",
		Type:       memory.TypeEpisodic,
		Namespace:  memory.NamespaceShortTerm,
		Importance: 5,
		ExpiresAt:  &past,
		Metadata:   memory.Metadata{TenantID: scope.TenantID, UserID: scope.UserID},
	}
	require.NoError(t, st.Write(ctx, scope, stale))

	sched.RunMaintenanceNow(ctx)

	got, err := st.Get(ctx, scope, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.StatusExpired, got.Status)
}

func TestRunConsolidationNow_SweepsAllTenants(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()

	write := func(scope memory.Scope, content string) *memory.Entry {
		e := &memory.Entry{
			Content:     content,
			Type:        memory.TypeEpisodic,
			Namespace:   memory.NamespaceLongTerm,
			Importance:  8,
			AccessCount: 5,
			CreatedAt:   time.Now().UTC().Add(-2 * time.Hour),
			Metadata:    memory.Metadata{TenantID: scope.TenantID, UserID: scope.UserID},
		}
		require.NoError(t, st.Write(ctx, scope, e))
		return e
	}

	aScope := memory.Scope{TenantID: "tenant-a", UserID: "alice"}
	bScope := memory.Scope{TenantID: "tenant-b", UserID: "bob"}
	a := write(aScope, "Tenant A learns something important.")
	b := write(bScope, "Tenant B learns something important.")

	sched.RunConsolidationNow(ctx)

	gotA, err := st.Get(ctx, aScope, a.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.StatusConsolidated, gotA.Status)

	gotB, err := st.Get(ctx, bScope, b.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.StatusConsolidated, gotB.Status)
}

func TestRunConsolidationNow_NoTenantsIsQuiet(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.RunConsolidationNow(context.Background())
}
