// Package consolidation promotes frequently-touched episodic memories into
// durable semantic facts.
//
// A sweep snapshots qualifying candidates, distills each one into a fact,
// writes the fact as a new persistent semantic entry linked through
// DerivedFrom, and retires the source under a status compare-and-set.
// Losing that race means another sweep got there first; the loser logs
// and moves on.
package consolidation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/distill"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// SweepResult summarizes one consolidation pass.
type SweepResult struct {
	// Candidates is how many entries qualified for consolidation.
	Candidates int

	// Consolidated is how many were successfully promoted.
	Consolidated int

	// Skipped counts candidates passed over: distillation failures and
	// lost status races.
	Skipped int
}

// Engine runs consolidation sweeps.
type Engine struct {
	store     *store.Store
	distiller distill.Distiller
	embedder  embeddings.Provider
	logger    *logging.Logger
	cfg       config.ConsolidationConfig
}

// New creates a consolidation engine.
func New(st *store.Store, d distill.Distiller, embedder embeddings.Provider, cfg config.ConsolidationConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.CandidateTimeout <= 0 {
		cfg.CandidateTimeout = 30 * time.Second
	}
	return &Engine{
		store:     st,
		distiller: d,
		embedder:  embedder,
		logger:    logger.Named("consolidation"),
		cfg:       cfg,
	}
}

// Candidates returns the entries qualifying for consolidation within the
// scope: episodic, active, accessed and important enough, and inside the
// age window.
func (e *Engine) Candidates(ctx context.Context, scope memory.Scope, limit int) ([]*memory.Entry, error) {
	now := timeNow().UTC()
	return e.store.QueryCandidates(ctx, scope, store.CandidateFilter{
		Types:          []memory.Type{memory.TypeEpisodic},
		Statuses:       []memory.Status{memory.StatusActive},
		MinAccessCount: e.cfg.MinAccessCount,
		MinImportance:  e.cfg.MinImportance,
		CreatedAfter:   now.Add(-e.cfg.Window),
		CreatedBefore:  now.Add(-e.cfg.MinAge),
		AllUsers:       scope.IsAdmin(),
		Limit:          limit,
	})
}

// Sweep consolidates qualifying entries within the scope. Individual
// failures skip the candidate; only snapshot errors fail the sweep.
func (e *Engine) Sweep(ctx context.Context, scope memory.Scope, limit int) (*SweepResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	candidates, err := e.Candidates(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshotting candidates: %w", err)
	}

	result := &SweepResult{Candidates: len(candidates)}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ok, err := e.consolidateOne(ctx, scope, candidate)
		switch {
		case err != nil:
			result.Skipped++
			e.logger.Warn(ctx, "consolidation skipped candidate",
				zap.String("memory_id", candidate.ID), zap.Error(err))
		case !ok:
			result.Skipped++
			e.logger.Debug(ctx, "consolidation lost status race",
				zap.String("memory_id", candidate.ID))
		default:
			result.Consolidated++
		}
	}

	recordSweep(result)
	if result.Candidates > 0 {
		e.logger.Info(ctx, "consolidation sweep finished",
			zap.Int("candidates", result.Candidates),
			zap.Int("consolidated", result.Consolidated),
			zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

// consolidateOne distills a single candidate and retires it. Returns false
// without error when the candidate was no longer active (lost race).
func (e *Engine) consolidateOne(ctx context.Context, scope memory.Scope, candidate *memory.Entry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CandidateTimeout)
	defer cancel()

	distillation, err := e.distiller.Distill(ctx, candidate.Content)
	if err != nil {
		return false, fmt.Errorf("%w: distillation: %v", memory.ErrDependency, err)
	}

	fact := &memory.Entry{
		Content:    distillation.Fact,
		Type:       memory.TypeSemantic,
		Namespace:  memory.NamespacePersistent,
		Importance: candidate.EffectiveImportance(),
		Confidence: distillation.Confidence,
		Metadata: memory.Metadata{
			TenantID:    candidate.Metadata.TenantID,
			UserID:      candidate.Metadata.UserID,
			Source:      "consolidation",
			DerivedFrom: candidate.ID,
		},
	}

	if e.embedder != nil {
		if vector, embErr := e.embedder.EmbedQuery(ctx, fact.Content); embErr == nil {
			fact.Embedding = vector
		} else {
			e.logger.Warn(ctx, "embedding distilled fact failed",
				zap.String("source_id", candidate.ID), zap.Error(embErr))
		}
	}

	factScope := memory.Scope{
		TenantID: candidate.Metadata.TenantID,
		UserID:   candidate.Metadata.UserID,
		Role:     scope.Role,
	}

	// Persist the fact before retiring the source. A racing sweep can leave
	// a duplicate fact behind, which is recoverable; a retired source with
	// no fact is a lost promotion, since sweeps only revisit active entries.
	if err := e.store.Write(ctx, factScope, fact); err != nil {
		return false, fmt.Errorf("writing distilled fact: %w", err)
	}

	ok, err := e.store.TransitionStatus(ctx, factScope, candidate.ID,
		memory.StatusActive, memory.StatusConsolidated)
	if err != nil {
		return false, fmt.Errorf("retiring source entry: %w", err)
	}
	if !ok {
		return false, nil
	}

	e.logger.Info(ctx, "memory consolidated",
		zap.String("source_id", candidate.ID),
		zap.String("fact_id", fact.ID))
	return true, nil
}
