// Package retrieval ranks memory entries against a query.
//
// The relevance score combines four signals: semantic similarity S,
// importance I, time decay D, and an access-frequency bonus A:
//
//	R = (S × I × D) + A
//
// S is cosine similarity clamped to [0,1] (or lexical overlap in degraded
// mode), I is the read-clamped importance scaled to [0,1], D is the
// exponential decay factor, and A is a log-normalized access bonus scaled
// by a configurable weight.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/decay"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Query describes one retrieval request.
type Query struct {
	// Text is the retrieval cue. Must be non-empty.
	Text string

	// Limit is the maximum number of results. Values <= 0 yield an empty
	// result; callers that want a default apply it before calling.
	Limit int

	// Namespaces and Types narrow the candidate set; empty means all.
	Namespaces []memory.Namespace
	Types      []memory.Type

	// IncludeConsolidated widens candidates to consolidated entries.
	IncludeConsolidated bool
}

// ScoredEntry is one ranked result with its score breakdown.
type ScoredEntry struct {
	Entry *memory.Entry `json:"entry"`

	// Score is the combined relevance R.
	Score float64 `json:"score"`

	// Similarity, Decay and AccessBonus are the S, D and A components.
	Similarity  float64 `json:"similarity"`
	Decay       float64 `json:"decay"`
	AccessBonus float64 `json:"access_bonus"`
}

// Result is a ranked retrieval outcome.
type Result struct {
	Entries []ScoredEntry `json:"entries"`

	// Degraded is true when the query embedding failed and ranking fell
	// back to lexical overlap.
	Degraded bool `json:"degraded"`
}

// Engine ranks stored entries against queries.
type Engine struct {
	store    *store.Store
	embedder embeddings.Provider
	decay    *decay.Engine
	logger   *logging.Logger
	cfg      config.RetrievalConfig
}

// New creates a retrieval engine.
func New(st *store.Store, embedder embeddings.Provider, dec *decay.Engine, cfg config.RetrievalConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 5 * time.Second
	}
	return &Engine{
		store:    st,
		embedder: embedder,
		decay:    dec,
		logger:   logger.Named("retrieval"),
		cfg:      cfg,
	}
}

// Retrieve returns the top entries ranked against the query. Access stats
// for returned entries are updated asynchronously; a stats failure never
// fails the retrieval.
func (e *Engine) Retrieve(ctx context.Context, scope memory.Scope, q Query) (*Result, error) {
	start := timeNow()

	result, err := e.retrieve(ctx, scope, q)
	recordRetrieval(time.Since(start), err, result != nil && result.Degraded)
	return result, err
}

func (e *Engine) retrieve(ctx context.Context, scope memory.Scope, q Query) (*Result, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: query text cannot be empty", memory.ErrValidation)
	}
	if q.Limit <= 0 {
		return &Result{Entries: []ScoredEntry{}}, nil
	}
	limit := q.Limit

	statuses := []memory.Status{memory.StatusActive}
	if q.IncludeConsolidated {
		statuses = append(statuses, memory.StatusConsolidated)
	}
	candidates, err := e.store.QueryCandidates(ctx, scope, store.CandidateFilter{
		Namespaces: q.Namespaces,
		Types:      q.Types,
		Statuses:   statuses,
	})
	if err != nil {
		return nil, err
	}

	now := timeNow().UTC()

	// Lazy expiry: entries past their hard TTL are invisible even before
	// the sweep transitions them.
	live := candidates[:0]
	for _, c := range candidates {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return &Result{Entries: []ScoredEntry{}}, nil
	}

	similarities, degraded := e.similarities(ctx, scope, q.Text, live)

	scored := e.score(live, similarities, now)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	e.touchAsync(ctx, scope, scored)

	return &Result{Entries: scored, Degraded: degraded}, nil
}

// similarities maps candidate id to the S component. On embedding failure
// it falls back to lexical token overlap and reports degraded mode.
func (e *Engine) similarities(ctx context.Context, scope memory.Scope, text string, candidates []*memory.Entry) (map[string]float64, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	vector, err := e.embedder.EmbedQuery(embedCtx, text)
	if err == nil {
		// Rank the scope's whole index, then keep only the candidates:
		// with namespace/type filters in play, a top-k query would spend
		// its hits on out-of-filter entries and starve real candidates.
		hits, searchErr := e.store.SearchSimilar(ctx, scope, vector, 0)
		if searchErr == nil {
			wanted := make(map[string]struct{}, len(candidates))
			for _, c := range candidates {
				wanted[c.ID] = struct{}{}
			}
			sims := make(map[string]float64, len(candidates))
			for _, h := range hits {
				if _, ok := wanted[h.ID]; ok {
					sims[h.ID] = clamp01(float64(h.Score))
				}
			}
			return sims, false
		}
		err = searchErr
	}

	e.logger.Warn(ctx, "similarity search degraded to lexical overlap", zap.Error(err))

	queryTokens := tokenize(text)
	sims := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		sims[c.ID] = lexicalOverlap(queryTokens, tokenize(c.Content))
	}
	return sims, true
}

// score computes R for every candidate and sorts deterministically.
func (e *Engine) score(candidates []*memory.Entry, similarities map[string]float64, now time.Time) []ScoredEntry {
	var maxAccess int64
	for _, c := range candidates {
		if c.AccessCount > maxAccess {
			maxAccess = c.AccessCount
		}
	}

	scored := make([]ScoredEntry, 0, len(candidates))
	for _, c := range candidates {
		s := similarities[c.ID]
		i := c.EffectiveImportance() / memory.MaxImportance
		d := e.decay.ScoreEntry(c, now)

		// The access bonus only discriminates between candidates; with a
		// single candidate or no access history it is zero.
		var a float64
		if maxAccess > 0 && len(candidates) > 1 {
			a = e.cfg.AccessWeight * math.Log1p(float64(c.AccessCount)) / math.Log1p(float64(maxAccess))
		}

		scored = append(scored, ScoredEntry{
			Entry:       c,
			Score:       s*i*d + a,
			Similarity:  s,
			Decay:       d,
			AccessBonus: a,
		})
	}

	sort.Slice(scored, func(x, y int) bool {
		a, b := scored[x], scored[y]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.LastAccessed.Equal(b.Entry.LastAccessed) {
			return a.Entry.LastAccessed.After(b.Entry.LastAccessed)
		}
		if a.Entry.EffectiveImportance() != b.Entry.EffectiveImportance() {
			return a.Entry.EffectiveImportance() > b.Entry.EffectiveImportance()
		}
		return a.Entry.ID < b.Entry.ID
	})
	return scored
}

// touchAsync updates access stats for the returned entries without holding
// up or failing the retrieval.
func (e *Engine) touchAsync(ctx context.Context, scope memory.Scope, scored []ScoredEntry) {
	if len(scored) == 0 {
		return
	}
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.Entry.ID
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		statsCtx, cancel := context.WithTimeout(detached, 10*time.Second)
		defer cancel()
		if err := e.store.UpdateAccessStats(statsCtx, scope, ids); err != nil {
			e.logger.Warn(statsCtx, "access stats update failed", zap.Error(err))
		}
	}()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// lexicalOverlap is the Jaccard index of two token sets.
func lexicalOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
