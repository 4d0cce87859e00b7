// Package engine is the tenant-facing facade over the memory subsystems.
//
// Every operation requires a validated Scope; the engine is the single
// place where redaction, embedding, and namespace promotion happen on the
// write path, so no caller can bypass them.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/consolidation"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/redact"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// promotionThreshold is the importance at or above which a short-term
// write is stored long-term instead.
const promotionThreshold = 8.0

// Engine ties the store, redactor, embedder and the retrieval and
// consolidation engines behind scope enforcement.
type Engine struct {
	store         *store.Store
	redactor      redact.Redactor
	embedder      embeddings.Provider
	retrieval     *retrieval.Engine
	consolidation *consolidation.Engine
	logger        *logging.Logger
	embedTimeout  time.Duration
}

// New creates the engine facade.
func New(
	st *store.Store,
	redactor redact.Redactor,
	embedder embeddings.Provider,
	ret *retrieval.Engine,
	cons *consolidation.Engine,
	cfg config.RetrievalConfig,
	logger *logging.Logger,
) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if redactor == nil {
		redactor = redact.Noop{}
	}
	embedTimeout := cfg.EmbedTimeout
	if embedTimeout <= 0 {
		embedTimeout = 5 * time.Second
	}
	return &Engine{
		store:         st,
		redactor:      redactor,
		embedder:      embedder,
		retrieval:     ret,
		consolidation: cons,
		logger:        logger.Named("engine"),
		embedTimeout:  embedTimeout,
	}
}

// WriteRequest carries the caller-controlled fields of a new memory.
type WriteRequest struct {
	Content        string           `json:"content"`
	Type           memory.Type      `json:"memory_type"`
	Namespace      memory.Namespace `json:"namespace"`
	Importance     float64          `json:"importance"`
	ConversationID string           `json:"conversation_id,omitempty"`
	SessionID      string           `json:"session_id,omitempty"`
	Source         string           `json:"source,omitempty"`
	Tags           []string         `json:"tags,omitempty"`

	// TTLSeconds overrides the namespace's default retention when
	// positive. Zero keeps the namespace default.
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

// Write redacts, embeds and persists a new memory entry. High-importance
// short-term writes are promoted to the long-term namespace.
func (e *Engine) Write(ctx context.Context, scope memory.Scope, req WriteRequest) (*memory.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	ctx = logging.WithTenant(ctx, scope.TenantID, scope.UserID)

	if req.TTLSeconds < 0 {
		return nil, fmt.Errorf("%w: ttl_seconds cannot be negative", memory.ErrValidation)
	}

	redacted := e.redactor.Redact(req.Content)
	if redacted.HasFindings() {
		e.logger.Info(ctx, "redacted PII from memory content",
			zap.Int("findings", redacted.TotalFindings))
	}

	namespace := req.Namespace
	if namespace == memory.NamespaceShortTerm && memory.ClampImportance(req.Importance) >= promotionThreshold {
		namespace = memory.NamespaceLongTerm
	}

	entry := &memory.Entry{
		Content:    redacted.Redacted,
		Type:       req.Type,
		Namespace:  namespace,
		Importance: req.Importance,
		Metadata: memory.Metadata{
			TenantID:       scope.TenantID,
			UserID:         scope.UserID,
			ConversationID: req.ConversationID,
			SessionID:      req.SessionID,
			Source:         req.Source,
			Tags:           req.Tags,
		},
	}
	if req.TTLSeconds > 0 {
		expires := time.Now().UTC().Add(time.Duration(req.TTLSeconds) * time.Second)
		entry.ExpiresAt = &expires
	}

	// Embedding is best-effort: a write must not fail because the
	// embedding backend is down. Unembedded entries stay reachable
	// through lexical fallback.
	if e.embedder != nil {
		embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
		vector, err := e.embedder.EmbedQuery(embedCtx, entry.Content)
		cancel()
		if err != nil {
			e.logger.Warn(ctx, "embedding failed, writing without vector", zap.Error(err))
		} else {
			entry.Embedding = vector
		}
	}

	if err := e.store.Write(ctx, scope, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns a single entry within the scope.
func (e *Engine) Get(ctx context.Context, scope memory.Scope, id string) (*memory.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return e.store.Get(logging.WithTenant(ctx, scope.TenantID, scope.UserID), scope, id)
}

// Retrieve ranks the scope's memories against the query.
func (e *Engine) Retrieve(ctx context.Context, scope memory.Scope, q retrieval.Query) (*retrieval.Result, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return e.retrieval.Retrieve(logging.WithTenant(ctx, scope.TenantID, scope.UserID), scope, q)
}

// Delete soft-deletes an entry within the scope.
func (e *Engine) Delete(ctx context.Context, scope memory.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return e.store.Delete(logging.WithTenant(ctx, scope.TenantID, scope.UserID), scope, id)
}

// Consolidate runs a consolidation sweep over the scope's memories.
func (e *Engine) Consolidate(ctx context.Context, scope memory.Scope, limit int) (*consolidation.SweepResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return e.consolidation.Sweep(logging.WithTenant(ctx, scope.TenantID, scope.UserID), scope, limit)
}

// Stats returns aggregate tenant counts. Privileged: requires an admin
// scope, the aggregates span users.
func (e *Engine) Stats(ctx context.Context, scope memory.Scope) (*store.Stats, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !scope.IsAdmin() {
		return nil, fmt.Errorf("%w: stats require an admin scope", memory.ErrScopeViolation)
	}
	return e.store.TenantStats(logging.WithTenant(ctx, scope.TenantID, scope.UserID), scope)
}
