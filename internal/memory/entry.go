// Package memory defines the core types of the tiered memory engine: the
// Entry record, its closed type/namespace/status enumerations, the tenant
// Scope, and the engine-wide error taxonomy.
package memory

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Type classifies how a memory decays and consolidates.
type Type string

const (
	// TypeEpisodic is a short-lived, high-decay record of a specific event.
	TypeEpisodic Type = "episodic"

	// TypeSemantic is a long-lived, low-decay distilled fact.
	TypeSemantic Type = "semantic"

	// TypeProcedural is a long-lived record of a usage pattern or habit.
	TypeProcedural Type = "procedural"
)

// Valid reports whether t is one of the known memory types.
func (t Type) Valid() bool {
	switch t {
	case TypeEpisodic, TypeSemantic, TypeProcedural:
		return true
	}
	return false
}

// Namespace controls default TTL and eligibility for consolidation/expiry.
type Namespace string

const (
	NamespaceShortTerm  Namespace = "short_term"
	NamespaceLongTerm   Namespace = "long_term"
	NamespacePersistent Namespace = "persistent"
	NamespaceEphemeral  Namespace = "ephemeral"
)

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceShortTerm, NamespaceLongTerm, NamespacePersistent, NamespaceEphemeral:
		return true
	}
	return false
}

// DefaultTTL returns the namespace's default hard-expiry horizon.
// Zero means the namespace never expires.
func (n Namespace) DefaultTTL() time.Duration {
	switch n {
	case NamespaceEphemeral:
		return time.Hour
	case NamespaceShortTerm:
		return 24 * time.Hour
	case NamespaceLongTerm:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Status is the lifecycle state of an entry. Soft-delete discipline: entries
// leave the active set by status transition, not by row deletion.
type Status string

const (
	StatusActive       Status = "active"
	StatusConsolidated Status = "consolidated"
	StatusExpired      Status = "expired"
	StatusDeleted      Status = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusConsolidated, StatusExpired, StatusDeleted:
		return true
	}
	return false
}

// Importance and confidence bounds. Callers may supply anything; reads are
// clamped to these ranges.
const (
	MinImportance = 1.0
	MaxImportance = 10.0
)

// Metadata carries ownership and provenance for an entry.
type Metadata struct {
	// TenantID is set on creation and never mutated afterwards.
	TenantID string `json:"tenant_id"`

	// UserID is the user the entry was written on behalf of.
	UserID string `json:"user_id"`

	// ConversationID groups entries from a single conversation.
	ConversationID string `json:"conversation_id,omitempty"`

	// SessionID groups entries from a single session.
	SessionID string `json:"session_id,omitempty"`

	// Source records where the fragment came from (chat, tool, import).
	Source string `json:"source,omitempty"`

	// Tags are labels for categorization.
	Tags []string `json:"tags,omitempty"`

	// DerivedFrom points to the originating entry for distilled entries.
	// Lookup-only lineage link; never used for cascading mutation.
	DerivedFrom string `json:"derived_from,omitempty"`
}

// Entry is the atomic unit of the memory engine.
type Entry struct {
	// ID is the opaque unique identifier, immutable once assigned.
	ID string `json:"id"`

	// Content is the redacted text fragment.
	Content string `json:"content"`

	// Embedding is the fixed-length vector, present once computed.
	Embedding []float32 `json:"embedding,omitempty"`

	// Type is the tri-partite memory classification.
	Type Type `json:"memory_type"`

	// Namespace is the retention tier.
	Namespace Namespace `json:"namespace"`

	// Importance is a caller-supplied or inferred score in [1,10].
	Importance float64 `json:"importance"`

	// Confidence defaults to 1.0 and is lowered for distilled entries.
	Confidence float64 `json:"confidence"`

	// AccessCount is incremented on every successful retrieval hit.
	AccessCount int64 `json:"access_count"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`

	// ExpiresAt is the optional hard expiry, independent of decay.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	Metadata Metadata `json:"metadata"`

	// Version increases monotonically; optimistic-concurrency guard.
	Version int64 `json:"version"`
}

// ClampImportance clamps v to [MinImportance, MaxImportance].
func ClampImportance(v float64) float64 {
	if math.IsNaN(v) {
		return MinImportance
	}
	return math.Min(MaxImportance, math.Max(MinImportance, v))
}

// ClampConfidence clamps v to [0,1].
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

// EffectiveImportance returns the read-clamped importance, regardless of
// what was persisted.
func (e *Entry) EffectiveImportance() float64 {
	return ClampImportance(e.Importance)
}

// EffectiveConfidence returns the read-clamped confidence.
func (e *Entry) EffectiveConfidence() float64 {
	return ClampConfidence(e.Confidence)
}

// Expired reports whether the entry's hard expiry has passed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// AgeHours returns the entry age at now, in hours, never negative.
func (e *Entry) AgeHours(now time.Time) float64 {
	h := now.Sub(e.CreatedAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Normalize assigns defaults for a new entry: ID, version, timestamps,
// confidence, and namespace TTL. Called by the store on first write.
func (e *Entry) Normalize(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Version == 0 {
		e.Version = 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastAccessed.IsZero() {
		e.LastAccessed = e.CreatedAt
	}
	if e.Confidence == 0 {
		e.Confidence = 1.0
	}
	if e.Status == "" {
		e.Status = StatusActive
	}
	if e.ExpiresAt == nil {
		if ttl := e.Namespace.DefaultTTL(); ttl > 0 {
			t := e.CreatedAt.Add(ttl)
			e.ExpiresAt = &t
		}
	}
}

// Validate checks the fields a write must carry. Importance and confidence
// are intentionally not range-checked here: out-of-range values are accepted
// and clamped on read.
func (e *Entry) Validate() error {
	if e.Content == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrValidation)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrValidation, e.Type)
	}
	if !e.Namespace.Valid() {
		return fmt.Errorf("%w: unknown namespace %q", ErrValidation, e.Namespace)
	}
	if e.Status != "" && !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, e.Status)
	}
	if e.Metadata.TenantID == "" {
		return fmt.Errorf("%w: tenant ID is required", ErrValidation)
	}
	if e.Metadata.UserID == "" {
		return fmt.Errorf("%w: user ID is required", ErrValidation)
	}
	return nil
}
