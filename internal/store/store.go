package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

var tracer = otel.Tracer("recalld.store")

// Store is the dual-tier memory store: authoritative rows in SQLite,
// similarity search through the chromem vector index.
type Store struct {
	db      *DB
	vectors *VectorIndex
	logger  *logging.Logger
}

// New creates a Store over an opened database and vector index.
// vectors may be nil; similarity search then returns no hits and
// retrieval degrades to lexical matching.
func New(db *DB, vectors *VectorIndex, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{db: db, vectors: vectors, logger: logger.Named("store")}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const entryColumns = `id, tenant_id, user_id, conversation_id, session_id, source,
	tags, derived_from, content, memory_type, namespace, importance, confidence,
	access_count, created_at, last_accessed, expires_at, status, version`

// Write persists an entry. Entries without an ID are created: defaults are
// assigned and the version starts at 1. Entries with an ID are updated under
// optimistic concurrency: the stored version must match the entry's version
// or ErrConflict is returned. The tenant of an existing entry never changes.
func (s *Store) Write(ctx context.Context, scope memory.Scope, e *memory.Entry) error {
	ctx, span := tracer.Start(ctx, "Store.Write")
	defer span.End()

	err := s.write(ctx, scope, e)
	recordOp("write", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("memory_id", e.ID))
	return nil
}

func (s *Store) write(ctx context.Context, scope memory.Scope, e *memory.Entry) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: entry is nil", memory.ErrValidation)
	}

	// Ownership is taken from the scope; a caller-supplied mismatch is a
	// violation, not an overwrite.
	if e.Metadata.TenantID == "" {
		e.Metadata.TenantID = scope.TenantID
	} else if e.Metadata.TenantID != scope.TenantID {
		return fmt.Errorf("%w: entry tenant %q does not match scope tenant %q",
			memory.ErrScopeViolation, e.Metadata.TenantID, scope.TenantID)
	}
	if e.Metadata.UserID == "" {
		e.Metadata.UserID = scope.UserID
	}

	if e.ID == "" {
		return s.insert(ctx, e)
	}
	return s.update(ctx, scope, e)
}

func (s *Store) insert(ctx context.Context, e *memory.Entry) error {
	now := timeNow().UTC()
	e.Normalize(now)
	if err := e.Validate(); err != nil {
		return err
	}

	tags, err := json.Marshal(e.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Metadata.TenantID, e.Metadata.UserID, e.Metadata.ConversationID,
		e.Metadata.SessionID, e.Metadata.Source, string(tags), e.Metadata.DerivedFrom,
		e.Content, string(e.Type), string(e.Namespace), e.Importance, e.Confidence,
		e.AccessCount, e.CreatedAt.UnixNano(), e.LastAccessed.UnixNano(),
		nullableTime(e.ExpiresAt), string(e.Status), e.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: entry %s already exists", memory.ErrConflict, e.ID)
		}
		return fmt.Errorf("inserting entry: %w", err)
	}

	s.indexVector(ctx, e)

	s.logger.Debug(ctx, "entry written",
		zap.String("memory_id", e.ID),
		zap.String("namespace", string(e.Namespace)),
		zap.String("memory_type", string(e.Type)))
	return nil
}

func (s *Store) update(ctx context.Context, scope memory.Scope, e *memory.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Status == "" {
		return fmt.Errorf("%w: status is required on update", memory.ErrValidation)
	}

	tags, err := json.Marshal(e.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			content = ?, memory_type = ?, namespace = ?, importance = ?,
			confidence = ?, tags = ?, source = ?, expires_at = ?, status = ?,
			version = version + 1
		WHERE id = ? AND tenant_id = ? AND version = ?`,
		e.Content, string(e.Type), string(e.Namespace), e.Importance,
		e.Confidence, string(tags), e.Metadata.Source,
		nullableTime(e.ExpiresAt), string(e.Status),
		e.ID, scope.TenantID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("updating entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return s.classifyMiss(ctx, scope, e.ID, memory.ErrConflict)
	}

	e.Version++
	if e.Status == memory.StatusActive {
		s.indexVector(ctx, e)
	} else {
		s.removeVectors(ctx, e.ID)
	}
	return nil
}

// classifyMiss distinguishes why a guarded UPDATE matched nothing: the row
// is gone, belongs to another tenant, or lost a concurrency race.
func (s *Store) classifyMiss(ctx context.Context, scope memory.Scope, id string, raceErr error) error {
	var tenantID string
	err := s.db.QueryRowContext(ctx, `SELECT tenant_id FROM entries WHERE id = ?`, id).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: entry %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("classifying update miss: %w", err)
	}
	if tenantID != scope.TenantID {
		return fmt.Errorf("%w: entry %s belongs to another tenant", memory.ErrScopeViolation, id)
	}
	return fmt.Errorf("%w: entry %s", raceErr, id)
}

// indexVector mirrors the entry into the vector index. Index maintenance is
// best-effort: the row is authoritative, a failed index write is logged and
// the entry stays retrievable through lexical fallback.
func (s *Store) indexVector(ctx context.Context, e *memory.Entry) {
	if s.vectors == nil || len(e.Embedding) == 0 || e.Status != memory.StatusActive {
		return
	}
	if err := s.vectors.Add(ctx, e, e.Embedding); err != nil {
		s.logger.Warn(ctx, "vector index write failed",
			zap.String("memory_id", e.ID), zap.Error(err))
	}
}

// removeVectors drops ids from the vector index, best-effort.
func (s *Store) removeVectors(ctx context.Context, ids ...string) {
	if s.vectors == nil {
		return
	}
	if err := s.vectors.Remove(ctx, ids...); err != nil {
		s.logger.Warn(ctx, "vector index delete failed",
			zap.Int("count", len(ids)), zap.Error(err))
	}
}

// Get returns the entry with the given id. Returns ErrNotFound if no such
// entry exists and ErrScopeViolation if it belongs to another tenant.
func (s *Store) Get(ctx context.Context, scope memory.Scope, id string) (*memory.Entry, error) {
	ctx, span := tracer.Start(ctx, "Store.Get")
	defer span.End()

	e, err := s.get(ctx, scope, id)
	recordOp("get", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return e, nil
}

func (s *Store) get(ctx context.Context, scope memory.Scope, id string) (*memory.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", memory.ErrValidation)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !scope.Owns(e) {
		return nil, fmt.Errorf("%w: entry %s belongs to another tenant", memory.ErrScopeViolation, id)
	}
	return e, nil
}

// CandidateFilter narrows a candidate snapshot.
type CandidateFilter struct {
	// Namespaces restricts to the given namespaces; empty means all.
	Namespaces []memory.Namespace

	// Types restricts to the given memory types; empty means all.
	Types []memory.Type

	// Statuses restricts lifecycle states; empty means active only.
	Statuses []memory.Status

	// CreatedAfter/CreatedBefore bound the creation time when non-zero.
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// MinAccessCount and MinImportance set inclusive floors when positive.
	MinAccessCount int64
	MinImportance  float64

	// AllUsers widens the snapshot from the scope's user to the whole
	// tenant. Requires an admin scope.
	AllUsers bool

	// Limit caps the snapshot size; 0 applies the default of 1000.
	Limit int
}

const defaultCandidateLimit = 1000

// QueryCandidates returns a finite snapshot of entries matching the filter
// within the scope's tenant (and user, unless AllUsers).
func (s *Store) QueryCandidates(ctx context.Context, scope memory.Scope, filter CandidateFilter) ([]*memory.Entry, error) {
	ctx, span := tracer.Start(ctx, "Store.QueryCandidates")
	defer span.End()

	entries, err := s.queryCandidates(ctx, scope, filter)
	recordOp("query_candidates", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidate_count", len(entries)))
	return entries, nil
}

func (s *Store) queryCandidates(ctx context.Context, scope memory.Scope, filter CandidateFilter) ([]*memory.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if filter.AllUsers && !scope.IsAdmin() {
		return nil, fmt.Errorf("%w: tenant-wide queries require an admin scope", memory.ErrScopeViolation)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + entryColumns + ` FROM entries WHERE tenant_id = ?`)
	args := []interface{}{scope.TenantID}

	if !filter.AllUsers {
		sb.WriteString(` AND user_id = ?`)
		args = append(args, scope.UserID)
	}

	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []memory.Status{memory.StatusActive}
	}
	sb.WriteString(` AND status IN (` + placeholders(len(statuses)) + `)`)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	if len(filter.Namespaces) > 0 {
		sb.WriteString(` AND namespace IN (` + placeholders(len(filter.Namespaces)) + `)`)
		for _, ns := range filter.Namespaces {
			args = append(args, string(ns))
		}
	}
	if len(filter.Types) > 0 {
		sb.WriteString(` AND memory_type IN (` + placeholders(len(filter.Types)) + `)`)
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if !filter.CreatedAfter.IsZero() {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, filter.CreatedAfter.UnixNano())
	}
	if !filter.CreatedBefore.IsZero() {
		sb.WriteString(` AND created_at <= ?`)
		args = append(args, filter.CreatedBefore.UnixNano())
	}
	if filter.MinAccessCount > 0 {
		sb.WriteString(` AND access_count >= ?`)
		args = append(args, filter.MinAccessCount)
	}
	if filter.MinImportance > 0 {
		sb.WriteString(` AND importance >= ?`)
		args = append(args, filter.MinImportance)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	sb.WriteString(` ORDER BY created_at DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var entries []*memory.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateAccessStats increments access counts and refreshes last_accessed for
// the given ids in a single statement. Missing ids are ignored.
func (s *Store) UpdateAccessStats(ctx context.Context, scope memory.Scope, ids []string) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateAccessStats")
	defer span.End()

	err := s.updateAccessStats(ctx, scope, ids)
	recordOp("update_access_stats", err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *Store) updateAccessStats(ctx context.Context, scope memory.Scope, ids []string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	args := []interface{}{timeNow().UTC().UnixNano(), scope.TenantID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE entries SET access_count = access_count + 1, last_accessed = ?
		WHERE tenant_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("updating access stats: %w", err)
	}
	return nil
}

// TransitionStatus moves an entry from one lifecycle state to another under
// a compare-and-set on the current status. Returns false, without error,
// when the entry was not in the expected state (a lost race). Entries
// leaving the active state are dropped from the vector index.
func (s *Store) TransitionStatus(ctx context.Context, scope memory.Scope, id string, from, to memory.Status) (bool, error) {
	ctx, span := tracer.Start(ctx, "Store.TransitionStatus")
	defer span.End()

	ok, err := s.transitionStatus(ctx, scope, id, from, to)
	recordOp("transition_status", err)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("transitioned", ok))
	return ok, err
}

func (s *Store) transitionStatus(ctx context.Context, scope memory.Scope, id string, from, to memory.Status) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}
	if !from.Valid() || !to.Valid() {
		return false, fmt.Errorf("%w: invalid status transition %q -> %q", memory.ErrValidation, from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET status = ?, version = version + 1
		WHERE id = ? AND tenant_id = ? AND status = ?`,
		string(to), id, scope.TenantID, string(from))
	if err != nil {
		return false, fmt.Errorf("transitioning status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if to != memory.StatusActive {
		s.removeVectors(ctx, id)
	}
	return true, nil
}

// Delete soft-deletes an entry. The row is kept for lineage; only the
// status changes and the vector is dropped.
func (s *Store) Delete(ctx context.Context, scope memory.Scope, id string) error {
	ctx, span := tracer.Start(ctx, "Store.Delete")
	defer span.End()

	err := s.delete(ctx, scope, id)
	recordOp("delete", err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *Store) delete(ctx context.Context, scope memory.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET status = ?, version = version + 1
		WHERE id = ? AND tenant_id = ? AND status != ?`,
		string(memory.StatusDeleted), id, scope.TenantID, string(memory.StatusDeleted))
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// Already deleted counts as success; missing or foreign rows do not.
		var tenantID string
		err := s.db.QueryRowContext(ctx, `SELECT tenant_id FROM entries WHERE id = ?`, id).Scan(&tenantID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: entry %s", memory.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("classifying delete miss: %w", err)
		}
		if tenantID != scope.TenantID {
			return fmt.Errorf("%w: entry %s belongs to another tenant", memory.ErrScopeViolation, id)
		}
		return nil
	}

	s.removeVectors(ctx, id)
	s.logger.Info(ctx, "entry deleted", zap.String("memory_id", id))
	return nil
}

// ExpireSweep transitions active entries whose hard expiry has passed to
// the expired status. Returns the number of entries expired. System-level:
// runs across all tenants, callers are internal jobs only.
func (s *Store) ExpireSweep(ctx context.Context, limit int) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.ExpireSweep")
	defer span.End()

	n, err := s.expireSweep(ctx, limit)
	recordOp("expire_sweep", err)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("expired_count", n))
	return n, nil
}

func (s *Store) expireSweep(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	now := timeNow().UTC().UnixNano()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM entries
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
		LIMIT ?`, string(memory.StatusActive), now, limit)
	if err != nil {
		return 0, fmt.Errorf("selecting expired entries: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	args := []interface{}{string(memory.StatusExpired), string(memory.StatusActive)}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET status = ?, version = version + 1
		WHERE status = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("expiring entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	s.removeVectors(ctx, ids...)
	if affected > 0 {
		s.logger.Info(ctx, "expired entries swept", zap.Int64("count", affected))
	}
	return int(affected), nil
}

// SearchSimilar returns vector similarity hits for the query embedding
// within the scope. k <= 0 ranks every indexed entry in the scope. A nil
// vector index yields no hits.
func (s *Store) SearchSimilar(ctx context.Context, scope memory.Scope, embedding []float32, k int) ([]Similarity, error) {
	ctx, span := tracer.Start(ctx, "Store.SearchSimilar")
	defer span.End()

	if err := scope.Validate(); err != nil {
		recordOp("search_similar", err)
		span.RecordError(err)
		return nil, err
	}
	if s.vectors == nil {
		recordOp("search_similar", nil)
		return nil, nil
	}

	hits, err := s.vectors.Query(ctx, scope, embedding, k)
	recordOp("search_similar", err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", memory.ErrDependency, err)
	}
	span.SetAttributes(attribute.Int("hit_count", len(hits)))
	return hits, nil
}

// Tenants returns the distinct tenants holding active entries, for
// background sweeps.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM entries WHERE status = ?`,
		string(memory.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Stats aggregates entry counts for a tenant.
type Stats struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	ByType      map[string]int64 `json:"by_type"`
	ByNamespace map[string]int64 `json:"by_namespace"`
}

// TenantStats returns aggregate counts for the scope's tenant.
func (s *Store) TenantStats(ctx context.Context, scope memory.Scope) (*Stats, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus:    make(map[string]int64),
		ByType:      make(map[string]int64),
		ByNamespace: make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, memory_type, namespace, COUNT(*)
		FROM entries WHERE tenant_id = ?
		GROUP BY status, memory_type, namespace`, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, typ, ns string
		var count int64
		if err := rows.Scan(&status, &typ, &ns, &count); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[typ] += count
		stats.ByNamespace[ns] += count
	}
	return stats, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*memory.Entry, error) {
	var (
		e         memory.Entry
		tags      string
		createdAt int64
		accessed  int64
		expiresAt sql.NullInt64
		typ       string
		ns        string
		status    string
	)
	err := row.Scan(
		&e.ID, &e.Metadata.TenantID, &e.Metadata.UserID, &e.Metadata.ConversationID,
		&e.Metadata.SessionID, &e.Metadata.Source, &tags, &e.Metadata.DerivedFrom,
		&e.Content, &typ, &ns, &e.Importance, &e.Confidence,
		&e.AccessCount, &createdAt, &accessed, &expiresAt, &status, &e.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	e.Type = memory.Type(typ)
	e.Namespace = memory.Namespace(ns)
	e.Status = memory.Status(status)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.LastAccessed = time.Unix(0, accessed).UTC()
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		e.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(tags), &e.Metadata.Tags); err != nil {
		return nil, fmt.Errorf("unmarshaling tags: %w", err)
	}
	return &e, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
