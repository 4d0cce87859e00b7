// Package store persists memory entries across two tiers: a SQLite
// relational store holding the authoritative rows and a chromem vector
// index for similarity search. The relational tier owns all lifecycle
// state; the vector tier only ever indexes active entries and is
// reconciled on every mutation.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB connection to the recalld SQLite database.
type DB struct {
	*sql.DB
	Path string
}

// OpenDB opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations. Use ":memory:" for tests.
func OpenDB(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db := &DB{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (db *DB) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '[]',
	derived_from    TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	memory_type     TEXT NOT NULL,
	namespace       TEXT NOT NULL,
	importance      REAL NOT NULL,
	confidence      REAL NOT NULL,
	access_count    INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL,
	last_accessed   INTEGER NOT NULL,
	expires_at      INTEGER,
	status          TEXT NOT NULL,
	version         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_tenant_user_status
	ON entries (tenant_id, user_id, status);
CREATE INDEX IF NOT EXISTS idx_entries_tenant_status_type
	ON entries (tenant_id, status, memory_type);
CREATE INDEX IF NOT EXISTS idx_entries_expires_at
	ON entries (expires_at) WHERE expires_at IS NOT NULL;
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
