// Package sqlitestore provides SQLite-backed store implementations for
// deployments that want SQL queryability over the queue and audit trail.
// Connections are opened through otelsql so every query is traced.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
	id               TEXT PRIMARY KEY,
	content_type     TEXT NOT NULL,
	content_id       TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	flagged_by       TEXT,
	flag_reason      TEXT NOT NULL,
	status           TEXT NOT NULL,
	priority         INTEGER NOT NULL,
	risk_score       REAL NOT NULL,
	moderator_id     TEXT,
	moderator_notes  TEXT,
	auto_flagged     INTEGER NOT NULL DEFAULT 0,
	flagging_details TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status);
CREATE INDEX IF NOT EXISTS idx_queue_items_review ON queue_items(priority DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	actor_id      TEXT,
	action_type   TEXT NOT NULL,
	target_type   TEXT NOT NULL,
	target_id     TEXT,
	details       TEXT,
	success       INTEGER,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_id);
`

// Store wraps a SQLite database and provides access to specialized stores.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the
// schema. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "moderation.sqlite"
	}

	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite allows one writer; a single connection avoids
	// SQLITE_BUSY under concurrent transitions.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// QueueStore returns a moderation queue store backed by this database.
func (s *Store) QueueStore() *QueueStore {
	return &QueueStore{db: s.db}
}

// AuditStore returns an audit log store backed by this database.
func (s *Store) AuditStore() *AuditStore {
	return &AuditStore{db: s.db}
}
