// Package store provides the SQLite-backed document store for templates,
// periods, submissions, enrollment data, and per-period export records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS templates (
	version    TEXT PRIMARY KEY,
	page_order TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS template_pages (
	version TEXT NOT NULL,
	page_id TEXT NOT NULL,
	kind    TEXT NOT NULL DEFAULT '',
	title   TEXT NOT NULL DEFAULT '',
	inputs  TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (version, page_id)
);

CREATE TABLE IF NOT EXISTS periods (
	id               TEXT PRIMARY KEY,
	opens_at         DATETIME NOT NULL,
	closes_at        DATETIME NOT NULL,
	is_active        INTEGER NOT NULL DEFAULT 0,
	template_version TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS submissions (
	respondent_id    TEXT NOT NULL,
	period_id        TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT '',
	template_version TEXT NOT NULL DEFAULT '',
	answers          TEXT NOT NULL DEFAULT '{}',
	submitted_at     DATETIME,
	exported_at      DATETIME,
	PRIMARY KEY (respondent_id, period_id)
);

CREATE INDEX IF NOT EXISTS idx_submissions_period_status ON submissions(period_id, status);

CREATE TABLE IF NOT EXISTS users (
	uid   TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS enrollments (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	respondent_id TEXT NOT NULL,
	org_id        TEXT NOT NULL DEFAULT '',
	org_name      TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrollments_respondent ON enrollments(respondent_id, created_at);

CREATE TABLE IF NOT EXISTS organizations (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	region   TEXT NOT NULL DEFAULT '',
	locality TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS exports (
	period_id        TEXT PRIMARY KEY,
	header           TEXT NOT NULL DEFAULT '[]',
	template_version TEXT NOT NULL DEFAULT '',
	files            TEXT,
	row_count        INTEGER NOT NULL DEFAULT 0,
	run_id           TEXT NOT NULL DEFAULT '',
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS export_leases (
	period_id  TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// DB wraps a sql.DB with document-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
