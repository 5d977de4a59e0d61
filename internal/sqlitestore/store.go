// Package sqlitestore implements the persistence adapters over SQLite.
// JSON-shaped values (records, potential matches, decisions, provenance)
// live in TEXT columns; status, priority, and timestamps get their own
// columns so filters can push into the query.
package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store holds the SQLite connection backing all four adapters.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the database file, applies pragmas, and creates the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapConnection("sqlite", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, errors.WrapConnection("sqlite", execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.createSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Adapters returns the store wired into an adapter bundle.
func (s *Store) Adapters() adapter.Adapters {
	return adapter.Adapters{
		Database:   s,
		Queue:      &queueStore{store: s},
		Merge:      s,
		Provenance: &provenanceStore{store: s},
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
        id TEXT PRIMARY KEY,
        data TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS archived_records (
        id TEXT PRIMARY KEY,
        data TEXT NOT NULL,
        reason TEXT,
        merged_into_id TEXT,
        archived_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_archived_merged_into
        ON archived_records(merged_into_id)`,
	`CREATE TABLE IF NOT EXISTS queue_items (
        id TEXT PRIMARY KEY,
        candidate_record TEXT NOT NULL,
        potential_matches TEXT NOT NULL,
        status TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        decided_at TEXT,
        decided_by TEXT,
        decision TEXT,
        context TEXT,
        priority INTEGER NOT NULL DEFAULT 0,
        tags TEXT NOT NULL DEFAULT '[]'
    )`,
	`CREATE INDEX IF NOT EXISTS idx_queue_items_status
        ON queue_items(status)`,
	`CREATE TABLE IF NOT EXISTS provenance (
        golden_record_id TEXT PRIMARY KEY,
        data TEXT NOT NULL,
        unmerged INTEGER NOT NULL DEFAULT 0
    )`,
}

func (s *Store) createSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.WrapQuery("create schema", "sqlite", err)
		}
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// querier is the common surface of *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
