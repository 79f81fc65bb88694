// Package history provides a SQLite-backed log of retrieval queries.
// Every facade search can append one row (collection, query, result count,
// top score, latency) so operators can audit what the retrieval layer was
// asked and how well it answered. Persisted across restarts; disabled by
// setting the DB path to "disabled".
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Search is a single recorded retrieval query.
type Search struct {
	// Collection is the collection that was searched.
	Collection string
	// Query is the raw query text.
	Query string
	// K is the requested result limit.
	K int
	// Results is the number of results actually returned.
	Results int
	// TopScore is the best cosine similarity in the result set (0 when empty).
	TopScore float64
	// Duration is the wall-clock time of the search call.
	Duration time.Duration
	// CreatedAt is when the search was recorded.
	CreatedAt time.Time
}

// Store persists and retrieves search history. Implementations must be safe
// for concurrent use.
type Store interface {
	// Append persists a single search event.
	Append(ctx context.Context, s Search) error
	// Recent returns the most recent n searches, newest first.
	// If fewer than n exist, all are returned.
	Recent(ctx context.Context, n int) ([]Search, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the search history database.
// It resolves to ~/.opsrag/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".opsrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS searches (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    collection   TEXT    NOT NULL,
    query        TEXT    NOT NULL,
    k            INTEGER NOT NULL,
    results      INTEGER NOT NULL,
    top_score    REAL    NOT NULL,
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_searches_created
    ON searches (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append persists a single search event.
func (s *SQLiteStore) Append(ctx context.Context, ev Search) error {
	const q = `INSERT INTO searches (collection, query, k, results, top_score, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		ev.Collection, ev.Query, ev.K, ev.Results, ev.TopScore,
		ev.Duration.Milliseconds(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n searches, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Search, error) {
	const q = `SELECT collection, query, k, results, top_score, duration_ms, created_at
FROM searches ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Search
	for rows.Next() {
		var ev Search
		var durationMS, createdAt int64
		if err := rows.Scan(&ev.Collection, &ev.Query, &ev.K, &ev.Results,
			&ev.TopScore, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		ev.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
