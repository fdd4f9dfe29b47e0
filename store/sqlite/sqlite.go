// Package sqlite implements the run-history store using pure-Go SQLite.
// Zero CGO required.
//
// History is an audit log of completed operations, not session state:
// nothing here is read back into a live session.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"database/sql"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Run is one completed logical operation.
type Run struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Kind      string    `json:"kind"` // "execute" or "explain"
	Language  string    `json:"language,omitempty"`
	Success   bool      `json:"success"`
	Elapsed   float64   `json:"elapsed"` // wall-clock seconds
	CreatedAt time.Time `json:"created_at"`
}

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. If not set, no
// logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store records run history in a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so
// that all goroutines serialize through one connection, eliminating
// SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with
		// the blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the runs table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		elapsed REAL NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: init: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_runs_client ON runs(client_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("sqlite: init index: %w", err)
	}
	return nil
}

// RecordRun inserts one completed run. CreatedAt defaults to now.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	success := 0
	if run.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, client_id, kind, language, success, elapsed, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ClientID, run.Kind, run.Language, success, run.Elapsed, created.Unix())
	if err != nil {
		return fmt.Errorf("sqlite: record run: %w", err)
	}
	s.logger.Debug("run recorded", "client_id", run.ClientID, "kind", run.Kind, "success", run.Success)
	return nil
}

// Recent returns the newest runs for a client, newest first.
func (s *Store) Recent(ctx context.Context, clientID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, kind, language, success, elapsed, created_at FROM runs WHERE client_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var success int
		var created int64
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Kind, &r.Language, &success, &r.Elapsed, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		r.Success = success != 0
		r.CreatedAt = time.Unix(created, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
