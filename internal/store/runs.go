// Package store persists the run ledger: one row per executed pipeline stage.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agenix/internal/logging"

	_ "modernc.org/sqlite"
)

// Run is one ledger entry.
type Run struct {
	ID         int64          `json:"id"`
	Stage      string         `json:"stage"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     map[string]int `json:"counts"`
	Error      string         `json:"error,omitempty"`
}

// Duration is how long the stage ran.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the stage ended with an error.
func (r Run) Failed() bool { return r.Error != "" }

// RunStore is the SQLite-backed ledger.
type RunStore struct {
	db   *sql.DB
	path string
}

// NewRunStore opens (creating if needed) the ledger at path. ":memory:" is
// accepted for tests.
func NewRunStore(path string) (*RunStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewRunStore")
	defer timer.Stop()

	logging.Store("Initializing run ledger at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}

	s := &RunStore{db: db, path: path}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *RunStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stage TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		counts TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database path.
func (s *RunStore) Path() string { return s.path }

// RecordRun appends a ledger entry and returns its id.
func (s *RunStore) RecordRun(ctx context.Context, r Run) (int64, error) {
	if r.Stage == "" {
		return 0, fmt.Errorf("run stage is required")
	}
	counts := r.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal counts: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (stage, started_at, finished_at, counts, error)
		VALUES (?, ?, ?, ?, ?)
	`, r.Stage, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), string(countsJSON), r.Error)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.StoreDebug("Recorded run %d stage=%s", id, r.Stage)
	return id, nil
}

// RecentRuns returns up to limit runs, newest first. An empty stage matches
// every stage.
func (s *RunStore) RecentRuns(ctx context.Context, stage string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, stage, started_at, finished_at, counts, error FROM runs`
	args := []any{}
	if stage != "" {
		query += ` WHERE stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			countsJSON        string
		)
		if err := rows.Scan(&r.ID, &r.Stage, &started, &finished, &countsJSON, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		if err := json.Unmarshal([]byte(countsJSON), &r.Counts); err != nil {
			logging.StoreWarn("run %d has unreadable counts: %v", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}
