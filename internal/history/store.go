// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history keeps a local SQLite record of workflow runs started
// from the CLI.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// Run is one recorded run-and-wait invocation.
type Run struct {
	ID           int64         `json:"id"`
	Environment  string        `json:"environment,omitempty"`
	WorkflowID   string        `json:"workflow_id"`
	ExecutionID  string        `json:"execution_id,omitempty"`
	Outcome      string        `json:"outcome"`
	Status       string        `json:"status,omitempty"`
	Polls        int           `json:"polls"`
	SkippedPolls int           `json:"skipped_polls"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string        `json:"error,omitempty"`
}

// NewRun builds a record from an orchestrator result. runErr is the error
// returned alongside the result, if any.
func NewRun(environment, workflowID string, startedAt time.Time, result *orchestrator.Result, runErr error) Run {
	r := Run{
		Environment: environment,
		WorkflowID:  workflowID,
		StartedAt:   startedAt,
	}
	if result != nil {
		r.ExecutionID = result.ExecutionID
		r.Outcome = string(result.Outcome)
		r.Polls = result.Polls
		r.SkippedPolls = result.SkippedPolls
		r.Elapsed = result.Elapsed
		if result.Execution != nil {
			r.Status = string(result.Execution.Status)
		}
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	WorkflowID string
	Outcome    string
	Since      time.Time

	// Limit caps the number of rows; 0 means 50.
	Limit int
}

// Config contains SQLite storage configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string
}

// Store provides SQLite-backed storage for run records.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			environment TEXT NOT NULL DEFAULT '',
			workflow_id TEXT NOT NULL,
			execution_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			polls INTEGER NOT NULL DEFAULT 0,
			skipped_polls INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			elapsed_ns INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record stores r and returns its row ID.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	if r.WorkflowID == "" {
		return 0, errors.New("run workflow_id is required")
	}
	if r.Outcome == "" {
		return 0, errors.New("run outcome is required")
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (environment, workflow_id, execution_id, outcome, status, polls, skipped_polls, started_at, elapsed_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Environment, r.WorkflowID, r.ExecutionID, r.Outcome, r.Status,
		r.Polls, r.SkippedPolls, r.StartedAt.UnixNano(), int64(r.Elapsed), r.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return res.LastInsertId()
}

// List returns runs matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, f.WorkflowID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT id, environment, workflow_id, execution_id, outcome, status, polls, skipped_polls, started_at, elapsed_ns, error FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			startedAt int64
			elapsed   int64
		)
		if err := rows.Scan(&r.ID, &r.Environment, &r.WorkflowID, &r.ExecutionID, &r.Outcome, &r.Status,
			&r.Polls, &r.SkippedPolls, &startedAt, &elapsed, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, startedAt)
		r.Elapsed = time.Duration(elapsed)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes runs started before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
