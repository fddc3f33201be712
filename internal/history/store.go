// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// TYPES
// =============================================================================

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("install run not found")

// DefaultListLimit caps List when the caller passes zero.
const DefaultListLimit = 20

// MaxListLimit caps List regardless of the caller.
const MaxListLimit = 500

// Run is one recorded installation attempt.
type Run struct {
	ID          string     `json:"id"`
	InstallPath string     `json:"install_path"`
	RepoURL     string     `json:"repo_url"`
	ModelType   string     `json:"model_type,omitempty"`
	UseGPU      bool       `json:"use_gpu"`
	Resumed     bool       `json:"resumed"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	FinalStep   string     `json:"final_step,omitempty"`
	Message     string     `json:"message,omitempty"`
	HasError    bool       `json:"has_error"`
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool {
	return r.FinishedAt != nil
}

// Duration returns how long a finished run took, or zero.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// =============================================================================
// STORE
// =============================================================================

// Store persists install runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS install_runs (
		id TEXT PRIMARY KEY,
		install_path TEXT NOT NULL,
		repo_url TEXT NOT NULL,
		model_type TEXT NOT NULL DEFAULT '',
		use_gpu INTEGER NOT NULL DEFAULT 0,
		resumed INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		final_step TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		has_error INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_install_runs_started ON install_runs(started_at DESC);
	`)
	return err
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart inserts a new run.
func (s *Store) RecordStart(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id cannot be empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO install_runs (id, install_path, repo_url, model_type, use_gpu, resumed, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InstallPath, run.RepoURL, run.ModelType,
		boolToInt(run.UseGPU), boolToInt(run.Resumed), run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordFinish stores the terminal state of a run.
func (s *Store) RecordFinish(ctx context.Context, id, step, message string, hasError bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE install_runs SET finished_at = ?, final_step = ?, message = ?, has_error = ?
		WHERE id = ?`,
		at.UnixMilli(), step, message, boolToInt(hasError), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectRun = `
	SELECT id, install_path, repo_url, model_type, use_gpu, resumed,
	       started_at, finished_at, final_step, message, has_error
	FROM install_runs`

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                       Run
		useGPU, resumed, hasError int
		startedAt                 int64
		finishedAt                sql.NullInt64
	)
	err := sc.Scan(
		&run.ID, &run.InstallPath, &run.RepoURL, &run.ModelType, &useGPU, &resumed,
		&startedAt, &finishedAt, &run.FinalStep, &run.Message, &hasError,
	)
	if err != nil {
		return nil, err
	}
	run.UseGPU = useGPU != 0
	run.Resumed = resumed != 0
	run.HasError = hasError != 0
	run.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
