// Package history keeps a SQLite index of past dispatch runs and the outcome
// of every worker launch, fed from the dispatch event bus.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Launch outcomes.
const (
	OutcomeStarted = "started"
	OutcomeManual  = "manual"
	OutcomeFailed  = "failed"
	OutcomeExited  = "exited"
)

const queryTimeout = 5 * time.Second

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded dispatch invocation.
type Run struct {
	RunID           string
	OrchID          string
	RunDir          string
	Model           string
	ReasoningEffort string
	DryRun          bool
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

// Launch is one recorded worker outcome.
type Launch struct {
	RunID      string
	TaskID     string
	Engine     string
	Outcome    string
	PID        *int
	Detail     string // Manual reason, failure text or log path
	ExitCode   *int
	RecordedAt time.Time
}

// RunSummary is a run with its launch outcome counts.
type RunSummary struct {
	Run
	Started int
	Manual  int
	Failed  int
	Exited  int
}

// Store defines the history persistence interface.
type Store interface {
	RecordRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, at time.Time) error
	RecordLaunch(ctx context.Context, l Launch) error
	ListRuns(ctx context.Context, orchID string, limit int) ([]RunSummary, error)
	Launches(ctx context.Context, runID string) ([]Launch, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the history database at dbPath
// in WAL mode with foreign keys on.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	// modernc.org/sqlite takes foreign_keys only as a PRAGMA.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates a private in-memory store for tests.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	// A unique name keeps stores apart while letting one store's
	// connections share the database.
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// Foreign keys are per connection; one connection keeps them on.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun inserts a run. Recording the same run id twice keeps the first.
func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, orch_id, run_dir, model, reasoning_effort, dry_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, run.RunID, run.OrchID, run.RunDir, run.Model, run.ReasoningEffort, run.DryRun, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// FinishRun stamps the run's finish time.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE run_id = ?`, at.UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordLaunch appends a launch outcome. The run must exist.
func (s *SQLiteStore) RecordLaunch(ctx context.Context, l Launch) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launches (run_id, task_id, engine, outcome, pid, detail, exit_code, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.RunID, l.TaskID, l.Engine, l.Outcome, nullInt(l.PID), l.Detail, nullInt(l.ExitCode), l.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record launch: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first, optionally for one orchestrator.
// limit <= 0 means 20.
func (s *SQLiteStore) ListRuns(ctx context.Context, orchID string, limit int) ([]RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.orch_id, r.run_dir, r.model, r.reasoning_effort, r.dry_run,
		       r.created_at, r.finished_at,
		       COALESCE(SUM(l.outcome = 'started'), 0),
		       COALESCE(SUM(l.outcome = 'manual'), 0),
		       COALESCE(SUM(l.outcome = 'failed'), 0),
		       COALESCE(SUM(l.outcome = 'exited'), 0)
		FROM runs r
		LEFT JOIN launches l ON l.run_id = r.run_id
		WHERE ? = '' OR r.orch_id = ?
		GROUP BY r.run_id
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?
	`, orchID, orchID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	out := []RunSummary{}
	for rows.Next() {
		var rs RunSummary
		var finished sql.NullTime
		if err := rows.Scan(&rs.RunID, &rs.OrchID, &rs.RunDir, &rs.Model, &rs.ReasoningEffort, &rs.DryRun,
			&rs.CreatedAt, &finished, &rs.Started, &rs.Manual, &rs.Failed, &rs.Exited); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			rs.FinishedAt = &t
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

// Launches returns a run's launch outcomes in the order they were recorded.
func (s *SQLiteStore) Launches(ctx context.Context, runID string) ([]Launch, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, engine, outcome, pid, detail, exit_code, recorded_at
		FROM launches
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query launches: %w", err)
	}
	defer rows.Close()

	out := []Launch{}
	for rows.Next() {
		var l Launch
		var pid, code sql.NullInt64
		if err := rows.Scan(&l.RunID, &l.TaskID, &l.Engine, &l.Outcome, &pid, &l.Detail, &code, &l.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan launch: %w", err)
		}
		l.PID = intPtr(pid)
		l.ExitCode = intPtr(code)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating launches: %w", err)
	}
	return out, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
