package history

import (
	"context"
)

// initSchema creates the tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		orch_id TEXT NOT NULL,
		run_dir TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		reasoning_effort TEXT NOT NULL DEFAULT '',
		dry_run INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_orch_created ON runs(orch_id, created_at);

	CREATE TABLE IF NOT EXISTS launches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		engine TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		pid INTEGER,
		detail TEXT NOT NULL DEFAULT '',
		exit_code INTEGER,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_launches_run ON launches(run_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
