package history

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  project_key TEXT NOT NULL DEFAULT 'default',
  schema_version INTEGER NOT NULL,
  ts_utc TEXT NOT NULL,
  duration_ns INTEGER NOT NULL DEFAULT 0,
  file_count INTEGER NOT NULL,
  failed_file_count INTEGER NOT NULL DEFAULT 0,
  function_count INTEGER NOT NULL,
  class_count INTEGER NOT NULL,
  total_lines INTEGER NOT NULL,
  avg_complexity REAL NOT NULL DEFAULT 0,
  cycle_count INTEGER NOT NULL,
  defect_count INTEGER NOT NULL,
  low_count INTEGER NOT NULL DEFAULT 0,
  medium_count INTEGER NOT NULL DEFAULT 0,
  high_count INTEGER NOT NULL DEFAULT 0,
  critical_count INTEGER NOT NULL DEFAULT 0,
  diagnostic_count INTEGER NOT NULL DEFAULT 0,
  created_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(ts_utc);
CREATE INDEX IF NOT EXISTS idx_runs_project_key ON runs(project_key);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE runs ADD COLUMN solver_queries INTEGER NOT NULL DEFAULT 0;
ALTER TABLE runs ADD COLUMN cancelled INTEGER NOT NULL DEFAULT 0;
CREATE TABLE IF NOT EXISTS run_patterns (
  run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
  pattern TEXT NOT NULL,
  defect_count INTEGER NOT NULL,
  PRIMARY KEY (run_id, pattern)
);
`,
	},
}

// EnsureSchema applies every migration newer than the recorded version,
// each in its own transaction.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
