package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	maxAttempts        = 5
	defaultBusyTimeout = 2 * time.Second
	defaultProject     = "default"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open creates the database file and its directory if needed and brings
// the schema up to date. busyTimeout <= 0 uses two seconds.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}
	if dir := filepath.Dir(cleanPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	// busy_timeout + WAL reduce lock conflicts when watch mode records runs
	// while a history query is open.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}
	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot writes the run row and its per-pattern counts in one
// transaction. A snapshot without a run id gets a fresh one; saving the
// same run id again replaces the earlier row.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.RunID == "" {
		snap.RunID = uuid.NewString()
	}
	if _, err := uuid.Parse(snap.RunID); err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", snap.RunID, err)
	}
	snap.Project = projectKey(snap.Project)
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	if snap.SchemaVersion != SchemaVersion {
		return "", fmt.Errorf("unsupported snapshot schema version %d", snap.SchemaVersion)
	}

	const upsert = `
INSERT INTO runs (
  run_id, project_key, schema_version, ts_utc, duration_ns, file_count, failed_file_count,
  function_count, class_count, total_lines, avg_complexity, cycle_count, defect_count,
  low_count, medium_count, high_count, critical_count, diagnostic_count, solver_queries, cancelled
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  project_key=excluded.project_key,
  ts_utc=excluded.ts_utc,
  duration_ns=excluded.duration_ns,
  file_count=excluded.file_count,
  failed_file_count=excluded.failed_file_count,
  function_count=excluded.function_count,
  class_count=excluded.class_count,
  total_lines=excluded.total_lines,
  avg_complexity=excluded.avg_complexity,
  cycle_count=excluded.cycle_count,
  defect_count=excluded.defect_count,
  low_count=excluded.low_count,
  medium_count=excluded.medium_count,
  high_count=excluded.high_count,
  critical_count=excluded.critical_count,
  diagnostic_count=excluded.diagnostic_count,
  solver_queries=excluded.solver_queries,
  cancelled=excluded.cancelled
`
	err := s.withRetry("save snapshot", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, upsert,
			snap.RunID,
			snap.Project,
			snap.SchemaVersion,
			snap.Timestamp.UTC().Format(time.RFC3339Nano),
			int64(snap.Duration),
			snap.FileCount,
			snap.FailedFiles,
			snap.FunctionCount,
			snap.ClassCount,
			snap.TotalLines,
			snap.AvgComplexity,
			snap.CycleCount,
			snap.DefectCount,
			snap.LowCount,
			snap.MediumCount,
			snap.HighCount,
			snap.CriticalCount,
			snap.DiagnosticCount,
			snap.SolverQueries,
			snap.Cancelled,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_patterns WHERE run_id = ?`, snap.RunID); err != nil {
			return err
		}
		for _, pattern := range sortedPatterns(snap.ByPattern) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_patterns(run_id, pattern, defect_count) VALUES (?, ?, ?)`,
				snap.RunID, pattern, snap.ByPattern[pattern],
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return snap.RunID, nil
}

// LoadSnapshots returns the runs of a project at or after since (all runs
// when since is zero), oldest first.
func (s *Store) LoadSnapshots(ctx context.Context, project string, since time.Time) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT
  run_id, project_key, schema_version, ts_utc, duration_ns, file_count, failed_file_count,
  function_count, class_count, total_lines, avg_complexity, cycle_count, defect_count,
  low_count, medium_count, high_count, critical_count, diagnostic_count, solver_queries, cancelled
FROM runs
WHERE project_key = ?`
	args := []any{projectKey(project)}
	if !since.IsZero() {
		query += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY ts_utc ASC, run_id ASC"

	var snapshots []Snapshot
	err := s.withRetry("load snapshots", func() error {
		snapshots = snapshots[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			snap, err := scanSnapshot(rows)
			if err != nil {
				return err
			}
			snapshots = append(snapshots, snap)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range snapshots {
		counts, err := s.patternCountsLocked(ctx, snapshots[i].RunID)
		if err != nil {
			return nil, err
		}
		snapshots[i].ByPattern = counts
	}
	return snapshots, nil
}

// PatternCounts returns the per-pattern defect counts stored for a run.
func (s *Store) PatternCounts(ctx context.Context, runID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patternCountsLocked(ctx, runID)
}

func (s *Store) patternCountsLocked(ctx context.Context, runID string) (map[string]int, error) {
	out := make(map[string]int)
	err := s.withRetry("load pattern counts", func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT pattern, defect_count FROM run_patterns WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				pattern string
				count   int
			)
			if err := rows.Scan(&pattern, &count); err != nil {
				return fmt.Errorf("scan pattern row: %w", err)
			}
			out[pattern] = count
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var (
		snap     Snapshot
		tsRaw    string
		duration int64
	)
	if err := row.Scan(
		&snap.RunID,
		&snap.Project,
		&snap.SchemaVersion,
		&tsRaw,
		&duration,
		&snap.FileCount,
		&snap.FailedFiles,
		&snap.FunctionCount,
		&snap.ClassCount,
		&snap.TotalLines,
		&snap.AvgComplexity,
		&snap.CycleCount,
		&snap.DefectCount,
		&snap.LowCount,
		&snap.MediumCount,
		&snap.HighCount,
		&snap.CriticalCount,
		&snap.DiagnosticCount,
		&snap.SolverQueries,
		&snap.Cancelled,
	); err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot timestamp %q: %w", tsRaw, err)
	}
	snap.Timestamp = ts.UTC()
	snap.Duration = time.Duration(duration)
	return snap, nil
}

func projectKey(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return defaultProject
	}
	return p
}

func sortedPatterns(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// IsCorruptError reports whether err means the file is not a usable
// sqlite database.
func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
