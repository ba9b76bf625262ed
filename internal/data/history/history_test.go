package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := Open(path, time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first := Snapshot{
		Project:     "project-a",
		Timestamp:   base,
		Duration:    1500 * time.Millisecond,
		FileCount:   8,
		DefectCount: 3,
		HighCount:   2,
		LowCount:    1,
		CycleCount:  1,
		ByPattern:   map[string]int{"division_by_zero": 2, "unused_import": 1},
	}
	second := Snapshot{
		Project:       "project-a",
		Timestamp:     base.Add(2 * time.Hour),
		FileCount:     9,
		FunctionCount: 12,
		AvgComplexity: 2.5,
		DefectCount:   1,
		Cancelled:     true,
	}

	firstID, err := store.SaveSnapshot(ctx, first)
	if err != nil {
		t.Fatalf("save first snapshot: %v", err)
	}
	if firstID == "" {
		t.Fatal("expected a generated run id")
	}
	if _, err := store.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("save second snapshot: %v", err)
	}

	all, err := store.LoadSnapshots(ctx, "project-a", time.Time{})
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(all))
	}
	got := all[0]
	if got.RunID != firstID || got.HighCount != 2 || got.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected first snapshot: %+v", got)
	}
	if got.ByPattern["division_by_zero"] != 2 || got.ByPattern["unused_import"] != 1 {
		t.Fatalf("pattern counts did not roundtrip: %v", got.ByPattern)
	}
	if !all[1].Cancelled || all[1].AvgComplexity != 2.5 || all[1].SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected second snapshot: %+v", all[1])
	}

	recent, err := store.LoadSnapshots(ctx, "project-a", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(recent) != 1 || recent[0].FileCount != 9 {
		t.Fatalf("since filter not applied: %+v", recent)
	}
}

func TestStore_SaveSameRunReplaces(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	id, err := store.SaveSnapshot(ctx, Snapshot{DefectCount: 4, ByPattern: map[string]int{"a": 4}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveSnapshot(ctx, Snapshot{RunID: id, DefectCount: 1, ByPattern: map[string]int{"b": 1}}); err != nil {
		t.Fatal(err)
	}

	rows, err := store.LoadSnapshots(ctx, "", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].DefectCount != 1 || rows[0].Project != "default" {
		t.Fatalf("expected the run to be replaced, got %+v", rows)
	}
	counts, err := store.PatternCounts(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 || counts["b"] != 1 {
		t.Fatalf("stale pattern counts: %v", counts)
	}
}

func TestStore_RejectsBadSnapshots(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	if _, err := store.SaveSnapshot(ctx, Snapshot{RunID: "not-a-uuid"}); err == nil {
		t.Error("expected invalid run id error")
	}
	if _, err := store.SaveSnapshot(ctx, Snapshot{SchemaVersion: SchemaVersion + 5}); err == nil {
		t.Error("expected schema version error")
	}
}

func TestStore_ProjectIsolation(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	if _, err := store.SaveSnapshot(ctx, Snapshot{Project: "a", FileCount: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveSnapshot(ctx, Snapshot{Project: "b", FileCount: 2}); err != nil {
		t.Fatal(err)
	}
	rows, err := store.LoadSnapshots(ctx, "b", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].FileCount != 2 {
		t.Fatalf("unexpected rows for project b: %+v", rows)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, 0)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	store, path := openStore(t)
	if _, err := store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureSchema_UpgradesVersionOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP))`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(migrations[0].sql); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO schema_migrations(version) VALUES (1)`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	store, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open v1 database: %v", err)
	}
	defer store.Close()
	if _, err := store.SaveSnapshot(context.Background(), Snapshot{SolverQueries: 7}); err != nil {
		t.Fatalf("save after upgrade: %v", err)
	}
	rows, err := store.LoadSnapshots(context.Background(), "", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].SolverQueries != 7 {
		t.Fatalf("unexpected rows after upgrade: %+v", rows)
	}
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	snapshots := []Snapshot{
		{Timestamp: base, FileCount: 5, DefectCount: 4, HighCount: 1, CycleCount: 2},
		{Timestamp: base.Add(2 * time.Hour), FileCount: 8, DefectCount: 6, HighCount: 3, CycleCount: 1},
		{Timestamp: base.Add(25 * time.Hour), FileCount: 9, DefectCount: 3, HighCount: 0, CycleCount: 3},
	}

	report, err := BuildTrendReport("", snapshots, 24*time.Hour)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.RunCount != 3 || report.Project != "default" {
		t.Fatalf("unexpected header: %+v", report)
	}
	p := report.Points[1]
	if p.DeltaDefects != 2 || p.DeltaHigh != 2 || p.DeltaFiles != 3 || p.DeltaCycles != -1 {
		t.Fatalf("unexpected deltas: %+v", p)
	}
	if p.DefectGrowthPct != 50 {
		t.Fatalf("expected growth 50%%, got %v", p.DefectGrowthPct)
	}
	if p.AvgDefects != 5 {
		t.Fatalf("expected moving average 5, got %v", p.AvgDefects)
	}
	// the first run falls outside the 24h window of the third
	if got := report.Points[2].AvgDefects; got != 4.5 {
		t.Fatalf("expected windowed average 4.5, got %v", got)
	}

	if _, err := BuildTrendReport("x", nil, time.Hour); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
	if IsCorruptError(nil) || IsCorruptError(errors.New("database is locked")) {
		t.Fatal("lock errors are not corruption")
	}
}

func TestWriter_FlushesOnClose(t *testing.T) {
	store, _ := openStore(t)
	w := NewWriter(store, 4)
	w.Start()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := w.SaveSnapshot(context.Background(), Snapshot{
			Project:     "queued",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			FileCount:   i + 1,
			DefectCount: i,
		})
		if err != nil {
			t.Fatalf("save snapshot %d: %v", i, err)
		}
		if id == "" {
			t.Fatalf("expected a run id for snapshot %d", i)
		}
		ids = append(ids, id)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	got, err := store.LoadSnapshots(context.Background(), "queued", time.Time{})
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(got))
	}
	for i, snap := range got {
		if snap.RunID != ids[i] {
			t.Fatalf("snapshot %d: expected run id %s, got %s", i, ids[i], snap.RunID)
		}
	}

	if _, err := w.SaveSnapshot(context.Background(), Snapshot{Project: "queued"}); !errors.Is(err, ErrWriterBusy) {
		t.Fatalf("expected ErrWriterBusy after close, got %v", err)
	}
}

func TestWriter_RejectsWhenFull(t *testing.T) {
	store, _ := openStore(t)
	w := NewWriter(store, 1)
	t.Cleanup(func() { _ = w.Close() })

	// Not started: the first snapshot fills the queue.
	if _, err := w.SaveSnapshot(context.Background(), Snapshot{Project: "full"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := w.SaveSnapshot(context.Background(), Snapshot{Project: "full"}); !errors.Is(err, ErrWriterBusy) {
		t.Fatalf("expected ErrWriterBusy, got %v", err)
	}
	if w.Pending() != 1 {
		t.Fatalf("expected 1 pending snapshot, got %d", w.Pending())
	}
}
