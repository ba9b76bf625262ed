package app

import (
	"context"

	"pyscan/internal/data/history"
	"pyscan/internal/engine/defect"
	"pyscan/internal/shared/observability"
)

// Recorder persists run snapshots. *history.Store satisfies it.
type Recorder interface {
	SaveSnapshot(ctx context.Context, snap history.Snapshot) (string, error)
}

// Snapshot condenses the report into the row stored per run.
func (r *Report) Snapshot(project string) history.Snapshot {
	bySeverity := defect.CountBySeverity(r.Defects)
	return history.Snapshot{
		RunID:           r.RunID,
		Project:         project,
		Timestamp:       r.StartedAt,
		Duration:        r.Duration,
		FileCount:       len(r.Files),
		FailedFiles:     r.Totals.FilesFailed,
		FunctionCount:   r.Totals.TotalFunctions,
		ClassCount:      r.Totals.TotalClasses,
		TotalLines:      r.Totals.TotalLines,
		AvgComplexity:   r.Totals.AvgComplexity,
		CycleCount:      r.Totals.Cycles,
		DefectCount:     len(r.Defects),
		LowCount:        bySeverity[defect.Low],
		MediumCount:     bySeverity[defect.Medium],
		HighCount:       bySeverity[defect.High],
		CriticalCount:   bySeverity[defect.Critical],
		DiagnosticCount: len(r.Diagnostics),
		SolverQueries:   r.Symbolic.Queries,
		Cancelled:       r.Cancelled,
		ByPattern:       defect.CountByPattern(r.Defects),
	}
}

// Record stores the report through rec. Failures are counted and
// returned; they never change the report.
func Record(ctx context.Context, rec Recorder, r *Report, project string) error {
	if _, err := rec.SaveSnapshot(ctx, r.Snapshot(project)); err != nil {
		observability.HistoryWrites.WithLabelValues("error").Inc()
		return err
	}
	observability.HistoryWrites.WithLabelValues("ok").Inc()
	return nil
}
