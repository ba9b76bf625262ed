// Package history persists one snapshot per analysis run in sqlite and
// derives trends from them.
package history

import "time"

const SchemaVersion = 2

// Snapshot is the persisted summary of one run.
type Snapshot struct {
	RunID         string        `json:"run_id"`
	Project       string        `json:"project"`
	SchemaVersion int           `json:"schema_version"`
	Timestamp     time.Time     `json:"timestamp"`
	Duration      time.Duration `json:"duration_ns"`

	FileCount     int     `json:"file_count"`
	FailedFiles   int     `json:"failed_files"`
	FunctionCount int     `json:"function_count"`
	ClassCount    int     `json:"class_count"`
	TotalLines    int     `json:"total_lines"`
	AvgComplexity float64 `json:"avg_complexity"`
	CycleCount    int     `json:"cycle_count"`

	DefectCount     int  `json:"defect_count"`
	LowCount        int  `json:"low_count"`
	MediumCount     int  `json:"medium_count"`
	HighCount       int  `json:"high_count"`
	CriticalCount   int  `json:"critical_count"`
	DiagnosticCount int  `json:"diagnostic_count"`
	SolverQueries   int  `json:"solver_queries"`
	Cancelled       bool `json:"cancelled,omitempty"`

	// ByPattern is stored in its own table; it is filled by LoadSnapshots.
	ByPattern map[string]int `json:"by_pattern,omitempty"`
}

type TrendPoint struct {
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	FileCount     int       `json:"file_count"`
	DefectCount   int       `json:"defect_count"`
	HighCount     int       `json:"high_count"`
	CriticalCount int       `json:"critical_count"`
	CycleCount    int       `json:"cycle_count"`
	AvgComplexity float64   `json:"avg_complexity"`

	DeltaFiles      int     `json:"delta_files"`
	DeltaDefects    int     `json:"delta_defects"`
	DeltaHigh       int     `json:"delta_high"`
	DeltaCritical   int     `json:"delta_critical"`
	DeltaCycles     int     `json:"delta_cycles"`
	DefectGrowthPct float64 `json:"defect_growth_pct"`
	AvgDefects      float64 `json:"avg_defects"`
	WindowHours     float64 `json:"window_hours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schema_version"`
	Project       string       `json:"project"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	RunCount      int          `json:"run_count"`
	Points        []TrendPoint `json:"points"`
}
