package app

import (
	"time"

	"github.com/google/uuid"

	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/graph"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/engine/symbolic"
)

// FileResult is everything the pipeline produced for one file. Metrics is
// nil when the file could not be read or parsed.
type FileResult struct {
	Path        string               `json:"path"`
	Defects     []defect.Defect      `json:"defects"`
	Diagnostics []defect.Diagnostic  `json:"diagnostics,omitempty"`
	Metrics     *ir.MetricsSnapshot  `json:"metrics,omitempty"`
	CallGraph   graph.Summary        `json:"call_graph"`
	Cycles      [][]string           `json:"cycles,omitempty"`
	Coupling    []graph.Ranked       `json:"top_coupled,omitempty"`
	Symbolic    symbolic.Stats       `json:"symbolic"`
	Skipped     bool                 `json:"skipped,omitempty"`
	Duration    time.Duration        `json:"duration_ns"`
	Err         error                `json:"-"`
	Error       string               `json:"error,omitempty"`
	graph       *graph.CallGraph
}

// Failed reports whether the file produced no model.
func (r FileResult) Failed() bool { return r.Err != nil }

// Graph returns the call graph built for the file, or nil.
func (r FileResult) Graph() *graph.CallGraph { return r.graph }

type Totals struct {
	FilesAnalyzed  int     `json:"files_analyzed"`
	FilesFailed    int     `json:"files_failed"`
	FilesSkipped   int     `json:"files_skipped"`
	TotalLines     int     `json:"total_lines"`
	TotalFunctions int     `json:"total_functions"`
	TotalClasses   int     `json:"total_classes"`
	AvgComplexity  float64 `json:"avg_complexity"`
	Cycles         int     `json:"cycles"`
}

// Report is the outcome of one analysis run. Files keep input order;
// Defects and Diagnostics are the merged, sorted lists of every file.
type Report struct {
	RunID          string              `json:"run_id"`
	StartedAt      time.Time           `json:"started_at"`
	Duration       time.Duration       `json:"duration_ns"`
	SeverityFilter defect.Severity     `json:"severity_filter"`
	Patterns       []string            `json:"patterns"`
	Files          []FileResult        `json:"files"`
	Defects        []defect.Defect     `json:"defects"`
	Diagnostics    []defect.Diagnostic `json:"diagnostics,omitempty"`
	Totals         Totals              `json:"totals"`
	Summary        patterns.Summary    `json:"summary"`
	Symbolic       symbolic.Stats      `json:"symbolic"`
	Cancelled      bool                `json:"cancelled,omitempty"`
}

func newReport(minSeverity defect.Severity, enabled []string) *Report {
	return &Report{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now().UTC(),
		SeverityFilter: minSeverity,
		Patterns:       enabled,
	}
}

// merge folds the per-file results into the report-level lists and totals.
func (r *Report) merge(registry *patterns.Registry) {
	var complexity float64
	r.Defects = r.Defects[:0]
	r.Diagnostics = r.Diagnostics[:0]
	r.Totals = Totals{}
	r.Symbolic = symbolic.Stats{}

	for _, f := range r.Files {
		r.Defects = append(r.Defects, f.Defects...)
		r.Diagnostics = append(r.Diagnostics, f.Diagnostics...)
		r.Symbolic.Add(f.Symbolic)
		r.Totals.Cycles += len(f.Cycles)
		switch {
		case f.Skipped:
			r.Totals.FilesSkipped++
		case f.Failed():
			r.Totals.FilesFailed++
		default:
			r.Totals.FilesAnalyzed++
		}
		if m := f.Metrics; m != nil {
			r.Totals.TotalLines += m.TotalLines
			r.Totals.TotalFunctions += m.FunctionCount
			r.Totals.TotalClasses += m.ClassCount
			complexity += m.AvgCyclomaticComplexity * float64(m.FunctionCount)
		}
	}
	if r.Totals.TotalFunctions > 0 {
		r.Totals.AvgComplexity = complexity / float64(r.Totals.TotalFunctions)
	}
	defect.Sort(r.Defects)
	r.Summary = registry.Summarize(r.Defects)
}

// CountBySeverity keys the defect tally by severity name.
func (r *Report) CountBySeverity() map[string]int {
	out := make(map[string]int, 4)
	for s, n := range defect.CountBySeverity(r.Defects) {
		out[s.String()] = n
	}
	return out
}
