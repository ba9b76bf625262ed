package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyscan_files_analyzed_total",
		Help: "Files run through the analysis pipeline, by outcome.",
	}, []string{"outcome"})

	ParsingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pyscan_parsing_seconds",
		Help:    "Time spent parsing a source file into the IR.",
		Buckets: prometheus.DefBuckets,
	})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyscan_analysis_seconds",
		Help:    "Time spent per analysis stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	DefectsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyscan_defects_total",
		Help: "Defects reported, by severity.",
	}, []string{"severity"})

	DetectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyscan_detector_failures_total",
		Help: "Detector evaluations that failed and became diagnostics, by pattern.",
	}, []string{"pattern"})

	SolverQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyscan_solver_queries_total",
		Help: "Solver satisfiability checks, by result.",
	}, []string{"result"})

	CallGraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyscan_call_graph_nodes",
		Help: "Nodes in the call graph of the most recently analysed file.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscan_watcher_events_total",
		Help: "File system events received by the watcher.",
	})

	WatcherThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscan_watcher_throttled_total",
		Help: "Re-analysis requests delayed by the watch rate limit.",
	})

	HistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyscan_history_writes_total",
		Help: "Run snapshots written to the history store, by outcome.",
	}, []string{"outcome"})
)
