// Package app wires the engine packages into the per-file pipeline and
// runs it over a project.
package app

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"pyscan/internal/core/config"
	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/parser"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/engine/solver"
	"pyscan/internal/engine/symbolic"
	"pyscan/internal/shared/util"
)

const resultCacheSize = 1024

// Analyzer holds the immutable, shared state of a run: the registry, the
// resolved pattern selection and the engines. Per-file work allocates its
// own parser tree, matcher walk and symbolic sessions, so one Analyzer may
// serve concurrent AnalyzeSource calls.
type Analyzer struct {
	cfg      *config.Config
	registry *patterns.Registry
	matcher  *patterns.Matcher
	executor *symbolic.Executor
	parser   *parser.Parser
	logger   *slog.Logger

	enabled     []string
	checks      symbolic.Checks
	thresholds  map[string]int
	minSeverity defect.Severity
	workers     int
	maxCycles   int

	cache *util.LRU[string, cachedResult]
	// parseWarn limits parse failure warnings to one per file per minute
	// so a file being edited in watch mode does not flood the log.
	parseWarn *util.KeyedLimiter
}

type Option func(*Analyzer)

// WithRegistry replaces the default rule registry.
func WithRegistry(r *patterns.Registry) Option {
	return func(a *Analyzer) { a.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer resolves the configuration against the registry. Every
// configuration problem (unknown pattern ids, bad severity filter, a
// symbolic backend that is not compiled in) is reported here, before any
// file is touched.
func NewAnalyzer(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &Analyzer{
		cfg:       cfg,
		logger:    slog.Default(),
		workers:   cfg.Performance.Workers,
		maxCycles: cfg.Performance.MaxCycles,
		cache:     util.NewLRU[string, cachedResult](resultCacheSize),
		parseWarn: util.NewKeyedLimiter(1.0/60, 1, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		reg, err := patterns.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		a.registry = reg
	}
	if a.workers <= 0 {
		a.workers = runtime.NumCPU()
	}

	enabled, err := a.registry.Resolve(cfg.Patterns.Enabled, cfg.Patterns.Disabled)
	if err != nil {
		return nil, err
	}
	a.enabled = enabled

	minSeverity, err := defect.ParseSeverity(cfg.Reporting.SeverityFilter)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "reporting.severity_filter")
	}
	a.minSeverity = minSeverity

	a.thresholds = config.DefaultThresholds()
	for k, v := range cfg.Patterns.Thresholds {
		a.thresholds[k] = v
	}

	a.matcher = patterns.NewMatcher(a.registry, a.logger)
	a.parser = parser.New()

	if cfg.Symbolic.Enabled {
		a.checks = symbolic.ChecksFor(enabled)
		if a.checks.Any() {
			exec, err := symbolic.NewExecutor(symbolic.Options{
				Backend:    cfg.Symbolic.Backend,
				MaxDepth:   cfg.Symbolic.MaxDepth,
				LoopUnroll: cfg.Symbolic.LoopUnroll,
				Solver: solver.Options{
					Timeout:    cfg.Symbolic.Timeout,
					StepBudget: cfg.Symbolic.StepBudget,
				},
			}, a.logger)
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxKey, "symbolic_execution.backend")
			}
			a.executor = exec
		}
	}
	return a, nil
}

func (a *Analyzer) Registry() *patterns.Registry { return a.registry }

// Enabled returns the resolved pattern ids in run order.
func (a *Analyzer) Enabled() []string { return append([]string(nil), a.enabled...) }

func (a *Analyzer) Config() *config.Config { return a.cfg }

// SymbolicActive reports whether symbolic sessions run for each file.
func (a *Analyzer) SymbolicActive() bool { return a.executor != nil }

// AnalyzePaths scans roots for Python files and analyzes them. Only a
// scan failure (missing root, bad exclude glob) is returned as an error.
func (a *Analyzer) AnalyzePaths(ctx context.Context, roots []string) (*Report, error) {
	scanner, err := NewScanner(a.cfg.Exclude.Dirs, a.cfg.Exclude.Files)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "exclude patterns")
	}
	files, err := scanner.Scan(roots)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("scan complete", "roots", len(roots), "files", len(files))
	return a.AnalyzeFiles(ctx, files), nil
}

// AnalyzeFiles runs the per-file pipeline over paths with at most
// Performance.Workers files in flight. Results keep the input order. Once
// ctx is cancelled no new file is started: the remaining files are marked
// skipped and the report is flagged Cancelled, but everything already
// analyzed is kept.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string) *Report {
	report := newReport(a.minSeverity, a.Enabled())
	start := time.Now()
	results := make([]FileResult, len(paths))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, path := range paths {
		if ctx.Err() != nil {
			results[i] = FileResult{Path: path, Skipped: true}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = FileResult{Path: path, Skipped: true}
				return nil
			}
			results[i] = a.AnalyzeFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	report.Files = results
	report.Cancelled = ctx.Err() != nil
	report.merge(a.registry)
	report.Duration = time.Since(start)
	a.logger.Info("analysis complete",
		"run_id", report.RunID,
		"files", len(paths),
		"defects", len(report.Defects),
		"diagnostics", len(report.Diagnostics),
		"cancelled", report.Cancelled,
		"duration", report.Duration,
	)
	return report
}

// Forget drops cached results for path, for example after it is deleted.
func (a *Analyzer) Forget(path string) {
	a.cache.Remove(path)
}
