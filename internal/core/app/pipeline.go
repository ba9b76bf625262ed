package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/graph"
	"pyscan/internal/engine/ir"
	"pyscan/internal/shared/observability"
	"pyscan/internal/shared/util"
)

const (
	CodeCircularCall    = "CIRCULAR_CALL"
	PatternCircularCall = "circular_call"

	topCoupledPerFile = 5
)

type cachedResult struct {
	hash   string
	result FileResult
}

// AnalyzeFile reads path and runs the pipeline on its content. A read
// failure is recorded on the result, never returned.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) FileResult {
	content, err := os.ReadFile(path)
	if err != nil {
		observability.FilesAnalyzed.WithLabelValues("read_error").Inc()
		err = errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read source"), errors.CtxPath, path)
		return FileResult{
			Path:  path,
			Err:   err,
			Error: err.Error(),
			Diagnostics: []defect.Diagnostic{{
				File:    path,
				Code:    string(errors.CodeNotFound),
				Message: err.Error(),
			}},
		}
	}
	return a.AnalyzeSource(ctx, path, content)
}

// AnalyzeSource runs parse, pattern matching, symbolic execution and call
// graph analysis on one file. Results are cached by path and content hash.
// A parse error leaves Metrics nil and is reported as a PARSE_ERROR
// diagnostic.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, content []byte) FileResult {
	hash := util.ContentHash(content)
	if hit, ok := a.cache.Get(path); ok && hit.hash == hash {
		observability.FilesAnalyzed.WithLabelValues("cached").Inc()
		return hit.result
	}

	ctx, span := observability.Tracer.Start(ctx, "app.AnalyzeSource",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	start := time.Now()
	res := a.analyze(ctx, path, content)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("defects", len(res.Defects)),
		attribute.Int("diagnostics", len(res.Diagnostics)),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Error)
	}

	for _, d := range res.Defects {
		observability.DefectsFound.WithLabelValues(d.Severity.String()).Inc()
	}
	// Results of an interrupted run are incomplete and must not be reused.
	if ctx.Err() == nil {
		a.cache.Put(path, cachedResult{hash: hash, result: res})
	}
	return res
}

func (a *Analyzer) analyze(ctx context.Context, path string, content []byte) FileResult {
	res := FileResult{Path: path}

	timer := prometheus.NewTimer(observability.ParsingDuration)
	model, err := a.parser.Parse(path, content)
	timer.ObserveDuration()
	if err != nil {
		observability.FilesAnalyzed.WithLabelValues("parse_error").Inc()
		line, _, _ := errors.Location(err)
		res.Err = err
		res.Error = err.Error()
		res.Diagnostics = append(res.Diagnostics, defect.Diagnostic{
			File:    path,
			Line:    line,
			Code:    string(errors.CodeOf(err)),
			Message: err.Error(),
		})
		if a.parseWarn.Allow(path) {
			a.logger.Warn("failed to parse file", "path", path, "error", err)
		} else {
			a.logger.Debug("failed to parse file", "path", path, "error", err)
		}
		return res
	}

	var found []defect.Defect

	stage := prometheus.NewTimer(observability.AnalysisDuration.WithLabelValues("patterns"))
	matched, err := a.matcher.Match(ctx, model, a.enabled, a.thresholds)
	stage.ObserveDuration()
	found = append(found, matched.Defects...)
	res.Diagnostics = append(res.Diagnostics, matched.Diagnostics...)
	for _, d := range matched.Diagnostics {
		observability.DetectorFailures.WithLabelValues(d.Pattern).Inc()
	}
	if err != nil {
		a.logger.Debug("pattern matching interrupted", "path", path, "error", err)
	}

	if a.executor != nil && ctx.Err() == nil {
		stage = prometheus.NewTimer(observability.AnalysisDuration.WithLabelValues("symbolic"))
		sym, err := a.executor.Analyze(ctx, model, a.checks)
		stage.ObserveDuration()
		found = append(found, sym.Defects...)
		res.Diagnostics = append(res.Diagnostics, sym.Diagnostics...)
		res.Symbolic = sym.Stats
		observability.SolverQueries.WithLabelValues("sat").Add(float64(sym.Stats.Sat))
		observability.SolverQueries.WithLabelValues("unsat").Add(float64(sym.Stats.Unsat))
		observability.SolverQueries.WithLabelValues("unknown").Add(float64(sym.Stats.Inconclusive))
		if err != nil {
			a.logger.Debug("symbolic execution interrupted", "path", path, "error", err)
		}
	}

	stage = prometheus.NewTimer(observability.AnalysisDuration.WithLabelValues("graph"))
	cg := graph.Build(model)
	res.graph = cg
	res.CallGraph = cg.Summary()
	res.Cycles = cg.FindCycles(a.maxCycles)
	res.Coupling = cg.TopCoupled(topCoupledPerFile)
	stage.ObserveDuration()
	observability.CallGraphNodes.Set(float64(res.CallGraph.Nodes))
	res.Diagnostics = append(res.Diagnostics, cycleDiagnostics(path, cg, res.Cycles)...)

	metrics := model.ComputeMetrics()
	res.Metrics = &metrics

	res.Defects = defect.FilterBySeverity(found, a.minSeverity)
	defect.Sort(res.Defects)
	observability.FilesAnalyzed.WithLabelValues("ok").Inc()
	return res
}

// cycleDiagnostics reports each call cycle at the line of its first member.
func cycleDiagnostics(path string, cg *graph.CallGraph, cycles [][]string) []defect.Diagnostic {
	out := make([]defect.Diagnostic, 0, len(cycles))
	for _, cycle := range cycles {
		line := 0
		if n, ok := cg.Node(cycle[0]); ok {
			line = n.Line
		}
		out = append(out, defect.Diagnostic{
			File:    path,
			Line:    line,
			Pattern: PatternCircularCall,
			Code:    CodeCircularCall,
			Message: fmt.Sprintf("call cycle: %s -> %s", strings.Join(cycle, " -> "), cycle[0]),
		})
	}
	return out
}

// ModelOf parses content without running any rule. Used by tooling that
// only needs the IR, such as the DOT export.
func (a *Analyzer) ModelOf(path string, content []byte) (*ir.Model, error) {
	return a.parser.Parse(path, content)
}
