// Package symbolic runs one symbolic session per function and confirms
// division-by-zero and unreachable-branch findings with a solver.
package symbolic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/engine/solver"
)

const (
	DefaultMaxDepth   = 10
	DefaultLoopUnroll = 3
)

type Options struct {
	Backend string
	// MaxDepth bounds statement nesting per session. Top-level statements
	// of a function body sit at depth 0.
	MaxDepth int
	// LoopUnroll is how many leading statements of a while body are
	// traversed. The loop is treated as running at most once.
	LoopUnroll int
	Solver     solver.Options
}

func (o Options) withDefaults() Options {
	if o.Backend == "" {
		o.Backend = solver.BackendBounded
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.LoopUnroll <= 0 {
		o.LoopUnroll = DefaultLoopUnroll
	}
	return o
}

// Checks selects which findings a run reports.
type Checks struct {
	DivisionByZero bool
	Unreachable    bool
}

// ChecksFor derives the checks from a list of enabled pattern ids.
func ChecksFor(enabled []string) Checks {
	var c Checks
	for _, id := range enabled {
		switch id {
		case patterns.DivisionByZeroSymbolic:
			c.DivisionByZero = true
		case patterns.UnreachableCode:
			c.Unreachable = true
		}
	}
	return c
}

func (c Checks) Any() bool { return c.DivisionByZero || c.Unreachable }

// Stats aggregates every session of a run.
type Stats struct {
	Functions    int           `json:"functions"`
	Pushes       int           `json:"pushes"`
	Pops         int           `json:"pops"`
	Queries      int           `json:"queries"`
	Sat          int           `json:"sat"`
	Unsat        int           `json:"unsat"`
	Inconclusive int           `json:"inconclusive"`
	Skipped      int           `json:"skipped_expressions"`
	DepthLimited int           `json:"depth_limited"`
	ExprLimited  int           `json:"expr_limited"`
	Elapsed      time.Duration `json:"elapsed"`
}

func (s *Stats) Add(o Stats) {
	s.Functions += o.Functions
	s.Pushes += o.Pushes
	s.Pops += o.Pops
	s.Queries += o.Queries
	s.Sat += o.Sat
	s.Unsat += o.Unsat
	s.Inconclusive += o.Inconclusive
	s.Skipped += o.Skipped
	s.DepthLimited += o.DepthLimited
	s.ExprLimited += o.ExprLimited
	s.Elapsed += o.Elapsed
}

type Result struct {
	Defects     []defect.Defect
	Diagnostics []defect.Diagnostic
	Stats       Stats
}

// Executor holds configuration only; all mutable state lives in sessions,
// so one Executor can serve many goroutines.
type Executor struct {
	opts   Options
	logger *slog.Logger
}

// NewExecutor fails when the configured backend is not compiled in.
func NewExecutor(opts Options, logger *slog.Logger) (*Executor, error) {
	opts = opts.withDefaults()
	probe, err := solver.New(opts.Backend, opts.Solver)
	if err != nil {
		return nil, err
	}
	_ = probe.Close()
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{opts: opts, logger: logger}, nil
}

func (e *Executor) Options() Options { return e.opts }

// Analyze runs one session per function of the model, in definition
// order. Cancellation is checked between sessions; findings of finished
// sessions are kept.
func (e *Executor) Analyze(ctx context.Context, model *ir.Model, checks Checks) (Result, error) {
	var res Result
	if !checks.Any() {
		return res, nil
	}
	for _, fn := range model.Functions {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, errors.CodeCancelled, "symbolic execution interrupted")
		}
		out, err := e.AnalyzeFunction(ctx, model, fn, checks)
		res.Defects = append(res.Defects, out.Defects...)
		res.Stats.Add(out.Stats)
		if err != nil {
			if errors.IsCode(err, errors.CodeCancelled) {
				return res, err
			}
			res.Diagnostics = append(res.Diagnostics, defect.Diagnostic{
				File:    model.Path,
				Line:    fn.Span.Line,
				Code:    string(errors.CodeInternal),
				Message: fmt.Sprintf("symbolic session for %s failed: %v", fn.QualifiedName, err),
			})
			e.logger.Debug("symbolic session failed", "file", model.Path, "function", fn.QualifiedName, "error", err)
		}
	}
	return res, nil
}

// AnalyzeFunction runs a single session with its own solver.
func (e *Executor) AnalyzeFunction(ctx context.Context, model *ir.Model, fn *ir.FunctionDescriptor, checks Checks) (out Result, err error) {
	slv, err := solver.New(e.opts.Backend, e.opts.Solver)
	if err != nil {
		return out, err
	}
	s := newSession(ctx, model, fn, slv, e.opts, checks)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.CodeInternal, fmt.Sprintf("panic in symbolic session: %v", r))
		}
		s.close()
		out.Defects = s.defects
		out.Stats = s.stats
		out.Stats.Functions = 1
		out.Stats.Elapsed = time.Since(start)
	}()
	err = s.run()
	return out, err
}
