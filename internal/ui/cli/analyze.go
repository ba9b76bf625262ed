package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"pyscan/internal/core/app"
	"pyscan/internal/core/config"
	"pyscan/internal/engine/defect"
	"pyscan/internal/ui/report"
)

type analyzeOptions struct {
	severity  string
	format    string
	output    string
	symbolic  bool
	workers   int
	patterns  []string
	disable   []string
	dotDir    string
	markdown  string
	marker    string
	failOn    string
	noHistory bool
}

func newAnalyzeCommand(g *globalOptions) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze Python files and directories for defects",
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog := configureLogging(cmd.ErrOrStderr(), false, g.verbose)
			defer closeLog()
			return runAnalyze(cmd, g, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.severity, "severity", "s", "", "Minimum severity to report (low, medium, high, critical)")
	f.StringVarP(&opts.format, "format", "f", "", "Output format (console, json, sarif, markdown)")
	f.StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	f.BoolVar(&opts.symbolic, "symbolic", false, "Enable symbolic execution")
	f.IntVarP(&opts.workers, "workers", "w", 0, "Files analyzed in parallel (0 = number of CPUs)")
	f.StringSliceVarP(&opts.patterns, "pattern", "p", nil, "Run only these pattern ids (repeatable)")
	f.StringSliceVar(&opts.disable, "disable", nil, "Skip these pattern ids (repeatable)")
	f.StringVar(&opts.dotDir, "dot", "", "Write one Graphviz call graph per file into this directory")
	f.StringVar(&opts.markdown, "markdown-inject", "", "Replace the marked block of this markdown file with the defect table")
	f.StringVar(&opts.marker, "marker", "defects", "Marker name used by --markdown-inject")
	f.StringVar(&opts.failOn, "fail-on", "", "Exit with status 2 when a defect at or above this severity is found")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the history database")
	return cmd
}

// applyAnalyzeFlags overlays explicitly set flags on the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config, opts analyzeOptions) {
	f := cmd.Flags()
	if f.Changed("severity") {
		cfg.Reporting.SeverityFilter = opts.severity
	}
	if f.Changed("format") {
		cfg.Reporting.Format = opts.format
	}
	if f.Changed("output") {
		cfg.Reporting.Output = opts.output
	}
	if f.Changed("symbolic") {
		cfg.Symbolic.Enabled = opts.symbolic
	}
	if f.Changed("workers") {
		cfg.Performance.Workers = opts.workers
	}
	if f.Changed("pattern") {
		cfg.Patterns.Enabled = opts.patterns
	}
	if f.Changed("disable") {
		cfg.Patterns.Disabled = append(cfg.Patterns.Disabled, opts.disable...)
	}
	if opts.noHistory {
		cfg.History.Enabled = false
	}
}

func runAnalyze(cmd *cobra.Command, g *globalOptions, opts analyzeOptions, args []string) error {
	ctx := cmd.Context()
	cwd, err := workingDir()
	if err != nil {
		return err
	}
	cfg, cfgPath, err := loadConfig(g.configPath, cwd)
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cmd, cfg, opts)
	slog.Debug("configuration loaded", "path", cfgPath)

	var failOn defect.Severity
	if opts.failOn != "" {
		if failOn, err = defect.ParseSeverity(opts.failOn); err != nil {
			return fmt.Errorf("--fail-on: %w", err)
		}
	}

	roots := args
	if len(roots) == 0 {
		roots = []string{"."}
	}
	paths, err := config.ResolvePaths(cfg, cwd, roots)
	if err != nil {
		return err
	}

	stop, err := startObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()

	analyzer, err := app.NewAnalyzer(cfg, app.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	result, err := analyzer.AnalyzePaths(ctx, roots)
	if err != nil {
		return err
	}

	recordRun(ctx, cfg, paths, result)

	out := cmd.OutOrStdout()
	if err := writeReport(out, cfg, paths.ProjectRoot, analyzer, result); err != nil {
		return err
	}

	if opts.dotDir != "" {
		written, err := report.WriteDOTFiles(opts.dotDir, result, paths.ProjectRoot)
		if err != nil {
			return err
		}
		slog.Info("call graphs written", "dir", opts.dotDir, "files", len(written))
	}
	if opts.markdown != "" {
		if err := report.InjectMarkdown(opts.markdown, opts.marker, string(report.RenderMarkdown(result, paths.ProjectRoot))); err != nil {
			return err
		}
	}

	if result.Cancelled {
		return ctx.Err()
	}
	if failOn.Valid() {
		for _, d := range result.Defects {
			if d.Severity >= failOn {
				return errDefectsFound
			}
		}
	}
	return nil
}

func writeReport(out io.Writer, cfg *config.Config, root string, a *app.Analyzer, r *app.Report) error {
	opts := report.Options{
		Format:      cfg.Reporting.Format,
		ProjectRoot: root,
		ShowMetrics: cfg.Reporting.MetricsVisible(),
		Registry:    a.Registry(),
	}
	if cfg.Reporting.Output == "" {
		opts.Color = report.ColorEnabled(asFile(out))
	}
	if err := report.Write(out, cfg.Reporting.Output, r, opts); err != nil {
		return fmt.Errorf("write %s report: %w", cfg.Reporting.Format, err)
	}
	if cfg.Reporting.Output != "" {
		slog.Info("report written", "path", cfg.Reporting.Output, "format", cfg.Reporting.Format)
	}
	return nil
}

// recordRun stores the run when history is enabled. History problems are
// logged and never fail the analysis.
func recordRun(ctx context.Context, cfg *config.Config, paths config.ResolvedPaths, r *app.Report) {
	store, err := openHistory(cfg, paths)
	if err != nil {
		slog.Warn("history disabled for this run", "error", err)
		return
	}
	if store == nil {
		return
	}
	defer store.Close()
	if err := app.Record(ctx, store, r, projectName(cfg, paths)); err != nil {
		slog.Warn("failed to record run", "path", store.Path(), "error", err)
		return
	}
	slog.Debug("run recorded", "run_id", r.RunID, "path", store.Path())
}
