package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"pyscan/internal/core/app"
	"pyscan/internal/core/config"
	"pyscan/internal/data/history"
	"pyscan/internal/ui/report"
	"pyscan/internal/ui/tui"
)

type watchOptions struct {
	ui       bool
	severity string
	symbolic bool
}

func newWatchCommand(g *globalOptions) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Re-analyze Python files whenever they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog := configureLogging(cmd.ErrOrStderr(), opts.ui, g.verbose)
			defer closeLog()
			return runWatch(cmd, g, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.ui, "ui", false, "Show a terminal dashboard instead of printing reports")
	cmd.Flags().StringVarP(&opts.severity, "severity", "s", "", "Minimum severity to report")
	cmd.Flags().BoolVar(&opts.symbolic, "symbolic", false, "Enable symbolic execution")
	return cmd
}

func runWatch(cmd *cobra.Command, g *globalOptions, opts watchOptions, args []string) error {
	ctx := cmd.Context()
	cwd, err := workingDir()
	if err != nil {
		return err
	}
	cfg, cfgPath, err := loadConfig(g.configPath, cwd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	overlay := func(c *config.Config) {
		if flags.Changed("severity") {
			c.Reporting.SeverityFilter = opts.severity
		}
		if flags.Changed("symbolic") {
			c.Symbolic.Enabled = opts.symbolic
		}
	}
	overlay(cfg)

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

	store, err := openHistory(cfg, paths)
	if err != nil {
		slog.Warn("history disabled for this session", "error", err)
	}
	var recorder app.Recorder
	if store != nil {
		defer store.Close()
		writer := history.NewWriter(store, 8)
		writer.Start()
		defer writer.Close()
		recorder = writer
	}

	reloads := make(chan *config.Config, 1)
	if cfgPath != "" {
		cw := config.NewWatcher(cfgPath, func(next *config.Config) {
			config.ApplyEnvOverrides(next)
			overlay(next)
			select {
			case reloads <- next:
			default:
			}
		})
		if err := cw.Start(ctx); err != nil {
			slog.Warn("config reload disabled", "path", cfgPath, "error", err)
		} else {
			defer cw.Stop()
		}
	}

	out := cmd.OutOrStdout()
	for {
		a, err := app.NewAnalyzer(cfg, app.WithLogger(slog.Default()))
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- watchSession(runCtx, a, opts.ui, out, paths, roots, recorder, projectName(cfg, paths))
		}()

		select {
		case err := <-done:
			cancel()
			return err
		case next := <-reloads:
			cancel()
			if err := <-done; err != nil {
				return err
			}
			slog.Info("restarting watch with reloaded configuration", "path", cfgPath)
			cfg = next
		}
	}
}

func watchSession(
	ctx context.Context,
	a *app.Analyzer,
	ui bool,
	out io.Writer,
	paths config.ResolvedPaths,
	roots []string,
	rec app.Recorder,
	project string,
) error {
	record := func(r *app.Report) {
		if rec == nil || r.Cancelled {
			return
		}
		if err := app.Record(ctx, rec, r, project); err != nil {
			slog.Warn("failed to record run", "error", err)
		}
	}

	if ui {
		return tui.Run(ctx, a, paths.ProjectRoot, roots, record)
	}

	cfg := a.Config()
	color := report.ColorEnabled(asFile(out))
	return a.Watch(ctx, roots, func(r *app.Report) {
		record(r)
		err := report.WriteConsole(out, r, report.ConsoleOptions{
			Color:       color,
			ShowMetrics: cfg.Reporting.MetricsVisible(),
			Root:        paths.ProjectRoot,
		})
		if err != nil {
			slog.Warn("failed to print report", "error", err)
		}
	})
}
