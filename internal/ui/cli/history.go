package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pyscan/internal/core/config"
	"pyscan/internal/data/history"
	"pyscan/internal/shared/util"
	"pyscan/internal/ui/report"
)

type historyOptions struct {
	since   string
	window  string
	project string
	tsvPath string
	jsonOut string
}

func newHistoryCommand(g *globalOptions) *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show defect trends across recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closeLog := configureLogging(cmd.ErrOrStderr(), false, g.verbose)
			defer closeLog()
			return runHistory(cmd, g, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.since, "since", "", "Include runs at/after this timestamp (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&opts.window, "window", "24h", "Moving-average window for the defect trend")
	f.StringVar(&opts.project, "project", "", "Project key (default: history.project from config)")
	f.StringVar(&opts.tsvPath, "tsv", "", "Write the trend report as TSV to this path")
	f.StringVar(&opts.jsonOut, "json", "", "Write the trend report as JSON to this path")
	return cmd
}

func runHistory(cmd *cobra.Command, g *globalOptions, opts historyOptions) error {
	since, err := parseSince(opts.since)
	if err != nil {
		return err
	}
	window, err := parseWindow(opts.window)
	if err != nil {
		return err
	}

	cwd, err := workingDir()
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(g.configPath, cwd)
	if err != nil {
		return err
	}
	paths, err := config.ResolvePaths(cfg, cwd, nil)
	if err != nil {
		return err
	}
	if _, err := os.Stat(paths.HistoryDB); err != nil {
		return fmt.Errorf("no history database at %s; enable [history] and run analyze first", paths.HistoryDB)
	}

	store, err := history.Open(paths.HistoryDB, cfg.History.BusyTimeout)
	if err != nil {
		return err
	}
	defer store.Close()

	project := opts.project
	if project == "" {
		project = projectName(cfg, paths)
	}
	snapshots, err := store.LoadSnapshots(cmd.Context(), project, since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(snapshots) == 0 {
		fmt.Fprintln(out, "History: no runs matched the requested time window.")
		return nil
	}
	trend, err := history.BuildTrendReport(project, snapshots, window)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "History: %d runs of %s from %s to %s\n",
		trend.RunCount, trend.Project,
		trend.Since.Format("2006-01-02 15:04:05"),
		trend.Until.Format("2006-01-02 15:04:05"))
	latest := trend.Points[len(trend.Points)-1]
	fmt.Fprintf(out, "Latest: files=%d (%+d), defects=%d (%+d), high=%d (%+d), cycles=%d (%+d), avg defects over %s=%.2f\n",
		latest.FileCount, latest.DeltaFiles,
		latest.DefectCount, latest.DeltaDefects,
		latest.HighCount, latest.DeltaHigh,
		latest.CycleCount, latest.DeltaCycles,
		trend.Window, latest.AvgDefects)

	if opts.tsvPath != "" {
		data, err := report.RenderTrendTSV(trend)
		if err != nil {
			return fmt.Errorf("render trend TSV: %w", err)
		}
		if err := util.WriteFileWithDirs(opts.tsvPath, data, 0o644); err != nil {
			return fmt.Errorf("write trend TSV %q: %w", opts.tsvPath, err)
		}
	}
	if opts.jsonOut != "" {
		data, err := report.RenderTrendJSON(trend)
		if err != nil {
			return fmt.Errorf("render trend JSON: %w", err)
		}
		if err := util.WriteFileWithDirs(opts.jsonOut, data, 0o644); err != nil {
			return fmt.Errorf("write trend JSON %q: %w", opts.jsonOut, err)
		}
	}
	return nil
}
