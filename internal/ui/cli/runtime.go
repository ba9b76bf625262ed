package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pyscan/internal/core/config"
	"pyscan/internal/data/history"
	"pyscan/internal/shared/observability"
)

var defaultConfigNames = []string{
	"pyscan.toml",
	".pyscan.toml",
	"pyscan.yaml",
	"pyscan.yml",
}

// loadConfig reads the explicit config path, or the first default file
// found in cwd, or falls back to built-in defaults. Environment overrides
// apply in every case. The returned path is empty for built-in defaults.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("load config %q: %w", path, err)
		}
		config.ApplyEnvOverrides(cfg)
		return cfg, path, nil
	}

	for _, candidate := range discoverDefaultConfig(cwd) {
		cfg, err := config.Load(candidate)
		if err == nil {
			config.ApplyEnvOverrides(cfg)
			return cfg, candidate, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return nil, "", fmt.Errorf("load config %q: %w", candidate, err)
	}

	cfg := config.Default()
	config.ApplyEnvOverrides(cfg)
	return cfg, "", nil
}

func discoverDefaultConfig(cwd string) []string {
	out := make([]string, 0, len(defaultConfigNames))
	for _, name := range defaultConfigNames {
		out = append(out, filepath.Clean(filepath.Join(cwd, name)))
	}
	return out
}

// configureLogging installs the default slog logger. In UI mode logs go to
// a file so they do not corrupt the terminal.
func configureLogging(w io.Writer, uiMode, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := w
	closeFn := func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(w, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(w, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600); err == nil {
			output = f
			closeFn = func() { _ = f.Close() }
		} else {
			fmt.Fprintf(w, "warning: failed to open log file %s: %v\n", logPath, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pyscan", "pyscan.log")
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "pyscan", "pyscan.log")
	}
	return "pyscan.log"
}

// startObservability starts the metrics endpoint and tracing when
// configured. The returned function stops both.
func startObservability(ctx context.Context, cfg *config.Config) (func(), error) {
	obs := cfg.Observability
	var server *observability.Server
	if obs.MetricsAddr != "" {
		server = observability.NewServer(obs.MetricsAddr)
		if err := server.Start(); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		slog.Info("metrics server listening", "addr", server.Addr())
	}

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingOptions{
		Exporter:     obs.TraceExporter,
		OTLPEndpoint: obs.OTLPEndpoint,
		ServiceName:  obs.ServiceName,
	})
	if err != nil {
		if server != nil {
			_ = server.Stop(context.Background())
		}
		return nil, err
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(stopCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
		if server != nil {
			if err := server.Stop(stopCtx); err != nil {
				slog.Warn("metrics server shutdown failed", "error", err)
			}
		}
	}, nil
}

// openHistory opens the run history database when history is enabled.
// A nil store means recording is off.
func openHistory(cfg *config.Config, paths config.ResolvedPaths) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(paths.HistoryDB, cfg.History.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func projectName(cfg *config.Config, paths config.ResolvedPaths) string {
	if p := strings.TrimSpace(cfg.History.Project); p != "" {
		return p
	}
	return filepath.Base(paths.ProjectRoot)
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("--since must be RFC3339 or YYYY-MM-DD, got %q", value)
}

func parseWindow(value string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("--window must be a Go duration (example: 24h), got %q", value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--window must be > 0, got %q", value)
	}
	return d, nil
}

func workingDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return cwd, nil
}

func asFile(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
