package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PYSCAN_[SECTION]_[KEY] (e.g., PYSCAN_REPORTING_SEVERITY_FILTER).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "PYSCAN_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "PYSCAN_PATHS_STATE_DIR")

	// Symbolic execution
	setEnvBool(&cfg.Symbolic.Enabled, "PYSCAN_SYMBOLIC_ENABLED")
	setEnvInt(&cfg.Symbolic.MaxDepth, "PYSCAN_SYMBOLIC_MAX_DEPTH")
	setEnvDuration(&cfg.Symbolic.Timeout, "PYSCAN_SYMBOLIC_TIMEOUT")
	setEnvInt(&cfg.Symbolic.StepBudget, "PYSCAN_SYMBOLIC_STEP_BUDGET")
	setEnvString(&cfg.Symbolic.Backend, "PYSCAN_SYMBOLIC_BACKEND")

	// Reporting
	setEnvString(&cfg.Reporting.SeverityFilter, "PYSCAN_REPORTING_SEVERITY_FILTER")
	setEnvString(&cfg.Reporting.Format, "PYSCAN_REPORTING_FORMAT")

	setEnvInt(&cfg.Performance.Workers, "PYSCAN_PERFORMANCE_WORKERS")

	// History
	setEnvBool(&cfg.History.Enabled, "PYSCAN_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "PYSCAN_HISTORY_PATH")
	setEnvString(&cfg.History.Project, "PYSCAN_HISTORY_PROJECT")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "PYSCAN_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.TraceExporter, "PYSCAN_OBSERVABILITY_TRACE_EXPORTER")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PYSCAN_OBSERVABILITY_OTLP_ENDPOINT")

	setEnvDuration(&cfg.Watch.Debounce, "PYSCAN_WATCH_DEBOUNCE")
	normalize(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
