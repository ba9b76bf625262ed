package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"pyscan/internal/core/errors"
)

// Load reads a TOML or YAML configuration file, chosen by extension, then
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes configuration bytes. ext selects the format (".toml",
// ".yaml" or ".yml").
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, errors.CodeConfiguration, "decode yaml config")
		}
	case ".toml", "":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfiguration, "decode toml config")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Configuration(undecoded[0].String(), "unknown configuration key")
		}
	default:
		return nil, errors.Configuration("", "unsupported config format "+ext)
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data"
	}

	if cfg.Patterns.Thresholds == nil {
		cfg.Patterns.Thresholds = make(map[string]int)
	}
	for k, v := range DefaultThresholds() {
		if _, ok := cfg.Patterns.Thresholds[k]; !ok {
			cfg.Patterns.Thresholds[k] = v
		}
	}

	if cfg.Symbolic.MaxDepth == 0 {
		cfg.Symbolic.MaxDepth = DefaultMaxDepth
	}
	if cfg.Symbolic.Timeout <= 0 {
		cfg.Symbolic.Timeout = DefaultSolverTimeout
	}
	if cfg.Symbolic.StepBudget == 0 {
		cfg.Symbolic.StepBudget = DefaultStepBudget
	}
	if strings.TrimSpace(cfg.Symbolic.Backend) == "" {
		cfg.Symbolic.Backend = "bounded"
	}
	if cfg.Symbolic.LoopUnroll == 0 {
		cfg.Symbolic.LoopUnroll = 3
	}

	if strings.TrimSpace(cfg.Reporting.SeverityFilter) == "" {
		cfg.Reporting.SeverityFilter = DefaultSeverityFilter
	}
	if strings.TrimSpace(cfg.Reporting.Format) == "" {
		cfg.Reporting.Format = "console"
	}

	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "__pycache__", ".venv", "venv", ".tox", "node_modules"}
	}

	if cfg.Performance.MaxCycles == 0 {
		cfg.Performance.MaxCycles = 100
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "pyscan.db"
	}
	if strings.TrimSpace(cfg.History.Project) == "" {
		cfg.History.Project = "default"
	}
	if cfg.History.BusyTimeout <= 0 {
		cfg.History.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "pyscan"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.MaxRate == 0 {
		cfg.Watch.MaxRate = 2
	}
}

func normalize(cfg *Config) {
	cfg.Reporting.SeverityFilter = strings.ToLower(strings.TrimSpace(cfg.Reporting.SeverityFilter))
	cfg.Reporting.Format = strings.ToLower(strings.TrimSpace(cfg.Reporting.Format))
	cfg.Symbolic.Backend = strings.ToLower(strings.TrimSpace(cfg.Symbolic.Backend))
	cfg.Observability.TraceExporter = strings.ToLower(strings.TrimSpace(cfg.Observability.TraceExporter))
	cfg.Patterns.Enabled = trimAll(cfg.Patterns.Enabled)
	cfg.Patterns.Disabled = trimAll(cfg.Patterns.Disabled)
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
