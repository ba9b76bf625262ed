package config

import (
	"time"
)

const (
	DefaultFunctionLength       = 50
	DefaultCyclomaticComplexity = 10
	DefaultMaxDepth             = 10
	DefaultSolverTimeout        = 2 * time.Second
	DefaultStepBudget           = 20000
	DefaultSeverityFilter       = "medium"

	ThresholdFunctionLength       = "function_length"
	ThresholdCyclomaticComplexity = "cyclomatic_complexity"
)

type Config struct {
	Version       int           `toml:"version" yaml:"version" validate:"gte=1,lte=1"`
	Paths         Paths         `toml:"paths" yaml:"paths"`
	Patterns      Patterns      `toml:"patterns" yaml:"patterns"`
	Symbolic      Symbolic      `toml:"symbolic_execution" yaml:"symbolic_execution"`
	Reporting     Reporting     `toml:"reporting" yaml:"reporting"`
	Exclude       Exclude       `toml:"exclude" yaml:"exclude"`
	Performance   Performance   `toml:"performance" yaml:"performance"`
	History       History       `toml:"history" yaml:"history"`
	Observability Observability `toml:"observability" yaml:"observability"`
	Watch         Watch         `toml:"watch" yaml:"watch"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root" yaml:"project_root"`
	StateDir    string `toml:"state_dir" yaml:"state_dir"`
}

// Patterns selects the rules to run. An empty Enabled list runs every
// registered rule.
type Patterns struct {
	Enabled    []string       `toml:"enabled" yaml:"enabled"`
	Disabled   []string       `toml:"disabled" yaml:"disabled"`
	Thresholds map[string]int `toml:"thresholds" yaml:"thresholds"`
}

type Symbolic struct {
	Enabled    bool          `toml:"enabled" yaml:"enabled"`
	MaxDepth   int           `toml:"max_depth" yaml:"max_depth" validate:"gte=1,lte=256"`
	Timeout    time.Duration `toml:"timeout" yaml:"timeout"`
	StepBudget int           `toml:"step_budget" yaml:"step_budget" validate:"gte=100"`
	Backend    string        `toml:"backend" yaml:"backend" validate:"oneof=bounded z3"`
	// LoopUnroll bounds how many statements of a while body are traversed.
	LoopUnroll int `toml:"loop_unroll" yaml:"loop_unroll" validate:"gte=1,lte=64"`
}

type Reporting struct {
	SeverityFilter string `toml:"severity_filter" yaml:"severity_filter" validate:"severity"`
	Format         string `toml:"format" yaml:"format" validate:"oneof=console json sarif markdown"`
	Output         string `toml:"output" yaml:"output"`
	ShowMetrics    *bool  `toml:"show_metrics" yaml:"show_metrics"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs" yaml:"dirs"`
	Files []string `toml:"files" yaml:"files"`
}

type Performance struct {
	Workers   int `toml:"workers" yaml:"workers" validate:"gte=0,lte=512"`
	MaxCycles int `toml:"max_cycles" yaml:"max_cycles" validate:"gte=0"`
}

type History struct {
	Enabled     bool          `toml:"enabled" yaml:"enabled"`
	Path        string        `toml:"path" yaml:"path"`
	Project     string        `toml:"project" yaml:"project"`
	BusyTimeout time.Duration `toml:"busy_timeout" yaml:"busy_timeout"`
}

type Observability struct {
	MetricsAddr   string `toml:"metrics_addr" yaml:"metrics_addr"`
	TraceExporter string `toml:"trace_exporter" yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout"`
	OTLPEndpoint  string `toml:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName   string `toml:"service_name" yaml:"service_name"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce" yaml:"debounce"`
	MaxRate  float64       `toml:"max_rate" yaml:"max_rate" validate:"gte=0"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Threshold resolves a named threshold, falling back to its built-in default.
func (c *Config) Threshold(key string) int {
	if v, ok := c.Patterns.Thresholds[key]; ok {
		return v
	}
	return DefaultThresholds()[key]
}

func DefaultThresholds() map[string]int {
	return map[string]int{
		ThresholdFunctionLength:       DefaultFunctionLength,
		ThresholdCyclomaticComplexity: DefaultCyclomaticComplexity,
	}
}

func (r Reporting) MetricsVisible() bool {
	return r.ShowMetrics == nil || *r.ShowMetrics
}
