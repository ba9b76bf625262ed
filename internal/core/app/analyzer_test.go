package app_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/app"
	"pyscan/internal/core/config"
	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/patterns"
)

func newAnalyzer(t *testing.T, mutate func(*config.Config), opts ...app.Option) *app.Analyzer {
	t.Helper()
	cfg := config.Default()
	cfg.Performance.Workers = 2
	if mutate != nil {
		mutate(cfg)
	}
	a, err := app.NewAnalyzer(cfg, opts...)
	require.NoError(t, err)
	return a
}

func only(ids ...string) func(*config.Config) {
	return func(c *config.Config) { c.Patterns.Enabled = ids }
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return dir
}

func analyzeSource(t *testing.T, a *app.Analyzer, src string) app.FileResult {
	t.Helper()
	res := a.AnalyzeSource(context.Background(), "case.py", []byte(src))
	require.NoError(t, res.Err)
	return res
}

func TestScenario_UnguardedDivision(t *testing.T) {
	a := newAnalyzer(t, func(c *config.Config) {
		c.Patterns.Enabled = []string{patterns.DivisionByZeroSymbolic}
		c.Symbolic.Enabled = true
	})
	require.True(t, a.SymbolicActive())

	res := analyzeSource(t, a, "def f(a,b): return a/b\n")
	require.Len(t, res.Defects, 1)
	d := res.Defects[0]
	assert.Equal(t, patterns.DivisionByZeroSymbolic, d.Pattern)
	assert.Equal(t, defect.High, d.Severity)
	assert.Equal(t, 1, d.Line)
	assert.Equal(t, 1, res.Symbolic.Functions)
	assert.Equal(t, res.Symbolic.Pushes, res.Symbolic.Pops)
}

func TestScenario_NoneDereference(t *testing.T) {
	a := newAnalyzer(t, only("null_dereference"))
	res := analyzeSource(t, a, "x = None; x.attr\n")
	require.Len(t, res.Defects, 1)
	assert.Equal(t, defect.High, res.Defects[0].Severity)
	assert.Contains(t, res.Defects[0].Description, "x")
}

func TestScenario_LongFunctionThreshold(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("def busy():\n")
	for i := 0; i < 30; i++ {
		sb.WriteString("    noop()\n")
	}
	src := sb.String()

	a := newAnalyzer(t, only("long_function"))
	assert.Empty(t, analyzeSource(t, a, src).Defects)

	a = newAnalyzer(t, func(c *config.Config) {
		c.Patterns.Enabled = []string{"long_function"}
		c.Patterns.Thresholds[config.ThresholdFunctionLength] = 10
	})
	res := analyzeSource(t, a, src)
	require.Len(t, res.Defects, 1)
	assert.Equal(t, defect.Medium, res.Defects[0].Severity)
	assert.Contains(t, res.Defects[0].Description, "busy")
}

func TestScenario_ContradictoryElif(t *testing.T) {
	a := newAnalyzer(t, func(c *config.Config) {
		c.Patterns.Enabled = []string{patterns.UnreachableCode}
		c.Symbolic.Enabled = true
	})
	src := `def f(x):
    if x > 0:
        return 1
    elif x > 0:
        return 2
    return 0
`
	res := analyzeSource(t, a, src)
	require.Len(t, res.Defects, 1)
	assert.Equal(t, patterns.UnreachableCode, res.Defects[0].Pattern)
	assert.Equal(t, defect.Medium, res.Defects[0].Severity)
	assert.Equal(t, 0, res.Defects[0].Line)
}

func TestScenario_FailingDetectorIsIsolated(t *testing.T) {
	custom := patterns.RuleSet{Category: "custom", Rules: []patterns.Rule{
		{ID: "foo", Severity: defect.High, Detect: func(*ir.Node, *patterns.FileContext) ([]defect.Defect, error) {
			return nil, fmt.Errorf("always fails")
		}},
	}}
	reg, err := patterns.NewRegistry(patterns.BasicRules(), custom)
	require.NoError(t, err)

	a := newAnalyzer(t, only("foo", "division_by_zero"), app.WithRegistry(reg))
	res := a.AnalyzeSource(context.Background(), "case.py", []byte("y = 1 / 0\n"))

	require.NoError(t, res.Err)
	require.Len(t, res.Defects, 1)
	assert.Equal(t, "division_by_zero", res.Defects[0].Pattern)
	require.NotEmpty(t, res.Diagnostics)
	for _, d := range res.Diagnostics {
		assert.Equal(t, "foo", d.Pattern)
		assert.Equal(t, string(errors.CodeDetector), d.Code)
	}
}

func TestSymbolicRequiresBothSwitches(t *testing.T) {
	a := newAnalyzer(t, only(patterns.DivisionByZeroSymbolic))
	assert.False(t, a.SymbolicActive(), "symbolic_execution.enabled is false")
	assert.Empty(t, analyzeSource(t, a, "def f(a, b):\n    return a / b\n").Defects)

	a = newAnalyzer(t, func(c *config.Config) {
		c.Patterns.Enabled = []string{"long_function"}
		c.Symbolic.Enabled = true
	})
	assert.False(t, a.SymbolicActive(), "no symbolic pattern is enabled")
}

func TestNewAnalyzer_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		{"unknown enabled id", only("no_such_rule"), errors.CodeConfiguration},
		{"unknown disabled id", func(c *config.Config) { c.Patterns.Disabled = []string{"nope"} }, errors.CodeConfiguration},
		{"bad severity", func(c *config.Config) { c.Reporting.SeverityFilter = "severe" }, errors.CodeConfiguration},
		{"backend not compiled in", func(c *config.Config) {
			c.Symbolic.Enabled = true
			c.Symbolic.Backend = "cvc5"
		}, errors.CodeNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			a, err := app.NewAnalyzer(cfg)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestAnalyzeFiles_ParseErrorIsIsolated(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.py":   "y = 1 / 0\n",
		"broken.py": "def f(:\n    pass\n",
	})
	a := newAnalyzer(t, only("division_by_zero"))
	report := a.AnalyzeFiles(context.Background(), []string{
		filepath.Join(dir, "broken.py"),
		filepath.Join(dir, "good.py"),
	})

	assert.Equal(t, 1, report.Totals.FilesAnalyzed)
	assert.Equal(t, 1, report.Totals.FilesFailed)
	require.Len(t, report.Files, 2)

	broken := report.Files[0]
	assert.True(t, broken.Failed())
	assert.Nil(t, broken.Metrics)
	assert.True(t, errors.IsCode(broken.Err, errors.CodeParse))
	require.Len(t, broken.Diagnostics, 1)
	assert.Equal(t, string(errors.CodeParse), broken.Diagnostics[0].Code)
	assert.Equal(t, 1, broken.Diagnostics[0].Line)

	require.Len(t, report.Defects, 1)
	assert.Equal(t, filepath.Join(dir, "good.py"), report.Defects[0].File)
	assert.NotNil(t, report.Files[1].Metrics)
}

func TestAnalyzeFile_MissingFile(t *testing.T) {
	a := newAnalyzer(t, nil)
	res := a.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "gone.py"))
	require.Error(t, res.Err)
	assert.True(t, errors.IsCode(res.Err, errors.CodeNotFound))
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, string(errors.CodeNotFound), res.Diagnostics[0].Code)
}

func TestAnalyzeFiles_Cancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})
	a := newAnalyzer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := a.AnalyzeFiles(ctx, []string{filepath.Join(dir, "a.py"), filepath.Join(dir, "b.py")})

	assert.True(t, report.Cancelled)
	assert.Equal(t, 2, report.Totals.FilesSkipped)
	for _, f := range report.Files {
		assert.True(t, f.Skipped)
	}
}

const mixed = `import os
import pickle

def load(path, data):
    f = open(path)
    password = "hunter2"
    for i in range(10):
        for j in range(10):
            for k in range(10):
                total = i / 0
    return pickle.loads(data)

def unused(a, b):
    tmp = 3
    return a / b
`

func TestAnalyzeFiles_Deterministic(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": mixed, "b/c.py": mixed, "d.py": "def f(x):\n    return x\n"})
	run := func() []defect.Defect {
		a := newAnalyzer(t, func(c *config.Config) {
			c.Symbolic.Enabled = true
			c.Reporting.SeverityFilter = "low"
			c.Performance.Workers = 4
		})
		report, err := a.AnalyzePaths(context.Background(), []string{dir})
		require.NoError(t, err)
		return report.Defects
	}
	first := run()
	require.NotEmpty(t, first)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, run())
	}
}

func TestAnalyzeFiles_SeverityFilterIsMonotonic(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": mixed})
	var previous map[string]bool
	for _, level := range []string{"low", "medium", "high", "critical"} {
		a := newAnalyzer(t, func(c *config.Config) { c.Reporting.SeverityFilter = level })
		report, err := a.AnalyzePaths(context.Background(), []string{dir})
		require.NoError(t, err)

		current := make(map[string]bool, len(report.Defects))
		for _, d := range report.Defects {
			current[d.String()] = true
		}
		for key := range current {
			if previous != nil {
				assert.True(t, previous[key], "%s at %s not in lower cutoff", key, level)
			}
		}
		previous = current
	}
}

func TestAnalyzeFiles_OnlyEnabledPatterns(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": mixed})
	enabled := []string{"resource_leak", "unsafe_deserialization"}
	a := newAnalyzer(t, func(c *config.Config) {
		c.Patterns.Enabled = enabled
		c.Reporting.SeverityFilter = "low"
	})
	report, err := a.AnalyzePaths(context.Background(), []string{dir})
	require.NoError(t, err)
	require.NotEmpty(t, report.Defects)
	for _, d := range report.Defects {
		assert.Contains(t, enabled, d.Pattern)
	}
	assert.Equal(t, len(report.Defects), report.Summary.Total)
}

func TestAnalyzeSource_CallCycles(t *testing.T) {
	a := newAnalyzer(t, nil)
	res := analyzeSource(t, a, "def ping(n):\n    return pong(n - 1)\n\ndef pong(n):\n    return ping(n)\n")

	assert.Equal(t, [][]string{{"ping", "pong"}}, res.Cycles)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, app.CodeCircularCall, d.Code)
	assert.Equal(t, app.PatternCircularCall, d.Pattern)
	assert.Equal(t, 1, d.Line)
	assert.Equal(t, "call cycle: ping -> pong -> ping", d.Message)
	assert.Equal(t, 2, res.CallGraph.Functions)
	require.NotNil(t, res.Graph())
	assert.NotEmpty(t, res.Coupling)
}

func TestAnalyzeSource_Cache(t *testing.T) {
	a := newAnalyzer(t, only("division_by_zero"))
	first := analyzeSource(t, a, "y = 1 / 0\n")
	again := analyzeSource(t, a, "y = 1 / 0\n")
	assert.Equal(t, first, again)

	changed := analyzeSource(t, a, "y = 1 / 2\n")
	assert.Empty(t, changed.Defects)

	a.Forget("case.py")
	assert.Len(t, analyzeSource(t, a, "y = 1 / 0\n").Defects, 1)
}

func TestReport_Totals(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.py": "def f():\n    return 1\n\ndef g():\n    if f():\n        return 2\n    return 3\n",
		"b.py": "class K:\n    def m(self):\n        pass\n",
	})
	a := newAnalyzer(t, nil)
	report, err := a.AnalyzePaths(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, defect.Medium, report.SeverityFilter)
	assert.Equal(t, 2, report.Totals.FilesAnalyzed)
	assert.Equal(t, 3, report.Totals.TotalFunctions)
	assert.Equal(t, 1, report.Totals.TotalClasses)
	assert.InDelta(t, 4.0/3.0, report.Totals.AvgComplexity, 1e-9)
	assert.Equal(t, len(report.Defects), sum(report.CountBySeverity()))
	assert.Equal(t, len(report.Defects), report.Summary.Total)
}

func TestAnalyzePaths_MissingRoot(t *testing.T) {
	a := newAnalyzer(t, nil)
	_, err := a.AnalyzePaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func sum(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
