package patterns_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/patterns"
)

func noop(*ir.Node, *patterns.FileContext) ([]defect.Defect, error) { return nil, nil }

func TestNewRegistry_DuplicateAcrossSets(t *testing.T) {
	a := patterns.RuleSet{Category: patterns.CategorySecurity, Rules: []patterns.Rule{
		{ID: "shared", Severity: defect.High, Detect: noop},
	}}
	b := patterns.RuleSet{Category: patterns.CategoryPerformance, Rules: []patterns.Rule{
		{ID: "shared", Severity: defect.Low, Detect: noop},
	}}

	_, err := patterns.NewRegistry(a, b)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	assert.Contains(t, err.Error(), "shared")
}

func TestNewRegistry_RejectsBrokenRules(t *testing.T) {
	tests := []struct {
		name string
		rule patterns.Rule
	}{
		{"empty id", patterns.Rule{Severity: defect.Low, Detect: noop}},
		{"bad severity", patterns.Rule{ID: "x", Detect: noop}},
		{"no detector", patterns.Rule{ID: "x", Severity: defect.Low}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := patterns.NewRegistry(patterns.RuleSet{Category: patterns.CategoryBasic, Rules: []patterns.Rule{tt.rule}})
			assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
		})
	}
}

func TestDefaultRegistry_Info(t *testing.T) {
	reg, err := patterns.DefaultRegistry()
	require.NoError(t, err)

	info, err := reg.Info("sql_injection")
	require.NoError(t, err)
	assert.Equal(t, patterns.CategoryBasic, info.Category)
	assert.Equal(t, defect.Critical, info.Severity)

	info, err = reg.Info("command_injection")
	require.NoError(t, err)
	assert.Equal(t, patterns.CategorySecurity, info.Category)

	info, err = reg.Info("long_function")
	require.NoError(t, err)
	assert.Equal(t, patterns.CategoryBasic, info.Category)
	assert.Equal(t, "function_length", info.ThresholdKey)

	info, err = reg.Info(patterns.UnreachableCode)
	require.NoError(t, err)
	assert.True(t, info.Symbolic)

	_, err = reg.Info("nope")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	perf := reg.List(patterns.CategoryPerformance)
	assert.Len(t, perf, 7)
	ids := reg.IDs()
	assert.IsIncreasing(t, ids)
	assert.Len(t, reg.List(), len(ids))

	for _, id := range ids {
		assert.NotEmpty(t, patterns.Suggest(id), "no suggestion for %s", id)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	reg, err := patterns.DefaultRegistry()
	require.NoError(t, err)

	all, err := reg.Resolve(nil, []string{"missing_type_hints"})
	require.NoError(t, err)
	assert.NotContains(t, all, "missing_type_hints")
	assert.Len(t, all, len(reg.IDs())-1)

	some, err := reg.Resolve([]string{"division_by_zero", "sql_injection", "division_by_zero"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"division_by_zero", "sql_injection"}, some)

	_, err = reg.Resolve([]string{"division_by_zero", "bogus"}, nil)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))

	valid, invalid := reg.Split([]string{"bogus", "resource_leak"})
	assert.Equal(t, []string{"resource_leak"}, valid)
	assert.Equal(t, []string{"bogus"}, invalid)

	assert.True(t, reg.SymbolicEnabled(all))
	assert.False(t, reg.SymbolicEnabled(some))
}

func TestRegistry_SummarizeAndStatistics(t *testing.T) {
	reg, err := patterns.DefaultRegistry()
	require.NoError(t, err)

	defects := []defect.Defect{
		{Pattern: "command_injection", Severity: defect.Critical, File: "a.py", Line: 4},
		{Pattern: "division_by_zero", Severity: defect.High, File: "a.py", Line: 2},
		{Pattern: "division_by_zero", Severity: defect.High, File: "a.py", Line: 2},
		{Pattern: patterns.UnreachableCode, Severity: defect.Medium, File: "a.py", Line: 0},
	}
	s := reg.Summarize(defects)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.ByPattern["division_by_zero"])
	assert.Equal(t, 1, s.ByCategory[patterns.CategorySecurity])
	assert.Equal(t, 3, s.ByCategory[patterns.CategoryBasic])
	assert.Equal(t, []int{2, 4}, s.AffectedLines["a.py"])

	st := reg.Statistics()
	assert.Equal(t, len(reg.IDs()), st.Total)
	assert.Equal(t, 2, st.Symbolic)
	assert.Equal(t, 7, st.ByCategory[patterns.CategorySecurity])
	assert.Equal(t, 13, st.ByCategory[patterns.CategoryBasic])
}
