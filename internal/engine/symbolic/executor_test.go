package symbolic_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/parser"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/engine/solver"
	"pyscan/internal/engine/symbolic"
)

var both = symbolic.Checks{DivisionByZero: true, Unreachable: true}

func model(t *testing.T, src string) *ir.Model {
	t.Helper()
	m, err := parser.New().Parse("case.py", []byte(src))
	require.NoError(t, err)
	return m
}

func analyze(t *testing.T, src string, opts symbolic.Options, checks symbolic.Checks) symbolic.Result {
	t.Helper()
	ex, err := symbolic.NewExecutor(opts, nil)
	require.NoError(t, err)
	res, err := ex.Analyze(context.Background(), model(t, src), checks)
	require.NoError(t, err)
	assert.Equal(t, res.Stats.Pushes, res.Stats.Pops, "every pushed frame must be popped")
	return res
}

func TestAnalyze_UnguardedDivisor(t *testing.T) {
	res := analyze(t, "def f(a, b):\n    return a / b\n", symbolic.Options{}, both)

	require.Len(t, res.Defects, 1)
	d := res.Defects[0]
	assert.Equal(t, patterns.DivisionByZeroSymbolic, d.Pattern)
	assert.Equal(t, defect.High, d.Severity)
	assert.Equal(t, 2, d.Line)
	assert.Equal(t, "case.py", d.File)
	assert.Contains(t, d.Description, "b = 0")
	assert.Equal(t, 1, res.Stats.Functions)
}

func TestAnalyze_DivisorProvedNonZero(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"guarded", "def f(a, b):\n    if b != 0:\n        return a / b\n    return 0\n"},
		{"asserted", "def f(a, b):\n    assert b > 0\n    return a // b\n"},
		{"constant", "def f(a):\n    return a % 2\n"},
		{"str annotation", "def f(a, b: str):\n    return a / b\n"},
		{"joined branches", "def f(x):\n    if x > 0:\n        d = 2\n    else:\n        d = 3\n    return x / d\n"},
		{"module level", "a = 1\nb = 0\nc = a / b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(t, tt.src, symbolic.Options{}, both)
			assert.Empty(t, res.Defects)
		})
	}
}

func TestAnalyze_DivisorCanBeZero(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"len", "def f(items):\n    return 10 / len(items)\n", 2},
		{"after assignment", "def f(a):\n    d = a - 1\n    return 4 // d\n", 3},
		{"augmented", "def f(total, n):\n    total /= n\n    return total\n", 2},
		{"wrong guard", "def f(a, b):\n    if b > 5:\n        return a\n    return a / b\n", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(t, tt.src, symbolic.Options{}, both)
			require.Len(t, res.Defects, 1)
			assert.Equal(t, tt.line, res.Defects[0].Line)
		})
	}
}

func TestAnalyze_ContradictoryElif(t *testing.T) {
	src := "def f(x):\n    if x > 0:\n        return 1\n    elif x > 0:\n        return 2\n"
	res := analyze(t, src, symbolic.Options{}, both)

	require.Len(t, res.Defects, 1)
	d := res.Defects[0]
	assert.Equal(t, patterns.UnreachableCode, d.Pattern)
	assert.Equal(t, defect.Medium, d.Severity)
	assert.Equal(t, 0, d.Line)
	assert.Contains(t, d.Context, "line 5")
}

func TestAnalyze_EmptyRange(t *testing.T) {
	res := analyze(t, "def f():\n    for i in range(0):\n        print(i)\n", symbolic.Options{}, both)
	require.Len(t, res.Defects, 1)
	assert.Equal(t, patterns.UnreachableCode, res.Defects[0].Pattern)
}

func TestAnalyze_OneUnreachablePerFunction(t *testing.T) {
	src := "def f(x):\n" +
		"    if x > 1:\n        if x < 0:\n            return 1\n" +
		"    if x < 1:\n        if x > 3:\n            return 2\n"
	res := analyze(t, src, symbolic.Options{}, symbolic.Checks{Unreachable: true})
	assert.Len(t, res.Defects, 1)
}

func TestAnalyze_ChecksSelectFindings(t *testing.T) {
	src := "def f(a, b):\n    if a > 0:\n        if a < 0:\n            return a / b\n    return 0\n"

	div := analyze(t, src, symbolic.Options{}, symbolic.Checks{DivisionByZero: true})
	for _, d := range div.Defects {
		assert.Equal(t, patterns.DivisionByZeroSymbolic, d.Pattern)
	}

	unreach := analyze(t, src, symbolic.Options{}, symbolic.Checks{Unreachable: true})
	require.Len(t, unreach.Defects, 1)
	assert.Equal(t, patterns.UnreachableCode, unreach.Defects[0].Pattern)

	none := analyze(t, src, symbolic.Options{}, symbolic.Checks{})
	assert.Empty(t, none.Defects)
	assert.Zero(t, none.Stats.Functions)
}

func TestAnalyze_DepthLimit(t *testing.T) {
	src := "def f(a, b):\n" +
		"    if a > 0:\n" +
		"        if a > 1:\n" +
		"            if a > 2:\n" +
		"                if a > 3:\n" +
		"                    return a / b\n" +
		"    return 0\n"
	res := analyze(t, src, symbolic.Options{MaxDepth: 2}, both)
	assert.Empty(t, res.Defects)
	assert.Positive(t, res.Stats.DepthLimited)
}

// nestedIfs wraps `return a / b` in n nested ifs, so the division sits at
// statement depth n.
func nestedIfs(n int) string {
	var b strings.Builder
	b.WriteString("def f(a, b):\n")
	for i := range n {
		fmt.Fprintf(&b, "%sif a > %d:\n", strings.Repeat("    ", i+1), i)
	}
	fmt.Fprintf(&b, "%sreturn a / b\n", strings.Repeat("    ", n+1))
	b.WriteString("    return 0\n")
	return b.String()
}

func TestAnalyze_DivisionAtMaxDepth(t *testing.T) {
	for _, n := range []int{8, 10} {
		t.Run(fmt.Sprintf("depth %d", n), func(t *testing.T) {
			res := analyze(t, nestedIfs(n), symbolic.Options{MaxDepth: 10}, both)
			require.Len(t, res.Defects, 1)
			assert.Equal(t, patterns.DivisionByZeroSymbolic, res.Defects[0].Pattern)
			assert.Zero(t, res.Stats.DepthLimited)
		})
	}

	res := analyze(t, nestedIfs(11), symbolic.Options{MaxDepth: 10}, both)
	assert.Empty(t, res.Defects)
	assert.Positive(t, res.Stats.DepthLimited)
}

func TestAnalyze_ExpressionDepthIsSeparate(t *testing.T) {
	src := "def f(a, b):\n    return a / b" + strings.Repeat(" + 1", 80) + "\n"
	res := analyze(t, src, symbolic.Options{MaxDepth: 1}, both)
	assert.Empty(t, res.Defects)
	assert.Positive(t, res.Stats.ExprLimited)
	assert.Zero(t, res.Stats.DepthLimited)

	shallow := analyze(t, "def f(a, b):\n    return a / b + 1 + 1\n", symbolic.Options{MaxDepth: 1}, both)
	assert.Len(t, shallow.Defects, 1)
}

func TestAnalyze_BoolOperands(t *testing.T) {
	compared := analyze(t, "def f(a, b, flag=False):\n    if flag == 0:\n        pass\n    return a / b\n", symbolic.Options{}, both)
	require.Len(t, compared.Defects, 1)
	assert.Equal(t, 4, compared.Defects[0].Line)
	assert.Empty(t, compared.Diagnostics)

	divided := analyze(t, "def f(a, flag: bool):\n    return a / flag\n", symbolic.Options{}, both)
	assert.Empty(t, divided.Defects)
	assert.Empty(t, divided.Diagnostics)
	assert.Positive(t, divided.Stats.Skipped)
}

func TestAnalyze_SolverBudgetExhausted(t *testing.T) {
	src := "def f(a, b):\n    return a / (b - 2)\n"

	full := analyze(t, src, symbolic.Options{}, both)
	require.Len(t, full.Defects, 1)
	assert.Contains(t, full.Defects[0].Description, "b = 2")

	starved := analyze(t, src, symbolic.Options{Solver: solver.Options{StepBudget: 1}}, both)
	assert.Empty(t, starved.Defects)
	assert.Empty(t, starved.Diagnostics)
	assert.Positive(t, starved.Stats.Inconclusive)
}

func TestAnalyze_HandlerSeesPreBodyBindings(t *testing.T) {
	src := "def f():\n" +
		"    d = 0\n" +
		"    try:\n" +
		"        foo()\n" +
		"        d = 5\n" +
		"    except ValueError:\n" +
		"        return 1 / d\n" +
		"    return 0\n"
	res := analyze(t, src, symbolic.Options{}, both)
	require.Len(t, res.Defects, 1)
	assert.Equal(t, 7, res.Defects[0].Line)

	safe := analyze(t, "def f():\n    d = 2\n    try:\n        foo()\n        d = 5\n    except ValueError:\n        return 1 / d\n    return 0\n", symbolic.Options{}, both)
	assert.Empty(t, safe.Defects)
}

func TestAnalyze_WhileBodyIsUnrolledOnce(t *testing.T) {
	src := "def f(n):\n" +
		"    while n > 0:\n" +
		"        x = 1\n" +
		"        y = 2\n" +
		"        z = 3\n" +
		"        w = n / 0\n" +
		"    return n\n"
	res := analyze(t, src, symbolic.Options{LoopUnroll: 3}, symbolic.Checks{DivisionByZero: true})
	assert.Empty(t, res.Defects, "statements past the unroll limit are not traversed")

	res = analyze(t, src, symbolic.Options{LoopUnroll: 4}, symbolic.Checks{DivisionByZero: true})
	require.Len(t, res.Defects, 1)
	assert.Equal(t, 6, res.Defects[0].Line)
}

func TestAnalyze_MethodsSkipSelf(t *testing.T) {
	src := "class C:\n    def ratio(self, a, b):\n        return a / b\n"
	res := analyze(t, src, symbolic.Options{}, both)
	require.Len(t, res.Defects, 1)
	assert.Equal(t, 3, res.Defects[0].Line)
}

func TestAnalyze_Cancelled(t *testing.T) {
	ex, err := symbolic.NewExecutor(symbolic.Options{}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ex.Analyze(ctx, model(t, "def f(a, b):\n    return a / b\n"), both)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCancelled))
}

func TestNewExecutor_UnknownBackend(t *testing.T) {
	_, err := symbolic.NewExecutor(symbolic.Options{Backend: "cvc5"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))
}

func TestChecksFor(t *testing.T) {
	c := symbolic.ChecksFor([]string{"sql_injection", patterns.UnreachableCode})
	assert.False(t, c.DivisionByZero)
	assert.True(t, c.Unreachable)
	assert.True(t, c.Any())
	assert.False(t, symbolic.ChecksFor(nil).Any())
}
