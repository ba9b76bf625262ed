package parser

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/ir"
)

func parse(t *testing.T, src string) *ir.Model {
	t.Helper()
	m, err := New().Parse("sample.py", []byte(src))
	require.NoError(t, err)
	return m
}

func TestParse_FunctionsAndClasses(t *testing.T) {
	src := `import os
from collections import OrderedDict as OD, defaultdict

class Repo(Base, metaclass=Meta):
    limit = 10

    @staticmethod
    def load(path: str, *args, retries: int = 3, **kw) -> dict:
        """Load a repo."""
        return {}

def main():
    pass
`
	m := parse(t, src)

	require.Len(t, m.Classes, 1)
	cls := m.Classes[0]
	assert.Equal(t, "Repo", cls.Name)
	assert.Equal(t, []string{"Base"}, cls.Bases)
	assert.Equal(t, []string{"limit"}, cls.Attributes)
	require.Len(t, cls.Methods, 1)

	load := m.FunctionByName("Repo.load")
	require.NotNil(t, load)
	assert.Equal(t, "Repo", load.Class)
	assert.Equal(t, []string{"path", "args", "retries", "kw"}, load.Params)
	assert.Equal(t, ir.ParamVarArgs, load.ParamSpecs[1].Kind)
	assert.Equal(t, ir.ParamKeywordOnly, load.ParamSpecs[2].Kind)
	assert.Equal(t, ir.ParamVarKeywords, load.ParamSpecs[3].Kind)
	assert.Equal(t, "dict", load.ReturnType)
	assert.Equal(t, []string{"staticmethod"}, load.Decorators)
	assert.Equal(t, "Load a repo.", load.Docstring)
	assert.Equal(t, 8, load.Span.Line)

	main := m.FunctionByName("main")
	require.NotNil(t, main)
	assert.Empty(t, main.Class)

	require.Len(t, m.Imports, 2)
	assert.Equal(t, ir.ImportDirect, m.Imports[0].Kind)
	assert.Equal(t, "os", m.Imports[0].Module)
	assert.Equal(t, ir.ImportFromModule, m.Imports[1].Kind)
	assert.Equal(t, "collections", m.Imports[1].Module)
	assert.Equal(t, []string{"OrderedDict", "defaultdict"}, m.Imports[1].Names)
	assert.Equal(t, "OD", m.Imports[1].Aliases[0].AsName)
}

func TestParse_ElifBecomesNestedIf(t *testing.T) {
	src := `def f(x):
    if x > 0:
        a = 1
    elif x < 0:
        a = 2
    else:
        a = 3
    return a
`
	m := parse(t, src)
	fn := m.FunctionByName("f")
	require.NotNil(t, fn)
	require.Len(t, fn.Body(), 2)

	top := fn.Body()[0]
	require.Equal(t, ir.KindIf, top.Kind)
	require.Equal(t, ir.KindCompare, top.Test.Kind)
	assert.Equal(t, []string{">"}, top.Test.Ops)
	require.Len(t, top.Orelse, 1)

	elif := top.Orelse[0]
	assert.Equal(t, ir.KindIf, elif.Kind)
	assert.Equal(t, 4, elif.Span.Line)
	assert.Equal(t, []string{"<"}, elif.Test.Ops)
	require.Len(t, elif.Orelse, 1)
	assert.Equal(t, ir.KindAssign, elif.Orelse[0].Kind)

	assert.Equal(t, 3, fn.Complexity)
}

func TestParse_Expressions(t *testing.T) {
	src := `result = a and b and c or d
ok = key not in table
y = -x // 2
name = obj.attr[0]
call(1, 2.5, "s", None, True, flag=False)
first, *rest = items
`
	m := parse(t, src)
	body := m.Root.Body
	require.Len(t, body, 6)

	or := body[0].Value
	require.Equal(t, ir.KindBoolOp, or.Kind)
	assert.Equal(t, "or", or.Op)
	require.Len(t, or.Values, 2)
	assert.Equal(t, "and", or.Values[0].Op)
	assert.Len(t, or.Values[0].Values, 3)

	cmp := body[1].Value
	require.Equal(t, ir.KindCompare, cmp.Kind)
	assert.Equal(t, []string{"not in"}, cmp.Ops)

	div := body[2].Value
	require.Equal(t, ir.KindBinaryOp, div.Kind)
	assert.Equal(t, "//", div.Op)
	assert.Equal(t, ir.KindUnaryOp, div.Left.Kind)
	assert.Equal(t, int64(2), div.Right.Const.Int)

	sub := body[3].Value
	require.Equal(t, ir.KindSubscript, sub.Kind)
	assert.Equal(t, "obj.attr", ir.DottedName(sub.Value))

	call := body[4].Value
	require.Equal(t, ir.KindCall, call.Kind)
	assert.Equal(t, "call", call.CallName())
	require.Len(t, call.Args, 5)
	assert.Equal(t, ir.ConstFloat, call.Args[1].Const.Kind)
	assert.Equal(t, "s", call.Args[2].Const.Str)
	assert.True(t, call.Args[3].IsNone())
	assert.True(t, call.Args[4].Const.Bool)
	require.Len(t, call.Keywords, 1)
	assert.Equal(t, "flag", call.Keywords[0].Name)

	unpack := body[5]
	require.Equal(t, ir.KindAssign, unpack.Kind)
	require.Len(t, unpack.Targets, 1)
	assert.Equal(t, ir.KindCollection, unpack.Targets[0].Kind)

	stores := 0
	for _, site := range m.Variables["rest"] {
		if site.Ctx == ir.Store {
			stores++
		}
	}
	assert.Equal(t, 1, stores)
}

func TestParse_StatementsAndContexts(t *testing.T) {
	src := `with open(p) as fh:
    data = fh.read()
try:
    run()
except ValueError as exc:
    log(exc)
finally:
    done()
for i in range(3):
    total += i
while n:
    n -= 1
`
	m := parse(t, src)
	body := m.Root.Body
	require.Len(t, body, 4)

	with := body[0]
	require.Equal(t, ir.KindWith, with.Kind)
	require.Len(t, with.Items, 1)
	assert.Equal(t, "open", with.Items[0].Value.CallName())
	assert.True(t, with.Items[0].Target.IsName("fh"))
	assert.Equal(t, ir.Store, with.Items[0].Target.Ctx)

	try := body[1]
	require.Equal(t, ir.KindTry, try.Kind)
	require.Len(t, try.Handlers, 1)
	assert.True(t, try.Handlers[0].Test.IsName("ValueError"))
	assert.Equal(t, "exc", try.Handlers[0].Name)
	require.Len(t, try.Finalbody, 1)

	loop := body[2]
	require.Equal(t, ir.KindFor, loop.Kind)
	assert.Equal(t, ir.Store, loop.Target.Ctx)
	require.Len(t, loop.Body, 1)
	assert.Equal(t, ir.KindAugAssign, loop.Body[0].Kind)
	assert.Equal(t, "+", loop.Body[0].Op)

	assert.Equal(t, ir.KindWhile, body[3].Kind)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := New().Parse("broken.py", []byte("def f(:\n    pass\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeParse))
	line, col, ok := errors.Location(err)
	require.True(t, ok)
	assert.Equal(t, 1, line)
	assert.GreaterOrEqual(t, col, 1)
}

func TestParse_SyntaxErrorSnippetKeepsRunes(t *testing.T) {
	src := "x = " + strings.Repeat("é", 60) + " $ " + strings.Repeat("ü", 60) + "\n"
	_, err := New().Parse("accents.py", []byte(src))
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.NotContains(t, err.Error(), `\x`)

	assert.Equal(t, "ééé", clip("éééé", 3))
	assert.Equal(t, "ab", clip("ab", 3))
	assert.Len(t, []rune(clip(strings.Repeat("日本", 30), 40)), 40)

	p := New()
	p.MaxTextLen = 5
	m, err := p.Parse("names.py", []byte("ééééééé = 1\n"))
	require.NoError(t, err)
	require.NotEmpty(t, m.Root.Body)
	assert.Equal(t, "ééééé", m.Root.Body[0].Text)
}

func TestParse_EmptySource(t *testing.T) {
	m := parse(t, "")
	assert.Empty(t, m.Root.Body)
	assert.Equal(t, 1, m.TotalLines)
}

func TestParse_Concurrent(t *testing.T) {
	p := New()
	src := []byte("def f(a, b):\n    return a / b\n")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := p.Parse("c.py", src)
			if err == nil && len(m.Functions) != 1 {
				err = errors.New(errors.CodeInternal, "unexpected function count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, p.pool.Borrowed())
	assert.GreaterOrEqual(t, p.pool.Minted(), 1)
}
