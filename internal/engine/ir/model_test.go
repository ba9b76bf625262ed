package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/parser"
)

func build(t *testing.T, src string) *ir.Model {
	t.Helper()
	m, err := parser.New().Parse("mod.py", []byte(src))
	require.NoError(t, err)
	return m
}

const sample = `import os
import sys as system
from typing import List, Dict

def helper(values):
    total = 0
    for v in values:
        if v > 0 and v < 10 or v == 42:
            total += v
    return total

class Worker:
    def run(self, n):
        try:
            return helper(range(n))
        except ValueError:
            return None

    def stop(self):
        unused = 1
        _ignored = 2
        self.run(0)
`

func TestBuild_Indices(t *testing.T) {
	m := build(t, sample)

	assert.Len(t, m.Functions, 3)
	assert.Len(t, m.Classes, 1)
	assert.Len(t, m.Imports, 3)

	run := m.FunctionByName("Worker.run")
	require.NotNil(t, run)
	assert.Equal(t, "Worker", run.Class)
	assert.Nil(t, m.FunctionByName("run"), "methods need their qualified name")
	assert.Same(t, m.ClassByName("Worker"), m.Classes[0])
	assert.Same(t, run, m.FunctionFor(run.Node))
}

func TestBuild_RejectsMissingRoot(t *testing.T) {
	_, err := ir.Build(nil, "x.py", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeParse))

	_, err = ir.Build(&ir.Node{Kind: ir.KindPass}, "x.py", nil)
	assert.True(t, errors.IsCode(err, errors.CodeParse))
}

func TestWalk_RestartsFromRoot(t *testing.T) {
	m := build(t, sample)

	var first, second []*ir.Node
	for n := range m.Walk() {
		first = append(first, n)
	}
	for n := range m.Walk() {
		second = append(second, n)
		if len(second) == 5 {
			break
		}
	}
	for n := range m.Walk() {
		_ = n
	}
	require.NotEmpty(t, first)
	assert.Same(t, m.Root, first[0])
	assert.Equal(t, first[:5], second)
}

func TestParentMap(t *testing.T) {
	m := build(t, sample)

	for n := range m.Walk() {
		if n == m.Root {
			assert.Nil(t, m.Parent(n))
			continue
		}
		parent := m.Parent(n)
		require.NotNil(t, parent, "node %s at line %d has no parent", n.Kind, n.Span.Line)
		assert.Contains(t, parent.Children(), n)
	}

	var ret *ir.Node
	for n := range m.Walk() {
		if n.Kind == ir.KindReturn && n.Span.Line == 15 {
			ret = n
		}
	}
	require.NotNil(t, ret)
	enclosing := m.EnclosingFunction(ret)
	require.NotNil(t, enclosing)
	assert.Equal(t, "Worker.run", enclosing.QualifiedName)
}

func TestCyclomaticComplexity(t *testing.T) {
	m := build(t, sample)

	// 1 + for + if + (and: 1) + (or: 1)
	assert.Equal(t, 5, m.FunctionByName("helper").Complexity)
	// 1 + try + except
	assert.Equal(t, 3, m.FunctionByName("Worker.run").Complexity)
	assert.Equal(t, 1, m.FunctionByName("Worker.stop").Complexity)

	match := build(t, `def route(cmd):
    match cmd:
        case "a":
            return 1
        case "b":
            return 2
        case _:
            return 3
`)
	assert.Equal(t, 4, match.FunctionByName("route").Complexity)
}

func TestComputeMetrics(t *testing.T) {
	m := build(t, sample)

	first := m.ComputeMetrics()
	second := m.ComputeMetrics()
	assert.Equal(t, first, second)

	assert.Equal(t, "mod.py", first.FilePath)
	assert.Equal(t, 23, first.TotalLines)
	assert.Equal(t, 3, first.FunctionCount)
	assert.Equal(t, 1, first.ClassCount)
	assert.Equal(t, 3, first.ImportCount)
	assert.InDelta(t, 3.0, first.AvgCyclomaticComplexity, 1e-9)
	assert.Greater(t, first.AvgFunctionLength, 0.0)

	empty := build(t, "x = 1\n")
	snap := empty.ComputeMetrics()
	assert.Equal(t, 0, snap.FunctionCount)
	assert.Equal(t, 1.0, snap.AvgCyclomaticComplexity)
	assert.Equal(t, 0.0, snap.AvgFunctionLength)
	assert.Equal(t, 1, snap.VariableCount)
}

func TestUnusedVariables(t *testing.T) {
	m := build(t, sample)

	unused := m.UnusedVariables()
	require.Len(t, unused, 1)
	assert.Equal(t, "unused", unused[0].Name)
	assert.Equal(t, []int{20}, unused[0].Lines)
}

func TestUnusedImports(t *testing.T) {
	m := build(t, sample)

	var names []string
	for _, u := range m.UnusedImports() {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"os", "sys as system", "List", "Dict"}, names)

	used := build(t, `import os.path
from __future__ import annotations
from x import *
from y import z
__all__ = ["z"]
print(os.path.join("a"))
`)
	assert.Empty(t, used.UnusedImports())
}

func TestCallsAndControlFlow(t *testing.T) {
	m := build(t, sample)

	var calls []string
	for _, c := range m.Calls() {
		if c.Receiver != "" {
			calls = append(calls, c.Receiver+"."+c.Function)
			continue
		}
		calls = append(calls, c.Function)
	}
	assert.Equal(t, []string{"helper", "range", "self.run"}, calls)

	flow := m.ControlFlow()
	require.Len(t, flow, 2)
	assert.Equal(t, ir.KindFor, flow[0].Kind)
	assert.Equal(t, "values", flow[0].Test)
	assert.Equal(t, ir.KindIf, flow[1].Kind)
	assert.False(t, flow[1].HasElse)
}

func TestLineText(t *testing.T) {
	m := build(t, sample)
	assert.Equal(t, "def helper(values):", m.LineText(5))
	assert.Empty(t, m.LineText(0))
	assert.Empty(t, m.LineText(1000))
	assert.True(t, m.ValidLine(0))
	assert.False(t, m.ValidLine(m.TotalLines+1))
}
