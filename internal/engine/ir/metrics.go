package ir

import (
	"sort"
	"strings"
)

// MetricsSnapshot is the per-file summary handed to reporters.
type MetricsSnapshot struct {
	FilePath                string  `json:"file_path"`
	TotalLines              int     `json:"total_lines"`
	FunctionCount           int     `json:"function_count"`
	ClassCount              int     `json:"class_count"`
	AvgFunctionLength       float64 `json:"avg_function_length"`
	AvgCyclomaticComplexity float64 `json:"avg_cyclomatic_complexity"`
	ImportCount             int     `json:"import_count"`
	VariableCount           int     `json:"variable_count"`
}

// CyclomaticComplexity counts decision points in the subtree rooted at fn:
// one for the function itself, one per If, While, For, Try and except
// clause, one per extra operand of an and/or chain and one per match arm.
func CyclomaticComplexity(fn *Node) int {
	complexity := 1
	for n := range WalkFrom(fn) {
		switch n.Kind {
		case KindIf, KindWhile, KindFor, KindTry, KindExceptHandler:
			complexity++
		case KindBoolOp:
			if len(n.Values) > 1 {
				complexity += len(n.Values) - 1
			}
		case KindMatch:
			complexity += len(n.Cases)
		}
	}
	return complexity
}

// ComputeMetrics derives the snapshot from the indices. It does not touch
// the model, so repeated calls return identical values.
func (m *Model) ComputeMetrics() MetricsSnapshot {
	snap := MetricsSnapshot{
		FilePath:                m.Path,
		TotalLines:              m.TotalLines,
		FunctionCount:           len(m.Functions),
		ClassCount:              len(m.Classes),
		ImportCount:             len(m.Imports),
		VariableCount:           m.assignedNameCount(),
		AvgCyclomaticComplexity: 1,
	}
	if len(m.Functions) > 0 {
		var length, complexity int
		for _, fd := range m.Functions {
			length += fd.Length()
			complexity += fd.Complexity
		}
		snap.AvgFunctionLength = float64(length) / float64(len(m.Functions))
		snap.AvgCyclomaticComplexity = float64(complexity) / float64(len(m.Functions))
	}
	return snap
}

func (m *Model) assignedNameCount() int {
	count := 0
	for _, sites := range m.Variables {
		for _, s := range sites {
			if s.Ctx == Store {
				count++
				break
			}
		}
	}
	return count
}

type UnusedVariable struct {
	Name  string
	Lines []int
}

// UnusedVariables lists names written at least once and never read anywhere
// in the file. Names starting with an underscore are treated as
// intentionally unused.
func (m *Model) UnusedVariables() []UnusedVariable {
	var out []UnusedVariable
	for name, sites := range m.Variables {
		if strings.HasPrefix(name, "_") {
			continue
		}
		var writes []int
		read := false
		for _, s := range sites {
			switch s.Ctx {
			case Store:
				writes = append(writes, s.Line)
			case Load:
				read = true
			}
		}
		if read || len(writes) == 0 {
			continue
		}
		out = append(out, UnusedVariable{Name: name, Lines: writes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type UnusedImport struct {
	Name string
	Line int
}

// UnusedImports lists imported bindings that no expression reads. Star and
// __future__ imports are never reported.
func (m *Model) UnusedImports() []UnusedImport {
	used := make(map[string]bool)
	for name, sites := range m.Variables {
		for _, s := range sites {
			if s.Ctx == Load {
				used[name] = true
				break
			}
		}
	}
	exported := m.exportedNames()

	var out []UnusedImport
	for _, rec := range m.Imports {
		if rec.Module == "__future__" {
			continue
		}
		for _, alias := range rec.Aliases {
			if alias.Name == "*" {
				continue
			}
			bound := alias.Bound()
			if rec.Kind == ImportDirect && alias.AsName == "" {
				bound, _, _ = strings.Cut(alias.Name, ".")
			}
			if used[bound] || exported[bound] {
				continue
			}
			display := alias.Name
			if alias.AsName != "" {
				display += " as " + alias.AsName
			}
			out = append(out, UnusedImport{Name: display, Line: rec.Line})
		}
	}
	return out
}

// exportedNames collects string entries of a module-level __all__ list.
func (m *Model) exportedNames() map[string]bool {
	out := make(map[string]bool)
	for _, stmt := range m.Root.Body {
		if stmt.Kind != KindAssign || len(stmt.Targets) != 1 || !stmt.Targets[0].IsName("__all__") {
			continue
		}
		if stmt.Value == nil || stmt.Value.Kind != KindCollection {
			continue
		}
		for _, v := range stmt.Value.Values {
			if v.Kind == KindConstant && v.Const != nil && v.Const.Kind == ConstString {
				out[v.Const.Str] = true
			}
		}
	}
	return out
}

type CallSite struct {
	Function string
	// Receiver is the dotted object of a method call, empty for plain calls.
	Receiver string
	Line     int
	ArgCount int
	Node     *Node
}

// Calls lists every call whose callee is a name or attribute chain.
func (m *Model) Calls() []CallSite {
	var out []CallSite
	for n := range m.Walk() {
		if n.Kind != KindCall || n.Func == nil {
			continue
		}
		switch n.Func.Kind {
		case KindName:
			out = append(out, CallSite{Function: n.Func.Name, Line: n.Span.Line, ArgCount: len(n.Args), Node: n})
		case KindAttribute:
			out = append(out, CallSite{
				Function: n.Func.Name,
				Receiver: DottedName(n.Func.Value),
				Line:     n.Span.Line,
				ArgCount: len(n.Args),
				Node:     n,
			})
		}
	}
	return out
}

type FlowNode struct {
	Kind    Kind
	Line    int
	Test    string
	HasElse bool
}

// ControlFlow lists the branch and loop statements of the file.
func (m *Model) ControlFlow() []FlowNode {
	var out []FlowNode
	for n := range m.Walk() {
		switch n.Kind {
		case KindIf, KindWhile:
			out = append(out, FlowNode{Kind: n.Kind, Line: n.Span.Line, Test: n.Test.textOrEmpty(), HasElse: len(n.Orelse) > 0})
		case KindFor:
			out = append(out, FlowNode{Kind: n.Kind, Line: n.Span.Line, Test: n.Iter.textOrEmpty(), HasElse: len(n.Orelse) > 0})
		}
	}
	return out
}

func (n *Node) textOrEmpty() string {
	if n == nil {
		return ""
	}
	return n.Text
}
