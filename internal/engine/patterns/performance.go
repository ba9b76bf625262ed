package patterns

import (
	"fmt"
	"sort"
	"strings"

	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

const (
	maxLoopDepth       = 3
	maxGenerators      = 2
	maxGlobalAccesses  = 5
	ThresholdLoopDepth = "loop_depth"
)

func PerformanceRules() RuleSet {
	return RuleSet{
		Category: CategoryPerformance,
		Rules: []Rule{
			{
				ID:               "deep_nested_loops",
				Description:      "Loops nested three or more levels deep",
				Severity:         defect.Medium,
				ThresholdKey:     ThresholdLoopDepth,
				DefaultThreshold: maxLoopDepth,
				Detect:           detectDeepNestedLoops,
			},
			{ID: "string_concat_in_loop", Description: "String built with += inside a for loop", Severity: defect.Medium, Detect: detectConcatInLoop},
			{ID: "loop_invariant_code", Description: "Assignment inside a loop that does not depend on any variable", Severity: defect.Low, Detect: detectLoopInvariant},
			{ID: "complex_list_comprehension", Description: "List comprehension with more than two for clauses", Severity: defect.Low, Detect: detectComplexComprehension},
			{ID: "frequent_global_access", Description: "Function reads many non-local names", Severity: defect.Low, Detect: detectGlobalAccess},
			{ID: "inefficient_membership_test", Description: "Membership test against a list literal", Severity: defect.Medium, Detect: detectListMembership},
			{ID: "unnecessary_copy", Description: "Iterating over a fresh copy of a sequence", Severity: defect.Low, Detect: detectUnnecessaryCopy},
		},
	}
}

// detectDeepNestedLoops reports every loop of a function that sits at or
// below the depth limit. Nested functions are reported on their own.
func detectDeepNestedLoops(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	fd := fc.Model.FunctionFor(n)
	if fd == nil {
		return nil, nil
	}
	var out []defect.Defect
	var visit func(node *ir.Node, depth int)
	visit = func(node *ir.Node, depth int) {
		for _, child := range node.Children() {
			if child.Kind == ir.KindFunctionDef || child.Kind == ir.KindClassDef {
				continue
			}
			d := depth
			if child.Kind == ir.KindFor || child.Kind == ir.KindWhile {
				d++
				if d >= fc.Threshold {
					out = append(out, fc.finding(child, fmt.Sprintf("loop nested %d levels deep in '%s'", d, fd.QualifiedName), child.Text))
				}
			}
			visit(child, d)
		}
	}
	visit(n, 0)
	return out, nil
}

func detectConcatInLoop(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindFor {
		return nil, nil
	}
	for _, stmt := range n.Body {
		if stmt.Kind != ir.KindAugAssign || stmt.Op != "+" || len(stmt.Targets) == 0 || !stmt.Targets[0].IsName() {
			continue
		}
		if isNumeric(stmt.Value) {
			continue
		}
		desc := fmt.Sprintf("'%s' grows with += on every iteration", stmt.Targets[0].Name)
		return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
	}
	return nil, nil
}

func isNumeric(n *ir.Node) bool {
	if n == nil || n.Kind != ir.KindConstant || n.Const == nil {
		return false
	}
	return n.Const.Kind == ir.ConstInt || n.Const.Kind == ir.ConstFloat
}

func detectLoopInvariant(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindFor {
		return nil, nil
	}
	var names []string
	for _, stmt := range n.Body {
		if stmt.Kind != ir.KindAssign || stmt.Value == nil || readsAnyName(stmt.Value) {
			continue
		}
		names = append(names, targetNames(stmt)...)
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	desc := fmt.Sprintf("loop recomputes values that never change: %s", strings.Join(names, ", "))
	return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
}

func readsAnyName(expr *ir.Node) bool {
	for n := range ir.WalkFrom(expr) {
		if n.Kind == ir.KindName {
			return true
		}
	}
	return false
}

func detectComplexComprehension(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindListComp || len(n.Generators) <= maxGenerators {
		return nil, nil
	}
	desc := fmt.Sprintf("comprehension has %d for clauses", len(n.Generators))
	return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
}

var builtinNames = set(
	"print", "len", "range", "str", "int", "float", "bool", "list", "dict", "set", "tuple",
	"isinstance", "enumerate", "zip", "min", "max", "sum", "sorted", "open", "super",
	"None", "True", "False", "self", "cls", "Exception", "ValueError", "TypeError", "KeyError",
)

// detectGlobalAccess counts reads of names that are neither parameters,
// locals of the function, nor builtins.
func detectGlobalAccess(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	fd := fc.Model.FunctionFor(n)
	if fd == nil {
		return nil, nil
	}
	local := set(fd.Params...)
	var reads []*ir.Node
	for child := range ir.WalkFrom(n) {
		if !child.IsName() {
			continue
		}
		if child.Ctx == ir.Store && fc.Model.Scope(child) == n {
			local[child.Name] = true
			continue
		}
		if child.Ctx == ir.Load {
			reads = append(reads, child)
		}
	}
	count := 0
	for _, r := range reads {
		if !local[r.Name] && !builtinNames[r.Name] {
			count++
		}
	}
	if count <= maxGlobalAccesses {
		return nil, nil
	}
	desc := fmt.Sprintf("function '%s' reads module-level names %d times", fd.QualifiedName, count)
	return []defect.Defect{fc.finding(n, desc, fd.QualifiedName)}, nil
}

func detectListMembership(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCompare {
		return nil, nil
	}
	for i, op := range n.Ops {
		if op != "in" && op != "not in" {
			continue
		}
		if i >= len(n.Comparators) {
			break
		}
		c := n.Comparators[i]
		if c.Kind == ir.KindCollection && c.Op == "list" {
			return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' scans a list, a set gives constant-time lookup", op), n.Text)}, nil
		}
	}
	return nil, nil
}

var copyCalls = set("copy", "deepcopy", "list", "copy.copy", "copy.deepcopy")

func detectUnnecessaryCopy(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall {
		return nil, nil
	}
	parent := fc.Model.Parent(n)
	if parent == nil || parent.Kind != ir.KindFor || parent.Iter != n {
		return nil, nil
	}
	dotted, last := callee(n)
	if !copyCalls[dotted] && last != "copy" {
		return nil, nil
	}
	if dotted == "list" && (len(n.Args) != 1 || n.Args[0].Kind == ir.KindCall) {
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, fmt.Sprintf("loop iterates over a copy made by '%s'", dotted), n.Text)}, nil
}
