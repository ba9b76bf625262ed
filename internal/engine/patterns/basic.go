package patterns

import (
	"fmt"
	"strings"

	"pyscan/internal/core/config"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

// Ids of the rules confirmed by the symbolic executor.
const (
	DivisionByZeroSymbolic = "division_by_zero_symbolic"
	UnreachableCode        = "unreachable_code"
)

func BasicRules() RuleSet {
	return RuleSet{
		Category: CategoryBasic,
		Rules: []Rule{
			{ID: "null_dereference", Description: "Attribute, index or call on a value that is None", Severity: defect.High, Detect: detectNullDereference},
			{ID: "resource_leak", Description: "Resource opened outside a with statement", Severity: defect.Medium, Detect: detectResourceLeak},
			{ID: "division_by_zero", Description: "Division or modulo by a literal zero", Severity: defect.High, Detect: detectDivisionByZero},
			{ID: "missing_type_hints", Description: "Function parameter or return value without annotation", Severity: defect.Low, Detect: detectMissingTypeHints},
			{
				ID:               "long_function",
				Description:      "Function body longer than the configured limit",
				Severity:         defect.Medium,
				ThresholdKey:     config.ThresholdFunctionLength,
				DefaultThreshold: config.DefaultFunctionLength,
				Detect:           detectLongFunction,
			},
			{
				ID:               "high_complexity",
				Description:      "Cyclomatic complexity above the configured limit",
				Severity:         defect.Medium,
				ThresholdKey:     config.ThresholdCyclomaticComplexity,
				DefaultThreshold: config.DefaultCyclomaticComplexity,
				Detect:           detectHighComplexity,
			},
			{ID: "unused_variable", Description: "Variable assigned but never read", Severity: defect.Low, Detect: detectUnusedVariables},
			{ID: "unused_import", Description: "Imported name never used", Severity: defect.Low, Detect: detectUnusedImports},
			{ID: "hardcoded_password", Description: "Credential assigned from a string literal", Severity: defect.Critical, Detect: detectHardcodedSecret},
			{ID: "sql_injection", Description: "SQL query built from runtime string operations", Severity: defect.Critical, Detect: detectSQLInjection},
			{ID: "potential_loop_infinite", Description: "while loop with a constant true condition", Severity: defect.Medium, Detect: detectInfiniteLoop},
			{ID: DivisionByZeroSymbolic, Description: "Divisor can be zero on a feasible path", Severity: defect.High, Engine: EngineSymbolic},
			{ID: UnreachableCode, Description: "Branch conditions on a path contradict each other", Severity: defect.Medium, Engine: EngineSymbolic},
		},
	}
}

func detectNullDereference(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	var target *ir.Node
	var verb string
	switch n.Kind {
	case ir.KindAttribute:
		target, verb = n.Value, "attribute access"
	case ir.KindSubscript:
		target, verb = n.Value, "subscript"
	case ir.KindCall:
		target, verb = n.Func, "call"
	default:
		return nil, nil
	}

	if target.IsNone() {
		return []defect.Defect{fc.finding(n, fmt.Sprintf("%s on None", verb), n.Text)}, nil
	}
	if !target.IsName() || target.Ctx != ir.Load {
		return nil, nil
	}
	site, ok := fc.lastStoreBefore(target)
	if !ok || !assignsNone(fc.Model.Parent(site.Node), site.Node) {
		return nil, nil
	}
	if fc.guardedBy(n, target.Name) {
		return nil, nil
	}
	desc := fmt.Sprintf("%s on '%s', which was assigned None on line %d", verb, target.Name, site.Line)
	return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
}

// assignsNone reports whether stmt binds target directly to None.
func assignsNone(stmt, target *ir.Node) bool {
	if stmt == nil || stmt.Value == nil || !stmt.Value.IsNone() {
		return false
	}
	switch stmt.Kind {
	case ir.KindAssign, ir.KindAnnAssign:
		for _, t := range stmt.Targets {
			if t == target {
				return true
			}
		}
	}
	return false
}

var resourceOpeners = set("open", "connect", "start", "create")

func detectResourceLeak(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindCall {
		return nil, nil
	}
	dotted, last := callee(n)
	if !resourceOpeners[last] || fc.insideWithItem(n) {
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' result is not managed by a with statement", dotted), n.Text)}, nil
}

func detectDivisionByZero(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindBinaryOp {
		return nil, nil
	}
	switch n.Op {
	case "/", "//", "%":
	default:
		return nil, nil
	}
	if n.Op == "%" && n.Left != nil && n.Left.Kind == ir.KindConstant && n.Left.Const.Kind == ir.ConstString {
		return nil, nil
	}
	if !isZero(n.Right) {
		return nil, nil
	}
	return []defect.Defect{fc.finding(n, fmt.Sprintf("'%s' by literal zero", n.Op), n.Text)}, nil
}

func isZero(n *ir.Node) bool {
	if n == nil || n.Kind != ir.KindConstant || n.Const == nil {
		return false
	}
	switch n.Const.Kind {
	case ir.ConstInt:
		return n.Const.Exact && n.Const.Int == 0
	case ir.ConstFloat:
		return n.Const.Float == 0
	}
	return false
}

func detectMissingTypeHints(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	fd := fc.Model.FunctionFor(n)
	if fd == nil {
		return nil, nil
	}
	var out []defect.Defect
	if n.Returns == nil {
		out = append(out, fc.finding(n, fmt.Sprintf("function '%s' has no return annotation", fd.Name), fd.QualifiedName))
	}
	for i, p := range n.Params {
		if p.Annotation != nil {
			continue
		}
		if i == 0 && fd.IsMethod() && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		d := fc.finding(n, fmt.Sprintf("parameter '%s' of '%s' has no annotation", p.Name, fd.Name), fd.QualifiedName)
		if p.Span.Line > 0 {
			d.Line = p.Span.Line
		}
		out = append(out, d)
	}
	return out, nil
}

func detectLongFunction(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	fd := fc.Model.FunctionFor(n)
	if fd == nil {
		return nil, nil
	}
	if length := fd.Length(); length > fc.Threshold {
		desc := fmt.Sprintf("function '%s' is %d lines long (limit %d)", fd.QualifiedName, length, fc.Threshold)
		return []defect.Defect{fc.finding(n, desc, fd.QualifiedName)}, nil
	}
	return nil, nil
}

func detectHighComplexity(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	fd := fc.Model.FunctionFor(n)
	if fd == nil {
		return nil, nil
	}
	if fd.Complexity > fc.Threshold {
		desc := fmt.Sprintf("function '%s' has cyclomatic complexity %d (limit %d)", fd.QualifiedName, fd.Complexity, fc.Threshold)
		return []defect.Defect{fc.finding(n, desc, fd.QualifiedName)}, nil
	}
	return nil, nil
}

func detectUnusedVariables(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindModule {
		return nil, nil
	}
	var out []defect.Defect
	for _, u := range fc.Model.UnusedVariables() {
		for _, line := range u.Lines {
			d := fc.finding(n, fmt.Sprintf("variable '%s' is assigned but never used", u.Name), u.Name)
			d.Line = line
			out = append(out, d)
		}
	}
	return out, nil
}

func detectUnusedImports(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindModule {
		return nil, nil
	}
	var out []defect.Defect
	for _, u := range fc.Model.UnusedImports() {
		d := fc.finding(n, fmt.Sprintf("'%s' is imported but never used", u.Name), strings.TrimSpace(fc.Model.LineText(u.Line)))
		d.Line = u.Line
		out = append(out, d)
	}
	return out, nil
}
