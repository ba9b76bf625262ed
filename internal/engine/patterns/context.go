package patterns

import (
	"slices"
	"strings"

	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

// FileContext is what a detector may read besides the node itself. The
// matcher resets Threshold before each rule runs.
type FileContext struct {
	Model *ir.Model
	// Threshold is the resolved numeric setting for rules with a
	// ThresholdKey, zero otherwise.
	Threshold int

	rule Rule
}

func (fc *FileContext) Path() string { return fc.Model.Path }

// finding builds a defect for the current rule at n.
func (fc *FileContext) finding(n *ir.Node, description, context string) defect.Defect {
	return defect.Defect{
		Pattern:     fc.rule.ID,
		Description: description,
		Severity:    fc.rule.Severity,
		File:        fc.Model.Path,
		Line:        n.Line(),
		Context:     context,
	}
}

// insideWithItem reports whether n is part of a with-statement's context
// expression.
func (fc *FileContext) insideWithItem(n *ir.Node) bool {
	for anc := range fc.Model.Ancestors(n) {
		if anc.Kind == ir.KindWithItem {
			return true
		}
		if anc.Kind.IsStatement() || anc.Kind == ir.KindModule {
			return false
		}
	}
	return false
}

// lastStoreBefore returns the most recent write of use's name that precedes
// use in the same scope.
func (fc *FileContext) lastStoreBefore(use *ir.Node) (ir.VarSite, bool) {
	scope := fc.Model.Scope(use)
	var last ir.VarSite
	found := false
	for _, site := range fc.Model.Variables[use.Name] {
		if site.Ctx != ir.Store || site.Scope != scope || site.Node == use {
			continue
		}
		if site.Line > use.Span.Line || (site.Line == use.Span.Line && site.Column >= use.Span.Column) {
			continue
		}
		last, found = site, true
	}
	return last, found
}

// guardedBy reports whether an enclosing condition proves name is not None
// where n runs, as in `if x is not None: x.y`, `x and x.y` or the else arm
// of `if x is None`.
func (fc *FileContext) guardedBy(n *ir.Node, name string) bool {
	child := n
	for anc := range fc.Model.Ancestors(n) {
		switch anc.Kind {
		case ir.KindIf, ir.KindWhile:
			if slices.Contains(anc.Body, child) && provesNotNone(anc.Test, name, true) {
				return true
			}
			if slices.Contains(anc.Orelse, child) && anc.Kind == ir.KindIf && provesNotNone(anc.Test, name, false) {
				return true
			}
		case ir.KindConditional:
			if (child == anc.Left && provesNotNone(anc.Test, name, true)) ||
				(child == anc.Right && provesNotNone(anc.Test, name, false)) {
				return true
			}
		case ir.KindBoolOp:
			// operands left of child have already evaluated to true (and)
			// or false (or)
			for _, v := range anc.Values {
				if v == child {
					break
				}
				if provesNotNone(v, name, anc.Op == "and") {
					return true
				}
			}
		case ir.KindFunctionDef, ir.KindLambda, ir.KindModule:
			return false
		}
		child = anc
	}
	return false
}

// provesNotNone reports whether cond evaluating to truth implies name is
// not None.
func provesNotNone(cond *ir.Node, name string, truth bool) bool {
	if cond == nil {
		return false
	}
	switch cond.Kind {
	case ir.KindName:
		return truth && cond.IsName(name)
	case ir.KindUnaryOp:
		return cond.Op == "not" && provesNotNone(cond.Value, name, !truth)
	case ir.KindCompare:
		if len(cond.Ops) != 1 || len(cond.Comparators) != 1 {
			return false
		}
		l, r := cond.Left, cond.Comparators[0]
		if !(l.IsName(name) && r.IsNone()) && !(r.IsName(name) && l.IsNone()) {
			return false
		}
		switch cond.Ops[0] {
		case "is not", "!=":
			return truth
		case "is", "==":
			return !truth
		}
	case ir.KindCall:
		return truth && cond.CallName() == "isinstance" && len(cond.Args) > 0 && cond.Args[0].IsName(name)
	case ir.KindBoolOp:
		// a true `and` or a false `or` fixes every operand, so one proof is
		// enough; otherwise all operands must prove it
		every := (cond.Op == "and") != truth
		for _, v := range cond.Values {
			proved := provesNotNone(v, name, truth)
			if proved && !every {
				return true
			}
			if !proved && every {
				return false
			}
		}
		return every && len(cond.Values) > 0
	}
	return false
}

// callee returns the dotted callee of a call and its last segment.
func callee(call *ir.Node) (dotted, last string) {
	if call == nil || call.Kind != ir.KindCall || call.Func == nil {
		return "", ""
	}
	switch call.Func.Kind {
	case ir.KindName:
		return call.Func.Name, call.Func.Name
	case ir.KindAttribute:
		return ir.DottedName(call.Func), call.Func.Name
	}
	return "", ""
}

// matchesCallee reports whether dotted equals one of names or ends with
// "."+name, so aliased module prefixes still match.
func matchesCallee(dotted string, names map[string]bool) bool {
	if dotted == "" {
		return false
	}
	if names[dotted] {
		return true
	}
	for name := range names {
		if strings.HasSuffix(dotted, "."+name) {
			return true
		}
	}
	return false
}

func set(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

// isLiteral reports whether expr is a constant, or a collection of
// constants, with no interpolation.
func isLiteral(expr *ir.Node) bool {
	if expr == nil {
		return false
	}
	switch expr.Kind {
	case ir.KindConstant:
		return !isInterpolated(expr)
	case ir.KindCollection:
		for _, v := range expr.Values {
			if !isLiteral(v) {
				return false
			}
		}
		return true
	}
	return false
}

func isInterpolated(expr *ir.Node) bool {
	return expr != nil && expr.Kind == ir.KindConstant && expr.Op == "f" && len(expr.Values) > 0
}

// isDynamicString reports whether expr builds a string from parts at run
// time: concatenation, %-formatting, str.format or an f-string.
func isDynamicString(expr *ir.Node) bool {
	if expr == nil {
		return false
	}
	switch expr.Kind {
	case ir.KindBinaryOp:
		return expr.Op == "+" || expr.Op == "%"
	case ir.KindCall:
		return expr.Func != nil && expr.Func.Kind == ir.KindAttribute && expr.Func.Name == "format"
	case ir.KindConstant:
		return isInterpolated(expr)
	}
	return false
}

// targetNames lists the plain names bound by an assignment statement.
func targetNames(stmt *ir.Node) []string {
	var out []string
	for _, t := range stmt.Targets {
		if t.IsName() {
			out = append(out, t.Name)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	lower := strings.ToLower(s)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
