package symbolic

import (
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/solver"
)

var arithOps = map[string]solver.Op{
	"+": solver.OpAdd, "-": solver.OpSub, "*": solver.OpMul,
	"/": solver.OpDiv, "//": solver.OpFloorDiv, "%": solver.OpMod,
}

var relOps = map[string]solver.Op{
	"==": solver.OpEq, "!=": solver.OpNe, "<": solver.OpLt,
	"<=": solver.OpLe, ">": solver.OpGt, ">=": solver.OpGe,
}

// maxExprDepth caps how deeply nested an expression may be before its
// remaining operands are left unevaluated.
const maxExprDepth = 64

func isDivision(op string) bool { return op == "/" || op == "//" || op == "%" }

// condition evaluates a test expression with Python truthiness.
func (s *session) condition(n *ir.Node, depth int) (*solver.Expr, bool) {
	e, ok := s.value(n, depth+1)
	if !ok {
		return nil, false
	}
	return solver.Truthy(e), true
}

// value evaluates n to a solver term. Subexpressions are always visited,
// even when the result is unknown, so every division gets checked.
func (s *session) value(n *ir.Node, depth int) (*solver.Expr, bool) {
	if n == nil {
		return nil, false
	}
	if s.exprTooDeep(depth) {
		return nil, false
	}
	switch n.Kind {
	case ir.KindConstant:
		return constant(n)
	case ir.KindName:
		if v := s.symbols[n.Name]; v != nil {
			return v.Expr, true
		}
		return s.skip()
	case ir.KindBinaryOp:
		return s.binary(n, depth)
	case ir.KindUnaryOp:
		return s.unary(n, depth)
	case ir.KindCompare:
		return s.compare(n, depth)
	case ir.KindBoolOp:
		parts := make([]*solver.Expr, 0, len(n.Values))
		ok := true
		for _, v := range n.Values {
			c, cok := s.condition(v, depth)
			if !cok {
				ok = false
				continue
			}
			parts = append(parts, c)
		}
		if !ok {
			return s.skip()
		}
		if n.Op == "or" {
			return solver.Or(parts...), true
		}
		return solver.And(parts...), true
	case ir.KindConditional:
		return s.conditional(n, depth)
	case ir.KindCall:
		return s.call(n, depth)
	case ir.KindLambda:
		return s.skip()
	}
	for _, child := range n.Children() {
		s.value(child, depth+1)
	}
	return s.skip()
}

// expr evaluates n only for the checks it triggers.
func (s *session) expr(n *ir.Node, depth int) {
	s.value(n, depth)
}

func (s *session) skip() (*solver.Expr, bool) {
	s.stats.Skipped++
	return nil, false
}

func constant(n *ir.Node) (*solver.Expr, bool) {
	c := n.Const
	if c == nil {
		return nil, false
	}
	switch c.Kind {
	case ir.ConstBool:
		return solver.Bool(c.Bool), true
	case ir.ConstInt:
		if c.Exact {
			return solver.Int(c.Int), true
		}
		return solver.IntText(c.Raw)
	case ir.ConstFloat:
		if e := solver.Real(c.Float); e != nil {
			return e, true
		}
	}
	return nil, false
}

func (s *session) binary(n *ir.Node, depth int) (*solver.Expr, bool) {
	l, lok := s.value(n.Left, depth+1)
	r, rok := s.value(n.Right, depth+1)
	if isDivision(n.Op) && rok {
		s.checkDivision(n, r)
	}
	op, known := arithOps[n.Op]
	if !lok || !rok || !known {
		return s.skip()
	}
	e, err := solver.Arith(op, l, r)
	if err != nil {
		return s.skip()
	}
	return e, true
}

func (s *session) unary(n *ir.Node, depth int) (*solver.Expr, bool) {
	v, ok := s.value(n.Value, depth+1)
	if !ok {
		return s.skip()
	}
	switch n.Op {
	case "-":
		if e, err := solver.Neg(v); err == nil {
			return e, true
		}
	case "+":
		return v, true
	case "not":
		return solver.Not(solver.Truthy(v)), true
	}
	return s.skip()
}

// compare turns a chain a < b < c into (a < b) and (b < c).
func (s *session) compare(n *ir.Node, depth int) (*solver.Expr, bool) {
	left, ok := s.value(n.Left, depth+1)
	parts := make([]*solver.Expr, 0, len(n.Ops))
	for i, opText := range n.Ops {
		if i >= len(n.Comparators) {
			break
		}
		right, rok := s.value(n.Comparators[i], depth+1)
		op, known := relOps[opText]
		if ok && rok && known {
			if rel, err := solver.Compare(op, left, right); err == nil {
				parts = append(parts, rel)
			} else {
				ok = false
			}
		} else {
			ok = false
		}
		left = right
		ok = ok && rok
	}
	if !ok || len(parts) == 0 {
		return s.skip()
	}
	return solver.And(parts...), true
}

// conditional models `a if c else b` as a fresh value tied to whichever
// branch the condition selects.
func (s *session) conditional(n *ir.Node, depth int) (*solver.Expr, bool) {
	c, cok := s.condition(n.Test, depth)
	a, aok := s.value(n.Left, depth+1)
	b, bok := s.value(n.Right, depth+1)
	if !cok || !aok || !bok || a.Sort != b.Sort {
		return s.skip()
	}
	v := s.fresh("ifexp", a.Sort)
	ea, err1 := solver.Compare(solver.OpEq, v.Expr, a)
	eb, err2 := solver.Compare(solver.OpEq, v.Expr, b)
	if err1 != nil || err2 != nil {
		return s.skip()
	}
	s.constrain(solver.Or(solver.And(c, ea), solver.And(solver.Not(c), eb)))
	return v.Expr, true
}

func (s *session) call(n *ir.Node, depth int) (*solver.Expr, bool) {
	args := make([]*solver.Expr, len(n.Args))
	oks := make([]bool, len(n.Args))
	for i, a := range n.Args {
		args[i], oks[i] = s.value(a, depth+1)
	}
	for _, kw := range n.Keywords {
		s.value(kw.Value, depth+1)
	}
	if n.Func != nil && n.Func.Kind != ir.KindName {
		s.value(n.Func, depth+1)
	}

	switch n.CallName() {
	case "len":
		if len(n.Args) == 1 {
			v := s.fresh("len", solver.SortInt)
			if nonNeg, err := solver.Compare(solver.OpGe, v.Expr, solver.Int(0)); err == nil {
				s.constrain(nonNeg)
				return v.Expr, true
			}
		}
	case "abs":
		if len(n.Args) == 1 && oks[0] && args[0].Sort != solver.SortBool {
			v := s.fresh("abs", args[0].Sort)
			neg, err1 := solver.Neg(args[0])
			pos, err2 := solver.Compare(solver.OpEq, v.Expr, args[0])
			if err1 == nil && err2 == nil {
				flipped, _ := solver.Compare(solver.OpEq, v.Expr, neg)
				nonNeg, _ := solver.Compare(solver.OpGe, v.Expr, solver.Int(0))
				s.constrain(solver.And(nonNeg, solver.Or(pos, flipped)))
				return v.Expr, true
			}
		}
	case "int":
		if len(n.Args) == 1 && oks[0] && args[0].Sort == solver.SortInt {
			return args[0], true
		}
	case "float":
		if len(n.Args) == 1 && oks[0] && args[0].Sort == solver.SortReal {
			return args[0], true
		}
	}
	return s.skip()
}
