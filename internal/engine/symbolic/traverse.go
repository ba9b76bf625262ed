package symbolic

import (
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/solver"
)

func (s *session) block(stmts []*ir.Node, depth int) {
	for _, st := range stmts {
		if s.err != nil {
			return
		}
		s.stmt(st, depth)
	}
}

func (s *session) stmt(n *ir.Node, depth int) {
	if s.tooDeep(depth) {
		return
	}
	switch n.Kind {
	case ir.KindIf:
		s.ifStmt(n, depth)
	case ir.KindWhile:
		s.whileStmt(n, depth)
	case ir.KindFor:
		s.forStmt(n, depth)
	case ir.KindTry:
		s.tryStmt(n, depth)
	case ir.KindWith:
		for _, item := range n.Items {
			s.expr(item.Value, 0)
			if item.Target != nil {
				s.forget(item.Target)
			}
		}
		s.block(n.Body, depth+1)
	case ir.KindMatch:
		s.matchStmt(n, depth)
	case ir.KindAssign, ir.KindAnnAssign:
		s.assignStmt(n, depth)
	case ir.KindAugAssign:
		s.augAssign(n, depth)
	case ir.KindAssert:
		if c, ok := s.condition(n.Test, 0); ok {
			s.constrain(c)
		}
	case ir.KindReturn, ir.KindExpr, ir.KindRaise:
		s.expr(n.Value, 0)
	case ir.KindDelete:
		for _, t := range n.Targets {
			s.forget(t)
		}
	case ir.KindGlobal:
		for _, name := range n.Identifiers {
			delete(s.symbols, name)
		}
	case ir.KindFunctionDef, ir.KindClassDef:
		// analysed in sessions of their own
	}
}

func firstLine(stmts []*ir.Node, fallback *ir.Node) int {
	if len(stmts) > 0 {
		return stmts[0].Line()
	}
	return fallback.Line()
}

func (s *session) ifStmt(n *ir.Node, depth int) {
	cond, ok := s.condition(n.Test, 0)
	var guard, negated *solver.Expr
	if ok {
		guard, negated = cond, solver.Not(cond)
	}
	pre := s.symbols.clone()

	then := s.explore(guard, firstLine(n.Body, n), func() { s.block(n.Body, depth+1) })
	var other outcome
	if len(n.Orelse) > 0 {
		other = s.explore(negated, firstLine(n.Orelse, n), func() { s.block(n.Orelse, depth+1) })
	} else {
		other = outcome{conds: guardList(negated), binds: pre}
	}
	s.join(pre, then, other)
}

// whileStmt treats the loop as running at most once and only looks at the
// first LoopUnroll statements of its body.
func (s *session) whileStmt(n *ir.Node, depth int) {
	cond, ok := s.condition(n.Test, 0)
	var guard, negated *solver.Expr
	if ok {
		guard, negated = cond, solver.Not(cond)
	}
	pre := s.symbols.clone()

	body := n.Body
	if len(body) > s.opts.LoopUnroll {
		body = body[:s.opts.LoopUnroll]
	}
	in := s.explore(guard, firstLine(n.Body, n), func() { s.block(body, depth+1) })
	s.join(pre, in, outcome{conds: guardList(negated), binds: pre})
	s.block(n.Orelse, depth+1)
}

func (s *session) forStmt(n *ir.Node, depth int) {
	guard, loopVar, evaluated := s.rangeGuard(n)
	if !evaluated {
		s.expr(n.Iter, 0)
	}
	pre := s.symbols.clone()

	in := s.explore(guard, firstLine(n.Body, n), func() {
		s.forget(n.Target)
		if loopVar != nil {
			s.symbols[n.Target.Name] = loopVar
		}
		s.block(n.Body, depth+1)
	})
	s.join(pre, in, outcome{binds: pre})
	s.block(n.Orelse, depth+1)
}

// rangeGuard models `for i in range(a, b)` as a fresh integer with
// a <= i < b, which also exposes loops over empty ranges. evaluated
// reports whether the range arguments were already visited.
func (s *session) rangeGuard(n *ir.Node) (guard *solver.Expr, v *Variable, evaluated bool) {
	if !n.Target.IsName() || n.Iter.CallName() != "range" || len(n.Iter.Args) == 0 || len(n.Iter.Args) > 2 {
		return nil, nil, false
	}
	start, stop := solver.Int(0), (*solver.Expr)(nil)
	ok := true
	if len(n.Iter.Args) == 1 {
		stop, ok = s.value(n.Iter.Args[0], 0)
	} else {
		var ok2 bool
		start, ok = s.value(n.Iter.Args[0], 0)
		stop, ok2 = s.value(n.Iter.Args[1], 0)
		ok = ok && ok2
	}
	if !ok || start.Sort != solver.SortInt || stop.Sort != solver.SortInt {
		return nil, nil, true
	}
	v = s.fresh(n.Target.Name, solver.SortInt)
	lo, err1 := solver.Compare(solver.OpGe, v.Expr, start)
	hi, err2 := solver.Compare(solver.OpLt, v.Expr, stop)
	if err1 != nil || err2 != nil {
		return nil, nil, true
	}
	return solver.And(lo, hi), v, true
}

// tryStmt enters each handler with every binding the body could have left
// behind. The exception can be raised before or after any assignment.
func (s *session) tryStmt(n *ir.Node, depth int) {
	pre := s.symbols.clone()
	s.block(n.Body, depth+1)
	post := s.symbols.clone()
	if len(n.Handlers) > 0 {
		s.join(post, outcome{binds: pre}, outcome{binds: post})
	}
	entry := s.symbols.clone()
	outs := []outcome{{binds: post}}
	for _, h := range n.Handlers {
		outs = append(outs, s.explore(nil, h.Line(), func() {
			if h.Name != "" {
				delete(s.symbols, h.Name)
			}
			s.block(h.Body, depth+1)
		}))
	}
	if len(outs) > 1 {
		s.join(entry, outs...)
	}
	s.block(n.Orelse, depth+1)
	s.block(n.Finalbody, depth+1)
}

func (s *session) matchStmt(n *ir.Node, depth int) {
	s.expr(n.Value, 0)
	pre := s.symbols.clone()
	outs := []outcome{{binds: pre}}
	for _, c := range n.Cases {
		outs = append(outs, s.explore(nil, c.Line(), func() {
			if c.Test != nil {
				s.forget(c.Test)
			}
			s.block(c.Body, depth+1)
		}))
	}
	s.join(pre, outs...)
}

func (s *session) assignStmt(n *ir.Node, depth int) {
	if n.Value == nil {
		return
	}
	val, ok := s.value(n.Value, 0)
	for _, t := range n.Targets {
		if t.IsName() && ok {
			s.assign(t.Name, val)
			continue
		}
		if t.Kind == ir.KindName || t.Kind == ir.KindCollection {
			s.forget(t)
			continue
		}
		// attribute and subscript targets may still hide a division
		s.expr(t, 0)
	}
}

func (s *session) augAssign(n *ir.Node, depth int) {
	if len(n.Targets) == 0 {
		return
	}
	target := n.Targets[0]
	rhs, rok := s.value(n.Value, 0)
	if isDivision(n.Op) && rok {
		s.checkDivision(n, rhs)
	}
	if !target.IsName() {
		s.expr(target, 0)
		return
	}
	cur := s.symbols[target.Name]
	op, known := arithOps[n.Op]
	if cur == nil || !rok || !known {
		delete(s.symbols, target.Name)
		return
	}
	next, err := solver.Arith(op, cur.Expr, rhs)
	if err != nil {
		delete(s.symbols, target.Name)
		return
	}
	s.assign(target.Name, next)
}

func guardList(g *solver.Expr) []*solver.Expr {
	if g == nil {
		return nil
	}
	return []*solver.Expr{g}
}
