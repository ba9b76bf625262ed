package symbolic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
	"pyscan/internal/engine/patterns"
	"pyscan/internal/engine/solver"
)

// Variable is the current symbolic value bound to a source name. Each
// assignment produces a new version; earlier versions stay in the
// constraints that mention them.
type Variable struct {
	Name   string
	Expr   *solver.Expr
	Domain solver.Sort
}

type bindings map[string]*Variable

func (b bindings) clone() bindings {
	out := make(bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// frame holds the constraints added while a branch is active: its guard
// first, then assignment equalities and joins of nested branches.
type frame struct {
	conds []*solver.Expr
}

// path is the active constraint set captured on entry to a guarded branch.
type path struct {
	line  int
	conds []*solver.Expr
}

// outcome is what one alternative of a branch established.
type outcome struct {
	conds []*solver.Expr
	binds bindings
}

type session struct {
	ctx    context.Context
	model  *ir.Model
	fn     *ir.FunctionDescriptor
	solver solver.Solver
	opts   Options
	checks Checks

	symbols  bindings
	versions map[string]int
	frames   []*frame
	paths    []path
	flagged  map[*ir.Node]bool
	defects  []defect.Defect
	stats    Stats
	err      error
}

func newSession(ctx context.Context, model *ir.Model, fn *ir.FunctionDescriptor, slv solver.Solver, opts Options, checks Checks) *session {
	return &session{
		ctx:      ctx,
		model:    model,
		fn:       fn,
		solver:   slv,
		opts:     opts,
		checks:   checks,
		symbols:  bindings{},
		versions: map[string]int{},
		flagged:  map[*ir.Node]bool{},
	}
}

func (s *session) run() error {
	s.frames = []*frame{{}}
	s.bindParams()
	s.block(s.fn.Body(), 0)
	if s.err == nil && s.checks.Unreachable {
		s.checkPaths()
	}
	return s.err
}

// close releases the solver and drops all session state.
func (s *session) close() {
	_ = s.solver.Close()
	s.symbols = nil
	s.frames = nil
	s.paths = nil
}

func (s *session) bindParams() {
	for i, p := range s.fn.ParamSpecs {
		if p.Kind == ir.ParamVarArgs || p.Kind == ir.ParamVarKeywords {
			continue
		}
		if i == 0 && s.fn.IsMethod() && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		sort, ok := paramDomain(p)
		if !ok {
			continue
		}
		s.symbols[p.Name] = &Variable{Name: p.Name, Expr: solver.Var(p.Name, sort), Domain: sort}
	}
}

// paramDomain picks the solver sort from the annotation, then the default
// value, falling back to integers. Other annotated types are not modelled.
func paramDomain(p ir.Param) (solver.Sort, bool) {
	if p.Annotation != nil {
		switch ir.DottedName(p.Annotation) {
		case "int":
			return solver.SortInt, true
		case "float":
			return solver.SortReal, true
		case "bool":
			return solver.SortBool, true
		}
		return 0, false
	}
	if d := p.Default; d != nil && d.Kind == ir.KindConstant && d.Const != nil {
		switch d.Const.Kind {
		case ir.ConstFloat:
			return solver.SortReal, true
		case ir.ConstBool:
			return solver.SortBool, true
		case ir.ConstString, ir.ConstBytes:
			return 0, false
		}
	}
	return solver.SortInt, true
}

// tooDeep reports statements nested past MaxDepth. The function body is
// depth 0.
func (s *session) tooDeep(depth int) bool {
	if depth > s.opts.MaxDepth {
		s.stats.DepthLimited++
		return true
	}
	return false
}

// exprTooDeep bounds expression recursion independently of statement
// nesting. depth counts from 0 at the statement that owns the expression.
func (s *session) exprTooDeep(depth int) bool {
	if depth > maxExprDepth {
		s.stats.ExprLimited++
		return true
	}
	return false
}

func (s *session) push(guard *solver.Expr) {
	f := &frame{}
	if guard != nil {
		f.conds = append(f.conds, guard)
	}
	s.frames = append(s.frames, f)
	s.stats.Pushes++
}

func (s *session) pop() []*solver.Expr {
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.stats.Pops++
	return top.conds
}

func (s *session) constrain(c *solver.Expr) {
	if c == nil {
		return
	}
	top := s.frames[len(s.frames)-1]
	top.conds = append(top.conds, c)
}

func (s *session) active() []*solver.Expr {
	var out []*solver.Expr
	for _, f := range s.frames {
		out = append(out, f.conds...)
	}
	return out
}

// explore runs body in a new frame guarded by guard. The frame is popped
// and the bindings restored even if body panics.
func (s *session) explore(guard *solver.Expr, line int, body func()) (out outcome) {
	saved := s.symbols.clone()
	s.push(guard)
	if guard != nil {
		s.paths = append(s.paths, path{line: line, conds: s.active()})
	}
	defer func() {
		out.conds = s.pop()
		out.binds = s.symbols
		s.symbols = saved
	}()
	body()
	return out
}

// join merges the alternatives of a branch into the current frame: a name
// rebound in any alternative gets a fresh version equal to whichever value
// the taken alternative produced.
func (s *session) join(pre bindings, outs ...outcome) {
	changed := map[string]bool{}
	for _, o := range outs {
		for name, v := range o.binds {
			if pre[name] != v {
				changed[name] = true
			}
		}
		for name := range pre {
			if o.binds[name] == nil {
				changed[name] = true
			}
		}
	}
	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 && guardsOnly(outs) {
		return
	}

	alts := make([][]*solver.Expr, len(outs))
	for i, o := range outs {
		alts[i] = append(alts[i], o.conds...)
	}
	for _, name := range names {
		var domain solver.Sort
		consistent, seen := true, false
		for _, o := range outs {
			if v := o.binds[name]; v != nil {
				if seen && v.Domain != domain {
					consistent = false
				}
				domain, seen = v.Domain, true
			}
		}
		if !seen || !consistent {
			delete(s.symbols, name)
			continue
		}
		merged := s.fresh(name, domain)
		for i, o := range outs {
			if v := o.binds[name]; v != nil {
				if eq, err := solver.Compare(solver.OpEq, merged.Expr, v.Expr); err == nil {
					alts[i] = append(alts[i], eq)
				}
			}
		}
		s.symbols[name] = merged
	}

	disj := make([]*solver.Expr, len(alts))
	for i, a := range alts {
		disj[i] = solver.And(a...)
	}
	if joined := solver.Or(disj...); !(joined.IsConst() && joined.Bool) {
		s.constrain(joined)
	}
}

// guardsOnly reports whether no alternative learned more than its guard.
func guardsOnly(outs []outcome) bool {
	for _, o := range outs {
		if len(o.conds) > 1 {
			return false
		}
	}
	return true
}

func (s *session) fresh(name string, domain solver.Sort) *Variable {
	s.versions[name]++
	id := fmt.Sprintf("%s#%d", name, s.versions[name])
	return &Variable{Name: name, Expr: solver.Var(id, domain), Domain: domain}
}

// assign binds name to a new version constrained to equal value.
func (s *session) assign(name string, value *solver.Expr) {
	v := s.fresh(name, value.Sort)
	eq, err := solver.Compare(solver.OpEq, v.Expr, value)
	if err != nil {
		delete(s.symbols, name)
		return
	}
	s.constrain(eq)
	s.symbols[name] = v
}

func (s *session) forget(target *ir.Node) {
	for n := range ir.WalkFrom(target) {
		if n.Kind == ir.KindName {
			delete(s.symbols, n.Name)
		}
	}
}

// query checks conds plus extra in a scope of its own, so nothing leaks
// into later queries.
func (s *session) query(conds []*solver.Expr, extra ...*solver.Expr) solver.Result {
	if s.err != nil {
		return solver.Unknown
	}
	s.solver.Push()
	defer func() {
		if err := s.solver.Pop(); err != nil && s.err == nil {
			s.err = err
		}
	}()
	for _, group := range [][]*solver.Expr{conds, extra} {
		for _, c := range group {
			if err := s.solver.Assert(c); err != nil {
				s.stats.Skipped++
				return solver.Unknown
			}
		}
	}
	s.stats.Queries++
	res, err := s.solver.Check(s.ctx)
	if err != nil {
		s.err = errors.Wrap(err, errors.CodeCancelled, "solver query interrupted")
		return solver.Unknown
	}
	switch res {
	case solver.Sat:
		s.stats.Sat++
	case solver.Unsat:
		s.stats.Unsat++
	default:
		s.stats.Inconclusive++
	}
	return res
}

func (s *session) checkDivision(n *ir.Node, divisor *solver.Expr) {
	if !s.checks.DivisionByZero || s.flagged[n] {
		return
	}
	if divisor.IsConst() && divisor.Sort != solver.SortBool && divisor.Num.Sign() != 0 {
		return
	}
	zero, err := solver.Compare(solver.OpEq, divisor, solver.Int(0))
	if err != nil {
		s.stats.Skipped++
		return
	}
	if s.query(s.active(), zero) != solver.Sat {
		return
	}
	s.flagged[n] = true

	desc := fmt.Sprintf("divisor of '%s' can be zero", n.Op)
	if w := s.witness(divisor); w != "" {
		desc += " when " + w
	}
	s.defects = append(s.defects, defect.Defect{
		Pattern:     patterns.DivisionByZeroSymbolic,
		Description: desc,
		Severity:    defect.High,
		File:        s.model.Path,
		Line:        n.Line(),
		Context:     n.Text,
		Suggestion:  patterns.Suggest(patterns.DivisionByZeroSymbolic),
	})
}

// witness renders the solver's model for the variables of e using source
// names.
func (s *session) witness(e *solver.Expr) string {
	model := s.solver.Model()
	var parts []string
	for _, id := range e.Vars() {
		if val, ok := model[id]; ok {
			name, _, _ := strings.Cut(id, "#")
			parts = append(parts, name+" = "+val)
		}
	}
	return strings.Join(parts, ", ")
}

// checkPaths reports the first recorded branch whose path constraints
// contradict each other.
func (s *session) checkPaths() {
	for _, p := range s.paths {
		if s.query(p.conds) != solver.Unsat {
			continue
		}
		s.defects = append(s.defects, defect.Defect{
			Pattern:     patterns.UnreachableCode,
			Description: fmt.Sprintf("branch at line %d of '%s' can never run: its conditions contradict each other", p.line, s.fn.QualifiedName),
			Severity:    defect.Medium,
			File:        s.model.Path,
			Line:        0,
			Context:     fmt.Sprintf("%s: line %d", s.fn.QualifiedName, p.line),
			Suggestion:  patterns.Suggest(patterns.UnreachableCode),
		})
		return
	}
}
