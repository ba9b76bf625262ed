package solver

import (
	"context"
	"math/big"
	"sort"
	"time"
)

// Bounded decides constraints by searching a finite candidate set per
// variable. Candidates are taken around every point where an atom that is
// linear in a single variable changes truth value, so for formulas built
// only from such atoms the search is exhaustive and both answers are exact.
// Anything else (products of variables, modulo, relations between several
// variables) can still be shown Sat by a witness, but never Unsat.
type Bounded struct {
	opts  Options
	sc    scopes
	stats Stats
	model map[string]string
}

func NewBounded(opts Options) *Bounded {
	return &Bounded{opts: opts.withDefaults()}
}

func (b *Bounded) Name() string { return BackendBounded }

func (b *Bounded) Assert(e *Expr) error {
	if err := checkBool(e); err != nil {
		return err
	}
	b.sc.assert(e)
	return nil
}

func (b *Bounded) Push()        { b.sc.push() }
func (b *Bounded) Pop() error   { return b.sc.pop() }
func (b *Bounded) Depth() int   { return b.sc.depth() }
func (b *Bounded) Stats() Stats { return b.stats }
func (b *Bounded) Close() error { b.Reset(); return nil }

func (b *Bounded) Reset() {
	b.sc.reset()
	b.model = nil
}

func (b *Bounded) Model() map[string]string {
	out := make(map[string]string, len(b.model))
	for k, v := range b.model {
		out[k] = v
	}
	return out
}

func (b *Bounded) Check(ctx context.Context) (Result, error) {
	s := &search{
		ctx:      ctx,
		deadline: time.Now().Add(b.opts.Timeout),
		budget:   b.opts.StepBudget,
		model:    map[string]string{},
		env:      map[string]value{},
	}
	res := s.solve(b.sc.all())
	b.stats.Steps += s.steps
	b.stats.record(res)
	b.model = nil
	if res == Sat {
		b.model = s.model
	}
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}
	return res, nil
}

type search struct {
	ctx      context.Context
	deadline time.Time
	budget   int
	steps    int
	model    map[string]string
	env      map[string]value
	defs     []definitionOf
}

// definitionOf is an equality eliminated by substitution.
type definitionOf struct {
	name string
	rhs  *Expr
}

func (s *search) solve(assertions []*Expr) Result {
	conj, ok := s.normalize(assertions)
	if !ok {
		return Unsat
	}
	if len(conj) == 0 {
		s.completeModel()
		return Sat
	}

	unknown := false
	for _, comp := range components(conj) {
		switch s.solveComponent(comp) {
		case Unsat:
			return Unsat
		case Unknown:
			unknown = true
		}
	}
	if unknown {
		return Unknown
	}
	s.completeModel()
	return Sat
}

// completeModel assigns the eliminated variables from their definitions,
// latest first, and fills unconstrained variables with zero.
func (s *search) completeModel() {
	for i := len(s.defs) - 1; i >= 0; i-- {
		d := s.defs[i]
		for _, v := range d.rhs.Vars() {
			if _, ok := s.env[v]; !ok {
				s.env[v] = zeroOf(d.rhs, v)
			}
		}
		if val, ok := eval(d.rhs, s.env); ok {
			s.env[d.name] = val
		}
	}
	for v, val := range s.env {
		s.model[v] = val.String()
	}
}

func zeroOf(e *Expr, name string) value {
	sorts := map[string]Sort{}
	collectSorts(e, sorts)
	if sorts[name] == SortBool {
		return boolValue(false)
	}
	return value{num: new(big.Rat)}
}

// normalize folds constants, flattens conjunctions and eliminates
// definitional equalities such as x#1 == a + 1. It reports false when a
// conjunct folds to false.
func (s *search) normalize(assertions []*Expr) ([]*Expr, bool) {
	var conj []*Expr
	var add func(e *Expr) bool
	add = func(e *Expr) bool {
		e = fold(e)
		switch {
		case e.Op == OpConst:
			return e.Bool
		case e.Op == OpAnd:
			for _, a := range e.Args {
				if !add(a) {
					return false
				}
			}
			return true
		}
		conj = append(conj, e)
		return true
	}
	for _, a := range assertions {
		if !add(a) {
			return nil, false
		}
	}

	for {
		idx, name, repl := definition(conj)
		if idx < 0 {
			return conj, true
		}
		s.defs = append(s.defs, definitionOf{name: name, rhs: repl})
		rest := make([]*Expr, 0, len(conj)-1)
		rest = append(rest, conj[:idx]...)
		rest = append(rest, conj[idx+1:]...)
		conj = nil
		for _, e := range rest {
			if !add(e.Substitute(name, repl)) {
				return nil, false
			}
		}
	}
}

// definition finds a conjunct v == e with v absent from e and of the same
// sort.
func definition(conj []*Expr) (int, string, *Expr) {
	for i, e := range conj {
		if e.Op != OpEq {
			continue
		}
		for _, pair := range [][2]*Expr{{e.Args[0], e.Args[1]}, {e.Args[1], e.Args[0]}} {
			v, rhs := pair[0], pair[1]
			if v.Op != OpVar || v.Sort != rhs.Sort || mentions(rhs, v.Name) {
				continue
			}
			return i, v.Name, rhs
		}
	}
	return -1, "", nil
}

func mentions(e *Expr, name string) bool {
	if e.Op == OpVar {
		return e.Name == name
	}
	for _, a := range e.Args {
		if mentions(a, name) {
			return true
		}
	}
	return false
}

type component struct {
	conj []*Expr
	vars []string
}

// components groups conjuncts that share variables. Variable-free
// conjuncts left over by folding are undefined and form their own group.
func components(conj []*Expr) []component {
	parent := map[string]string{"": ""}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	varsOf := make([][]string, len(conj))
	for i, e := range conj {
		varsOf[i] = e.Vars()
		for _, v := range varsOf[i] {
			if _, ok := parent[v]; !ok {
				parent[v] = v
			}
		}
		for j := 1; j < len(varsOf[i]); j++ {
			parent[find(varsOf[i][j])] = find(varsOf[i][0])
		}
	}

	byRoot := map[string]*component{}
	var order []string
	for i, e := range conj {
		root := ""
		if len(varsOf[i]) > 0 {
			root = find(varsOf[i][0])
		}
		c, ok := byRoot[root]
		if !ok {
			c = &component{}
			byRoot[root] = c
			order = append(order, root)
		}
		c.conj = append(c.conj, e)
	}
	out := make([]component, 0, len(order))
	for _, root := range order {
		c := byRoot[root]
		seen := map[string]bool{}
		for _, e := range c.conj {
			for _, v := range e.Vars() {
				if !seen[v] {
					seen[v] = true
					c.vars = append(c.vars, v)
				}
			}
		}
		sort.Strings(c.vars)
		out = append(out, *c)
	}
	return out
}

func (s *search) solveComponent(c component) Result {
	sorts := map[string]Sort{}
	for _, e := range c.conj {
		collectSorts(e, sorts)
	}
	points := map[string][]*big.Rat{}
	complete := true
	for _, e := range c.conj {
		if !boundaries(e, points) {
			complete = false
		}
	}

	cands := make([][]value, len(c.vars))
	for i, v := range c.vars {
		cands[i] = candidates(sorts[v], points[v], !complete)
	}

	env := make(map[string]value, len(c.vars))
	idx := make([]int, len(c.vars))
	for {
		if s.steps >= s.budget || s.expired() {
			return Unknown
		}
		s.steps++
		for i, v := range c.vars {
			env[v] = cands[i][idx[i]]
		}
		if holds(c.conj, env) {
			for v, val := range env {
				s.env[v] = val
			}
			return Sat
		}
		if !advance(idx, cands) {
			break
		}
	}
	if complete {
		return Unsat
	}
	return Unknown
}

func (s *search) expired() bool {
	if s.steps%64 != 0 {
		return false
	}
	return s.ctx.Err() != nil || time.Now().After(s.deadline)
}

func advance(idx []int, cands [][]value) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(cands[i]) {
			return true
		}
		idx[i] = 0
	}
	return false
}

func holds(conj []*Expr, env map[string]value) bool {
	for _, e := range conj {
		v, ok := eval(e, env)
		if !ok || !v.b {
			return false
		}
	}
	return true
}

func collectSorts(e *Expr, sorts map[string]Sort) {
	if e.Op == OpVar {
		sorts[e.Name] = e.Sort
		return
	}
	for _, a := range e.Args {
		collectSorts(a, sorts)
	}
}

// boundaries records, per variable, the points where atoms of e change
// truth value. It reports false when some atom is not linear in a single
// variable; its constants are still recorded as search hints.
func boundaries(e *Expr, points map[string][]*big.Rat) bool {
	switch e.Op {
	case OpAnd, OpOr, OpNot:
		ok := true
		for _, a := range e.Args {
			if !boundaries(a, points) {
				ok = false
			}
		}
		return ok
	case OpVar, OpConst:
		return true
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if e.Args[0].Sort == SortBool {
			return boundaries(e.Args[0], points) && boundaries(e.Args[1], points)
		}
		diff, err := Arith(OpSub, e.Args[0], e.Args[1])
		if err != nil {
			return false
		}
		if l, ok := linearize(diff); ok {
			switch len(l.coef) {
			case 0:
				return true
			case 1:
				for v, a := range l.coef {
					root := new(big.Rat).Quo(new(big.Rat).Neg(l.c), a)
					points[v] = append(points[v], root)
				}
				return true
			}
		}
		hints := constants(e, nil)
		for _, v := range e.Vars() {
			points[v] = append(points[v], hints...)
		}
		return false
	}
	return false
}

func constants(e *Expr, out []*big.Rat) []*big.Rat {
	if e.Op == OpConst && e.Num != nil {
		return append(out, e.Num)
	}
	for _, a := range e.Args {
		out = constants(a, out)
	}
	return out
}

// candidates picks one value in every region delimited by points, plus
// the points themselves. Extra small values widen incomplete searches.
func candidates(sort Sort, points []*big.Rat, extra bool) []value {
	if sort == SortBool {
		return []value{boolValue(false), boolValue(true)}
	}
	var raw []*big.Rat
	if extra || len(points) == 0 {
		for _, k := range []int64{0, 1, -1, 2, -2} {
			raw = append(raw, big.NewRat(k, 1))
		}
	}
	ps := dedupe(points)
	one := big.NewRat(1, 1)
	for i, p := range ps {
		if sort == SortInt {
			f, c := new(big.Rat).SetInt(floor(p)), new(big.Rat).SetInt(ceil(p))
			raw = append(raw, f, c, new(big.Rat).Sub(f, one), new(big.Rat).Add(c, one))
			continue
		}
		raw = append(raw, p)
		if i == 0 {
			raw = append(raw, new(big.Rat).Sub(p, one))
		}
		if i == len(ps)-1 {
			raw = append(raw, new(big.Rat).Add(p, one))
		} else {
			mid := new(big.Rat).Add(p, ps[i+1])
			raw = append(raw, mid.Quo(mid, big.NewRat(2, 1)))
		}
	}
	out := make([]value, 0, len(raw))
	for _, r := range dedupe(raw) {
		out = append(out, value{num: r})
	}
	return out
}

func dedupe(in []*big.Rat) []*big.Rat {
	sorted := append([]*big.Rat(nil), in...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	out := sorted[:0]
	for i, r := range sorted {
		if i > 0 && r.Cmp(sorted[i-1]) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (v value) String() string {
	if v.isBool {
		if v.b {
			return "True"
		}
		return "False"
	}
	if v.num.IsInt() {
		return v.num.Num().String()
	}
	f, _ := v.num.Float64()
	return big.NewFloat(f).Text('g', 10)
}
