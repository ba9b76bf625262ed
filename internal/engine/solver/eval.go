package solver

import (
	"math/big"
)

// value is a concrete number or boolean during evaluation.
type value struct {
	num    *big.Rat
	b      bool
	isBool bool
}

func boolValue(b bool) value { return value{b: b, isBool: true} }

// eval computes e under env. It reports false when the term is undefined,
// which only happens on division by zero.
func eval(e *Expr, env map[string]value) (value, bool) {
	switch e.Op {
	case OpConst:
		if e.Sort == SortBool {
			return boolValue(e.Bool), true
		}
		return value{num: e.Num}, true
	case OpVar:
		v, ok := env[e.Name]
		return v, ok
	case OpNot:
		v, ok := eval(e.Args[0], env)
		return boolValue(!v.b), ok
	case OpAnd, OpOr:
		defined := true
		for _, a := range e.Args {
			v, ok := eval(a, env)
			if !ok {
				defined = false
				continue
			}
			if e.Op == OpAnd && !v.b {
				return boolValue(false), true
			}
			if e.Op == OpOr && v.b {
				return boolValue(true), true
			}
		}
		return boolValue(e.Op == OpAnd), defined
	case OpNeg:
		v, ok := eval(e.Args[0], env)
		if !ok {
			return value{}, false
		}
		return value{num: new(big.Rat).Neg(v.num)}, true
	}

	l, ok := eval(e.Args[0], env)
	if !ok {
		return value{}, false
	}
	r, ok := eval(e.Args[1], env)
	if !ok {
		return value{}, false
	}

	switch e.Op {
	case OpEq, OpNe:
		eq := false
		if l.isBool || r.isBool {
			eq = l.isBool && r.isBool && l.b == r.b
		} else {
			eq = l.num.Cmp(r.num) == 0
		}
		return boolValue(eq == (e.Op == OpEq)), true
	case OpLt:
		return boolValue(l.num.Cmp(r.num) < 0), true
	case OpLe:
		return boolValue(l.num.Cmp(r.num) <= 0), true
	case OpGt:
		return boolValue(l.num.Cmp(r.num) > 0), true
	case OpGe:
		return boolValue(l.num.Cmp(r.num) >= 0), true
	case OpAdd:
		return value{num: new(big.Rat).Add(l.num, r.num)}, true
	case OpSub:
		return value{num: new(big.Rat).Sub(l.num, r.num)}, true
	case OpMul:
		return value{num: new(big.Rat).Mul(l.num, r.num)}, true
	}

	if r.num.Sign() == 0 {
		return value{}, false
	}
	q := new(big.Rat).Quo(l.num, r.num)
	switch e.Op {
	case OpDiv:
		return value{num: q}, true
	case OpFloorDiv:
		return value{num: new(big.Rat).SetInt(floor(q))}, true
	case OpMod:
		// Python: the result takes the sign of the divisor.
		f := new(big.Rat).SetInt(floor(q))
		return value{num: new(big.Rat).Sub(l.num, f.Mul(f, r.num))}, true
	}
	return value{}, false
}

func floor(r *big.Rat) *big.Int {
	// Rat denominators are positive, so Euclidean division rounds down.
	return new(big.Int).Div(r.Num(), r.Denom())
}

func ceil(r *big.Rat) *big.Int {
	neg := new(big.Rat).Neg(r)
	return new(big.Int).Neg(floor(neg))
}

// fold evaluates variable-free subterms.
func fold(e *Expr) *Expr {
	if e.Op == OpConst || e.Op == OpVar {
		return e
	}
	args := make([]*Expr, len(e.Args))
	allConst := true
	for i, a := range e.Args {
		args[i] = fold(a)
		allConst = allConst && args[i].Op == OpConst
	}
	out := *e
	out.Args = args
	if e.Op == OpAnd || e.Op == OpOr {
		return foldJunction(&out)
	}
	if !allConst {
		return &out
	}
	v, ok := eval(&out, nil)
	if !ok {
		return &out
	}
	if v.isBool {
		return Bool(v.b)
	}
	return Rat(v.num, e.Sort)
}

func foldJunction(e *Expr) *Expr {
	var kept []*Expr
	for _, a := range e.Args {
		if a.Op == OpConst {
			if e.Op == OpAnd && !a.Bool {
				return False()
			}
			if e.Op == OpOr && a.Bool {
				return True()
			}
			continue
		}
		kept = append(kept, a)
	}
	return junction(e.Op, kept)
}

// linear is sum(coef[v]*v) + c.
type linear struct {
	coef map[string]*big.Rat
	c    *big.Rat
}

func linearize(e *Expr) (linear, bool) {
	switch e.Op {
	case OpConst:
		if e.Sort == SortBool {
			return linear{}, false
		}
		return linear{coef: map[string]*big.Rat{}, c: new(big.Rat).Set(e.Num)}, true
	case OpVar:
		if e.Sort == SortBool {
			return linear{}, false
		}
		return linear{coef: map[string]*big.Rat{e.Name: big.NewRat(1, 1)}, c: new(big.Rat)}, true
	case OpNeg:
		l, ok := linearize(e.Args[0])
		if !ok {
			return l, false
		}
		return l.scale(big.NewRat(-1, 1)), true
	case OpAdd, OpSub:
		a, ok := linearize(e.Args[0])
		if !ok {
			return a, false
		}
		b, ok := linearize(e.Args[1])
		if !ok {
			return b, false
		}
		if e.Op == OpSub {
			b = b.scale(big.NewRat(-1, 1))
		}
		return a.add(b), true
	case OpMul:
		a, ok := linearize(e.Args[0])
		if !ok {
			return a, false
		}
		b, ok := linearize(e.Args[1])
		if !ok {
			return b, false
		}
		switch {
		case len(a.coef) == 0:
			return b.scale(a.c), true
		case len(b.coef) == 0:
			return a.scale(b.c), true
		}
		return linear{}, false
	case OpDiv:
		a, ok := linearize(e.Args[0])
		if !ok {
			return a, false
		}
		b, ok := linearize(e.Args[1])
		if !ok || len(b.coef) != 0 || b.c.Sign() == 0 {
			return linear{}, false
		}
		return a.scale(new(big.Rat).Inv(b.c)), true
	}
	return linear{}, false
}

func (l linear) scale(k *big.Rat) linear {
	out := linear{coef: make(map[string]*big.Rat, len(l.coef)), c: new(big.Rat).Mul(l.c, k)}
	for v, c := range l.coef {
		if p := new(big.Rat).Mul(c, k); p.Sign() != 0 {
			out.coef[v] = p
		}
	}
	return out
}

func (l linear) add(o linear) linear {
	out := linear{coef: make(map[string]*big.Rat, len(l.coef)+len(o.coef)), c: new(big.Rat).Add(l.c, o.c)}
	for v, c := range l.coef {
		out.coef[v] = new(big.Rat).Set(c)
	}
	for v, c := range o.coef {
		sum := new(big.Rat).Add(c, coefOrZero(out.coef[v]))
		if sum.Sign() == 0 {
			delete(out.coef, v)
			continue
		}
		out.coef[v] = sum
	}
	return out
}

func coefOrZero(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return r
}
