// Package solver defines the constraint language used by the symbolic
// executor and the decision procedures that check it.
package solver

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"pyscan/internal/core/errors"
)

type Sort int

const (
	SortInt Sort = iota
	SortReal
	SortBool
)

func (s Sort) String() string {
	switch s {
	case SortReal:
		return "Real"
	case SortBool:
		return "Bool"
	default:
		return "Int"
	}
}

func (s Sort) numeric() bool { return s == SortInt || s == SortReal }

type Op int

const (
	OpConst Op = iota
	OpVar
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpNeg
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
)

var opSymbols = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpFloorDiv: "div", OpMod: "mod",
	OpNeg: "-", OpEq: "=", OpNe: "distinct", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "and", OpOr: "or", OpNot: "not",
}

// Expr is an immutable term. Numeric constants are exact rationals.
type Expr struct {
	Op   Op
	Sort Sort
	Name string
	Num  *big.Rat
	Bool bool
	Args []*Expr
}

var ErrSort = errors.New(errors.CodeNotSupported, "operand sorts do not match")

func Int(v int64) *Expr {
	return &Expr{Op: OpConst, Sort: SortInt, Num: new(big.Rat).SetInt64(v)}
}

// IntText parses a decimal integer literal of any size.
func IntText(text string) (*Expr, bool) {
	n, ok := new(big.Int).SetString(strings.ReplaceAll(text, "_", ""), 0)
	if !ok {
		return nil, false
	}
	return &Expr{Op: OpConst, Sort: SortInt, Num: new(big.Rat).SetInt(n)}, true
}

func Real(v float64) *Expr {
	r := new(big.Rat)
	if r.SetFloat64(v) == nil {
		return nil
	}
	return &Expr{Op: OpConst, Sort: SortReal, Num: r}
}

func Rat(r *big.Rat, sort Sort) *Expr {
	return &Expr{Op: OpConst, Sort: sort, Num: new(big.Rat).Set(r)}
}

func Bool(v bool) *Expr { return &Expr{Op: OpConst, Sort: SortBool, Bool: v} }

func True() *Expr  { return Bool(true) }
func False() *Expr { return Bool(false) }

func Var(name string, sort Sort) *Expr { return &Expr{Op: OpVar, Sort: sort, Name: name} }

// Arith builds a binary arithmetic term. Booleans are promoted to integers
// as Python does; "/" always yields a real.
func Arith(op Op, a, b *Expr) (*Expr, error) {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod:
	default:
		return nil, errors.New(errors.CodeNotSupported, fmt.Sprintf("op %d is not arithmetic", op))
	}
	a, b = promote(a), promote(b)
	if a == nil || b == nil || !a.Sort.numeric() || !b.Sort.numeric() {
		return nil, ErrSort
	}
	sort := SortInt
	if op == OpDiv || a.Sort == SortReal || b.Sort == SortReal {
		sort = SortReal
	}
	return &Expr{Op: op, Sort: sort, Args: []*Expr{a, b}}, nil
}

func Neg(a *Expr) (*Expr, error) {
	a = promote(a)
	if a == nil || !a.Sort.numeric() {
		return nil, ErrSort
	}
	return &Expr{Op: OpNeg, Sort: a.Sort, Args: []*Expr{a}}, nil
}

// Compare builds a relation. Eq and Ne also accept two booleans.
func Compare(op Op, a, b *Expr) (*Expr, error) {
	if a == nil || b == nil {
		return nil, ErrSort
	}
	switch op {
	case OpEq, OpNe:
		if a.Sort == SortBool && b.Sort == SortBool {
			return &Expr{Op: op, Sort: SortBool, Args: []*Expr{a, b}}, nil
		}
	case OpLt, OpLe, OpGt, OpGe:
	default:
		return nil, errors.New(errors.CodeNotSupported, fmt.Sprintf("op %d is not a relation", op))
	}
	a, b = promote(a), promote(b)
	if a == nil || b == nil || !a.Sort.numeric() || !b.Sort.numeric() {
		return nil, ErrSort
	}
	return &Expr{Op: op, Sort: SortBool, Args: []*Expr{a, b}}, nil
}

func And(args ...*Expr) *Expr { return junction(OpAnd, args) }
func Or(args ...*Expr) *Expr  { return junction(OpOr, args) }

func junction(op Op, args []*Expr) *Expr {
	flat := make([]*Expr, 0, len(args))
	for _, a := range args {
		if a.Op == op {
			flat = append(flat, a.Args...)
			continue
		}
		flat = append(flat, a)
	}
	switch len(flat) {
	case 0:
		return Bool(op == OpAnd)
	case 1:
		return flat[0]
	}
	return &Expr{Op: op, Sort: SortBool, Args: flat}
}

func Not(a *Expr) *Expr {
	if a.Op == OpNot {
		return a.Args[0]
	}
	if a.Op == OpConst && a.Sort == SortBool {
		return Bool(!a.Bool)
	}
	return &Expr{Op: OpNot, Sort: SortBool, Args: []*Expr{a}}
}

// Truthy converts a term to a condition with Python truthiness.
func Truthy(a *Expr) *Expr {
	if a.Sort == SortBool {
		return a
	}
	zero := &Expr{Op: OpConst, Sort: a.Sort, Num: new(big.Rat)}
	return &Expr{Op: OpNe, Sort: SortBool, Args: []*Expr{a, zero}}
}

// promote turns a boolean into the integer 0 or 1.
func promote(a *Expr) *Expr {
	if a == nil || a.Sort != SortBool {
		return a
	}
	if a.Op == OpConst {
		if a.Bool {
			return Int(1)
		}
		return Int(0)
	}
	return nil
}

func (e *Expr) IsConst() bool { return e.Op == OpConst }

// Vars returns the sorted names of the variables in e.
func (e *Expr) Vars() []string {
	seen := map[string]bool{}
	e.collectVars(seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Expr) collectVars(seen map[string]bool) {
	if e.Op == OpVar {
		seen[e.Name] = true
		return
	}
	for _, a := range e.Args {
		a.collectVars(seen)
	}
}

// String renders e in SMT-LIB prefix form.
func (e *Expr) String() string {
	switch e.Op {
	case OpConst:
		if e.Sort == SortBool {
			return fmt.Sprintf("%t", e.Bool)
		}
		if e.Num.IsInt() {
			return e.Num.Num().String()
		}
		return e.Num.RatString()
	case OpVar:
		return e.Name
	}
	parts := make([]string, 0, len(e.Args)+1)
	parts = append(parts, opSymbols[e.Op])
	for _, a := range e.Args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Substitute replaces variable name with repl throughout e.
func (e *Expr) Substitute(name string, repl *Expr) *Expr {
	if e.Op == OpVar {
		if e.Name == name {
			return repl
		}
		return e
	}
	if len(e.Args) == 0 {
		return e
	}
	changed := false
	args := make([]*Expr, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Substitute(name, repl)
		changed = changed || args[i] != a
	}
	if !changed {
		return e
	}
	out := *e
	out.Args = args
	return &out
}
