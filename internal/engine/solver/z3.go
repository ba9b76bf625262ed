//go:build z3

package solver

/*
#cgo LDFLAGS: -lz3
#include <stdlib.h>
#include <z3.h>
*/
import "C"

import (
	"context"
	"strconv"
	"unsafe"

	"pyscan/internal/core/errors"
)

func init() {
	Register(BackendZ3, func(o Options) (Solver, error) { return newZ3(o) })
}

// Z3Available reports whether the libz3 backend is compiled in.
func Z3Available() bool { return true }

// z3Solver delegates to libz3. Terms are created in a context without
// reference counting, so they live until Close.
type z3Solver struct {
	ctx    C.Z3_context
	solver C.Z3_solver
	depth  int
	stats  Stats
	model  map[string]string
	consts map[string]C.Z3_ast
}

func newZ3(opts Options) (*z3Solver, error) {
	cfg := C.Z3_mk_config()
	if cfg == nil {
		return nil, errors.New(errors.CodeInternal, "z3: cannot create config")
	}
	defer C.Z3_del_config(cfg)

	setParam(cfg, "timeout", strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
	setParam(cfg, "model", "true")

	ctx := C.Z3_mk_context(cfg)
	if ctx == nil {
		return nil, errors.New(errors.CodeInternal, "z3: cannot create context")
	}
	s := C.Z3_mk_solver(ctx)
	if s == nil {
		C.Z3_del_context(ctx)
		return nil, errors.New(errors.CodeInternal, "z3: cannot create solver")
	}
	C.Z3_solver_inc_ref(ctx, s)
	return &z3Solver{ctx: ctx, solver: s, consts: map[string]C.Z3_ast{}}, nil
}

func setParam(cfg C.Z3_config, key, val string) {
	k, v := C.CString(key), C.CString(val)
	defer C.free(unsafe.Pointer(k))
	defer C.free(unsafe.Pointer(v))
	C.Z3_set_param_value(cfg, k, v)
}

func (z *z3Solver) Name() string { return BackendZ3 }

func (z *z3Solver) Assert(e *Expr) error {
	if err := checkBool(e); err != nil {
		return err
	}
	ast, err := z.term(e)
	if err != nil {
		return err
	}
	C.Z3_solver_assert(z.ctx, z.solver, ast)
	return nil
}

func (z *z3Solver) Push() {
	C.Z3_solver_push(z.ctx, z.solver)
	z.depth++
}

func (z *z3Solver) Pop() error {
	if z.depth == 0 {
		return errors.New(errors.CodeInternal, "solver pop without matching push")
	}
	C.Z3_solver_pop(z.ctx, z.solver, 1)
	z.depth--
	return nil
}

func (z *z3Solver) Depth() int { return z.depth }

func (z *z3Solver) Check(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Unknown, err
	}
	var res Result
	switch C.Z3_solver_check(z.ctx, z.solver) {
	case C.Z3_L_TRUE:
		res = Sat
	case C.Z3_L_FALSE:
		res = Unsat
	default:
		res = Unknown
	}
	z.stats.record(res)
	z.model = nil
	if res == Sat {
		z.model = z.readModel()
	}
	return res, nil
}

func (z *z3Solver) readModel() map[string]string {
	m := C.Z3_solver_get_model(z.ctx, z.solver)
	if m == nil {
		return nil
	}
	C.Z3_model_inc_ref(z.ctx, m)
	defer C.Z3_model_dec_ref(z.ctx, m)

	out := make(map[string]string, len(z.consts))
	for name, c := range z.consts {
		var v C.Z3_ast
		if C.Z3_model_eval(z.ctx, m, c, C.bool(true), &v) {
			out[name] = C.GoString(C.Z3_ast_to_string(z.ctx, v))
		}
	}
	return out
}

func (z *z3Solver) Model() map[string]string {
	out := make(map[string]string, len(z.model))
	for k, v := range z.model {
		out[k] = v
	}
	return out
}

func (z *z3Solver) Reset() {
	C.Z3_solver_reset(z.ctx, z.solver)
	z.depth = 0
	z.model = nil
}

func (z *z3Solver) Stats() Stats { return z.stats }

func (z *z3Solver) Close() error {
	if z.ctx == nil {
		return nil
	}
	C.Z3_solver_dec_ref(z.ctx, z.solver)
	C.Z3_del_context(z.ctx)
	z.ctx, z.solver = nil, nil
	return nil
}

func (z *z3Solver) sort(s Sort) C.Z3_sort {
	switch s {
	case SortReal:
		return C.Z3_mk_real_sort(z.ctx)
	case SortBool:
		return C.Z3_mk_bool_sort(z.ctx)
	default:
		return C.Z3_mk_int_sort(z.ctx)
	}
}

func (z *z3Solver) term(e *Expr) (C.Z3_ast, error) {
	switch e.Op {
	case OpConst:
		if e.Sort == SortBool {
			if e.Bool {
				return C.Z3_mk_true(z.ctx), nil
			}
			return C.Z3_mk_false(z.ctx), nil
		}
		text := C.CString(e.Num.RatString())
		defer C.free(unsafe.Pointer(text))
		return C.Z3_mk_numeral(z.ctx, text, z.sort(e.Sort)), nil
	case OpVar:
		if c, ok := z.consts[e.Name]; ok {
			return c, nil
		}
		name := C.CString(e.Name)
		defer C.free(unsafe.Pointer(name))
		c := C.Z3_mk_const(z.ctx, C.Z3_mk_string_symbol(z.ctx, name), z.sort(e.Sort))
		z.consts[e.Name] = c
		return c, nil
	}

	args := make([]C.Z3_ast, len(e.Args))
	for i, a := range e.Args {
		t, err := z.term(a)
		if err != nil {
			return nil, err
		}
		if e.Sort == SortReal && a.Sort == SortInt {
			t = C.Z3_mk_int2real(z.ctx, t)
		}
		args[i] = t
	}
	if isRelation(e.Op) && len(e.Args) == 2 && e.Args[0].Sort != e.Args[1].Sort {
		for i, a := range e.Args {
			if a.Sort == SortInt {
				args[i] = C.Z3_mk_int2real(z.ctx, args[i])
			}
		}
	}
	n := C.uint(len(args))
	ptr := (*C.Z3_ast)(unsafe.Pointer(&args[0]))

	switch e.Op {
	case OpAdd:
		return C.Z3_mk_add(z.ctx, n, ptr), nil
	case OpSub:
		return C.Z3_mk_sub(z.ctx, n, ptr), nil
	case OpMul:
		return C.Z3_mk_mul(z.ctx, n, ptr), nil
	case OpDiv, OpFloorDiv:
		return C.Z3_mk_div(z.ctx, args[0], args[1]), nil
	case OpMod:
		return C.Z3_mk_mod(z.ctx, args[0], args[1]), nil
	case OpNeg:
		return C.Z3_mk_unary_minus(z.ctx, args[0]), nil
	case OpEq:
		return C.Z3_mk_eq(z.ctx, args[0], args[1]), nil
	case OpNe:
		return C.Z3_mk_not(z.ctx, C.Z3_mk_eq(z.ctx, args[0], args[1])), nil
	case OpLt:
		return C.Z3_mk_lt(z.ctx, args[0], args[1]), nil
	case OpLe:
		return C.Z3_mk_le(z.ctx, args[0], args[1]), nil
	case OpGt:
		return C.Z3_mk_gt(z.ctx, args[0], args[1]), nil
	case OpGe:
		return C.Z3_mk_ge(z.ctx, args[0], args[1]), nil
	case OpAnd:
		return C.Z3_mk_and(z.ctx, n, ptr), nil
	case OpOr:
		return C.Z3_mk_or(z.ctx, n, ptr), nil
	case OpNot:
		return C.Z3_mk_not(z.ctx, args[0]), nil
	}
	return nil, errors.New(errors.CodeNotSupported, "z3: unsupported term "+e.String())
}

func isRelation(op Op) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}
