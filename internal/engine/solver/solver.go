package solver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pyscan/internal/core/errors"
)

type Result int

const (
	Unknown Result = iota
	Sat
	Unsat
)

func (r Result) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Solver is an incremental satisfiability checker with scoped assertions.
// Implementations are not safe for concurrent use; each symbolic session
// owns one.
type Solver interface {
	// Assert adds a boolean term to the current scope.
	Assert(e *Expr) error
	// Push opens a scope; Pop discards every assertion made since the
	// matching Push.
	Push()
	Pop() error
	// Depth is the number of open scopes.
	Depth() int
	// Check decides the conjunction of all live assertions. Unknown means
	// the budget ran out or the fragment is beyond the backend.
	Check(ctx context.Context) (Result, error)
	// Model returns the witness of the last Sat answer, keyed by variable.
	Model() map[string]string
	Reset()
	Stats() Stats
	Name() string
	Close() error
}

// Stats counts what one solver instance has done.
type Stats struct {
	Checks  int `json:"checks"`
	Sat     int `json:"sat"`
	Unsat   int `json:"unsat"`
	Unknown int `json:"unknown"`
	Steps   int `json:"steps"`
}

func (s *Stats) record(r Result) {
	s.Checks++
	switch r {
	case Sat:
		s.Sat++
	case Unsat:
		s.Unsat++
	default:
		s.Unknown++
	}
}

// Options bound every Check call.
type Options struct {
	Timeout    time.Duration
	StepBudget int
}

const (
	BackendBounded = "bounded"
	BackendZ3      = "z3"

	DefaultTimeout    = 2 * time.Second
	DefaultStepBudget = 20000
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StepBudget <= 0 {
		o.StepBudget = DefaultStepBudget
	}
	return o
}

type Factory func(Options) (Solver, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{
		BackendBounded: func(o Options) (Solver, error) { return NewBounded(o), nil },
	}
)

// Register makes a backend available to New. Backends compiled in behind
// build tags call it from init.
func Register(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]string, 0, len(backends))
	for name := range backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New creates a solver of the named backend.
func New(backend string, opts Options) (Solver, error) {
	backendsMu.RLock()
	f, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		err := errors.New(errors.CodeNotSupported, fmt.Sprintf("solver backend %q is not available in this build", backend))
		return nil, errors.AddContext(err, errors.CtxBackend, backend)
	}
	return f(opts.withDefaults())
}

// scopes tracks assertions per Push level for backends that re-check from
// scratch.
type scopes struct {
	frames [][]*Expr
}

func (s *scopes) assert(e *Expr) {
	if len(s.frames) == 0 {
		s.frames = append(s.frames, nil)
	}
	top := len(s.frames) - 1
	s.frames[top] = append(s.frames[top], e)
}

func (s *scopes) push() {
	if len(s.frames) == 0 {
		s.frames = append(s.frames, nil)
	}
	s.frames = append(s.frames, nil)
}

func (s *scopes) pop() error {
	if len(s.frames) <= 1 {
		return errors.New(errors.CodeInternal, "solver pop without matching push")
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *scopes) depth() int {
	if len(s.frames) == 0 {
		return 0
	}
	return len(s.frames) - 1
}

func (s *scopes) all() []*Expr {
	var out []*Expr
	for _, f := range s.frames {
		out = append(out, f...)
	}
	return out
}

func (s *scopes) reset() { s.frames = nil }

func checkBool(e *Expr) error {
	if e == nil || e.Sort != SortBool {
		return errors.New(errors.CodeValidationError, "assertion is not boolean")
	}
	return nil
}
