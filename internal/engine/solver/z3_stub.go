//go:build !z3

package solver

// Z3Available reports whether the libz3 backend is compiled in. Build with
// -tags z3 to enable it.
func Z3Available() bool { return false }
