package patterns

// fixes maps a pattern id to its remediation hints, most useful first.
var fixes = map[string][]string{
	"null_dereference": {
		"Check the value against None before using it",
		"Return early or raise when the value is missing",
	},
	"resource_leak": {
		"Open the resource in a with statement",
		"Close it in a finally block",
	},
	"division_by_zero": {
		"Guard the divisor against zero",
		"Handle ZeroDivisionError where the operation happens",
	},
	DivisionByZeroSymbolic: {
		"Validate the divisor before dividing",
		"Add a precondition that rules out zero",
	},
	UnreachableCode: {
		"Remove or merge branches whose conditions contradict earlier ones",
	},
	"missing_type_hints": {
		"Annotate parameters and the return value",
	},
	"long_function": {
		"Split the function into smaller helpers",
		"Move independent steps into their own functions",
	},
	"high_complexity": {
		"Extract branches into helper functions",
		"Replace condition chains with a lookup table",
	},
	"unused_variable": {
		"Delete the assignment or prefix the name with an underscore",
	},
	"unused_import": {
		"Delete the import",
	},
	"hardcoded_password": {
		"Read the secret from the environment or a secrets manager",
		"Keep credentials out of version control",
	},
	"leaked_secret": {
		"Revoke the credential and issue a new one",
		"Load tokens from the environment at run time",
	},
	"sql_injection": {
		"Pass values as query parameters",
		"Use an ORM or query builder",
	},
	"potential_loop_infinite": {
		"Make sure the loop body always reaches a break",
		"Use an explicit exit condition",
	},
	"unsafe_deserialization": {
		"Use json or yaml.safe_load for untrusted input",
		"Avoid eval and exec on external data",
	},
	"command_injection": {
		"Pass arguments as a list without shell=True",
		"Quote untrusted input with shlex.quote",
	},
	"path_traversal": {
		"Build paths with os.path.join and check the result stays under a base directory",
		"Normalise the path with os.path.realpath before use",
	},
	"weak_cryptography": {
		"Use hashlib.sha256 or stronger",
		"Use AES from a maintained library",
	},
	"insecure_random": {
		"Use the secrets module for security-sensitive values",
	},
	"potential_xxe": {
		"Parse untrusted XML with defusedxml",
		"Disable external entity resolution on the parser",
	},
	"deep_nested_loops": {
		"Extract inner loops into functions",
		"Precompute lookups to flatten the iteration",
	},
	"string_concat_in_loop": {
		"Collect the parts in a list and join them once",
	},
	"loop_invariant_code": {
		"Move the computation before the loop",
	},
	"complex_list_comprehension": {
		"Rewrite the comprehension as explicit loops",
	},
	"frequent_global_access": {
		"Bind the global to a local name before the hot path",
		"Pass the value in as a parameter",
	},
	"inefficient_membership_test": {
		"Use a set literal for membership tests",
	},
	"unnecessary_copy": {
		"Iterate over the original sequence unless it is mutated in the loop",
	},
}

// Suggest returns the primary fix for a pattern id, or "" when none is known.
func Suggest(id string) string {
	if hints := fixes[id]; len(hints) > 0 {
		return hints[0]
	}
	return ""
}

// SuggestFixes returns every known fix for a pattern id.
func SuggestFixes(id string) []string {
	return append([]string(nil), fixes[id]...)
}
