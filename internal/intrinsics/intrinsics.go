// Package intrinsics implements the Intrinsic Call Registry (core
// specification §2.4): a static table mapping a BCL method identity to the
// C++ runtime symbol that implements it directly, bypassing IR lowering of a
// body that was never compiled from bytecode in the first place.
//
// The table shape is lifted from tinyrange-rtg's own runtime escape hatch —
// std/runtime/runtime.go marks a handful of functions with a
// "//rtg:internal Name" comment directive immediately above a body-less Go
// function declaration, which its backend recognizes and replaces with a
// hand-written implementation rather than compiling. This package plays the
// same role for BCL methods: instead of a source-level comment directive
// (there is no source here, only metadata), the same association is made by
// a static Go map keyed on the triple the spec names (§2.4).
package intrinsics

import "fmt"

// Key identifies a callable method by the identity the registry keys on:
// its declaring type's full metadata name, its own name, and its arity
// (parameter count, receiver excluded) — the triple the spec (§2.4) requires
// a registry lookup to match on before falling through to ordinary
// resolution.
type Key struct {
	TypeFullName string
	MethodName   string
	Arity        int
}

// entry holds the C++ runtime symbol a registered method is lowered to.
type entry struct {
	symbol string
}

// registry is the static table. Populated from the BCL surface this
// compiler's runtime actually supports — console/string/math primitives,
// matching the scope a from-scratch companion runtime can realistically
// carry (core spec §2.2, §9).
var registry = map[Key]entry{
	{"System.Console", "WriteLine", 0}:  {"rtg::console::write_line_empty"},
	{"System.Console", "WriteLine", 1}:  {"rtg::console::write_line"},
	{"System.Console", "Write", 1}:      {"rtg::console::write"},
	{"System.Console", "ReadLine", 0}:   {"rtg::console::read_line"},

	{"System.String", "Concat", 2}:      {"rtg::string_concat"},
	{"System.String", "Equals", 1}:      {"rtg::string_equal"},
	{"System.String", "get_Length", 0}:  {"rtg::string_length"},
	{"System.String", "Substring", 1}:   {"rtg::string_substring1"},
	{"System.String", "Substring", 2}:   {"rtg::string_substring2"},
	{"System.String", "ToUpper", 0}:     {"rtg::string_to_upper"},
	{"System.String", "ToLower", 0}:     {"rtg::string_to_lower"},

	{"System.Math", "Abs", 1}:   {"rtg::math_abs"},
	{"System.Math", "Max", 2}:   {"rtg::math_max"},
	{"System.Math", "Min", 2}:   {"rtg::math_min"},
	{"System.Math", "Sqrt", 1}:  {"rtg::math_sqrt"},
	{"System.Math", "Pow", 2}:   {"rtg::math_pow"},

	{"System.Object", "ToString", 0}:  {"rtg::object_to_string"},
	{"System.Object", "GetType", 0}:   {"rtg::object_get_type"},
	{"System.Object", "Equals", 1}:    {"rtg::object_equals"},

	{"System.Int32", "ToString", 0}: {"rtg::int32_to_string"},
	{"System.Int32", "Parse", 1}:    {"rtg::int32_parse"},

	{"System.Array", "get_Length", 0}: {"rtg::array_length"},

	{"System.Exception", ".ctor", 1}: {"rtg::exception_ctor_message"},
	{"System.Exception", "get_Message", 0}: {"rtg::exception_message"},
}

// Lookup reports whether (typeFullName, methodName, arity) has a registered
// runtime symbol, and what it is. The IR Builder's call-lowering pass (§4.3)
// consults this before treating a call target as an ordinary method — a hit
// here lowers the call to a direct Call on the returned runtime symbol
// instead of a regular call/callvirt lowering.
func Lookup(typeFullName, methodName string, arity int) (symbol string, ok bool) {
	e, ok := registry[Key{typeFullName, methodName, arity}]
	if !ok {
		return "", false
	}
	return e.symbol, true
}

// MustLookup is Lookup with a panic on miss, for callers that have already
// checked Lookup succeeds and want the symbol without re-threading the ok
// bool — never a substitute for the real Lookup check at a call site that
// might legitimately miss.
func MustLookup(typeFullName, methodName string, arity int) string {
	symbol, ok := Lookup(typeFullName, methodName, arity)
	if !ok {
		panic(fmt.Sprintf("intrinsics: no registered symbol for %s::%s/%d", typeFullName, methodName, arity))
	}
	return symbol
}

// IsIntrinsicType reports whether a type's methods are ever resolved through
// this registry at all — used by the Reachability Analyzer (§4.2) to avoid
// pulling in a body-less BCL type definition as if it needed full member
// reachability the way user types do.
func IsIntrinsicType(typeFullName string) bool {
	for k := range registry {
		if k.TypeFullName == typeFullName {
			return true
		}
	}
	return false
}
