// Package namemap implements the Name Mapper (core specification §4.4):
// translation of metadata names (types, methods, fields) to C++-safe
// identifiers, primitive/value-type classification, and default-value
// synthesis for the emitted declarations.
//
// Mangling follows the same "qualify, then sanitize" shape as tinyrange-rtg's
// own Package.QualName/QualPtrName (std/compiler/frontend.go): a name is
// always addressed by its full qualified path, memoized the first time it is
// computed, rather than re-derived from pieces scattered across callers.
package namemap

import (
	"strconv"
	"strings"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

// Mapper mangles metadata names to C++ identifiers and tracks which generic
// instantiations have been registered as concrete value types, so callers
// consistently decide whether to pass a type by value or by pointer.
type Mapper struct {
	mangledTypes   map[string]string
	mangledMethods map[string]string
	mangledFields  map[string]string
	valueTypes     map[string]bool
}

// New constructs an empty Mapper.
func New() *Mapper {
	return &Mapper{
		mangledTypes:   make(map[string]string),
		mangledMethods: make(map[string]string),
		mangledFields:  make(map[string]string),
		valueTypes:     make(map[string]bool),
	}
}

var primitiveCppNames = map[string]string{
	"System.Void":    "void",
	"System.Boolean": "bool",
	"System.Char":    "char16_t",
	"System.SByte":   "int8_t",
	"System.Byte":    "uint8_t",
	"System.Int16":   "int16_t",
	"System.UInt16":  "uint16_t",
	"System.Int32":   "int32_t",
	"System.UInt32":  "uint32_t",
	"System.Int64":   "int64_t",
	"System.UInt64":  "uint64_t",
	"System.Single":  "float",
	"System.Double":  "double",
	"System.IntPtr":  "intptr_t",
	"System.UIntPtr": "uintptr_t",
}

// IsPrimitive reports whether fullName names a CLR primitive with a direct
// C++ built-in representation.
func IsPrimitive(fullName string) bool {
	_, ok := primitiveCppNames[fullName]
	return ok
}

// RegisterValueType records that fullName is a value type for the remainder
// of this compile — the Name Mapper never infers value-vs-reference
// semantics itself (that's the metadata graph's IsValueType flag, set by
// internal/cilbin); this just lets callers that only have a name in hand
// (e.g. a TypeRef) ask the question without walking back to the TypeDef.
func (m *Mapper) RegisterValueType(fullName string) {
	m.valueTypes[fullName] = true
}

// ClearValueTypes resets the value-type registry, for a caller that reuses
// one Mapper across independent compiles; the CLI builds a fresh Mapper per
// compile instead.
func (m *Mapper) ClearValueTypes() {
	m.valueTypes = make(map[string]bool)
}

// IsValueType reports whether fullName was registered as a value type.
func (m *Mapper) IsValueType(fullName string) bool {
	return m.valueTypes[fullName]
}

// MangleType turns a dotted, possibly backtick-arity, possibly "/"-nested
// metadata type name into a flat, collision-free C++ identifier, memoized so
// every reference to the same type produces byte-identical text across the
// whole emitted program — the same memoization discipline as QualName.
func (m *Mapper) MangleType(fullName string) string {
	if mangled, ok := m.mangledTypes[fullName]; ok {
		return mangled
	}
	mangled := sanitize(fullName)
	m.mangledTypes[fullName] = mangled
	return mangled
}

// MangleGenericInstance mangles the identity of a closed generic
// instantiation, combining the open type's mangled name with each concrete
// argument's mangled name — matching the InstanceKey identity rule (§4.2,
// §9) so two call sites instantiating the same closed shape always agree on
// its C++ name.
func (m *Mapper) MangleGenericInstance(openFullName string, argFullNames []string) string {
	key := openFullName
	for _, a := range argFullNames {
		key += "," + a
	}
	if mangled, ok := m.mangledTypes[key]; ok {
		return mangled
	}
	parts := make([]string, 0, len(argFullNames)+1)
	parts = append(parts, sanitize(openFullName))
	for _, a := range argFullNames {
		parts = append(parts, sanitize(a))
	}
	mangled := strings.Join(parts, "__")
	m.mangledTypes[key] = mangled
	return mangled
}

// MangleMethod mangles a method to a C++ function name, qualified by its
// owning type's mangled name so overloads across unrelated types never
// collide; methods overloaded on parameter count within the same type are
// disambiguated by an appended arity suffix, since this compiler does not
// attempt C++-level overload resolution on emitted signatures.
func (m *Mapper) MangleMethod(ownerFullName, methodName string, arity int) string {
	key := ownerFullName + "::" + methodName + "/" + strconv.Itoa(arity)
	if mangled, ok := m.mangledMethods[key]; ok {
		return mangled
	}
	base := m.MangleType(ownerFullName) + "__" + sanitize(methodName)
	mangled := base + "_" + strconv.Itoa(arity)
	m.mangledMethods[key] = mangled
	return mangled
}

// MangleField mangles a field to a C++ member name.
func (m *Mapper) MangleField(ownerFullName, fieldName string) string {
	key := ownerFullName + "::" + fieldName
	if mangled, ok := m.mangledFields[key]; ok {
		return mangled
	}
	mangled := sanitize(fieldName)
	m.mangledFields[key] = mangled
	return mangled
}

// CppTypeNameForSignature renders a TypeRef as it appears in a parameter,
// return, or field declaration: primitives by value, value types by value,
// reference types (classes, interfaces, arrays, strings, boxed values) by a
// runtime-managed pointer — rtg::gc_ptr<T>, the companion runtime's smart
// pointer.
func (m *Mapper) CppTypeNameForSignature(ref *assembly.TypeRef) string {
	if ref == nil {
		return "void"
	}
	if cpp, ok := primitiveCppNames[ref.FullName]; ok {
		return cpp
	}
	if strings.HasPrefix(ref.FullName, "!") {
		// Unsubstituted generic parameter ("!N"/"!!N"). The IR Builder
		// does not substitute generic arguments into members, so this
		// placeholder is what emitted code carries for such a type.
		return "/* unresolved generic parameter " + ref.FullName + " */ void*"
	}
	if len(ref.GenericArgs) > 0 {
		argNames := make([]string, len(ref.GenericArgs))
		for i, a := range ref.GenericArgs {
			argNames[i] = a.FullName
		}
		inst := m.MangleGenericInstance(ref.FullName, argNames)
		if m.IsValueType(ref.InstanceKey()) {
			return inst
		}
		return "rtg::gc_ptr<" + inst + ">"
	}
	mangled := m.MangleType(ref.FullName)
	if m.IsValueType(ref.FullName) {
		return mangled
	}
	return "rtg::gc_ptr<" + mangled + ">"
}

// CppTypeNameForDecl renders a type's own struct/class declaration name —
// the bare mangled name, with no gc_ptr wrapper, since a type never wraps
// itself in its own definition.
func (m *Mapper) CppTypeNameForDecl(fullName string) string {
	return m.MangleType(fullName)
}

// DefaultValue renders the C++ expression for a type's zero/default value,
// used to initialize fields and locals per CLR default-value semantics
// (value types zero-initialize their storage; reference types default to
// null).
func (m *Mapper) DefaultValue(ref *assembly.TypeRef) string {
	if ref == nil {
		return "{}"
	}
	switch ref.FullName {
	case "System.Boolean":
		return "false"
	case "System.Char", "System.SByte", "System.Byte", "System.Int16", "System.UInt16",
		"System.Int32", "System.UInt32", "System.Int64", "System.UInt64",
		"System.IntPtr", "System.UIntPtr":
		return "0"
	case "System.Single", "System.Double":
		return "0.0"
	}
	if m.IsValueType(ref.FullName) {
		return m.MangleType(ref.FullName) + "{}"
	}
	return "nullptr"
}

// sanitize replaces every character a C++ identifier can't contain with an
// underscore, and namespaces dots/backtick-arity/nesting slashes as double
// underscores so the result stays readable.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.' || r == '/' || r == '`' || r == '<' || r == '>' || r == ',' || r == '+':
			b.WriteString("__")
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
