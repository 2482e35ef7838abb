// Package assembly implements the Assembly Resolver and Assembly Set (core
// specification §4.1) plus the metadata-graph data model they expose (§3):
// Assembly, TypeDef, FieldDef, MethodDef and the bytecode body each method
// carries. The binary container these are read from lives in
// internal/cilbin; this package only knows the resolved, linked-up graph.
package assembly

// Kind classifies a loaded assembly as carrying user code or being part of
// the base-class library the runtime ships hand-written support for.
type Kind int

const (
	User Kind = iota
	BCL
)

func (k Kind) String() string {
	if k == User {
		return "User"
	}
	return "BCL"
}

// EntryPoint names the method token an assembly's CLI header designates as
// Main, when present.
type EntryPoint struct {
	TypeName   string
	MethodName string
}

// Assembly is a unit of metadata and code, identified by its simple name.
type Assembly struct {
	Name    string
	Path    string
	Modules []*Module
	Types   []*TypeDef
	Entry   *EntryPoint // nil for libraries

	// byFullName indexes Types for O(1) lookup by dotted+backtick-arity
	// full name, populated by AddType.
	byFullName map[string]*TypeDef
}

// Module is a single metadata module within an assembly. Assemblies retrieved
// through internal/cilbin always have exactly one; the slice exists because
// ECMA-335 permits multi-module assemblies and §3 models Assembly as owning
// "modules" plural.
type Module struct {
	Name string
}

// NewAssembly constructs an empty Assembly ready to receive types via AddType.
func NewAssembly(name, path string) *Assembly {
	return &Assembly{
		Name:       name,
		Path:       path,
		byFullName: make(map[string]*TypeDef),
	}
}

// AddType registers a TypeDef under the assembly, indexed by full name.
// The <Module> pseudo-type is always skipped, per §3.
func (a *Assembly) AddType(t *TypeDef) {
	if t.SimpleName == "<Module>" {
		return
	}
	t.Assembly = a
	a.Types = append(a.Types, t)
	a.byFullName[t.FullName] = t
}

// LookupType finds a type by its full metadata name within this assembly.
func (a *Assembly) LookupType(fullName string) (*TypeDef, bool) {
	t, ok := a.byFullName[fullName]
	return t, ok
}

// TypeRef is an unresolved reference to a type, possibly in another
// assembly, as it appears in a signature or instruction operand before
// resolution.
type TypeRef struct {
	AssemblyName string // "" means "same assembly as the referencing type"
	FullName     string // dotted+backtick-arity, "/"-nested

	// GenericArgs is non-empty when this reference names a generic
	// instance, e.g. Foo<Int32> — the open form is FullName alone.
	GenericArgs []*TypeRef
}

// InstanceKey returns the identity key a generic instantiation is tracked
// under: (open_type_full_name, concrete_arg_full_names), per §4.2/§9.
func (r *TypeRef) InstanceKey() string {
	if len(r.GenericArgs) == 0 {
		return r.FullName
	}
	key := r.FullName
	for _, a := range r.GenericArgs {
		key += "," + a.InstanceKey()
	}
	return key
}

// TypeDef is the source metadata view of a type (§3).
type TypeDef struct {
	Assembly *Assembly

	SimpleName string
	Namespace  string
	FullName   string // dotted+backtick-arity for generics, "/"-nested for nesting

	BaseType   *TypeRef // nil for System.Object and interfaces with no base
	Interfaces []*TypeRef

	Fields  []*FieldDef
	Methods []*MethodDef

	GenericParams []string // names of the type's own generic parameters, e.g. ["T"]

	EnumUnderlying string // set only when IsEnum

	IsValueType bool
	IsInterface bool
	IsAbstract  bool
	IsSealed    bool
	IsEnum      bool
	IsNested    bool
	IsPublic    bool

	// GenericInstance is non-nil when this TypeDef represents an
	// instantiation of an open generic type (Foo<Int32>, not Foo<!0>).
	// OpenType points at the generic type definition; Args holds the
	// concrete type arguments in declaration order.
	GenericInstance *GenericInstance

	Attributes []CustomAttribute
}

// GenericInstance records the open type and concrete arguments a generic
// instantiation TypeDef was built from; see §4.2's generic-handling rule and
// §9's "never mutate the open type" note.
type GenericInstance struct {
	OpenType *TypeDef
	Args     []*TypeRef
}

// IsGeneric reports whether this TypeDef is an open generic type definition
// (has its own unbound generic parameters and is not itself an instance).
func (t *TypeDef) IsGeneric() bool {
	return len(t.GenericParams) > 0 && t.GenericInstance == nil
}

// FieldDef is a field attached to a TypeDef (§3).
type FieldDef struct {
	Owner *TypeDef

	Name     string
	Type     *TypeRef
	IsStatic bool
	IsInit   bool // is_init_only

	// Literal is non-nil when the field carries a compile-time constant
	// value (an enum member, or a `const`-like literal field).
	Literal *ConstantValue
}

// ConstantValue holds a literal field or custom-attribute argument value.
// Only primitive and string encodings are modeled — blob-typed custom
// attribute arguments are explicitly out of scope per §9's Open Questions.
type ConstantValue struct {
	Kind  ConstantKind
	I64   int64
	F64   float64
	Str   string
	Bool  bool
}

// ConstantKind discriminates the payload carried by a ConstantValue.
type ConstantKind int

const (
	ConstNone ConstantKind = iota
	ConstInt
	ConstFloat
	ConstString
	ConstBool
	ConstNull
)

// CustomAttribute is a custom-attribute application, argument-limited per
// §9's Open Question on blob-typed arguments (only primitive/string args
// are kept; others are recorded as present but unreadable).
type CustomAttribute struct {
	TypeName string
	Args     []ConstantValue
}

// Param describes one method parameter (the receiver, when present, is
// modeled separately via Signature.IsStatic rather than as a Param).
type Param struct {
	Name string
	Type *TypeRef
}

// Signature is a method's parameter/return shape and calling-convention
// flags (§3's "signature" field of MethodDef).
type Signature struct {
	Params       []Param
	Return       *TypeRef // nil means void
	IsStatic     bool
	IsVirtual    bool
	IsAbstract   bool
	IsConstructor bool
}

// ExceptionHandler is one entry of a method's exception-region table,
// ordered outer-first per §4.3.
type ExceptionHandler struct {
	Kind         HandlerKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	FilterStart  int     // valid only when Kind == HandlerFilter
	CatchType    *TypeRef // valid only when Kind == HandlerCatch
}

// HandlerKind discriminates an exception handler's form.
type HandlerKind int

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

// SequencePoint maps a bytecode offset to a source location, used by the
// IR Builder's debug-mapping pass (§4.3) when symbols are available.
type SequencePoint struct {
	Offset int
	File   string
	Line   int
	Column int
}

// LocalVar is one entry of a method body's local-variable signature.
type LocalVar struct {
	Name string // may be empty; portable PDBs may not carry names
	Type *TypeRef
}

// MethodBody holds the bytecode and supporting tables for a method that has
// one (abstract/extern methods have a nil Body).
type MethodBody struct {
	Code            []Instruction
	ExceptionRegions []ExceptionHandler
	Locals          []LocalVar
	SequencePoints  []SequencePoint
	MaxStack        int
	InitLocals      bool
}

// MethodDef is a method attached to a TypeDef (§3).
type MethodDef struct {
	Owner *TypeDef

	Name      string
	Signature Signature
	Body      *MethodBody // nil when abstract/extern/interface method

	Attributes []CustomAttribute

	IsPublic bool

	// GenericParams names this method's own generic parameters (distinct
	// from its declaring type's), e.g. a generic method on a non-generic
	// type.
	GenericParams []string
}

// FullName renders a method reference in the "Namespace.Type::Method" form
// every diagnostic (§7) and test scenario (§8) is specified against.
func (m *MethodDef) FullName() string {
	owner := "<unknown>"
	if m.Owner != nil {
		owner = m.Owner.FullName
	}
	return owner + "::" + m.Name
}
