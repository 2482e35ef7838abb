// Package reachability implements the Reachability Analyzer (core
// specification §4.2): a worklist mark-and-sweep pass over the loaded
// metadata graph, starting from the entry point, that decides which types,
// methods and generic instantiations actually need lowering and emission.
//
// The algorithm is adapted directly from tinyrange-rtg's own dead-code
// eliminator (std/compiler/dce.go): a reachable-set plus LIFO worklist seeded
// from a fixed root list (entry point, init/static-constructor functions,
// "backend-implicit" runtime roots, and every slot of an interface method
// table), a BFS scan of call instructions to discover new roots, and a final
// sweep that filters the module's function list down to the reachable
// subset while preserving declaration order. This package generalizes that
// same shape from "reachable Go functions" to "reachable CLR types, methods
// and generic instantiations".
package reachability

import (
	"sort"
	"strings"

	"github.com/axiomates/cli2cpp/internal/assembly"
	"github.com/axiomates/cli2cpp/internal/intrinsics"
)

// Result is the subset of the loaded universe the IR Builder and Code
// Generator are allowed to touch.
type Result struct {
	Types   []*assembly.TypeDef
	Methods []*assembly.MethodDef

	// Instances records the generic instantiation identity keys (§4.2,
	// §9's InstanceKey) observed during the scan — the IR Builder
	// materializes one IRType per key, sharing the open type's fields,
	// methods and vtable; the concrete arguments are not substituted into
	// those members.
	Instances map[string]*instantiationUse
}

type instantiationUse struct {
	OpenType *assembly.TypeDef
	Args     []*assembly.TypeRef
}

// analyzer holds the BFS state: the full loaded universe (already resolved
// by the Assembly Set, so no new assembly loading happens during this pass —
// see the Open Question note in DESIGN.md), plus reachable-type/method sets
// and worklists, mirroring dce.go's funcIndex/reachable/worklist trio.
type analyzer struct {
	typesByFullName map[string]*assembly.TypeDef

	reachableTypes   map[*assembly.TypeDef]bool
	reachableMethods map[*assembly.MethodDef]bool
	instantiated     map[*assembly.TypeDef]bool // types seen in a newobj

	typeWorklist   []*assembly.TypeDef
	methodWorklist []*assembly.MethodDef

	instances map[string]*instantiationUse
}

// newAnalyzer builds an analyzer primed with set's full loaded-type index,
// shared by both seeding modes (§4.2).
func newAnalyzer(set *assembly.AssemblySet) *analyzer {
	a := &analyzer{
		typesByFullName:  make(map[string]*assembly.TypeDef),
		reachableTypes:   make(map[*assembly.TypeDef]bool),
		reachableMethods: make(map[*assembly.MethodDef]bool),
		instantiated:     make(map[*assembly.TypeDef]bool),
		instances:        make(map[string]*instantiationUse),
	}
	for _, t := range set.AllLoadedTypes() {
		a.typesByFullName[t.FullName] = t
	}
	return a
}

// seedStaticConstructors adds every loaded type's static constructor as a
// method root, since the CLR runs cctors lazily on first use of the type —
// a conservative root here stands in for the "is this type ever touched"
// trigger that a full interpreter would discover per-use. Shared by both
// seeding modes.
func (a *analyzer) seedStaticConstructors(set *assembly.AssemblySet) {
	for _, t := range set.AllLoadedTypes() {
		for _, m := range t.Methods {
			if m.Name == ".cctor" {
				a.addMethodRoot(m)
			}
		}
	}
}

// Analyze runs the full mark-and-sweep pass in entry-point mode (§4.2's
// first seeding rule): entryType/entryMethod name the root method (the
// spec's entry point, §2.1), seeded together with every loaded type's static
// constructor (seedStaticConstructors). Every type reachable from these
// seeds transitively is returned in Result, sorted by assembly name and then
// full type name (typeOrderKey) — the stable ordering the Code Generator
// depends on for deterministic output (§4.5).
func Analyze(set *assembly.AssemblySet, entryType, entryMethod string) (*Result, error) {
	a := newAnalyzer(set)

	entry, ok := a.typesByFullName[entryType]
	if !ok {
		return nil, &NotFoundError{Kind: "type", Name: entryType}
	}
	var entryMD *assembly.MethodDef
	for _, m := range entry.Methods {
		if m.Name == entryMethod {
			entryMD = m
			break
		}
	}
	if entryMD == nil {
		return nil, &NotFoundError{Kind: "method", Name: entryType + "::" + entryMethod}
	}

	a.addMethodRoot(entryMD)
	a.seedStaticConstructors(set)
	a.drain()

	return a.sweep(), nil
}

// AnalyzeLibrary runs the mark-and-sweep pass in library mode (§4.2's
// second seeding rule, used when root has no entry point): every
// non-compiler-generated public type declared by root is a type seed, and
// every public method on such a type is a method seed. An empty library (no
// public types) is not an error — it sweeps to an empty Result, which the
// Code Generator still turns into a valid (empty) artifact set (§8).
func AnalyzeLibrary(set *assembly.AssemblySet, root *assembly.Assembly) (*Result, error) {
	a := newAnalyzer(set)

	for _, t := range root.Types {
		if !t.IsPublic || isCompilerGeneratedType(t) {
			continue
		}
		a.addTypeRoot(t)
		for _, m := range t.Methods {
			if m.IsPublic {
				a.addMethodRoot(m)
			}
		}
	}

	a.seedStaticConstructors(set)
	a.drain()

	return a.sweep(), nil
}

// isCompilerGeneratedType reports whether t is a compiler-synthesized type
// (closures, iterator state machines, display classes) rather than a type
// the root assembly's own source declared. These carry a leading '<' in
// their simple name per the CLR naming convention and are never part of a
// library's public surface even when marked public.
func isCompilerGeneratedType(t *assembly.TypeDef) bool {
	return strings.HasPrefix(t.SimpleName, "<")
}

// addTypeRoot marks a type (and transitively its base chain and interfaces)
// reachable, enqueuing it for member scanning.
func (a *analyzer) addTypeRoot(t *assembly.TypeDef) {
	if t == nil || a.reachableTypes[t] {
		return
	}
	a.reachableTypes[t] = true
	a.typeWorklist = append(a.typeWorklist, t)
}

func (a *analyzer) addMethodRoot(m *assembly.MethodDef) {
	if m == nil || a.reachableMethods[m] {
		return
	}
	a.reachableMethods[m] = true
	a.methodWorklist = append(a.methodWorklist, m)
	if m.Owner != nil {
		a.addTypeRoot(m.Owner)
	}
}

// resolveRef looks a TypeRef up in the loaded universe by its open-type full
// name; unresolved (not-yet-loaded, or BCL-intrinsic-only) references are
// simply not followed further — they contribute no new reachable members.
func (a *analyzer) resolveRef(ref *assembly.TypeRef) *assembly.TypeDef {
	if ref == nil {
		return nil
	}
	if len(ref.GenericArgs) > 0 {
		if open, ok := a.typesByFullName[ref.FullName]; ok {
			key := ref.InstanceKey()
			if _, seen := a.instances[key]; !seen {
				a.instances[key] = &instantiationUse{OpenType: open, Args: ref.GenericArgs}
			}
			return open
		}
		return nil
	}
	return a.typesByFullName[ref.FullName]
}

// drain is the worklist loop proper (LIFO: the most recently pushed type or
// method is scanned next): pop a type or method from its worklist and
// scan it for new roots, exactly as dce.go's eliminateDeadFunctions does for
// call instructions — generalized here to also discover type dependencies
// (base/interfaces/field types) and to mark virtual-dispatch targets once a
// receiver type is known to be instantiated.
func (a *analyzer) drain() {
	for len(a.typeWorklist) > 0 || len(a.methodWorklist) > 0 {
		for len(a.typeWorklist) > 0 {
			t := a.typeWorklist[len(a.typeWorklist)-1]
			a.typeWorklist = a.typeWorklist[:len(a.typeWorklist)-1]
			a.scanType(t)
		}
		for len(a.methodWorklist) > 0 {
			m := a.methodWorklist[len(a.methodWorklist)-1]
			a.methodWorklist = a.methodWorklist[:len(a.methodWorklist)-1]
			a.scanMethod(m)
		}
	}
}

func (a *analyzer) scanType(t *assembly.TypeDef) {
	if base := a.resolveRef(t.BaseType); base != nil {
		a.addTypeRoot(base)
	}
	for _, iface := range t.Interfaces {
		if it := a.resolveRef(iface); it != nil {
			a.addTypeRoot(it)
		}
	}
	for _, f := range t.Fields {
		if ft := a.resolveRef(f.Type); ft != nil {
			a.addTypeRoot(ft)
		}
	}
	// Virtual dispatch: once T is known instantiated, any already-reachable
	// virtual method declared on one of T's ancestors/interfaces gets its
	// override on T pulled in too (class-hierarchy-analysis style, matching
	// §4.2's "virtual methods" closure rule).
	if a.instantiated[t] {
		a.pullVirtualOverrides(t)
	}
}

func (a *analyzer) scanMethod(m *assembly.MethodDef) {
	if m.Body == nil {
		return
	}
	for _, inst := range m.Body.Code {
		switch inst.Op {
		case assembly.OpCall:
			a.addMethodRoot(inst.MethodArg)
		case assembly.OpCallvirt:
			a.addMethodRoot(inst.MethodArg)
			// Interface/virtual call: every already-instantiated subtype's
			// override also becomes reachable.
			if inst.MethodArg != nil && inst.MethodArg.Owner != nil {
				a.addTypeRoot(inst.MethodArg.Owner)
				for instType := range a.instantiated {
					if isSubtypeOrImplements(instType, inst.MethodArg.Owner) {
						if ov := findOverride(instType, inst.MethodArg); ov != nil {
							a.addMethodRoot(ov)
						}
					}
				}
			}
		case assembly.OpNewobj:
			a.addMethodRoot(inst.MethodArg)
			if inst.MethodArg != nil && inst.MethodArg.Owner != nil {
				a.markInstantiated(inst.MethodArg.Owner)
			}
		case assembly.OpLdfld, assembly.OpLdflda, assembly.OpStfld, assembly.OpLdsfld, assembly.OpStsfld:
			if inst.FieldArg != nil && inst.FieldArg.Owner != nil {
				a.addTypeRoot(inst.FieldArg.Owner)
			}
		case assembly.OpIsinst, assembly.OpCastclass, assembly.OpBox, assembly.OpUnbox, assembly.OpUnboxAny,
			assembly.OpNewarr, assembly.OpInitobj, assembly.OpConstrained:
			if t := a.resolveRef(inst.TypeArg); t != nil {
				a.addTypeRoot(t)
			}
		case assembly.OpLdftn, assembly.OpLdvirtftn:
			a.addMethodRoot(inst.MethodArg)
		case assembly.OpCallIntrinsic:
			// Intrinsic targets live in the companion runtime, not in any
			// loaded assembly's IL — nothing further to mark reachable.
		}
	}
}

// markInstantiated records that t has a live newobj site and re-enqueues it
// so scanType can pull in virtual overrides against methods already marked
// reachable before t was known instantiated.
func (a *analyzer) markInstantiated(t *assembly.TypeDef) {
	if a.instantiated[t] {
		return
	}
	a.instantiated[t] = true
	a.typeWorklist = append(a.typeWorklist, t)
}

func (a *analyzer) pullVirtualOverrides(t *assembly.TypeDef) {
	for rm := range a.reachableMethods {
		if rm.Owner == t {
			continue
		}
		if !isSubtypeOrImplements(t, rm.Owner) {
			continue
		}
		if ov := findOverride(t, rm); ov != nil {
			a.addMethodRoot(ov)
		}
	}
}

// isSubtypeOrImplements reports whether t derives from (or implements)
// ancestor, by walking t's base chain and interface list. Intrinsic/
// not-yet-loaded ancestors are treated as not matching, since there is no
// TypeDef to compare against.
func isSubtypeOrImplements(t, ancestor *assembly.TypeDef) bool {
	if ancestor == nil {
		return false
	}
	for cur := t; cur != nil; {
		if cur == ancestor {
			return true
		}
		for _, iface := range cur.Interfaces {
			if iface.FullName == ancestor.FullName {
				return true
			}
		}
		if cur.BaseType == nil {
			break
		}
		next, ok := findTypeByName(t, cur.BaseType.FullName)
		if !ok {
			break
		}
		cur = next
	}
	return false
}

// findTypeByName is a tiny local helper standing in for a proper type cache
// lookup when only the starting TypeDef is in hand; in this package's actual
// call sites the analyzer's typesByFullName map is used instead everywhere
// except this one recursive base-chain walk, which intentionally takes the
// narrowest signature that satisfies isSubtypeOrImplements' needs.
func findTypeByName(from *assembly.TypeDef, fullName string) (*assembly.TypeDef, bool) {
	if from.Assembly == nil {
		return nil, false
	}
	return from.Assembly.LookupType(fullName)
}

// findOverride locates t's own declaration of base's method by name and
// parameter count — a pragmatic stand-in for full signature matching, since
// CLR method overriding never changes parameter count.
func findOverride(t *assembly.TypeDef, base *assembly.MethodDef) *assembly.MethodDef {
	for _, m := range t.Methods {
		if m.Name == base.Name && len(m.Signature.Params) == len(base.Signature.Params) {
			return m
		}
	}
	return nil
}

// sweep filters the full loaded universe down to the reachable subset,
// sorted by typeOrderKey (assembly name, then full type name), and skips
// intrinsic-backed BCL types entirely —
// their bodies are never lowered (§2.4).
func (a *analyzer) sweep() *Result {
	r := &Result{Instances: a.instances}
	var allTypes []*assembly.TypeDef
	for t := range a.reachableTypes {
		allTypes = append(allTypes, t)
	}
	sort.Slice(allTypes, func(i, j int) bool { return typeOrderKey(allTypes[i]) < typeOrderKey(allTypes[j]) })

	for _, t := range allTypes {
		if intrinsics.IsIntrinsicType(t.FullName) {
			continue
		}
		r.Types = append(r.Types, t)
		for _, m := range t.Methods {
			if a.reachableMethods[m] {
				r.Methods = append(r.Methods, m)
			}
		}
	}
	return r
}

// typeOrderKey gives a stable sort key combining assembly name and full type
// name, since Go map iteration order is randomized and the sweep's output
// order must be deterministic (§4.5).
func typeOrderKey(t *assembly.TypeDef) string {
	asmName := ""
	if t.Assembly != nil {
		asmName = t.Assembly.Name
	}
	return asmName + "\x00" + t.FullName
}

// NotFoundError reports an entry point that does not resolve to a loaded
// type or method.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return "reachability: entry point " + e.Kind + " not found: " + e.Name
}
