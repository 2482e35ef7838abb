package ir

import (
	"sort"

	"github.com/axiomates/cli2cpp/internal/namemap"
	"github.com/axiomates/cli2cpp/internal/reachability"
)

// Build constructs a Module from a reachability.Result: the structural pass
// (§4.3 steps 1-5) followed by per-method body lowering, then generic
// instantiation materialization, then entry-point linking. This is
// CompileModule's counterpart (std/compiler/ir.go) — sequencing "allocate
// every type shell, then fill bodies" the same way, generalized from a
// single-pass Go-source compile to a two-pass bytecode lower (the
// structural shells must all exist before any body lowering can resolve a
// cross-type reference).
func Build(result *reachability.Result, nm *namemap.Mapper, entryTypeName, entryMethodName string, debugSymbols bool) (*Module, error) {
	b, _, err := buildStructural(result.Types, nm)
	if err != nil {
		return nil, err
	}
	b.debugSymbols = debugSymbols
	mod := b.mod

	for _, it := range mod.Types {
		if it.Source == nil {
			continue // proxy interface, no body to lower
		}
		for _, m := range it.Methods {
			if err := b.lowerBody(it, m, m.Source); err != nil {
				return nil, err
			}
		}
	}

	materializeGenericInstances(b, result)

	if entryTypeName != "" {
		if it, ok := b.typesByFullName[entryTypeName]; ok {
			for _, m := range it.Methods {
				if m.SourceName == entryMethodName {
					m.IsEntryPoint = true
					mod.EntryPoint = m
					break
				}
			}
		}
	}

	return mod, nil
}

// materializeGenericInstances implements §3's IRModule note that "the IR
// Builder materializes one IRType per [instantiation] key" recorded by the
// Reachability Analyzer: for each closed generic instantiation observed
// during reachability, register its mangled name as a distinct IR type
// entry — sharing the open type's method/field shape, since this compiler
// does not specialize field layout per instantiation (value-typed generic
// arguments still get a pointer-sized slot, per sizeAndAlignOf's documented
// simplification), only the emitted name and the Name Mapper's by-value-vs-
// gc_ptr classification.
func materializeGenericInstances(b *builder, result *reachability.Result) {
	keys := make([]string, 0, len(result.Instances))
	for key := range result.Instances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		use := result.Instances[key]
		open, ok := b.typesByFullName[use.OpenType.FullName]
		if !ok {
			continue
		}
		argNames := make([]string, len(use.Args))
		for i, a := range use.Args {
			argNames[i] = a.FullName
		}
		mangled := b.nm.MangleGenericInstance(open.FullName, argNames)
		if _, exists := b.typesByFullName[key]; exists {
			continue
		}
		inst := &Type{
			CppName:           mangled,
			FullName:          key,
			ShortName:         open.ShortName,
			Namespace:         open.Namespace,
			IsValueType:       open.IsValueType,
			IsSealed:          open.IsSealed,
			IsAbstract:        open.IsAbstract,
			IsInterface:       open.IsInterface,
			IsEnum:            open.IsEnum,
			IsDelegate:        open.IsDelegate,
			IsGenericInstance: true,
			RuntimeProvided:   open.RuntimeProvided,
			Base:              open.Base,
			Interfaces:        open.Interfaces,
			InstanceFields:    open.InstanceFields,
			StaticFields:      open.StaticFields,
			Methods:           open.Methods,
			VTable:            open.VTable,
			InterfaceImpls:    open.InterfaceImpls,
			InstanceSize:      open.InstanceSize,
			GenericArgNames:   argNames,
			HasCctor:          open.HasCctor,
			Source:            open.Source,
		}
		if inst.IsValueType {
			b.nm.RegisterValueType(key)
		}
		b.typesByFullName[key] = inst
		b.mod.Types = append(b.mod.Types, inst)
	}
}

// IndexByFullName builds a lookup map from a finished Module's Types slice,
// keyed by metadata full name (or instantiation key for a generic
// instance) — used by the Code Generator when it needs to cross-reference
// a type it only has the name for (e.g. resolving a vtable slot's
// declaring type during emission).
func IndexByFullName(types []*Type) map[string]*Type {
	idx := make(map[string]*Type, len(types))
	for _, t := range types {
		idx[t.FullName] = t
	}
	return idx
}
