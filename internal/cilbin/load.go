package cilbin

import (
	"fmt"
	"math"
	"os"
	"sort"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

// Load reads a managed assembly image from disk and builds the resolved
// metadata graph the rest of the compiler consumes: an *assembly.Assembly
// with its TypeDefs, FieldDefs, MethodDefs and decoded CIL bodies fully
// populated. Cross-assembly type references are left as unresolved
// *assembly.TypeRef values (AssemblyName set, no TypeDef pointer) for the
// Assembly Resolver to thread through (§4.1) — this package only knows one
// assembly's own image at a time.
func Load(path string) (*assembly.Assembly, error) {
	raw, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cilbin: opening %s: %w", path, err)
	}
	defer raw.Close()

	m, err := mmap.Map(raw, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("cilbin: mapping %s: %w", path, err)
	}
	defer m.Unmap()

	f := &file{data: m, path: path}

	cliRVA, cliSize, layout, err := parsePE(f)
	if err != nil {
		return nil, err
	}
	cliOffset, err := layout.rvaToOffset(cliRVA)
	if err != nil {
		return nil, err
	}
	cor, err := parseCORHeader(f, int(cliOffset))
	_ = cliSize
	if err != nil {
		return nil, err
	}

	metaOffset, err := layout.rvaToOffset(cor.metadataRVA)
	if err != nil {
		return nil, err
	}
	root, err := parseMetadataRoot(f, int(metaOffset))
	if err != nil {
		return nil, err
	}

	h := newHeaps(f, root)
	tildeStream, hasTilde := root.streams["#~"]
	if !hasTilde {
		tildeStream, hasTilde = root.streams["#-"]
	}
	if !hasTilde {
		return nil, fmt.Errorf("cilbin: %s: no #~ or #- metadata table stream", path)
	}
	ts, err := parseTableStream(f, h, tildeStream.offset, tildeStream.size)
	if err != nil {
		return nil, err
	}

	ld := &loader{f: f, layout: layout, h: h, ts: ts}
	return ld.build(path)
}

// loader threads the parsed binary and table state through the multi-pass
// build: type shells, then members, then method bodies (which need every
// type/field/method already resolvable by token).
type loader struct {
	f      *file
	layout *peLayout
	h      *heaps
	ts     *tableStream

	asm *assembly.Assembly

	typeDefs  []*assembly.TypeDef  // index 0 == row 1 (1-based metadata RIDs)
	typeRefs  []*assembly.TypeRef  // resolved TypeRef table entries
	fieldDefs []*assembly.FieldDef
	methodDefs []*assembly.MethodDef
	memberRefFields  map[int]*assembly.FieldDef
	memberRefMethods map[int]*assembly.MethodDef

	rawBodies []rawMethodEntry
}

func (ld *loader) build(path string) (*assembly.Assembly, error) {
	name, err := ld.assemblyName()
	if err != nil {
		return nil, err
	}
	ld.asm = assembly.NewAssembly(name, path)

	if err := ld.buildTypeRefs(); err != nil {
		return nil, err
	}
	if err := ld.buildTypeShells(); err != nil {
		return nil, err
	}
	if err := ld.applyNesting(); err != nil {
		return nil, err
	}
	if err := ld.buildFields(); err != nil {
		return nil, err
	}
	if err := ld.buildMethods(); err != nil {
		return nil, err
	}
	if err := ld.buildMemberRefs(); err != nil {
		return nil, err
	}
	if err := ld.buildMethodBodies(); err != nil {
		return nil, err
	}

	for _, td := range ld.typeDefs {
		ld.asm.AddType(td)
	}
	return ld.asm, nil
}

func (ld *loader) assemblyName() (string, error) {
	rows := ld.ts.rows[tblAssembly]
	if len(rows) == 0 {
		return "", fmt.Errorf("cilbin: no Assembly table row (not a prime module)")
	}
	return ld.h.String(rows[0]["Name"])
}

// buildTypeRefs materializes every TypeRef table row as an unresolved
// assembly.TypeRef. AssemblyName is populated only when the resolution scope
// is an AssemblyRef; scoping through ModuleRef/TypeRef (nested type refs) is
// approximated as "same assembly", which holds for the overwhelming majority
// of real-world references.
func (ld *loader) buildTypeRefs() error {
	rows := ld.ts.rows[tblTypeRef]
	ld.typeRefs = make([]*assembly.TypeRef, len(rows))
	assemblyRefRows := ld.ts.rows[tblAssemblyRef]

	for i, r := range rows {
		name, err := ld.h.String(r["Name"])
		if err != nil {
			return err
		}
		ns, err := ld.h.String(r["Namespace"])
		if err != nil {
			return err
		}
		full := name
		if ns != "" {
			full = ns + "." + name
		}

		tr := &assembly.TypeRef{FullName: full}
		scopeTable, scopeRid, err := decodeCodedIndex("ResolutionScope", r["ResolutionScope"])
		if err == nil && scopeTable == tblAssemblyRef && scopeRid >= 1 && int(scopeRid) <= len(assemblyRefRows) {
			refName, err := ld.h.String(assemblyRefRows[scopeRid-1]["Name"])
			if err == nil {
				tr.AssemblyName = refName
			}
		}
		ld.typeRefs[i] = tr
	}
	return nil
}

// buildTypeShells creates every TypeDef with its flags, base type and
// interfaces populated, but no members yet — FieldList/MethodList ranges are
// resolved in buildFields/buildMethods once every TypeDef exists.
func (ld *loader) buildTypeShells() error {
	rows := ld.ts.rows[tblTypeDef]
	ld.typeDefs = make([]*assembly.TypeDef, len(rows))

	for i, r := range rows {
		name, err := ld.h.String(r["Name"])
		if err != nil {
			return err
		}
		ns, err := ld.h.String(r["Namespace"])
		if err != nil {
			return err
		}
		full := name
		if ns != "" {
			full = ns + "." + name
		}
		flags := r["Flags"]

		td := &assembly.TypeDef{
			SimpleName:  name,
			Namespace:   ns,
			FullName:    full,
			IsInterface: flags&tdInterface != 0,
			IsAbstract:  flags&tdAbstract != 0,
			IsSealed:    flags&tdSealed != 0,
			IsPublic:    flags&tdVisibilityMask == tdPublic || flags&tdVisibilityMask == tdNestedPublic,
		}

		if extends := r["Extends"]; extends != 0 {
			ref, err := ld.resolveTypeDefOrRef(extends)
			if err != nil {
				return err
			}
			td.BaseType = ref
			td.IsValueType = ref != nil && (ref.FullName == "System.ValueType" || ref.FullName == "System.Enum")
			td.IsEnum = ref != nil && ref.FullName == "System.Enum"
		}

		ld.typeDefs[i] = td
	}

	for _, r := range ld.ts.rows[tblInterfaceImpl] {
		classRid := r["Class"]
		if classRid < 1 || int(classRid) > len(ld.typeDefs) {
			continue
		}
		ref, err := ld.resolveTypeDefOrRef(r["Interface"])
		if err != nil {
			return err
		}
		td := ld.typeDefs[classRid-1]
		td.Interfaces = append(td.Interfaces, ref)
	}

	for _, r := range ld.ts.rows[tblGenericParam] {
		ownerTable, ownerRid, err := decodeCodedIndex("TypeOrMethodDef", r["Owner"])
		if err != nil {
			continue
		}
		name, err := ld.h.String(r["Name"])
		if err != nil {
			return err
		}
		if ownerTable == tblTypeDef && ownerRid >= 1 && int(ownerRid) <= len(ld.typeDefs) {
			ld.typeDefs[ownerRid-1].GenericParams = append(ld.typeDefs[ownerRid-1].GenericParams, name)
		}
		// Method-owned generic params are attached once MethodDefs exist, in
		// buildMethods.
	}

	return nil
}

// applyNesting sets IsNested and rewrites FullName to the "/"-nested form
// NestedClass rows describe (ECMA-335 §II.22.32).
func (ld *loader) applyNesting() error {
	type nestPair struct{ nested, enclosing int }
	var pairs []nestPair
	for _, r := range ld.ts.rows[tblNestedClass] {
		pairs = append(pairs, nestPair{int(r["NestedClass"]), int(r["EnclosingClass"])})
	}
	// Process in stable order so multi-level nesting resolves deterministically.
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].nested < pairs[j].nested })
	for _, p := range pairs {
		if p.nested < 1 || p.nested > len(ld.typeDefs) || p.enclosing < 1 || p.enclosing > len(ld.typeDefs) {
			continue
		}
		nested := ld.typeDefs[p.nested-1]
		enclosing := ld.typeDefs[p.enclosing-1]
		nested.IsNested = true
		nested.FullName = enclosing.FullName + "/" + nested.SimpleName
	}
	return nil
}

// fieldRange/methodRange compute the [start,end) 0-based row range a TypeDef
// owns in the Field/MethodDef table, per the standard ECMA-335 technique of
// taking the next TypeDef's FieldList/MethodList as the exclusive end.
func (ld *loader) fieldRange(typeIdx int) (start, end int) {
	rows := ld.ts.rows[tblTypeDef]
	start = int(rows[typeIdx]["FieldList"]) - 1
	if typeIdx+1 < len(rows) {
		end = int(rows[typeIdx+1]["FieldList"]) - 1
	} else {
		end = len(ld.ts.rows[tblField])
	}
	return
}

func (ld *loader) methodRange(typeIdx int) (start, end int) {
	rows := ld.ts.rows[tblTypeDef]
	start = int(rows[typeIdx]["MethodList"]) - 1
	if typeIdx+1 < len(rows) {
		end = int(rows[typeIdx+1]["MethodList"]) - 1
	} else {
		end = len(ld.ts.rows[tblMethodDef])
	}
	return
}

func (ld *loader) buildFields() error {
	rows := ld.ts.rows[tblField]
	ld.fieldDefs = make([]*assembly.FieldDef, len(rows))

	typeDefRows := ld.ts.rows[tblTypeDef]
	for typeIdx := range typeDefRows {
		start, end := ld.fieldRange(typeIdx)
		td := ld.typeDefs[typeIdx]
		for i := start; i < end && i < len(rows); i++ {
			r := rows[i]
			name, err := ld.h.String(r["Name"])
			if err != nil {
				return err
			}
			blob, err := ld.h.Blob(r["Signature"])
			if err != nil {
				return err
			}
			sig, err := decodeFieldSig(blob)
			if err != nil {
				return fmt.Errorf("field %s::%s: %w", td.FullName, name, err)
			}
			ref, err := ld.sigTypeToRef(sig.ret)
			if err != nil {
				return err
			}
			flags := r["Flags"]
			fd := &assembly.FieldDef{
				Owner:    td,
				Name:     name,
				Type:     ref,
				IsStatic: flags&fdStatic != 0,
				IsInit:   flags&fdInitOnly != 0,
			}
			td.Fields = append(td.Fields, fd)
			ld.fieldDefs[i] = fd
		}
	}

	for _, r := range ld.ts.rows[tblConstant] {
		parentTable, parentRid, err := decodeCodedIndex("HasConstant", r["Parent"])
		if err != nil || parentTable != tblField {
			continue
		}
		if parentRid < 1 || int(parentRid) > len(ld.fieldDefs) {
			continue
		}
		fd := ld.fieldDefs[parentRid-1]
		if fd == nil {
			continue
		}
		blob, err := ld.h.Blob(r["Value"])
		if err != nil {
			return err
		}
		fd.Literal = decodeConstant(byte(r["Type"]), blob)
	}

	return nil
}

func (ld *loader) buildMethods() error {
	rows := ld.ts.rows[tblMethodDef]
	ld.methodDefs = make([]*assembly.MethodDef, len(rows))

	typeDefRows := ld.ts.rows[tblTypeDef]
	for typeIdx := range typeDefRows {
		start, end := ld.methodRange(typeIdx)
		td := ld.typeDefs[typeIdx]
		for i := start; i < end && i < len(rows); i++ {
			r := rows[i]
			name, err := ld.h.String(r["Name"])
			if err != nil {
				return err
			}
			blob, err := ld.h.Blob(r["Signature"])
			if err != nil {
				return err
			}
			sig, err := decodeMethodSigBlob(blob)
			if err != nil {
				return fmt.Errorf("method %s::%s: %w", td.FullName, name, err)
			}

			flags := r["Flags"]
			msig := assembly.Signature{
				IsStatic:      flags&mdStatic != 0,
				IsVirtual:     flags&mdVirtual != 0,
				IsAbstract:    flags&mdAbstract != 0,
				IsConstructor: flags&mdSpecialName != 0 && (name == ".ctor" || name == ".cctor"),
			}
			retRef, err := ld.sigTypeToRef(sig.ret)
			if err != nil {
				return err
			}
			if sig.ret == nil || sig.ret.elementType != etVoid {
				msig.Return = retRef
			}
			for _, p := range sig.params {
				pref, err := ld.sigTypeToRef(p)
				if err != nil {
					return err
				}
				msig.Params = append(msig.Params, assembly.Param{Type: pref})
			}

			md := &assembly.MethodDef{
				Owner:     td,
				Name:      name,
				Signature: msig,
				IsPublic:  flags&0x0007 == mdPublic,
			}

			rva := r["RVA"]
			if rva != 0 {
				off, err := ld.layout.rvaToOffset(rva)
				if err != nil {
					return fmt.Errorf("method %s::%s: %w", td.FullName, name, err)
				}
				body, err := readMethodBody(ld.f, int(off))
				if err != nil {
					return fmt.Errorf("method %s::%s: %w", td.FullName, name, err)
				}
				md.Body = &assembly.MethodBody{MaxStack: body.maxStack, InitLocals: body.initLocals}
				md.Body.Code = make([]assembly.Instruction, 0) // filled by buildMethodBodies
				ld.rawBodies = append(ld.rawBodies, rawMethodEntry{md: md, raw: body})
			}

			td.Methods = append(td.Methods, md)
			ld.methodDefs[i] = md
		}
	}

	for _, r := range ld.ts.rows[tblGenericParam] {
		ownerTable, ownerRid, err := decodeCodedIndex("TypeOrMethodDef", r["Owner"])
		if err != nil || ownerTable != tblMethodDef {
			continue
		}
		if ownerRid < 1 || int(ownerRid) > len(ld.methodDefs) {
			continue
		}
		md := ld.methodDefs[ownerRid-1]
		if md == nil {
			continue
		}
		name, err := ld.h.String(r["Name"])
		if err != nil {
			return err
		}
		md.GenericParams = append(md.GenericParams, name)
	}

	return nil
}

// rawMethodEntry defers CIL decoding until every type/field/method/memberref
// is resolvable, so instruction operand tokens can be looked up by table+rid.
type rawMethodEntry struct {
	md  *assembly.MethodDef
	raw *decodedBody
}

func (ld *loader) buildMemberRefs() error {
	rows := ld.ts.rows[tblMemberRef]
	ld.memberRefFields = make(map[int]*assembly.FieldDef)
	ld.memberRefMethods = make(map[int]*assembly.MethodDef)

	for i, r := range rows {
		name, err := ld.h.String(r["Name"])
		if err != nil {
			return err
		}
		blob, err := ld.h.Blob(r["Signature"])
		if err != nil {
			return err
		}
		parentTable, parentRid, err := decodeCodedIndex("MemberRefParent", r["Class"])
		if err != nil {
			continue
		}
		ownerRef, err := ld.memberRefParentType(parentTable, parentRid)
		if err != nil || ownerRef == nil {
			continue
		}

		if len(blob) > 0 && blob[0] == 0x06 {
			sig, err := decodeFieldSig(blob)
			if err != nil {
				continue
			}
			typeRef, err := ld.sigTypeToRef(sig.ret)
			if err != nil {
				return err
			}
			ld.memberRefFields[i] = &assembly.FieldDef{Name: name, Type: typeRef}
		} else {
			sig, err := decodeMethodSigBlob(blob)
			if err != nil {
				continue
			}
			msig := assembly.Signature{IsStatic: !sig.hasThis}
			if sig.ret != nil && sig.ret.elementType != etVoid {
				msig.Return, _ = ld.sigTypeToRef(sig.ret)
			}
			for _, p := range sig.params {
				pref, _ := ld.sigTypeToRef(p)
				msig.Params = append(msig.Params, assembly.Param{Type: pref})
			}
			ld.memberRefMethods[i] = &assembly.MethodDef{Name: name, Signature: msig}
		}
	}
	return nil
}

// memberRefParentType resolves a MemberRefParent coded index to a TypeRef
// naming the declaring type, used only to give external member stubs a
// sensible owner reference for diagnostics; the IR Builder resolves the real
// target through the Assembly Resolver using the member's full name.
func (ld *loader) memberRefParentType(table int, rid uint32) (*assembly.TypeRef, error) {
	switch table {
	case tblTypeRef:
		if rid < 1 || int(rid) > len(ld.typeRefs) {
			return nil, fmt.Errorf("memberref: typeref rid %d out of range", rid)
		}
		return ld.typeRefs[rid-1], nil
	case tblTypeDef:
		if rid < 1 || int(rid) > len(ld.typeDefs) {
			return nil, fmt.Errorf("memberref: typedef rid %d out of range", rid)
		}
		td := ld.typeDefs[rid-1]
		return &assembly.TypeRef{FullName: td.FullName}, nil
	case tblTypeSpec:
		blob, err := ld.h.Blob(ld.ts.rows[tblTypeSpec][rid-1]["Signature"])
		if err != nil {
			return nil, err
		}
		st, err := decodeType(newCursor(blob))
		if err != nil {
			return nil, err
		}
		return ld.sigTypeToRef(st)
	default:
		return nil, nil
	}
}

func (ld *loader) buildMethodBodies() error {
	for _, entry := range ld.rawBodies {
		insts, err := decodeInstructions(entry.raw.code)
		if err != nil {
			return fmt.Errorf("%s: decoding body: %w", entry.md.FullName(), err)
		}
		for i := range insts {
			if err := ld.resolveOperand(&insts[i]); err != nil {
				return fmt.Errorf("%s+0x%x: %w", entry.md.FullName(), insts[i].Offset, err)
			}
		}
		entry.md.Body.Code = insts
		for _, raw := range entry.raw.exceptionRegions {
			eh := assembly.ExceptionHandler{
				Kind:         raw.kind,
				TryStart:     raw.tryOffset,
				TryEnd:       raw.tryOffset + raw.tryLength,
				HandlerStart: raw.handlerOffset,
				HandlerEnd:   raw.handlerOffset + raw.handlerLength,
				FilterStart:  raw.filterOffset,
			}
			if raw.kind == assembly.HandlerCatch {
				ref, err := ld.resolveToken(raw.catchToken)
				if err == nil {
					eh.CatchType = ref
				}
			}
			entry.md.Body.ExceptionRegions = append(entry.md.Body.ExceptionRegions, eh)
		}
		// The clause table lists nested clauses before enclosing ones;
		// reorder outer-first (earlier try start, then wider try range),
		// keeping file order among clauses that share a try range.
		regions := entry.md.Body.ExceptionRegions
		sort.SliceStable(regions, func(i, j int) bool {
			if regions[i].TryStart != regions[j].TryStart {
				return regions[i].TryStart < regions[j].TryStart
			}
			return regions[i].TryEnd > regions[j].TryEnd
		})
	}
	return nil
}

// resolveOperand fills in the TypeArg/MethodArg/FieldArg/StrArg payload of
// instructions carrying a metadata or user-string token, looked up by
// IntArg's raw token value.
func (ld *loader) resolveOperand(inst *assembly.Instruction) error {
	switch inst.Op {
	case assembly.OpLdstr:
		offset := uint32(inst.IntArg) & 0x00FFFFFF
		s, err := ld.h.UserString(offset)
		if err != nil {
			return err
		}
		inst.StrArg = s
		inst.IntArg = 0
	case assembly.OpCall, assembly.OpCallvirt, assembly.OpNewobj, assembly.OpLdftn, assembly.OpLdvirtftn:
		md, err := ld.resolveMethodToken(uint32(inst.IntArg))
		if err != nil {
			return err
		}
		inst.MethodArg = md
		inst.IntArg = 0
	case assembly.OpLdfld, assembly.OpLdflda, assembly.OpStfld, assembly.OpLdsfld, assembly.OpStsfld:
		fd, err := ld.resolveFieldToken(uint32(inst.IntArg))
		if err != nil {
			return err
		}
		inst.FieldArg = fd
		inst.IntArg = 0
	case assembly.OpIsinst, assembly.OpCastclass, assembly.OpBox, assembly.OpUnbox, assembly.OpUnboxAny,
		assembly.OpNewarr, assembly.OpInitobj, assembly.OpConstrained, assembly.OpLdelem, assembly.OpStelem:
		ref, err := ld.resolveToken(uint32(inst.IntArg))
		if err != nil {
			return err
		}
		inst.TypeArg = ref
		inst.IntArg = 0
	}
	return nil
}

// resolveToken resolves a plain ECMA-335 metadata token (table index in the
// high byte, 1-based row index in the low 3 bytes) to a TypeRef.
func (ld *loader) resolveToken(token uint32) (*assembly.TypeRef, error) {
	table := int(token >> 24)
	rid := token & 0x00FFFFFF
	switch table {
	case tblTypeDef:
		if rid < 1 || int(rid) > len(ld.typeDefs) {
			return nil, fmt.Errorf("typedef token rid %d out of range", rid)
		}
		return &assembly.TypeRef{FullName: ld.typeDefs[rid-1].FullName}, nil
	case tblTypeRef:
		if rid < 1 || int(rid) > len(ld.typeRefs) {
			return nil, fmt.Errorf("typeref token rid %d out of range", rid)
		}
		return ld.typeRefs[rid-1], nil
	case tblTypeSpec:
		rows := ld.ts.rows[tblTypeSpec]
		if rid < 1 || int(rid) > len(rows) {
			return nil, fmt.Errorf("typespec token rid %d out of range", rid)
		}
		blob, err := ld.h.Blob(rows[rid-1]["Signature"])
		if err != nil {
			return nil, err
		}
		st, err := decodeType(newCursor(blob))
		if err != nil {
			return nil, err
		}
		return ld.sigTypeToRef(st)
	default:
		return nil, fmt.Errorf("unsupported token table 0x%x", table)
	}
}

func (ld *loader) resolveMethodToken(token uint32) (*assembly.MethodDef, error) {
	table := int(token >> 24)
	rid := int(token&0x00FFFFFF) - 1
	switch table {
	case tblMethodDef:
		if rid < 0 || rid >= len(ld.methodDefs) {
			return nil, fmt.Errorf("methoddef token rid out of range")
		}
		return ld.methodDefs[rid], nil
	case tblMemberRef:
		if md, ok := ld.memberRefMethods[rid]; ok {
			return md, nil
		}
		return nil, fmt.Errorf("memberref token %d is not a method", rid)
	default:
		return nil, fmt.Errorf("unsupported method token table 0x%x", table)
	}
}

func (ld *loader) resolveFieldToken(token uint32) (*assembly.FieldDef, error) {
	table := int(token >> 24)
	rid := int(token&0x00FFFFFF) - 1
	switch table {
	case tblField:
		if rid < 0 || rid >= len(ld.fieldDefs) {
			return nil, fmt.Errorf("field token rid out of range")
		}
		return ld.fieldDefs[rid], nil
	case tblMemberRef:
		if fd, ok := ld.memberRefFields[rid]; ok {
			return fd, nil
		}
		return nil, fmt.Errorf("memberref token %d is not a field", rid)
	default:
		return nil, fmt.Errorf("unsupported field token table 0x%x", table)
	}
}

func (ld *loader) resolveTypeDefOrRef(coded uint32) (*assembly.TypeRef, error) {
	table, rid, err := decodeCodedIndex("TypeDefOrRef", coded)
	if err != nil {
		return nil, err
	}
	switch table {
	case tblTypeDef:
		if rid < 1 || int(rid) > len(ld.typeDefs) {
			return nil, fmt.Errorf("TypeDefOrRef: typedef rid %d out of range", rid)
		}
		return &assembly.TypeRef{FullName: ld.typeDefs[rid-1].FullName}, nil
	case tblTypeRef:
		if rid < 1 || int(rid) > len(ld.typeRefs) {
			return nil, fmt.Errorf("TypeDefOrRef: typeref rid %d out of range", rid)
		}
		return ld.typeRefs[rid-1], nil
	case tblTypeSpec:
		rows := ld.ts.rows[tblTypeSpec]
		if rid < 1 || int(rid) > len(rows) {
			return nil, fmt.Errorf("TypeDefOrRef: typespec rid %d out of range", rid)
		}
		blob, err := ld.h.Blob(rows[rid-1]["Signature"])
		if err != nil {
			return nil, err
		}
		st, err := decodeType(newCursor(blob))
		if err != nil {
			return nil, err
		}
		return ld.sigTypeToRef(st)
	}
	return nil, fmt.Errorf("TypeDefOrRef: unexpected table 0x%x", table)
}

// sigTypeToRef converts a decoded signature type to an assembly.TypeRef,
// resolving Class/ValueType coded indices against the TypeDef/TypeRef tables
// already built and recursing into array element types.
func (ld *loader) sigTypeToRef(st *sigType) (*assembly.TypeRef, error) {
	if st == nil {
		return nil, nil
	}
	if st.primitive != "" {
		return &assembly.TypeRef{FullName: st.primitive}, nil
	}
	if st.isCoded {
		return ld.resolveTypeDefOrRef(st.coded)
	}
	if st.generic != nil {
		// Open generic parameter reference (!0, !!0): named positionally;
		// the IR Builder substitutes the concrete argument during
		// instantiation (§4.2).
		prefix := "!"
		if st.generic.isMethod {
			prefix = "!!"
		}
		return &assembly.TypeRef{FullName: fmt.Sprintf("%s%d", prefix, st.generic.index)}, nil
	}
	if st.arrayOf != nil {
		elem, err := ld.sigTypeToRef(st.arrayOf)
		if err != nil {
			return nil, err
		}
		return &assembly.TypeRef{FullName: "System.Array", GenericArgs: []*assembly.TypeRef{elem}}, nil
	}
	return &assembly.TypeRef{FullName: "System.Object"}, nil
}

func decodeConstant(elementType byte, blob []byte) *assembly.ConstantValue {
	c := newCursor(blob)
	switch elementType {
	case etBoolean:
		v, _ := c.readU8()
		return &assembly.ConstantValue{Kind: assembly.ConstBool, Bool: v != 0}
	case etI4, etU4:
		v, _ := c.readU32()
		return &assembly.ConstantValue{Kind: assembly.ConstInt, I64: int64(int32(v))}
	case etI8, etU8:
		v, _ := c.readU64()
		return &assembly.ConstantValue{Kind: assembly.ConstInt, I64: int64(v)}
	case etR4:
		v, _ := c.readU32()
		return &assembly.ConstantValue{Kind: assembly.ConstFloat, F64: float64(math.Float32frombits(v))}
	case etR8:
		v, _ := c.readU64()
		return &assembly.ConstantValue{Kind: assembly.ConstFloat, F64: math.Float64frombits(v)}
	case etString:
		dec := string(blob)
		return &assembly.ConstantValue{Kind: assembly.ConstString, Str: dec}
	case 0xFF: // ELEMENT_TYPE_NULL-ish sentinel used for the Constant table's "class" entries
		return &assembly.ConstantValue{Kind: assembly.ConstNull}
	default:
		return &assembly.ConstantValue{Kind: assembly.ConstNone}
	}
}
