package cilbin

import (
	"fmt"
	"math"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

// methodHeaderKind distinguishes the two CIL method body header encodings
// (ECMA-335 §II.25.4).
type methodHeaderKind int

const (
	headerTiny methodHeaderKind = iota
	headerFat
)

// decodedBody is the raw result of reading a method body before its
// instruction bytes are decoded against the metadata tables: the code bytes,
// declared max stack, local-variable signature token, and exception clauses.
type decodedBody struct {
	code              []byte
	maxStack          int
	localVarSigToken  uint32
	initLocals        bool
	exceptionRegions  []rawExceptionClause
}

type rawExceptionClause struct {
	kind         assembly.HandlerKind
	tryOffset    int
	tryLength    int
	handlerOffset int
	handlerLength int
	filterOffset int // valid only for filter clauses
	catchToken   uint32
}

// readMethodBody reads a tiny- or fat-format method body starting at the
// given file offset (an RVA already translated via peLayout.rvaToOffset),
// per ECMA-335 §II.25.4.
func readMethodBody(f *file, fileOffset int) (*decodedBody, error) {
	firstByte, err := f.u8(fileOffset)
	if err != nil {
		return nil, err
	}

	if firstByte&0x03 == 0x02 {
		// Tiny header: top 6 bits are the code size, 1 byte header.
		size := int(firstByte >> 2)
		code, err := f.bytes(fileOffset+1, size)
		if err != nil {
			return nil, err
		}
		return &decodedBody{code: code, maxStack: 8, initLocals: true}, nil
	}

	if firstByte&0x03 != 0x03 {
		return nil, fmt.Errorf("cilbin: unrecognized method header flag byte 0x%x", firstByte)
	}

	// Fat header: 12 bytes.
	flagsAndSize, err := f.u16(fileOffset)
	if err != nil {
		return nil, err
	}
	headerSizeDwords := (flagsAndSize >> 12) & 0x0F
	flags := flagsAndSize & 0x0FFF
	maxStack, err := f.u16(fileOffset + 2)
	if err != nil {
		return nil, err
	}
	codeSize, err := f.u32(fileOffset + 4)
	if err != nil {
		return nil, err
	}
	localVarSigTok, err := f.u32(fileOffset + 8)
	if err != nil {
		return nil, err
	}

	headerLen := int(headerSizeDwords) * 4
	codeStart := fileOffset + headerLen
	code, err := f.bytes(codeStart, int(codeSize))
	if err != nil {
		return nil, err
	}

	body := &decodedBody{
		code:             code,
		maxStack:         int(maxStack),
		localVarSigToken: localVarSigTok,
		initLocals:       flags&0x10 != 0,
	}

	const ehTableFlag = 0x08
	if flags&ehTableFlag != 0 {
		// Exception handler sections follow the code, 4-byte aligned.
		ehOffset := codeStart + int(codeSize)
		ehOffset = (ehOffset + 3) &^ 3
		regions, err := readExceptionSections(f, ehOffset)
		if err != nil {
			return nil, err
		}
		body.exceptionRegions = regions
	}

	return body, nil
}

// readExceptionSections reads the chain of method-data sections following a
// fat method body, keeping only EHTable sections (ECMA-335 §II.25.4.5/.6).
func readExceptionSections(f *file, offset int) ([]rawExceptionClause, error) {
	var all []rawExceptionClause
	for {
		kind, err := f.u8(offset)
		if err != nil {
			return nil, err
		}
		isFat := kind&0x40 != 0
		moreSections := kind&0x80 != 0

		var dataSize int
		var clauseBase int
		if isFat {
			sizeLow, err := f.u8(offset + 1)
			if err != nil {
				return nil, err
			}
			sizeMid, err := f.u8(offset + 2)
			if err != nil {
				return nil, err
			}
			sizeHigh, err := f.u8(offset + 3)
			if err != nil {
				return nil, err
			}
			dataSize = int(sizeLow) | int(sizeMid)<<8 | int(sizeHigh)<<16
			clauseBase = offset + 4
		} else {
			sz, err := f.u8(offset + 1)
			if err != nil {
				return nil, err
			}
			dataSize = int(sz)
			clauseBase = offset + 4 // small header is 4 bytes incl. 2 reserved
		}

		if kind&0x01 != 0 { // EHTable
			clauses, err := readClauses(f, clauseBase, isFat, dataSize)
			if err != nil {
				return nil, err
			}
			all = append(all, clauses...)
		}

		if !moreSections {
			break
		}
		offset = clauseBase + (dataSize - 4)
		offset = (offset + 3) &^ 3
	}
	return all, nil
}

func readClauses(f *file, base int, isFat bool, dataSize int) ([]rawExceptionClause, error) {
	var clauses []rawExceptionClause
	clauseSize := 12
	if isFat {
		clauseSize = 24
	}
	n := (dataSize - 4) / clauseSize
	for i := 0; i < n; i++ {
		off := base + i*clauseSize
		var flags uint32
		var tryOff, tryLen, handlerOff, handlerLen, classOrFilter int

		if isFat {
			v, err := f.u32(off)
			if err != nil {
				return nil, err
			}
			flags = v
			a, _ := f.u32(off + 4)
			b, _ := f.u32(off + 8)
			d, _ := f.u32(off + 12)
			e, _ := f.u32(off + 16)
			g, _ := f.u32(off + 20)
			tryOff, tryLen, handlerOff, handlerLen, classOrFilter = int(a), int(b), int(d), int(e), int(g)
		} else {
			v, err := f.u16(off)
			if err != nil {
				return nil, err
			}
			flags = uint32(v)
			a, _ := f.u16(off + 2)
			b, _ := f.u8(off + 4)
			d, _ := f.u16(off + 5)
			e, _ := f.u8(off + 7)
			g, _ := f.u32(off + 8)
			tryOff, tryLen, handlerOff, handlerLen, classOrFilter = int(a), int(b), int(d), int(e), int(g)
		}

		cl := rawExceptionClause{tryOffset: tryOff, tryLength: tryLen, handlerOffset: handlerOff, handlerLength: handlerLen}
		switch flags & 0x7 {
		case 0x0:
			cl.kind = assembly.HandlerCatch
			cl.catchToken = uint32(classOrFilter)
		case 0x1:
			cl.kind = assembly.HandlerFilter
			cl.filterOffset = classOrFilter
		case 0x2:
			cl.kind = assembly.HandlerFinally
		case 0x4:
			cl.kind = assembly.HandlerFault
		}
		clauses = append(clauses, cl)
	}
	return clauses, nil
}

// opKind distinguishes how to decode the bytes following an opcode.
type opKind int

const (
	opNoArg opKind = iota
	opArgI8   // single signed byte
	opArgI32  // 4-byte int/target/token
	opArgI64  // 8-byte long
	opArgR4
	opArgR8
	opArgVar  // ldarg/ldloc short forms encode the index in the opcode itself
	opArgSwitch
	opArgToken // metadata token (method/field/type)
	opArgStringToken
)

// opDef describes one CIL opcode's decode shape and the Opcode it maps to.
// Single-byte opcodes are keyed by their byte value; two-byte (0xFE-prefixed)
// opcodes are keyed by 0xFE00|second-byte.
type opDef struct {
	op   assembly.Opcode
	kind opKind
	name string // used for RawOpcodeName on opcodes mapped to OpUnsupported
}

var opTable = buildOpTable()

func buildOpTable() map[int]opDef {
	t := map[int]opDef{}
	add := func(code int, op assembly.Opcode, kind opKind, name string) { t[code] = opDef{op, kind, name} }

	add(0x00, assembly.OpNop, opNoArg, "nop")
	add(0x02, assembly.OpLdarg, opArgVar, "ldarg.0")
	add(0x03, assembly.OpLdarg, opArgVar, "ldarg.1")
	add(0x04, assembly.OpLdarg, opArgVar, "ldarg.2")
	add(0x05, assembly.OpLdarg, opArgVar, "ldarg.3")
	add(0x06, assembly.OpLdloc, opArgVar, "ldloc.0")
	add(0x07, assembly.OpLdloc, opArgVar, "ldloc.1")
	add(0x08, assembly.OpLdloc, opArgVar, "ldloc.2")
	add(0x09, assembly.OpLdloc, opArgVar, "ldloc.3")
	add(0x0A, assembly.OpStloc, opArgVar, "stloc.0")
	add(0x0B, assembly.OpStloc, opArgVar, "stloc.1")
	add(0x0C, assembly.OpStloc, opArgVar, "stloc.2")
	add(0x0D, assembly.OpStloc, opArgVar, "stloc.3")
	add(0x0E, assembly.OpLdarg, opArgI8, "ldarg.s")
	add(0x0F, assembly.OpLdarga, opArgI8, "ldarga.s")
	add(0x10, assembly.OpStarg, opArgI8, "starg.s")
	add(0x11, assembly.OpLdloc, opArgI8, "ldloc.s")
	add(0x12, assembly.OpLdloca, opArgI8, "ldloca.s")
	add(0x13, assembly.OpStloc, opArgI8, "stloc.s")
	add(0x14, assembly.OpLdnull, opNoArg, "ldnull")
	add(0x15, assembly.OpLdcI4, opArgVar, "ldc.i4.m1")
	for _, code := range []int{0x16, 0x17, 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E} {
		add(code, assembly.OpLdcI4, opArgVar, "ldc.i4")
	}
	add(0x1F, assembly.OpLdcI4, opArgI8, "ldc.i4.s")
	add(0x20, assembly.OpLdcI4, opArgI32, "ldc.i4")
	add(0x21, assembly.OpLdcI8, opArgI64, "ldc.i8")
	add(0x22, assembly.OpLdcR4, opArgR4, "ldc.r4")
	add(0x23, assembly.OpLdcR8, opArgR8, "ldc.r8")
	add(0x25, assembly.OpDup, opNoArg, "dup")
	add(0x26, assembly.OpPop, opNoArg, "pop")
	add(0x28, assembly.OpCall, opArgToken, "call")
	add(0x2A, assembly.OpRet, opNoArg, "ret")
	add(0x2B, assembly.OpBr, opArgI8, "br.s")
	add(0x2C, assembly.OpBrfalse, opArgI8, "brfalse.s")
	add(0x2D, assembly.OpBrtrue, opArgI8, "brtrue.s")
	add(0x2E, assembly.OpBeq, opArgI8, "beq.s")
	add(0x2F, assembly.OpBge, opArgI8, "bge.s")
	add(0x30, assembly.OpBgt, opArgI8, "bgt.s")
	add(0x31, assembly.OpBle, opArgI8, "ble.s")
	add(0x32, assembly.OpBlt, opArgI8, "blt.s")
	add(0x33, assembly.OpBne, opArgI8, "bne.un.s")
	add(0x34, assembly.OpBge, opArgI8, "bge.un.s")
	add(0x35, assembly.OpBgt, opArgI8, "bgt.un.s")
	add(0x36, assembly.OpBle, opArgI8, "ble.un.s")
	add(0x37, assembly.OpBlt, opArgI8, "blt.un.s")
	add(0x38, assembly.OpBr, opArgI32, "br")
	add(0x39, assembly.OpBrfalse, opArgI32, "brfalse")
	add(0x3A, assembly.OpBrtrue, opArgI32, "brtrue")
	add(0x3B, assembly.OpBeq, opArgI32, "beq")
	add(0x3C, assembly.OpBne, opArgI32, "bne.un")
	add(0x3D, assembly.OpBge, opArgI32, "bge")
	add(0x3E, assembly.OpBgt, opArgI32, "bgt")
	add(0x3F, assembly.OpBle, opArgI32, "ble")
	add(0x40, assembly.OpBlt, opArgI32, "blt")
	add(0x45, assembly.OpSwitch, opArgSwitch, "switch")
	add(0x58, assembly.OpAdd, opNoArg, "add")
	add(0x59, assembly.OpSub, opNoArg, "sub")
	add(0x5A, assembly.OpMul, opNoArg, "mul")
	add(0x5B, assembly.OpDiv, opNoArg, "div")
	add(0x5D, assembly.OpRem, opNoArg, "rem")
	add(0x5F, assembly.OpAnd, opNoArg, "and")
	add(0x60, assembly.OpOr, opNoArg, "or")
	add(0x61, assembly.OpXor, opNoArg, "xor")
	add(0x62, assembly.OpShl, opNoArg, "shl")
	add(0x63, assembly.OpShr, opNoArg, "shr")
	add(0x65, assembly.OpNeg, opNoArg, "neg")
	add(0x66, assembly.OpNot, opNoArg, "not")
	add(0x67, assembly.OpConv, opNoArg, "conv.i1")
	add(0x68, assembly.OpConv, opNoArg, "conv.i2")
	add(0x69, assembly.OpConv, opNoArg, "conv.i4")
	add(0x6A, assembly.OpConv, opNoArg, "conv.i8")
	add(0x6B, assembly.OpConv, opNoArg, "conv.r4")
	add(0x6C, assembly.OpConv, opNoArg, "conv.r8")
	add(0x6D, assembly.OpConv, opNoArg, "conv.u4")
	add(0x6E, assembly.OpConv, opNoArg, "conv.u8")
	add(0x6F, assembly.OpCallvirt, opArgToken, "callvirt")
	add(0x71, assembly.OpCastclass, opArgToken, "castclass")
	add(0x72, assembly.OpLdstr, opArgStringToken, "ldstr")
	add(0x73, assembly.OpNewobj, opArgToken, "newobj")
	add(0x75, assembly.OpIsinst, opArgToken, "isinst")
	add(0x7A, assembly.OpThrow, opNoArg, "throw")
	add(0x7B, assembly.OpLdfld, opArgToken, "ldfld")
	add(0x7C, assembly.OpLdflda, opArgToken, "ldflda")
	add(0x7D, assembly.OpStfld, opArgToken, "stfld")
	add(0x7E, assembly.OpLdsfld, opArgToken, "ldsfld")
	add(0x80, assembly.OpStsfld, opArgToken, "stsfld")
	add(0x8D, assembly.OpNewarr, opArgToken, "newarr")
	add(0x8E, assembly.OpLdlen, opNoArg, "ldlen")
	add(0x94, assembly.OpLdelem, opArgToken, "ldelem")
	add(0x9C, assembly.OpStelem, opArgToken, "stelem")
	add(0x8C, assembly.OpBox, opArgToken, "box")
	add(0xA5, assembly.OpUnboxAny, opArgToken, "unbox.any")
	add(0x79, assembly.OpUnbox, opArgToken, "unbox")
	add(0xFE01, assembly.OpCeq, opNoArg, "ceq")
	add(0xFE02, assembly.OpCgt, opNoArg, "cgt")
	add(0xFE04, assembly.OpClt, opNoArg, "clt")
	add(0xFE06, assembly.OpLdftn, opArgToken, "ldftn")
	add(0xFE07, assembly.OpLdvirtftn, opArgToken, "ldvirtftn")
	add(0xFE16, assembly.OpConstrained, opArgToken, "constrained.")
	add(0xDC, assembly.OpEndfinally, opNoArg, "endfinally")
	add(0xDD, assembly.OpLeave, opArgI32, "leave")
	add(0xDE, assembly.OpLeave, opArgI8, "leave.s")
	add(0xFE11, assembly.OpEndfilter, opNoArg, "endfilter")
	add(0xD6, assembly.OpAddOvf, opNoArg, "add.ovf")
	add(0xD8, assembly.OpSubOvf, opNoArg, "sub.ovf")
	add(0xD9, assembly.OpMulOvf, opNoArg, "mul.ovf")

	return t
}

// decodeInstructions walks raw as a sequence of CIL opcodes, producing
// offset-tagged Instructions with unresolved token/target payloads
// (IntArg/FloatArg filled for numeric literal operands; metadata tokens and
// ldstr's user-string token surface as IntArg for resolution in load.go,
// which fills StrArg and has access to the owning assembly's tables and
// heaps).
func decodeInstructions(raw []byte) ([]assembly.Instruction, error) {
	var out []assembly.Instruction
	c := newCursor(raw)

	for !c.atEnd() {
		offset := c.pos
		b, err := c.readU8()
		if err != nil {
			return nil, err
		}
		code := int(b)
		if b == 0xFE {
			b2, err := c.readU8()
			if err != nil {
				return nil, err
			}
			code = 0xFE00 | int(b2)
		}
		def, known := opTable[code]
		if !known {
			out = append(out, assembly.Instruction{Op: assembly.OpUnsupported, Offset: offset, RawOpcodeName: fmt.Sprintf("0x%x", code)})
			continue
		}

		inst := assembly.Instruction{Op: def.op, Offset: offset}
		switch def.kind {
		case opNoArg:
			// Short-form ldarg/ldloc/stloc encode their index in the opcode
			// byte itself. opTable registers these codes (and ldc.i4.N) as
			// opArgVar, whose case below does the fold; this one repeats it.
			switch code {
			case 0x02, 0x03, 0x04, 0x05:
				inst.IntArg = int64(code - 0x02)
			case 0x06, 0x07, 0x08, 0x09:
				inst.IntArg = int64(code - 0x06)
			case 0x0A, 0x0B, 0x0C, 0x0D:
				inst.IntArg = int64(code - 0x0A)
			}
		case opArgVar:
			switch {
			case code == 0x15:
				inst.IntArg = -1
			case code >= 0x16 && code <= 0x1E:
				inst.IntArg = int64(code - 0x16)
			case code >= 0x02 && code <= 0x05:
				inst.IntArg = int64(code - 0x02)
			case code >= 0x06 && code <= 0x09:
				inst.IntArg = int64(code - 0x06)
			case code >= 0x0A && code <= 0x0D:
				inst.IntArg = int64(code - 0x0A)
			}
		case opArgI8:
			v, err := c.readI8()
			if err != nil {
				return nil, err
			}
			inst.IntArg = int64(v)
			if isBranchOp(def.op) {
				inst.Targets = []int{c.pos + int(v)}
			}
		case opArgI32:
			v, err := c.readI32()
			if err != nil {
				return nil, err
			}
			inst.IntArg = int64(v)
			if isBranchOp(def.op) {
				inst.Targets = []int{c.pos + int(v)}
			}
		case opArgI64:
			v, err := c.readU64()
			if err != nil {
				return nil, err
			}
			inst.IntArg = int64(v)
		case opArgR4:
			v, err := c.readU32()
			if err != nil {
				return nil, err
			}
			inst.FloatArg = float64(math.Float32frombits(v))
		case opArgR8:
			v, err := c.readU64()
			if err != nil {
				return nil, err
			}
			inst.FloatArg = math.Float64frombits(v)
		case opArgToken, opArgStringToken:
			v, err := c.readU32()
			if err != nil {
				return nil, err
			}
			inst.IntArg = int64(v) // resolved against tables/heaps in load.go
		case opArgSwitch:
			n, err := c.readU32()
			if err != nil {
				return nil, err
			}
			targets := make([]int32, n)
			for i := range targets {
				v, err := c.readI32()
				if err != nil {
					return nil, err
				}
				targets[i] = v
			}
			base := c.pos
			for _, t := range targets {
				inst.Targets = append(inst.Targets, base+int(t))
			}
		}
		inst.RawOpcodeName = def.name
		out = append(out, inst)
	}
	return out, nil
}

func isBranchOp(op assembly.Opcode) bool {
	switch op {
	case assembly.OpBr, assembly.OpBrtrue, assembly.OpBrfalse,
		assembly.OpBeq, assembly.OpBne, assembly.OpBge, assembly.OpBgt, assembly.OpBle, assembly.OpBlt,
		assembly.OpLeave:
		return true
	}
	return false
}
