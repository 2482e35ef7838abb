package cilbin

import "fmt"

// ECMA-335 §II.23.1.16 element types, the subset this loader's signature
// decoder recognizes directly. Everything else (arrays, pointers, pinned,
// modifiers) is decoded structurally but represented as an opaque named
// type — sufficient for the IR Builder's purposes, since C++ emission only
// needs a type's mangled name and value/reference-type classification.
const (
	etEnd     = 0x00
	etVoid    = 0x01
	etBoolean = 0x02
	etChar    = 0x03
	etI1      = 0x04
	etU1      = 0x05
	etI2      = 0x06
	etU2      = 0x07
	etI4      = 0x08
	etU4      = 0x09
	etI8      = 0x0A
	etU8      = 0x0B
	etR4      = 0x0C
	etR8      = 0x0D
	etString  = 0x0E
	etPtr     = 0x0F
	etByRef   = 0x10
	etValueType = 0x11
	etClass   = 0x12
	etVar     = 0x13 // generic type parameter
	etArray   = 0x14
	etGenericInst = 0x15
	etTypedByRef  = 0x16
	etI       = 0x18
	etU       = 0x19
	etFnPtr   = 0x1B
	etObject  = 0x1C
	etSzArray = 0x1D
	etMVar    = 0x1E // generic method parameter
	etCModReqd = 0x1F
	etCModOpt  = 0x20
	etSentinel = 0x41
	etPinned   = 0x45
)

// sigType is a decoded element of a field or method signature, kept minimal:
// enough to name the type and tell whether it is a primitive/value/reference
// shape. TypeRef resolution to a full assembly.TypeRef happens in load.go,
// where the TypeDefOrRef coded index (or primitive name) is turned into an
// assembly-graph reference.
type sigType struct {
	elementType byte
	primitive   string // non-empty for primitive element types
	coded       uint32 // valid when elementType is Class/ValueType: a TypeDefOrRef coded index
	isCoded     bool
	generic     *genericRef // valid when elementType is Var/MVar
	arrayOf     *sigType    // valid when elementType is SzArray, Ptr or ByRef
}

type genericRef struct {
	isMethod bool
	index    int
}

var primitiveNames = map[byte]string{
	etVoid: "System.Void", etBoolean: "System.Boolean", etChar: "System.Char",
	etI1: "System.SByte", etU1: "System.Byte", etI2: "System.Int16", etU2: "System.UInt16",
	etI4: "System.Int32", etU4: "System.UInt32", etI8: "System.Int64", etU8: "System.UInt64",
	etR4: "System.Single", etR8: "System.Double", etString: "System.String",
	etI: "System.IntPtr", etU: "System.UIntPtr", etObject: "System.Object",
	etTypedByRef: "System.TypedReference",
}

// decodeType reads one signature type from c, per ECMA-335 §II.23.2.12.
func decodeType(c *cursor) (*sigType, error) {
	b, err := c.readU8()
	if err != nil {
		return nil, err
	}
	// Skip custom modifiers and the pinned marker; they never affect C++
	// emission. Only a modifier carries a following TypeDefOrRef index.
	for b == etCModReqd || b == etCModOpt || b == etPinned {
		if b != etPinned {
			if _, err := c.readCompressed(); err != nil {
				return nil, err
			}
		}
		b, err = c.readU8()
		if err != nil {
			return nil, err
		}
	}
	switch b {
	case etClass, etValueType:
		idx, err := c.readCompressed()
		if err != nil {
			return nil, err
		}
		return &sigType{elementType: b, coded: idx, isCoded: true}, nil
	case etVar, etMVar:
		idx, err := c.readCompressed()
		if err != nil {
			return nil, err
		}
		return &sigType{elementType: b, generic: &genericRef{isMethod: b == etMVar, index: int(idx)}}, nil
	case etSzArray:
		elem, err := decodeType(c)
		if err != nil {
			return nil, err
		}
		return &sigType{elementType: b, arrayOf: elem}, nil
	case etPtr, etByRef:
		elem, err := decodeType(c)
		if err != nil {
			return nil, err
		}
		return &sigType{elementType: b, arrayOf: elem}, nil
	case etArray:
		// SzArray's general form: Type ArrayShape. We flatten multi-dim
		// arrays to the same shape as SzArray — this compiler's runtime
		// models all CLR arrays as a single vector-like container.
		elem, err := decodeType(c)
		if err != nil {
			return nil, err
		}
		if err := skipArrayShape(c); err != nil {
			return nil, err
		}
		return &sigType{elementType: etSzArray, arrayOf: elem}, nil
	case etGenericInst:
		genKind, err := c.readU8() // Class or ValueType
		if err != nil {
			return nil, err
		}
		idx, err := c.readCompressed()
		if err != nil {
			return nil, err
		}
		argCount, err := c.readCompressed()
		if err != nil {
			return nil, err
		}
		st := &sigType{elementType: genKind, coded: idx, isCoded: true}
		for i := uint32(0); i < argCount; i++ {
			if _, err := decodeType(c); err != nil {
				return nil, err
			}
		}
		return st, nil
	case etFnPtr:
		if _, err := decodeMethodSig(c); err != nil {
			return nil, err
		}
		return &sigType{elementType: b, primitive: "System.IntPtr"}, nil
	default:
		if name, ok := primitiveNames[b]; ok {
			return &sigType{elementType: b, primitive: name}, nil
		}
		return nil, fmt.Errorf("unrecognized signature element type 0x%x", b)
	}
}

func skipArrayShape(c *cursor) error {
	rank, err := c.readCompressed()
	if err != nil {
		return err
	}
	numSizes, err := c.readCompressed()
	if err != nil {
		return err
	}
	for i := uint32(0); i < numSizes; i++ {
		if _, err := c.readCompressed(); err != nil {
			return err
		}
	}
	numLoBounds, err := c.readCompressed()
	if err != nil {
		return err
	}
	for i := uint32(0); i < numLoBounds; i++ {
		if _, err := c.readCompressed(); err != nil {
			return err
		}
	}
	_ = rank
	return nil
}

// decodedSig is a decoded field or method signature (ECMA-335 §II.23.2.1/.2).
type decodedSig struct {
	hasThis    bool
	genericArity uint32
	params     []*sigType
	ret        *sigType // nil for field signatures
}

// decodeFieldSig decodes a FIELD signature blob (calling-convention byte
// 0x06 followed by one type).
func decodeFieldSig(blob []byte) (*decodedSig, error) {
	c := newCursor(blob)
	conv, err := c.readU8()
	if err != nil {
		return nil, err
	}
	if conv != 0x06 {
		return nil, fmt.Errorf("field signature: unexpected calling convention 0x%x", conv)
	}
	t, err := decodeType(c)
	if err != nil {
		return nil, err
	}
	return &decodedSig{params: nil, ret: t}, nil
}

// decodeMethodSig decodes a METHOD (or MethodRef/MethodSpec target) signature
// blob: calling-convention byte, optional generic arity, param count, return
// type, parameter types.
func decodeMethodSig(c *cursor) (*decodedSig, error) {
	conv, err := c.readU8()
	if err != nil {
		return nil, err
	}
	sig := &decodedSig{hasThis: conv&0x20 != 0}
	if conv&0x10 != 0 { // generic
		arity, err := c.readCompressed()
		if err != nil {
			return nil, err
		}
		sig.genericArity = arity
	}
	paramCount, err := c.readCompressed()
	if err != nil {
		return nil, err
	}
	ret, err := decodeType(c)
	if err != nil {
		return nil, err
	}
	sig.ret = ret
	for i := uint32(0); i < paramCount; i++ {
		p, err := decodeType(c)
		if err != nil {
			return nil, err
		}
		sig.params = append(sig.params, p)
	}
	return sig, nil
}

// decodeMethodSigBlob is the blob-level entry point used by load.go.
func decodeMethodSigBlob(blob []byte) (*decodedSig, error) {
	return decodeMethodSig(newCursor(blob))
}
