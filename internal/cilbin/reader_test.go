package cilbin

import (
	"testing"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

func TestCursorReadCompressed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"one byte", []byte{0x03}, 0x03},
		{"one byte max", []byte{0x7F}, 0x7F},
		{"two byte", []byte{0x80, 0x80}, 0x80},
		{"two byte max", []byte{0xBF, 0xFF}, 0x3FFF},
		{"four byte", []byte{0xC0, 0x00, 0x40, 0x00}, 0x4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCursor(tt.in)
			got, err := c.readCompressed()
			if err != nil {
				t.Fatalf("readCompressed(%x) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("readCompressed(%x) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestCursorReadCompressedPastEnd(t *testing.T) {
	c := newCursor([]byte{0x80})
	if _, err := c.readCompressed(); err == nil {
		t.Error("expected error reading a truncated two-byte compressed int")
	}
}

func TestCursorPrimitiveReads(t *testing.T) {
	c := newCursor([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	u8, err := c.readU8()
	if err != nil || u8 != 0x01 {
		t.Fatalf("readU8() = %v, %v, want 0x01, nil", u8, err)
	}
	u16, err := c.readU16()
	if err != nil || u16 != 0x0302 {
		t.Fatalf("readU16() = %#x, %v, want 0x0302, nil", u16, err)
	}
	u32, err := c.readU32()
	if err != nil || u32 != 0x07060504 {
		t.Fatalf("readU32() = %#x, %v, want 0x07060504, nil", u32, err)
	}
	if !c.atEnd() {
		t.Errorf("expected cursor to be at end, %d bytes remaining", c.remaining())
	}
}

func TestCursorReadPastEndErrors(t *testing.T) {
	c := newCursor([]byte{0x01})
	if _, err := c.readU32(); err == nil {
		t.Error("expected error reading a uint32 from a single byte")
	}
}

func TestDecodeCodedIndex(t *testing.T) {
	tests := []struct {
		name      string
		value     uint32
		wantTable int
		wantRID   uint32
	}{
		{"TypeDef tag", (5 << 2) | 0x0, tblTypeDef, 5},
		{"TypeRef tag", (7 << 2) | 0x1, tblTypeRef, 7},
		{"TypeSpec tag", (2 << 2) | 0x2, tblTypeSpec, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, rid, err := decodeCodedIndex("TypeDefOrRef", tt.value)
			if err != nil {
				t.Fatalf("decodeCodedIndex(%#x) returned error: %v", tt.value, err)
			}
			if table != tt.wantTable || rid != tt.wantRID {
				t.Errorf("decodeCodedIndex(%#x) = (%d, %d), want (%d, %d)",
					tt.value, table, rid, tt.wantTable, tt.wantRID)
			}
		})
	}
}

func TestDecodeCodedIndexUnknownScheme(t *testing.T) {
	if _, _, err := decodeCodedIndex("NotAScheme", 0); err == nil {
		t.Error("expected error for an unknown coding scheme")
	}
}

func TestDecodeCodedIndexTagOutOfRange(t *testing.T) {
	// TypeDefOrRef only defines tags 0-2; tag 3 is out of range.
	if _, _, err := decodeCodedIndex("TypeDefOrRef", 0x3); err == nil {
		t.Error("expected error for an out-of-range tag")
	}
}

func TestIsBranchOp(t *testing.T) {
	tests := []struct {
		op   assembly.Opcode
		want bool
	}{
		{assembly.OpBr, true},
		{assembly.OpBrtrue, true},
		{assembly.OpBeq, true},
		{assembly.OpLeave, true},
		{assembly.OpNop, false},
		{assembly.OpRet, false},
	}
	for _, tt := range tests {
		got := isBranchOp(tt.op)
		if got != tt.want {
			t.Errorf("isBranchOp(%v) = %v, want %v", tt.op, got, tt.want)
		}
	}
}
