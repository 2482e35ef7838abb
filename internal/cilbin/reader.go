// Package cilbin implements the binary container reader the core
// specification leaves unspecified beyond its query surface (§6): a
// PE/COFF-hosted CLI metadata root plus compressed metadata tables, string
// and user-string heaps, and CIL method bodies. See SPEC_FULL.md §4.0.
package cilbin

import (
	"encoding/binary"
	"fmt"

	mmap "github.com/edsrzf/mmap-go"
)

// file is a memory-mapped assembly image with a cursor-based reader, mirroring
// saferwall-pe's mmap.MMap-backed pe.File (file.go) — random access into a
// large binary without copying it into a second buffer up front.
type file struct {
	data mmap.MMap
	path string
}

func (f *file) size() int { return len(f.data) }

func (f *file) u8(off int) (byte, error) {
	if off < 0 || off >= len(f.data) {
		return 0, fmt.Errorf("%s: offset 0x%x out of range (size 0x%x)", f.path, off, len(f.data))
	}
	return f.data[off], nil
}

func (f *file) u16(off int) (uint16, error) {
	if off < 0 || off+2 > len(f.data) {
		return 0, fmt.Errorf("%s: offset 0x%x out of range for u16 (size 0x%x)", f.path, off, len(f.data))
	}
	return binary.LittleEndian.Uint16(f.data[off : off+2]), nil
}

func (f *file) u32(off int) (uint32, error) {
	if off < 0 || off+4 > len(f.data) {
		return 0, fmt.Errorf("%s: offset 0x%x out of range for u32 (size 0x%x)", f.path, off, len(f.data))
	}
	return binary.LittleEndian.Uint32(f.data[off : off+4]), nil
}

func (f *file) u64(off int) (uint64, error) {
	if off < 0 || off+8 > len(f.data) {
		return 0, fmt.Errorf("%s: offset 0x%x out of range for u64 (size 0x%x)", f.path, off, len(f.data))
	}
	return binary.LittleEndian.Uint64(f.data[off : off+8]), nil
}

func (f *file) bytes(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(f.data) {
		return nil, fmt.Errorf("%s: range [0x%x,0x%x) out of bounds (size 0x%x)", f.path, off, off+n, len(f.data))
	}
	return f.data[off : off+n], nil
}

// cstring reads a NUL-terminated string starting at off, bounded by limit
// (exclusive upper bound on the scan), used for the #Strings heap.
func (f *file) cstring(off, limit int) (string, error) {
	if off < 0 || off >= limit || limit > len(f.data) {
		return "", fmt.Errorf("%s: bad cstring range at 0x%x", f.path, off)
	}
	end := off
	for end < limit && f.data[end] != 0 {
		end++
	}
	return string(f.data[off:end]), nil
}

// cursor is a sequential reader over a byte slice, used for CIL method
// bodies and blob-heap signatures where instructions are read in order
// rather than at random offsets.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor { return &cursor{b: b} }

func (c *cursor) atEnd() bool { return c.pos >= len(c.b) }

func (c *cursor) remaining() int { return len(c.b) - c.pos }

func (c *cursor) readU8() (byte, error) {
	if c.pos >= len(c.b) {
		return 0, fmt.Errorf("cursor: read past end at %d", c.pos)
	}
	v := c.b[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) readU16() (uint16, error) {
	if c.pos+2 > len(c.b) {
		return 0, fmt.Errorf("cursor: read past end at %d", c.pos)
	}
	v := binary.LittleEndian.Uint16(c.b[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) readU32() (uint32, error) {
	if c.pos+4 > len(c.b) {
		return 0, fmt.Errorf("cursor: read past end at %d", c.pos)
	}
	v := binary.LittleEndian.Uint32(c.b[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) readU64() (uint64, error) {
	if c.pos+8 > len(c.b) {
		return 0, fmt.Errorf("cursor: read past end at %d", c.pos)
	}
	v := binary.LittleEndian.Uint64(c.b[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) readI8() (int8, error) {
	v, err := c.readU8()
	return int8(v), err
}

func (c *cursor) readI32() (int32, error) {
	v, err := c.readU32()
	return int32(v), err
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.b) {
		return nil, fmt.Errorf("cursor: read %d bytes past end at %d", n, c.pos)
	}
	v := c.b[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// readCompressed decodes an ECMA-335 §II.23.2 compressed unsigned integer,
// used throughout blob-heap signatures.
func (c *cursor) readCompressed() (uint32, error) {
	first, err := c.readU8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return uint32(first), nil
	}
	if first&0xC0 == 0x80 {
		second, err := c.readU8()
		if err != nil {
			return 0, err
		}
		return (uint32(first&0x3F) << 8) | uint32(second), nil
	}
	b2, err := c.readU8()
	if err != nil {
		return 0, err
	}
	b3, err := c.readU8()
	if err != nil {
		return 0, err
	}
	b4, err := c.readU8()
	if err != nil {
		return 0, err
	}
	return (uint32(first&0x1F) << 24) | (uint32(b2) << 16) | (uint32(b3) << 8) | uint32(b4), nil
}
