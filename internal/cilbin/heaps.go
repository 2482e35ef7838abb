package cilbin

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// heaps bundles accessors for the four metadata heaps (ECMA-335 §II.24.2.3):
// #Strings (UTF-8, NUL-terminated), #US (UTF-16, length-prefixed), #GUID
// (16-byte records) and #Blob (length-prefixed byte sequences). Index widths
// are determined by the #~ stream header's heap-size flags, mirroring
// saferwall-pe's StringStreamIndexSize/GUIDStreamIndexSize/BlobStreamIndexSize.
type heaps struct {
	f *file

	strings    metadataStream
	us         metadataStream
	guid       metadataStream
	blob       metadataStream
	stringWide bool
	guidWide   bool
	blobWide   bool
}

// newHeaps locates the heap streams by name; the wide/narrow index flags are
// filled in by parseTableStream once the #~ stream header has been read, since
// they live there rather than in the metadata root.
func newHeaps(f *file, root *metadataRoot) *heaps {
	return &heaps{
		f:       f,
		strings: root.streams["#Strings"],
		us:      root.streams["#US"],
		guid:    root.streams["#GUID"],
		blob:    root.streams["#Blob"],
	}
}

// stringIndexSize returns the byte width of an index into the #Strings heap.
func (h *heaps) stringIndexSize() int {
	if h.stringWide {
		return 4
	}
	return 2
}

func (h *heaps) guidIndexSize() int {
	if h.guidWide {
		return 4
	}
	return 2
}

func (h *heaps) blobIndexSize() int {
	if h.blobWide {
		return 4
	}
	return 2
}

// readIndex reads a heap index of the given width from the row cursor.
func readIndex(c *cursor, width int) (uint32, error) {
	if width == 4 {
		return c.readU32()
	}
	v, err := c.readU16()
	return uint32(v), err
}

// String resolves an offset into the #Strings heap to a Go string.
func (h *heaps) String(off uint32) (string, error) {
	if off == 0 {
		return "", nil
	}
	base := h.strings.offset
	limit := base + h.strings.size
	return h.f.cstring(base+int(off), limit)
}

// Blob resolves an offset into the #Blob heap to the raw bytes following its
// ECMA-335 compressed length prefix.
func (h *heaps) Blob(off uint32) ([]byte, error) {
	if off == 0 {
		return nil, nil
	}
	base := h.blob.offset + int(off)
	lenCursor := newCursor(mustSliceFrom(h.f, base, h.blob.offset+h.blob.size))
	n, err := lenCursor.readCompressed()
	if err != nil {
		return nil, err
	}
	dataStart := base + lenCursor.pos
	return h.f.bytes(dataStart, int(n))
}

// UserString resolves an offset into the #US heap to its decoded UTF-16LE
// text, used for ldstr operands. The trailing encoding byte ECMA-335 reserves
// for "string contains non-ASCII" hints is dropped, as it carries no
// information this loader needs.
func (h *heaps) UserString(off uint32) (string, error) {
	if off == 0 {
		return "", nil
	}
	base := h.us.offset + int(off)
	lenCursor := newCursor(mustSliceFrom(h.f, base, h.us.offset+h.us.size))
	n, err := lenCursor.readCompressed()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	dataStart := base + lenCursor.pos
	// n includes the trailing single-byte encoding hint; the UTF-16 payload
	// is n-1 bytes when n is odd (the common case).
	payloadLen := int(n)
	if payloadLen%2 == 1 {
		payloadLen--
	}
	raw, err := h.f.bytes(dataStart, payloadLen)
	if err != nil {
		return "", err
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := dec.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding #US entry at 0x%x: %w", off, err)
	}
	return string(decoded), nil
}

// mustSliceFrom returns the slice of f.data from off to limit, for building a
// cursor anchored at a heap entry; errors surface on first read instead, so
// this never needs to return an error itself.
func mustSliceFrom(f *file, off, limit int) []byte {
	if off < 0 || off > limit || limit > f.size() {
		return nil
	}
	b, err := f.bytes(off, limit-off)
	if err != nil {
		return nil
	}
	return b
}
