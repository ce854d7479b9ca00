// Package tarblock splits a tar stream into raw 512-byte aligned entries.
//
// Only the header fields needed to delimit entries are decoded: size, mtime
// and the header checksum. Every entry, including extended headers and
// long-name records, is returned as an opaque run of blocks so the bytes can
// be forwarded untouched.
package tarblock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/meigma/prefixgz/internal/indextype"
	"github.com/meigma/prefixgz/internal/sizing"
)

// BlockSize is the size of a tar header and the unit of payload padding.
const BlockSize = sizing.BlockSize

// maxPrealloc caps the payload buffer reserved before any bytes are read.
const maxPrealloc = 1 << 20

// Header field locations within a ustar block.
const (
	sizeOff   = 124
	sizeLen   = 12
	mtimeOff  = 136
	mtimeLen  = 12
	chksumOff = 148
	chksumLen = 8
)

// Entry is one tar member as it appears in the stream.
type Entry struct {
	// Header is the raw 512-byte header block.
	Header [BlockSize]byte

	// Size is the payload size declared by the header.
	Size uint64

	// Mtime is the modification time declared by the header, in Unix seconds.
	Mtime uint64

	// Offset is the position of the header in the uncompressed stream.
	Offset uint64

	// Raw holds the header followed by the payload padded to whole blocks.
	Raw []byte
}

// Blocks returns the number of 512-byte blocks the entry occupies.
func (e *Entry) Blocks() uint64 {
	return uint64(len(e.Raw)) / BlockSize
}

// Reader yields entries from a tar stream in order.
type Reader struct {
	r      io.Reader
	offset uint64
	done   bool
	marker bool
}

// NewReader returns a Reader consuming r from its current position.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the stream position of the next header.
func (r *Reader) Offset() uint64 {
	return r.offset
}

// EndMarker reports whether the archive ended with a zero block rather
// than a bare end of stream.
func (r *Reader) EndMarker() bool {
	return r.marker
}

// Next returns the next entry. It returns io.EOF at an all-zero header block
// or when the stream ends cleanly on a header boundary.
func (r *Reader) Next() (Entry, error) {
	if r.done {
		return Entry{}, io.EOF
	}

	var e Entry
	n, err := io.ReadFull(r.r, e.Header[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		r.done = true
		return Entry{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Entry{}, fmt.Errorf("header at offset %d: %w", r.offset, indextype.ErrTruncatedInput)
	case err != nil:
		return Entry{}, fmt.Errorf("read header at offset %d: %w", r.offset, err)
	}

	if isZero(e.Header[:]) {
		r.done = true
		r.marker = true
		return Entry{}, io.EOF
	}

	if err := ParseHeader(&e); err != nil {
		return Entry{}, fmt.Errorf("header at offset %d: %w", r.offset, err)
	}

	padded, ok := sizing.Blocks(e.Size)
	if !ok {
		return Entry{}, fmt.Errorf("entry at offset %d: %w", r.offset, indextype.ErrSizeOverflow)
	}
	total, ok := sizing.Add(padded, BlockSize)
	if !ok {
		return Entry{}, fmt.Errorf("entry at offset %d: %w", r.offset, indextype.ErrSizeOverflow)
	}
	want, err := sizing.Signed[int64](padded, indextype.ErrSizeOverflow)
	if err != nil {
		return Entry{}, fmt.Errorf("entry at offset %d: %w", r.offset, err)
	}

	// The declared size is untrusted until the payload arrives.
	var buf bytes.Buffer
	buf.Grow(BlockSize + int(min(padded, maxPrealloc))) //nolint:gosec // bounded by maxPrealloc
	buf.Write(e.Header[:])
	if _, err := io.CopyN(&buf, r.r, want); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, fmt.Errorf("payload at offset %d: %w", r.offset, indextype.ErrTruncatedInput)
		}
		return Entry{}, fmt.Errorf("read payload at offset %d: %w", r.offset, err)
	}
	e.Raw = buf.Bytes()

	next, ok := sizing.Add(r.offset, total)
	if !ok {
		return Entry{}, fmt.Errorf("entry at offset %d: %w", r.offset, indextype.ErrSizeOverflow)
	}
	e.Offset = r.offset
	r.offset = next
	return e, nil
}

// ParseHeader validates e.Header and fills in Size and Mtime.
func ParseHeader(e *Entry) error {
	h := e.Header[:]

	want, err := parseNumeric(h[chksumOff : chksumOff+chksumLen])
	if err != nil {
		return fmt.Errorf("checksum field: %w", err)
	}
	unsigned, signed := checksums(h)
	if want != unsigned && int64(want) != signed { //nolint:gosec // checksum fits in 8 octal digits
		return fmt.Errorf("checksum %o does not match: %w", want, indextype.ErrMalformedArchive)
	}

	if e.Size, err = parseNumeric(h[sizeOff : sizeOff+sizeLen]); err != nil {
		return fmt.Errorf("size field: %w", err)
	}
	if e.Mtime, err = parseNumeric(h[mtimeOff : mtimeOff+mtimeLen]); err != nil {
		return fmt.Errorf("mtime field: %w", err)
	}
	return nil
}

// checksums returns the unsigned and signed byte sums of a header with its
// checksum field read as spaces. Historic writers used either.
func checksums(h []byte) (uint64, int64) {
	var unsigned uint64
	var signed int64
	for i, c := range h {
		if i >= chksumOff && i < chksumOff+chksumLen {
			c = ' '
		}
		unsigned += uint64(c)
		signed += int64(int8(c)) //nolint:gosec // reinterpreting the byte is the point
	}
	return unsigned, signed
}

// parseNumeric decodes an octal field or a GNU base-256 field. Negative
// base-256 values are rejected.
func parseNumeric(b []byte) (uint64, error) {
	if len(b) > 0 && b[0]&0x80 != 0 {
		if b[0]&0x40 != 0 {
			return 0, fmt.Errorf("negative base-256 value: %w", indextype.ErrMalformedArchive)
		}
		var x uint64
		for i, c := range b {
			if i == 0 {
				c &= 0x7f
			}
			if x>>56 != 0 {
				return 0, fmt.Errorf("base-256 value overflows: %w", indextype.ErrMalformedArchive)
			}
			x = x<<8 | uint64(c)
		}
		return x, nil
	}

	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0, nil
	}
	x, err := strconv.ParseUint(string(b), 8, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid octal %q: %w", b, indextype.ErrMalformedArchive)
	}
	return x, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
