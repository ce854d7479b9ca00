// Package testutil builds tar fixtures and in-memory sources for tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
)

// File is one regular-file member of a fixture archive.
type File struct {
	Name  string
	Mtime uint64
	Data  []byte
}

// Header returns a ustar header block for f with a valid checksum.
func Header(f File) []byte {
	h := make([]byte, 512)
	copy(h[0:100], f.Name)
	copy(h[100:108], "0000644\x00")
	copy(h[108:116], "0000000\x00")
	copy(h[116:124], "0000000\x00")
	copy(h[124:136], fmt.Sprintf("%011o\x00", len(f.Data)))
	copy(h[136:148], fmt.Sprintf("%011o\x00", f.Mtime))
	h[156] = '0'
	copy(h[257:263], "ustar\x00")
	copy(h[263:265], "00")
	SetChecksum(h)
	return h
}

// SetChecksum rewrites the checksum field of header block h.
func SetChecksum(h []byte) {
	copy(h[148:156], "        ")
	var sum int
	for _, c := range h {
		sum += int(c)
	}
	copy(h[148:156], fmt.Sprintf("%06o\x00 ", sum))
}

// Member returns the header and padded payload of f.
func Member(f File) []byte {
	var buf bytes.Buffer
	buf.Write(Header(f))
	buf.Write(f.Data)
	if r := len(f.Data) % 512; r != 0 {
		buf.Write(make([]byte, 512-r))
	}
	return buf.Bytes()
}

// Tar returns an archive holding files followed by the two-block EOF marker.
func Tar(files ...File) []byte {
	var buf bytes.Buffer
	for _, f := range files {
		buf.Write(Member(f))
	}
	buf.Write(make([]byte, 1024))
	return buf.Bytes()
}

// Scenario returns the three-file archive used across package tests:
// a.txt and b.txt at mtime 100 and c.txt at mtime 200.
func Scenario() []byte {
	return Tar(
		File{Name: "a.txt", Mtime: 100, Data: []byte("AAA")},
		File{Name: "b.txt", Mtime: 100, Data: []byte("BBB")},
		File{Name: "c.txt", Mtime: 200, Data: []byte("CCC")},
	)
}

// Letters returns n deterministic bytes from a 16-letter alphabet.
func Letters(n int, seed uint32) []byte {
	out := make([]byte, n)
	s := seed
	for i := range out {
		s = s*1103515245 + 12345
		out[i] = 'a' + byte((s>>16)%16)
	}
	return out
}

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data []byte
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}
