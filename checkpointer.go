package prefixgz

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/prefixgz/internal/coder"
	"github.com/meigma/prefixgz/internal/file"
	"github.com/meigma/prefixgz/internal/segment"
	"github.com/meigma/prefixgz/internal/sizing"
)

var eofMarker = make([]byte, EOFMarkerSize)

// checkpointer writes the main gzip stream and derives a trailer for every
// chunk boundary.
type checkpointer struct {
	sink  *file.CountingWriter
	hash  hash.Hash
	coder coder.Coder

	crc  uint32
	size uint64
}

func newCheckpointer(out io.Writer, engine Engine) (*checkpointer, error) {
	h := sha256.New()
	sink := &file.CountingWriter{W: io.MultiWriter(out, h)}
	c, err := coder.New(engine, sink)
	if err != nil {
		return nil, err
	}
	if _, err := sink.Write(GzipHeader[:]); err != nil {
		return nil, fmt.Errorf("write gzip header: %w", err)
	}
	return &checkpointer{sink: sink, hash: h, coder: c}, nil
}

// add compresses a chunk into the main stream and returns its checkpoint.
func (c *checkpointer) add(chunk *segment.Chunk) (Checkpoint, error) {
	if chunk.Offset != c.size {
		return Checkpoint{}, fmt.Errorf("chunk %d starts at %d, stream is at %d: %w",
			chunk.IndexState, chunk.Offset, c.size, ErrCorruption)
	}
	if _, err := c.coder.Write(chunk.Raw); err != nil {
		return Checkpoint{}, fmt.Errorf("compress chunk %d: %w", chunk.IndexState, err)
	}
	size, ok := sizing.Add(c.size, uint64(len(chunk.Raw)))
	if !ok {
		return Checkpoint{}, ErrSizeOverflow
	}
	c.size = size
	c.crc = crc32.Update(c.crc, crc32.IEEETable, chunk.Raw)

	var trailer bytes.Buffer
	if err := c.coder.Fork(&trailer, eofMarker); err != nil {
		return Checkpoint{}, fmt.Errorf("fork at index state %d: %w", chunk.IndexState, err)
	}
	tb, err := c.gzipTrailer(trailer.Bytes())
	if err != nil {
		return Checkpoint{}, err
	}

	d, err := c.digestWith(tb)
	if err != nil {
		return Checkpoint{}, err
	}

	return Checkpoint{
		IndexState: chunk.IndexState,
		PrefixSize: c.sink.N,
		Trailer:    tb,
		SHA256:     d,
		Entries:    chunk.Entries,
		RawSize:    c.size,
	}, nil
}

// finish ends the main stream with the EOF marker and the gzip trailer and
// returns the digest of the whole output.
func (c *checkpointer) finish() (digest.Digest, error) {
	tb, err := c.gzipTrailer(nil)
	if err != nil {
		return "", err
	}
	if err := c.coder.Close(eofMarker); err != nil {
		return "", fmt.Errorf("finish stream: %w", err)
	}
	c.size += EOFMarkerSize
	c.crc = crc32.Update(c.crc, crc32.IEEETable, eofMarker)
	if _, err := c.sink.Write(tb); err != nil {
		return "", fmt.Errorf("write gzip trailer: %w", err)
	}
	return digest.NewDigest(digest.SHA256, c.hash), nil
}

// gzipTrailer appends CRC-32 and ISIZE for the data so far plus the EOF
// marker to deflated.
func (c *checkpointer) gzipTrailer(deflated []byte) ([]byte, error) {
	total, ok := sizing.Add(c.size, EOFMarkerSize)
	if !ok {
		return nil, ErrSizeOverflow
	}
	crc := crc32.Update(c.crc, crc32.IEEETable, eofMarker)
	out := make([]byte, 0, len(deflated)+8)
	out = append(out, deflated...)
	out = binary.LittleEndian.AppendUint32(out, crc)
	out = binary.LittleEndian.AppendUint32(out, sizing.Uint32(total))
	return out, nil
}

// digestWith hashes the main output so far followed by tail, leaving the
// running hash untouched.
func (c *checkpointer) digestWith(tail []byte) (digest.Digest, error) {
	m, ok := c.hash.(encoding.BinaryMarshaler)
	if !ok {
		return "", fmt.Errorf("sha256 state is not marshalable: %w", ErrCorruption)
	}
	state, err := m.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("snapshot sha256: %w", err)
	}
	h := sha256.New()
	u, ok := h.(encoding.BinaryUnmarshaler)
	if !ok {
		return "", fmt.Errorf("sha256 state is not unmarshalable: %w", ErrCorruption)
	}
	if err := u.UnmarshalBinary(state); err != nil {
		return "", fmt.Errorf("restore sha256: %w", err)
	}
	h.Write(tail)
	return digest.NewDigest(digest.SHA256, h), nil
}
