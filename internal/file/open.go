package file

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies the container an input archive arrived in.
type Format uint8

const (
	FormatTar Format = iota
	FormatGzip
	FormatZstd
	FormatLZ4
)

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

type openConfig struct {
	maxDecoderMemory uint64
}

// OpenOption configures OpenInput.
type OpenOption func(*openConfig)

// WithMaxDecoderMemory caps the memory a zstd decoder may allocate.
// Zero applies no limit.
func WithMaxDecoderMemory(n uint64) OpenOption {
	return func(c *openConfig) {
		c.maxDecoderMemory = n
	}
}

// OpenInput sniffs the leading bytes of r and returns a reader over the
// uncompressed tar stream. Gzip, zstd and LZ4 frames are recognized; anything
// else is passed through as a plain tar. Gzip input may hold several members; they are
// read back to back.
func OpenInput(r io.Reader, opts ...OpenOption) (io.ReadCloser, Format, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	br := bufio.NewReaderSize(r, 64<<10)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, FormatTar, fmt.Errorf("sniff input: %w", err)
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, FormatGzip, fmt.Errorf("open gzip input: %w", err)
		}
		return zr, FormatGzip, nil
	case bytes.HasPrefix(magic, zstdMagic):
		dopts := []zstd.DOption{zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(false)}
		if cfg.maxDecoderMemory != 0 {
			dopts = append(dopts, zstd.WithDecoderMaxMemory(cfg.maxDecoderMemory))
		}
		dec, err := zstd.NewReader(br, dopts...)
		if err != nil {
			return nil, FormatZstd, fmt.Errorf("open zstd input: %w", err)
		}
		return dec.IOReadCloser(), FormatZstd, nil
	case bytes.HasPrefix(magic, lz4Magic):
		return io.NopCloser(lz4.NewReader(br)), FormatLZ4, nil
	default:
		return io.NopCloser(br), FormatTar, nil
	}
}
