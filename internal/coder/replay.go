package coder

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/meigma/prefixgz/internal/indextype"
)

// replay drives klauspost's deflater. Its state cannot be copied, so a fork
// replays every write made so far through a fresh deflater, checks that the
// replay reproduces the bytes already emitted, and keeps only what follows.
type replay struct {
	main    *flate.Writer
	out     *tracker
	history [][]byte
}

func newReplay(dst io.Writer) (*replay, error) {
	out := &tracker{w: dst}
	w, err := flate.NewWriter(out, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	return &replay{main: w, out: out}, nil
}

func (r *replay) Write(p []byte) (int, error) {
	n, err := r.main.Write(p)
	if err != nil {
		return n, err
	}
	r.history = append(r.history, bytes.Clone(p))
	return n, nil
}

func (r *replay) Fork(dst io.Writer, tail []byte) error {
	t := &tracker{}
	w, err := flate.NewWriter(t, flate.BestCompression)
	if err != nil {
		return err
	}
	for _, p := range r.history {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	if t.n != r.out.n || t.crc != r.out.crc {
		return fmt.Errorf("replayed %d bytes, main stream has %d: %w", t.n, r.out.n, indextype.ErrCorruption)
	}

	t.w = dst
	if _, err := w.Write(tail); err != nil {
		return err
	}
	return w.Close()
}

func (r *replay) Close(tail []byte) error {
	if _, err := r.main.Write(tail); err != nil {
		return err
	}
	r.history = nil
	return r.main.Close()
}

// tracker counts and checksums the bytes passing through it. With a nil
// destination the bytes are dropped.
type tracker struct {
	w   io.Writer
	n   uint64
	crc uint32
}

func (t *tracker) Write(p []byte) (int, error) {
	if t.w == nil {
		t.n += uint64(len(p))
		t.crc = crc32.Update(t.crc, crc32.IEEETable, p)
		return len(p), nil
	}
	n, err := t.w.Write(p)
	t.n += uint64(n) //nolint:gosec // n is non-negative
	t.crc = crc32.Update(t.crc, crc32.IEEETable, p[:n])
	return n, err
}
