// Package file opens input archives and tracks byte positions in streams.
package file

import (
	"context"
	"errors"
	"io"
)

// ErrOverflow indicates a stream position no longer fits in a uint64.
var ErrOverflow = errors.New("stream position overflow")

func advance(pos *uint64, n int) error {
	if n <= 0 {
		return nil
	}
	if *pos > ^uint64(0)-uint64(n) {
		return ErrOverflow
	}
	*pos += uint64(n)
	return nil
}

// CountingReader records how many bytes have been consumed from R.
type CountingReader struct {
	R io.Reader
	N uint64
}

func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if aerr := advance(&cr.N, n); aerr != nil {
		return n, aerr
	}
	return n, err
}

// CountingWriter records the position of the next byte written to W.
// A short write without an error becomes io.ErrShortWrite so N always
// matches what the destination accepted.
type CountingWriter struct {
	W io.Writer
	N uint64
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if aerr := advance(&cw.N, n); aerr != nil {
		return n, aerr
	}
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// NewContextReader returns a reader that fails with the context's error
// once ctx is done, checked before every read of r.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
