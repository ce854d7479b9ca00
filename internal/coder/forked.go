package coder

import (
	"io"

	"github.com/meigma/prefixgz/internal/deflate"
)

// forked owns a zlib-compatible deflater and forks it by value copy.
type forked struct {
	w *deflate.Writer
}

func newForked(dst io.Writer) (*forked, error) {
	w, err := deflate.NewWriter(dst, deflate.BestCompression)
	if err != nil {
		return nil, err
	}
	return &forked{w: w}, nil
}

func (f *forked) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *forked) Fork(dst io.Writer, tail []byte) error {
	c := f.w.Clone(dst)
	if _, err := c.Write(tail); err != nil {
		return err
	}
	return c.Close()
}

func (f *forked) Close(tail []byte) error {
	if _, err := f.w.Write(tail); err != nil {
		return err
	}
	return f.w.Close()
}
