// Package deflate implements a raw DEFLATE compressor whose output is
// bit-identical to zlib's deflate for the lazy-matching levels (4 through 9)
// with windowBits -15, memLevel 8 and the default strategy.
//
// All encoder state lives in fixed-size arrays inside the Writer, so a Writer
// can be duplicated with Clone. The copy shares nothing with the original:
// driving the copy to completion never changes what the original emits.
package deflate

import (
	"errors"
	"fmt"
	"io"
)

const (
	// BestCompression matches zlib's Z_BEST_COMPRESSION.
	BestCompression = 9

	// DefaultCompression matches zlib's Z_DEFAULT_COMPRESSION resolved level.
	DefaultCompression = 6

	minLevel = 4
)

// ErrClosed is returned when writing to a finished Writer.
var ErrClosed = errors.New("deflate: write after close")

// config mirrors one row of zlib's configuration_table.
type config struct {
	goodLength int // reduce lazy search above this match length
	maxLazy    int // do not perform lazy search above this match length
	niceLength int // quit search above this match length
	maxChain   int
}

var levels = [...]config{
	4: {4, 4, 16, 16},
	5: {8, 16, 32, 32},
	6: {8, 16, 128, 128},
	7: {8, 32, 128, 256},
	8: {32, 128, 258, 1024},
	9: {32, 258, 258, 4096},
}

// Writer is a raw DEFLATE compressor. Compressed bytes are written to the
// destination as soon as whole blocks are produced, exactly as zlib hands
// them out of deflate(Z_NO_FLUSH).
type Writer struct {
	dst   io.Writer
	level int
	done  bool
	err   error
	s     state
}

// NewWriter returns a Writer compressing at the given level into dst.
func NewWriter(dst io.Writer, level int) (*Writer, error) {
	if level < minLevel || level >= len(levels) {
		return nil, fmt.Errorf("deflate: unsupported level %d", level)
	}
	w := &Writer{dst: dst, level: level}
	w.s.init(levels[level])
	return w, nil
}

// Write compresses p. Bytes that complete a block are forwarded to the
// destination; the rest stay buffered in the window until later input or
// Close pushes them out.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.done {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	w.s.input = p
	w.s.deflateSlow(flushNone)
	w.s.input = nil
	if err := w.drain(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close terminates the stream with a final block and writes the remaining
// compressed bytes. It does not close the destination.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.done {
		return nil
	}
	w.s.deflateSlow(flushFinish)
	w.done = true
	return w.drain()
}

// Clone returns an independent copy of w that writes to dst. The copy can be
// fed more input and closed without affecting w.
func (w *Writer) Clone(dst io.Writer) *Writer {
	c := new(Writer)
	*c = *w
	c.dst = dst
	c.s.input = nil
	c.s.pending = make([]byte, 0, cap(w.s.pending))
	return c
}

// Level reports the compression level of w.
func (w *Writer) Level() int {
	return w.level
}

func (w *Writer) drain() error {
	if len(w.s.pending) == 0 {
		return nil
	}
	_, err := w.dst.Write(w.s.pending)
	w.s.pending = w.s.pending[:0]
	if err != nil {
		w.err = err
	}
	return err
}
