package prefixgz

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/prefixgz/internal/sizing"
)

// Reconstruct returns the gzip stream for cp: the first cp.PrefixSize bytes
// of prefix followed by cp.Trailer. Reading fails with ErrTruncatedInput if
// prefix is shorter than cp.PrefixSize.
func Reconstruct(prefix io.ReaderAt, cp Checkpoint) io.Reader {
	n, err := sizing.Signed[int64](cp.PrefixSize, ErrSizeOverflow)
	if err != nil {
		return errReader{err: fmt.Errorf("checkpoint %s: %w", cp.Key(), err)}
	}
	return io.MultiReader(
		&exactReader{r: io.NewSectionReader(prefix, 0, n), remaining: cp.PrefixSize},
		bytes.NewReader(cp.Trailer),
	)
}

// exactReader fails if r ends before remaining bytes were read.
type exactReader struct {
	r         io.Reader
	remaining uint64
}

func (e *exactReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.remaining -= uint64(n)
	if errors.Is(err, io.EOF) && e.remaining > 0 {
		return n, fmt.Errorf("prefix ends %d bytes short: %w", e.remaining, ErrTruncatedInput)
	}
	return n, err
}

type errReader struct {
	err error
}

func (e errReader) Read([]byte) (int, error) {
	return 0, e.err
}
