// Package segment groups tar entries into chunks that share an index state.
//
// The index state of an entry is its mtime. A chunk closes as soon as an
// entry with a strictly larger mtime arrives, so chunk boundaries are exactly
// the points at which a reader of the archive can observe a new version.
package segment

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/meigma/prefixgz/internal/indextype"
	"github.com/meigma/prefixgz/internal/tarblock"
)

// Ordering selects how an entry whose mtime is lower than the current index
// state is treated.
type Ordering uint8

const (
	// OrderStrict rejects a decreasing mtime with ErrNonMonotonicMtime.
	OrderStrict Ordering = iota

	// OrderPermissive folds a decreasing mtime into the current chunk.
	OrderPermissive
)

// String returns the name of the ordering.
func (o Ordering) String() string {
	switch o {
	case OrderStrict:
		return "strict"
	case OrderPermissive:
		return "permissive"
	default:
		return "unknown"
	}
}

// Chunk is the concatenated raw blocks of consecutive entries with the same
// index state.
type Chunk struct {
	// IndexState is the mtime shared by the chunk's entries.
	IndexState uint64

	// Entries is the number of tar entries in the chunk.
	Entries uint32

	// Offset is the uncompressed stream position of the chunk's first block.
	Offset uint64

	// Raw is the chunk's bytes, a whole number of 512-byte blocks.
	Raw []byte
}

// EntrySource yields tar entries in stream order, returning io.EOF after
// the last one.
type EntrySource interface {
	Next() (tarblock.Entry, error)
}

// Segmenter turns an entry stream into a chunk stream.
type Segmenter struct {
	src      EntrySource
	ordering Ordering

	pending  tarblock.Entry
	havePend bool
	started  bool
	done     bool
	folded   int
}

// New returns a Segmenter reading entries from src.
func New(src EntrySource, ordering Ordering) *Segmenter {
	return &Segmenter{src: src, ordering: ordering}
}

// Folded reports how many out-of-order entries were absorbed under
// OrderPermissive.
func (s *Segmenter) Folded() int {
	return s.folded
}

// Next returns the next chunk. It returns ErrEmptyInput if the stream holds
// no entries at all and io.EOF after the final chunk.
func (s *Segmenter) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	first, err := s.take()
	if errors.Is(err, io.EOF) {
		s.done = true
		if !s.started {
			return Chunk{}, indextype.ErrEmptyInput
		}
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, err
	}
	s.started = true

	c := Chunk{
		IndexState: first.Mtime,
		Entries:    1,
		Offset:     first.Offset,
		Raw:        first.Raw,
	}

	for {
		e, err := s.take()
		if errors.Is(err, io.EOF) {
			s.done = true
			return c, nil
		}
		if err != nil {
			return Chunk{}, err
		}

		switch {
		case e.Mtime > c.IndexState:
			s.pending, s.havePend = e, true
			return c, nil
		case e.Mtime < c.IndexState && s.ordering == OrderStrict:
			return Chunk{}, fmt.Errorf("entry at offset %d has mtime %d after index state %d: %w",
				e.Offset, e.Mtime, c.IndexState, indextype.ErrNonMonotonicMtime)
		case e.Mtime < c.IndexState:
			s.folded++
		}

		if c.Entries == math.MaxUint32 {
			return Chunk{}, fmt.Errorf("chunk at index state %d: %w", c.IndexState, indextype.ErrSizeOverflow)
		}
		c.Entries++
		c.Raw = append(c.Raw, e.Raw...)
	}
}

func (s *Segmenter) take() (tarblock.Entry, error) {
	if s.havePend {
		s.havePend = false
		e := s.pending
		s.pending = tarblock.Entry{}
		return e, nil
	}
	return s.src.Next()
}
