// Package coder provides the raw DEFLATE engines behind the checkpointer.
//
// Both engines compress one main stream and can, at any write boundary,
// produce the bytes that would finish that stream after some extra input
// without disturbing the main stream.
package coder

import (
	"fmt"
	"io"
)

// Engine selects a Coder implementation.
type Engine uint8

const (
	// EngineForked duplicates the compressor state at each checkpoint. Its
	// output is identical to zlib's at level 9.
	EngineForked Engine = iota

	// EngineReplay recompresses the whole history at each checkpoint. It
	// needs no state duplication but costs time quadratic in the number of
	// checkpoints.
	EngineReplay
)

// String returns the name of the engine.
func (e Engine) String() string {
	switch e {
	case EngineForked:
		return "forked"
	case EngineReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// ParseEngine returns the engine with the given name.
func ParseEngine(name string) (Engine, error) {
	switch name {
	case "forked", "":
		return EngineForked, nil
	case "replay":
		return EngineReplay, nil
	default:
		return 0, fmt.Errorf("unknown engine %q", name)
	}
}

// Coder compresses a raw DEFLATE stream into its destination.
type Coder interface {
	// Write compresses p into the main stream. The coder does not retain p.
	Write(p []byte) (int, error)

	// Fork writes to dst the bytes that complete the main stream after tail
	// is appended and the stream is finished. The main stream is unchanged.
	Fork(dst io.Writer, tail []byte) error

	// Close appends tail to the main stream and finishes it.
	Close(tail []byte) error
}

// New returns a Coder of the given engine writing compressed bytes to dst.
func New(engine Engine, dst io.Writer) (Coder, error) {
	switch engine {
	case EngineForked:
		return newForked(dst)
	case EngineReplay:
		return newReplay(dst)
	default:
		return nil, fmt.Errorf("unknown engine %d", engine)
	}
}
