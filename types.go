package prefixgz

import (
	"github.com/opencontainers/go-digest"

	"github.com/meigma/prefixgz/internal/coder"
	"github.com/meigma/prefixgz/internal/indextype"
	"github.com/meigma/prefixgz/internal/segment"
	"github.com/meigma/prefixgz/internal/sizing"
)

// GzipHeader is the fixed member header written at the start of the output:
// deflate method, no flags, zero mtime, maximum-compression hint, Unix OS.
var GzipHeader = [10]byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x03}

// EOFMarkerSize is the length of the zero blocks that end a tar archive.
const EOFMarkerSize = 1024

// BlockSize is the tar record unit.
const BlockSize = sizing.BlockSize

// Checkpoint describes how to rebuild the archive as of one index state.
type Checkpoint = indextype.Checkpoint

// Engine selects how trailers are produced.
type Engine = coder.Engine

// Engine constants.
const (
	EngineForked = coder.EngineForked
	EngineReplay = coder.EngineReplay
)

// ParseEngine returns the engine with the given name.
var ParseEngine = coder.ParseEngine

// Ordering selects how a decreasing entry mtime is treated.
type Ordering = segment.Ordering

// Ordering constants.
const (
	OrderStrict     = segment.OrderStrict
	OrderPermissive = segment.OrderPermissive
)

// FormatKey renders an index state as a record key.
var FormatKey = indextype.FormatKey

// ParseKey parses a record key or a decimal Unix time into an index state.
var ParseKey = indextype.ParseKey

// Summary describes a completed Precompute run.
type Summary struct {
	// Checkpoints is the number of checkpoints emitted.
	Checkpoints int

	// Entries is the number of tar entries read.
	Entries uint64

	// UncompressedSize is the size of the rewritten tar, EOF marker included.
	UncompressedSize uint64

	// CompressedSize is the size of the main output.
	CompressedSize uint64

	// SHA256 is the digest of the main output.
	SHA256 digest.Digest

	// Folded is the number of out-of-order entries absorbed under
	// OrderPermissive.
	Folded int
}
