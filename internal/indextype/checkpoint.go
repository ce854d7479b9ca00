package indextype

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"
)

// KeyLayout is the timestamp layout of checkpoint keys.
const KeyLayout = "2006-01-02T15:04:05Z"

// Checkpoint describes how to rebuild the archive as of one index state:
// the first PrefixSize bytes of the main output followed by Trailer form a
// complete gzip stream.
type Checkpoint struct {
	// IndexState is the mtime shared by the entries of the checkpoint's chunk.
	IndexState uint64

	// PrefixSize is the number of main output bytes the checkpoint reuses.
	PrefixSize uint64

	// Trailer completes the prefix: the end of the DEFLATE stream with the
	// tar EOF marker, then the gzip CRC-32 and ISIZE fields.
	Trailer []byte

	// SHA256 is the digest of the composed stream.
	SHA256 digest.Digest

	// Entries is the number of tar entries in the checkpoint's chunk.
	Entries uint32

	// RawSize is the uncompressed archive size through the chunk, excluding
	// the EOF marker.
	RawSize uint64
}

// Key returns the record key of the checkpoint.
func (c *Checkpoint) Key() string {
	return FormatKey(c.IndexState)
}

// Size returns the length of the composed stream.
func (c *Checkpoint) Size() uint64 {
	return c.PrefixSize + uint64(len(c.Trailer))
}

// FormatKey renders an index state as a UTC timestamp.
func FormatKey(indexState uint64) string {
	if indexState > math.MaxInt64 {
		return strconv.FormatUint(indexState, 10)
	}
	return time.Unix(int64(indexState), 0).UTC().Format(KeyLayout) //nolint:gosec // checked above
}

// ParseKey accepts a key produced by FormatKey or a decimal Unix time.
func ParseKey(key string) (uint64, error) {
	if n, err := strconv.ParseUint(key, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(KeyLayout, key)
	if err != nil {
		return 0, fmt.Errorf("parse key %q: %w", key, err)
	}
	if t.Unix() < 0 {
		return 0, fmt.Errorf("key %q precedes the Unix epoch", key)
	}
	return uint64(t.Unix()), nil //nolint:gosec // checked above
}
