// Package indextype holds the sentinel errors and progress types shared by
// the prefixgz packages.
package indextype

import "errors"

// Sentinel errors for precompute, verify and serve operations.
var (
	// ErrMalformedArchive is returned when a tar header fails its checksum or
	// carries an unparseable numeric field.
	ErrMalformedArchive = errors.New("prefixgz: malformed tar archive")

	// ErrTruncatedInput is returned when the input ends inside a header or payload.
	ErrTruncatedInput = errors.New("prefixgz: truncated input")

	// ErrEmptyInput is returned when the archive holds no entries.
	ErrEmptyInput = errors.New("prefixgz: archive has no entries")

	// ErrNonMonotonicMtime is returned under strict ordering when an entry's
	// mtime is lower than the index state before it.
	ErrNonMonotonicMtime = errors.New("prefixgz: entry mtime decreases")

	// ErrCorruption is returned when the compressed output disagrees with the
	// running length or checksum.
	ErrCorruption = errors.New("prefixgz: output corruption")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("prefixgz: size overflow")

	// ErrDigestMismatch is returned when a composed stream does not hash to
	// its recorded sha256.
	ErrDigestMismatch = errors.New("prefixgz: digest mismatch")

	// ErrNotFound is returned when no checkpoint exists for an index state.
	ErrNotFound = errors.New("prefixgz: checkpoint not found")
)
