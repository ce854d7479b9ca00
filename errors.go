package prefixgz

import "github.com/meigma/prefixgz/internal/indextype"

// Errors re-exported from indextype.
var (
	// ErrMalformedArchive is returned when a tar header fails its checksum or
	// carries an unparseable numeric field.
	ErrMalformedArchive = indextype.ErrMalformedArchive

	// ErrTruncatedInput is returned when the input ends inside a header or payload.
	ErrTruncatedInput = indextype.ErrTruncatedInput

	// ErrEmptyInput is returned when the archive holds no entries.
	ErrEmptyInput = indextype.ErrEmptyInput

	// ErrNonMonotonicMtime is returned under OrderStrict when an entry's mtime
	// decreases.
	ErrNonMonotonicMtime = indextype.ErrNonMonotonicMtime

	// ErrCorruption is returned when compressed output disagrees with the
	// running length or checksum.
	ErrCorruption = indextype.ErrCorruption

	// ErrSizeOverflow is returned when a size value overflows.
	ErrSizeOverflow = indextype.ErrSizeOverflow

	// ErrDigestMismatch is returned when a composed stream does not hash to
	// its recorded sha256.
	ErrDigestMismatch = indextype.ErrDigestMismatch

	// ErrNotFound is returned when no checkpoint exists for an index state.
	ErrNotFound = indextype.ErrNotFound
)
