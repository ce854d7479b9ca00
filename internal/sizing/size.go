// Package sizing holds overflow-checked arithmetic for stream positions and
// tar block sizes.
package sizing

import (
	"math"
	"math/bits"
)

// BlockSize is the tar record unit.
const BlockSize = 512

// Signed converts size to a signed integer type, returning overflowErr when
// it does not fit.
func Signed[T int | int64](size uint64, overflowErr error) (T, error) {
	limit := uint64(math.MaxInt64)
	if bits.UintSize == 32 {
		limit = math.MaxInt32
	}
	if size > limit {
		return 0, overflowErr
	}
	return T(size), nil //nolint:gosec // bounded above
}

// Add returns a+b, or false when the sum wraps.
func Add(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// Blocks rounds size up to whole tar blocks and returns the padded byte
// count, or false when it wraps.
func Blocks(size uint64) (uint64, bool) {
	padded, ok := Add(size, BlockSize-1)
	if !ok {
		return 0, false
	}
	return padded &^ (BlockSize - 1), true
}

// Uint32 reduces n modulo 2^32, as the gzip ISIZE field requires.
func Uint32(n uint64) uint32 {
	return uint32(n & math.MaxUint32) //nolint:gosec // masked to 32 bits
}
