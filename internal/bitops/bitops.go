// Package bitops implements bit-scan helpers over the fixed 64-bit presence,
// fullness and changed masks used throughout store and rollback. Every node
// in the hierarchy is 64-way, so a plain uint64 is the natural mask width;
// math/bits maps directly onto the hardware bit-scan instructions the
// design notes call for.
package bitops

import "math/bits"

// FullMask is the mask value of a node with all 64 slots present.
const FullMask = ^uint64(0)

// Fanout is the number of children (or slots) per node at any level.
const Fanout = 64

// Popcount returns the number of set bits in mask.
func Popcount(mask uint64) int {
	return bits.OnesCount64(mask)
}

// NextSet returns the index of the lowest set bit in mask, and ok=false if
// mask is zero. Callers iterate by clearing the returned bit and repeating.
func NextSet(mask uint64) (index int, ok bool) {
	if mask == 0 {
		return 0, false
	}
	return bits.TrailingZeros64(mask), true
}

// ClearBit clears bit i in mask and returns the result.
func ClearBit(mask uint64, i int) uint64 {
	return mask &^ (uint64(1) << uint(i))
}

// SetBit sets bit i in mask and returns the result.
func SetBit(mask uint64, i int) uint64 {
	return mask | (uint64(1) << uint(i))
}

// HasBit reports whether bit i is set in mask.
func HasBit(mask uint64, i int) bool {
	return mask&(uint64(1)<<uint(i)) != 0
}

// Iterate calls fn for every set bit index in mask, in ascending order. It
// operates on a local copy, so it is safe even though fn typically mutates
// the mask the caller holds elsewhere.
func Iterate(mask uint64, fn func(index int)) {
	for mask != 0 {
		i, _ := NextSet(mask)
		fn(i)
		mask = ClearBit(mask, i)
	}
}
