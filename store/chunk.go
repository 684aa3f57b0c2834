package store

import "github.com/sparsecs/ecsdb/internal/bitops"

// Chunk holds up to 64 values of T in an array of potentially-uninitialised
// slots: absence is tracked entirely by presenceMask, so an absent slot's
// zero value is never observed.
//
// fullnessMask is maintained in lock-step with presenceMask (invariant:
// they are always equal for a Chunk) rather than derived on read, so that
// verify_invariants checks real, independently-updated state.
type Chunk[T any] struct {
	presenceMask uint64
	fullnessMask uint64
	changedMask  uint64
	slots        [bitops.Fanout]T
}

// newChunk allocates an empty, owned chunk.
func newChunk[T any]() *Chunk[T] {
	return &Chunk[T]{}
}

// get resolves slot i, returning ok=false if it is absent. O(1).
func (c *Chunk[T]) get(i int) (T, bool) {
	if !bitops.HasBit(c.presenceMask, i) {
		var zero T
		return zero, false
	}
	return c.slots[i], true
}

// present reports whether slot i holds a value.
func (c *Chunk[T]) present(i int) bool {
	return bitops.HasBit(c.presenceMask, i)
}

// count returns the number of present slots.
func (c *Chunk[T]) count() int {
	return bitops.Popcount(c.presenceMask)
}

// full reports whether all 64 slots are present.
func (c *Chunk[T]) full() bool {
	return c.presenceMask == bitops.FullMask
}

// setValue writes v into slot i, returning the prior value and whether it
// was already present. It always sets presence, fullness and changed bits
// for i; its caller (Storage.SetUnchecked) is responsible for
// rollback journaling and for propagating masks upward.
func (c *Chunk[T]) setValue(i int, v T) (old T, wasPresent bool) {
	wasPresent = bitops.HasBit(c.presenceMask, i)
	if wasPresent {
		old = c.slots[i]
	}
	c.slots[i] = v
	c.presenceMask = bitops.SetBit(c.presenceMask, i)
	c.fullnessMask = c.presenceMask
	c.changedMask = bitops.SetBit(c.changedMask, i)
	return old, wasPresent
}

// removeValue clears slot i if present, returning the removed value. It
// reports false and performs no mutation if the slot was already absent.
func (c *Chunk[T]) removeValue(i int) (old T, removed bool) {
	if !bitops.HasBit(c.presenceMask, i) {
		return old, false
	}
	old = c.slots[i]
	var zero T
	c.slots[i] = zero
	c.presenceMask = bitops.ClearBit(c.presenceMask, i)
	c.fullnessMask = c.presenceMask
	c.changedMask = bitops.SetBit(c.changedMask, i)
	return old, true
}

// clearChanged clears the chunk's changed mask.
func (c *Chunk[T]) clearChanged() {
	c.changedMask = 0
}
