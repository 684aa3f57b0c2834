package rollback

import "github.com/sparsecs/ecsdb/internal/bitops"

// RollbackChunk tracks, per slot, three mutually exclusive bits:
// createdMask (absent at tick start, present now — no pre-image stored),
// changedMask (present at tick start with a different value — pre-image
// stored), and removedMask (present at tick start, absent now — pre-image
// stored). Values are stored iff changedMask|removedMask is set;
// createdMask slots hold no value.
type RollbackChunk[T any] struct {
	createdMask uint64
	changedMask uint64
	removedMask uint64
	values      [bitops.Fanout]T
}

// anyBit reports whether this chunk has any mask bit set at all, i.e.
// whether it "exists" in the sense of spec.md §3.3's drop policy.
func (rc *RollbackChunk[T]) anyBit() bool {
	return rc.createdMask|rc.changedMask|rc.removedMask != 0
}

// bitsAt returns the (created, changed, removed) triple at slot i.
func (rc *RollbackChunk[T]) bitsAt(i int) (created, changed, removed bool) {
	return bitops.HasBit(rc.createdMask, i), bitops.HasBit(rc.changedMask, i), bitops.HasBit(rc.removedMask, i)
}

// reset clears every mask and is called (lazily, by the arena) when a
// chunk slot is reused from the free pool. It deliberately leaves the
// values array untouched: stale entries are never observed because every
// read is gated by a mask bit, and a bit is only set alongside the write
// that populates the corresponding value — zeroing 64 slots up front would
// make reset O(slots) instead of the O(1) the design calls for.
func (rc *RollbackChunk[T]) reset() {
	rc.createdMask = 0
	rc.changedMask = 0
	rc.removedMask = 0
}
