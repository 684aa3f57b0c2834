package rollback

import "github.com/sparsecs/ecsdb/internal/bitops"

// RollbackStorage is the root of one tick's shadow tree: the minimum
// information needed to undo that tick, plus the tick number and the
// generation counter value saved at tick start. Like RollbackPage, it
// carries only changedMask.
type RollbackStorage[T any] struct {
	tick            uint64
	savedGeneration uint64
	changedMask     uint64
	pages           [bitops.Fanout]*RollbackPage[T]
	arena           bumpArena[T]
}

// newRollbackStorage allocates a fresh, empty tree (used the first time
// the free-list pool is empty).
func newRollbackStorage[T any]() *RollbackStorage[T] {
	return &RollbackStorage[T]{}
}

// reset clears the tree's own masks and resets its arena, readying it for
// reuse. Per-node masks inside the arena are cleared lazily as each node
// is handed out again (bumpArena.allocPage/allocChunk), so this is O(1)
// in the number of pages/chunks touched last tick, not in slot count.
func (rs *RollbackStorage[T]) reset() {
	rs.changedMask = 0
	rs.tick = 0
	rs.savedGeneration = 0
	for i := range rs.pages {
		rs.pages[i] = nil
	}
	rs.arena.reset()
}

// ensurePage returns the (possibly freshly arena-allocated) page at pi,
// without touching changedMask — callers set that after the eventual
// per-slot mutation actually happens.
func (rs *RollbackStorage[T]) ensurePage(pi int) *RollbackPage[T] {
	if rs.pages[pi] == nil {
		rs.pages[pi] = rs.arena.allocPage()
	}
	return rs.pages[pi]
}

// ensureChunk returns the (possibly freshly arena-allocated) chunk at ci
// within page.
func (rs *RollbackStorage[T]) ensureChunk(page *RollbackPage[T], ci int) *RollbackChunk[T] {
	if page.chunks[ci] == nil {
		page.chunks[ci] = rs.arena.allocChunk()
	}
	return page.chunks[ci]
}

// refreshPath recomputes the changedMask bits at page and storage level
// for the (pi, ci) path after a per-slot mutation, implementing both the
// "some descendant changed" propagation and its converse: the add→remove
// cancellation case, where a chunk's bits all clear back to zero and the
// bit must clear all the way up if nothing else in the chunk/page still
// has a set bit.
func (rs *RollbackStorage[T]) refreshPath(pi, ci int) {
	page := rs.pages[pi]
	chunk := page.chunks[ci]
	if chunk != nil && chunk.anyBit() {
		page.changedMask = bitops.SetBit(page.changedMask, ci)
	} else {
		page.changedMask = bitops.ClearBit(page.changedMask, ci)
	}
	if page.changedMask != 0 {
		rs.changedMask = bitops.SetBit(rs.changedMask, pi)
	} else {
		rs.changedMask = bitops.ClearBit(rs.changedMask, pi)
	}
}
