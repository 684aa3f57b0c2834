// Package rollback implements the shadow tree that captures the minimum
// information needed to undo one tick, plus the bounded history ring and
// free-list pool that recycle rollback tree instances across ticks.
package rollback

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/sparsecs/ecsdb/ecserr"
	"github.com/sparsecs/ecsdb/ecslog"
	"github.com/sparsecs/ecsdb/internal/bitops"
	"github.com/sparsecs/ecsdb/store"
)

// Controller is the rollback journal for one component store: it receives
// store.ChangeSink events, owns the current (in-progress) rollback tree,
// and drives commit_tick/rollback as spec.md §4.2 describes.
//
// The bounded history ring (capacity 64) is backed by
// hashicorp/golang-lru/v2's simplelru.LRU keyed by tick number: Add is
// only ever called in increasing-tick order, Get is never called and Peek
// does not update recency, so eviction order degenerates to strict
// insertion order — exactly the FIFO-with-recycle the design calls for —
// and the OnEvict callback is where a snapshot leaving the ring (evicted
// as the oldest, or removed by Rollback) is returned to the free pool.
type Controller[T any] struct {
	mu sync.Mutex

	storage *store.Storage[T]

	current  *RollbackStorage[T]
	history  *simplelru.LRU[uint64, *RollbackStorage[T]]
	order    []uint64 // ticks currently retained, oldest first
	freeList []*RollbackStorage[T]

	capacity int
	log      *ecslog.Logger
}

// New constructs a Controller bound to storage, with the given history
// capacity (clamped to [1, ecsconfig.HistoryCapacity] by the caller — see
// ecsconfig.Config.Rollback.HistoryDepth).
func New[T any](storage *store.Storage[T], historyCapacity int) *Controller[T] {
	c := &Controller[T]{
		storage:  storage,
		capacity: historyCapacity,
		log:      ecslog.Root.With("component", "rollback"),
	}
	c.history, _ = simplelru.NewLRU[uint64, *RollbackStorage[T]](historyCapacity, c.onEvict)
	c.current = c.acquire()
	c.current.savedGeneration = storage.Generation()
	storage.AttachSink(c)
	return c
}

func (c *Controller[T]) onEvict(tick uint64, snap *RollbackStorage[T]) {
	if len(c.order) > 0 && c.order[0] == tick {
		c.order = c.order[1:]
	}
	c.release(snap)
}

func (c *Controller[T]) acquire() *RollbackStorage[T] {
	if n := len(c.freeList); n > 0 {
		rs := c.freeList[n-1]
		c.freeList = c.freeList[:n-1]
		return rs
	}
	return newRollbackStorage[T]()
}

func (c *Controller[T]) release(rs *RollbackStorage[T]) {
	rs.reset()
	c.freeList = append(c.freeList, rs)
}

// --- store.ChangeSink[T] ---------------------------------------------

// RecordCreate handles the "create" event: the slot was absent (by
// rollback bookkeeping) and is present now.
func (c *Controller[T]) RecordCreate(key int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pi, ci, si := split(key)
	page := c.current.ensurePage(pi)
	chunk := c.current.ensureChunk(page, ci)

	created, changed, removed := chunk.bitsAt(si)
	switch {
	case !created && !changed && !removed:
		// (0,0,0) -> (1,0,0), no pre-image.
		chunk.createdMask = bitops.SetBit(chunk.createdMask, si)
	case !created && changed && !removed:
		// (0,1,0) removed-then-added is handled by RecordRemove/RecordCreate
		// ordering below; reaching (0,1,0) here would mean create was
		// called on a slot the live store already reports present, which
		// Storage.Set never does.
		panic("rollback: RecordCreate on a slot already marked changed")
	case !created && !changed && removed:
		// (0,0,1) -> (0,1,0): keep the stored tick-start pre-image, move
		// it from "removed" to "changed" bookkeeping.
		chunk.removedMask = bitops.ClearBit(chunk.removedMask, si)
		chunk.changedMask = bitops.SetBit(chunk.changedMask, si)
	default:
		panic("rollback: RecordCreate on a slot with inconsistent rollback bits")
	}
	c.current.refreshPath(pi, ci)
}

// RecordOverwrite handles the "overwrite" event: the slot was present and
// is being written with a new value; old is the value it held immediately
// before this write.
func (c *Controller[T]) RecordOverwrite(key int, old T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pi, ci, si := split(key)
	page := c.current.ensurePage(pi)
	chunk := c.current.ensureChunk(page, ci)

	created, changed, removed := chunk.bitsAt(si)
	switch {
	case !created && !changed && !removed:
		// (0,0,0) -> (0,1,0): old is the tick-start value, store it.
		chunk.changedMask = bitops.SetBit(chunk.changedMask, si)
		chunk.values[si] = old
	case created && !changed && !removed:
		// (1,0,0) -> (1,0,0): still "created" this tick, nothing to store.
	case !created && changed && !removed:
		// (0,1,0) -> (0,1,0): keep the original pre-image, drop old.
	case !created && !changed && removed:
		panic("rollback: RecordOverwrite on a slot marked removed")
	default:
		panic("rollback: RecordOverwrite on a slot with inconsistent rollback bits")
	}
	c.current.refreshPath(pi, ci)
}

// RecordRemove handles the "remove" event: the slot was present and is now
// absent; old is the value it held immediately before removal.
func (c *Controller[T]) RecordRemove(key int, old T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pi, ci, si := split(key)
	page := c.current.ensurePage(pi)
	chunk := c.current.ensureChunk(page, ci)

	created, changed, removed := chunk.bitsAt(si)
	switch {
	case !created && !changed && !removed:
		// (0,0,0) -> (0,0,1): old is the tick-start value.
		chunk.removedMask = bitops.SetBit(chunk.removedMask, si)
		chunk.values[si] = old
	case created && !changed && !removed:
		// (1,0,0) -> (0,0,0): add->remove in the same tick cancels out.
		chunk.createdMask = bitops.ClearBit(chunk.createdMask, si)
	case !created && changed && !removed:
		// (0,1,0) -> (0,0,1): keep the same stored pre-image.
		chunk.changedMask = bitops.ClearBit(chunk.changedMask, si)
		chunk.removedMask = bitops.SetBit(chunk.removedMask, si)
	default:
		panic("rollback: RecordRemove on a slot with inconsistent rollback bits")
	}
	c.current.refreshPath(pi, ci)
}

func split(key int) (pi, ci, si int) {
	return (key >> 12) & (bitops.Fanout - 1), (key >> 6) & (bitops.Fanout - 1), key & (bitops.Fanout - 1)
}

// --- tick boundary -----------------------------------------------------

// CommitTick pushes the current rollback tree onto the bounded history
// ring (evicting and recycling the oldest snapshot if at capacity), then
// draws a fresh tree from the free pool (or allocates one), stamping its
// saved generation with the store's live generation.
func (c *Controller[T]) CommitTick(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	finishing := c.current
	finishing.tick = tick
	c.history.Add(tick, finishing)
	c.order = append(c.order, tick)

	fresh := c.acquire()
	fresh.savedGeneration = c.storage.Generation()
	c.current = fresh
}

// Rollback pops the most recent n ticks from the history ring in LIFO
// order and undoes each in turn, restoring the live store's generation to
// the oldest of the popped snapshots' saved generation.
func (c *Controller[T]) Rollback(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n < 0 || n > len(c.order) {
		return fmt.Errorf("%w: requested %d, have %d", ecserr.ErrSnapshotUnavailable, n, len(c.order))
	}

	// The restoring writes are not journaled: the sink is c itself, whose
	// Record* methods would block on c.mu, held here.
	c.storage.AttachSink(nil)
	defer c.storage.AttachSink(c)

	for i := 0; i < n; i++ {
		tick := c.order[len(c.order)-1]
		c.order = c.order[:len(c.order)-1]

		snap, ok := c.history.Peek(tick)
		if !ok {
			return fmt.Errorf("%w: missing snapshot for tick %d", ecserr.ErrSnapshotUnavailable, tick)
		}
		c.applySnapshot(snap)
		// Remove fires onEvict, which returns snap to the free pool.
		c.history.Remove(tick)
	}
	return nil
}

// applySnapshot undoes one tick's diff against the live store, per
// spec.md §4.2's rollback algorithm.
func (c *Controller[T]) applySnapshot(snap *RollbackStorage[T]) {
	bitops.Iterate(snap.changedMask, func(pi int) {
		page := snap.pages[pi]
		bitops.Iterate(page.changedMask, func(ci int) {
			chunk := page.chunks[ci]
			bitops.Iterate(chunk.createdMask, func(si int) {
				c.storage.RemoveUnchecked(pi<<12 | ci<<6 | si)
			})
			bitops.Iterate(chunk.changedMask, func(si int) {
				c.storage.SetUnchecked(pi<<12|ci<<6|si, chunk.values[si])
			})
			bitops.Iterate(chunk.removedMask, func(si int) {
				c.storage.SetUnchecked(pi<<12|ci<<6|si, chunk.values[si])
			})
		})
	})
	c.storage.SetGeneration(snap.savedGeneration)
}

// --- introspection -------------------------------------------------

// VerifyWasCreated reports whether key was created (no prior presence at
// tick start) in the in-progress tick, navigating storage/page by
// changedMask and inspecting only the chunk-level masks — the source of
// truth for what kind of change occurred.
func (c *Controller[T]) VerifyWasCreated(key int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := c.lookupChunk(key)
	return chunk != nil && bitops.HasBit(chunk.createdMask, key&(bitops.Fanout-1))
}

// VerifyWasChanged reports whether key was modified (present at tick
// start with a different value) in the in-progress tick.
func (c *Controller[T]) VerifyWasChanged(key int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := c.lookupChunk(key)
	return chunk != nil && bitops.HasBit(chunk.changedMask, key&(bitops.Fanout-1))
}

// VerifyWasRemoved reports whether key was removed (present at tick start,
// absent now) in the in-progress tick.
func (c *Controller[T]) VerifyWasRemoved(key int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := c.lookupChunk(key)
	return chunk != nil && bitops.HasBit(chunk.removedMask, key&(bitops.Fanout-1))
}

func (c *Controller[T]) lookupChunk(key int) *RollbackChunk[T] {
	pi, ci, _ := split(key)
	if !bitops.HasBit(c.current.changedMask, pi) {
		return nil
	}
	page := c.current.pages[pi]
	if page == nil || !bitops.HasBit(page.changedMask, ci) {
		return nil
	}
	return page.chunks[ci]
}

// History returns the number of ticks currently retained.
func (c *Controller[T]) History() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
