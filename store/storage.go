// Package store implements the hierarchical sparse component store: a
// three-level, 64-way bitmask tree (Storage / Page / Chunk) carrying
// presence, fullness and changed masks, backed by uninitialised slot
// arrays so empty branches cost no allocation.
package store

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sparsecs/ecsdb/internal/bitops"
	"github.com/sparsecs/ecsdb/ecserr"
)

// MaxSlots is the exclusive upper bound on keys: 64*64*64.
const MaxSlots = bitops.Fanout * bitops.Fanout * bitops.Fanout

func pageIndex(key int) int  { return (key >> 12) & (bitops.Fanout - 1) }
func chunkIndex(key int) int { return (key >> 6) & (bitops.Fanout - 1) }
func slotIndex(key int) int  { return key & (bitops.Fanout - 1) }

// ChangeSink receives the events Set/Remove produce so the rollback journal
// can retain pre-images. Storage holds at most one sink; a nil sink means
// mutations are not journaled (used by tests that don't exercise rollback).
type ChangeSink[T any] interface {
	RecordCreate(key int)
	RecordOverwrite(key int, old T)
	RecordRemove(key int, old T)
}

// Storage is the root of the tree: up to 64 pages, plus the shared
// read-only default page/chunk sentinels described in spec.md §3.2. Per
// SPEC_FULL.md's sentinel-scope decision, the sentinels are singletons of
// this Storage instance rather than a true package-global, since Go
// generics have no mechanism for a global singleton parameterized over an
// arbitrary caller-supplied T.
type Storage[T any] struct {
	mu sync.RWMutex

	presenceMask uint64
	fullnessMask uint64
	changedMask  uint64
	count        int

	pages        [bitops.Fanout]*Page[T]
	defaultPage  *Page[T]
	defaultChunk *Chunk[T]

	generation uint64
	sink       ChangeSink[T]
}

// New constructs an empty Storage[T] with its own default sentinels.
func New[T any]() *Storage[T] {
	dc := &Chunk[T]{}
	dp := newPage[T](dc)
	s := &Storage[T]{defaultPage: dp, defaultChunk: dc}
	for i := range s.pages {
		s.pages[i] = dp
	}
	return s
}

// AttachSink installs the rollback journal sink. It is not safe to call
// concurrently with mutations.
func (s *Storage[T]) AttachSink(sink ChangeSink[T]) {
	s.sink = sink
}

// Generation returns the store's generation counter. Its meaning to
// external entity identities is out of scope for this core (spec.md §9,
// open question a); the store only carries it for the rollback controller
// to save and restore.
func (s *Storage[T]) Generation() uint64 { return s.generation }

// SetGeneration overwrites the generation counter, used by the rollback
// controller to restore the pre-tick value on rollback. Nothing in this
// module bumps it; the scheduler does not call it.
func (s *Storage[T]) SetGeneration(g uint64) { s.generation = g }

func checkKey(key int) error {
	if key < 0 || key >= MaxSlots {
		return fmt.Errorf("%w: %d", ecserr.ErrKeyOutOfRange, key)
	}
	return nil
}

// Get resolves key, returning ok=false if absent. O(1).
func (s *Storage[T]) Get(key int) (T, bool, error) {
	if err := checkKey(key); err != nil {
		var zero T
		return zero, false, err
	}
	v, ok := s.GetUnchecked(key)
	return v, ok, nil
}

// GetUnchecked is the bounds-unchecked fast path behind Get; behavior for
// out-of-range key is undefined, per spec.md §7.
func (s *Storage[T]) GetUnchecked(key int) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pi := pageIndex(key)
	page := s.pages[pi]
	if page == s.defaultPage || !bitops.HasBit(s.presenceMask, pi) {
		var zero T
		return zero, false
	}
	ci := chunkIndex(key)
	chunk := page.children[ci]
	if chunk == s.defaultChunk || !bitops.HasBit(page.presenceMask, ci) {
		var zero T
		return zero, false
	}
	return chunk.get(slotIndex(key))
}

// Set writes v into key, returning whether a value was already present.
func (s *Storage[T]) Set(key int, v T) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	return s.SetUnchecked(key, v), nil
}

// SetUnchecked is the bounds-unchecked fast path.
func (s *Storage[T]) SetUnchecked(key int, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pi, ci, si := pageIndex(key), chunkIndex(key), slotIndex(key)

	if s.pages[pi] == s.defaultPage {
		s.pages[pi] = newPage[T](s.defaultChunk)
	}
	page := s.pages[pi]
	chunk := page.ensureOwnedChild(ci, s.defaultChunk)

	old, wasPresent := chunk.get(si)
	_, _ = chunk.setValue(si, v)

	if s.sink != nil {
		if wasPresent {
			s.sink.RecordOverwrite(key, old)
		} else {
			s.sink.RecordCreate(key)
		}
	}

	page.refreshChild(ci, chunk)
	page.markChanged(ci)
	s.refreshChildLocked(pi, page)
	s.markChangedLocked(pi)

	return wasPresent
}

// Remove clears key if present. Removing an absent key is not an error: it
// returns false and performs no side effect whatsoever, including no
// journal entry.
func (s *Storage[T]) Remove(key int) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	return s.RemoveUnchecked(key), nil
}

// RemoveUnchecked is the bounds-unchecked fast path.
func (s *Storage[T]) RemoveUnchecked(key int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pi := pageIndex(key)
	page := s.pages[pi]
	if page == s.defaultPage {
		return false
	}
	ci := chunkIndex(key)
	chunk := page.children[ci]
	if chunk == s.defaultChunk {
		return false
	}
	si := slotIndex(key)
	old, removed := chunk.removeValue(si)
	if !removed {
		return false
	}

	if s.sink != nil {
		s.sink.RecordRemove(key, old)
	}

	page.refreshChild(ci, chunk)
	page.markChanged(ci)
	s.refreshChildLocked(pi, page)
	s.markChangedLocked(pi)

	return true
}

// refreshChildLocked updates storage-level presence/fullness/count for
// page pi after one of its children changed. Caller holds s.mu.
func (s *Storage[T]) refreshChildLocked(pi int, page *Page[T]) {
	wasPresent := bitops.HasBit(s.presenceMask, pi)
	nowPresent := page.count > 0
	switch {
	case nowPresent && !wasPresent:
		s.presenceMask = bitops.SetBit(s.presenceMask, pi)
	case !nowPresent && wasPresent:
		s.presenceMask = bitops.ClearBit(s.presenceMask, pi)
	}
	if page.presenceMask == bitops.FullMask && page.fullnessMask == bitops.FullMask {
		s.fullnessMask = bitops.SetBit(s.fullnessMask, pi)
	} else {
		s.fullnessMask = bitops.ClearBit(s.fullnessMask, pi)
	}
	s.count = s.recount()
}

func (s *Storage[T]) recount() int {
	total := 0
	bitops.Iterate(s.presenceMask, func(pi int) {
		total += s.pages[pi].count
	})
	return total
}

func (s *Storage[T]) markChangedLocked(pi int) {
	s.changedMask = bitops.SetBit(s.changedMask, pi)
}

// Count returns the number of present slots across the whole tree.
func (s *Storage[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// ClearChangedMasks walks the set bits of the changed mask top-down,
// clearing as it descends, never visiting an unchanged subtree.
func (s *Storage[T]) ClearChangedMasks() {
	s.mu.Lock()
	defer s.mu.Unlock()

	bitops.Iterate(s.changedMask, func(pi int) {
		page := s.pages[pi]
		bitops.Iterate(page.changedMask, func(ci int) {
			page.children[ci].clearChanged()
		})
		page.changedMask = 0
	})
	s.changedMask = 0
}

// PropagateChanged ORs chunk-level changed bits up into page and storage
// level changed bits. It is idempotent and only descends into present
// pages/chunks, matching the design note that the upward pass is cheap
// because it walks only populated subtrees. Storage.Set/Remove already
// propagate immediately; this pass exists for the scheduler's
// post-wavefront step, which re-propagates changes made through the
// chunk-scoped writer view (which deliberately does not touch page/
// storage masks itself).
func (s *Storage[T]) PropagateChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	bitops.Iterate(s.presenceMask, func(pi int) {
		page := s.pages[pi]
		bitops.Iterate(page.presenceMask, func(ci int) {
			chunk := page.children[ci]
			if chunk.changedMask != 0 {
				page.markChanged(ci)
			}
		})
		if page.changedMask != 0 {
			s.markChangedLocked(pi)
		}
	})
}

// ApproxMemory returns a rough byte estimate of the live tree: populated
// slots times sizeof(T), plus per-node overhead for present pages/chunks.
// This mirrors the teacher's diffLayer.memory running estimate; it is
// diagnostics only, never load-bearing.
func (s *Storage[T]) ApproxMemory() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	slotSize := uint64(unsafe.Sizeof(zero))
	pageOverhead := uint64(unsafe.Sizeof(uint64(0))) * 3
	chunkOverhead := uint64(unsafe.Sizeof(uint64(0))) * 3

	var total uint64
	bitops.Iterate(s.presenceMask, func(pi int) {
		page := s.pages[pi]
		total += pageOverhead
		bitops.Iterate(page.presenceMask, func(ci int) {
			chunk := page.children[ci]
			total += chunkOverhead + uint64(chunk.count())*slotSize
		})
	})
	return total
}
