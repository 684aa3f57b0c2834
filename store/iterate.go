package store

import "github.com/sparsecs/ecsdb/internal/bitops"

// Iterator walks a lazy, finite sequence of (key, value) pairs, mirroring
// the teacher's diffLayer Next()/Key() iterator shape. Only the
// storage-level mask is copied at construction time; a page's chunk mask
// and a chunk's slot mask are copied when the walk first reaches that page
// or chunk, and values are read when Next yields them. Mutations during
// iteration are allowed, but a key added under a page or chunk the walk
// has not reached yet is visited.
type Iterator[T any] interface {
	Next() bool
	Key() int
	Value() T
}

type treeIterator[T any] struct {
	storage *Storage[T]

	pageMask uint64 // remaining pages to visit (snapshot)
	pi       int
	chunkOk  bool
	chunkMask uint64 // remaining chunk-bits within the current page (snapshot)
	ci       int
	slotMask uint64 // remaining slot-bits within the current chunk (snapshot)

	key   int
	value T
	ok    bool

	selectMask func(page *Page[T]) uint64
	selectSlot func(chunk *Chunk[T]) uint64
}

func (it *treeIterator[T]) Next() bool {
	for {
		if it.slotMask != 0 {
			si, _ := bitops.NextSet(it.slotMask)
			it.slotMask = bitops.ClearBit(it.slotMask, si)
			page := it.storage.pages[it.pi]
			chunk := page.children[it.ci]
			it.key = it.pi<<12 | it.ci<<6 | si
			it.value = chunk.slots[si]
			it.ok = true
			return true
		}
		if it.chunkMask != 0 {
			ci, _ := bitops.NextSet(it.chunkMask)
			it.chunkMask = bitops.ClearBit(it.chunkMask, ci)
			it.ci = ci
			page := it.storage.pages[it.pi]
			chunk := page.children[ci]
			it.slotMask = it.selectSlot(chunk)
			continue
		}
		if it.pageMask != 0 {
			pi, _ := bitops.NextSet(it.pageMask)
			it.pageMask = bitops.ClearBit(it.pageMask, pi)
			it.pi = pi
			page := it.storage.pages[pi]
			it.chunkMask = it.selectMask(page)
			continue
		}
		it.ok = false
		return false
	}
}

func (it *treeIterator[T]) Key() int   { return it.key }
func (it *treeIterator[T]) Value() T   { return it.value }

// IterPresent returns an iterator over every present (key, value) pair.
func (s *Storage[T]) IterPresent() Iterator[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &treeIterator[T]{
		storage:  s,
		pageMask: s.presenceMask,
		selectMask: func(p *Page[T]) uint64 { return p.presenceMask },
		selectSlot: func(c *Chunk[T]) uint64 { return c.presenceMask },
	}
}

// IterChanged returns an iterator over every (key, value) pair whose slot
// changed since the last clear. Advisory: it is purely a hint for
// iteration and carries no correctness obligation for reads.
func (s *Storage[T]) IterChanged() Iterator[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &treeIterator[T]{
		storage:  s,
		pageMask: s.changedMask,
		selectMask: func(p *Page[T]) uint64 { return p.changedMask },
		selectSlot: func(c *Chunk[T]) uint64 { return c.changedMask },
	}
}
