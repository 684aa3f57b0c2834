package store

import "github.com/sparsecs/ecsdb/internal/bitops"

// Page holds up to 64 owning references to child chunks. Children that
// have never been allocated share the Storage's read-only default chunk
// sentinel, so an empty page costs no chunk allocations; a chunk emptied
// by Remove stays owned and is only marked non-present.
type Page[T any] struct {
	presenceMask uint64
	fullnessMask uint64
	changedMask  uint64
	count        int
	children     [bitops.Fanout]*Chunk[T]
}

// newPage allocates an owned page whose children all start out pointing at
// the shared default chunk sentinel.
func newPage[T any](defaultChunk *Chunk[T]) *Page[T] {
	p := &Page[T]{}
	for i := range p.children {
		p.children[i] = defaultChunk
	}
	return p
}

// childOwned reports whether child i differs from the shared sentinel.
func (p *Page[T]) childOwned(i int, defaultChunk *Chunk[T]) bool {
	return p.children[i] != defaultChunk
}

// ensureOwnedChild substitutes a freshly allocated chunk for child i if it
// currently points at the sentinel, and returns the (now certainly owned)
// chunk.
func (p *Page[T]) ensureOwnedChild(i int, defaultChunk *Chunk[T]) *Chunk[T] {
	if p.children[i] == defaultChunk {
		p.children[i] = newChunk[T]()
	}
	return p.children[i]
}

// refreshChild updates this page's presence/fullness/count bookkeeping for
// child i after a mutation to that chunk. It never touches changedMask;
// that is the caller's responsibility (immediate for Storage.Set/Remove,
// deferred to the post-wavefront pass for writer-view mutations).
func (p *Page[T]) refreshChild(i int, chunk *Chunk[T]) {
	wasPresent := bitops.HasBit(p.presenceMask, i)
	nowPresent := chunk.count() > 0
	switch {
	case nowPresent && !wasPresent:
		p.presenceMask = bitops.SetBit(p.presenceMask, i)
	case !nowPresent && wasPresent:
		p.presenceMask = bitops.ClearBit(p.presenceMask, i)
	}
	if chunk.full() {
		p.fullnessMask = bitops.SetBit(p.fullnessMask, i)
	} else {
		p.fullnessMask = bitops.ClearBit(p.fullnessMask, i)
	}
	p.count = p.recount()
}

// recount sums the present counts of every present child chunk.
func (p *Page[T]) recount() int {
	total := 0
	bitops.Iterate(p.presenceMask, func(i int) {
		total += p.children[i].count()
	})
	return total
}

// markChanged sets the changed bit for child i.
func (p *Page[T]) markChanged(i int) {
	p.changedMask = bitops.SetBit(p.changedMask, i)
}

// clearChangedBit clears the changed bit for child i.
func (p *Page[T]) clearChangedBit(i int) {
	p.changedMask = bitops.ClearBit(p.changedMask, i)
}
