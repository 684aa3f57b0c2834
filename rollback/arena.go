package rollback

// bumpArena carves RollbackPage/RollbackChunk instances for one rollback
// tree out of two growable backing slices, handing out pointers with a
// cursor bump rather than one allocation per node. Returning a tree to the
// free pool resets both cursors to zero — O(1) regardless of how many
// pages/chunks the tick touched — and the next tree to draw from this
// arena lazily clears each node's masks the moment it is reused.
type bumpArena[T any] struct {
	pages       []RollbackPage[T]
	chunks      []RollbackChunk[T]
	pageCursor  int
	chunkCursor int
}

func (a *bumpArena[T]) allocPage() *RollbackPage[T] {
	if a.pageCursor == len(a.pages) {
		a.pages = append(a.pages, RollbackPage[T]{})
	}
	p := &a.pages[a.pageCursor]
	p.reset()
	a.pageCursor++
	return p
}

func (a *bumpArena[T]) allocChunk() *RollbackChunk[T] {
	if a.chunkCursor == len(a.chunks) {
		a.chunks = append(a.chunks, RollbackChunk[T]{})
	}
	c := &a.chunks[a.chunkCursor]
	c.reset()
	a.chunkCursor++
	return c
}

// reset bumps both cursors back to zero without touching the backing
// slices, so already-allocated capacity is reused on the next tick.
func (a *bumpArena[T]) reset() {
	a.pageCursor = 0
	a.chunkCursor = 0
}
