package store

import "github.com/sparsecs/ecsdb/ecserr"

// WriterView is the chunk-scoped handle a system holds over a single
// component type for the duration of a wavefront. It supports indexed
// read, indexed write (which records a pre-image with the rollback sink
// and sets the chunk's changed mask) and a presence query; it never
// alters presence_mask or fullness_mask, and — by design — never touches
// page or storage level masks. Upward propagation is the scheduler's
// post-wavefront responsibility (spec.md §5, §9 open question b).
type WriterView[T any] struct {
	storage *Storage[T]
	page    *Page[T]
	chunk   *Chunk[T]
	pageIdx int
	chunkIdx int
}

// Chunk returns a WriterView addressing the chunk that owns key, ensuring
// the chunk (and its owning page) are allocated (substituting the shared
// sentinels if necessary). This is the entry point a system uses before
// issuing indexed reads/writes within its declared writes/reads set.
func (s *Storage[T]) Chunk(key int) *WriterView[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	pi, ci := pageIndex(key), chunkIndex(key)
	if s.pages[pi] == s.defaultPage {
		s.pages[pi] = newPage[T](s.defaultChunk)
	}
	page := s.pages[pi]
	chunk := page.ensureOwnedChild(ci, s.defaultChunk)

	return &WriterView[T]{storage: s, page: page, chunk: chunk, pageIdx: pi, chunkIdx: ci}
}

// Get reads slot i (i is the in-chunk index, key&63) of the addressed
// chunk.
func (v *WriterView[T]) Get(i int) (T, bool) {
	return v.chunk.get(i)
}

// Present reports whether slot i holds a value.
func (v *WriterView[T]) Present(i int) bool {
	return v.chunk.present(i)
}

// Set overwrites slot i's value. It rejects indices whose presence bit is
// not set — the writer view never creates or removes slots, only mutates
// existing ones; creation/removal goes through Storage.Set/Remove.
func (v *WriterView[T]) Set(i int, val T) error {
	if !v.chunk.present(i) {
		return ecserr.ErrIndexNotPresent
	}
	old := v.chunk.slots[i]
	v.chunk.slots[i] = val
	v.chunk.changedMask = v.chunk.changedMask | (1 << uint(i))

	if v.storage.sink != nil {
		key := v.pageIdx<<12 | v.chunkIdx<<6 | i
		v.storage.sink.RecordOverwrite(key, old)
	}
	return nil
}
