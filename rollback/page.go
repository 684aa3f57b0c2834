package rollback

import "github.com/sparsecs/ecsdb/internal/bitops"

// RollbackPage carries only changedMask: "some descendant has any of the
// three per-slot bits set". A zero bit guarantees the corresponding
// RollbackChunk does not logically exist, even if its pointer slot still
// holds an arena-allocated (but masked-out) object.
type RollbackPage[T any] struct {
	changedMask uint64
	chunks      [bitops.Fanout]*RollbackChunk[T]
}

func (rp *RollbackPage[T]) reset() {
	rp.changedMask = 0
	for i := range rp.chunks {
		rp.chunks[i] = nil
	}
}
