package store

import (
	"fmt"

	"github.com/sparsecs/ecsdb/internal/bitops"
	"github.com/sparsecs/ecsdb/ecserr"
)

// VerifyInvariants walks the tree and checks invariants 1-6 of spec.md §3.2.
// It is used by tests and debug assertions, never by a running system: per
// spec.md §7, no error is ever raised from within a running system about
// mask/store inconsistency.
func (s *Storage[T]) VerifyInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Invariant 1 at storage level: fullness_mask &^ presence_mask == 0.
	if s.fullnessMask&^s.presenceMask != 0 {
		return fmt.Errorf("%w: storage fullness_mask has bits not in presence_mask", ecserr.ErrInvariantViolation)
	}

	computedCount := 0
	for pi := 0; pi < bitops.Fanout; pi++ {
		page := s.pages[pi]
		owned := page != s.defaultPage
		present := bitops.HasBit(s.presenceMask, pi)
		if !owned && present {
			return fmt.Errorf("%w: page %d marked present but is the default sentinel", ecserr.ErrInvariantViolation, pi)
		}
		if !owned {
			continue
		}

		// Invariant 1 at page level.
		if page.fullnessMask&^page.presenceMask != 0 {
			return fmt.Errorf("%w: page %d fullness_mask has bits not in presence_mask", ecserr.ErrInvariantViolation, pi)
		}

		pageComputedCount := 0
		for ci := 0; ci < bitops.Fanout; ci++ {
			chunk := page.children[ci]
			chunkOwned := chunk != s.defaultChunk
			chunkPresent := bitops.HasBit(page.presenceMask, ci)
			if !chunkOwned && chunkPresent {
				return fmt.Errorf("%w: chunk %d/%d marked present but is the default sentinel", ecserr.ErrInvariantViolation, pi, ci)
			}
			if !chunkOwned {
				continue
			}

			// Invariant 2: Chunk.fullness_mask == Chunk.presence_mask.
			if chunk.fullnessMask != chunk.presenceMask {
				return fmt.Errorf("%w: chunk %d/%d fullness_mask != presence_mask", ecserr.ErrInvariantViolation, pi, ci)
			}

			cnt := chunk.count()
			pageComputedCount += cnt

			wantPresent := cnt > 0
			if wantPresent != chunkPresent {
				return fmt.Errorf("%w: page %d presence bit for chunk %d disagrees with chunk occupancy", ecserr.ErrInvariantViolation, pi, ci)
			}
			// Invariant 4: count-capacity implies fullness.
			if cnt == bitops.Fanout && chunk.fullnessMask != bitops.FullMask {
				return fmt.Errorf("%w: chunk %d/%d is full by count but fullness_mask isn't all-ones", ecserr.ErrInvariantViolation, pi, ci)
			}
			wantFull := cnt == bitops.Fanout
			gotFull := bitops.HasBit(page.fullnessMask, ci)
			if wantFull != gotFull {
				return fmt.Errorf("%w: page %d fullness bit for chunk %d disagrees with chunk occupancy", ecserr.ErrInvariantViolation, pi, ci)
			}
		}

		// Invariant 3: Page.count == popcount-derived sum over children.
		if page.count != pageComputedCount {
			return fmt.Errorf("%w: page %d count %d != computed %d", ecserr.ErrInvariantViolation, pi, page.count, pageComputedCount)
		}
		if page.count == bitops.Fanout*bitops.Fanout && page.fullnessMask != bitops.FullMask {
			return fmt.Errorf("%w: page %d is full by count but fullness_mask isn't all-ones", ecserr.ErrInvariantViolation, pi)
		}
		computedCount += pageComputedCount
	}

	// Invariant 3: Storage.count == Σ Page.count.
	if s.count != computedCount {
		return fmt.Errorf("%w: storage count %d != computed %d", ecserr.ErrInvariantViolation, s.count, computedCount)
	}
	if s.count == MaxSlots && s.fullnessMask != bitops.FullMask {
		return fmt.Errorf("%w: storage is full by count but fullness_mask isn't all-ones", ecserr.ErrInvariantViolation)
	}

	return nil
}
