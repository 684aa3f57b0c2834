package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRemoveRoundTrip(t *testing.T) {
	s := New[int]()

	ok, err := s.Set(5, 42)
	require.NoError(t, err)
	require.False(t, ok, "first write to a key reports no prior value")

	v, present, err := s.Get(5)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 42, v)
	require.Equal(t, 1, s.Count())

	ok, err = s.Set(5, 43)
	require.NoError(t, err)
	require.True(t, ok, "second write to the same key reports a prior value")

	removed, err := s.Remove(5)
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, 0, s.Count())

	_, present, err = s.Get(5)
	require.NoError(t, err)
	require.False(t, present)
}

func TestRemoveAbsentIsNotAnError(t *testing.T) {
	s := New[int]()
	removed, err := s.Remove(100)
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 0, s.Count())
}

func TestKeyOutOfRange(t *testing.T) {
	s := New[int]()
	_, _, err := s.Get(-1)
	require.Error(t, err)
	_, err = s.Set(MaxSlots, 1)
	require.Error(t, err)
	_, err = s.Remove(MaxSlots + 1)
	require.Error(t, err)
}

// TestFullChunkBoundary fills one whole chunk (64 contiguous slots) and
// checks the fullness mask propagates at chunk and page level, per
// invariants 2 and 4.
func TestFullChunkBoundary(t *testing.T) {
	s := New[int]()
	base := 3 << 6 // page 0, chunk 3
	for i := 0; i < 64; i++ {
		_, err := s.Set(base+i, i)
		require.NoError(t, err)
	}
	require.NoError(t, s.VerifyInvariants())
	require.Equal(t, 64, s.Count())

	// Only chunk 3 of page 0 is full; the page itself is not (its other 63
	// chunks are absent), so fullness propagates one level, not two.
	require.True(t, boolFromMask(s.pages[0].fullnessMask, 3))
	require.False(t, boolFromMask(s.fullnessMask, 0))

	removed, err := s.Remove(base)
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, s.VerifyInvariants())
	require.False(t, boolFromMask(s.pages[0].fullnessMask, 3))
}

func boolFromMask(mask uint64, bit int) bool {
	return mask&(1<<uint(bit)) != 0
}

func TestIterPresentVisitsEveryKey(t *testing.T) {
	s := New[string]()
	keys := []int{0, 1, 64, 65, 4096, 8192 + 63}
	for _, k := range keys {
		_, err := s.Set(k, "v")
		require.NoError(t, err)
	}

	seen := map[int]bool{}
	it := s.IterPresent()
	for it.Next() {
		seen[it.Key()] = true
	}
	require.Len(t, seen, len(keys))
	for _, k := range keys {
		require.True(t, seen[k])
	}
}

func TestWriterViewRejectsAbsentSlot(t *testing.T) {
	s := New[int]()
	_, err := s.Set(10, 1)
	require.NoError(t, err)

	view := s.Chunk(10)
	require.True(t, view.Present(10))
	require.NoError(t, view.Set(10, 2))
	v, ok := view.Get(10)
	require.True(t, ok)
	require.Equal(t, 2, v)

	require.Error(t, view.Set(11, 9), "writer view never creates slots")
}

func TestWriterViewDoesNotTouchPageOrStorageMasks(t *testing.T) {
	s := New[int]()
	_, err := s.Set(10, 1)
	require.NoError(t, err)
	s.ClearChangedMasks()
	require.Equal(t, uint64(0), s.changedMask)

	view := s.Chunk(10)
	require.NoError(t, view.Set(10, 2))

	require.Equal(t, uint64(0), s.changedMask, "storage-level changed mask is untouched by the writer view")
	require.Equal(t, uint64(0), s.pages[0].changedMask, "page-level changed mask is untouched by the writer view")

	s.PropagateChanged()
	require.NotEqual(t, uint64(0), s.changedMask, "propagation is the scheduler's job, invoked explicitly")
}

func TestVerifyInvariantsOnEmptyStore(t *testing.T) {
	s := New[int]()
	require.NoError(t, s.VerifyInvariants())
}
