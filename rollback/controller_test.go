package rollback

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sparsecs/ecsdb/store"
)

func TestRollbackUndoesCreate(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 8)

	_, err := s.Set(1, 100)
	require.NoError(t, err)
	require.True(t, c.VerifyWasCreated(1))

	c.CommitTick(0)
	require.NoError(t, c.Rollback(1))

	_, present, err := s.Get(1)
	require.NoError(t, err)
	require.False(t, present, "a created slot is removed on rollback")
}

func TestRollbackUndoesOverwrite(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 8)

	_, err := s.Set(1, 100)
	require.NoError(t, err)
	c.CommitTick(0)

	_, err = s.Set(1, 200)
	require.NoError(t, err)
	require.True(t, c.VerifyWasChanged(1))
	c.CommitTick(1)

	require.NoError(t, c.Rollback(1))
	v, present, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 100, v)
}

func TestRollbackUndoesRemove(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 8)

	_, err := s.Set(1, 100)
	require.NoError(t, err)
	c.CommitTick(0)

	_, err = s.Remove(1)
	require.NoError(t, err)
	require.True(t, c.VerifyWasRemoved(1))
	c.CommitTick(1)

	require.NoError(t, c.Rollback(1))
	v, present, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 100, v)
}

// TestCreateThenRemoveSameTickCancelsOut exercises the (1,0,0) -> (0,0,0)
// row of the rollback event table: a key created and removed within the
// same tick leaves no rollback bookkeeping behind at all.
func TestCreateThenRemoveSameTickCancelsOut(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 8)

	_, err := s.Set(1, 100)
	require.NoError(t, err)
	_, err = s.Remove(1)
	require.NoError(t, err)

	require.False(t, c.VerifyWasCreated(1))
	require.False(t, c.VerifyWasChanged(1))
	require.False(t, c.VerifyWasRemoved(1))

	c.CommitTick(0)
	require.NoError(t, c.Rollback(1))

	_, present, err := s.Get(1)
	require.NoError(t, err)
	require.False(t, present)
}

// TestRemoveThenAddSameTickKeepsOriginalPreImage exercises the (0,0,1) ->
// (0,1,0) row: removing then re-adding a key in the same tick must roll
// back to the value held at tick start, not the re-added value.
func TestRemoveThenAddSameTickKeepsOriginalPreImage(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 8)

	_, err := s.Set(1, 100)
	require.NoError(t, err)
	c.CommitTick(0)

	_, err = s.Remove(1)
	require.NoError(t, err)
	_, err = s.Set(1, 999)
	require.NoError(t, err)
	require.True(t, c.VerifyWasChanged(1))
	c.CommitTick(1)

	require.NoError(t, c.Rollback(1))
	v, present, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 100, v)
}

func TestHistoryRingEvictsOldestBeyondCapacity(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 2)

	for tick := uint64(0); tick < 5; tick++ {
		_, err := s.Set(int(tick), int(tick))
		require.NoError(t, err)
		c.CommitTick(tick)
	}
	require.Equal(t, 2, c.History())

	require.NoError(t, c.Rollback(2))
	require.Error(t, c.Rollback(1), "rolling back beyond retained history fails")
}

func TestMultiTickRollbackRestoresGeneration(t *testing.T) {
	s := store.New[int]()
	c := New[int](s, 8)

	s.SetGeneration(1)
	_, err := s.Set(1, 100)
	require.NoError(t, err)
	c.CommitTick(0)

	s.SetGeneration(2)
	_, err = s.Set(1, 200)
	require.NoError(t, err)
	c.CommitTick(1)

	require.NoError(t, c.Rollback(2))
	require.Equal(t, uint64(1), s.Generation())
}

func FuzzSetGetRemoveRollback(f *testing.F) {
	f.Add(1, 10, true)
	f.Add(4096, 0, false)
	f.Fuzz(func(t *testing.T, key, value int, remove bool) {
		if key < 0 {
			key = -key
		}
		key %= store.MaxSlots

		s := store.New[int]()
		c := New[int](s, 4)

		before, presentBefore, err := s.Get(key)
		require.NoError(t, err)

		if remove {
			_, err = s.Remove(key)
		} else {
			_, err = s.Set(key, value)
		}
		require.NoError(t, err)
		c.CommitTick(0)
		require.NoError(t, c.Rollback(1))

		after, presentAfter, err := s.Get(key)
		require.NoError(t, err)
		require.Equal(t, presentBefore, presentAfter)
		if presentBefore {
			require.Equal(t, before, after)
		}
		require.NoError(t, s.VerifyInvariants())
	})
}
