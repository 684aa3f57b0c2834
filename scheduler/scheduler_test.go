package scheduler

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sparsecs/ecsdb/ecsconfig"
	"github.com/sparsecs/ecsdb/rollback"
	"github.com/sparsecs/ecsdb/store"
)

type Position struct{ X, Y int }
type Velocity struct{ DX, DY int }

// sys[Tag] is a minimal System used across the test file. The ordering
// rules match systems by their concrete Go type (spec.md §4.3 rule 1), so
// distinct test systems are distinct instantiations of this generic type —
// exactly as real code gets one named struct per system.
type sys[Tag any] struct {
	name   string
	reads  []reflect.Type
	writes []reflect.Type
	before []reflect.Type
	after  []reflect.Type
	group  *Group
	run    func(ctx context.Context) error
}

func (s *sys[Tag]) Name() string                    { return s.name }
func (s *sys[Tag]) Reads() []reflect.Type           { return s.reads }
func (s *sys[Tag]) Writes() []reflect.Type          { return s.writes }
func (s *sys[Tag]) Before() []reflect.Type          { return s.before }
func (s *sys[Tag]) After() []reflect.Type           { return s.after }
func (s *sys[Tag]) Group() *Group                   { return s.group }
func (s *sys[Tag]) Run(ctx context.Context) error {
	if s.run != nil {
		return s.run(ctx)
	}
	return nil
}

type (
	tagA           struct{}
	tagB           struct{}
	tagWriter1     struct{}
	tagWriter2     struct{}
	tagOne         struct{}
	tagTwo         struct{}
	tagMover       struct{}
	tagGravity     struct{}
	tagCleanup     struct{}
	tagMoverSystem struct{}
)

func TestWavefrontsRespectExplicitOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	b := &sys[tagB]{name: "b", run: record("b")}
	a := &sys[tagA]{name: "a", before: []reflect.Type{reflect.TypeOf(b)}, run: record("a")}

	s := New(ecsconfig.Default())
	s.Register(a)
	s.Register(b)

	require.NoError(t, s.Build())
	require.Len(t, s.wavefronts, 2)
	require.NoError(t, s.RunTick(context.Background()))
	require.Equal(t, []string{"a", "b"}, order)
}

func TestWavefrontsOrderDataHazardsByRegistration(t *testing.T) {
	posType := TypeOf[Position]()

	writer1 := &sys[tagWriter1]{name: "writer1", writes: []reflect.Type{posType}}
	writer2 := &sys[tagWriter2]{name: "writer2", writes: []reflect.Type{posType}}

	s := New(ecsconfig.Default())
	s.Register(writer1)
	s.Register(writer2)
	require.NoError(t, s.Build())

	require.Len(t, s.wavefronts, 2)
	require.Equal(t, []int{0}, s.wavefronts[0])
	require.Equal(t, []int{1}, s.wavefronts[1])
}

type tagW1 struct{}
type tagR1 struct{}
type tagW2 struct{}

// TestSchedulerOrderingWorkedExample reproduces spec.md §8 boundary
// scenario 5 literally: W1 writes C, R1 reads C, W2 writes C, registered
// in that order. Edges are W1→R1 (write/read hazard), R1→W2 (read/write
// hazard), and W1→W2 (write/write hazard, which also happens to be the
// registration-order tie-break). Expected wavefronts: {W1}, {R1}, {W2}.
func TestSchedulerOrderingWorkedExample(t *testing.T) {
	c := TypeOf[Position]()

	w1 := &sys[tagW1]{name: "W1", writes: []reflect.Type{c}}
	r1 := &sys[tagR1]{name: "R1", reads: []reflect.Type{c}}
	w2 := &sys[tagW2]{name: "W2", writes: []reflect.Type{c}}

	s := New(ecsconfig.Default())
	s.Register(w1)
	s.Register(r1)
	s.Register(w2)
	require.NoError(t, s.Build())

	require.Equal(t, [][]int{{0}, {1}, {2}}, s.wavefronts)
}

func TestIndependentSystemsShareAWavefront(t *testing.T) {
	s := New(ecsconfig.Default())
	s.Register(&sys[tagOne]{name: "one", writes: []reflect.Type{TypeOf[Position]()}})
	s.Register(&sys[tagTwo]{name: "two", writes: []reflect.Type{TypeOf[Velocity]()}})
	require.NoError(t, s.Build())
	require.Len(t, s.wavefronts, 1)
	require.Len(t, s.wavefronts[0], 2)
}

func TestCycleFailsBuildInDebug(t *testing.T) {
	b := &sys[tagB]{name: "b"}
	a := &sys[tagA]{name: "a"}
	a.before = []reflect.Type{reflect.TypeOf(b)}
	b.before = []reflect.Type{reflect.TypeOf(a)}

	cfg := ecsconfig.Default()
	cfg.Scheduler.Debug = true
	s := New(cfg)
	s.Register(a)
	s.Register(b)

	require.Error(t, s.Build())
}

func TestCycleFallsBackToRegistrationOrderInRelease(t *testing.T) {
	b := &sys[tagB]{name: "b"}
	a := &sys[tagA]{name: "a"}
	a.before = []reflect.Type{reflect.TypeOf(b)}
	b.before = []reflect.Type{reflect.TypeOf(a)}

	cfg := ecsconfig.Default()
	cfg.Scheduler.Debug = false
	s := New(cfg)
	s.Register(a)
	s.Register(b)

	require.NoError(t, s.Build())
	require.Len(t, s.wavefronts, 1)
	require.ElementsMatch(t, []int{0, 1}, s.wavefronts[0])
}

func TestGroupInheritanceAppliesBeforeToEveryMember(t *testing.T) {
	cleanup := &sys[tagCleanup]{name: "cleanup"}

	physics := &Group{Name: "physics", Before: []reflect.Type{reflect.TypeOf(cleanup)}}
	mover := &sys[tagMover]{name: "mover", group: physics}
	gravity := &sys[tagGravity]{name: "gravity", group: physics}

	s := New(ecsconfig.Default())
	s.Register(mover)
	s.Register(gravity)
	s.Register(cleanup)
	require.NoError(t, s.Build())

	require.Len(t, s.wavefronts, 2)
	require.ElementsMatch(t, []int{0, 1}, s.wavefronts[0])
	require.Equal(t, []int{2}, s.wavefronts[1])
}

// TestRunTickPropagatesAndCommits exercises the full pipeline: a system
// writes through a WriterView (which never touches page/storage masks),
// the scheduler propagates after the wavefront, cleanup clears changed
// masks, and every registered component's rollback controller commits.
func TestRunTickPropagatesAndCommits(t *testing.T) {
	positions := store.New[Position]()
	rb := rollback.New[Position](positions, 2)

	_, err := positions.Set(0, Position{})
	require.NoError(t, err)
	positions.ClearChangedMasks()
	rb.CommitTick(0)

	mover := &sys[tagMoverSystem]{
		name:   "mover",
		writes: []reflect.Type{TypeOf[Position]()},
		run: func(context.Context) error {
			view := positions.Chunk(0)
			return view.Set(0, Position{X: 1, Y: 1})
		},
	}

	s := New(ecsconfig.Default())
	RegisterComponent(s, positions, rb, ComponentOptions{})
	s.Register(mover)
	require.NoError(t, s.Build())

	require.NoError(t, s.RunTick(context.Background()))

	v, present, err := positions.Get(0)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, Position{X: 1, Y: 1}, v)
	require.Equal(t, 2, rb.History())

	require.NoError(t, s.RunTick(context.Background()))
	require.Equal(t, 2, rb.History(), "history ring caps at its configured depth")
}

func TestTemporaryComponentsAreDroppedAtCleanup(t *testing.T) {
	events := store.New[int]()
	rb := rollback.New[int](events, 4)

	_, err := events.Set(0, 1)
	require.NoError(t, err)

	s := New(ecsconfig.Default())
	RegisterComponent(s, events, rb, ComponentOptions{
		Temporary: true,
		DropAll: func() {
			it := events.IterPresent()
			var keys []int
			for it.Next() {
				keys = append(keys, it.Key())
			}
			for _, k := range keys {
				events.Remove(k)
			}
		},
	})
	require.NoError(t, s.Build())
	require.NoError(t, s.RunTick(context.Background()))

	require.Equal(t, 0, events.Count())
}
