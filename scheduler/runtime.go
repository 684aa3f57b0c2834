package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sparsecs/ecsdb/ecsconfig"
	"github.com/sparsecs/ecsdb/ecslog"
)

// Scheduler owns the registered systems and component bindings, the
// computed wavefronts, and the tick counter. Build must run once, after
// every System and component is registered and before the first RunTick.
type Scheduler struct {
	cfg *ecsconfig.Config
	log *ecslog.Logger

	systems    []System
	components []componentBinding

	wavefronts [][]int
	built      bool

	tick uint64
}

// New constructs a Scheduler. A nil cfg uses ecsconfig.Default().
func New(cfg *ecsconfig.Config) *Scheduler {
	if cfg == nil {
		cfg = ecsconfig.Default()
	}
	return &Scheduler{
		cfg: cfg,
		log: ecslog.Root.With("component", "scheduler"),
	}
}

// Register adds a system. Order of registration is the tie-break used by
// hazard edges and by the release-build cycle fallback.
func (s *Scheduler) Register(sys System) {
	s.systems = append(s.systems, sys)
	s.built = false
}

// Build constructs the dependency graph and levelizes it into wavefronts.
// It must be called once after all Register/RegisterComponent calls and
// before the first RunTick; RunTick calls it automatically if it has not
// run yet.
func (s *Scheduler) Build() error {
	g, err := buildGraph(s.systems)
	if err != nil {
		return err
	}
	levels, err := wavefronts(s.systems, g, s.cfg.Scheduler.Debug, s.log)
	if err != nil {
		return err
	}
	s.wavefronts = levels
	s.built = true
	return nil
}

func (s *Scheduler) workers() int {
	if s.cfg.Scheduler.Workers > 0 {
		return s.cfg.Scheduler.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// RunTick executes one full tick: each wavefront's systems run
// concurrently (bounded by ecsconfig.Scheduler.Workers), a serial
// propagate pass ORs chunk-level changed bits upward for every component
// the wavefront wrote, then cleanup (per-component Cleanup closures,
// temporary component drops, ClearChangedMasks) and commit
// (rollback.Controller.CommitTick for every registered component) close
// out the tick.
func (s *Scheduler) RunTick(ctx context.Context) error {
	if !s.built {
		if err := s.Build(); err != nil {
			return err
		}
	}

	for _, level := range s.wavefronts {
		if err := s.runWavefront(ctx, level); err != nil {
			return fmt.Errorf("scheduler: wavefront failed: %w", err)
		}
		s.propagate(level)
	}

	s.cleanup()
	s.tick++
	s.commit()
	s.debugVerify()
	return nil
}

// debugVerify walks every registered component's invariants and panics on
// the first violation, when ecsconfig.Scheduler.Debug is set. This is the
// debug-build counterpart of VerifyInvariants' error return, matching
// spec.md §7's debug/release split for mask/store inconsistency: in a
// running system such inconsistency is never raised as an in-band error,
// but a debug build still wants to fail loudly at the tick boundary.
func (s *Scheduler) debugVerify() {
	if !s.cfg.Scheduler.Debug {
		return
	}
	for _, c := range s.components {
		if err := c.handle.VerifyInvariants(); err != nil {
			panic(fmt.Sprintf("scheduler: invariant violation in component %s: %v", c.name, err))
		}
	}
}

func (s *Scheduler) runWavefront(ctx context.Context, level []int) error {
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(s.workers())
	for _, idx := range level {
		sys := s.systems[idx]
		grp.Go(func() error {
			return sys.Run(gctx)
		})
	}
	return grp.Wait()
}

// propagate ORs chunk-level changed bits up to page/storage level for
// every component any system in level declared as a write, per Open
// Question decision (b): upward propagation belongs to the scheduler, not
// the chunk-scoped writer view.
func (s *Scheduler) propagate(level []int) {
	written := make(map[reflect.Type]bool)
	for _, idx := range level {
		for _, t := range inheritedWrites(s.systems[idx]) {
			written[t] = true
		}
	}
	for _, c := range s.components {
		if written[c.typ] {
			c.handle.PropagateChanged()
		}
	}
}

// cleanup runs once per tick: per-component Cleanup closures (removing
// entities marked for destruction), wholesale drops of temporary
// components, then ClearChangedMasks for everything.
func (s *Scheduler) cleanup() {
	for _, c := range s.components {
		if c.cleanup != nil && !c.temporary {
			c.cleanup()
		}
	}
	for _, c := range s.components {
		if c.temporary && c.dropAll != nil {
			c.dropAll()
		}
	}
	for _, c := range s.components {
		c.handle.ClearChangedMasks()
	}
}

// commit pushes every registered component's rollback controller onto its
// history ring for the tick that just finished.
func (s *Scheduler) commit() {
	for _, c := range s.components {
		c.commit(s.tick)
	}
}

// Tick returns the number of ticks executed so far.
func (s *Scheduler) Tick() uint64 {
	return s.tick
}
