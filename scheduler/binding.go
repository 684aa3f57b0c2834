package scheduler

import (
	"reflect"

	"github.com/sparsecs/ecsdb/rollback"
	"github.com/sparsecs/ecsdb/store"
)

// componentBinding is the non-generic facet the scheduler needs of one
// registered component type: its store.Handle for mask propagation and
// invariant checks, a commit closure bound to its rollback.Controller,
// and its drop policy (temporary components are wiped wholesale at
// cleanup instead of surviving to the next tick, per spec.md §4's drop
// policy).
type componentBinding struct {
	typ       reflect.Type
	name      string
	handle    store.Handle
	commit    func(tick uint64)
	temporary bool
	dropAll   func()
	cleanup   func()
}

// ComponentOptions configures one RegisterComponent call.
type ComponentOptions struct {
	// Temporary marks a component whose entire store is dropped at the
	// end of every tick rather than surviving changed-mask clearing —
	// e.g. one-tick event/collision components.
	Temporary bool
	// DropAll is required when Temporary is true: it must remove every
	// present slot from the live store (callers typically close over
	// storage.Remove for each key yielded by storage.IterPresent()).
	DropAll func()
	// Cleanup runs once per tick, before ClearChangedMasks, for
	// non-temporary components — typically removing entities marked for
	// destruction this tick.
	Cleanup func()
}

// RegisterComponent binds one component type's store and rollback
// controller into s's tick pipeline. T is the component's own struct
// type; its reflect.Type is what systems name in Reads()/Writes().
func RegisterComponent[T any](s *Scheduler, storage *store.Storage[T], rb *rollback.Controller[T], opts ComponentOptions) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	s.components = append(s.components, componentBinding{
		typ:       typ,
		name:      typ.String(),
		handle:    storage,
		commit:    rb.CommitTick,
		temporary: opts.Temporary,
		dropAll:   opts.DropAll,
		cleanup:   opts.Cleanup,
	})
}

// TypeOf is a small convenience so callers can write
// scheduler.TypeOf[Position]() instead of reflect.TypeOf((*Position)(nil)).Elem()
// when declaring a System's Reads()/Writes().
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
