// Package scheduler builds a dependency graph from systems' declared
// reads/writes, explicit ordering, and group inheritance, then emits
// parallel wavefronts and drives tick execution.
package scheduler

import (
	"context"
	"reflect"
)

// System is one unit of per-tick work. Reads/Writes declare the component
// types it touches (matched against the type each RegisterComponent call
// binds);
// Before/After declare explicit ordering against other systems' concrete
// Go types (reflect.TypeOf(otherSystem)); Group optionally nests the
// system under inherited before/after/reads/writes.
type System interface {
	Name() string
	Reads() []reflect.Type
	Writes() []reflect.Type
	Before() []reflect.Type
	After() []reflect.Type
	Group() *Group
	Run(ctx context.Context) error
}

// Group is an optional, nestable namespace for systems. A group's
// Before/After/Reads/Writes are inherited by every system (and nested
// group) beneath it, per spec.md §4.3's "group inheritance" rule.
type Group struct {
	Name   string
	Parent *Group
	Before []reflect.Type
	After  []reflect.Type
	Reads  []reflect.Type
	Writes []reflect.Type
}

// chain returns g and every ancestor, nearest first.
func (g *Group) chain() []*Group {
	var chain []*Group
	for cur := g; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	return chain
}

// inheritedBefore/inheritedAfter/inheritedReads/inheritedWrites collect a
// system's own declarations plus everything inherited from its group
// chain.
func inheritedBefore(sys System) []reflect.Type {
	out := append([]reflect.Type(nil), sys.Before()...)
	if g := sys.Group(); g != nil {
		for _, anc := range g.chain() {
			out = append(out, anc.Before...)
		}
	}
	return out
}

func inheritedAfter(sys System) []reflect.Type {
	out := append([]reflect.Type(nil), sys.After()...)
	if g := sys.Group(); g != nil {
		for _, anc := range g.chain() {
			out = append(out, anc.After...)
		}
	}
	return out
}

func inheritedReads(sys System) []reflect.Type {
	out := append([]reflect.Type(nil), sys.Reads()...)
	if g := sys.Group(); g != nil {
		for _, anc := range g.chain() {
			out = append(out, anc.Reads...)
		}
	}
	return out
}

func inheritedWrites(sys System) []reflect.Type {
	out := append([]reflect.Type(nil), sys.Writes()...)
	if g := sys.Group(); g != nil {
		for _, anc := range g.chain() {
			out = append(out, anc.Writes...)
		}
	}
	return out
}
