package scheduler

import (
	"fmt"
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// graph is the dependency graph over registered systems, indices into
// Scheduler.systems. edges[i] is the set of systems that must run after i.
type graph struct {
	edges    []mapset.Set[int]
	inDegree []int
}

// buildGraph derives edges from three sources, per spec.md §4.3:
//
//  1. Explicit ordering: for each type T in a system's (inherited) Before,
//     an edge is added to every other system whose concrete Go type is T;
//     symmetrically for After, reversed.
//  2. Group inheritance: a system's Before/After/Reads/Writes are unioned
//     with every ancestor group's, so ordering and hazards declared on a
//     group apply to every system nested under it.
//  3. Data hazards: if two distinct systems' (inherited) read/write sets
//     intersect and at least one side is a write, an edge is added in
//     registration order — the only tie-break the graph has when nothing
//     explicit orders the pair.
func buildGraph(systems []System) (*graph, error) {
	n := len(systems)
	g := &graph{
		edges:    make([]mapset.Set[int], n),
		inDegree: make([]int, n),
	}
	for i := range g.edges {
		g.edges[i] = mapset.NewThreadUnsafeSet[int]()
	}

	concreteType := make([]reflect.Type, n)
	reads := make([]mapset.Set[reflect.Type], n)
	writes := make([]mapset.Set[reflect.Type], n)
	for i, sys := range systems {
		concreteType[i] = reflect.TypeOf(sys)
		reads[i] = mapset.NewThreadUnsafeSet(inheritedReads(sys)...)
		writes[i] = mapset.NewThreadUnsafeSet(inheritedWrites(sys)...)
	}

	addEdge := func(i, j int) {
		if i == j {
			return
		}
		if g.edges[i].Add(j) {
			g.inDegree[j]++
		}
	}

	// Rule 1 & 2: explicit before/after, inheriting group declarations.
	for i, sys := range systems {
		for _, t := range inheritedBefore(sys) {
			for j := range systems {
				if concreteType[j] == t {
					addEdge(i, j)
				}
			}
		}
		for _, t := range inheritedAfter(sys) {
			for j := range systems {
				if concreteType[j] == t {
					addEdge(j, i)
				}
			}
		}
	}

	// Rule 3: data hazards, registration order breaks ties.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if hazard(reads[i], writes[i], reads[j], writes[j]) {
				addEdge(i, j)
			}
		}
	}

	return g, nil
}

// hazard reports whether system i and system j (i registered before j)
// have a data dependency: i writes something j reads or writes, or i reads
// something j writes.
func hazard(readsI, writesI, readsJ, writesJ mapset.Set[reflect.Type]) bool {
	if writesI.Intersect(writesJ).Cardinality() > 0 {
		return true
	}
	if writesI.Intersect(readsJ).Cardinality() > 0 {
		return true
	}
	if readsI.Intersect(writesJ).Cardinality() > 0 {
		return true
	}
	return false
}

// cycleMembers names the systems still outstanding once Kahn's algorithm
// stalls, for ErrCycle/diagnostic reporting.
func cycleMembers(systems []System, remaining []bool) []string {
	var names []string
	for i, sys := range systems {
		if remaining[i] {
			names = append(names, sys.Name())
		}
	}
	return names
}

func (g *graph) String() string {
	return fmt.Sprintf("graph(%d nodes)", len(g.edges))
}
