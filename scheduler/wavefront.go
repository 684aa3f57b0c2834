package scheduler

import (
	"fmt"

	"github.com/sparsecs/ecsdb/ecserr"
	"github.com/sparsecs/ecsdb/ecslog"
)

// wavefronts levelizes g by repeatedly peeling off every node whose
// in-degree has dropped to zero, using registration order within a level
// to keep the result deterministic. Each returned slice is one wavefront:
// its systems have no dependency on each other and may run concurrently.
//
// If a cycle leaves nodes stranded, debug builds return ErrCycle naming
// the offending systems; release builds log the cycle and emit the
// stranded nodes as one final wavefront in registration order, per
// spec.md §7's debug/release split.
func wavefronts(systems []System, g *graph, debug bool, log *ecslog.Logger) ([][]int, error) {
	n := len(systems)
	inDegree := append([]int(nil), g.inDegree...)
	remaining := make([]bool, n)
	for i := range remaining {
		remaining[i] = true
	}

	var levels [][]int
	left := n
	for left > 0 {
		var level []int
		for i := 0; i < n; i++ {
			if remaining[i] && inDegree[i] == 0 {
				level = append(level, i)
			}
		}
		if len(level) == 0 {
			break // cycle: no zero-in-degree node remains
		}
		for _, i := range level {
			remaining[i] = false
			left--
		}
		for _, i := range level {
			g.edges[i].Each(func(j int) bool {
				if remaining[j] {
					inDegree[j]--
				}
				return false
			})
		}
		levels = append(levels, level)
	}

	if left == 0 {
		return levels, nil
	}

	names := cycleMembers(systems, remaining)
	if debug {
		return nil, fmt.Errorf("%w: %v", ecserr.ErrCycle, names)
	}

	log.Warn("dependency cycle detected, falling back to registration order", "systems", fmt.Sprint(names))
	var fallback []int
	for i := 0; i < n; i++ {
		if remaining[i] {
			fallback = append(fallback, i)
		}
	}
	levels = append(levels, fallback)
	return levels, nil
}
