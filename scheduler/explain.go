package scheduler

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Explain renders the computed wavefronts as a table: one row per
// wavefront, listing the systems that run concurrently in it. Build (or
// RunTick) must have run first. Diagnostics only, never used for control
// flow.
func (s *Scheduler) Explain() string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"wavefront", "systems"})
	table.SetAutoWrapText(false)

	for i, level := range s.wavefronts {
		names := make([]string, len(level))
		for j, idx := range level {
			names[j] = s.systems[idx].Name()
		}
		table.Append([]string{fmt.Sprintf("%d", i), strings.Join(names, ", ")})
	}
	table.Render()
	return sb.String()
}
