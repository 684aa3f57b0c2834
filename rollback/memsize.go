package rollback

import "github.com/fjl/memsize"

// MemoryUsage reports a deep-scanned memory report of the controller's
// current rollback tree and its arena, mirroring how the teacher itself
// uses fjl/memsize to size its state caches. Diagnostics only.
func (c *Controller[T]) MemoryUsage() memsize.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return memsize.Scan(c.current)
}
