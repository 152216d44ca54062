// Package resource tracks memory attributed to the page pool subsystem.
//
// The Controller is the accounting collaborator every pool is wired
// with: it carries the gauges system-wide memory reporting consumes and
// can optionally enforce a hard byte limit on pooled memory. Gauges are
// plain atomics so readers never contend with pool mutation.
package resource

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Config holds accounting limits and platform hooks.
type Config struct {
	// MemoryLimitBytes is the hard limit for memory attributed to pools.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// Probe reports platform free-memory state for the high-order
	// allocation backoff. If nil, memory is never considered scarce.
	Probe Probe
}

// Controller manages global accounting for pooled memory.
//
// A nil Controller is valid and behaves as an unlimited, unobserved
// accounting sink, so components can be used without wiring one.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	heapPages        atomic.Int64
	reclaimableBytes atomic.Int64

	probe Probe
}

// NewController creates a resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg, probe: cfg.Probe}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	return c
}

// TryAcquireMemory attempts to reserve bytes against the hard limit
// without blocking. Returns true if acquired (always, when no limit is
// configured), false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AddHeapPages adjusts the count of pages attributed to the subsystem.
// Pass a negative delta when pages are returned to the allocator.
func (c *Controller) AddHeapPages(n int64) {
	if c == nil {
		return
	}
	c.heapPages.Add(n)
}

// HeapPages returns the pages currently attributed to the subsystem.
func (c *Controller) HeapPages() int64 {
	if c == nil {
		return 0
	}
	return c.heapPages.Load()
}

// AddReclaimableBytes adjusts the bytes classified as indirectly
// reclaimable: memory resident in pool tiers that a shrink pass could
// hand back.
func (c *Controller) AddReclaimableBytes(n int64) {
	if c == nil {
		return
	}
	c.reclaimableBytes.Add(n)
}

// ReclaimableBytes returns the bytes currently classified as indirectly
// reclaimable.
func (c *Controller) ReclaimableBytes() int64 {
	if c == nil {
		return 0
	}
	return c.reclaimableBytes.Load()
}

// HighOrderScarce reports whether free memory is too scarce to satisfy
// a fresh allocation of the given order without pressuring the
// platform. Order-0 allocations are never considered scarce.
func (c *Controller) HighOrderScarce(order uint) bool {
	if c == nil || c.probe == nil || order == 0 {
		return false
	}
	return c.probe.FreeHighOrderPages() < int64(1)<<order
}
