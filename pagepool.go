package pagepool

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pagepool/alloc"
)

// Provenance reports where an allocated block came from.
type Provenance uint8

const (
	// FreshlyAllocated marks a block obtained from the underlying
	// allocator on a cache miss.
	FreshlyAllocated Provenance = iota
	// FromCache marks a block taken out of a pool tier.
	FromCache
)

func (p Provenance) String() string {
	if p == FromCache {
		return "from_cache"
	}
	return "freshly_allocated"
}

// Pool is a retained cache of blocks of one fixed order.
//
// Blocks are kept in two tiers by reclaim class. Allocation prefers the
// expensive tier (hand the valuable memory back out first); shrink
// prefers the cheap tier (sacrifice the cheap memory first). Counts are
// atomic and tracked alongside tier mutation so size queries never take
// the store lock.
type Pool struct {
	device string
	order  uint
	flags  alloc.Flags

	mu        sync.Mutex
	cheap     []*alloc.Block
	expensive []*alloc.Block

	cheapCount     atomic.Int64
	expensiveCount atomic.Int64

	closed atomic.Bool

	opts options
}

// New creates an empty pool for blocks of 2^order pages, owned by the
// named device. flags are passed through to the underlying allocator on
// every fresh allocation.
func New(device string, flags alloc.Flags, order uint, optFns ...Option) (*Pool, error) {
	if order > alloc.MaxOrder {
		return nil, &ErrInvalidOrder{Order: order}
	}

	p := &Pool{
		device: device,
		order:  order,
		flags:  flags,
		opts:   applyOptions(optFns),
	}
	p.opts.logger = p.opts.logger.WithDevice(device).WithOrder(order)

	return p, nil
}

// Device returns the owning device name.
func (p *Pool) Device() string { return p.device }

// Order returns the pool's block order.
func (p *Pool) Order() uint { return p.order }

// Flags returns the allocation flags used for fresh blocks.
func (p *Pool) Flags() alloc.Flags { return p.flags }

// popLocked removes one block from the given tier. The store lock must
// be held. Count and list length move together; divergence is a
// corruption of the store and faults immediately.
func (p *Pool) popLocked(expensive bool) *alloc.Block {
	var b *alloc.Block
	if expensive {
		n := len(p.expensive)
		if n == 0 || p.expensiveCount.Load() == 0 {
			panic("pagepool: expensive tier count out of sync with store")
		}
		b = p.expensive[n-1]
		p.expensive[n-1] = nil
		p.expensive = p.expensive[:n-1]
		p.expensiveCount.Add(-1)
	} else {
		n := len(p.cheap)
		if n == 0 || p.cheapCount.Load() == 0 {
			panic("pagepool: cheap tier count out of sync with store")
		}
		b = p.cheap[n-1]
		p.cheap[n-1] = nil
		p.cheap = p.cheap[:n-1]
		p.cheapCount.Add(-1)
	}

	p.opts.res.AddReclaimableBytes(-int64(b.Size()))
	return b
}

// pushLocked inserts a block into the tier matching its class. The
// store lock must be held.
func (p *Pool) pushLocked(b *alloc.Block) {
	if b.Class() == alloc.ClassExpensive {
		p.expensive = append(p.expensive, b)
		p.expensiveCount.Add(1)
	} else {
		p.cheap = append(p.cheap, b)
		p.cheapCount.Add(1)
	}

	p.opts.res.AddReclaimableBytes(int64(b.Size()))
}

// tryTake attempts a non-blocking removal from the store, expensive
// tier first. Returns nil when the store is empty or the lock is
// contended; the two cases are indistinguishable to the caller by
// design of the fast path.
func (p *Pool) tryTake() *alloc.Block {
	if !p.mu.TryLock() {
		return nil
	}
	defer p.mu.Unlock()

	if p.expensiveCount.Load() > 0 {
		return p.popLocked(true)
	}
	if p.cheapCount.Load() > 0 {
		return p.popLocked(false)
	}
	return nil
}

// allocFresh obtains a new block from the underlying allocator and
// charges it to global accounting. Never called with the store lock
// held.
func (p *Pool) allocFresh() (*alloc.Block, error) {
	size := int64(alloc.BlockBytes(p.order))
	if !p.opts.res.TryAcquireMemory(size) {
		return nil, alloc.ErrNoMemory
	}

	b, err := p.opts.allocator.Alloc(p.order, p.flags)
	if err != nil {
		p.opts.res.ReleaseMemory(size)
		return nil, err
	}

	p.opts.res.AddHeapPages(int64(b.Pages()))
	return b, nil
}

// freePages permanently returns a block to the underlying allocator and
// reverses its accounting. Never called with the store lock held.
func (p *Pool) freePages(b *alloc.Block) {
	p.opts.allocator.Free(b)
	p.opts.res.AddHeapPages(-int64(b.Pages()))
	p.opts.res.ReleaseMemory(int64(b.Size()))
}

// Alloc returns a block of 2^order pages.
//
// The store is tried first with a non-blocking lock attempt; on a hit
// the block is returned with FromCache provenance. On a miss (or lock
// contention) a fresh block is obtained from the underlying allocator.
// When the platform reports high-order memory as critically scarce and
// order > 0, the fresh path is skipped and alloc.ErrNoMemory is
// returned as a cooperative backoff rather than a hard failure.
func (p *Pool) Alloc() (*alloc.Block, Provenance, error) {
	if p.closed.Load() {
		return nil, FreshlyAllocated, ErrClosed
	}

	if b := p.tryTake(); b != nil {
		p.opts.metrics.RecordAlloc(true, nil)
		p.opts.logger.LogAlloc(true, nil)
		return b, FromCache, nil
	}

	if p.opts.res.HighOrderScarce(p.order) {
		p.opts.metrics.RecordAlloc(false, alloc.ErrNoMemory)
		p.opts.logger.Debug("fresh allocation skipped, high-order memory scarce")
		return nil, FreshlyAllocated, alloc.ErrNoMemory
	}

	b, err := p.allocFresh()
	p.opts.metrics.RecordAlloc(false, err)
	p.opts.logger.LogAlloc(false, err)
	if err != nil {
		return nil, FreshlyAllocated, err
	}
	return b, FreshlyAllocated, nil
}

// AllocCacheOnly returns a block from the store, or ok=false if the
// store is empty or contended. The underlying allocator is never
// touched.
func (p *Pool) AllocCacheOnly() (*alloc.Block, bool) {
	if p.closed.Load() {
		return nil, false
	}

	b := p.tryTake()
	if b == nil {
		return nil, false
	}
	p.opts.metrics.RecordAlloc(true, nil)
	return b, true
}

// Free returns a block to the pool for reuse. The block is retained in
// the tier matching its reclaim class; insertion always succeeds. On a
// closed pool the block goes straight back to the allocator instead.
//
// The block must have been allocated with this pool's order.
func (p *Pool) Free(b *alloc.Block) {
	if b.Order() != p.order {
		panic("pagepool: freed block order does not match pool order")
	}

	if p.closed.Load() {
		p.freeImmediate(b)
		return
	}

	p.mu.Lock()
	p.pushLocked(b)
	p.mu.Unlock()

	p.opts.metrics.RecordFree(b.Class())
}

// FreeImmediate returns a block straight to the underlying allocator,
// bypassing the store. Use it when the block should not grow the cache.
func (p *Pool) FreeImmediate(b *alloc.Block) {
	if b.Order() != p.order {
		panic("pagepool: freed block order does not match pool order")
	}
	p.freeImmediate(b)
}

func (p *Pool) freeImmediate(b *alloc.Block) {
	p.freePages(b)
	p.opts.metrics.RecordFreeImmediate()
}

// Total returns the resident store size in pages: the cheap tier alone,
// or both tiers when includeExpensive is set. It reads atomic counters
// only and never contends with allocation or release.
func (p *Pool) Total(includeExpensive bool) int {
	count := p.cheapCount.Load()
	if includeExpensive {
		count += p.expensiveCount.Load()
	}
	return int(count) << p.order
}

// Shrink forces blocks back to the underlying allocator.
//
// high-priority reclaim (background==true, or flags carrying
// alloc.Expensive) may take from both tiers; other callers are limited
// to the cheap tier. nrToScan == 0 performs no mutation and returns the
// reclaimable size Total would report for the same priority. Otherwise
// it returns the pages actually freed, which may be fewer than
// requested if the store runs out.
//
// Blocks are always taken cheap-tier-first; the expensive tier is only
// consumed once the cheap tier is empty.
func (p *Pool) Shrink(background bool, flags alloc.Flags, nrToScan int) int {
	high := background || flags.Has(alloc.Expensive)

	if nrToScan == 0 {
		return p.Total(high)
	}

	freed := 0
	for freed < nrToScan {
		var b *alloc.Block

		p.mu.Lock()
		switch {
		case p.cheapCount.Load() > 0:
			b = p.popLocked(false)
		case high && p.expensiveCount.Load() > 0:
			b = p.popLocked(true)
		default:
			p.mu.Unlock()
			p.opts.metrics.RecordShrink(nrToScan, freed)
			p.opts.logger.LogShrink(background, nrToScan, freed)
			return freed
		}
		p.mu.Unlock()

		p.freePages(b)
		freed += 1 << p.order
	}

	p.opts.metrics.RecordShrink(nrToScan, freed)
	p.opts.logger.LogShrink(background, nrToScan, freed)
	return freed
}

// Close drains every resident block back to the underlying allocator
// and marks the pool closed. It returns the number of pages drained.
// Close is idempotent; concurrent Alloc and Free callers must have
// returned before Close for the drain to be complete.
//
// After Close, Alloc returns ErrClosed and Free releases blocks
// immediately instead of retaining them.
func (p *Pool) Close() int {
	if !p.closed.CompareAndSwap(false, true) {
		return 0
	}

	drained := 0
	for {
		var b *alloc.Block

		p.mu.Lock()
		switch {
		case p.cheapCount.Load() > 0:
			b = p.popLocked(false)
		case p.expensiveCount.Load() > 0:
			b = p.popLocked(true)
		}
		p.mu.Unlock()

		if b == nil {
			break
		}
		drained += b.Pages()
		p.freePages(b)
	}

	p.opts.logger.LogClose(drained)
	return drained
}
