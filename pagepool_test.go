package pagepool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagepool/alloc"
	"github.com/hupe1980/pagepool/resource"
)

// countingAllocator tracks calls so tests can assert the allocator was
// (or was not) touched.
type countingAllocator struct {
	allocs atomic.Int64
	frees  atomic.Int64
	fail   atomic.Bool
}

func (a *countingAllocator) Alloc(order uint, flags alloc.Flags) (*alloc.Block, error) {
	if a.fail.Load() {
		return nil, alloc.ErrNoMemory
	}
	a.allocs.Add(1)
	return alloc.NewBlock(make([]byte, alloc.BlockBytes(order)), order, alloc.DefaultClassifier(flags)), nil
}

func (a *countingAllocator) Free(*alloc.Block) {
	a.frees.Add(1)
}

func newBlock(t *testing.T, order uint, class alloc.Class) *alloc.Block {
	t.Helper()
	return alloc.NewBlock(make([]byte, alloc.BlockBytes(order)), order, class)
}

func newTestPool(t *testing.T, order uint) (*Pool, *countingAllocator) {
	t.Helper()
	ca := &countingAllocator{}
	p, err := New("test-heap", 0, order, WithAllocator(ca))
	require.NoError(t, err)
	return p, ca
}

func TestNew_InvalidOrder(t *testing.T) {
	_, err := New("test-heap", 0, alloc.MaxOrder+1)
	var eio *ErrInvalidOrder
	require.ErrorAs(t, err, &eio)
	assert.Equal(t, uint(alloc.MaxOrder+1), eio.Order)
}

func TestPool_RoundTrip(t *testing.T) {
	p, ca := newTestPool(t, 0)

	b, prov, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, FreshlyAllocated, prov)
	assert.Equal(t, int64(1), ca.allocs.Load())

	p.Free(b)
	assert.Equal(t, 1, p.Total(true))

	b2, prov, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, FromCache, prov)
	assert.Same(t, b, b2)
	assert.Equal(t, 0, p.Total(true))
	assert.Equal(t, int64(1), ca.allocs.Load(), "cache hit must not allocate")
}

func TestPool_AllocPrefersExpensiveTier(t *testing.T) {
	p, _ := newTestPool(t, 0)

	cheap := newBlock(t, 0, alloc.ClassCheap)
	expensive := newBlock(t, 0, alloc.ClassExpensive)
	p.Free(cheap)
	p.Free(expensive)

	b, prov, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, FromCache, prov)
	assert.Same(t, expensive, b)

	b, _, err = p.Alloc()
	require.NoError(t, err)
	assert.Same(t, cheap, b)
}

func TestPool_AllocCacheOnly(t *testing.T) {
	p, ca := newTestPool(t, 0)

	// Empty pool: no block, and the allocator is never touched.
	b, ok := p.AllocCacheOnly()
	assert.False(t, ok)
	assert.Nil(t, b)
	assert.Equal(t, int64(0), ca.allocs.Load())

	p.Free(newBlock(t, 0, alloc.ClassCheap))
	b, ok = p.AllocCacheOnly()
	assert.True(t, ok)
	assert.NotNil(t, b)
	assert.Equal(t, int64(0), ca.allocs.Load())
}

func TestPool_FreeImmediate(t *testing.T) {
	p, ca := newTestPool(t, 0)

	b, _, err := p.Alloc()
	require.NoError(t, err)

	p.FreeImmediate(b)
	assert.Equal(t, 0, p.Total(true))
	assert.Equal(t, int64(1), ca.frees.Load())
}

func TestPool_FreeOrderMismatch(t *testing.T) {
	p, _ := newTestPool(t, 2)

	assert.Panics(t, func() {
		p.Free(newBlock(t, 0, alloc.ClassCheap))
	})
}

// Mirrors the canonical order-0 walkthrough: one cheap and one
// expensive resident block, probed and shrunk tier by tier.
func TestPool_SizeAndShrinkScenario(t *testing.T) {
	p, ca := newTestPool(t, 0)

	a := newBlock(t, 0, alloc.ClassCheap)
	b := newBlock(t, 0, alloc.ClassExpensive)

	p.Free(a)
	assert.Equal(t, 1, p.Total(false))

	p.Free(b)
	assert.Equal(t, 1, p.Total(false))
	assert.Equal(t, 2, p.Total(true))

	freed := p.Shrink(false, 0, 1)
	assert.Equal(t, 1, freed)
	assert.Equal(t, 0, p.Total(false))
	assert.Equal(t, 1, p.Total(true), "direct reclaim must not take the expensive tier")

	freed = p.Shrink(true, 0, 1)
	assert.Equal(t, 1, freed)
	assert.Equal(t, 0, p.Total(true))

	assert.Equal(t, int64(2), ca.frees.Load())
}

func TestPool_Shrink_ZeroScanIsProbe(t *testing.T) {
	p, ca := newTestPool(t, 0)

	p.Free(newBlock(t, 0, alloc.ClassCheap))
	p.Free(newBlock(t, 0, alloc.ClassExpensive))

	assert.Equal(t, p.Total(false), p.Shrink(false, 0, 0))
	assert.Equal(t, p.Total(true), p.Shrink(true, 0, 0))
	assert.Equal(t, p.Total(true), p.Shrink(false, alloc.Expensive, 0))

	// Still resident: the zero-scan branch never mutates.
	assert.Equal(t, 2, p.Total(true))
	assert.Equal(t, int64(0), ca.frees.Load())
}

func TestPool_Shrink_Bound(t *testing.T) {
	p, _ := newTestPool(t, 0)

	for i := 0; i < 5; i++ {
		p.Free(newBlock(t, 0, alloc.ClassCheap))
	}

	// Request less than available: freed == requested.
	assert.Equal(t, 3, p.Shrink(false, 0, 3))
	// Request more than available: freed == what was left.
	assert.Equal(t, 2, p.Shrink(false, 0, 100))
	assert.Equal(t, 0, p.Total(true))
}

func TestPool_Shrink_TierPriority(t *testing.T) {
	p, _ := newTestPool(t, 0)

	for i := 0; i < 3; i++ {
		p.Free(newBlock(t, 0, alloc.ClassCheap))
	}
	for i := 0; i < 2; i++ {
		p.Free(newBlock(t, 0, alloc.ClassExpensive))
	}

	// A background pass takes the whole cheap tier before touching the
	// expensive one.
	assert.Equal(t, 3, p.Shrink(true, 0, 3))
	assert.Equal(t, 0, p.Total(false))
	assert.Equal(t, 2, p.Total(true))

	assert.Equal(t, 2, p.Shrink(true, 0, 10))
	assert.Equal(t, 0, p.Total(true))
}

func TestPool_Shrink_DirectReclaimRestricted(t *testing.T) {
	p, _ := newTestPool(t, 0)

	p.Free(newBlock(t, 0, alloc.ClassExpensive))

	// A direct-reclaim caller may not drain the expensive tier...
	assert.Equal(t, 0, p.Shrink(false, 0, 10))
	assert.Equal(t, 1, p.Total(true))

	// ...unless it asks for that memory class explicitly.
	assert.Equal(t, 1, p.Shrink(false, alloc.Expensive, 10))
	assert.Equal(t, 0, p.Total(true))
}

func TestPool_Shrink_HighOrderUnits(t *testing.T) {
	p, _ := newTestPool(t, 2)

	p.Free(newBlock(t, 2, alloc.ClassCheap))
	p.Free(newBlock(t, 2, alloc.ClassCheap))

	assert.Equal(t, 8, p.Total(true))

	// Budget below one block still frees a whole block.
	assert.Equal(t, 4, p.Shrink(false, 0, 1))
	assert.Equal(t, 4, p.Total(true))
}

func TestPool_ContendedFastPathFallsThrough(t *testing.T) {
	p, ca := newTestPool(t, 0)

	p.Free(newBlock(t, 0, alloc.ClassCheap))

	// Hold the store lock to force the trylock miss.
	p.mu.Lock()
	b, prov, err := p.Alloc()
	p.mu.Unlock()

	require.NoError(t, err)
	assert.Equal(t, FreshlyAllocated, prov)
	assert.NotNil(t, b)
	assert.Equal(t, int64(1), ca.allocs.Load())
	assert.Equal(t, 1, p.Total(true), "cached block must remain resident")
}

func TestPool_CacheOnlyContended(t *testing.T) {
	p, _ := newTestPool(t, 0)

	p.Free(newBlock(t, 0, alloc.ClassCheap))

	p.mu.Lock()
	b, ok := p.AllocCacheOnly()
	p.mu.Unlock()

	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestPool_HighOrderBackoff(t *testing.T) {
	ca := &countingAllocator{}
	res := resource.NewController(resource.Config{Probe: resource.StaticProbe{FreePages: 0}})

	p, err := New("test-heap", 0, 4, WithAllocator(ca), WithAccounting(res))
	require.NoError(t, err)

	b, _, err := p.Alloc()
	assert.ErrorIs(t, err, alloc.ErrNoMemory)
	assert.Nil(t, b)
	assert.Equal(t, int64(0), ca.allocs.Load(), "backoff must not touch the allocator")

	// Order-0 pools never back off.
	p0, err := New("test-heap", 0, 0, WithAllocator(ca), WithAccounting(res))
	require.NoError(t, err)
	_, _, err = p0.Alloc()
	require.NoError(t, err)
}

func TestPool_AllocatorExhausted(t *testing.T) {
	p, ca := newTestPool(t, 0)
	ca.fail.Store(true)

	b, prov, err := p.Alloc()
	assert.ErrorIs(t, err, alloc.ErrNoMemory)
	assert.Nil(t, b)
	assert.Equal(t, FreshlyAllocated, prov)
}

func TestPool_MemoryLimit(t *testing.T) {
	ca := &countingAllocator{}
	res := resource.NewController(resource.Config{MemoryLimitBytes: alloc.PageSize})

	p, err := New("test-heap", 0, 0, WithAllocator(ca), WithAccounting(res))
	require.NoError(t, err)

	b, _, err := p.Alloc()
	require.NoError(t, err)

	_, _, err = p.Alloc()
	assert.ErrorIs(t, err, alloc.ErrNoMemory)

	p.FreeImmediate(b)

	_, _, err = p.Alloc()
	require.NoError(t, err)
}

func TestPool_Accounting(t *testing.T) {
	res := resource.NewController(resource.Config{})
	p, err := New("test-heap", 0, 1, WithAllocator(&countingAllocator{}), WithAccounting(res))
	require.NoError(t, err)

	b, _, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.HeapPages())
	assert.Equal(t, int64(0), res.ReclaimableBytes())

	p.Free(b)
	assert.Equal(t, int64(2), res.HeapPages(), "retained pages stay attributed")
	assert.Equal(t, int64(2*alloc.PageSize), res.ReclaimableBytes())

	p.Shrink(true, 0, 2)
	assert.Equal(t, int64(0), res.HeapPages())
	assert.Equal(t, int64(0), res.ReclaimableBytes())
}

func TestPool_Close(t *testing.T) {
	p, ca := newTestPool(t, 0)

	p.Free(newBlock(t, 0, alloc.ClassCheap))
	p.Free(newBlock(t, 0, alloc.ClassExpensive))

	drained := p.Close()
	assert.Equal(t, 2, drained)
	assert.Equal(t, 0, p.Total(true))
	assert.Equal(t, int64(2), ca.frees.Load())

	// Idempotent.
	assert.Equal(t, 0, p.Close())

	_, _, err := p.Alloc()
	assert.ErrorIs(t, err, ErrClosed)

	_, ok := p.AllocCacheOnly()
	assert.False(t, ok)

	// A late Free bypasses the store.
	p.Free(newBlock(t, 0, alloc.ClassCheap))
	assert.Equal(t, 0, p.Total(true))
	assert.Equal(t, int64(3), ca.frees.Load())
}

func TestPool_Conservation_Concurrent(t *testing.T) {
	p, _ := newTestPool(t, 0)

	const (
		workers   = 8
		perWorker = 200
	)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		seed := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				class := alloc.ClassCheap
				if (seed+i)%3 == 0 {
					class = alloc.ClassExpensive
				}
				p.Free(alloc.NewBlock(make([]byte, alloc.PageSize), 0, class))
				if i%2 == 0 {
					p.AllocCacheOnly()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Whatever interleaving happened, counts must balance: resident
	// blocks equal releases minus removals, and a full drain agrees.
	resident := p.Total(true)
	assert.GreaterOrEqual(t, resident, 0)
	assert.LessOrEqual(t, resident, workers*perWorker)
	assert.Equal(t, resident, p.Shrink(true, 0, workers*perWorker))
	assert.Equal(t, 0, p.Total(true))
}

func TestPool_Metrics(t *testing.T) {
	mc := &BasicMetricsCollector{}
	ca := &countingAllocator{}
	p, err := New("test-heap", 0, 0, WithAllocator(ca), WithMetricsCollector(mc))
	require.NoError(t, err)

	b, _, err := p.Alloc() // miss
	require.NoError(t, err)
	p.Free(b)
	b2, _, err := p.Alloc() // hit
	require.NoError(t, err)
	p.FreeImmediate(b2)
	p.Free(newBlock(t, 0, alloc.ClassExpensive))
	p.Shrink(true, 0, 1)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.CheapFrees)
	assert.Equal(t, int64(1), stats.ExpensiveFrees)
	assert.Equal(t, int64(1), stats.ImmediateFrees)
	assert.Equal(t, int64(1), stats.ShrinkPasses)
	assert.Equal(t, int64(1), stats.ShrinkFreed)
}

func TestProvenance_String(t *testing.T) {
	assert.Equal(t, "from_cache", FromCache.String())
	assert.Equal(t, "freshly_allocated", FreshlyAllocated.String())
}
