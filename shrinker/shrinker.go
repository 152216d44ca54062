// Package shrinker aggregates page pools behind a single reclaim
// surface.
//
// A memory-pressure coordinator deals with one Shrinker instead of
// individual pools: Count probes the total reclaimable size, Scan
// distributes a reclaim budget across pools, and Run drives periodic
// background passes against an accounting watermark.
package shrinker

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hupe1980/pagepool"
	"github.com/hupe1980/pagepool/alloc"
	"github.com/hupe1980/pagepool/resource"
)

// Shrinker fans reclaim requests out to registered pools.
//
// Pools are kept sorted ascending by order, so a scan empties
// small-block pools before sacrificing large contiguous blocks.
type Shrinker struct {
	mu    sync.RWMutex
	pools []*pagepool.Pool

	opts options
}

// New creates an empty Shrinker.
func New(optFns ...Option) *Shrinker {
	return &Shrinker{opts: applyOptions(optFns)}
}

// Register adds a pool to the reclaim set.
func (s *Shrinker) Register(p *pagepool.Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.pools), func(i int) bool {
		return s.pools[i].Order() >= p.Order()
	})
	s.pools = append(s.pools, nil)
	copy(s.pools[i+1:], s.pools[i:])
	s.pools[i] = p
}

// Pools returns the registered pools in scan order.
func (s *Shrinker) Pools() []*pagepool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*pagepool.Pool(nil), s.pools...)
}

// Count returns the total pages a Scan with the same priority could
// reclaim. It never mutates pool state.
func (s *Shrinker) Count(background bool, flags alloc.Flags) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, p := range s.pools {
		total += p.Shrink(background, flags, 0)
	}
	return total
}

// Scan reclaims up to nrToScan pages across the registered pools and
// returns the pages actually freed. Pools are visited in ascending
// order of block size; each pool consumes what remains of the budget.
func (s *Shrinker) Scan(background bool, flags alloc.Flags, nrToScan int) int {
	if nrToScan <= 0 {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	freed := 0
	for _, p := range s.pools {
		if freed >= nrToScan {
			break
		}
		freed += p.Shrink(background, flags, nrToScan-freed)
	}
	return freed
}

// Run drives periodic background reclaim passes until ctx is canceled.
//
// Each pass compares the controller's indirectly-reclaimable gauge to
// the configured watermark and scans the excess, acting as the
// background reclaimer: passes run with background priority and may
// drain both tiers. Passes are paced by the configured interval.
// Returns ctx.Err after cancellation.
func (s *Shrinker) Run(ctx context.Context, res *resource.Controller) error {
	lim := rate.NewLimiter(rate.Every(s.opts.interval), 1)

	for {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		excess := res.ReclaimableBytes() - s.opts.watermarkBytes
		if excess <= 0 {
			continue
		}

		pages := int((excess + alloc.PageSize - 1) / alloc.PageSize)
		freed := s.Scan(true, 0, pages)
		s.opts.logger.Debug("background reclaim pass",
			"excess_bytes", excess,
			"requested_pages", pages,
			"freed_pages", freed,
		)
	}
}
