// Package pagepool provides a retained cache of fixed-size memory blocks.
//
// A Pool sits between clients of a memory subsystem and an underlying
// block allocator. Recently freed blocks are kept resident in one of
// two tiers (cheap / expensive by reclaim cost) for fast reuse, and the
// pool cooperates with a system-wide reclaimer by handing blocks back
// under pressure.
//
// # Quick Start
//
//	pool, _ := pagepool.New("system-heap", alloc.ZeroFill, 4)
//	defer pool.Close()
//
//	b, prov, err := pool.Alloc()     // cache hit or fresh allocation
//	if err != nil {
//	    // allocator exhausted; degrade, don't abort
//	}
//	_ = prov                         // FromCache or FreshlyAllocated
//	pool.Free(b)                     // back into the matching tier
//
// # Reclaim
//
// A memory-pressure coordinator calls Shrink to force blocks back to
// the allocator:
//
//	resident := pool.Shrink(false, 0, 0)  // zero scan: size probe only
//	freed := pool.Shrink(true, 0, 64)     // background pass, up to 64 pages
//
// Background callers may take from both tiers; direct-reclaim callers
// are restricted to the cheap tier unless they request the expensive
// class explicitly. The shrinker subpackage aggregates several pools
// behind one coordinator and can run reclaim passes on its own
// goroutine.
//
// # Concurrency
//
// All Pool methods are safe for concurrent use. The allocation fast
// path only tries the store lock: under contention it falls through to
// a fresh allocation instead of waiting. Size queries read atomic
// counters and never contend with allocation or release.
package pagepool
