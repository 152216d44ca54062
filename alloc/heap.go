package alloc

import (
	"fmt"
	"sync/atomic"
)

// Classifier assigns a reclaim class to a freshly allocated block based
// on the allocation flags.
type Classifier func(flags Flags) Class

// DefaultClassifier maps allocations carrying the Expensive flag to the
// expensive class and everything else to the cheap class.
func DefaultClassifier(flags Flags) Class {
	if flags.Has(Expensive) {
		return ClassExpensive
	}
	return ClassCheap
}

// CachePolicy receives device-scoped cache-attribute callbacks for
// blocks entering and leaving the allocator. Implementations typically
// adjust mapping attributes; the built-in heap allocator only invokes
// the hooks.
type CachePolicy interface {
	// OnAlloc is called after a fresh block is produced, before it is
	// handed to the caller.
	OnAlloc(b *Block)
	// OnFree is called before a block is permanently released.
	OnFree(b *Block)
}

// NopCachePolicy ignores all cache-attribute callbacks.
type NopCachePolicy struct{}

func (NopCachePolicy) OnAlloc(*Block) {}
func (NopCachePolicy) OnFree(*Block)  {}

// HeapAllocator allocates blocks from the Go heap. It tracks usage with
// an atomic gauge and can enforce an optional hard byte limit, which
// makes exhaustion reproducible in tests and bounded deployments.
type HeapAllocator struct {
	limit    int64 // bytes; 0 means unlimited
	used     atomic.Int64
	classify Classifier
	policy   CachePolicy
}

// HeapOption configures a HeapAllocator.
type HeapOption func(*HeapAllocator)

// WithLimit caps the total bytes the allocator will hand out. Alloc
// returns ErrNoMemory once the cap would be exceeded.
func WithLimit(bytes int64) HeapOption {
	return func(h *HeapAllocator) {
		h.limit = bytes
	}
}

// WithClassifier overrides the reclaim-class assignment for fresh
// blocks. Pass nil to keep DefaultClassifier.
func WithClassifier(c Classifier) HeapOption {
	return func(h *HeapAllocator) {
		if c != nil {
			h.classify = c
		}
	}
}

// WithCachePolicy installs device-scoped cache-attribute hooks.
func WithCachePolicy(p CachePolicy) HeapOption {
	return func(h *HeapAllocator) {
		if p != nil {
			h.policy = p
		}
	}
}

// NewHeapAllocator creates a heap-backed Allocator.
func NewHeapAllocator(optFns ...HeapOption) *HeapAllocator {
	h := &HeapAllocator{
		classify: DefaultClassifier,
		policy:   NopCachePolicy{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(h)
		}
	}
	return h
}

// Alloc implements Allocator.
func (h *HeapAllocator) Alloc(order uint, flags Flags) (*Block, error) {
	if order > MaxOrder {
		return nil, fmt.Errorf("alloc: order %d exceeds maximum %d", order, MaxOrder)
	}

	size := int64(BlockBytes(order))
	if h.limit > 0 {
		if h.used.Add(size) > h.limit {
			h.used.Add(-size)
			return nil, ErrNoMemory
		}
	} else {
		h.used.Add(size)
	}

	b := NewBlock(make([]byte, BlockBytes(order)), order, h.classify(flags))
	if flags.Has(ZeroFill) && order > 0 {
		// Fresh slices are already zeroed; multi-page blocks are scrubbed
		// again so the zero-fill contract holds for allocators that
		// recycle backing storage behind this path.
		b.Zero()
	}
	h.policy.OnAlloc(b)

	return b, nil
}

// Free implements Allocator.
func (h *HeapAllocator) Free(b *Block) {
	h.policy.OnFree(b)
	h.used.Add(-int64(b.Size()))
	// The backing slice is left to the garbage collector.
}

// Used returns the bytes currently handed out.
func (h *HeapAllocator) Used() int64 {
	return h.used.Load()
}
