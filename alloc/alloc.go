// Package alloc defines the block allocator boundary used by pagepool.
//
// A Block is a fixed-size run of 2^order pages obtained from an
// Allocator. The pool never allocates memory itself; it wraps an
// Allocator with retention policy, so anything satisfying the Allocator
// interface (the built-in heap allocator, a CMA-style carveout, a test
// double) can sit underneath it.
package alloc

import "errors"

// PageSize is the allocation granularity in bytes. Every block size is
// PageSize << order.
const PageSize = 4096

// MaxOrder is the largest supported block order.
const MaxOrder = 11

// ErrNoMemory is returned by an Allocator that cannot produce a block.
// It signals exhaustion, not misuse; callers are expected to degrade
// rather than abort.
var ErrNoMemory = errors.New("alloc: out of memory")

// BlockBytes returns the byte size of a block of the given order.
func BlockBytes(order uint) int {
	return PageSize << order
}

// Flags control how a fresh block is obtained.
type Flags uint32

const (
	// ZeroFill requests that the block contents be zeroed before the
	// block is handed out.
	ZeroFill Flags = 1 << iota

	// Expensive requests memory of the expensive reclaim class: memory
	// the platform prefers to give back last because regenerating or
	// remapping it is costly.
	Expensive

	// Movable marks the allocation as relocatable by the platform. The
	// pool does not interpret it; it is passed through to the allocator.
	Movable
)

// Has reports whether any bit of mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask != 0 }

// Class partitions blocks by how costly they are to reclaim. It is
// assigned once, when the allocator produces the block, and travels
// with the block from then on.
type Class uint8

const (
	// ClassCheap memory is reclaimed first under pressure.
	ClassCheap Class = iota
	// ClassExpensive memory is reclaimed only by privileged callers.
	ClassExpensive
)

func (c Class) String() string {
	switch c {
	case ClassCheap:
		return "cheap"
	case ClassExpensive:
		return "expensive"
	default:
		return "unknown"
	}
}

// Block is a fixed-size memory region of PageSize << order bytes.
//
// A block belongs to at most one pool tier at a time; outside a pool it
// is owned by whoever holds the pointer.
type Block struct {
	data  []byte
	order uint
	class Class
}

// NewBlock wraps backing storage in a Block. Allocator implementations
// use it to construct the blocks they hand out; len(data) must equal
// BlockBytes(order).
func NewBlock(data []byte, order uint, class Class) *Block {
	if len(data) != BlockBytes(order) {
		panic("alloc: backing size does not match order")
	}
	return &Block{data: data, order: order, class: class}
}

// Order returns the block's size exponent.
func (b *Block) Order() uint { return b.order }

// Class returns the block's reclaim class.
func (b *Block) Class() Class { return b.class }

// Pages returns the number of pages the block spans.
func (b *Block) Pages() int { return 1 << b.order }

// Size returns the block size in bytes.
func (b *Block) Size() int { return len(b.data) }

// Bytes exposes the backing storage.
func (b *Block) Bytes() []byte { return b.data }

// Zero clears the block contents.
func (b *Block) Zero() {
	clear(b.data)
}

// Allocator produces and permanently reclaims blocks. Implementations
// must be safe for concurrent use.
type Allocator interface {
	// Alloc returns a fresh block of 2^order pages honoring flags.
	// Returns ErrNoMemory (possibly wrapped) on exhaustion.
	Alloc(order uint, flags Flags) (*Block, error)

	// Free permanently returns a block to the allocator. The caller
	// must not touch the block afterwards.
	Free(b *Block)
}
