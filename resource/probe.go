package resource

// Probe reports platform memory availability. It backs the cooperative
// backoff that keeps high-order fresh allocations off a starved
// allocator.
type Probe interface {
	// FreeHighOrderPages returns an estimate of the pages currently
	// available for high-order allocations.
	FreeHighOrderPages() int64
}

// StaticProbe reports a fixed number of free pages. Useful in tests and
// for wiring an externally computed pressure signal.
type StaticProbe struct {
	FreePages int64
}

func (p StaticProbe) FreeHighOrderPages() int64 { return p.FreePages }
