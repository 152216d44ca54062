package pagepool

import (
	"sync/atomic"

	"github.com/hupe1980/pagepool/alloc"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    hitCounter  prometheus.Counter
//	    missCounter prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordAlloc(fromPool bool, err error) {
//	    if fromPool {
//	        p.hitCounter.Inc()
//	    } else {
//	        p.missCounter.Inc()
//	    }
//	}
type MetricsCollector interface {
	// RecordAlloc is called after each allocation attempt.
	// fromPool reports whether the block came out of a tier;
	// err is nil unless the underlying allocator was exhausted.
	RecordAlloc(fromPool bool, err error)

	// RecordFree is called after a block is retained in a tier.
	RecordFree(class alloc.Class)

	// RecordFreeImmediate is called after a block bypasses the store
	// and goes straight back to the allocator.
	RecordFreeImmediate()

	// RecordShrink is called after each mutating shrink pass.
	// requested and freed are in pages.
	RecordShrink(requested, freed int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(bool, error) {}
func (NoopMetricsCollector) RecordFree(alloc.Class)  {}
func (NoopMetricsCollector) RecordFreeImmediate()    {}
func (NoopMetricsCollector) RecordShrink(int, int)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits            atomic.Int64
	Misses          atomic.Int64
	AllocErrors     atomic.Int64
	CheapFrees      atomic.Int64
	ExpensiveFrees  atomic.Int64
	ImmediateFrees  atomic.Int64
	ShrinkPasses    atomic.Int64
	ShrinkRequested atomic.Int64
	ShrinkFreed     atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(fromPool bool, err error) {
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	if fromPool {
		b.Hits.Add(1)
	} else {
		b.Misses.Add(1)
	}
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree(class alloc.Class) {
	if class == alloc.ClassExpensive {
		b.ExpensiveFrees.Add(1)
	} else {
		b.CheapFrees.Add(1)
	}
}

// RecordFreeImmediate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFreeImmediate() {
	b.ImmediateFrees.Add(1)
}

// RecordShrink implements MetricsCollector.
func (b *BasicMetricsCollector) RecordShrink(requested, freed int) {
	b.ShrinkPasses.Add(1)
	b.ShrinkRequested.Add(int64(requested))
	b.ShrinkFreed.Add(int64(freed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:            b.Hits.Load(),
		Misses:          b.Misses.Load(),
		AllocErrors:     b.AllocErrors.Load(),
		CheapFrees:      b.CheapFrees.Load(),
		ExpensiveFrees:  b.ExpensiveFrees.Load(),
		ImmediateFrees:  b.ImmediateFrees.Load(),
		ShrinkPasses:    b.ShrinkPasses.Load(),
		ShrinkRequested: b.ShrinkRequested.Load(),
		ShrinkFreed:     b.ShrinkFreed.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits            int64
	Misses          int64
	AllocErrors     int64
	CheapFrees      int64
	ExpensiveFrees  int64
	ImmediateFrees  int64
	ShrinkPasses    int64
	ShrinkRequested int64
	ShrinkFreed     int64
}
