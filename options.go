package pagepool

import (
	"log/slog"

	"github.com/hupe1980/pagepool/alloc"
	"github.com/hupe1980/pagepool/resource"
)

type options struct {
	allocator alloc.Allocator
	res       *resource.Controller
	metrics   MetricsCollector
	logger    *Logger
}

// Option configures Pool construction.
type Option func(*options)

// WithAllocator configures the underlying block allocator.
//
// If nil is passed, a heap-backed allocator is used.
func WithAllocator(a alloc.Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.allocator = a
		}
	}
}

// WithAccounting wires the pool to a global accounting controller.
// Pools sharing one controller contribute to the same gauges, which is
// how a multi-pool subsystem reports to system-wide memory accounting.
//
// If nil is passed, a private tracking-only controller is used.
func WithAccounting(c *resource.Controller) Option {
	return func(o *options) {
		if c != nil {
			o.res = c
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagepool.BasicMetricsCollector{}
//	pool, _ := pagepool.New("system-heap", 0, 4, pagepool.WithMetricsCollector(metrics))
//	// ... use pool ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := pagepool.NewJSONLogger(slog.LevelInfo)
//	pool, _ := pagepool.New("system-heap", 0, 4, pagepool.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		allocator: alloc.NewHeapAllocator(),
		res:       resource.NewController(resource.Config{}),
		metrics:   NoopMetricsCollector{},
		logger:    NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
