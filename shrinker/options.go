package shrinker

import (
	"time"

	"github.com/hupe1980/pagepool"
)

type options struct {
	watermarkBytes int64
	interval       time.Duration
	logger         *pagepool.Logger
}

// Option configures a Shrinker.
type Option func(*options)

// WithWatermark sets the indirectly-reclaimable byte level background
// passes reclaim down to. Below the watermark a pass is a no-op.
func WithWatermark(bytes int64) Option {
	return func(o *options) {
		o.watermarkBytes = bytes
	}
}

// WithInterval sets the pacing between background reclaim passes.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLogger configures structured logging for reclaim passes.
func WithLogger(logger *pagepool.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		interval: time.Second,
		logger:   pagepool.NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
