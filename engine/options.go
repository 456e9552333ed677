package engine

import (
	"log/slog"

	"github.com/hupe1980/lsmgo/resource"
	"github.com/hupe1980/lsmgo/run"
)

// Options configures an Engine.
type Options struct {
	// Logger receives structured engine logs. Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics observes engine events. Defaults to NoopMetricsObserver.
	Metrics MetricsObserver

	// Resource holds the global resource budgets: table memory, flush
	// worker slots, flush IO throughput.
	Resource resource.Config

	// Compression selects the run block codec. Defaults to zstd.
	Compression run.CompressionType

	// BlockRecords is the number of records per run block.
	BlockRecords int

	// CacheRecords bounds the lookup cache. When the cache outgrows this it
	// is reset rather than evicted entry-wise. 0 disables the cache.
	CacheRecords int
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the metrics observer.
func WithMetrics(m MetricsObserver) func(*Options) {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithResource sets the resource budgets.
func WithResource(cfg resource.Config) func(*Options) {
	return func(o *Options) {
		o.Resource = cfg
	}
}

// WithCompression sets the run block codec.
func WithCompression(c run.CompressionType) func(*Options) {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithBlockRecords sets the number of records per run block.
func WithBlockRecords(n int) func(*Options) {
	return func(o *Options) {
		o.BlockRecords = n
	}
}

// WithCacheRecords bounds the lookup cache.
func WithCacheRecords(n int) func(*Options) {
	return func(o *Options) {
		o.CacheRecords = n
	}
}
