package lsmgo

import (
	"github.com/hupe1980/lsmgo/blobstore"
	"github.com/hupe1980/lsmgo/config"
	"github.com/hupe1980/lsmgo/engine"
	"github.com/hupe1980/lsmgo/resource"
	"github.com/hupe1980/lsmgo/run"
)

type options struct {
	blobs         blobstore.BlobStore
	logger        *Logger
	metrics       MetricsCollector
	engineMetrics engine.MetricsObserver
	resource      resource.Config
	compression   run.CompressionType
	blockRecords  int
	cacheRecords  int
	tableCapacity int // 0 keeps the policy's capacity
}

// Option configures Open.
type Option func(*options)

// Local stores runs and manifests on the local file system under dir.
func Local(dir string) Option {
	return func(o *options) {
		o.blobs = blobstore.NewLocalStore(dir)
	}
}

// Remote stores runs and manifests in the given blob store (e.g. s3.Store,
// minio.Store).
func Remote(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobs = store
	}
}

// WithLogger sets the logger. Defaults to a text logger on stderr.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithEngineMetrics observes engine internals (freezes, flushes,
// checkpoints) in addition to the per-operation collector.
func WithEngineMetrics(m engine.MetricsObserver) Option {
	return func(o *options) {
		o.engineMetrics = m
	}
}

// WithResource sets the resource budgets: table memory limit, flush worker
// slots, flush IO throughput.
func WithResource(cfg resource.Config) Option {
	return func(o *options) {
		o.resource = cfg
	}
}

// WithCompression selects the run block codec. Defaults to zstd.
func WithCompression(c run.CompressionType) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithBlockRecords sets the number of records per run block.
func WithBlockRecords(n int) Option {
	return func(o *options) {
		o.blockRecords = n
	}
}

// WithCacheRecords bounds the lookup cache; 0 disables it. Defaults to
// 4096.
func WithCacheRecords(n int) Option {
	return func(o *options) {
		o.cacheRecords = n
	}
}

// WithTableCapacity overrides the policy's table capacity. Useful with
// FromConfig, where sizing comes from an operations-managed file rather
// than code.
func WithTableCapacity(capacity int) Option {
	return func(o *options) {
		o.tableCapacity = capacity
	}
}

// FromConfig applies a loaded YAML config. Later options override it.
func FromConfig(cfg config.Config) Option {
	return func(o *options) {
		if cfg.Storage.DataDir != "" {
			o.blobs = blobstore.NewLocalStore(cfg.Storage.DataDir)
		}
		if cfg.Storage.TableCapacity > 0 {
			o.tableCapacity = cfg.Storage.TableCapacity
		}
		o.resource = resource.Config{
			MemoryLimitBytes:   cfg.Resource.MemoryLimitBytes,
			MaxFlushWorkers:    cfg.Resource.MaxFlushWorkers,
			FlushIOBytesPerSec: cfg.Resource.FlushIOBytesPerSec,
		}
		switch cfg.Flush.Compression {
		case "none":
			o.compression = run.CompressionNone
		case "lz4":
			o.compression = run.CompressionLZ4
		default:
			o.compression = run.CompressionZstd
		}
		if cfg.Flush.BlockRecords > 0 {
			o.blockRecords = cfg.Flush.BlockRecords
		}
	}
}
