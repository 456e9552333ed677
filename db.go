package lsmgo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hupe1980/lsmgo/blobstore"
	"github.com/hupe1980/lsmgo/engine"
	"github.com/hupe1980/lsmgo/run"
	"github.com/hupe1980/lsmgo/table"
)

// Policy parameterizes a DB with its record layout. See table.Policy.
type Policy[K, V any] = table.Policy[K, V]

// RecordCodec converts between records and their fixed on-blob layout. See
// run.RecordCodec.
type RecordCodec[V any] = run.RecordCodec[V]

// DB is the public handle on one record family's storage engine.
//
// Safe for concurrent use.
type DB[K, V any] struct {
	engine  *engine.Engine[K, V]
	logger  *Logger
	metrics MetricsCollector
}

// Open builds the engine for a record family. With no storage option the DB
// runs on an in-memory blob store: useful for tests, gone at process exit.
func Open[K, V any](ctx context.Context, policy Policy[K, V], codec RecordCodec[V], optFns ...Option) (*DB[K, V], error) {
	opts := options{
		logger:       NewTextLogger(slog.LevelInfo),
		metrics:      NoopMetricsCollector{},
		compression:  run.CompressionZstd,
		cacheRecords: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.blobs == nil {
		opts.blobs = blobstore.NewMemoryStore()
	}
	if opts.logger == nil {
		opts.logger = NoopLogger()
	}
	if opts.metrics == nil {
		opts.metrics = NoopMetricsCollector{}
	}
	if opts.tableCapacity > 0 {
		policy.Capacity = opts.tableCapacity
	}

	engOpts := []func(*engine.Options){
		engine.WithLogger(opts.logger.Logger),
		engine.WithResource(opts.resource),
		engine.WithCompression(opts.compression),
		engine.WithBlockRecords(opts.blockRecords),
		engine.WithCacheRecords(opts.cacheRecords),
	}
	if opts.engineMetrics != nil {
		engOpts = append(engOpts, engine.WithMetrics(opts.engineMetrics))
	}

	eng, err := engine.New(ctx, policy, codec, opts.blobs, engOpts...)
	if err != nil {
		return nil, translateError(err)
	}

	return &DB[K, V]{
		engine:  eng,
		logger:  opts.logger,
		metrics: opts.metrics,
	}, nil
}

// Put inserts or updates a record.
func (db *DB[K, V]) Put(ctx context.Context, v V) error {
	start := time.Now()
	err := translateError(db.engine.Put(ctx, v))
	db.metrics.RecordPut(time.Since(start), err)
	db.logger.LogPut(ctx, err)
	return err
}

// Get returns the current record for key. A missing or deleted key returns
// ErrNotFound.
func (db *DB[K, V]) Get(ctx context.Context, key K) (V, error) {
	start := time.Now()
	v, err := db.engine.Get(ctx, key)
	err = translateError(err)
	miss := errors.Is(err, ErrNotFound)
	recErr := err
	if miss {
		recErr = nil
	}
	db.metrics.RecordGet(time.Since(start), miss, recErr)
	return v, err
}

// Delete writes a tombstone for key. Deleting an absent key is not an
// error.
func (db *DB[K, V]) Delete(ctx context.Context, key K) error {
	start := time.Now()
	err := translateError(db.engine.Delete(ctx, key))
	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, err)
	return err
}

// Checkpoint flushes buffered records; they are durable once it returns.
func (db *DB[K, V]) Checkpoint(ctx context.Context) error {
	start := time.Now()
	err := translateError(db.engine.Checkpoint(ctx))
	db.metrics.RecordCheckpoint(time.Since(start), err)
	db.logger.LogCheckpoint(ctx, err)
	return err
}

// Close flushes remaining records and releases all resources.
func (db *DB[K, V]) Close(ctx context.Context) error {
	return translateError(db.engine.Close(ctx))
}
