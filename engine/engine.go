package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lsmgo/blobstore"
	"github.com/hupe1980/lsmgo/manifest"
	"github.com/hupe1980/lsmgo/model"
	"github.com/hupe1980/lsmgo/resource"
	"github.com/hupe1980/lsmgo/run"
	"github.com/hupe1980/lsmgo/table"
)

// runHandle pairs a flushed run's reader with its manifest entry.
type runHandle[V any] struct {
	info   manifest.RunInfo
	reader *run.Reader[V]
}

// Engine is the write pipeline for one record family. It owns a pair of
// in-memory tables, the flusher that turns frozen tables into sorted runs,
// the manifest, and the read path across all of them.
//
// Safe for concurrent use; all table access is serialized internally.
type Engine[K, V any] struct {
	opts    Options
	policy  table.Policy[K, V]
	codec   run.RecordCodec[V]
	rc      *resource.Controller
	blobs   blobstore.BlobStore
	mans    *manifest.Store
	log     *slog.Logger
	metrics MetricsObserver
	cache   *lookupCache[K, V]

	// flushCh feeds the flusher goroutine; flushWg tracks its lifetime.
	flushCh chan flushJob[K, V]
	flushWg sync.WaitGroup

	mu            sync.Mutex
	cond          *sync.Cond
	active        *table.Memory[K, V]
	standby       *table.Memory[K, V]
	snapshot      model.Snapshot
	man           *manifest.Manifest
	readers       []*runHandle[V] // newest first
	flushInFlight bool
	flushErr      error
	closed        bool
}

// New opens an engine on the given blob store, recovering the run set from
// the manifest. Both tables are allocated up front; allocation failure is
// the only recoverable construction error besides blob IO.
func New[K, V any](ctx context.Context, policy table.Policy[K, V], codec run.RecordCodec[V], blobs blobstore.BlobStore, optFns ...func(*Options)) (*Engine[K, V], error) {
	opts := Options{
		Logger:      slog.Default(),
		Metrics:     NoopMetricsObserver{},
		Compression: run.CompressionZstd,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsObserver{}
	}

	rc := resource.NewController(opts.Resource)
	mans := manifest.NewStore(blobs)

	man, err := mans.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	readers, err := openRuns[V](ctx, blobs, codec, man.Runs)
	if err != nil {
		return nil, err
	}

	active, err := table.New(ctx, rc, policy, table.InitialMutable, "mem-0")
	if err != nil {
		closeRuns(readers)
		return nil, err
	}
	// The standby starts as an already-flushed immutable so the first
	// rotation can swap into it with a plain thaw.
	standby, err := table.New(ctx, rc, policy, table.InitialImmutableFlushed, "mem-1")
	if err != nil {
		active.Close()
		closeRuns(readers)
		return nil, err
	}

	e := &Engine[K, V]{
		opts:     opts,
		policy:   policy,
		codec:    codec,
		rc:       rc,
		blobs:    blobs,
		mans:     mans,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		cache:    newLookupCache[K, V](opts.CacheRecords, func(a, b K) bool { return policy.Compare(a, b) < 0 }),
		flushCh:  make(chan flushJob[K, V], 1),
		active:   active,
		standby:  standby,
		snapshot: man.LastSnapshot,
		man:      man,
		readers:  readers,
	}
	e.cond = sync.NewCond(&e.mu)

	e.flushWg.Add(1)
	go e.flushLoop()

	e.log.InfoContext(ctx, "engine opened",
		"runs", len(readers),
		"last_snapshot", uint64(man.LastSnapshot),
		"capacity", policy.Capacity,
	)

	return e, nil
}

// openRuns opens readers for all flushed runs, in parallel, returning them
// newest first.
func openRuns[V any](ctx context.Context, blobs blobstore.BlobStore, codec run.RecordCodec[V], infos []manifest.RunInfo) ([]*runHandle[V], error) {
	handles := make([]*runHandle[V], len(infos))

	g, gctx := errgroup.WithContext(ctx)
	for i, info := range infos {
		g.Go(func() error {
			blob, err := blobs.Open(gctx, info.Ref().BlobName())
			if err != nil {
				return fmt.Errorf("open %s: %w", info.Ref(), err)
			}
			reader, err := run.NewReader[V](blob, codec)
			if err != nil {
				_ = blob.Close()
				return fmt.Errorf("read %s: %w", info.Ref(), err)
			}
			handles[i] = &runHandle[V]{info: info, reader: reader}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeRuns(handles)
		return nil, err
	}

	// The manifest appends chronologically; reads want newest first.
	for i, j := 0, len(handles)-1; i < j; i, j = i+1, j-1 {
		handles[i], handles[j] = handles[j], handles[i]
	}
	return handles, nil
}

func closeRuns[V any](handles []*runHandle[V]) {
	for _, h := range handles {
		if h != nil {
			_ = h.reader.Close()
		}
	}
}

// Put inserts or updates a record. When the active table is full this
// rotates the pair, which may wait for the previous flush to complete.
func (e *Engine[K, V]) Put(ctx context.Context, v V) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if e.active.Len() == e.policy.Capacity {
		if err := e.rotateLocked(ctx); err != nil {
			return err
		}
	}

	e.active.Put(v)
	if evicted := e.cache.store(e.policy.KeyOf(&v), v); evicted > 0 {
		e.metrics.OnCacheReset(evicted)
	}
	return nil
}

// Delete writes a tombstone for key.
func (e *Engine[K, V]) Delete(ctx context.Context, key K) error {
	return e.Put(ctx, e.policy.TombstoneFrom(key))
}

// Get returns the current record for key, or ErrNotFound if the key was
// never written or its latest record is a tombstone.
func (e *Engine[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return zero, ErrClosed
	}

	if v, ok := e.cache.load(key); ok {
		e.mu.Unlock()
		if e.policy.IsTombstone(&v) {
			return zero, ErrNotFound
		}
		return v, nil
	}

	if v, ok := e.probeTablesLocked(key); ok {
		e.mu.Unlock()
		if e.policy.IsTombstone(&v) {
			return zero, ErrNotFound
		}
		return v, nil
	}

	// Runs are immutable; search them outside the lock.
	readers := e.readers
	e.mu.Unlock()

	for _, h := range readers {
		v, tombstone, ok, err := e.findInRun(h.reader, key)
		if err != nil {
			return zero, err
		}
		if ok {
			if tombstone {
				return zero, ErrNotFound
			}
			return v, nil
		}
	}

	return zero, ErrNotFound
}

// probeTablesLocked checks the active table and the frozen standby. The
// active table is scanned backwards so the latest write for a key wins; the
// standby is frozen and sorted, so it gets a binary search.
func (e *Engine[K, V]) probeTablesLocked(key K) (V, bool) {
	var zero V

	values := e.active.Values()
	for i := len(values) - 1; i >= 0; i-- {
		if e.policy.Compare(e.policy.KeyOf(&values[i]), key) == 0 {
			return values[i], true
		}
	}

	if !e.standby.Mutable() && e.standby.Len() > 0 {
		if v, ok := e.standby.Get(key); ok {
			return *v, true
		}
	}

	return zero, false
}

// findInRun binary-searches a sorted run for key, resolving duplicates to
// the last-inserted record. Record decode needs error handling, so this
// spells out the upper-bound loop instead of reusing the shared helper.
func (e *Engine[K, V]) findInRun(r *run.Reader[V], key K) (v V, tombstone, ok bool, err error) {
	lo, hi := 0, r.RecordCount()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if err = r.Record(mid, &v); err != nil {
			return v, false, false, err
		}
		if e.policy.Compare(e.policy.KeyOf(&v), key) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return v, false, false, nil
	}

	if err = r.Record(lo-1, &v); err != nil {
		return v, false, false, err
	}
	if e.policy.Compare(e.policy.KeyOf(&v), key) != 0 {
		return v, false, false, nil
	}
	return v, r.IsTombstone(lo-1) || e.policy.IsTombstone(&v), true, nil
}

// Checkpoint freezes the active table regardless of fill level and waits
// until its contents are durable. An empty active table freezes and thaws
// in place: an empty freeze is born flushed, so there is nothing to write.
func (e *Engine[K, V]) Checkpoint(ctx context.Context) error {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	err := e.checkpointLocked(ctx)
	e.metrics.OnCheckpoint(time.Since(start), err)
	return err
}

func (e *Engine[K, V]) checkpointLocked(ctx context.Context) error {
	if e.active.Len() == 0 {
		snap := e.nextSnapshotLocked()
		e.active.Freeze(snap)
		e.active.Thaw()
		return nil
	}

	if err := e.rotateLocked(ctx); err != nil {
		return err
	}

	// The just-frozen table is now the standby; wait for its flush.
	for !e.standby.Mutable() && !e.standby.Flushed() {
		if e.flushErr != nil {
			err := e.flushErr
			e.flushErr = nil
			return err
		}
		e.cond.Wait()
	}
	if e.flushErr != nil {
		err := e.flushErr
		e.flushErr = nil
		return err
	}
	return nil
}

// rotateLocked swaps the table pair: waits for the previous flush, thaws the
// standby, freezes the active table, and hands the frozen one to the
// flusher.
func (e *Engine[K, V]) rotateLocked(ctx context.Context) error {
	for !e.standby.Mutable() {
		if e.standby.Flushed() {
			e.standby.Thaw()
			break
		}
		if !e.flushInFlight {
			// Either the engine just froze this table, or a previous flush
			// failed; (re)submit.
			if err := e.submitFlushLocked(ctx); err != nil {
				return err
			}
		}
		e.cond.Wait()
		if e.flushErr != nil {
			err := e.flushErr
			e.flushErr = nil
			return err
		}
	}

	snap := e.nextSnapshotLocked()
	records := e.active.Len()
	e.active.Freeze(snap)
	e.metrics.OnFreeze(records)
	e.log.Debug("table frozen",
		"table", e.active.Label(),
		"records", records,
		"snapshot", uint64(snap),
	)

	e.active, e.standby = e.standby, e.active

	if e.standby.Len() == 0 {
		// Born flushed; nothing for the flusher to do.
		return nil
	}
	return e.submitFlushLocked(ctx)
}

func (e *Engine[K, V]) nextSnapshotLocked() model.Snapshot {
	e.snapshot++
	return e.snapshot
}

// Close flushes remaining records and releases every resource: the flusher
// goroutine, run readers, and both table regions.
func (e *Engine[K, V]) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	// checkpointLocked releases the lock while waiting on the flusher, so a
	// racing Put can sneak records in; loop until the active table is
	// drained.
	var err error
	for {
		err = e.checkpointLocked(ctx)
		if err != nil || e.active.Len() == 0 {
			break
		}
	}
	e.closed = true
	readers := e.readers
	e.readers = nil
	e.mu.Unlock()

	// The drain above guarantees no flush is in flight, so the channel is
	// empty and closing it stops the flusher.
	close(e.flushCh)
	e.flushWg.Wait()
	closeRuns(readers)

	e.active.Close()
	e.standby.Close()

	e.log.InfoContext(ctx, "engine closed", "flush_error", err)
	return err
}
