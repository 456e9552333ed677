package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/lsmgo/manifest"
	"github.com/hupe1980/lsmgo/model"
	"github.com/hupe1980/lsmgo/resource"
	"github.com/hupe1980/lsmgo/run"
	"github.com/hupe1980/lsmgo/table"
)

// flushJob is one frozen table on its way to becoming a run.
type flushJob[K, V any] struct {
	frozen *table.Memory[K, V]
	ref    model.RunRef
}

// flushLoop is the flusher: a single long-lived goroutine draining flush
// jobs. One goroutine is exactly the concurrency the table pair admits —
// there is never more than one frozen table waiting — so the hand-off is a
// channel of depth one, closed by Close after the last checkpoint drains.
func (e *Engine[K, V]) flushLoop() {
	defer e.flushWg.Done()

	for job := range e.flushCh {
		e.runFlush(job.frozen, job.ref)
	}
}

// submitFlushLocked reserves a run ID for the frozen standby and hands it to
// the flusher. Called with e.mu held.
func (e *Engine[K, V]) submitFlushLocked(ctx context.Context) error {
	frozen := e.standby
	ref := model.RunRef{ID: e.man.NextRunID, Level: 0}
	e.man.NextRunID++

	e.flushInFlight = true
	select {
	case e.flushCh <- flushJob[K, V]{frozen: frozen, ref: ref}:
		return nil
	case <-ctx.Done():
		e.flushInFlight = false
		return ctx.Err()
	}
}

// runFlush is the background flush job: write the run, commit the manifest,
// register the reader, and finally mark the table flushed — the token that
// lets the writer thaw it.
func (e *Engine[K, V]) runFlush(frozen *table.Memory[K, V], ref model.RunRef) {
	ctx := context.Background()
	start := time.Now()

	stats, err := e.writeRun(ctx, frozen, ref)

	var handle *runHandle[V]
	if err == nil {
		handle, err = e.openRun(ctx, manifest.RunInfo{
			ID:          ref.ID,
			Level:       ref.Level,
			Records:     stats.Records,
			Tombstones:  stats.Tombstones,
			SnapshotMin: frozen.SnapshotMin(),
		})
	}

	e.mu.Lock()
	e.flushInFlight = false

	if err == nil {
		e.man.Runs = append(e.man.Runs, handle.info)
		if frozen.SnapshotMin() > e.man.LastSnapshot {
			e.man.LastSnapshot = frozen.SnapshotMin()
		}
		if saveErr := e.mans.Save(ctx, e.man); saveErr != nil {
			e.man.Runs = e.man.Runs[:len(e.man.Runs)-1]
			err = fmt.Errorf("commit manifest: %w", saveErr)
		}
	}

	if err != nil {
		e.flushErr = err
		e.log.ErrorContext(ctx, "flush failed",
			"run", ref.String(),
			"table", frozen.Label(),
			"error", err,
		)
	} else {
		e.readers = append([]*runHandle[V]{handle}, e.readers...)
		frozen.MarkFlushed()
		e.log.InfoContext(ctx, "flush completed",
			"run", ref.String(),
			"table", frozen.Label(),
			"records", stats.Records,
			"tombstones", stats.Tombstones,
			"bytes", stats.BytesWritten,
			"snapshot", uint64(frozen.SnapshotMin()),
		)
	}

	// Observed before the broadcast so a waiter that wakes on flush
	// completion sees the flush already counted.
	e.metrics.OnFlush(time.Since(start), stats.Records, stats.BytesWritten, err)

	e.cond.Broadcast()
	e.mu.Unlock()

	if err != nil && handle != nil {
		_ = handle.reader.Close()
	}
}

// writeRun streams the frozen table into a run blob, rate-limited by the
// resource controller.
func (e *Engine[K, V]) writeRun(ctx context.Context, frozen *table.Memory[K, V], ref model.RunRef) (run.Stats, error) {
	if err := e.rc.AcquireFlushSlot(ctx); err != nil {
		return run.Stats{}, err
	}
	defer e.rc.ReleaseFlushSlot()

	blob, err := e.blobs.Create(ctx, ref.BlobName())
	if err != nil {
		return run.Stats{}, fmt.Errorf("create %s: %w", ref, err)
	}

	w := run.NewWriter(resource.NewRateLimitedWriter(ctx, blob, e.rc), e.codec, frozen.SnapshotMin(), func(o *run.WriterOptions) {
		o.Compression = e.opts.Compression
		o.BlockRecords = e.opts.BlockRecords
	})

	values := frozen.Values()
	for i := range values {
		if err := w.Append(&values[i], e.policy.IsTombstone(&values[i])); err != nil {
			_ = blob.Close()
			return run.Stats{}, err
		}
	}

	stats, err := w.Finish()
	if err != nil {
		_ = blob.Close()
		return stats, err
	}
	if err := blob.Sync(); err != nil {
		_ = blob.Close()
		return stats, err
	}
	if err := blob.Close(); err != nil {
		return stats, fmt.Errorf("seal %s: %w", ref, err)
	}
	return stats, nil
}

func (e *Engine[K, V]) openRun(ctx context.Context, info manifest.RunInfo) (*runHandle[V], error) {
	blob, err := e.blobs.Open(ctx, info.Ref().BlobName())
	if err != nil {
		return nil, fmt.Errorf("reopen %s: %w", info.Ref(), err)
	}
	reader, err := run.NewReader[V](blob, e.codec)
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("reopen %s: %w", info.Ref(), err)
	}
	return &runHandle[V]{info: info, reader: reader}, nil
}
