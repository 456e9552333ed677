package engine

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lsmgo/blobstore"
	"github.com/hupe1980/lsmgo/run"
	"github.com/hupe1980/lsmgo/table"
)

// entry is the test record family: a ledger-style fixed-layout posting.
type entry struct {
	Key    uint64
	Amount uint64
	Flags  uint64
}

const flagTombstone = 1 << 0

func entryPolicy(capacity int) table.Policy[uint64, entry] {
	return table.Policy[uint64, entry]{
		Capacity: capacity,
		KeyOf:    func(e *entry) uint64 { return e.Key },
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		TombstoneFrom: func(k uint64) entry { return entry{Key: k, Flags: flagTombstone} },
		IsTombstone:   func(e *entry) bool { return e.Flags&flagTombstone != 0 },
	}
}

type entryCodec struct{}

func (entryCodec) Size() int { return 24 }

func (entryCodec) Encode(dst []byte, e *entry) {
	binary.LittleEndian.PutUint64(dst[0:], e.Key)
	binary.LittleEndian.PutUint64(dst[8:], e.Amount)
	binary.LittleEndian.PutUint64(dst[16:], e.Flags)
}

func (entryCodec) Decode(src []byte, e *entry) {
	e.Key = binary.LittleEndian.Uint64(src[0:])
	e.Amount = binary.LittleEndian.Uint64(src[8:])
	e.Flags = binary.LittleEndian.Uint64(src[16:])
}

func newTestEngine(t *testing.T, blobs blobstore.BlobStore, capacity int, optFns ...func(*Options)) *Engine[uint64, entry] {
	t.Helper()

	e, err := New[uint64, entry](context.Background(), entryPolicy(capacity), entryCodec{}, blobs, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = e.Close(context.Background())
	})
	return e
}

func TestEngine_PutGet(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, blobstore.NewMemoryStore(), 16)

	require.NoError(t, e.Put(ctx, entry{Key: 1, Amount: 100}))
	require.NoError(t, e.Put(ctx, entry{Key: 2, Amount: 200}))

	got, err := e.Get(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.Amount)

	_, err = e.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_UpdateLastWriterWins(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, blobstore.NewMemoryStore(), 16)

	require.NoError(t, e.Put(ctx, entry{Key: 7, Amount: 1}))
	require.NoError(t, e.Put(ctx, entry{Key: 7, Amount: 2}))
	require.NoError(t, e.Put(ctx, entry{Key: 7, Amount: 3}))

	got, err := e.Get(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Amount)
}

func TestEngine_Delete(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, blobstore.NewMemoryStore(), 16)

	require.NoError(t, e.Put(ctx, entry{Key: 4, Amount: 40}))
	require.NoError(t, e.Delete(ctx, 4))

	_, err := e.Get(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_RotationAndRunReads(t *testing.T) {
	ctx := context.Background()
	// Cache disabled so reads exercise the tables and runs.
	e := newTestEngine(t, blobstore.NewMemoryStore(), 8, WithCacheRecords(0))

	for i := 0; i < 50; i++ {
		require.NoError(t, e.Put(ctx, entry{Key: uint64(i % 20), Amount: uint64(i)}))
	}

	// Key k was last written at the largest i with i%20==k.
	for k := 0; k < 20; k++ {
		got, err := e.Get(ctx, uint64(k))
		require.NoError(t, err)
		want := uint64(k + 40)
		if k >= 10 {
			want = uint64(k + 20)
		}
		assert.EqualValues(t, want, got.Amount, "key %d", k)
	}
}

func TestEngine_DeleteAcrossRotation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, blobstore.NewMemoryStore(), 4, WithCacheRecords(0))

	require.NoError(t, e.Put(ctx, entry{Key: 9, Amount: 90}))
	require.NoError(t, e.Checkpoint(ctx)) // key 9 now lives in a run

	require.NoError(t, e.Delete(ctx, 9))
	_, err := e.Get(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	// The tombstone itself gets flushed too; still deleted afterwards.
	require.NoError(t, e.Checkpoint(ctx))
	_, err = e.Get(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_CheckpointEmpty(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, blobstore.NewMemoryStore(), 8)

	require.NoError(t, e.Checkpoint(ctx))
	require.NoError(t, e.Checkpoint(ctx))
}

func TestEngine_Reopen(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	e := newTestEngine(t, blobs, 8, WithCacheRecords(0))
	for i := 0; i < 20; i++ {
		require.NoError(t, e.Put(ctx, entry{Key: uint64(i), Amount: uint64(i) * 10}))
	}
	require.NoError(t, e.Close(ctx))

	e2 := newTestEngine(t, blobs, 8, WithCacheRecords(0))
	for i := 0; i < 20; i++ {
		got, err := e2.Get(ctx, uint64(i))
		require.NoError(t, err)
		assert.EqualValues(t, uint64(i)*10, got.Amount)
	}
}

func TestEngine_SnapshotsIncreaseAcrossReopen(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	e := newTestEngine(t, blobs, 4, WithCacheRecords(0))
	require.NoError(t, e.Put(ctx, entry{Key: 1, Amount: 1}))
	require.NoError(t, e.Checkpoint(ctx))

	e.mu.Lock()
	first := e.snapshot
	e.mu.Unlock()
	require.NoError(t, e.Close(ctx))

	e2 := newTestEngine(t, blobs, 4, WithCacheRecords(0))
	require.NoError(t, e2.Put(ctx, entry{Key: 2, Amount: 2}))
	require.NoError(t, e2.Checkpoint(ctx))

	e2.mu.Lock()
	second := e2.snapshot
	e2.mu.Unlock()
	assert.Greater(t, uint64(second), uint64(first))
}

func TestEngine_Closed(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, blobstore.NewMemoryStore(), 8)

	require.NoError(t, e.Close(ctx))

	assert.ErrorIs(t, e.Put(ctx, entry{Key: 1}), ErrClosed)
	_, err := e.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.Checkpoint(ctx), ErrClosed)
	assert.ErrorIs(t, e.Close(ctx), ErrClosed)
}

type countingMetrics struct {
	NoopMetricsObserver
	freezes atomic.Int64
	flushes atomic.Int64
}

func (m *countingMetrics) OnFreeze(int)                             { m.freezes.Add(1) }
func (m *countingMetrics) OnFlush(time.Duration, int, int64, error) { m.flushes.Add(1) }

func TestEngine_MetricsObserver(t *testing.T) {
	ctx := context.Background()
	metrics := &countingMetrics{}
	e := newTestEngine(t, blobstore.NewMemoryStore(), 4, WithMetrics(metrics))

	for i := 0; i < 9; i++ {
		require.NoError(t, e.Put(ctx, entry{Key: uint64(i)}))
	}
	require.NoError(t, e.Checkpoint(ctx))

	assert.EqualValues(t, 3, metrics.freezes.Load())
	assert.EqualValues(t, 3, metrics.flushes.Load())
}

func TestEngine_CompressionVariants(t *testing.T) {
	for _, c := range []run.CompressionType{run.CompressionNone, run.CompressionLZ4, run.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := context.Background()
			e := newTestEngine(t, blobstore.NewMemoryStore(), 8, WithCacheRecords(0), WithCompression(c))

			for i := 0; i < 24; i++ {
				require.NoError(t, e.Put(ctx, entry{Key: uint64(i), Amount: uint64(i)}))
			}
			require.NoError(t, e.Checkpoint(ctx))

			for i := 0; i < 24; i++ {
				got, err := e.Get(ctx, uint64(i))
				require.NoError(t, err)
				assert.EqualValues(t, uint64(i), got.Amount)
			}
		})
	}
}
