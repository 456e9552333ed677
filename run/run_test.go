package run

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lsmgo/blobstore"
)

type entry struct {
	Key    uint64
	Amount uint64
}

type entryCodec struct{}

func (entryCodec) Size() int { return 16 }

func (entryCodec) Encode(dst []byte, e *entry) {
	binary.LittleEndian.PutUint64(dst[0:], e.Key)
	binary.LittleEndian.PutUint64(dst[8:], e.Amount)
}

func (entryCodec) Decode(src []byte, e *entry) {
	e.Key = binary.LittleEndian.Uint64(src[0:])
	e.Amount = binary.LittleEndian.Uint64(src[8:])
}

func writeRun(t *testing.T, entries []entry, tombstone func(int) bool, optFns ...func(*WriterOptions)) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := NewWriter[entry](&buf, entryCodec{}, 42, optFns...)
	for i := range entries {
		require.NoError(t, w.Append(&entries[i], tombstone != nil && tombstone(i)))
	}
	stats, err := w.Finish()
	require.NoError(t, err)
	assert.Equal(t, len(entries), stats.Records)
	assert.Equal(t, int64(buf.Len()), stats.BytesWritten)
	return buf.Bytes()
}

func openRun(t *testing.T, data []byte) *Reader[entry] {
	t.Helper()

	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "r", data))
	blob, err := store.Open(context.Background(), "r")
	require.NoError(t, err)

	r, err := NewReader[entry](blob, entryCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func sequential(n int) []entry {
	entries := make([]entry, n)
	for i := range entries {
		entries[i] = entry{Key: uint64(i), Amount: uint64(i) * 10}
	}
	return entries
}

func TestRun_RoundTrip(t *testing.T) {
	for _, compression := range []CompressionType{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			entries := sequential(1000)
			data := writeRun(t, entries, nil, func(o *WriterOptions) {
				o.Compression = compression
				o.BlockRecords = 64
			})

			r := openRun(t, data)
			assert.Equal(t, 1000, r.RecordCount())
			assert.EqualValues(t, 42, r.Snapshot())
			assert.Equal(t, compression, r.Compression())

			got, err := r.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, entries, got)
		})
	}
}

func TestRun_PointReads(t *testing.T) {
	entries := sequential(300)
	data := writeRun(t, entries, nil, func(o *WriterOptions) {
		o.BlockRecords = 32
	})
	r := openRun(t, data)

	// Out-of-order access across block boundaries.
	for _, i := range []int{299, 0, 31, 32, 150, 33, 299} {
		var e entry
		require.NoError(t, r.Record(i, &e))
		assert.Equal(t, entries[i], e)
	}

	var e entry
	assert.Error(t, r.Record(300, &e))
	assert.Error(t, r.Record(-1, &e))
}

func TestRun_Tombstones(t *testing.T) {
	entries := sequential(100)
	data := writeRun(t, entries, func(i int) bool { return i%7 == 0 })
	r := openRun(t, data)

	for i := 0; i < 100; i++ {
		assert.Equal(t, i%7 == 0, r.IsTombstone(i))
	}
	assert.EqualValues(t, 15, r.Tombstones().GetCardinality())
}

func TestRun_Empty(t *testing.T) {
	data := writeRun(t, nil, nil)
	r := openRun(t, data)

	assert.Equal(t, 0, r.RecordCount())
	got, err := r.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRun_ChecksumFailure(t *testing.T) {
	entries := sequential(10)
	data := writeRun(t, entries, nil, func(o *WriterOptions) {
		o.Compression = CompressionNone
	})

	// Flip a byte inside the first block's payload.
	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[headerSize+blockFrameSize+3] ^= 0xff

	r := openRun(t, corrupted)
	var e entry
	assert.ErrorIs(t, r.Record(0, &e), ErrChecksum)
}

func TestRun_BadMagic(t *testing.T) {
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "junk", bytes.Repeat([]byte{0xab}, 128)))
	blob, err := store.Open(context.Background(), "junk")
	require.NoError(t, err)
	defer blob.Close()

	_, err = NewReader[entry](blob, entryCodec{})
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestRun_Truncated(t *testing.T) {
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "short", []byte{1, 2, 3}))
	blob, err := store.Open(context.Background(), "short")
	require.NoError(t, err)
	defer blob.Close()

	_, err = NewReader[entry](blob, entryCodec{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRun_AppendAfterFinish(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter[entry](&buf, entryCodec{}, 1)
	_, err := w.Finish()
	require.NoError(t, err)

	e := entry{Key: 1}
	assert.Error(t, w.Append(&e, false))
	_, err = w.Finish()
	assert.Error(t, err)
}
