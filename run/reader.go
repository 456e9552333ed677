package run

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lsmgo/blobstore"
	"github.com/hupe1980/lsmgo/model"
)

// Reader serves records from a sealed run blob. Blocks are fetched and
// decompressed on demand; the most recently decoded block is kept so the
// binary-search access pattern of point lookups stays cheap.
//
// Safe for concurrent use.
type Reader[V any] struct {
	blob  blobstore.Blob
	codec RecordCodec[V]

	compression  CompressionType
	recordSize   int
	blockRecords int
	count        uint64
	snapshot     model.Snapshot
	offsets      []uint64
	footerOff    int64
	tombstones   *roaring.Bitmap

	mu        sync.Mutex
	lastIdx   int
	lastBlock []byte
}

// NewReader opens a run blob and loads its footer. The reader borrows the
// blob; closing the reader closes the blob.
func NewReader[V any](blob blobstore.Blob, codec RecordCodec[V]) (*Reader[V], error) {
	r := &Reader[V]{
		blob:    blob,
		codec:   codec,
		lastIdx: -1,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader[V]) load() error {
	size := r.blob.Size()
	if size < headerSize+trailerSize {
		return ErrCorrupt
	}

	var tr [trailerSize]byte
	if _, err := r.blob.ReadAt(tr[:], size-trailerSize); err != nil && err != io.EOF {
		return err
	}
	if binary.LittleEndian.Uint32(tr[12:]) != magic {
		return ErrBadMagic
	}
	r.footerOff = int64(binary.LittleEndian.Uint64(tr[0:]))
	footerLen := int64(binary.LittleEndian.Uint32(tr[8:]))
	if r.footerOff < headerSize || r.footerOff+footerLen+trailerSize != size {
		return ErrCorrupt
	}

	var hdr [headerSize]byte
	if _, err := r.blob.ReadAt(hdr[:], 0); err != nil && err != io.EOF {
		return err
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != magic {
		return ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != version {
		return fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	r.compression = CompressionType(hdr[6])
	r.recordSize = int(binary.LittleEndian.Uint32(hdr[8:]))
	r.blockRecords = int(binary.LittleEndian.Uint32(hdr[12:]))
	r.snapshot = model.Snapshot(binary.LittleEndian.Uint64(hdr[16:]))

	if r.recordSize != r.codec.Size() {
		return fmt.Errorf("%w: record size %d, codec wants %d", ErrCorrupt, r.recordSize, r.codec.Size())
	}
	if r.blockRecords <= 0 {
		return ErrCorrupt
	}

	footer := make([]byte, footerLen)
	if _, err := r.blob.ReadAt(footer, r.footerOff); err != nil && err != io.EOF {
		return err
	}

	if len(footer) < 12 {
		return ErrCorrupt
	}
	r.count = binary.LittleEndian.Uint64(footer[0:])
	tombLen := int(binary.LittleEndian.Uint32(footer[8:]))
	rest := footer[12:]
	if len(rest) < tombLen {
		return ErrCorrupt
	}

	r.tombstones = roaring.New()
	if tombLen > 0 {
		if err := r.tombstones.UnmarshalBinary(rest[:tombLen]); err != nil {
			return fmt.Errorf("%w: tombstone bitmap: %v", ErrCorrupt, err)
		}
	}
	rest = rest[tombLen:]

	if len(rest) < 4 {
		return ErrCorrupt
	}
	blockCount := int(binary.LittleEndian.Uint32(rest[0:]))
	rest = rest[4:]
	if len(rest) != 8*blockCount {
		return ErrCorrupt
	}
	r.offsets = make([]uint64, blockCount)
	for i := range r.offsets {
		r.offsets[i] = binary.LittleEndian.Uint64(rest[8*i:])
	}

	wantBlocks := 0
	if r.count > 0 {
		wantBlocks = (int(r.count) + r.blockRecords - 1) / r.blockRecords
	}
	if blockCount != wantBlocks {
		return ErrCorrupt
	}

	return nil
}

// Close closes the underlying blob.
func (r *Reader[V]) Close() error {
	return r.blob.Close()
}

// RecordCount returns the number of records in the run.
func (r *Reader[V]) RecordCount() int {
	return int(r.count)
}

// Snapshot returns the snapshot the source table was frozen at.
func (r *Reader[V]) Snapshot() model.Snapshot {
	return r.snapshot
}

// Compression returns the block codec the run was written with.
func (r *Reader[V]) Compression() CompressionType {
	return r.compression
}

// Tombstones returns the set of record indexes that are tombstones. The
// bitmap is shared; callers must not mutate it.
func (r *Reader[V]) Tombstones() *roaring.Bitmap {
	return r.tombstones
}

// IsTombstone reports whether record i is a tombstone.
func (r *Reader[V]) IsTombstone(i int) bool {
	return r.tombstones.Contains(uint32(i))
}

// Record decodes record i into v.
func (r *Reader[V]) Record(i int, v *V) error {
	if i < 0 || uint64(i) >= r.count {
		return fmt.Errorf("run: record %d out of range [0,%d)", i, r.count)
	}

	blockIdx := i / r.blockRecords
	inBlock := i % r.blockRecords

	r.mu.Lock()
	defer r.mu.Unlock()

	block, err := r.blockLocked(blockIdx)
	if err != nil {
		return err
	}

	off := inBlock * r.recordSize
	r.codec.Decode(block[off:off+r.recordSize], v)
	return nil
}

// ReadAll decodes every record, in key order.
func (r *Reader[V]) ReadAll() ([]V, error) {
	out := make([]V, r.count)
	for i := range out {
		if err := r.Record(i, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reader[V]) blockLocked(blockIdx int) ([]byte, error) {
	if blockIdx == r.lastIdx {
		return r.lastBlock, nil
	}

	start := int64(r.offsets[blockIdx])
	var end int64
	if blockIdx+1 < len(r.offsets) {
		end = int64(r.offsets[blockIdx+1])
	} else {
		end = r.footerOff
	}

	raw := make([]byte, end-start)
	if _, err := r.blob.ReadAt(raw, start); err != nil && err != io.EOF {
		return nil, err
	}
	if len(raw) < blockFrameSize {
		return nil, ErrCorrupt
	}

	uncompressedSize := int(binary.LittleEndian.Uint32(raw[0:]))
	compressedSize := int(binary.LittleEndian.Uint32(raw[4:]))
	sum := binary.LittleEndian.Uint32(raw[8:])
	payload := raw[blockFrameSize:]

	if compressedSize == 0 {
		if len(payload) != uncompressedSize {
			return nil, ErrCorrupt
		}
	} else if len(payload) != compressedSize {
		return nil, ErrCorrupt
	}

	if checksum(payload) != sum {
		return nil, ErrChecksum
	}

	block := payload
	if compressedSize != 0 {
		var err error
		block, err = decompressBlock(payload, uncompressedSize, r.compression)
		if err != nil {
			return nil, err
		}
	}

	r.lastIdx = blockIdx
	r.lastBlock = block
	return block, nil
}
