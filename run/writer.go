package run

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lsmgo/model"
)

// WriterOptions configures a run writer.
type WriterOptions struct {
	// Compression selects the block codec. Defaults to zstd.
	Compression CompressionType

	// BlockRecords is the number of records per block.
	BlockRecords int
}

// Stats summarizes a finished run.
type Stats struct {
	Records      int
	Tombstones   int
	Blocks       int
	BytesWritten int64
}

// Writer streams records, in key order, into the run format. The caller owns
// the destination writer; Finish seals the run but does not close it.
type Writer[V any] struct {
	w     io.Writer
	codec RecordCodec[V]
	opts  WriterOptions

	snapshot   model.Snapshot
	block      []byte
	inBlock    int
	count      uint64
	offset     int64
	offsets    []uint64
	tombstones *roaring.Bitmap
	started    bool
	finished   bool
}

// NewWriter creates a run writer. snapshot is the snapshot the source table
// was frozen at.
func NewWriter[V any](w io.Writer, codec RecordCodec[V], snapshot model.Snapshot, optFns ...func(*WriterOptions)) *Writer[V] {
	opts := WriterOptions{
		Compression:  CompressionZstd,
		BlockRecords: DefaultBlockRecords,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BlockRecords <= 0 {
		opts.BlockRecords = DefaultBlockRecords
	}

	return &Writer[V]{
		w:          w,
		codec:      codec,
		opts:       opts,
		snapshot:   snapshot,
		block:      make([]byte, 0, opts.BlockRecords*codec.Size()),
		tombstones: roaring.New(),
	}
}

// Append adds the next record. Records must arrive in key order; the writer
// does not re-sort.
func (w *Writer[V]) Append(v *V, tombstone bool) error {
	if w.finished {
		return fmt.Errorf("run: append after finish")
	}
	if !w.started {
		if err := w.writeHeader(); err != nil {
			return err
		}
		w.started = true
	}

	if tombstone {
		if w.count > uint64(^uint32(0)) {
			return fmt.Errorf("run: record index overflows tombstone bitmap")
		}
		w.tombstones.Add(uint32(w.count))
	}

	n := len(w.block)
	w.block = w.block[:n+w.codec.Size()]
	w.codec.Encode(w.block[n:], v)
	w.count++
	w.inBlock++

	if w.inBlock == w.opts.BlockRecords {
		return w.flushBlock()
	}
	return nil
}

// Finish flushes the last block, writes the footer and trailer, and returns
// the run stats. The writer must not be used afterwards.
func (w *Writer[V]) Finish() (Stats, error) {
	if w.finished {
		return Stats{}, fmt.Errorf("run: finish twice")
	}
	if !w.started {
		if err := w.writeHeader(); err != nil {
			return Stats{}, err
		}
		w.started = true
	}

	if w.inBlock > 0 {
		if err := w.flushBlock(); err != nil {
			return Stats{}, err
		}
	}

	footerOff := w.offset
	if err := w.writeFooter(); err != nil {
		return Stats{}, err
	}
	if err := w.writeTrailer(footerOff); err != nil {
		return Stats{}, err
	}

	w.finished = true
	return Stats{
		Records:      int(w.count),
		Tombstones:   int(w.tombstones.GetCardinality()),
		Blocks:       len(w.offsets),
		BytesWritten: w.offset,
	}, nil
}

func (w *Writer[V]) writeHeader() error {
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], magic)
	binary.LittleEndian.PutUint16(hdr[4:], version)
	hdr[6] = uint8(w.opts.Compression)
	// hdr[7] reserved
	binary.LittleEndian.PutUint32(hdr[8:], uint32(w.codec.Size()))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(w.opts.BlockRecords))
	binary.LittleEndian.PutUint64(hdr[16:], uint64(w.snapshot))
	// hdr[24:32] reserved
	return w.write(hdr[:])
}

func (w *Writer[V]) flushBlock() error {
	payload := w.block
	compressed, usedCompression, err := compressBlock(payload, w.opts.Compression)
	if err != nil {
		return err
	}

	var frame [blockFrameSize]byte
	binary.LittleEndian.PutUint32(frame[0:], uint32(len(payload)))
	if usedCompression {
		binary.LittleEndian.PutUint32(frame[4:], uint32(len(compressed)))
		binary.LittleEndian.PutUint32(frame[8:], checksum(compressed))
		payload = compressed
	} else {
		binary.LittleEndian.PutUint32(frame[4:], 0)
		binary.LittleEndian.PutUint32(frame[8:], checksum(payload))
	}

	w.offsets = append(w.offsets, uint64(w.offset))
	if err := w.write(frame[:]); err != nil {
		return err
	}
	if err := w.write(payload); err != nil {
		return err
	}

	w.block = w.block[:0]
	w.inBlock = 0
	return nil
}

func (w *Writer[V]) writeFooter() error {
	tomb, err := w.tombstones.MarshalBinary()
	if err != nil {
		return fmt.Errorf("run: marshal tombstones: %w", err)
	}

	footer := make([]byte, 0, 8+4+len(tomb)+4+8*len(w.offsets))
	footer = binary.LittleEndian.AppendUint64(footer, w.count)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(len(tomb)))
	footer = append(footer, tomb...)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(len(w.offsets)))
	for _, off := range w.offsets {
		footer = binary.LittleEndian.AppendUint64(footer, off)
	}

	return w.write(footer)
}

func (w *Writer[V]) writeTrailer(footerOff int64) error {
	footerLen := w.offset - footerOff

	var tr [trailerSize]byte
	binary.LittleEndian.PutUint64(tr[0:], uint64(footerOff))
	binary.LittleEndian.PutUint32(tr[8:], uint32(footerLen))
	binary.LittleEndian.PutUint32(tr[12:], magic)
	return w.write(tr[:])
}

func (w *Writer[V]) write(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return err
}
