package run

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the block compression codec.
type CompressionType uint8

const (
	// CompressionNone stores blocks raw.
	CompressionNone CompressionType = 0
	// CompressionLZ4 is fast with a modest ratio; good default for runs that
	// are compacted away quickly.
	CompressionLZ4 CompressionType = 1
	// CompressionZstd trades CPU for a better ratio; good for long-lived
	// runs.
	CompressionZstd CompressionType = 2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// zstd encoder/decoder pools: the encoders are expensive to build and safe
// to reuse via EncodeAll/DecodeAll.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compressBlock compresses data with the given codec. Returns the compressed
// bytes and true, or nil and false when compression does not pay (ratio
// above 0.9) and the block should be stored raw.
func compressBlock(data []byte, compression CompressionType) ([]byte, bool, error) {
	if compression == CompressionNone || len(data) == 0 {
		return nil, false, nil
	}

	var compressed []byte
	switch compression {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var c lz4.Compressor
		n, err := c.CompressBlock(data, buf)
		if err != nil {
			return nil, false, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible.
			return nil, false, nil
		}
		compressed = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	default:
		return nil, false, fmt.Errorf("unknown compression type %d", compression)
	}

	if float64(len(compressed)) > float64(len(data))*0.9 {
		return nil, false, nil
	}
	return compressed, true, nil
}

// decompressBlock reverses compressBlock into a buffer of uncompressedSize
// bytes.
func decompressBlock(data []byte, uncompressedSize int, compression CompressionType) ([]byte, error) {
	switch compression {
	case CompressionLZ4:
		buf := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(data, buf)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", n, uncompressedSize)
		}
		return buf, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		buf, err := dec.DecodeAll(data, make([]byte, 0, uncompressedSize))
		putZstdDecoder(dec)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(buf) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(buf), uncompressedSize)
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("unknown compression type %d", compression)
	}
}
