// Package compress provides the block compressors used for page payloads:
// LZ4 for the "fast" level and zstd for the "high" level.
package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses and expands page payload blocks.
// Implementations must be safe for concurrent use.
type Compressor interface {
	// Compress writes the compressed form of src into dst and returns the
	// number of bytes written. A return of 0 with a nil error means src is
	// incompressible (or would not fit in dst) and the caller should keep
	// the uncompressed form.
	Compress(src, dst []byte) (int, error)

	// Expand decompresses src into dst, which must have exactly the
	// expanded length.
	Expand(src, dst []byte) error
}

// LZ4 is the fast compressor (compression level 1).
type LZ4 struct{}

// Compress implements Compressor using LZ4 block compression.
func (LZ4) Compress(src, dst []byte) (int, error) {
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		// The only block-compression error is an undersized dst, which
		// means no gain over the raw payload.
		return 0, nil
	}
	return n, nil
}

// Expand implements Compressor using LZ4 block decompression.
func (LZ4) Expand(src, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return fmt.Errorf("lz4 expand: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("lz4 expand: got %d bytes, want %d", n, len(dst))
	}
	return nil
}

// Zstd encoder/decoder are shared; both are stateless for the
// EncodeAll/DecodeAll forms and safe for concurrent use.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		zstdDecoder, _ = zstd.NewReader(nil)
	})
}

// Zstd is the high compressor (compression level 2).
type Zstd struct{}

// Compress implements Compressor using zstd.
func (Zstd) Compress(src, dst []byte) (int, error) {
	zstdInit()
	out := zstdEncoder.EncodeAll(src, dst[:0])
	if len(out) > len(dst) {
		// Reallocated past dst: no gain worth keeping.
		return 0, nil
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return len(out), nil
}

// Expand implements Compressor using zstd.
func (Zstd) Expand(src, dst []byte) error {
	zstdInit()
	out, err := zstdDecoder.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("zstd expand: %w", err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("zstd expand: got %d bytes, want %d", len(out), len(dst))
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}
