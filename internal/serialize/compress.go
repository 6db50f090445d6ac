package serialize

import (
	"bytes"
	"fmt"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
	kflate "github.com/klauspost/compress/flate"
)

// CompressionThresholdBytes is the default floor below which
// compression is skipped (spec §4.B: "skipped when the payload is
// below a configurable threshold or already binary").
const CompressionThresholdBytes = 256

// Compressor streams payload bytes through a compression algorithm and
// reports the measured ratio, resolving the open question in spec §9:
// ratios are measured, never a placeholder constant.
type Compressor struct {
	Threshold int
}

func NewCompressor(threshold int) *Compressor {
	if threshold <= 0 {
		threshold = CompressionThresholdBytes
	}
	return &Compressor{Threshold: threshold}
}

// ShouldCompress reports whether payload is worth compressing, given
// its size and whether it is already known-binary (e.g. a previously
// compressed or inherently dense encoding).
func (c *Compressor) ShouldCompress(payload []byte, alreadyBinary bool) bool {
	return !alreadyBinary && len(payload) >= c.Threshold
}

// Compress applies algo and returns the compressed bytes plus the
// measured compressedBytes/uncompressedBytes ratio.
func (c *Compressor) Compress(algo CompressionType, payload []byte) (out []byte, ratio float64, err error) {
	var buf bytes.Buffer
	var w io.WriteCloser

	switch algo {
	case CompressionGzip:
		w = kgzip.NewWriter(&buf)
	case CompressionDeflate:
		fw, ferr := kflate.NewWriter(&buf, kflate.DefaultCompression)
		if ferr != nil {
			return nil, 0, fmt.Errorf("serialize: new flate writer: %w", ferr)
		}
		w = fw
	default:
		return payload, 1.0, nil
	}

	if _, err := w.Write(payload); err != nil {
		return nil, 0, fmt.Errorf("serialize: compress write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("serialize: compress close: %w", err)
	}

	out = buf.Bytes()
	if len(payload) == 0 {
		return out, 1.0, nil
	}
	return out, float64(len(out)) / float64(len(payload)), nil
}

// Decompress reverses Compress for the named algorithm.
func (c *Compressor) Decompress(algo CompressionType, payload []byte) ([]byte, error) {
	var r io.ReadCloser
	var err error

	switch algo {
	case CompressionGzip:
		r, err = kgzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("serialize: new gzip reader: %w", err)
		}
	case CompressionDeflate:
		r = kflate.NewReader(bytes.NewReader(payload))
	default:
		return payload, nil
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("serialize: decompress read: %w", err)
	}
	return out, nil
}
