package protocol

import (
	"sort"
	"sync"
	"time"
)

// Sample is one rolling observation for a protocol (spec §4.C). Bytes
// is the wire size (post-compression when Compressed is set);
// RawBytes is the pre-compression size, needed to compute a real
// compressedBytes/uncompressedBytes ratio rather than comparing a
// value against itself.
type Sample struct {
	EncodeTimeMs float64
	DecodeTimeMs float64
	Bytes        int
	RawBytes     int
	Compressed   bool
	Error        bool
	At           time.Time
}

// maxSamples bounds the ring buffer (spec §5: "1000 samples for protocol").
const maxSamples = 1000

// RollingMetrics accumulates samples for one protocol and derives the
// aggregate figures each time Recompute is called (by the manager's
// RecomputeAll or Summary); nothing in this package calls it on a timer.
type RollingMetrics struct {
	mu      sync.Mutex
	samples []Sample
}

func NewRollingMetrics() *RollingMetrics {
	return &RollingMetrics{samples: make([]Sample, 0, maxSamples)}
}

func (m *RollingMetrics) Record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}
}

// Summary is the derived, point-in-time view of a protocol's health.
type Summary struct {
	SampleCount       int
	MinEncodeMs       float64
	AvgEncodeMs       float64
	P95EncodeMs       float64
	P99EncodeMs       float64
	CompressionRatio  float64
	ThroughputBytesPS float64
	ErrorRate         float64
}

// Recompute derives a Summary from the current sample window.
func (m *RollingMetrics) Recompute() Summary {
	m.mu.Lock()
	samples := append([]Sample(nil), m.samples...)
	m.mu.Unlock()

	var sum Summary
	sum.SampleCount = len(samples)
	if len(samples) == 0 {
		return sum
	}

	encodeTimes := make([]float64, 0, len(samples))
	var totalEncode, totalBytes, compressedBytes, rawForRatio float64
	var errCount int
	var earliest, latest time.Time

	for i, s := range samples {
		encodeTimes = append(encodeTimes, s.EncodeTimeMs)
		totalEncode += s.EncodeTimeMs
		totalBytes += float64(s.Bytes)
		if s.Error {
			errCount++
		}
		if s.Compressed {
			compressedBytes += float64(s.Bytes)
			rawForRatio += float64(s.RawBytes)
		}
		if i == 0 || s.At.Before(earliest) {
			earliest = s.At
		}
		if i == 0 || s.At.After(latest) {
			latest = s.At
		}
	}

	sort.Float64s(encodeTimes)
	sum.MinEncodeMs = encodeTimes[0]
	sum.AvgEncodeMs = totalEncode / float64(len(samples))
	sum.P95EncodeMs = percentile(encodeTimes, 0.95)
	sum.P99EncodeMs = percentile(encodeTimes, 0.99)
	sum.ErrorRate = float64(errCount) / float64(len(samples))

	if rawForRatio > 0 {
		sum.CompressionRatio = compressedBytes / rawForRatio
	} else {
		sum.CompressionRatio = 1.0
	}

	span := latest.Sub(earliest).Seconds()
	if span > 0 {
		sum.ThroughputBytesPS = totalBytes / span
	}

	return sum
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
