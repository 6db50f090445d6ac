package model

// DataType enumerates the declared shape of a telemetry stream's values.
type DataType string

const (
	DataNumeric DataType = "numeric"
	DataVector  DataType = "vector"
	DataMatrix  DataType = "matrix"
	DataString  DataType = "string"
	DataBoolean DataType = "boolean"
	DataObject  DataType = "object"
)

// OverflowStrategy is one of the six circular-buffer overflow policies.
type OverflowStrategy string

const (
	OverflowFIFO          OverflowStrategy = "fifo"
	OverflowDropOldest    OverflowStrategy = "drop_oldest"
	OverflowDropNewest    OverflowStrategy = "drop_newest"
	OverflowDownsample    OverflowStrategy = "downsample"
	OverflowPriorityBased OverflowStrategy = "priority_based"
	OverflowAdaptive      OverflowStrategy = "adaptive"
)

// FlushTrigger is one of the six independent flush conditions.
type FlushTrigger string

const (
	FlushTimeInterval    FlushTrigger = "time_interval"
	FlushBufferFull      FlushTrigger = "buffer_full"
	FlushDataCount       FlushTrigger = "data_count"
	FlushQualityThreshold FlushTrigger = "quality_threshold"
	FlushManual          FlushTrigger = "manual"
	FlushConnectionState FlushTrigger = "connection_state"
)

// StreamConfig declares a telemetry stream's shape and buffering hints
// (spec §3 "Telemetry stream config").
type StreamConfig struct {
	StreamID          string
	DataType          DataType
	BufferSize        int
	SampleRateHz      float64
	DecimationFactor   int
	Dimensions        []int
	MinValue          *float64
	MaxValue          *float64
	Units             string
}

// DataPoint is one sample ingested for a stream (spec §3).
type DataPoint struct {
	Timestamp int64
	Value     any
	Quality   *float64
	Metadata  map[string]any
}

// BufferConfig configures a per-stream circular buffer (spec §3).
type BufferConfig struct {
	StreamID            string
	WindowSizeMs        int
	MaxDataPoints        int
	OverflowStrategy     OverflowStrategy
	FlushTriggers        []FlushTrigger
	DownsampleFactor     int
	QualityThreshold     float64
	FlushIntervalMs      int
	FlushDataCount       int
	EnablePersistence    bool
	EnableStatistics     bool
	StatisticsIntervalMs int
}

// HasTrigger reports whether t is among the configured flush triggers.
func (c BufferConfig) HasTrigger(t FlushTrigger) bool {
	for _, x := range c.FlushTriggers {
		if x == t {
			return true
		}
	}
	return false
}
