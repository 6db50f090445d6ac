package subscription

import "github.com/wtyler2505/RoverMissionControl-sub013/internal/model"

// basePayloadBytes is the fixed per-point overhead spec §4.J adds
// before the type-specific payload size.
const basePayloadBytes = 50

// ResourceEstimate is the {memory, cpu, network} triple spec §4.J computes
// per subscription.
type ResourceEstimate struct {
	MemoryBytes int64
	CPUPercent  float64
	NetworkMbps float64
}

// typePayloadBytes is the type-specific payload size spec §4.J's
// formula folds into the per-point estimate.
func typePayloadBytes(t model.DataType, dimensions []int) int {
	switch t {
	case model.DataNumeric, model.DataBoolean:
		return 8
	case model.DataString:
		return 64
	case model.DataObject:
		return 128
	case model.DataVector, model.DataMatrix:
		n := 1
		for _, d := range dimensions {
			n *= d
		}
		if n <= 0 {
			n = 1
		}
		return n * 8
	default:
		return 8
	}
}

// EstimateResources implements spec §4.J: "sample rate × estimated
// bytes per point (base 50 + type-specific payload size) × buffer
// size for memory, 0.01% CPU per Hz capped at 50%, and
// bits-per-second → Mbps for network."
func EstimateResources(cfg model.StreamConfig) ResourceEstimate {
	perPoint := int64(basePayloadBytes + typePayloadBytes(cfg.DataType, cfg.Dimensions))
	bufferSize := int64(cfg.BufferSize)
	if bufferSize <= 0 {
		bufferSize = 1
	}

	memory := int64(cfg.SampleRateHz) * perPoint * bufferSize

	cpu := cfg.SampleRateHz * 0.01
	if cpu > 50 {
		cpu = 50
	}

	bitsPerSecond := cfg.SampleRateHz * float64(perPoint) * 8
	networkMbps := bitsPerSecond / 1_000_000

	return ResourceEstimate{MemoryBytes: memory, CPUPercent: cpu, NetworkMbps: networkMbps}
}
