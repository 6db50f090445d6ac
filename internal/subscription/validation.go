// Package subscription implements the telemetry subscription manager
// of spec §4.J: validation rule chain, resource estimation, batch
// subscribe, per-stream processing (decimation, stats), and the
// per-subscription lifecycle state machine.
package subscription

import (
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
)

// StatusCode is the response status vocabulary spec §6 defines for a
// subscribe response: 200/201/202/206 success flavors, 4xx rejections,
// 5xx server errors.
type StatusCode int

const (
	StatusOK                 StatusCode = 200
	StatusCreated            StatusCode = 201
	StatusAccepted           StatusCode = 202
	StatusPartial            StatusCode = 206
	StatusBadRequest         StatusCode = 400
	StatusUnauthorized       StatusCode = 401
	StatusForbidden          StatusCode = 403
	StatusNotFound           StatusCode = 404
	StatusConflict           StatusCode = 409
	StatusRateLimited        StatusCode = 429
	StatusInternalError      StatusCode = 500
	StatusNotImplemented     StatusCode = 501
	StatusServiceUnavailable StatusCode = 503
	StatusGatewayTimeout     StatusCode = 504
)

// WarningCode enumerates the validator's machine-readable warning
// vocabulary (spec §8 S6: "a warning FREQUENCY_CAPPED").
type WarningCode string

const (
	WarningFrequencyCapped WarningCode = "FREQUENCY_CAPPED"
	WarningBufferCapped    WarningCode = "BUFFER_SIZE_CAPPED"
)

// Warning pairs a machine-readable code with a human-readable message.
type Warning struct {
	Code    WarningCode
	Message string
}

// GrantedFrequency reports what sample rate was actually granted after
// validator modifications are applied (spec §8 S6:
// "granted.frequency.actualHz=200").
type GrantedFrequency struct {
	RequestedHz float64
	ActualHz    float64
	Capped      bool
}

// GrantedBuffer reports what buffer size was actually granted.
type GrantedBuffer struct {
	RequestedSize int
	ActualSize    int
	Capped        bool
}

// Granted is the "what you actually got" counterpart to the request,
// reported alongside Status and Warnings.
type Granted struct {
	Frequency GrantedFrequency
	Buffer    GrantedBuffer
}

// ValidationResult is one rule's verdict (spec §4.J), merged by
// Validate into the subscribe response spec §6 describes: a status
// code, enumerated warnings, and what was actually granted.
type ValidationResult struct {
	Valid                  bool
	Status                 StatusCode
	Errors                 []string
	Warnings               []Warning
	Modifications          map[string]any
	Granted                Granted
	EstimatedResourceUsage *ResourceEstimate
}

// Rule is one link in the validation chain.
type Rule func(req SubscribeRequest, caps Capabilities) ValidationResult

// Capabilities is the negotiated channel/protocol capability set a
// subscribe request is checked against.
type Capabilities struct {
	Permissions      map[string]bool
	MaxSampleRateHz  float64
	MaxBatchSize     int
	SupportedTypes   map[model.DataType]bool
	SupportedFilters map[string]bool
	SupportedProtocols map[model.Protocol]bool
}

// SubscribeRequest is the caller-supplied intent to subscribe.
type SubscribeRequest struct {
	StreamID     string
	Config       model.StreamConfig
	Filters      []model.Filter
	QoS          model.QoS
	Lifetime     model.Lifetime
	Protocol     model.Protocol
	Permission   string
}

// permissionRule rejects a request the caller isn't authorized for.
func permissionRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	if req.Permission == "" {
		return ValidationResult{Valid: true}
	}
	if !caps.Permissions[req.Permission] {
		return ValidationResult{Valid: false, Status: StatusForbidden, Errors: []string{"permission denied: " + req.Permission}}
	}
	return ValidationResult{Valid: true}
}

// channelCapabilityRule rejects data types the channel doesn't support.
func channelCapabilityRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	if caps.SupportedTypes != nil && !caps.SupportedTypes[req.Config.DataType] {
		return ValidationResult{Valid: false, Status: StatusBadRequest, Errors: []string{"unsupported data type: " + string(req.Config.DataType)}}
	}
	return ValidationResult{Valid: true}
}

// protocolCompatibilityRule rejects an unsupported wire protocol.
func protocolCompatibilityRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	if caps.SupportedProtocols != nil && !caps.SupportedProtocols[req.Protocol] {
		return ValidationResult{Valid: false, Status: StatusBadRequest, Errors: []string{"unsupported protocol: " + string(req.Protocol)}}
	}
	return ValidationResult{Valid: true}
}

// frequencyRule clamps the requested sample rate to the channel's
// ceiling rather than rejecting outright (a "modification"); the
// request still succeeds with status 200 (spec §8 S6).
func frequencyRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	if caps.MaxSampleRateHz <= 0 || req.Config.SampleRateHz <= caps.MaxSampleRateHz {
		return ValidationResult{Valid: true}
	}
	return ValidationResult{
		Valid:         true,
		Status:        StatusOK,
		Warnings:      []Warning{{Code: WarningFrequencyCapped, Message: "sample rate clamped to channel maximum"}},
		Modifications: map[string]any{"sampleRateHz": caps.MaxSampleRateHz},
		Granted: Granted{Frequency: GrantedFrequency{
			RequestedHz: req.Config.SampleRateHz,
			ActualHz:    caps.MaxSampleRateHz,
			Capped:      true,
		}},
	}
}

// batchSizeRule clamps buffer size to the channel's maximum batch size.
func batchSizeRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	if caps.MaxBatchSize <= 0 || req.Config.BufferSize <= caps.MaxBatchSize {
		return ValidationResult{Valid: true}
	}
	return ValidationResult{
		Valid:         true,
		Status:        StatusOK,
		Warnings:      []Warning{{Code: WarningBufferCapped, Message: "buffer size clamped to channel maximum"}},
		Modifications: map[string]any{"bufferSize": caps.MaxBatchSize},
		Granted: Granted{Buffer: GrantedBuffer{
			RequestedSize: req.Config.BufferSize,
			ActualSize:    caps.MaxBatchSize,
			Capped:        true,
		}},
	}
}

// filterTypeRule rejects filter operators the channel can't evaluate.
func filterTypeRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	if caps.SupportedFilters == nil {
		return ValidationResult{Valid: true}
	}
	var errs []string
	for _, f := range req.Filters {
		if !caps.SupportedFilters[f.Operator] {
			errs = append(errs, "unsupported filter operator: "+f.Operator)
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Status: StatusBadRequest, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

// resourceEstimateRule computes and attaches the resource estimate;
// never itself invalidates the request (spec §4.J estimation formula).
func resourceEstimateRule(req SubscribeRequest, caps Capabilities) ValidationResult {
	est := EstimateResources(req.Config)
	return ValidationResult{Valid: true, EstimatedResourceUsage: &est}
}

// DuplicateChecker reports whether a stream already has a live subscription.
type DuplicateChecker func(streamID string) bool

// duplicateRule rejects a second subscription to the same stream.
func duplicateRule(isDuplicate DuplicateChecker) Rule {
	return func(req SubscribeRequest, caps Capabilities) ValidationResult {
		if isDuplicate != nil && isDuplicate(req.StreamID) {
			return ValidationResult{Valid: false, Status: StatusConflict, Errors: []string{"duplicate subscription: " + req.StreamID}}
		}
		return ValidationResult{Valid: true}
	}
}

// DefaultChain is the rule order spec §4.J names: permissions, channel
// capabilities, protocol/frequency/batch-size compatibility, filter
// types, resource estimates, duplicate detection.
func DefaultChain(isDuplicate DuplicateChecker) []Rule {
	return []Rule{
		permissionRule,
		channelCapabilityRule,
		protocolCompatibilityRule,
		frequencyRule,
		batchSizeRule,
		filterTypeRule,
		resourceEstimateRule,
		duplicateRule(isDuplicate),
	}
}

// Validate runs req through the chain, merging every rule's verdict
// (spec §4.J: "Results are merged; field-level modifications are
// applied before routing").
func Validate(req SubscribeRequest, caps Capabilities, chain []Rule) ValidationResult {
	merged := ValidationResult{Valid: true, Status: StatusOK, Modifications: map[string]any{}}
	for _, rule := range chain {
		r := rule(req, caps)
		if !r.Valid {
			if merged.Valid {
				merged.Status = r.Status
			}
			merged.Valid = false
		}
		merged.Errors = append(merged.Errors, r.Errors...)
		merged.Warnings = append(merged.Warnings, r.Warnings...)
		for k, v := range r.Modifications {
			merged.Modifications[k] = v
		}
		if r.Granted.Frequency.Capped {
			merged.Granted.Frequency = r.Granted.Frequency
		}
		if r.Granted.Buffer.Capped {
			merged.Granted.Buffer = r.Granted.Buffer
		}
		if r.EstimatedResourceUsage != nil {
			merged.EstimatedResourceUsage = r.EstimatedResourceUsage
		}
	}
	return merged
}

// ApplyModifications folds merged field-level modifications back into
// a StreamConfig before it is used to create the subscription.
func ApplyModifications(cfg model.StreamConfig, mods map[string]any) model.StreamConfig {
	if v, ok := mods["sampleRateHz"]; ok {
		if f, ok := v.(float64); ok {
			cfg.SampleRateHz = f
		}
	}
	if v, ok := mods["bufferSize"]; ok {
		if i, ok := v.(int); ok {
			cfg.BufferSize = i
		}
	}
	return cfg
}
