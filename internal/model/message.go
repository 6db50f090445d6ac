// Package model holds the wire-level data types shared by every
// component (spec §3): messages, connection status, stream/buffer
// configuration, subscriptions, queued work, and alerts.
package model

import "time"

// MessageType enumerates the envelope's `type` field.
type MessageType string

const (
	MessageCommand      MessageType = "command"
	MessageTelemetry    MessageType = "telemetry"
	MessageStatus       MessageType = "status"
	MessageHeartbeat    MessageType = "heartbeat"
	MessageAuth         MessageType = "auth"
	MessageError        MessageType = "error"
	MessageNotification MessageType = "notification"
	MessageBinary       MessageType = "binary"
	MessageAlert        MessageType = "alert"
	MessageAlertAck     MessageType = "alert_ack"
	MessageAlertSync    MessageType = "alert_sync"
	MessageAlertBatch   MessageType = "alert_batch"
)

// ValidMessageTypes backs envelope validation.
var ValidMessageTypes = map[MessageType]bool{
	MessageCommand: true, MessageTelemetry: true, MessageStatus: true,
	MessageHeartbeat: true, MessageAuth: true, MessageError: true,
	MessageNotification: true, MessageBinary: true, MessageAlert: true,
	MessageAlertAck: true, MessageAlertSync: true, MessageAlertBatch: true,
}

// Priority orders outbound delivery; zero value is LOW.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) Valid() bool { return p >= PriorityLow && p <= PriorityCritical }

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Protocol identifies the wire serializer used for a message.
type Protocol string

const (
	ProtocolJSON        Protocol = "json"
	ProtocolMessagePack Protocol = "messagepack"
	ProtocolCBOR        Protocol = "cbor"
)

// Message is the wire protocol envelope (spec §3, §6).
type Message struct {
	ID           string      `json:"id" msgpack:"id" cbor:"id"`
	Type         MessageType `json:"type" msgpack:"type" cbor:"type"`
	Payload      any         `json:"payload" msgpack:"payload" cbor:"payload"`
	Timestamp    int64       `json:"timestamp" msgpack:"timestamp" cbor:"timestamp"`
	Protocol     Protocol    `json:"protocol" msgpack:"protocol" cbor:"protocol"`
	Compressed   bool        `json:"compressed" msgpack:"compressed" cbor:"compressed"`
	Acknowledged bool        `json:"acknowledged" msgpack:"acknowledged" cbor:"acknowledged"`
	Priority     *Priority   `json:"priority,omitempty" msgpack:"priority,omitempty" cbor:"priority,omitempty"`
	RetryCount   *int        `json:"retryCount,omitempty" msgpack:"retryCount,omitempty" cbor:"retryCount,omitempty"`
}

// NowMillis returns the monotonic-enough client time used to stamp
// messages at emission (spec §3 invariant: "monotonic client time").
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Validate enforces the envelope invariants spec §4.B requires of
// every decoded message: required fields present, type/priority within
// their enums.
func (m *Message) Validate() error {
	if m.ID == "" {
		return errInvalidEnvelope("missing id")
	}
	if !ValidMessageTypes[m.Type] {
		return errInvalidEnvelope("unknown type: " + string(m.Type))
	}
	if m.Priority != nil && !m.Priority.Valid() {
		return errInvalidEnvelope("priority out of range")
	}
	return nil
}

type envelopeError string

func (e envelopeError) Error() string { return string(e) }

func errInvalidEnvelope(reason string) error {
	return envelopeError("invalid envelope: " + reason)
}
