package model

import "time"

// AlertKind is the `kind` field of an Alert.
type AlertKind string

const (
	AlertNew    AlertKind = "new"
	AlertUpdate AlertKind = "update"
	AlertRemove AlertKind = "remove"
	AlertClear  AlertKind = "clear"
)

// AlertPriority orders alert delivery and batching decisions.
type AlertPriority string

const (
	AlertCritical AlertPriority = "critical"
	AlertHigh     AlertPriority = "high"
	AlertMedium   AlertPriority = "medium"
	AlertLow      AlertPriority = "low"
	AlertInfo     AlertPriority = "info"
)

// AlertData is the alert body (spec §3).
type AlertData struct {
	Title          string
	Message        string
	Source         string
	Action         string
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt *time.Time
	ExpiresAt      *time.Time
	Metadata       map[string]any
}

// Alert is the full alert envelope exchanged with mission control.
type Alert struct {
	ID        string
	Kind      AlertKind
	Priority  AlertPriority
	Timestamp time.Time
	Data      AlertData
	ClientID  string
	SyncID    string
	BatchID   string
}

// Acknowledgment is the client's record of having acked an alert.
type Acknowledgment struct {
	AlertID            string
	AcknowledgedBy     string
	AcknowledgedAt     time.Time
	ClientID           string
	SyncAcrossClients  bool
}

// SyncRequest is the outbound resync request (spec §4.K). RequestID
// correlates the eventual SyncResponse back to this request; the wire
// layer assigns it, not the alert pipeline.
type SyncRequest struct {
	RequestID         string
	LastSyncTimestamp time.Time
	Priorities        []AlertPriority
	IncludeAcknowledged bool
	MaxCount          int
}

// SyncResponse is the server's reply to a SyncRequest, echoing its
// RequestID.
type SyncResponse struct {
	RequestID    string
	Alerts       []Alert
	SyncTimestamp time.Time
	HasMore      bool
	TotalCount   int
}
