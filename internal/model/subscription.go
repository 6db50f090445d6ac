package model

import "time"

// Reliability is the QoS delivery guarantee for a hierarchical subscription.
type Reliability string

const (
	AtMostOnce  Reliability = "at-most-once"
	AtLeastOnce Reliability = "at-least-once"
	ExactlyOnce Reliability = "exactly-once"
)

// SubState is the per-subscription lifecycle state (spec §4.J).
type SubState string

const (
	SubCreated   SubState = "created"
	SubActive    SubState = "active"
	SubPaused    SubState = "paused"
	SubCancelled SubState = "cancelled"
	SubExpired   SubState = "expired"
	SubError     SubState = "error"
)

// QoS captures the hierarchical subscription's quality-of-service profile.
type QoS struct {
	Reliability   Reliability
	Ordered       bool
	Durable       bool
	LatencyTarget time.Duration
	BufferSize    int
}

// Lifetime captures TTL/renewal semantics.
type Lifetime struct {
	TTL         time.Duration
	ExpiresAt   time.Time
	AutoRenew   bool
	RenewInterval time.Duration
}

// Subscription is the owning record for one stream's subscription
// (spec §3 "Subscription").
type Subscription struct {
	StreamID       string
	WireSubID      string
	Config         StreamConfig
	State          SubState
	CreatedAt      time.Time
	LastActivity   time.Time

	// Hierarchical extensions.
	Filters      []Filter
	QoS          QoS
	Lifetime     Lifetime
	Dependencies []string
	GroupID      string
}

// Filter is a predicate applied to a stream before ingestion.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Group is a named collection of subscriptions managed together.
type Group struct {
	ID            string
	SubscriptionIDs []string
}
