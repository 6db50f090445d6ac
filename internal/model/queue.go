package model

import "time"

// QueuedMessage is one entry in the outbound priority queue (spec §3).
type QueuedMessage struct {
	ID         string
	Type       MessageType
	Payload    any
	Priority   Priority
	Timestamp  time.Time
	RetryCount int
	MaxRetries int
	ExpiresAt  *time.Time
}

// Expired reports whether the message has passed its expiry at t.
func (m QueuedMessage) Expired(t time.Time) bool {
	return m.ExpiresAt != nil && t.After(*m.ExpiresAt)
}
