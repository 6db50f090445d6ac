package model

// CircuitState is the reconnection scheduler's breaker state (spec §3, §4.F).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)
