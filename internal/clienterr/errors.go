// Package clienterr defines the error taxonomy shared by every
// component of the telemetry client (spec §7).
package clienterr

import (
	"fmt"
	"time"
)

// Kind is an abstract error category. It is never a concrete Go error
// type on its own; every error surfaced by the client is a *Error
// carrying one of these kinds.
type Kind string

const (
	Connection     Kind = "connection"
	Authentication Kind = "authentication"
	Protocol       Kind = "protocol"
	Timeout        Kind = "timeout"
	Queue          Kind = "queue"
	Subscription   Kind = "subscription"
	Buffer         Kind = "buffer"
	Circuit        Kind = "circuit"
	Transport      Kind = "transport"
)

// Context carries the situational fields referenced in spec §7.
type Context struct {
	State     string
	Attempt   int
	StreamID  string
	Operation string
}

// Error is the single concrete error type used across the client.
type Error struct {
	Code        string
	Kind        Kind
	Recoverable bool
	Timestamp   time.Time
	Ctx         Context
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s[%s]", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the timestamp set to now.
func New(kind Kind, code string, recoverable bool, ctx Context, err error) *Error {
	return &Error{
		Code:        code,
		Kind:        kind,
		Recoverable: recoverable,
		Timestamp:   time.Now(),
		Ctx:         ctx,
		Err:         err,
	}
}

// Wrap is a convenience for the common "operation failed" path.
func Wrap(kind Kind, operation string, err error) *Error {
	return New(kind, string(kind)+"_error", kind != Authentication, Context{Operation: operation}, err)
}
