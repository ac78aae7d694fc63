// Package apperr gives the error taxonomy used across the exchange client,
// agent channel, and reconciler a concrete type so callers can branch on
// category with errors.As instead of string matching.
package apperr

import "fmt"

// Kind enumerates the error categories every outward-facing call can fail
// with, independent of the underlying transport.
type Kind string

const (
	KindTransport      Kind = "transport"
	KindProtocol       Kind = "protocol"
	KindAuth           Kind = "auth"
	KindRateLimited    Kind = "rate_limited"
	KindBusinessReject Kind = "business_reject"
	KindTimeout        Kind = "timeout"
	KindShutdown       Kind = "shutdown"
	KindInvariant      Kind = "invariant"
)

// Error wraps an underlying cause with a Kind so callers can decide whether
// to retry, surface, or drop it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op in the given kind wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Retryable reports whether a failure of this kind should be retried by the
// caller with bounded backoff, per the propagation policy.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTransport, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// AgentDisconnected is returned to every in-flight request() awaiter when
// the socket drops out from under it.
var AgentDisconnected = New(KindTransport, "agent", fmt.Errorf("agent disconnected"))

// AgentShuttingDown is returned to in-flight awaiters on cooperative shutdown.
var AgentShuttingDown = New(KindShutdown, "agent", fmt.Errorf("agent shutting down"))
