// ABOUTME: Error taxonomy for the messaging core.
// ABOUTME: Typed outcomes map to banners or inline message states, never panics.

package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core.
var (
	// ErrAuthRequired means there is no valid bearer token. Surfaced as a
	// login prompt; never retried automatically.
	ErrAuthRequired = errors.New("authentication required")

	// ErrTransportDisconnected means the realtime channel is down. Intent
	// is queued and recovers on reconnect.
	ErrTransportDisconnected = errors.New("transport disconnected")

	// ErrDuplicateSuppressed marks a push event discarded by the
	// reconciliation engine. Log-only, never user-visible.
	ErrDuplicateSuppressed = errors.New("duplicate message suppressed")

	// ErrSessionClosed is returned for operations against a session the
	// server reports as closed or archived.
	ErrSessionClosed = errors.New("session closed")
)

// NetworkError wraps a transient transport-level failure of a gateway call.
// Retryable by explicit user action.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError wraps a non-2xx gateway response. Surfaced, not auto-retried.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error during %s: status %d", e.Op, e.Status)
}

// IsRetryable reports whether a failed operation may be retried by explicit
// user action. Auth failures want a new token, not a retry; server errors
// are surfaced as-is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrTransportDisconnected)
}
