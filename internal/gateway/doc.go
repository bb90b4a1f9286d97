// Package gateway implements the request/response operations against the
// storefront conversation backend: session create/resume, history fetch,
// message send, and session close.
//
// The gateway is stateless and safe to call concurrently for different
// sessions. Every call carries the bearer token explicitly. Send calls are
// never retried here; retry policy belongs to the screen controller, which
// must cooperate with transcript deduplication to avoid double delivery.
//
// Failures resolve to the typed outcomes of the chat package
// (ErrAuthRequired, NetworkError, ServerError) — nothing here panics into
// UI code paths.
package gateway
