// Package transport maintains the single long-lived realtime connection to
// the storefront backend. One WebSocket carries every conversation kind;
// rooms scope what the server routes down it.
//
// # Lifecycle
//
// The client reconnects with capped exponential backoff. Exceeding the
// attempt budget parks it in StateOffline rather than retrying silently
// forever; a later Connect resets the budget. On every (re)connect the
// client re-announces the authenticated identity before reporting
// connected, because server-side routing of push frames keys off it.
//
// # Failure semantics
//
// Connection trouble is reported through handlers and error returns, never
// panics. "Not connected" is a normal state: Send fails fast with
// chat.ErrTransportDisconnected and callers queue intent instead of
// blocking.
//
// All server frames are dispatched from one reader goroutine, so handlers
// observe a serialized event stream.
package transport
