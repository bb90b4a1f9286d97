// Package chat defines the shared domain types for the conversational
// messaging core: sessions, transcript messages, conversation kinds, and
// the error taxonomy used across the gateway, transport, and controllers.
//
// The package is intentionally free of I/O so that every other package can
// depend on it without pulling in network or UI concerns.
package chat
