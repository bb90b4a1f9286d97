// Package auth supplies bearer tokens to the gateway and transport, and
// extracts the identity claims the realtime channel needs for
// register_identity. The client never verifies token signatures; the server
// does that. Claims are parsed only to learn the user id and to fail fast
// on an already-expired token.
package auth
