// Package room translates "this screen cares about session S of kind K"
// into join/leave frames on the shared transport, and re-asserts membership
// whenever connectivity or screen focus changes.
//
// A missed rejoin is silent data loss: push frames for the room simply stop
// arriving, with no client-visible error. The coordinator therefore joins
// redundantly on both reconnect and focus-regain; the server treats a
// repeated join as a no-op.
package room
