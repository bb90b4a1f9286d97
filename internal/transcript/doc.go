// Package transcript implements the single source of transcript truth for
// one conversation session. Three producers feed it: optimistic local
// inserts, gateway send confirmations, and push-delivered room broadcasts.
// The engine merges them into one append-only, deduplicated sequence.
//
// # Ordering
//
// The transcript renders in append order and is never reordered by
// timestamp — server and client clocks are not assumed synchronized, so
// timestamps are display-only.
//
// # Deduplication
//
// Push deliveries are tested, in order, against (a) an exact server id
// match and (b) a narrow content-equality heuristic: exact text, matching
// user-vs-counterparty polarity, and creation times within a short window.
// A duplicate shown twice is an acceptable degraded outcome; a genuinely
// new message discarded is not, so the heuristic stays narrow.
package transcript
