// Package typing coordinates the two halves of the typing indicator: a
// debounced "I am typing" broadcast for local input, and an auto-expiring
// display of the counter-party's indicator. Expiry is mandatory, not an
// optimization — the stop signal is not guaranteed to arrive.
package typing
