// Package dedupe provides a bounded insert-if-absent-with-TTL cache for
// tracking recently seen message keys. The reconciliation engine uses it to
// collapse duplicate push deliveries, and controllers use it as the
// rapid-send guard.
package dedupe
