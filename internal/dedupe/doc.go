// Package dedupe remembers idempotency keys for a limited time so that a
// retried sensor data submission returns the first submission's result.
package dedupe
