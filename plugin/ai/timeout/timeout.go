// Package timeout centralizes the retry and deadline tuning for turn
// execution.
package timeout

import "time"

const (
	// FirstFragment is how long the model may stall before its first streamed
	// fragment.
	FirstFragment = 10 * time.Second

	// MaxTimeoutAttempts bounds the outer retry dimension: whole-turn retries
	// after a first-fragment timeout, session reconstruction in between.
	MaxTimeoutAttempts = 3

	// MaxCapacityAttempts bounds the inner retry dimension: generation retries
	// after a capacity error, excerpt shrinkage in between.
	MaxCapacityAttempts = 3

	// RetryDelay is the pause between a session reconstruction and the next
	// turn attempt.
	RetryDelay = 500 * time.Millisecond
)
