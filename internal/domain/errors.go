package domain

import "errors"

// Sentinel errors shared across packages. Upstream and cache failures wrap
// these so callers can classify without string matching.
var (
	// ErrQueryRejected marks a statement that is not a SELECT.
	ErrQueryRejected = errors.New("only SELECT queries are allowed")

	// ErrQueryTimeout marks an upstream query that timed out on every attempt.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrNotConfigured marks a missing LLM credential.
	ErrNotConfigured = errors.New("agent is not configured")

	// ErrMaxTurns marks an agent run that exhausted its turn budget.
	ErrMaxTurns = errors.New("maximum agent turns exceeded")
)
