package memory

import "errors"

// Engine-wide error taxonomy. Every public operation maps its failures onto
// one of these sentinels so callers can dispatch with errors.Is regardless of
// which component produced the failure.
var (
	// ErrValidation indicates bad caller input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrScopeViolation indicates an attempt to touch an entry outside the
	// caller's tenant scope. Never retried; logged as a security event.
	ErrScopeViolation = errors.New("tenant scope violation")

	// ErrConflict indicates an optimistic-concurrency version mismatch.
	// The caller may retry the whole operation.
	ErrConflict = errors.New("version conflict")

	// ErrDependency indicates an external collaborator (embedder, distiller)
	// failure. Foreground callers retry with bounded backoff or degrade;
	// background sweeps skip the affected candidate.
	ErrDependency = errors.New("dependency failure")

	// ErrNotFound indicates an expected-absent lookup. Non-fatal.
	ErrNotFound = errors.New("not found")
)
