// Package errdef defines the error kinds shared across the Bridge.
//
// Every subsystem classifies failures into one of these kinds so the
// consumer runtime and the HTTP surface can pick the right recovery:
// malformed input goes straight to the DLQ, transient storage errors are
// redelivered, conflicts surface to the caller.
package errdef

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope marks an envelope missing a required header or
	// failing to decode. Never retried.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnknownContract marks a payload_schema reference that is not in
	// the contract registry.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrContractConflict marks a re-registration of an existing
	// (name, version) pair with a different schema.
	ErrContractConflict = errors.New("contract conflict")

	// ErrTenantViolation marks a write that crossed a tenant boundary.
	ErrTenantViolation = errors.New("tenant violation")

	// ErrTransientStorage marks a retryable storage failure (connection
	// loss, deadlock, statement timeout).
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrExtractorFailed marks a failure of the extractor collaborator.
	ErrExtractorFailed = errors.New("extractor failed")

	// ErrEmbeddingFailed marks a failure of the embedding collaborator.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrConflict marks an upsert that collided with incompatible
	// existing state.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a read miss, including TTL-expired KV entries.
	ErrNotFound = errors.New("not found")

	// ErrMisconfig marks a failed startup probe. The process exits
	// non-zero rather than limping along.
	ErrMisconfig = errors.New("misconfiguration")
)

// Wrap annotates err with a kind sentinel so callers can classify it with
// errors.Is while keeping the original cause in the chain.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Retryable reports whether the error kind permits redelivery.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrTransientStorage),
		errors.Is(err, ErrExtractorFailed),
		errors.Is(err, ErrEmbeddingFailed):
		return true
	default:
		return false
	}
}

// Terminal reports whether the error kind should bypass retries and go to
// the dead-letter topic immediately.
func Terminal(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedEnvelope),
		errors.Is(err, ErrUnknownContract),
		errors.Is(err, ErrTenantViolation):
		return true
	default:
		return false
	}
}
