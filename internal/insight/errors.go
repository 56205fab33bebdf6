package insight

import (
	"fmt"
	"time"
)

// FailureKind classifies an error for callers and for breaker accounting.
type FailureKind string

// Failure kinds surfaced in Outcome.Failures.
const (
	FailureQuotaExceeded       FailureKind = "quota_exceeded"
	FailureCircuitOpen         FailureKind = "circuit_open"
	FailureTargetUnreachable   FailureKind = "target_unreachable"
	FailureProviderTransient   FailureKind = "provider_transient"
	FailureProviderRateLimited FailureKind = "provider_rate_limited"
	FailureTimeout             FailureKind = "timeout"
	FailureCancelled           FailureKind = "cancelled"
)

// ProviderErrorKind is the explicit classification attached by a RemoteClient
// implementation. The core never re-derives intent from error text; adapters
// translate provider responses into one of these kinds.
type ProviderErrorKind string

// Kinds a RemoteClient may report.
const (
	// ErrKindTargetUnreachable means the analyzed site itself could not be
	// fetched or was malformed. Never counted against the provider's breaker.
	ErrKindTargetUnreachable ProviderErrorKind = "target_unreachable"
	// ErrKindTransient covers provider 5xx responses, generic failures and
	// timeouts that are worth retrying.
	ErrKindTransient ProviderErrorKind = "transient"
	// ErrKindRateLimited means the provider rejected the call for quota
	// reasons. Not retried within the same analysis.
	ErrKindRateLimited ProviderErrorKind = "rate_limited"
)

// ProviderError carries the classification a RemoteClient assigned to a
// failed call, plus an optional retry hint from the provider.
type ProviderError struct {
	Kind       ProviderErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider error (%s)", e.Kind)
	}
	return fmt.Sprintf("provider error (%s): %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with an explicit kind.
func NewProviderError(kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}
