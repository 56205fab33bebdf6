// Package retry classifies provider errors and computes backoff delays.
package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
)

// Class determines how the coordinator reacts to a failed provider call.
type Class int

// Classification outcomes.
const (
	// ClassPermanent means the target itself is unreachable or malformed.
	// Never retried and never counted against the provider's breaker.
	ClassPermanent Class = iota
	// ClassTransient is retried with exponential backoff.
	ClassTransient
	// ClassRateLimited means the provider rejected the call for quota
	// reasons. Surfaced immediately with the provider's retry hint.
	ClassRateLimited
)

// String names the class for logs and metrics.
func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Classify maps an error from the remote client onto a retry class. The
// remote client attaches explicit kinds via *insight.ProviderError; net and
// context errors are handled as fallbacks for adapters that miss a case.
func Classify(err error) Class {
	var perr *insight.ProviderError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case insight.ErrKindTargetUnreachable:
			return ClassPermanent
		case insight.ErrKindRateLimited:
			return ClassRateLimited
		default:
			return ClassTransient
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassPermanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	return ClassTransient
}

// Policy controls the retry loop for transient failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the provider's documented retry guidance.
var DefaultPolicy = Policy{
	MaxAttempts: 2,
	BaseDelay:   1 * time.Second,
	MaxDelay:    15 * time.Second,
}

// Backoff returns the wait before retrying attempt (zero-based). The delay
// doubles per attempt and is capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed after attempt
// (zero-based) failed with err.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts-1 {
		return false
	}
	return Classify(err) == ClassTransient
}
