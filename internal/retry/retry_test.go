package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_ProviderKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Class
	}{
		{
			name: "target unreachable is permanent",
			err:  insight.NewProviderError(insight.ErrKindTargetUnreachable, errors.New("FAILED_DOCUMENT_REQUEST")),
			want: ClassPermanent,
		},
		{
			name: "rate limited",
			err:  insight.NewProviderError(insight.ErrKindRateLimited, errors.New("quota exhausted")),
			want: ClassRateLimited,
		},
		{
			name: "transient",
			err:  insight.NewProviderError(insight.ErrKindTransient, errors.New("status 502")),
			want: ClassTransient,
		},
		{
			name: "wrapped provider error",
			err:  fmt.Errorf("call failed: %w", insight.NewProviderError(insight.ErrKindRateLimited, errors.New("429"))),
			want: ClassRateLimited,
		},
		{
			name: "context cancellation is permanent",
			err:  context.Canceled,
			want: ClassPermanent,
		},
		{
			name: "context deadline is permanent",
			err:  context.DeadlineExceeded,
			want: ClassPermanent,
		},
		{
			name: "network timeout is transient",
			err:  timeoutErr{},
			want: ClassTransient,
		},
		{
			name: "unknown error defaults to transient",
			err:  errors.New("something odd"),
			want: ClassTransient,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestPolicy_BackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 15 * time.Second}

	require.Equal(t, 1*time.Second, p.Backoff(0))
	require.Equal(t, 2*time.Second, p.Backoff(1))
	require.Equal(t, 4*time.Second, p.Backoff(2))
	require.Equal(t, 8*time.Second, p.Backoff(3))
	require.Equal(t, 15*time.Second, p.Backoff(4))
	require.Equal(t, 15*time.Second, p.Backoff(5))
}

func TestPolicy_BackoffStrictlyIncreasesUntilCap(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy
	prev := time.Duration(0)
	for attempt := 0; attempt < 4; attempt++ {
		d := p.Backoff(attempt)
		if d < p.MaxDelay {
			require.Greater(t, d, prev)
		} else {
			require.Equal(t, p.MaxDelay, d)
		}
		prev = d
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 15 * time.Second}
	transient := insight.NewProviderError(insight.ErrKindTransient, errors.New("status 503"))

	require.True(t, p.ShouldRetry(transient, 0))
	require.False(t, p.ShouldRetry(transient, 1), "attempts exhausted")
	require.False(t, p.ShouldRetry(nil, 0))
	require.False(t, p.ShouldRetry(insight.NewProviderError(insight.ErrKindRateLimited, errors.New("429")), 0))
	require.False(t, p.ShouldRetry(insight.NewProviderError(insight.ErrKindTargetUnreachable, errors.New("dns")), 0))
}

func TestClass_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "permanent", ClassPermanent.String())
	require.Equal(t, "transient", ClassTransient.String())
	require.Equal(t, "rate_limited", ClassRateLimited.String())
}
