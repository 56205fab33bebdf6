package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/cache"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/policy/governor"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/retry"
)

const goodPayload = `{"lighthouseResult":{"categories":{"performance":{"score":0.93},"seo":{"score":0.8}}}}`

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type fakeRemote struct {
	mu    sync.Mutex
	calls int
	run   func(ctx context.Context, target string, strategy insight.Strategy) (json.RawMessage, error)
}

func (f *fakeRemote) Run(ctx context.Context, target string, strategy insight.Strategy, _ []insight.Category) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.run(ctx, target, strategy)
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeedingRemote() *fakeRemote {
	return &fakeRemote{run: func(_ context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		return json.RawMessage(goodPayload), nil
	}}
}

func testResources(limit int, threshold int) map[string]governor.ResourceConfig {
	rc := governor.ResourceConfig{
		Limit:            limit,
		Window:           60 * time.Second,
		FailureThreshold: threshold,
		RecoveryTimeout:  30 * time.Second,
	}
	return map[string]governor.ResourceConfig{
		"ps:mobile":  rc,
		"ps:desktop": rc,
	}
}

func newTestCoordinator(client insight.RemoteClient, resources map[string]governor.ResourceConfig, policy retry.Policy) (*Coordinator, *governor.Governor) {
	clk := realClock{}
	gov := governor.New(resources, clk, zap.NewNop())
	resultCache := cache.New(cache.Config{TTL: time.Hour}, clk)
	c := New(client, gov, resultCache, clk, policy, Config{
		ResourcePrefix: "ps",
		AttemptBudget:  5 * time.Second,
		PoolSize:       4,
	}, zap.NewNop())
	return c, gov
}

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestAnalyze_SuccessNormalizesScores(t *testing.T) {
	t.Parallel()

	client := succeedingRemote()
	c, gov := newTestCoordinator(client, testResources(10, 3), fastPolicy(2))

	out := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)

	require.True(t, out.Success)
	require.Empty(t, out.Failures)
	result, ok := out.Results[insight.StrategyMobile]
	require.True(t, ok)
	require.Equal(t, float64(93), result.Scores[insight.CategoryPerformance])
	require.Equal(t, float64(80), result.Scores[insight.CategorySEO])
	require.NotEmpty(t, result.Raw)
	require.False(t, result.FromCache)

	info, _ := gov.QuotaInfo("ps:mobile")
	require.Equal(t, 1, info.Used)
}

func TestAnalyze_CacheHitSkipsQuota(t *testing.T) {
	t.Parallel()

	client := succeedingRemote()
	c, gov := newTestCoordinator(client, testResources(1, 3), fastPolicy(2))

	first := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)
	require.True(t, first.Success)

	second := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)
	require.True(t, second.Success)
	require.True(t, second.Results[insight.StrategyMobile].FromCache)

	require.Equal(t, 1, client.callCount())
	info, _ := gov.QuotaInfo("ps:mobile")
	require.Equal(t, 1, info.Used)
}

func TestAnalyze_PathCaseTargetsCachedSeparately(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(_ context.Context, target string, _ insight.Strategy) (json.RawMessage, error) {
		if strings.Contains(target, "/CaseSensitive") {
			return json.RawMessage(`{"lighthouseResult":{"categories":{"performance":{"score":0.1}}}}`), nil
		}
		return json.RawMessage(`{"lighthouseResult":{"categories":{"performance":{"score":0.9}}}}`), nil
	}}
	c, _ := newTestCoordinator(client, testResources(10, 3), fastPolicy(2))

	first := c.Analyze(context.Background(), "https://x.test/CaseSensitive", insight.StrategyMobile)
	require.True(t, first.Success)
	require.Equal(t, float64(10), first.Results[insight.StrategyMobile].Scores[insight.CategoryPerformance])

	second := c.Analyze(context.Background(), "https://x.test/casesensitive", insight.StrategyMobile)
	require.True(t, second.Success)
	require.False(t, second.Results[insight.StrategyMobile].FromCache, "a path differing in case is a different target")
	require.Equal(t, float64(90), second.Results[insight.StrategyMobile].Scores[insight.CategoryPerformance])
	require.Equal(t, 2, client.callCount())
}

func TestAnalyze_QuotaExceeded(t *testing.T) {
	t.Parallel()

	client := succeedingRemote()
	c, gov := newTestCoordinator(client, testResources(1, 3), fastPolicy(2))

	first := c.Analyze(context.Background(), "https://a.test", insight.StrategyMobile)
	require.True(t, first.Success)

	second := c.Analyze(context.Background(), "https://b.test", insight.StrategyMobile)
	require.False(t, second.Success)
	require.Len(t, second.Failures, 1)
	require.Equal(t, insight.FailureQuotaExceeded, second.Failures[0].Kind)

	require.Equal(t, 1, client.callCount())
	info, _ := gov.QuotaInfo("ps:mobile")
	require.Equal(t, 0, info.Remaining)
}

func TestAnalyze_UnknownResourceRejected(t *testing.T) {
	t.Parallel()

	client := succeedingRemote()
	c, _ := newTestCoordinator(client, map[string]governor.ResourceConfig{}, fastPolicy(2))

	out := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)
	require.False(t, out.Success)
	require.Len(t, out.Failures, 1)
	require.Equal(t, insight.FailureQuotaExceeded, out.Failures[0].Kind)
	require.Equal(t, "unknown resource", out.Failures[0].Message)
	require.Zero(t, client.callCount())
}

func TestAnalyze_TransientRetriedThenCounted(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(_ context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		return nil, insight.NewProviderError(insight.ErrKindTransient, errors.New("status 503"))
	}}
	c, gov := newTestCoordinator(client, testResources(10, 5), fastPolicy(3))

	out := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)

	require.False(t, out.Success)
	require.Equal(t, 3, client.callCount(), "initial attempt plus maxAttempts-1 retries")
	require.Len(t, out.Failures, 3)
	for i, failure := range out.Failures {
		require.Equal(t, insight.FailureProviderTransient, failure.Kind)
		require.Equal(t, i+1, failure.Attempt)
	}

	// Only the exhausted sequence counts against the breaker, once.
	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, 1, info.ConsecutiveFailures)
}

func TestAnalyze_TransientRecoversMidSequence(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	n := 0
	client := &fakeRemote{run: func(_ context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n < 3 {
			return nil, insight.NewProviderError(insight.ErrKindTransient, errors.New("status 502"))
		}
		return json.RawMessage(goodPayload), nil
	}}
	c, gov := newTestCoordinator(client, testResources(10, 5), fastPolicy(3))

	out := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)

	require.True(t, out.Success)
	require.Equal(t, 3, client.callCount())
	require.Len(t, out.Failures, 2, "failed attempts are still reported")

	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, 0, info.ConsecutiveFailures)
}

func TestAnalyze_TargetUnreachableNeverCounted(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(_ context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		return nil, insight.NewProviderError(insight.ErrKindTargetUnreachable, errors.New("FAILED_DOCUMENT_REQUEST"))
	}}
	c, gov := newTestCoordinator(client, testResources(10, 1), fastPolicy(3))

	out := c.Analyze(context.Background(), "https://unreachable.test", insight.StrategyMobile)

	require.False(t, out.Success)
	require.Equal(t, 1, client.callCount(), "permanent failures are not retried")
	require.Len(t, out.Failures, 1)
	require.Equal(t, insight.FailureTargetUnreachable, out.Failures[0].Kind)

	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, 0, info.ConsecutiveFailures)
	require.Equal(t, governor.CircuitClosed, info.Status)
}

func TestAnalyze_RateLimitedSurfacedWithHint(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(_ context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		return nil, &insight.ProviderError{
			Kind:       insight.ErrKindRateLimited,
			StatusCode: 429,
			RetryAfter: 30 * time.Second,
			Err:        errors.New("quota exceeded"),
		}
	}}
	c, gov := newTestCoordinator(client, testResources(10, 5), fastPolicy(3))

	out := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile)

	require.False(t, out.Success)
	require.Equal(t, 1, client.callCount(), "rate limited calls are not retried locally")
	require.Len(t, out.Failures, 1)
	require.Equal(t, insight.FailureProviderRateLimited, out.Failures[0].Kind)
	require.Equal(t, 30*time.Second, out.Failures[0].RetryAfter)

	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, 1, info.ConsecutiveFailures)
}

func TestAnalyze_CircuitOpenSkipsRemote(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(_ context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		return nil, insight.NewProviderError(insight.ErrKindTransient, errors.New("status 500"))
	}}
	c, gov := newTestCoordinator(client, testResources(10, 3), fastPolicy(1))

	for i := 0; i < 3; i++ {
		out := c.Analyze(context.Background(), "https://example.test/page", insight.StrategyMobile)
		require.False(t, out.Success)
	}
	require.Equal(t, 3, client.callCount())
	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, governor.CircuitOpen, info.Status)

	out := c.Analyze(context.Background(), "https://example.test/other", insight.StrategyMobile)
	require.False(t, out.Success)
	require.Len(t, out.Failures, 1)
	require.Equal(t, insight.FailureCircuitOpen, out.Failures[0].Kind)
	require.Equal(t, 3, client.callCount(), "open circuit must not invoke the remote client")
}

func TestAnalyze_PartialSuccessAcrossStrategies(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(_ context.Context, _ string, strategy insight.Strategy) (json.RawMessage, error) {
		if strategy == insight.StrategyMobile {
			return nil, insight.NewProviderError(insight.ErrKindTargetUnreachable, errors.New("DNS_FAILURE"))
		}
		return json.RawMessage(goodPayload), nil
	}}
	c, _ := newTestCoordinator(client, testResources(10, 5), fastPolicy(2))

	out := c.Analyze(context.Background(), "https://example.com", insight.StrategyMobile, insight.StrategyDesktop)

	require.True(t, out.Success, "one strategy succeeding is a partial success")
	require.Len(t, out.Results, 1)
	require.Contains(t, out.Results, insight.StrategyDesktop)
	require.Len(t, out.Failures, 1)
	require.Equal(t, insight.StrategyMobile, out.Failures[0].Strategy)
	require.Equal(t, insight.FailureTargetUnreachable, out.Failures[0].Kind)
}

func TestAnalyze_AttemptBudgetTimeout(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(ctx context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		select {
		case <-time.After(2 * time.Second):
			return json.RawMessage(goodPayload), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	clk := realClock{}
	gov := governor.New(testResources(10, 5), clk, zap.NewNop())
	resultCache := cache.New(cache.Config{TTL: time.Hour}, clk)
	c := New(client, gov, resultCache, clk, fastPolicy(2), Config{
		ResourcePrefix: "ps",
		AttemptBudget:  50 * time.Millisecond,
		PoolSize:       4,
	}, zap.NewNop())

	start := time.Now()
	out := c.Analyze(context.Background(), "https://slow.test", insight.StrategyMobile)
	require.Less(t, time.Since(start), time.Second)

	require.False(t, out.Success)
	require.NotEmpty(t, out.Failures)
	require.Equal(t, insight.FailureTimeout, out.Failures[0].Kind)

	// Timeouts count against the breaker once.
	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, 1, info.ConsecutiveFailures)
}

func TestAnalyze_CallerCancellation(t *testing.T) {
	t.Parallel()

	client := &fakeRemote{run: func(ctx context.Context, _ string, _ insight.Strategy) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, gov := newTestCoordinator(client, testResources(10, 5), fastPolicy(2))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out := c.Analyze(ctx, "https://example.com", insight.StrategyMobile)
	require.False(t, out.Success)
	require.NotEmpty(t, out.Failures)
	require.Equal(t, insight.FailureCancelled, out.Failures[0].Kind)

	// Caller cancellation says nothing about provider health.
	info, _ := gov.CircuitInfo("ps:mobile")
	require.Equal(t, 0, info.ConsecutiveFailures)
}

func TestAnalyze_DefaultStrategies(t *testing.T) {
	t.Parallel()

	client := succeedingRemote()
	c, _ := newTestCoordinator(client, testResources(10, 3), fastPolicy(2))

	out := c.Analyze(context.Background(), "https://example.com")
	require.True(t, out.Success)
	require.Len(t, out.Results, 2)
	require.Contains(t, out.Results, insight.StrategyMobile)
	require.Contains(t, out.Results, insight.StrategyDesktop)
}
