// Package analyzer orchestrates a single target's analysis through the
// cache, governor, remote client and retry policy, fanning out one goroutine
// per requested strategy.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/cache"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/metrics"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/policy/governor"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/retry"
)

// Config controls Coordinator behavior.
type Config struct {
	// ResourcePrefix names the governed resource family; the per-strategy
	// resource is "<prefix>:<strategy>".
	ResourcePrefix string
	// Categories requested from the provider (defaults to all).
	Categories []insight.Category
	// DefaultStrategies used when a caller passes none.
	DefaultStrategies []insight.Strategy
	// AttemptBudget bounds the wall clock for one target's whole attempt
	// sequence across all strategies (default 45s).
	AttemptBudget time.Duration
	// PoolSize caps concurrently outstanding provider calls process-wide.
	// A fixed resource-management constant, not caller-supplied.
	PoolSize int
}

// Coordinator runs analyses. Safe for concurrent use by many callers.
type Coordinator struct {
	client   insight.RemoteClient
	governor *governor.Governor
	cache    *cache.Cache
	clock    insight.Clock
	policy   retry.Policy
	cfg      Config
	logger   *zap.Logger

	// sem bounds blocking provider calls so they never pile up regardless
	// of how many logical requests arrive.
	sem chan struct{}
}

// New constructs a Coordinator.
func New(
	client insight.RemoteClient,
	gov *governor.Governor,
	resultCache *cache.Cache,
	clock insight.Clock,
	policy retry.Policy,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResourcePrefix == "" {
		cfg.ResourcePrefix = "pagespeed"
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = insight.DefaultCategories
	}
	if len(cfg.DefaultStrategies) == 0 {
		cfg.DefaultStrategies = []insight.Strategy{insight.StrategyMobile, insight.StrategyDesktop}
	}
	if cfg.AttemptBudget <= 0 {
		cfg.AttemptBudget = 45 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	return &Coordinator{
		client:   client,
		governor: gov,
		cache:    resultCache,
		clock:    clock,
		policy:   policy,
		cfg:      cfg,
		logger:   logger,
		sem:      make(chan struct{}, cfg.PoolSize),
	}
}

// Analyze runs every requested strategy for target concurrently and merges
// the results into one Outcome. It always returns an Outcome, never a bare
// error: every failure encountered is classified and listed in order.
func (c *Coordinator) Analyze(ctx context.Context, target string, strategies ...insight.Strategy) insight.Outcome {
	if len(strategies) == 0 {
		strategies = c.cfg.DefaultStrategies
	}

	metrics.IncInflight()
	defer metrics.DecInflight()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptBudget)
	defer cancel()

	start := c.clock.Now()

	type strategyOutcome struct {
		strategy insight.Strategy
		result   *insight.StrategyResult
		failures []insight.Failure
	}

	outcomes := make([]strategyOutcome, len(strategies))
	var wg sync.WaitGroup
	for i, strategy := range strategies {
		wg.Add(1)
		go func(idx int, s insight.Strategy) {
			defer wg.Done()
			result, failures := c.analyzeStrategy(ctx, target, s)
			outcomes[idx] = strategyOutcome{strategy: s, result: result, failures: failures}
		}(i, strategy)
	}
	wg.Wait()

	out := insight.Outcome{Target: target}
	for _, so := range outcomes {
		if so.result != nil {
			if out.Results == nil {
				out.Results = make(map[insight.Strategy]insight.StrategyResult, len(strategies))
			}
			out.Results[so.strategy] = *so.result
		}
		out.Failures = append(out.Failures, so.failures...)
	}
	out.Success = len(out.Results) > 0

	status := "failed"
	if out.Success {
		status = "succeeded"
	}
	for _, s := range strategies {
		metrics.ObserveAnalysis(string(s), status, c.clock.Now().Sub(start))
	}
	c.logger.Debug("analysis finished",
		zap.String("target", target),
		zap.Bool("success", out.Success),
		zap.Int("strategies", len(strategies)),
		zap.Int("failures", len(out.Failures)),
	)
	return out
}

// analyzeStrategy runs the cache/governor/retry pipeline for one strategy.
// A non-nil result means the strategy succeeded; failures may be non-empty
// either way.
func (c *Coordinator) analyzeStrategy(ctx context.Context, target string, strategy insight.Strategy) (*insight.StrategyResult, []insight.Failure) {
	key := cache.Key(target, strategy, c.cfg.Categories)
	if cached, ok := c.cache.Get(key); ok {
		return &cached, nil
	}

	resource := c.resourceFor(strategy)
	if allowed, reason := c.governor.CanProceed(resource); !allowed {
		return nil, []insight.Failure{rejectionFailure(strategy, reason)}
	}

	var failures []insight.Failure
	for attempt := 0; ; attempt++ {
		callStart := c.clock.Now()
		payload, err := c.callProvider(ctx, target, strategy)
		if err == nil {
			result, normErr := normalize(payload, strategy, c.clock.Now())
			if normErr == nil {
				result.Duration = c.clock.Now().Sub(callStart)
				metrics.ObserveProviderCall(string(strategy), "ok")
				c.governor.RecordSuccess(resource)
				c.cache.Put(key, result)
				return &result, failures
			}
			err = insight.NewProviderError(insight.ErrKindTransient, normErr)
		}

		failure, countAgainstBreaker, retryable := c.classifyFailure(err, strategy, attempt+1)
		failures = append(failures, failure)
		metrics.ObserveProviderCall(string(strategy), string(failure.Kind))

		if retryable && c.policy.ShouldRetry(err, attempt) {
			metrics.IncRetry(string(strategy))
			delay := c.policy.Backoff(attempt)
			c.logger.Debug("retrying provider call",
				zap.String("target", target),
				zap.String("strategy", string(strategy)),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
			)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				failures = append(failures, c.contextFailure(ctx, strategy, attempt+1))
				return nil, failures
			}
		}

		if countAgainstBreaker {
			c.governor.RecordFailure(resource)
		}
		c.logger.Warn("analysis attempt sequence failed",
			zap.String("target", target),
			zap.String("strategy", string(strategy)),
			zap.String("kind", string(failure.Kind)),
			zap.Int("attempts", attempt+1),
		)
		return nil, failures
	}
}

// callProvider issues the blocking remote call on the bounded worker pool so
// it never runs on the caller's scheduling path.
func (c *Coordinator) callProvider(ctx context.Context, target string, strategy insight.Strategy) (json.RawMessage, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	type callResult struct {
		payload json.RawMessage
		err     error
	}
	ch := make(chan callResult, 1)
	go func() {
		defer func() { <-c.sem }()
		payload, err := c.client.Run(ctx, target, strategy, c.cfg.Categories)
		ch <- callResult{payload: payload, err: err}
	}()

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classifyFailure turns a call error into a Failure plus the breaker and
// retry decisions for it. Target-side and caller-side failures never count
// against the provider's breaker.
func (c *Coordinator) classifyFailure(err error, strategy insight.Strategy, attempt int) (insight.Failure, bool, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return insight.Failure{
			Kind:     insight.FailureTimeout,
			Strategy: strategy,
			Attempt:  attempt,
			Message:  "attempt budget exceeded",
		}, true, false
	}
	if errors.Is(err, context.Canceled) {
		return insight.Failure{
			Kind:     insight.FailureCancelled,
			Strategy: strategy,
			Attempt:  attempt,
			Message:  "analysis cancelled by caller",
		}, false, false
	}

	switch retry.Classify(err) {
	case retry.ClassPermanent:
		return insight.Failure{
			Kind:     insight.FailureTargetUnreachable,
			Strategy: strategy,
			Attempt:  attempt,
			Message:  err.Error(),
		}, false, false
	case retry.ClassRateLimited:
		failure := insight.Failure{
			Kind:     insight.FailureProviderRateLimited,
			Strategy: strategy,
			Attempt:  attempt,
			Message:  err.Error(),
		}
		var perr *insight.ProviderError
		if errors.As(err, &perr) {
			failure.RetryAfter = perr.RetryAfter
		}
		return failure, true, false
	default:
		return insight.Failure{
			Kind:     insight.FailureProviderTransient,
			Strategy: strategy,
			Attempt:  attempt,
			Message:  err.Error(),
		}, true, true
	}
}

func (c *Coordinator) contextFailure(ctx context.Context, strategy insight.Strategy, attempt int) insight.Failure {
	kind := insight.FailureCancelled
	message := "analysis cancelled by caller"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = insight.FailureTimeout
		message = "attempt budget exceeded during backoff"
	}
	return insight.Failure{Kind: kind, Strategy: strategy, Attempt: attempt, Message: message}
}

func (c *Coordinator) resourceFor(strategy insight.Strategy) string {
	return fmt.Sprintf("%s:%s", c.cfg.ResourcePrefix, strategy)
}

func rejectionFailure(strategy insight.Strategy, reason governor.Reason) insight.Failure {
	kind := insight.FailureQuotaExceeded
	if reason == governor.ReasonCircuitOpen {
		kind = insight.FailureCircuitOpen
	}
	return insight.Failure{
		Kind:     kind,
		Strategy: strategy,
		Attempt:  1,
		Message:  string(reason),
	}
}
