// Package batch fans the analysis coordinator out over many targets under a
// global concurrency ceiling.
package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/analyzer"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/metrics"
)

// Config controls batch defaults.
type Config struct {
	// DefaultMaxConcurrency is applied when a caller passes zero.
	DefaultMaxConcurrency int
	// MaxConcurrencyCeiling caps caller-supplied concurrency.
	MaxConcurrencyCeiling int
}

// Coordinator runs batches of targets through the analysis coordinator.
type Coordinator struct {
	analyzer *analyzer.Coordinator
	cfg      Config
	logger   *zap.Logger
}

// New constructs a batch Coordinator.
func New(a *analyzer.Coordinator, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxConcurrency <= 0 {
		cfg.DefaultMaxConcurrency = 3
	}
	if cfg.MaxConcurrencyCeiling <= 0 {
		cfg.MaxConcurrencyCeiling = 10
	}
	return &Coordinator{analyzer: a, cfg: cfg, logger: logger}
}

// Run analyzes every target with at most maxConcurrency in flight. Each
// target's outcome is independent: one target failing terminally never blocks
// or cancels the others. When ctx is cancelled, no new targets are admitted;
// in-flight analyses cancel cooperatively and targets that never started
// surface a cancelled outcome, so the returned list stays ordered one entry
// per input target.
func (c *Coordinator) Run(ctx context.Context, targets []string, strategies []insight.Strategy, maxConcurrency int) insight.BatchOutcome {
	if maxConcurrency <= 0 {
		maxConcurrency = c.cfg.DefaultMaxConcurrency
	}
	if maxConcurrency > c.cfg.MaxConcurrencyCeiling {
		maxConcurrency = c.cfg.MaxConcurrencyCeiling
	}

	c.logger.Info("batch started",
		zap.Int("targets", len(targets)),
		zap.Int("max_concurrency", maxConcurrency),
	)

	outcomes := make([]insight.Outcome, len(targets))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, target := range targets {
		if ctx.Err() != nil {
			outcomes[i] = cancelledOutcome(target)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			outcomes[i] = cancelledOutcome(target)
			continue
		}

		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[idx] = c.analyzer.Analyze(ctx, t, strategies...)
		}(i, target)
	}
	wg.Wait()

	out := insight.BatchOutcome{
		Total:    len(targets),
		Outcomes: outcomes,
	}
	for _, outcome := range outcomes {
		if outcome.Failed() {
			out.Failed++
			metrics.ObserveBatchTarget("failed")
		} else {
			out.Succeeded++
			metrics.ObserveBatchTarget("succeeded")
		}
	}

	c.logger.Info("batch finished",
		zap.Int("total", out.Total),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	)
	return out
}

func cancelledOutcome(target string) insight.Outcome {
	return insight.Outcome{
		Target: target,
		Failures: []insight.Failure{{
			Kind:    insight.FailureCancelled,
			Attempt: 1,
			Message: "batch cancelled before target started",
		}},
	}
}
