// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/analyzer"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/batch"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/cache"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/clock/system"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/config"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/logging"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/metrics"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/pagespeed"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/policy/governor"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/retry"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Clock    insight.Clock
	Governor *governor.Governor
	Cache    *cache.Cache
	Client   insight.RemoteClient
	Analyzer *analyzer.Coordinator
	Batch    *batch.Coordinator
}

// New builds every service from the loaded configuration. It fails fast if
// any critical service cannot be initialized.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	clk := system.New()

	resources := make(map[string]governor.ResourceConfig, len(cfg.Resources))
	for name, rc := range cfg.Resources {
		resources[name] = governor.ResourceConfig{
			Limit:            rc.Limit,
			Window:           time.Duration(rc.WindowSeconds) * time.Second,
			FailureThreshold: rc.FailureThreshold,
			RecoveryTimeout:  time.Duration(rc.RecoveryTimeoutSeconds) * time.Second,
		}
	}
	gov := governor.New(resources, clk, logger.Named("governor"))

	resultCache := cache.New(cache.Config{
		TTL:                cfg.CacheTTL(),
		SweepEveryPuts:     cfg.Cache.SweepEveryPuts,
		SweepSizeThreshold: cfg.Cache.SweepSizeThreshold,
	}, clk)

	client := pagespeed.New(pagespeed.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.ProviderTimeout(),
		RPS:     cfg.Provider.RPS,
		Burst:   cfg.Provider.Burst,
	}, logger.Named("pagespeed"))

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
	}

	strategies := make([]insight.Strategy, 0, len(cfg.Analysis.Strategies))
	for _, name := range cfg.Analysis.Strategies {
		strategies = append(strategies, insight.Strategy(name))
	}
	categories := make([]insight.Category, 0, len(cfg.Analysis.Categories))
	for _, name := range cfg.Analysis.Categories {
		categories = append(categories, insight.Category(name))
	}

	coordinator := analyzer.New(client, gov, resultCache, clk, policy, analyzer.Config{
		ResourcePrefix:    cfg.Analysis.ResourcePrefix,
		Categories:        categories,
		DefaultStrategies: strategies,
		AttemptBudget:     cfg.AttemptBudget(),
		PoolSize:          cfg.Analysis.PoolSize,
	}, logger.Named("analyzer"))

	batchCoordinator := batch.New(coordinator, batch.Config{
		DefaultMaxConcurrency: cfg.Batch.DefaultMaxConcurrency,
		MaxConcurrencyCeiling: cfg.Batch.MaxConcurrencyCeiling,
	}, logger.Named("batch"))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Clock:    clk,
		Governor: gov,
		Cache:    resultCache,
		Client:   client,
		Analyzer: coordinator,
		Batch:    batchCoordinator,
	}, nil
}

// Close flushes buffered log output.
func (a *App) Close() {
	_ = a.Logger.Sync()
}
