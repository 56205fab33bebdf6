// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Provider  ProviderConfig            `mapstructure:"provider"`
	Analysis  AnalysisConfig            `mapstructure:"analysis"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Retry     RetryConfig               `mapstructure:"retry"`
	Batch     BatchConfig               `mapstructure:"batch"`
	Resources map[string]ResourceConfig `mapstructure:"resources"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ProviderConfig configures the remote analysis provider client.
type ProviderConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// AnalysisConfig governs the per-target coordinator.
type AnalysisConfig struct {
	ResourcePrefix       string   `mapstructure:"resource_prefix"`
	Strategies           []string `mapstructure:"strategies"`
	Categories           []string `mapstructure:"categories"`
	AttemptBudgetSeconds int      `mapstructure:"attempt_budget_seconds"`
	PoolSize             int      `mapstructure:"pool_size"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	TTLMinutes         int `mapstructure:"ttl_minutes"`
	SweepEveryPuts     int `mapstructure:"sweep_every_puts"`
	SweepSizeThreshold int `mapstructure:"sweep_size_threshold"`
}

// RetryConfig configures transient-failure retry behavior.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// BatchConfig governs batch fan-out limits.
type BatchConfig struct {
	DefaultMaxConcurrency int `mapstructure:"default_max_concurrency"`
	MaxConcurrencyCeiling int `mapstructure:"max_concurrency_ceiling"`
}

// ResourceConfig declares quota and breaker limits for one governed resource.
type ResourceConfig struct {
	Limit                  int `mapstructure:"limit"`
	WindowSeconds          int `mapstructure:"window_seconds"`
	FailureThreshold       int `mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds int `mapstructure:"recovery_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Resources) == 0 {
		cfg.Resources = defaultResources(cfg.Analysis)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.timeout_seconds", 40)
	v.SetDefault("provider.rps", 2)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("analysis.resource_prefix", "pagespeed")
	v.SetDefault("analysis.strategies", []string{"mobile", "desktop"})
	v.SetDefault("analysis.categories", []string{"performance", "accessibility", "best-practices", "seo"})
	v.SetDefault("analysis.attempt_budget_seconds", 45)
	v.SetDefault("analysis.pool_size", 8)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("cache.sweep_every_puts", 64)
	v.SetDefault("cache.sweep_size_threshold", 1024)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 15000)
	v.SetDefault("batch.default_max_concurrency", 3)
	v.SetDefault("batch.max_concurrency_ceiling", 10)
	v.SetDefault("logging.development", true)
}

// defaultResources derives one governed resource per strategy when the
// config file does not enumerate them explicitly.
func defaultResources(analysis AnalysisConfig) map[string]ResourceConfig {
	prefix := analysis.ResourcePrefix
	if prefix == "" {
		prefix = "pagespeed"
	}
	strategies := analysis.Strategies
	if len(strategies) == 0 {
		strategies = []string{"mobile", "desktop"}
	}
	resources := make(map[string]ResourceConfig, len(strategies))
	for _, strategy := range strategies {
		resources[prefix+":"+strategy] = ResourceConfig{
			Limit:                  120,
			WindowSeconds:          60,
			FailureThreshold:       5,
			RecoveryTimeoutSeconds: 60,
		}
	}
	return resources
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider.timeout_seconds must be > 0")
	}
	if c.Analysis.AttemptBudgetSeconds <= 0 {
		return fmt.Errorf("analysis.attempt_budget_seconds must be > 0")
	}
	if c.Analysis.PoolSize <= 0 {
		return fmt.Errorf("analysis.pool_size must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Batch.MaxConcurrencyCeiling <= 0 {
		return fmt.Errorf("batch.max_concurrency_ceiling must be > 0")
	}
	for name, rc := range c.Resources {
		if rc.Limit <= 0 {
			return fmt.Errorf("resources.%s.limit must be > 0", name)
		}
		if rc.WindowSeconds <= 0 {
			return fmt.Errorf("resources.%s.window_seconds must be > 0", name)
		}
		if rc.FailureThreshold <= 0 {
			return fmt.Errorf("resources.%s.failure_threshold must be > 0", name)
		}
		if rc.RecoveryTimeoutSeconds <= 0 {
			return fmt.Errorf("resources.%s.recovery_timeout_seconds must be > 0", name)
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ProviderTimeout converts the provider timeout config into a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// AttemptBudget converts the analysis budget config into a duration.
func (c Config) AttemptBudget() time.Duration {
	return time.Duration(c.Analysis.AttemptBudgetSeconds) * time.Second
}

// CacheTTL converts the cache TTL config into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}
