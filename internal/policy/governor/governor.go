// Package governor enforces per-resource sliding-window rate limits layered
// with a circuit breaker. One Governor instance is shared by every caller so
// the quota window and breaker for a resource can never disagree.
package governor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/metrics"
)

// CircuitStatus is the breaker state of one governed resource.
type CircuitStatus string

// Breaker states.
const (
	CircuitClosed   CircuitStatus = "closed"
	CircuitOpen     CircuitStatus = "open"
	CircuitHalfOpen CircuitStatus = "half_open"
)

// Reason explains why CanProceed rejected a call.
type Reason string

// Rejection reasons.
const (
	ReasonAllowed         Reason = ""
	ReasonUnknownResource Reason = "unknown resource"
	ReasonQuotaExhausted  Reason = "quota exhausted"
	ReasonCircuitOpen     Reason = "circuit open"
)

// ResourceConfig declares the limits for one externally governed resource.
// It is constructed once at startup and passed by reference.
type ResourceConfig struct {
	Limit            int
	Window           time.Duration
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// QuotaInfo is a point-in-time snapshot of a resource's window usage.
type QuotaInfo struct {
	Resource  string    `json:"resource"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// CircuitInfo is a point-in-time snapshot of a resource's breaker.
type CircuitInfo struct {
	Resource            string        `json:"resource"`
	Status              CircuitStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailureAt       *time.Time    `json:"last_failure_at,omitempty"`
}

// resourceState holds the mutable window and breaker for one resource. Each
// resource has its own mutex so contention on one never serializes others.
type resourceState struct {
	mu  sync.Mutex
	cfg ResourceConfig

	stamps []time.Time

	status              CircuitStatus
	consecutiveFailures int
	lastFailureAt       time.Time
}

// Governor tracks every configured resource. The resource map is built at
// construction and never mutated afterwards, so lookups need no lock.
type Governor struct {
	resources map[string]*resourceState
	clock     insight.Clock
	logger    *zap.Logger
}

// New builds a Governor for the configured resources.
func New(configs map[string]ResourceConfig, clock insight.Clock, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	resources := make(map[string]*resourceState, len(configs))
	for name, cfg := range configs {
		resources[name] = &resourceState{
			cfg:    cfg,
			stamps: make([]time.Time, 0, cfg.Limit),
			status: CircuitClosed,
		}
	}
	return &Governor{
		resources: resources,
		clock:     clock,
		logger:    logger,
	}
}

// CanProceed decides whether a new call against resource may start. An
// admitted call consumes one slot of the sliding window immediately; quota is
// spent by attempting, not by succeeding. Breaker rejections do not consume
// quota.
func (g *Governor) CanProceed(resource string) (bool, Reason) {
	rs, ok := g.resources[resource]
	if !ok {
		return false, ReasonUnknownResource
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := g.clock.Now()

	if rs.status == CircuitOpen {
		if now.Sub(rs.lastFailureAt) >= rs.cfg.RecoveryTimeout {
			rs.status = CircuitHalfOpen
			g.logger.Info("circuit half-open, admitting probe", zap.String("resource", resource))
			metrics.SetCircuitState(resource, string(CircuitHalfOpen))
		} else {
			metrics.IncRejection(resource, string(ReasonCircuitOpen))
			return false, ReasonCircuitOpen
		}
	}

	rs.prune(now)
	if len(rs.stamps) >= rs.cfg.Limit {
		metrics.IncRejection(resource, string(ReasonQuotaExhausted))
		return false, ReasonQuotaExhausted
	}

	rs.stamps = append(rs.stamps, now)
	return true, ReasonAllowed
}

// RecordSuccess notes a successful provider call. In half-open state this
// closes the circuit and clears the failure count.
func (g *Governor) RecordSuccess(resource string) {
	rs, ok := g.resources[resource]
	if !ok {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.status != CircuitClosed {
		g.logger.Info("circuit closed after successful probe", zap.String("resource", resource))
	}
	rs.status = CircuitClosed
	rs.consecutiveFailures = 0
	rs.lastFailureAt = time.Time{}
	metrics.SetCircuitState(resource, string(CircuitClosed))
}

// RecordFailure notes a provider-side failure. Callers must not report
// target-side failures here; those say nothing about the provider's health.
func (g *Governor) RecordFailure(resource string) {
	rs, ok := g.resources[resource]
	if !ok {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.consecutiveFailures++
	rs.lastFailureAt = g.clock.Now()

	switch {
	case rs.status == CircuitHalfOpen:
		rs.status = CircuitOpen
		g.logger.Warn("probe failed, circuit re-opened", zap.String("resource", resource))
		metrics.SetCircuitState(resource, string(CircuitOpen))
	case rs.status == CircuitClosed && rs.consecutiveFailures >= rs.cfg.FailureThreshold:
		rs.status = CircuitOpen
		g.logger.Warn("failure threshold reached, circuit opened",
			zap.String("resource", resource),
			zap.Int("consecutive_failures", rs.consecutiveFailures),
		)
		metrics.SetCircuitState(resource, string(CircuitOpen))
	}
}

// Reset forces the resource's circuit closed and clears its failure count.
// Operational escape hatch; the quota window is left untouched.
func (g *Governor) Reset(resource string) bool {
	rs, ok := g.resources[resource]
	if !ok {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.status = CircuitClosed
	rs.consecutiveFailures = 0
	rs.lastFailureAt = time.Time{}
	g.logger.Info("circuit manually reset", zap.String("resource", resource))
	metrics.SetCircuitState(resource, string(CircuitClosed))
	return true
}

// QuotaInfo reports current window usage for a resource. Returns false if the
// resource is not configured.
func (g *Governor) QuotaInfo(resource string) (QuotaInfo, bool) {
	rs, ok := g.resources[resource]
	if !ok {
		return QuotaInfo{}, false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := g.clock.Now()
	rs.prune(now)

	info := QuotaInfo{
		Resource:  resource,
		Used:      len(rs.stamps),
		Limit:     rs.cfg.Limit,
		Remaining: rs.cfg.Limit - len(rs.stamps),
		ResetAt:   now,
	}
	if len(rs.stamps) > 0 {
		info.ResetAt = rs.stamps[0].Add(rs.cfg.Window)
	}
	return info, true
}

// CircuitInfo reports the breaker state for a resource. Returns false if the
// resource is not configured.
func (g *Governor) CircuitInfo(resource string) (CircuitInfo, bool) {
	rs, ok := g.resources[resource]
	if !ok {
		return CircuitInfo{}, false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	info := CircuitInfo{
		Resource:            resource,
		Status:              rs.status,
		ConsecutiveFailures: rs.consecutiveFailures,
	}
	if !rs.lastFailureAt.IsZero() {
		at := rs.lastFailureAt
		info.LastFailureAt = &at
	}
	return info, true
}

// Resources lists the configured resource names.
func (g *Governor) Resources() []string {
	names := make([]string, 0, len(g.resources))
	for name := range g.resources {
		names = append(names, name)
	}
	return names
}

// prune drops timestamps older than the window. Stamps are appended in clock
// order, so scanning from the front suffices. Caller must hold rs.mu.
func (rs *resourceState) prune(now time.Time) {
	cutoff := now.Add(-rs.cfg.Window)
	idx := 0
	for idx < len(rs.stamps) && !rs.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		rs.stamps = append(rs.stamps[:0], rs.stamps[idx:]...)
	}
}
