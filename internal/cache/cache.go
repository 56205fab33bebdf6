// Package cache implements a TTL-bounded result cache with amortized sweeps.
//
// Entries expire logically on read, so an expired payload is never served
// even if a sweep has not removed it yet. Physical cleanup runs after every
// N puts or once the cache crosses a size threshold, keeping per-operation
// cost flat. The key space is sharded so unrelated keys do not contend on
// one lock.
package cache

import (
	"hash/fnv"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/metrics"
)

const shardCount = 16

// Config controls cache behavior.
type Config struct {
	// TTL applied to entries stored via Put.
	TTL time.Duration
	// SweepEveryPuts triggers a sweep after this many puts (default 64).
	SweepEveryPuts int
	// SweepSizeThreshold triggers a sweep once the cache holds this many
	// entries (default 1024). The threshold triggers cleanup of expired
	// entries only; live entries are never force-evicted.
	SweepSizeThreshold int
}

type entry struct {
	result     insight.StrategyResult
	insertedAt time.Time
	ttl        time.Duration
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Cache stores normalized analysis results keyed by target, strategy and
// category set.
type Cache struct {
	cfg    Config
	clock  insight.Clock
	shards [shardCount]*shard

	putsMu sync.Mutex
	puts   int64
}

// New builds a Cache.
func New(cfg Config, clock insight.Clock) *Cache {
	if cfg.SweepEveryPuts <= 0 {
		cfg.SweepEveryPuts = 64
	}
	if cfg.SweepSizeThreshold <= 0 {
		cfg.SweepSizeThreshold = 1024
	}
	c := &Cache{cfg: cfg, clock: clock}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return c
}

// Key builds the canonical cache key for one analysis dimension tuple.
// Categories are sorted so the same set always yields the same key.
func Key(target string, strategy insight.Strategy, categories []insight.Category) string {
	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = string(cat)
	}
	sort.Strings(names)
	return canonicalTarget(target) + "|" + string(strategy) + "|" + strings.Join(names, ",")
}

// canonicalTarget lowercases the scheme and host only. Path and query are
// case sensitive and may address distinct documents, so they pass through
// untouched.
func canonicalTarget(target string) string {
	target = strings.TrimSuffix(target, "/")
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// Get returns the cached result for key if present and not logically expired.
func (c *Cache) Get(key string) (insight.StrategyResult, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		metrics.ObserveCacheLookup("miss")
		return insight.StrategyResult{}, false
	}
	if c.clock.Now().Sub(e.insertedAt) >= e.ttl {
		delete(s.entries, key)
		metrics.ObserveCacheLookup("expired")
		return insight.StrategyResult{}, false
	}
	metrics.ObserveCacheLookup("hit")
	result := e.result
	result.FromCache = true
	return result, true
}

// Put stores result under key, unconditionally overwriting any prior entry.
func (c *Cache) Put(key string, result insight.StrategyResult) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry{
		result:     result,
		insertedAt: c.clock.Now(),
		ttl:        c.cfg.TTL,
	}
	s.mu.Unlock()

	c.putsMu.Lock()
	c.puts++
	due := c.puts%int64(c.cfg.SweepEveryPuts) == 0
	c.putsMu.Unlock()

	if due || c.Len() >= c.cfg.SweepSizeThreshold {
		c.Sweep()
	}
	metrics.SetCacheEntries(c.Len())
}

// Sweep removes every physically expired entry across all shards.
func (c *Cache) Sweep() {
	now := c.clock.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if now.Sub(e.insertedAt) >= e.ttl {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

// Len returns the number of physically resident entries.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}
