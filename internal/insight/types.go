// Package insight defines core types shared across subsystems.
package insight

import (
	"encoding/json"
	"time"
)

// Strategy selects the analysis profile the provider should emulate.
type Strategy string

// Strategies accepted by the analysis provider.
const (
	StrategyMobile  Strategy = "mobile"
	StrategyDesktop Strategy = "desktop"
)

// Valid reports whether the strategy is one the provider understands.
func (s Strategy) Valid() bool {
	return s == StrategyMobile || s == StrategyDesktop
}

// Category identifies one scored audit dimension.
type Category string

// Categories requested from the analysis provider.
const (
	CategoryPerformance   Category = "performance"
	CategoryAccessibility Category = "accessibility"
	CategoryBestPractices Category = "best-practices"
	CategorySEO           Category = "seo"
)

// DefaultCategories is the category set requested when a caller does not
// specify one.
var DefaultCategories = []Category{
	CategoryPerformance,
	CategoryAccessibility,
	CategoryBestPractices,
	CategorySEO,
}

// StrategyResult holds the normalized outcome of one successful
// target+strategy analysis.
type StrategyResult struct {
	Strategy  Strategy             `json:"strategy"`
	Scores    map[Category]float64 `json:"scores"`
	Raw       json.RawMessage      `json:"raw_metrics,omitempty"`
	FetchedAt time.Time            `json:"fetched_at"`
	FromCache bool                 `json:"from_cache"`
	Duration  time.Duration        `json:"-"`
}

// Failure records one classified error encountered while analyzing a target.
type Failure struct {
	Kind       FailureKind   `json:"kind"`
	Strategy   Strategy      `json:"strategy,omitempty"`
	Attempt    int           `json:"attempt"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Outcome is the merged result of analyzing one target across its requested
// strategies. Success is true when at least one strategy produced a result;
// Failures carries every classified error in the order it occurred, so a
// partially successful outcome shows both sides.
type Outcome struct {
	Target   string                      `json:"target"`
	Success  bool                        `json:"success"`
	Results  map[Strategy]StrategyResult `json:"results,omitempty"`
	Failures []Failure                   `json:"failures,omitempty"`
}

// Failed reports whether no strategy produced a result.
func (o Outcome) Failed() bool {
	return !o.Success
}

// BatchOutcome aggregates the outcomes of one batch run. Outcomes is ordered
// to match the input target list, one entry per target.
type BatchOutcome struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}
