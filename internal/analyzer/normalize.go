package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
)

// providerEnvelope is the subset of the provider payload the core reads.
// The full payload is retained opaquely for downstream callers.
type providerEnvelope struct {
	LighthouseResult struct {
		Categories map[string]struct {
			Score *float64 `json:"score"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
}

// normalize converts a raw provider payload into a StrategyResult with
// category scores on a 0-100 scale.
func normalize(payload json.RawMessage, strategy insight.Strategy, fetchedAt time.Time) (insight.StrategyResult, error) {
	var envelope providerEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return insight.StrategyResult{}, fmt.Errorf("decode provider payload: %w", err)
	}
	if len(envelope.LighthouseResult.Categories) == 0 {
		return insight.StrategyResult{}, fmt.Errorf("provider payload has no category scores")
	}

	scores := make(map[insight.Category]float64, len(envelope.LighthouseResult.Categories))
	for id, cat := range envelope.LighthouseResult.Categories {
		if cat.Score == nil {
			continue
		}
		scores[insight.Category(id)] = math.Round(*cat.Score * 100)
	}
	if len(scores) == 0 {
		return insight.StrategyResult{}, fmt.Errorf("provider payload has only null category scores")
	}

	return insight.StrategyResult{
		Strategy:  strategy,
		Scores:    scores,
		Raw:       payload,
		FetchedAt: fetchedAt,
	}, nil
}
