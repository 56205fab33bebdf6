package analyzer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
)

func TestNormalize_ScoresScaledAndRounded(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"lighthouseResult":{"categories":{
		"performance":{"score":0.935},
		"accessibility":{"score":1},
		"best-practices":{"score":0},
		"seo":{"score":0.004}
	}}}`)
	fetchedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	result, err := normalize(payload, insight.StrategyDesktop, fetchedAt)
	require.NoError(t, err)
	require.Equal(t, insight.StrategyDesktop, result.Strategy)
	require.Equal(t, float64(94), result.Scores[insight.CategoryPerformance])
	require.Equal(t, float64(100), result.Scores[insight.CategoryAccessibility])
	require.Equal(t, float64(0), result.Scores[insight.CategoryBestPractices])
	require.Equal(t, float64(0), result.Scores[insight.CategorySEO])
	require.Equal(t, fetchedAt, result.FetchedAt)
	require.JSONEq(t, string(payload), string(result.Raw))
}

func TestNormalize_NullScoresSkipped(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"lighthouseResult":{"categories":{
		"performance":{"score":null},
		"seo":{"score":0.5}
	}}}`)

	result, err := normalize(payload, insight.StrategyMobile, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Scores, 1)
	require.Equal(t, float64(50), result.Scores[insight.CategorySEO])
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `<html>error</html>`},
		{name: "no categories", payload: `{"lighthouseResult":{"categories":{}}}`},
		{name: "all scores null", payload: `{"lighthouseResult":{"categories":{"performance":{"score":null}}}}`},
		{name: "empty object", payload: `{}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := normalize(json.RawMessage(tc.payload), insight.StrategyMobile, time.Now())
			require.Error(t, err)
		})
	}
}
