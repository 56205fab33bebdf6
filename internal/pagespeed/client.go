// Package pagespeed implements the remote analysis client against the
// PageSpeed Insights style HTTP API. It is the only network-performing
// dependency of the core; every failure it returns carries an explicit
// insight.ProviderError kind so the core never inspects error text.
package pagespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RPS smooths outbound calls; the governor owns the hard quota, this
	// only avoids bursts against the provider. Zero disables pacing.
	RPS   float64
	Burst int
}

// Client calls the analysis provider over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 40 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Run performs one blocking analysis call.
func (c *Client) Run(ctx context.Context, target string, strategy insight.Strategy, categories []insight.Category) (json.RawMessage, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, insight.NewProviderError(insight.ErrKindTargetUnreachable, fmt.Errorf("invalid target url: %w", err))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacing wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(target, strategy, categories), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, insight.NewProviderError(insight.ErrKindTransient, fmt.Errorf("provider request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, insight.NewProviderError(insight.ErrKindTransient, fmt.Errorf("read provider response: %w", err))
	}

	c.logger.Debug("provider call finished",
		zap.String("target", target),
		zap.String("strategy", string(strategy)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, c.translateError(resp, body)
	}
	return body, nil
}

func (c *Client) requestURL(target string, strategy insight.Strategy, categories []insight.Category) string {
	q := url.Values{}
	q.Set("url", target)
	q.Set("strategy", strings.ToUpper(string(strategy)))
	for _, cat := range categories {
		q.Add("category", strings.ToUpper(strings.ReplaceAll(string(cat), "-", "_")))
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	return c.baseURL + "?" + q.Encode()
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// translateError maps a non-200 provider response onto an explicit error
// kind. Document-request failures mean the analyzed site was unreachable and
// must not be blamed on the provider.
func (c *Client) translateError(resp *http.Response, body []byte) error {
	var envelope apiError
	_ = json.Unmarshal(body, &envelope)
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, envelope.Error.Message)

	perr := &insight.ProviderError{StatusCode: resp.StatusCode, Err: cause}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		envelope.Error.Status == "RESOURCE_EXHAUSTED":
		perr.Kind = insight.ErrKindRateLimited
		perr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case isDocumentFailure(envelope.Error.Message):
		perr.Kind = insight.ErrKindTargetUnreachable
	case resp.StatusCode >= 500:
		perr.Kind = insight.ErrKindTransient
	case resp.StatusCode == http.StatusBadRequest:
		// The provider reports unfetchable targets as 400s with a
		// lighthouse error payload; anything else here is a bad request
		// we built, which retrying will not fix.
		perr.Kind = insight.ErrKindTargetUnreachable
	default:
		perr.Kind = insight.ErrKindTransient
	}
	return perr
}

// Lighthouse runtime error codes for targets that could not be loaded.
var documentFailureCodes = []string{
	"FAILED_DOCUMENT_REQUEST",
	"ERRORED_DOCUMENT_REQUEST",
	"DNS_FAILURE",
	"NOT_HTML",
}

func isDocumentFailure(message string) bool {
	for _, code := range documentFailureCodes {
		if strings.Contains(message, code) {
			return true
		}
	}
	return false
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
