// Package api exposes the HTTP interface for the insight service.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/analyzer"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/batch"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/config"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/insight"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/metrics"
	"github.com/jshnjovu/agentic-ai-webtrials-sub000/internal/policy/governor"
)

// Server wires HTTP handlers to the coordinators and the governor.
type Server struct {
	router   chi.Router
	analyzer *analyzer.Coordinator
	batch    *batch.Coordinator
	governor *governor.Governor
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	coordinator *analyzer.Coordinator,
	batchCoordinator *batch.Coordinator,
	gov *governor.Governor,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		analyzer: coordinator,
		batch:    batchCoordinator,
		governor: gov,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.submitAnalysis)
			r.Post("/batch", s.submitBatch)
		})
		r.Route("/resources/{resource}", func(r chi.Router) {
			r.Get("/quota", s.getQuota)
			r.Get("/circuit", s.getCircuit)
			r.Post("/circuit/reset", s.resetCircuit)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The core holds only in-memory state; readiness tracks liveness.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type analysisRequest struct {
	URL        string   `json:"url"`
	Strategies []string `json:"strategies"`
}

type batchRequest struct {
	URLs           []string `json:"urls"`
	Strategies     []string `json:"strategies"`
	MaxConcurrency int      `json:"max_concurrency"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := normalizeTarget(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategies, err := parseStrategies(req.Strategies)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := s.analyzer.Analyze(r.Context(), target, strategies...)
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	targets := make([]string, 0, len(req.URLs))
	for _, raw := range req.URLs {
		target, err := normalizeTarget(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		targets = append(targets, target)
	}
	strategies, err := parseStrategies(req.Strategies)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := s.batch.Run(r.Context(), targets, strategies, req.MaxConcurrency)
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) getQuota(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	info, ok := s.governor.QuotaInfo(resource)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) getCircuit(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	info, ok := s.governor.CircuitInfo(resource)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) resetCircuit(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	if !s.governor.Reset(resource) {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	s.logger.Info("circuit reset via API", zap.String("resource", resource))
	writeJSON(w, http.StatusOK, map[string]string{"resource": resource, "status": "closed"})
}

// normalizeTarget validates the raw URL and canonicalizes it for caching.
func normalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingURL
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Hostname() == "" {
		return "", errInvalidURL
	}
	// url.Parse lowercases the scheme; the host is on us.
	u.Host = strings.ToLower(u.Host)
	return strings.TrimSuffix(u.String(), "/"), nil
}

func parseStrategies(raw []string) ([]insight.Strategy, error) {
	strategies := make([]insight.Strategy, 0, len(raw))
	for _, name := range raw {
		strategy := insight.Strategy(strings.ToLower(strings.TrimSpace(name)))
		if !strategy.Valid() {
			return nil, errInvalidStrategy
		}
		strategies = append(strategies, strategy)
	}
	return strategies, nil
}
