// Package api provides the HTTP surface: suggestion generation (batch and
// SSE streaming), single-domain status checks, health, and metrics.
// Uses chi router, tollbooth rate limiting, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/namescout/namescout/internal/config"
	"github.com/namescout/namescout/internal/dispatch"
	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/llm"
	"github.com/namescout/namescout/internal/metrics"
	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/queue"
	"github.com/namescout/namescout/internal/store"
	"github.com/namescout/namescout/internal/suggest"
)

// APIVersion is the current version of the API.
const APIVersion = "1.0.0"

// Server wires the router to the orchestrator, dispatcher, and store.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	orchestrator *suggest.Orchestrator
	dispatcher   *dispatch.Dispatcher
	queueClient  queue.Client
	store        store.Store
}

// NewServer configures the middleware stack and routes.
func NewServer(cfg *config.Config, orch *suggest.Orchestrator, disp *dispatch.Dispatcher, q queue.Client, st store.Store) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		orchestrator: orch,
		dispatcher:   disp,
		queueClient:  q,
		store:        st,
	}

	// Tollbooth rate limiter with configurable IP source.
	// Only enabled when RequestsPerSecond > 0 (0 = disabled).
	if cfg.GetRateLimitRequestsPerSecond() > 0 {
		lmt := tollbooth.NewLimiter(
			float64(cfg.GetRateLimitRequestsPerSecond()),
			&limiter.ExpirableOptions{DefaultExpirationTTL: 10 * time.Minute},
		)
		lmt.SetBurst(cfg.GetRateLimitBurstSize())

		ipSource := os.Getenv("RATE_LIMIT_IP_SOURCE")
		if ipSource == "" {
			ipSource = "RemoteAddr"
		}
		lmt.SetIPLookup(limiter.IPLookup{Name: ipSource, IndexFromRight: 0})
		lmt.SetMessage(`{"code":"rate_limited","message":"You've made too many requests. Please wait a moment before trying again.","retry_allowed":true}`)
		lmt.SetMessageContentType("application/json")

		s.router.Use(func(next http.Handler) http.Handler {
			return tollbooth.HTTPMiddleware(lmt)(next)
		})
	}

	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Post("/suggestions", s.handleSuggestions)
	s.router.Get("/suggestions/stream", s.handleSuggestionsStream)
	s.router.Get("/domain", s.handleDomainStatus)
	s.router.Get("/health", s.handleHealthCheck)
	s.router.Head("/health", s.handleHealthCheck)
	s.router.Get("/metrics", s.handleMetrics)
	return s
}

// Router exposes chi.Mux for testing.
func (s *Server) Router() http.Handler { return s.router }

// Run starts the HTTP server with config-driven timeouts. The generous write
// timeout keeps long SSE streams alive.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.GetServerReadTimeout()) * time.Second,
		WriteTimeout: time.Duration(s.config.GetServerWriteTimeout()) * time.Second,
		IdleTimeout:  time.Duration(s.config.GetServerIdleTimeout()) * time.Second,
	}
	return srv.ListenAndServe()
}

// handleSuggestions runs the full suggestion loop and returns the buffered result.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	metrics.APIRequestsTotal.WithLabelValues("suggestions").Inc()

	var req models.SuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, models.NewAPIError(models.CodeInvalidInput, "malformed JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, err)
		return
	}

	promptType, err := llm.ParsePromptType(req.PromptType)
	if err != nil {
		respondAPIError(w, models.NewAPIError(models.CodeInvalidInput, err.Error()))
		return
	}

	outcome, err := s.orchestrator.Run(r.Context(), suggest.Request{
		Description: req.Description,
		TargetCount: req.Count,
		PromptType:  promptType,
	}, suggest.BufferSink{})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.SuggestionResponse{
		Suggestions: outcome.Suggestions,
		Total:       len(outcome.Suggestions),
		Available:   outcome.AvailableCount,
	})
}

// handleSuggestionsStream runs the same loop with SSE emission. Parameters
// come from the query string so EventSource clients work without preflight.
func (s *Server) handleSuggestionsStream(w http.ResponseWriter, r *http.Request) {
	metrics.APIRequestsTotal.WithLabelValues("suggestions_stream").Inc()

	q := r.URL.Query()
	req := models.SuggestionRequest{
		Description: q.Get("description"),
		PromptType:  q.Get("prompt_type"),
	}
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondAPIError(w, models.NewAPIError(models.CodeInvalidInput, "count must be an integer"))
			return
		}
		req.Count = n
	}
	if err := req.Validate(); err != nil {
		respondError(w, err)
		return
	}

	promptType, err := llm.ParsePromptType(req.PromptType)
	if err != nil {
		respondAPIError(w, models.NewAPIError(models.CodeInvalidInput, err.Error()))
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		respondAPIError(w, models.NewAPIError(models.CodeInternalError, "streaming unsupported"))
		return
	}

	// Errors surface through the sink's error event; nothing more to write here.
	_, _ = s.orchestrator.Run(r.Context(), suggest.Request{
		Description: req.Description,
		TargetCount: req.Count,
		PromptType:  promptType,
	}, sink)
}

// handleDomainStatus checks one domain synchronously: enqueue, wait, respond.
func (s *Server) handleDomainStatus(w http.ResponseWriter, r *http.Request) {
	metrics.APIRequestsTotal.WithLabelValues("domain").Inc()

	raw := r.URL.Query().Get("domain")
	if raw == "" {
		respondAPIError(w, models.NewAPIError(models.CodeInvalidInput, "domain parameter is required"))
		return
	}
	fqdn := domainutil.Normalize(raw)
	if !domainutil.IsValid(fqdn) {
		respondAPIError(w, models.NewAPIError(models.CodeInvalidInput, "domain is not checkable"))
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), []string{fqdn})
	if err != nil {
		respondError(w, err)
		return
	}
	status := models.MapWorkerStatus(result.Statuses[fqdn])

	// Persist the fresh observation without delaying the response.
	go func() {
		bg, cancel := contextWithPersistTimeout()
		defer cancel()
		_ = s.store.TouchDomainStatus(bg, fqdn, status, time.Now())
	}()

	respondJSON(w, http.StatusOK, models.DomainStatusResponse{Domain: fqdn, Status: status})
}

// handleHealthCheck returns degraded when no workers are connected.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.HealthResponse{Status: "ok"}

	if s.queueClient.ActiveWorkers(r.Context()) == 0 {
		health.Status = "degraded"
		health.Warning = "no active workers detected"
	}

	if health.Status == "degraded" {
		respondJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	respondJSON(w, http.StatusOK, health)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondAPIError(w http.ResponseWriter, apiErr *models.APIError) {
	respondJSON(w, apiErr.HTTPStatus(), apiErr)
}

func contextWithPersistTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// respondError maps any error to the APIError taxonomy before responding.
func respondError(w http.ResponseWriter, err error) {
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		apiErr = models.NewAPIError(models.CodeInternalError, err.Error())
	}
	respondAPIError(w, apiErr)
}
