// Package app composes the API process: store, queue client, LLM client,
// dispatcher, orchestrator, and HTTP server. Chooses in-memory backends when
// Redis or Postgres are not configured, which keeps local development and
// tests dependency-free.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/namescout/namescout/internal/api"
	"github.com/namescout/namescout/internal/checker"
	"github.com/namescout/namescout/internal/config"
	"github.com/namescout/namescout/internal/dispatch"
	"github.com/namescout/namescout/internal/llm"
	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/queue"
	"github.com/namescout/namescout/internal/store"
	"github.com/namescout/namescout/internal/suggest"
)

// resultTTL bounds how long finished job results stay readable in Redis.
const resultTTL = 24 * time.Hour

// APIApp wraps the composed API process for lifecycle management.
type APIApp struct {
	cfg    *config.Config
	store  store.Store
	queue  queue.Client
	server *api.Server
}

// NewAPIApp wires the API process. Empty redisURL selects the in-memory queue
// with an in-process checker; empty databaseURL selects the in-memory store.
func NewAPIApp(ctx context.Context, cfg *config.Config, redisURL, databaseURL string) (*APIApp, error) {
	a := &APIApp{cfg: cfg}

	if databaseURL == "" {
		slog.Info("No database configured, using in-memory store")
		a.store = store.NewMemoryStore()
	} else {
		st, err := store.OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
	}

	if redisURL == "" {
		slog.Info("No Redis configured, using in-memory queue with in-process checks")
		a.queue = queue.NewMemoryClient(inProcessRunner(cfg))
	} else {
		a.queue = queue.NewAsynqClient(queue.RedisAddr(redisURL), cfg.GetQueueName(), resultTTL)
	}

	generator := llm.NewClient(llm.Options{
		BaseURL:     cfg.GetLLMBaseURL(),
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.GetLLMModel(),
		Temperature: cfg.GetLLMTemperature(),
		TopP:        cfg.GetLLMTopP(),
		MaxTokens:   cfg.GetLLMMaxCompletionTokens(),
	})

	dispatcher := dispatch.New(a.queue, a.store, cfg.GetJobTimeout(), nil)
	orchestrator := suggest.New(generator, dispatcher, a.queue, a.store, cfg.GetMaxSuggestionsRetries(), nil)
	a.server = api.NewServer(cfg, orchestrator, dispatcher, a.queue, a.store)

	return a, nil
}

// inProcessRunner executes check jobs inside the API process when no Redis
// queue exists. Rechecks never fire in this mode (no idle supervisor).
func inProcessRunner(cfg *config.Config) queue.Runner {
	chk := checker.New(cfg.GetDNSServer(), cfg.GetDNSTimeout())
	return func(ctx context.Context, taskType string, payload []byte) (any, error) {
		switch taskType {
		case queue.TaskTypeDomainCheck:
			var p queue.CheckPayload
			if err := decodePayload(payload, &p); err != nil {
				return nil, err
			}
			status := chk.Check(ctx, p.Domain)
			return models.CheckResult{Domain: p.Domain, Status: status, WorkerID: "in-process"}, nil
		default:
			return nil, fmt.Errorf("unsupported task type %q in memory mode", taskType)
		}
	}
}

func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Run starts the HTTP server on the configured address.
func (a *APIApp) Run(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	slog.Info("Starting API", "address", addr)
	return a.server.Run(addr)
}

// Server exposes the HTTP server for tests.
func (a *APIApp) Server() *api.Server { return a.server }

// Shutdown closes queue and store connections.
func (a *APIApp) Shutdown(_ context.Context) error {
	var firstErr error
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
