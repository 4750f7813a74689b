// Package suggest runs the suggestion retry loop: generate candidates, check
// them, accumulate results until the available target is met or the retry
// budget runs out. Batch and streaming responses share the same loop and
// differ only in the sink.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/namescout/namescout/internal/dispatch"
	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/llm"
	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/queue"
	"github.com/namescout/namescout/internal/store"
	"github.com/namescout/namescout/internal/track"
)

// Checker is the dispatcher surface the orchestrator needs. Satisfied by
// *dispatch.Dispatcher and by scripted test fakes.
type Checker interface {
	Dispatch(ctx context.Context, candidates []string) (*dispatch.Result, error)
}

// Request is one suggestion request after transport-level validation.
type Request struct {
	Description string
	TargetCount int
	PromptType  llm.PromptType
	Preferences *llm.Preferences
	SimilarTo   string
}

// Outcome is the terminal state of one request, independent of mode.
type Outcome struct {
	Suggestions    []models.DomainSuggestion
	AvailableCount int
	Retries        int
	Model          string
}

// Orchestrator drives the generate/check/accumulate loop.
type Orchestrator struct {
	generator  llm.Generator
	dispatcher Checker
	queue      queue.Client
	store      store.Store
	maxRetries int
	logger     *slog.Logger
}

// New wires an orchestrator. store and queue may be in-memory implementations.
func New(gen llm.Generator, disp Checker, q queue.Client, st store.Store, maxRetries int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator:  gen,
		dispatcher: disp,
		queue:      q,
		store:      st,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Run executes the loop for one request, emitting progress through sink.
// Terminal persistence (suggestion row, domain upserts, metrics) happens on a
// background goroutine that outlives the call.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink EventSink) (*Outcome, error) {
	tracker := track.New()
	if depth, err := o.queue.QueueDepth(ctx); err == nil {
		tracker.SetQueueDepth(depth)
	}

	if err := sink.Start(ctx); err != nil {
		return nil, err
	}

	outcome, runErr := o.loop(ctx, req, sink, tracker)

	if runErr != nil {
		apiErr := toAPIError(runErr)
		tracker.AddError(apiErr.Error())
		if err := sink.Error(ctx, apiErr); err != nil {
			o.logger.Debug("error event dropped", "error", err)
		}
		// Metrics still flush so failed requests stay visible.
		o.persistAsync(req, outcome, tracker)
		return nil, apiErr
	}

	for _, rec := range outcome.Suggestions {
		tracker.AddDomainStatus(rec.Status)
	}

	resp := models.SuggestionResponse{
		Suggestions: outcome.Suggestions,
		Total:       len(outcome.Suggestions),
		Available:   outcome.AvailableCount,
	}
	if err := sink.Complete(ctx, resp); err != nil {
		o.logger.Debug("complete event dropped", "error", err)
	}

	o.persistAsync(req, outcome, tracker)
	return outcome, nil
}

func (o *Orchestrator) loop(ctx context.Context, req Request, sink EventSink, tracker *track.Tracker) (*Outcome, error) {
	outcome := &Outcome{}
	if req.TargetCount == 0 {
		return outcome, nil
	}

	// accumulated maps fqdn to its index in outcome.Suggestions.
	accumulated := make(map[string]int)
	retries := 0

	for retries < o.maxRetries && outcome.AvailableCount < req.TargetCount {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		tracker.StartTimer(track.TimerLLM)
		tracker.IncrementLLMCall()
		gen, err := o.generator.Generate(ctx, llm.GenerateRequest{
			Description: req.Description,
			TargetCount: req.TargetCount,
			PromptType:  req.PromptType,
			Preferences: req.Preferences,
			SimilarTo:   req.SimilarTo,
		})
		tracker.StopTimer(track.TimerLLM)
		if err != nil {
			return outcome, err
		}
		tracker.AddLLMTokens(gen.TotalTokens, gen.PromptTokens, gen.CompletionTokens)
		outcome.Model = gen.Model

		candidates := make([]string, 0, len(gen.Domains))
		for _, d := range gen.Domains {
			candidates = append(candidates, domainutil.Normalize(d))
		}
		tracker.AddDomainsGenerated(candidates)

		// Skip entries already accumulated as available; everything else gets
		// (re)checked, which is how upgrades happen.
		toCheck := make([]string, 0, len(candidates))
		inCheck := make(map[string]bool, len(candidates))
		for _, fqdn := range candidates {
			if inCheck[fqdn] {
				continue
			}
			if idx, seen := accumulated[fqdn]; seen && outcome.Suggestions[idx].Status == models.DomainAvailable {
				continue
			}
			toCheck = append(toCheck, fqdn)
			inCheck[fqdn] = true
		}

		if len(toCheck) == 0 {
			retries++
			tracker.IncrementRetry()
			continue
		}

		tracker.StartTimer(track.TimerWorker)
		result, err := o.dispatcher.Dispatch(ctx, toCheck)
		tracker.StopTimer(track.TimerWorker)
		if err != nil {
			return outcome, err
		}
		for range toCheck {
			tracker.IncrementWorkerJob()
		}

		now := time.Now()
		for _, fqdn := range candidates {
			idx, seen := accumulated[fqdn]
			if !inCheck[fqdn] && !seen {
				// Capped in an earlier pass; stays dropped.
				continue
			}
			status := models.MapWorkerStatus(result.Statuses[fqdn])

			if seen {
				existing := &outcome.Suggestions[idx]
				if existing.Status != models.DomainAvailable && status == models.DomainAvailable {
					existing.Status = status
					existing.UpdatedAt = now
					outcome.AvailableCount++
					if err := o.emit(ctx, sink, tracker, models.SuggestionsEvent{
						Updates:        []models.DomainSuggestion{*existing},
						AvailableCount: outcome.AvailableCount,
						Total:          len(outcome.Suggestions),
					}, status); err != nil {
						return outcome, err
					}
				}
				continue
			}

			if status == models.DomainAvailable && outcome.AvailableCount >= req.TargetCount {
				// Cap reached; do not pad with more availables.
				continue
			}

			rec := models.DomainSuggestion{
				Domain:    fqdn,
				TLD:       domainutil.Parse(fqdn).PublicSuffix,
				Status:    status,
				CreatedAt: now,
				UpdatedAt: now,
			}
			outcome.Suggestions = append(outcome.Suggestions, rec)
			accumulated[fqdn] = len(outcome.Suggestions) - 1
			if status == models.DomainAvailable {
				outcome.AvailableCount++
			}
			if err := o.emit(ctx, sink, tracker, models.SuggestionsEvent{
				New:            []models.DomainSuggestion{rec},
				AvailableCount: outcome.AvailableCount,
				Total:          len(outcome.Suggestions),
			}, status); err != nil {
				return outcome, err
			}
		}

		retries++
		tracker.IncrementRetry()
	}

	outcome.Retries = retries
	return outcome, nil
}

// emit delivers one suggestions event. A sink error means the consumer is
// gone; it propagates so the loop abandons the pass.
func (o *Orchestrator) emit(ctx context.Context, sink EventSink, tracker *track.Tracker, ev models.SuggestionsEvent, status models.DomainStatus) error {
	if status == models.DomainAvailable {
		tracker.MarkFirstSuggestion()
	}
	if err := sink.Suggestions(ctx, ev); err != nil {
		return fmt.Errorf("emit suggestions event: %w", err)
	}
	return nil
}

// persistAsync writes the suggestion row, domain upserts, and metrics on a
// goroutine detached from the request context.
func (o *Orchestrator) persistAsync(req Request, outcome *Outcome, tracker *track.Tracker) {
	suggestions := append([]models.DomainSuggestion(nil), outcome.Suggestions...)

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		model := outcome.Model
		if model == "" {
			model = "unknown"
		}

		dbStart := time.Now()
		suggID, err := o.store.CreateSuggestion(bg, store.SuggestionRow{
			Description: req.Description,
			Count:       req.TargetCount,
			Model:       model,
			Prompt:      string(req.PromptType),
		})
		if err != nil {
			o.logger.Warn("suggestion row write failed", "error", err)
			return
		}

		now := time.Now()
		for _, rec := range suggestions {
			cand := domainutil.Parse(rec.Domain)
			checkedAt := now
			up := store.DomainUpsert{
				Domain:       rec.Domain,
				DomainName:   cand.RegistrablePart,
				TLD:          cand.PublicSuffix,
				Status:       rec.Status,
				CheckedAt:    &checkedAt,
				SuggestionID: &suggID,
			}
			if err := o.store.UpsertDomain(bg, up); err != nil {
				o.logger.Warn("domain upsert failed", "domain", rec.Domain, "error", err)
			}
		}
		tracker.SetDBWriteDuration(time.Since(dbStart).Milliseconds())

		if err := tracker.Save(bg, o.store, suggID, req.TargetCount); err != nil {
			o.logger.Warn("metrics write failed", "error", err)
		}
	}()
}

// toAPIError maps internal failures to the user-facing error taxonomy.
func toAPIError(err error) *models.APIError {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return models.NewAPIError(models.CodeRateLimited, err.Error())
	case errors.Is(err, llm.ErrServiceUnavailable):
		return models.NewAPIError(models.CodeServiceUnavailable, err.Error())
	case errors.Is(err, llm.ErrGenerationFailed):
		return models.NewAPIError(models.CodeGenerationFailed, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.CodeTimeout, err.Error())
	default:
		return models.NewAPIError(models.CodeInternalError, err.Error())
	}
}
