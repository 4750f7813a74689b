// Package track accumulates per-request timing and outcome metrics for one
// suggestion request and flushes them to persistence exactly once at the end.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/store"
)

// Timer names with per-attempt duration recording.
const (
	TimerLLM    = "llm"
	TimerWorker = "worker"
)

// Tracker is the per-request accumulator. Safe for concurrent use; the
// streaming path touches it from the event loop and the persistence goroutine.
type Tracker struct {
	mu sync.Mutex

	requestStart time.Time
	timers       map[string]time.Time
	durations    map[string][]int64

	firstSuggestion *int64

	retryCount     int
	llmCallCount   int
	workerJobCount int

	totalGenerated int
	unique         map[string]struct{}
	byStatus       map[models.DomainStatus]int

	tokensTotal      int
	tokensPrompt     int
	tokensCompletion int

	errors []string

	dbWriteMs         int64
	queueDepthAtStart *int

	saved bool
}

// New creates a tracker anchored at the current time.
func New() *Tracker {
	return &Tracker{
		requestStart: time.Now(),
		timers:       make(map[string]time.Time),
		durations: map[string][]int64{
			TimerLLM:    nil,
			TimerWorker: nil,
		},
		unique:   make(map[string]struct{}),
		byStatus: make(map[models.DomainStatus]int),
	}
}

// StartTimer starts (or restarts) a named timer.
func (t *Tracker) StartTimer(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers[name] = time.Now()
}

// StopTimer stops a named timer and records the attempt duration. Returns the
// duration in ms, or -1 if the timer was never started.
func (t *Tracker) StopTimer(name string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	started, ok := t.timers[name]
	if !ok {
		return -1
	}
	delete(t.timers, name)

	ms := time.Since(started).Milliseconds()
	if _, tracked := t.durations[name]; tracked {
		t.durations[name] = append(t.durations[name], ms)
	}
	return ms
}

func (t *Tracker) IncrementRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryCount++
}

func (t *Tracker) IncrementLLMCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmCallCount++
}

func (t *Tracker) IncrementWorkerJob() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workerJobCount++
}

// AddDomainsGenerated records one LLM batch: total count plus unique tracking.
func (t *Tracker) AddDomainsGenerated(domains []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalGenerated += len(domains)
	for _, d := range domains {
		t.unique[d] = struct{}{}
	}
}

// AddDomainStatus records the final API status of one returned domain.
func (t *Tracker) AddDomainStatus(status models.DomainStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byStatus[status]++
}

// AddLLMTokens accumulates token usage across calls.
func (t *Tracker) AddLLMTokens(total, prompt, completion int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokensTotal += total
	t.tokensPrompt += prompt
	t.tokensCompletion += completion
}

// AddError records a non-fatal error encountered during the request.
func (t *Tracker) AddError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, msg)
}

// MarkFirstSuggestion records time-to-first-suggestion. Idempotent.
func (t *Tracker) MarkFirstSuggestion() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstSuggestion == nil {
		ms := time.Since(t.requestStart).Milliseconds()
		t.firstSuggestion = &ms
	}
}

// SetDBWriteDuration records how long the terminal persistence pass took.
func (t *Tracker) SetDBWriteDuration(ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dbWriteMs = ms
}

// SetQueueDepth captures the queue depth observed at request start.
func (t *Tracker) SetQueueDepth(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queueDepthAtStart = &n
}

// TotalDurationMs reports elapsed time since request start.
func (t *Tracker) TotalDurationMs() int64 {
	return time.Since(t.requestStart).Milliseconds()
}

// AvailableCount returns how many returned domains were available.
func (t *Tracker) AvailableCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byStatus[models.DomainAvailable]
}

// Save computes derived fields and writes the metrics row once. Subsequent
// calls are no-ops so the error path and the defer path cannot double-write.
func (t *Tracker) Save(ctx context.Context, st store.Store, suggestionID int64, targetCount int) error {
	t.mu.Lock()
	if t.saved {
		t.mu.Unlock()
		return nil
	}
	t.saved = true

	available := t.byStatus[models.DomainAvailable]
	// The cap can drop generated availables, so returned counts the
	// accumulated list, not unique generated.
	returned := available + t.byStatus[models.DomainRegistered] + t.byStatus[models.DomainUnknown]
	successRate := 0.0
	if targetCount > 0 {
		successRate = float64(available) / float64(targetCount)
		if successRate > 1 {
			successRate = 1
		}
	}

	row := store.MetricsRow{
		SuggestionID:             suggestionID,
		TotalDurationMs:          time.Since(t.requestStart).Milliseconds(),
		LLMTotalDurationMs:       sum(t.durations[TimerLLM]),
		WorkerTotalDurationMs:    sum(t.durations[TimerWorker]),
		DBWriteDurationMs:        t.dbWriteMs,
		TimeToFirstSuggestionMs:  t.firstSuggestion,
		LLMAttemptDurationsMs:    append([]int64(nil), t.durations[TimerLLM]...),
		WorkerAttemptDurationsMs: append([]int64(nil), t.durations[TimerWorker]...),
		RetryCount:               t.retryCount,
		LLMCallCount:             t.llmCallCount,
		WorkerJobCount:           t.workerJobCount,
		TotalDomainsGenerated:    t.totalGenerated,
		UniqueDomainsGenerated:   len(t.unique),
		DomainsReturned:          returned,
		AvailableDomainsCount:    available,
		RegisteredDomainsCount:   t.byStatus[models.DomainRegistered],
		UnknownDomainsCount:      t.byStatus[models.DomainUnknown],
		SuccessRate:              successRate,
		ReachedTarget:            available >= targetCount,
		LLMTokensTotal:           t.tokensTotal,
		LLMTokensPrompt:          t.tokensPrompt,
		LLMTokensCompletion:      t.tokensCompletion,
		ErrorCount:               len(t.errors),
		ErrorMessages:            append([]string(nil), t.errors...),
		QueueDepthAtStart:        t.queueDepthAtStart,
	}
	t.mu.Unlock()

	return st.SaveSuggestionMetrics(ctx, row)
}

func sum(xs []int64) int64 {
	var total int64
	for _, x := range xs {
		total += x
	}
	return total
}
