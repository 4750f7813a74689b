package suggest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/namescout/namescout/internal/dispatch"
	"github.com/namescout/namescout/internal/llm"
	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/queue"
	"github.com/namescout/namescout/internal/store"
)

// scriptedGenerator returns one canned batch per call, repeating the last
// batch once the script runs out.
type scriptedGenerator struct {
	batches [][]string
	calls   int
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, _ llm.GenerateRequest) (*llm.GenerateResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	idx := g.calls
	if idx >= len(g.batches) {
		idx = len(g.batches) - 1
	}
	g.calls++
	batch := g.batches[idx]
	return &llm.GenerateResult{
		Domains:          append([]string(nil), batch...),
		Model:            "test-model",
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
	}, nil
}

// scriptedChecker answers each Dispatch call from the next status map.
type scriptedChecker struct {
	scripts []map[string]models.WorkerStatus
	calls   int
}

func (c *scriptedChecker) Dispatch(_ context.Context, candidates []string) (*dispatch.Result, error) {
	idx := c.calls
	if idx >= len(c.scripts) {
		idx = len(c.scripts) - 1
	}
	c.calls++
	script := c.scripts[idx]

	res := &dispatch.Result{Statuses: make(map[string]models.WorkerStatus, len(candidates))}
	for _, fqdn := range candidates {
		status, ok := script[fqdn]
		if !ok {
			status = models.StatusRegistered
		}
		res.Statuses[fqdn] = status
	}
	return res, nil
}

// recordingSink captures the event stream for assertions.
type recordingSink struct {
	mu        sync.Mutex
	started   bool
	events    []models.SuggestionsEvent
	completed *models.SuggestionResponse
	apiErr    *models.APIError
}

func (s *recordingSink) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *recordingSink) Suggestions(_ context.Context, ev models.SuggestionsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Complete(_ context.Context, resp models.SuggestionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = &resp
	return nil
}

func (s *recordingSink) Error(_ context.Context, apiErr *models.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiErr = apiErr
	return nil
}

func newTestOrchestrator(gen llm.Generator, chk Checker, st *store.MemoryStore, maxRetries int) *Orchestrator {
	return New(gen, chk, queue.NewMemoryClient(nil), st, maxRetries, slog.Default())
}

func waitForMetrics(t *testing.T, st *store.MemoryStore) store.MetricsRow {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rows := st.SuggestionMetrics(); len(rows) > 0 {
			return rows[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("metrics row never persisted")
	return store.MetricsRow{}
}

func TestRunBasicHappyPath(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{
		{"trattoriaberlin.de", "pastaberlin.de", "romaberlin.de", "napoliberlin.de"},
	}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{{
		"trattoriaberlin.de": models.StatusFree,
		"pastaberlin.de":     models.StatusFree,
		"romaberlin.de":      models.StatusFree,
		"napoliberlin.de":    models.StatusRegistered,
	}}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 3)

	outcome, err := o.Run(context.Background(), Request{Description: "italian restaurant in berlin", TargetCount: 3}, BufferSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(outcome.Suggestions) != 4 {
		t.Errorf("expected 4 accumulated suggestions, got %d", len(outcome.Suggestions))
	}
	if outcome.AvailableCount != 3 {
		t.Errorf("available count = %d, want 3", outcome.AvailableCount)
	}
	if outcome.Retries != 1 {
		t.Errorf("retries = %d, want 1", outcome.Retries)
	}
	if gen.calls != 1 {
		t.Errorf("llm calls = %d, want 1", gen.calls)
	}

	row := waitForMetrics(t, st)
	if !row.ReachedTarget || row.RetryCount != 1 || row.LLMCallCount != 1 {
		t.Errorf("metrics row: %+v", row)
	}
	if row.AvailableDomainsCount != 3 || row.RegisteredDomainsCount != 1 {
		t.Errorf("status counts: %+v", row)
	}
}

func TestRunRetriesUntilTarget(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{
		{"first.com", "second.com"},
		{"third.com", "fourth.com"},
	}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{
		{"first.com": models.StatusFree, "second.com": models.StatusRegistered},
		{"third.com": models.StatusFree, "fourth.com": models.StatusFree},
	}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 5)

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 2}, BufferSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 available plus 1 registered; the second pass's extra available is
	// dropped once the target is filled.
	if len(outcome.Suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d: %v", len(outcome.Suggestions), outcome.Suggestions)
	}
	if outcome.AvailableCount != 2 {
		t.Errorf("available count = %d, want 2", outcome.AvailableCount)
	}
	if outcome.Retries != 2 {
		t.Errorf("retries = %d, want 2", outcome.Retries)
	}
	wantOrder := []string{"first.com", "second.com", "third.com"}
	for i, want := range wantOrder {
		if outcome.Suggestions[i].Domain != want {
			t.Errorf("suggestion %d = %s, want %s", i, outcome.Suggestions[i].Domain, want)
		}
	}
}

func TestRunRetryBudgetExhausted(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{
		{"x.com", "y.com"},
		{"y.com", "z.com"},
	}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{{}}} // default registered
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 2)

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 5}, BufferSink{})
	if err != nil {
		t.Fatalf("retry exhaustion is not an error: %v", err)
	}

	if len(outcome.Suggestions) != 3 {
		t.Errorf("expected 3 unique candidates, got %d", len(outcome.Suggestions))
	}
	if outcome.AvailableCount != 0 {
		t.Errorf("available count = %d, want 0", outcome.AvailableCount)
	}

	row := waitForMetrics(t, st)
	if row.ReachedTarget {
		t.Error("target was not reached")
	}
	if row.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", row.RetryCount)
	}
}

func TestRunUpgradeEvent(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{{"foo.com"}}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{
		{"foo.com": models.StatusNonConclusive},
		{"foo.com": models.StatusFree},
	}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 3)
	sink := &recordingSink{}

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 1}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(sink.events), sink.events)
	}
	first, second := sink.events[0], sink.events[1]
	if len(first.New) != 1 || first.New[0].Domain != "foo.com" || first.New[0].Status != models.DomainUnknown {
		t.Errorf("first event should introduce foo.com as unknown: %+v", first)
	}
	if first.AvailableCount != 0 {
		t.Errorf("first event available count = %d", first.AvailableCount)
	}
	if len(second.Updates) != 1 || second.Updates[0].Domain != "foo.com" || second.Updates[0].Status != models.DomainAvailable {
		t.Errorf("second event should upgrade foo.com to available: %+v", second)
	}
	if second.AvailableCount != 1 {
		t.Errorf("second event available count = %d", second.AvailableCount)
	}

	if outcome.AvailableCount != 1 || len(outcome.Suggestions) != 1 {
		t.Errorf("outcome: %+v", outcome)
	}
	if sink.completed == nil || sink.completed.Available != 1 {
		t.Errorf("complete event: %+v", sink.completed)
	}
}

func TestRunUpgradeOverflowsAboveTarget(t *testing.T) {
	// Pass 2 fills the target with a new available, then upgrades an entry
	// accumulated in pass 1. The upgrade is not capped, so the final available
	// count exceeds the target.
	gen := &scriptedGenerator{batches: [][]string{
		{"c.com"},
		{"a.com", "c.com"},
	}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{
		{"c.com": models.StatusNonConclusive},
		{"a.com": models.StatusFree, "c.com": models.StatusFree},
	}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 5)
	sink := &recordingSink{}

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 1}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome.AvailableCount != 2 {
		t.Errorf("available count = %d, want 2 (upgrade overflows the target)", outcome.AvailableCount)
	}
	if len(outcome.Suggestions) != 2 {
		t.Errorf("expected 2 suggestions, got %d: %v", len(outcome.Suggestions), outcome.Suggestions)
	}
	for _, s := range outcome.Suggestions {
		if s.Status != models.DomainAvailable {
			t.Errorf("%s = %s, want available", s.Domain, s.Status)
		}
	}

	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(sink.events), sink.events)
	}
	last := sink.events[2]
	if len(last.Updates) != 1 || last.Updates[0].Domain != "c.com" || last.Updates[0].Status != models.DomainAvailable {
		t.Errorf("last event should upgrade c.com: %+v", last)
	}
	if last.AvailableCount != 2 {
		t.Errorf("last event available count = %d, want 2", last.AvailableCount)
	}
	if sink.completed == nil || sink.completed.Available != 2 {
		t.Errorf("complete event: %+v", sink.completed)
	}
}

// goneSink simulates a disconnected consumer: every suggestions event fails.
type goneSink struct {
	recordingSink
}

func (s *goneSink) Suggestions(context.Context, models.SuggestionsEvent) error {
	return errors.New("client disconnected")
}

func TestRunSinkErrorAbortsLoop(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{{"a.com", "b.com"}}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{{}}} // default registered
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 5)
	sink := &goneSink{}

	_, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 3}, sink)
	if err == nil {
		t.Fatal("expected an error when the sink is gone")
	}
	if gen.calls != 1 {
		t.Errorf("llm calls = %d, want 1 (loop must abandon on sink error)", gen.calls)
	}
	if sink.completed != nil {
		t.Errorf("no complete event after abandonment: %+v", sink.completed)
	}

	// Abandoned requests still flush a metrics row.
	row := waitForMetrics(t, st)
	if row.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", row.ErrorCount)
	}
}

func TestRunInvalidCandidatesSurfaceAsUnknown(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{{"good.com", "бад.com", "bad_.com"}}}
	runner := func(_ context.Context, _ string, _ []byte) (any, error) {
		return models.CheckResult{Domain: "good.com", Status: models.StatusFree, WorkerID: "w1"}, nil
	}
	q := queue.NewMemoryClient(runner)
	st := store.NewMemoryStore()
	disp := dispatch.New(q, st, 2*time.Second, slog.Default())
	o := New(gen, disp, q, st, 3, slog.Default())

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 1}, BufferSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	byDomain := make(map[string]models.DomainStatus, len(outcome.Suggestions))
	for _, s := range outcome.Suggestions {
		byDomain[s.Domain] = s.Status
	}
	if byDomain["good.com"] != models.DomainAvailable {
		t.Errorf("good.com = %s, want available", byDomain["good.com"])
	}
	if byDomain["бад.com"] != models.DomainUnknown || byDomain["bad_.com"] != models.DomainUnknown {
		t.Errorf("invalid candidates should surface as unknown: %v", byDomain)
	}
}

func TestRunTargetZeroSkipsGeneration(t *testing.T) {
	gen := &scriptedGenerator{batches: [][]string{{"never.com"}}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, &scriptedChecker{scripts: []map[string]models.WorkerStatus{{}}}, st, 3)

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 0}, BufferSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("target 0 must not call the generator, got %d calls", gen.calls)
	}
	if len(outcome.Suggestions) != 0 || outcome.AvailableCount != 0 {
		t.Errorf("outcome should be empty: %+v", outcome)
	}
}

func TestRunGeneratorErrorMapsToAPIError(t *testing.T) {
	gen := &scriptedGenerator{err: llm.ErrRateLimited}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, &scriptedChecker{scripts: []map[string]models.WorkerStatus{{}}}, st, 3)
	sink := &recordingSink{}

	_, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 3}, sink)
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != models.CodeRateLimited {
		t.Errorf("code = %s, want %s", apiErr.Code, models.CodeRateLimited)
	}
	if sink.apiErr == nil || sink.apiErr.Code != models.CodeRateLimited {
		t.Errorf("error event not delivered: %+v", sink.apiErr)
	}

	// Failed requests still flush a metrics row.
	row := waitForMetrics(t, st)
	if row.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", row.ErrorCount)
	}
}

func TestRunEmptyToCheckBurnsRetry(t *testing.T) {
	// Every pass regenerates the same already-available name, so to_check is
	// empty from the second pass on and the loop must still terminate.
	gen := &scriptedGenerator{batches: [][]string{{"same.com"}}}
	chk := &scriptedChecker{scripts: []map[string]models.WorkerStatus{
		{"same.com": models.StatusFree},
	}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(gen, chk, st, 3)

	outcome, err := o.Run(context.Background(), Request{Description: "x", TargetCount: 2}, BufferSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Retries != 3 {
		t.Errorf("retries = %d, want the full budget of 3", outcome.Retries)
	}
	if chk.calls != 1 {
		t.Errorf("dispatch calls = %d, want 1", chk.calls)
	}
	if outcome.AvailableCount != 1 {
		t.Errorf("available count = %d, want 1", outcome.AvailableCount)
	}
}

func TestToAPIErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		code models.ErrorCode
	}{
		{llm.ErrRateLimited, models.CodeRateLimited},
		{llm.ErrServiceUnavailable, models.CodeServiceUnavailable},
		{llm.ErrGenerationFailed, models.CodeGenerationFailed},
		{context.DeadlineExceeded, models.CodeTimeout},
		{errors.New("boom"), models.CodeInternalError},
	}
	for _, tt := range tests {
		if got := toAPIError(tt.err); got.Code != tt.code {
			t.Errorf("toAPIError(%v) = %s, want %s", tt.err, got.Code, tt.code)
		}
	}
}
