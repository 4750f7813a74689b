package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/namescout/namescout/internal/models"
)

func TestUpsertDomainCreatesAndUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	checked := time.Now().Add(-time.Hour)
	err := s.UpsertDomain(ctx, DomainUpsert{
		Domain:     "brewhaven.com",
		DomainName: "brewhaven",
		TLD:        "com",
		Status:     models.DomainAvailable,
		CheckedAt:  &checked,
	})
	if err != nil {
		t.Fatalf("UpsertDomain: %v", err)
	}

	rec, err := s.GetDomain(ctx, "brewhaven.com")
	if err != nil {
		t.Fatalf("GetDomain: %v", err)
	}
	if rec.Status != models.DomainAvailable || rec.DomainName != "brewhaven" || rec.TLD != "com" {
		t.Errorf("unexpected record: %+v", rec)
	}

	err = s.UpsertDomain(ctx, DomainUpsert{Domain: "brewhaven.com", Status: models.DomainRegistered})
	if err != nil {
		t.Fatalf("second UpsertDomain: %v", err)
	}
	rec, _ = s.GetDomain(ctx, "brewhaven.com")
	if rec.Status != models.DomainRegistered {
		t.Errorf("status should update, got %s", rec.Status)
	}
	if rec.LastChecked == nil || !rec.LastChecked.Equal(checked) {
		t.Errorf("last_checked should survive an upsert without CheckedAt: %v", rec.LastChecked)
	}
}

func TestUpsertDomainLastCheckedMonotone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	newer := time.Now()
	older := newer.Add(-time.Hour)

	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "a.com", Status: models.DomainAvailable, CheckedAt: &newer})
	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "a.com", Status: models.DomainAvailable, CheckedAt: &older})

	rec, _ := s.GetDomain(ctx, "a.com")
	if !rec.LastChecked.Equal(newer) {
		t.Errorf("a stale check must not rewind last_checked: %v", rec.LastChecked)
	}
}

func TestUpsertDomainKeepsSuggestionID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id := int64(7)
	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "a.com", Status: models.DomainAvailable, SuggestionID: &id})
	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "a.com", Status: models.DomainRegistered})

	rec, _ := s.GetDomain(ctx, "a.com")
	if rec.SuggestionID == nil || *rec.SuggestionID != 7 {
		t.Errorf("suggestion link should survive upserts: %v", rec.SuggestionID)
	}
}

func TestGetDomainNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetDomain(context.Background(), "missing.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchDomainStatusParsesFQDN(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.TouchDomainStatus(ctx, "shop.co.uk", models.DomainRegistered, time.Now()); err != nil {
		t.Fatalf("TouchDomainStatus: %v", err)
	}

	rec, err := s.GetDomain(ctx, "shop.co.uk")
	if err != nil {
		t.Fatalf("GetDomain: %v", err)
	}
	if rec.DomainName != "shop" || rec.TLD != "co.uk" {
		t.Errorf("multi-label suffix split wrong: name=%q tld=%q", rec.DomainName, rec.TLD)
	}
}

func TestStaleDomainsOrderingAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-48 * time.Hour)
	older := now.Add(-72 * time.Hour)

	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "never.com", Status: models.DomainUnknown})
	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "old.com", Status: models.DomainRegistered, CheckedAt: &old})
	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "older.com", Status: models.DomainRegistered, CheckedAt: &older})
	_ = s.UpsertDomain(ctx, DomainUpsert{Domain: "fresh.com", Status: models.DomainAvailable, CheckedAt: &now})

	stale, err := s.StaleDomains(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("StaleDomains: %v", err)
	}
	want := []string{"never.com", "older.com", "old.com"}
	if len(stale) != len(want) {
		t.Fatalf("stale = %v, want %v", stale, want)
	}
	for i := range want {
		if stale[i] != want[i] {
			t.Errorf("stale[%d] = %s, want %s", i, stale[i], want[i])
		}
	}

	limited, _ := s.StaleDomains(ctx, now.Add(-24*time.Hour), 2)
	if len(limited) != 2 {
		t.Errorf("limit not respected: %v", limited)
	}
}

func TestCreateSuggestionAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.CreateSuggestion(ctx, SuggestionRow{Description: "coffee", Count: 5, Model: "llama"})
	if err != nil {
		t.Fatalf("CreateSuggestion: %v", err)
	}
	second, _ := s.CreateSuggestion(ctx, SuggestionRow{Description: "tea", Count: 3, Model: "llama"})
	if first == second {
		t.Errorf("IDs must be distinct: %d %d", first, second)
	}
}

func TestAccumulateWorkerMetricsIsAdditive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.AccumulateWorkerMetrics(ctx, []WorkerUpdate{{WorkerID: "w1", Jobs: 2, ProcessingTimeMs: 20, QueueWaitTimeMs: 4}})
	_ = s.AccumulateWorkerMetrics(ctx, []WorkerUpdate{{WorkerID: "w1", Jobs: 3, ProcessingTimeMs: 30, QueueWaitTimeMs: 6}})

	totals, ok := s.WorkerTotals("w1")
	if !ok {
		t.Fatal("worker totals missing")
	}
	if totals.Jobs != 5 || totals.ProcessingTimeMs != 50 || totals.QueueWaitTimeMs != 10 {
		t.Errorf("totals not additive: %+v", totals)
	}
}

func TestPruneQueueSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.InsertQueueSnapshot(ctx, 3, 1)
	_ = s.InsertQueueSnapshot(ctx, 5, 2)

	// A cutoff in the past keeps everything; one in the future drops everything.
	_ = s.PruneQueueSnapshots(ctx, time.Now().Add(-time.Hour))
	s.mu.Lock()
	kept := len(s.snapshots)
	s.mu.Unlock()
	if kept != 2 {
		t.Errorf("past cutoff should keep both snapshots, kept %d", kept)
	}

	_ = s.PruneQueueSnapshots(ctx, time.Now().Add(time.Hour))
	s.mu.Lock()
	kept = len(s.snapshots)
	s.mu.Unlock()
	if kept != 0 {
		t.Errorf("future cutoff should drop all snapshots, kept %d", kept)
	}
}
