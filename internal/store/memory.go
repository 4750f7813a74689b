package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/models"
)

// MemoryStore is the database-less Store used by tests and local development.
type MemoryStore struct {
	mu           sync.Mutex
	domains      map[string]*DomainRecord
	suggestions  []SuggestionRow
	metrics      []MetricsRow
	workers      map[string]*WorkerUpdate
	snapshots    []snapshot
	nextSuggID   int64
}

type snapshot struct {
	at            time.Time
	depth         int
	activeWorkers int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		domains:    make(map[string]*DomainRecord),
		workers:    make(map[string]*WorkerUpdate),
		nextSuggID: 1,
	}
}

func (s *MemoryStore) UpsertDomain(_ context.Context, up DomainUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec, ok := s.domains[up.Domain]
	if !ok {
		rec = &DomainRecord{
			Domain:     up.Domain,
			DomainName: up.DomainName,
			TLD:        up.TLD,
			CreatedAt:  now,
		}
		s.domains[up.Domain] = rec
	}
	rec.Status = up.Status
	rec.UpdatedAt = now
	if up.SuggestionID != nil {
		rec.SuggestionID = up.SuggestionID
	}
	if up.CheckedAt != nil {
		if rec.LastChecked == nil || up.CheckedAt.After(*rec.LastChecked) {
			t := *up.CheckedAt
			rec.LastChecked = &t
		}
	}
	return nil
}

func (s *MemoryStore) TouchDomainStatus(ctx context.Context, fqdn string, status models.DomainStatus, checkedAt time.Time) error {
	cand := domainutil.Parse(fqdn)
	return s.UpsertDomain(ctx, DomainUpsert{
		Domain:     fqdn,
		DomainName: cand.RegistrablePart,
		TLD:        cand.PublicSuffix,
		Status:     status,
		CheckedAt:  &checkedAt,
	})
}

func (s *MemoryStore) GetDomain(_ context.Context, fqdn string) (*DomainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.domains[fqdn]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) StaleDomains(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type staleRec struct {
		fqdn    string
		checked *time.Time
	}
	var stale []staleRec
	for fqdn, rec := range s.domains {
		if rec.LastChecked == nil || rec.LastChecked.Before(olderThan) {
			stale = append(stale, staleRec{fqdn: fqdn, checked: rec.LastChecked})
		}
	}
	// Never-checked first, then oldest check first.
	sort.Slice(stale, func(i, j int) bool {
		a, b := stale[i], stale[j]
		switch {
		case a.checked == nil && b.checked == nil:
			return a.fqdn < b.fqdn
		case a.checked == nil:
			return true
		case b.checked == nil:
			return false
		default:
			return a.checked.Before(*b.checked)
		}
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	out := make([]string, len(stale))
	for i, r := range stale {
		out[i] = r.fqdn
	}
	return out, nil
}

func (s *MemoryStore) CreateSuggestion(_ context.Context, row SuggestionRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suggestions = append(s.suggestions, row)
	id := s.nextSuggID
	s.nextSuggID++
	return id, nil
}

func (s *MemoryStore) SaveSuggestionMetrics(_ context.Context, row MetricsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, row)
	return nil
}

func (s *MemoryStore) AccumulateWorkerMetrics(_ context.Context, updates []WorkerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		cur, ok := s.workers[u.WorkerID]
		if !ok {
			cp := u
			s.workers[u.WorkerID] = &cp
			continue
		}
		cur.Jobs += u.Jobs
		cur.ProcessingTimeMs += u.ProcessingTimeMs
		cur.QueueWaitTimeMs += u.QueueWaitTimeMs
	}
	return nil
}

func (s *MemoryStore) InsertQueueSnapshot(_ context.Context, depth, activeWorkers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot{at: time.Now(), depth: depth, activeWorkers: activeWorkers})
	return nil
}

func (s *MemoryStore) PruneQueueSnapshots(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if !snap.at.Before(olderThan) {
			kept = append(kept, snap)
		}
	}
	s.snapshots = kept
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// SuggestionMetrics returns saved metrics rows. Test helper.
func (s *MemoryStore) SuggestionMetrics() []MetricsRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MetricsRow(nil), s.metrics...)
}

// WorkerTotals returns a worker's cumulative totals. Test helper.
func (s *MemoryStore) WorkerTotals(workerID string) (WorkerUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[workerID]; ok {
		return *w, true
	}
	return WorkerUpdate{}, false
}
