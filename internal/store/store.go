// Package store persists suggestions, domain statuses, and operational metrics.
// The production backend is Postgres through sqlx; an in-memory implementation
// backs tests and database-less development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/namescout/namescout/internal/models"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("record not found")

// DomainRecord is a persisted domain row.
type DomainRecord struct {
	Domain       string              `db:"domain"`
	DomainName   string              `db:"domain_name"`
	TLD          string              `db:"tld"`
	Status       models.DomainStatus `db:"status"`
	LastChecked  *time.Time          `db:"last_checked"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
	SuggestionID *int64              `db:"suggestion_id"`
}

// DomainUpsert is a write request for one domain. CheckedAt nil means the
// status did not come from a fresh probe and last_checked is left alone.
type DomainUpsert struct {
	Domain       string
	DomainName   string
	TLD          string
	Status       models.DomainStatus
	CheckedAt    *time.Time
	SuggestionID *int64
}

// SuggestionRow records one generation request.
type SuggestionRow struct {
	Description string
	Count       int
	Model       string
	Prompt      string
}

// MetricsRow is the per-request metrics record written once at request end.
type MetricsRow struct {
	SuggestionID             int64
	TotalDurationMs          int64
	LLMTotalDurationMs       int64
	WorkerTotalDurationMs    int64
	DBWriteDurationMs        int64
	TimeToFirstSuggestionMs  *int64
	LLMAttemptDurationsMs    []int64
	WorkerAttemptDurationsMs []int64
	RetryCount               int
	LLMCallCount             int
	WorkerJobCount           int
	TotalDomainsGenerated    int
	UniqueDomainsGenerated   int
	DomainsReturned          int
	AvailableDomainsCount    int
	RegisteredDomainsCount   int
	UnknownDomainsCount      int
	SuccessRate              float64
	ReachedTarget            bool
	LLMTokensTotal           int
	LLMTokensPrompt          int
	LLMTokensCompletion      int
	ErrorCount               int
	ErrorMessages            []string
	QueueDepthAtStart        *int
}

// WorkerUpdate is an additive delta folded into a worker's cumulative totals.
type WorkerUpdate struct {
	WorkerID         string
	Jobs             int
	ProcessingTimeMs int64
	QueueWaitTimeMs  int64
}

// Store is the persistence contract shared by the API service and workers.
type Store interface {
	// UpsertDomain writes a domain row, last writer wins on status.
	// last_checked never moves backwards.
	UpsertDomain(ctx context.Context, up DomainUpsert) error
	// TouchDomainStatus updates status and last_checked for an existing row.
	// Used by recheck writeback; missing rows are created.
	TouchDomainStatus(ctx context.Context, fqdn string, status models.DomainStatus, checkedAt time.Time) error
	// GetDomain fetches one row or ErrNotFound.
	GetDomain(ctx context.Context, fqdn string) (*DomainRecord, error)
	// StaleDomains returns up to limit domains never checked or checked before
	// olderThan, oldest first.
	StaleDomains(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	// CreateSuggestion inserts a suggestion row and returns its ID.
	CreateSuggestion(ctx context.Context, row SuggestionRow) (int64, error)
	// SaveSuggestionMetrics writes the per-request metrics record.
	SaveSuggestionMetrics(ctx context.Context, row MetricsRow) error
	// AccumulateWorkerMetrics folds per-worker deltas into cumulative totals.
	AccumulateWorkerMetrics(ctx context.Context, updates []WorkerUpdate) error
	// InsertQueueSnapshot records the queue depth observed at enqueue/drain time.
	InsertQueueSnapshot(ctx context.Context, depth, activeWorkers int) error
	// PruneQueueSnapshots deletes snapshots older than the cutoff.
	PruneQueueSnapshots(ctx context.Context, olderThan time.Time) error
	Close() error
}
