package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/models"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store on Postgres via sqlx with the pgx driver.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, pings, and applies the schema bootstrap.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertDomain(ctx context.Context, up DomainUpsert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (domain, domain_name, tld, status, last_checked, suggestion_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain) DO UPDATE SET
			status        = EXCLUDED.status,
			last_checked  = GREATEST(COALESCE(domains.last_checked, EXCLUDED.last_checked), EXCLUDED.last_checked),
			suggestion_id = COALESCE(EXCLUDED.suggestion_id, domains.suggestion_id),
			updated_at    = now()`,
		up.Domain, up.DomainName, up.TLD, string(up.Status), up.CheckedAt, up.SuggestionID)
	if err != nil {
		return fmt.Errorf("upsert domain %s: %w", up.Domain, err)
	}
	return nil
}

func (s *PostgresStore) TouchDomainStatus(ctx context.Context, fqdn string, status models.DomainStatus, checkedAt time.Time) error {
	cand := domainutil.Parse(fqdn)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (domain, domain_name, tld, status, last_checked)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE SET
			status       = EXCLUDED.status,
			last_checked = GREATEST(COALESCE(domains.last_checked, EXCLUDED.last_checked), EXCLUDED.last_checked),
			updated_at   = now()`,
		fqdn, cand.RegistrablePart, cand.PublicSuffix, string(status), checkedAt)
	if err != nil {
		return fmt.Errorf("touch domain %s: %w", fqdn, err)
	}
	return nil
}

func (s *PostgresStore) GetDomain(ctx context.Context, fqdn string) (*DomainRecord, error) {
	var rec DomainRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT domain, domain_name, tld, status, last_checked, created_at, updated_at, suggestion_id
		FROM domains WHERE domain = $1`, fqdn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", fqdn, err)
	}
	return &rec, nil
}

func (s *PostgresStore) StaleDomains(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	var fqdns []string
	err := s.db.SelectContext(ctx, &fqdns, `
		SELECT domain FROM domains
		WHERE last_checked IS NULL OR last_checked < $1
		ORDER BY last_checked ASC NULLS FIRST
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale domains: %w", err)
	}
	return fqdns, nil
}

func (s *PostgresStore) CreateSuggestion(ctx context.Context, row SuggestionRow) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suggestions (description, count, model, prompt)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		row.Description, row.Count, row.Model, row.Prompt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create suggestion: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SaveSuggestionMetrics(ctx context.Context, row MetricsRow) error {
	llmAttempts, _ := json.Marshal(row.LLMAttemptDurationsMs)
	workerAttempts, _ := json.Marshal(row.WorkerAttemptDurationsMs)
	errMsgs, _ := json.Marshal(row.ErrorMessages)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_metrics (
			suggestion_id, total_duration_ms, llm_total_duration_ms,
			worker_total_duration_ms, db_write_duration_ms, time_to_first_suggestion_ms,
			llm_attempt_durations_ms, worker_attempt_durations_ms,
			retry_count, llm_call_count, worker_job_count,
			total_domains_generated, unique_domains_generated, domains_returned,
			available_domains_count, registered_domains_count, unknown_domains_count,
			success_rate, reached_target,
			llm_tokens_total, llm_tokens_prompt, llm_tokens_completion,
			error_count, error_messages, queue_depth_at_start
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)`,
		row.SuggestionID, row.TotalDurationMs, row.LLMTotalDurationMs,
		row.WorkerTotalDurationMs, row.DBWriteDurationMs, row.TimeToFirstSuggestionMs,
		llmAttempts, workerAttempts,
		row.RetryCount, row.LLMCallCount, row.WorkerJobCount,
		row.TotalDomainsGenerated, row.UniqueDomainsGenerated, row.DomainsReturned,
		row.AvailableDomainsCount, row.RegisteredDomainsCount, row.UnknownDomainsCount,
		row.SuccessRate, row.ReachedTarget,
		row.LLMTokensTotal, row.LLMTokensPrompt, row.LLMTokensCompletion,
		row.ErrorCount, errMsgs, row.QueueDepthAtStart)
	if err != nil {
		return fmt.Errorf("save suggestion metrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) AccumulateWorkerMetrics(ctx context.Context, updates []WorkerUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin worker metrics tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO worker_metrics (worker_id, total_jobs, total_processing_time_ms, total_queue_wait_time_ms, last_seen)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (worker_id) DO UPDATE SET
				total_jobs               = worker_metrics.total_jobs + EXCLUDED.total_jobs,
				total_processing_time_ms = worker_metrics.total_processing_time_ms + EXCLUDED.total_processing_time_ms,
				total_queue_wait_time_ms = worker_metrics.total_queue_wait_time_ms + EXCLUDED.total_queue_wait_time_ms,
				last_seen                = now()`,
			u.WorkerID, u.Jobs, u.ProcessingTimeMs, u.QueueWaitTimeMs); err != nil {
			return fmt.Errorf("accumulate worker %s: %w", u.WorkerID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) InsertQueueSnapshot(ctx context.Context, depth, activeWorkers int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_snapshots (queue_depth, active_workers) VALUES ($1, $2)`,
		depth, activeWorkers)
	if err != nil {
		return fmt.Errorf("insert queue snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) PruneQueueSnapshots(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_snapshots WHERE timestamp < $1`, olderThan)
	if err != nil {
		return fmt.Errorf("prune queue snapshots: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
