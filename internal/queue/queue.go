// Package queue provides the shared work queue for domain check jobs, backed by
// Asynq/Redis in production or an in-memory implementation for tests and
// redis-less development. The core depends on a handful of primitives only:
// enqueue, job status, queue depth, and set-if-absent with TTL (recheck lock).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	// TaskTypeDomainCheck is the task type for a single-domain availability probe.
	TaskTypeDomainCheck = "domain:check"
	// TaskTypeDomainRecheck is the task type for a batched stale-domain recheck.
	TaskTypeDomainRecheck = "domain:recheck"
)

// ErrJobNotFound is returned when a job handle is unknown to the backend.
var ErrJobNotFound = errors.New("job not found")

// CheckPayload is the payload of a domain:check task. EnqueuedAtMs lets
// workers compute queue wait time at millisecond resolution.
type CheckPayload struct {
	Domain       string `json:"domain"`
	EnqueuedAtMs int64  `json:"enqueued_at_ms"`
}

// RecheckPayload is the payload of a domain:recheck task.
type RecheckPayload struct {
	Domains []string `json:"domains"`
}

// JobStatus is the lifecycle state of a job as seen by pollers.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

// JobState is a poll snapshot of one job. Result holds the worker's JSON
// payload once the job is finished.
type JobState struct {
	ID     string
	Status JobStatus
	Result json.RawMessage
	Err    string
}

// Client is the queue abstraction the dispatcher and worker share.
type Client interface {
	// EnqueueCheck submits a single-domain check and returns the job ID.
	EnqueueCheck(ctx context.Context, domain string, timeout time.Duration) (string, error)
	// EnqueueRecheck submits a batched recheck with its own (longer) timeout.
	EnqueueRecheck(ctx context.Context, domains []string, timeout time.Duration) (string, error)
	// JobStatus reports the state of a previously enqueued job.
	JobStatus(ctx context.Context, jobID string) (*JobState, error)
	// WriteResult stores a finished job's result for pollers. Called by workers.
	WriteResult(ctx context.Context, jobID string, result any) error
	// QueueDepth returns the number of jobs waiting to be claimed.
	QueueDepth(ctx context.Context) (int, error)
	// ActiveWorkers returns the number of connected worker processes.
	ActiveWorkers(ctx context.Context) int
	// SetIfAbsent sets key with ttl only when absent. The recheck-lock primitive.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Delete removes key (lock release).
	Delete(ctx context.Context, key string) error
	Close() error
}
