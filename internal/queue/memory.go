package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runner executes a job payload in-process. The memory client calls it in a
// background goroutine so pollers observe the same pending->finished flow as
// with the Redis backend.
type Runner func(ctx context.Context, taskType string, payload []byte) (any, error)

type memJob struct {
	state   JobState
	started bool
}

// MemoryClient is a deterministic in-memory queue for tests and redis-less
// development. Jobs run through the injected Runner on independent contexts to
// avoid HTTP timeout coupling.
type MemoryClient struct {
	mu     sync.Mutex
	jobs   map[string]*memJob
	locks  map[string]time.Time
	runner Runner
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates an in-memory queue. A nil runner leaves jobs pending
// forever, which is useful for exercising dispatcher deadlines.
func NewMemoryClient(runner Runner) *MemoryClient {
	return &MemoryClient{
		jobs:   make(map[string]*memJob),
		locks:  make(map[string]time.Time),
		runner: runner,
	}
}

// EnqueueCheck runs a single-domain check through the runner.
func (m *MemoryClient) EnqueueCheck(_ context.Context, domain string, _ time.Duration) (string, error) {
	payload, _ := json.Marshal(CheckPayload{Domain: domain, EnqueuedAtMs: time.Now().UnixMilli()})
	return m.enqueue(TaskTypeDomainCheck, payload), nil
}

// EnqueueRecheck runs a batched recheck through the runner.
func (m *MemoryClient) EnqueueRecheck(_ context.Context, domains []string, _ time.Duration) (string, error) {
	payload, _ := json.Marshal(RecheckPayload{Domains: domains})
	return m.enqueue(TaskTypeDomainRecheck, payload), nil
}

func (m *MemoryClient) enqueue(taskType string, payload []byte) string {
	id := "mem-" + uuid.NewString()

	m.mu.Lock()
	m.jobs[id] = &memJob{state: JobState{ID: id, Status: JobPending}}
	m.mu.Unlock()

	if m.runner == nil {
		return id
	}

	// Independent context - the enqueuing request may finish before the job does.
	go func() {
		result, err := m.runner(context.Background(), taskType, payload)

		m.mu.Lock()
		defer m.mu.Unlock()
		job := m.jobs[id]
		if err != nil {
			job.state.Status = JobFailed
			job.state.Err = err.Error()
			return
		}
		data, merr := json.Marshal(result)
		if merr != nil {
			job.state.Status = JobFailed
			job.state.Err = merr.Error()
			return
		}
		job.state.Status = JobFinished
		job.state.Result = data
	}()

	return id
}

// JobStatus returns a snapshot of the job state.
func (m *MemoryClient) JobStatus(_ context.Context, jobID string) (*JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := job.state
	return &snapshot, nil
}

// WriteResult marks a job finished with the given result. Lets worker-style
// code complete jobs it claimed without a runner.
func (m *MemoryClient) WriteResult(_ context.Context, jobID string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		job = &memJob{state: JobState{ID: jobID}}
		m.jobs[jobID] = job
	}
	job.state.Status = JobFinished
	job.state.Result = data
	return nil
}

// QueueDepth counts jobs still pending.
func (m *MemoryClient) QueueDepth(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	depth := 0
	for _, job := range m.jobs {
		if job.state.Status == JobPending {
			depth++
		}
	}
	return depth, nil
}

// ActiveWorkers reports one in-process worker when a runner is configured.
func (m *MemoryClient) ActiveWorkers(_ context.Context) int {
	if m.runner != nil {
		return 1
	}
	return 0
}

// SetIfAbsent acquires key until its TTL expires or Delete is called.
func (m *MemoryClient) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, held := m.locks[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

// Delete releases a lock key.
func (m *MemoryClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MemoryClient) Close() error { return nil }
