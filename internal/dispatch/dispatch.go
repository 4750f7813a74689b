// Package dispatch fans a candidate batch out to the work queue, collects
// results with a deadline, and returns one status per input candidate.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/metrics"
	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/queue"
	"github.com/namescout/namescout/internal/store"
)

const (
	enqueueMaxRetries = 3
	enqueueBackoff    = 100 * time.Millisecond
	defaultPoll       = 200 * time.Millisecond
	snapshotRetention = 96 * time.Hour
)

// Result is the dispatcher's answer for one batch. Statuses is total over the
// input set: every candidate appears exactly once. Unharvested and
// unqueueable candidates carry non_conclusive, which the API maps to unknown.
type Result struct {
	Statuses      map[string]models.WorkerStatus
	Invalid       []string
	Harvested     []models.CheckResult
	WorkerUpdates []store.WorkerUpdate
}

// Dispatcher coordinates enqueue, poll, and harvest for one batch of domains.
// Persistence side effects (queue snapshots, worker metrics) happen on
// background goroutines and never delay the caller.
type Dispatcher struct {
	queue        queue.Client
	store        store.Store
	jobTimeout   time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a dispatcher. store may be a MemoryStore in redis-less setups.
func New(q queue.Client, st store.Store, jobTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:        q,
		store:        st,
		jobTimeout:   jobTimeout,
		pollInterval: defaultPoll,
		logger:       logger,
	}
}

// Dispatch runs the full fan-out for one candidate batch.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []string) (*Result, error) {
	valid, invalid := domainutil.Filter(candidates)

	res := &Result{
		Statuses: make(map[string]models.WorkerStatus, len(candidates)),
		Invalid:  invalid,
	}
	for _, fqdn := range invalid {
		res.Statuses[fqdn] = models.StatusInvalid
	}

	// Enqueue phase. Exhausted retries leave the candidate non_conclusive.
	pending := make(map[string]string, len(valid)) // job ID -> fqdn
	for _, fqdn := range valid {
		jobID, err := d.enqueueWithRetry(ctx, fqdn)
		if err != nil {
			d.logger.Warn("enqueue exhausted", "domain", fqdn, "error", err)
			res.Statuses[fqdn] = models.StatusNonConclusive
			continue
		}
		pending[jobID] = fqdn
		metrics.JobsEnqueuedTotal.WithLabelValues("check").Inc()
	}

	d.snapshotAsync()

	d.poll(ctx, pending, res)

	// Total-mapping invariant: anything not harvested is non_conclusive.
	for _, fqdn := range valid {
		if _, ok := res.Statuses[fqdn]; !ok {
			res.Statuses[fqdn] = models.StatusNonConclusive
		}
	}

	res.WorkerUpdates = foldWorkerStats(res.Harvested)
	if len(res.WorkerUpdates) > 0 {
		updates := res.WorkerUpdates
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := d.store.AccumulateWorkerMetrics(bg, updates); err != nil {
				d.logger.Warn("worker metrics write failed", "error", err)
			}
		}()
	}
	d.snapshotAsync()

	return res, nil
}

func (d *Dispatcher) enqueueWithRetry(ctx context.Context, fqdn string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= enqueueMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * enqueueBackoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		jobID, err := d.queue.EnqueueCheck(ctx, fqdn, d.jobTimeout)
		if err == nil {
			return jobID, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// poll drains the pending job set until every job resolves or the deadline
// passes. Abandoned jobs may still complete in the worker; their late results
// are simply never read.
func (d *Dispatcher) poll(ctx context.Context, pending map[string]string, res *Result) {
	if len(pending) == 0 {
		return
	}

	deadline := time.Now().Add(d.jobTimeout)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for len(pending) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for jobID, fqdn := range pending {
			state, err := d.queue.JobStatus(ctx, jobID)
			if err != nil {
				continue
			}
			switch state.Status {
			case queue.JobFinished:
				delete(pending, jobID)
				d.harvest(fqdn, state.Result, res)
			case queue.JobFailed:
				delete(pending, jobID)
				metrics.JobsHarvestedTotal.WithLabelValues("failed").Inc()
				d.logger.Warn("check job failed", "domain", fqdn, "error", state.Err)
			}
		}
	}

	for range pending {
		metrics.JobsHarvestedTotal.WithLabelValues("abandoned").Inc()
	}
}

func (d *Dispatcher) harvest(fqdn string, raw json.RawMessage, res *Result) {
	var cr models.CheckResult
	if err := json.Unmarshal(raw, &cr); err != nil {
		metrics.JobsHarvestedTotal.WithLabelValues("failed").Inc()
		d.logger.Warn("unreadable job result", "domain", fqdn, "error", err)
		return
	}
	metrics.JobsHarvestedTotal.WithLabelValues("finished").Inc()
	res.Statuses[fqdn] = cr.Status
	res.Harvested = append(res.Harvested, cr)
}

// snapshotAsync records queue depth and worker count without blocking the
// dispatch path, and opportunistically prunes old snapshots.
func (d *Dispatcher) snapshotAsync() {
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		depth, err := d.queue.QueueDepth(bg)
		if err != nil {
			d.logger.Debug("queue depth sample failed", "error", err)
			return
		}
		metrics.QueueDepth.Set(float64(depth))

		workers := d.queue.ActiveWorkers(bg)
		if err := d.store.InsertQueueSnapshot(bg, depth, workers); err != nil {
			d.logger.Debug("queue snapshot write failed", "error", err)
		}
		if err := d.store.PruneQueueSnapshots(bg, time.Now().Add(-snapshotRetention)); err != nil {
			d.logger.Debug("queue snapshot prune failed", "error", err)
		}
	}()
}

// foldWorkerStats sums processing and queue-wait time per worker ID.
func foldWorkerStats(results []models.CheckResult) []store.WorkerUpdate {
	byWorker := make(map[string]*store.WorkerUpdate)
	order := make([]string, 0)
	for _, r := range results {
		if r.WorkerID == "" {
			continue
		}
		u, ok := byWorker[r.WorkerID]
		if !ok {
			u = &store.WorkerUpdate{WorkerID: r.WorkerID}
			byWorker[r.WorkerID] = u
			order = append(order, r.WorkerID)
		}
		u.Jobs++
		u.ProcessingTimeMs += r.ProcessingTimeMs
		u.QueueWaitTimeMs += r.QueueWaitTimeMs
	}

	updates := make([]store.WorkerUpdate, 0, len(order))
	for _, id := range order {
		updates = append(updates, *byWorker[id])
	}
	return updates
}
