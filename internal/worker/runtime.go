// Package worker runs the check-processing side: an Asynq consumer executing
// domain probes with bounded in-process parallelism, plus the idle recheck
// supervisor that refreshes stale records when the queue goes quiet.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"

	"github.com/namescout/namescout/internal/checker"
	"github.com/namescout/namescout/internal/models"
	"github.com/namescout/namescout/internal/queue"
	"github.com/namescout/namescout/internal/store"
)

// State is the worker process lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateIdle
	StateBusy
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a worker runtime.
type Options struct {
	RedisAddr           string
	QueueName           string
	Concurrency         int
	RecheckEnabled      bool
	RecheckPollInterval time.Duration
	IdleThreshold       time.Duration
	RecheckInterval     time.Duration
	RecheckBatchSize    int
	Logger              *slog.Logger
}

// Runtime is one worker process. Multiple instances share the queue; the
// recheck lock keeps their idle sweeps from colliding.
type Runtime struct {
	opts     Options
	queue    queue.Client
	store    store.Store
	checker  *checker.Checker
	logger   *slog.Logger
	workerID string

	state      atomic.Int32
	inFlight   atomic.Int32
	lastActive atomic.Int64 // unix nanos of last job completion

	recheck *supervisor
}

// New assembles a worker runtime. The worker ID is hostname:pid so per-worker
// metrics distinguish instances on the same host.
func New(opts Options, q queue.Client, st store.Store, chk *checker.Checker) *Runtime {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	r := &Runtime{
		opts:     opts,
		queue:    q,
		store:    st,
		checker:  chk,
		logger:   opts.Logger,
		workerID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
	r.state.Store(int32(StateStarting))
	r.lastActive.Store(time.Now().UnixNano())

	if opts.RecheckEnabled {
		r.recheck = newSupervisor(r, opts)
	}
	return r
}

// WorkerID returns the hostname:pid identity reported in results.
func (r *Runtime) WorkerID() string { return r.workerID }

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Run consumes jobs until ctx is canceled, then drains in-flight work.
func (r *Runtime) Run(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDomainCheck, r.handleCheck)
	mux.HandleFunc(queue.TaskTypeDomainRecheck, r.handleRecheck)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: r.opts.RedisAddr},
		asynq.Config{
			Concurrency: r.opts.Concurrency,
			Queues:      map[string]int{r.opts.QueueName: 1},
		},
	)

	if err := srv.Start(mux); err != nil {
		r.state.Store(int32(StateStopped))
		return fmt.Errorf("start worker server: %w", err)
	}
	r.state.Store(int32(StateIdle))
	r.logger.Info("worker started", "worker_id", r.workerID, "queue", r.opts.QueueName, "concurrency", r.opts.Concurrency)

	supervisorCtx, stopSupervisor := context.WithCancel(context.Background())
	if r.recheck != nil {
		go r.recheck.run(supervisorCtx)
	}

	<-ctx.Done()
	r.state.Store(int32(StateDraining))
	stopSupervisor()
	srv.Shutdown()
	r.state.Store(int32(StateStopped))
	r.logger.Info("worker stopped", "worker_id", r.workerID)
	return nil
}

// jobStarted and jobDone bracket every handler for the idle/busy transitions.
func (r *Runtime) jobStarted() {
	r.inFlight.Add(1)
	r.state.CompareAndSwap(int32(StateIdle), int32(StateBusy))
}

func (r *Runtime) jobDone() {
	r.lastActive.Store(time.Now().UnixNano())
	if r.inFlight.Add(-1) == 0 {
		r.state.CompareAndSwap(int32(StateBusy), int32(StateIdle))
	}
}

// handleCheck probes one domain and writes the result for the dispatcher's
// poll loop.
func (r *Runtime) handleCheck(ctx context.Context, t *asynq.Task) error {
	r.jobStarted()
	defer r.jobDone()

	var payload queue.CheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode check payload: %w", err)
	}

	queueWaitMs := queueWait(payload.EnqueuedAtMs, time.Now())

	start := time.Now()
	status := r.checker.Check(ctx, payload.Domain)
	processingMs := time.Since(start).Milliseconds()

	result := models.CheckResult{
		Domain:           payload.Domain,
		Status:           status,
		WorkerID:         r.workerID,
		ProcessingTimeMs: processingMs,
		QueueWaitTimeMs:  queueWaitMs,
	}

	jobID, ok := asynq.GetTaskID(ctx)
	if !ok {
		return fmt.Errorf("task has no ID")
	}
	if err := r.queue.WriteResult(ctx, jobID, result); err != nil {
		r.logger.Error("result write failed", "job_id", jobID, "domain", payload.Domain, "error", err)
		return err
	}

	r.logger.Info("check completed",
		"domain", payload.Domain, "status", status,
		"processing_ms", processingMs, "queue_wait_ms", queueWaitMs)
	return nil
}

// queueWait reports how long a payload sat in the queue, clamped at zero for
// clock skew between enqueuer and worker.
func queueWait(enqueuedAtMs int64, now time.Time) int64 {
	ms := now.UnixMilli() - enqueuedAtMs
	if ms < 0 {
		return 0
	}
	return ms
}

// handleRecheck probes a stale batch and writes statuses straight back to the
// store. Nobody polls recheck results.
func (r *Runtime) handleRecheck(ctx context.Context, t *asynq.Task) error {
	r.jobStarted()
	defer r.jobDone()

	var payload queue.RecheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode recheck payload: %w", err)
	}

	r.logger.Info("recheck batch started", "count", len(payload.Domains))
	results := r.checker.CheckAll(ctx, payload.Domains, r.opts.Concurrency)

	now := time.Now()
	for _, res := range results {
		status := models.MapWorkerStatus(res.Status)
		if err := r.store.TouchDomainStatus(ctx, res.Domain, status, now); err != nil {
			r.logger.Warn("recheck writeback failed", "domain", res.Domain, "error", err)
		}
	}
	r.logger.Info("recheck batch finished", "count", len(results))
	return nil
}
