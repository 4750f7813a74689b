package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/namescout/namescout/internal/metrics"
)

const (
	recheckLockPrefix = "worker:recheck_lock:"
	recheckLockTTL    = 5 * time.Minute
	recheckJobTimeout = 5 * time.Minute
)

// supervisor is the idle recheck loop. One goroutine per worker; the Redis
// lock guarantees at most one sweep fleet-wide per TTL window.
type supervisor struct {
	rt     *Runtime
	opts   Options
	logger *slog.Logger
}

func newSupervisor(rt *Runtime, opts Options) *supervisor {
	return &supervisor{rt: rt, opts: opts, logger: opts.Logger}
}

func (s *supervisor) run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RecheckPollInterval)
	defer ticker.Stop()

	s.logger.Info("recheck supervisor started",
		"poll_interval", s.opts.RecheckPollInterval,
		"idle_threshold", s.opts.IdleThreshold,
		"batch_size", s.opts.RecheckBatchSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one supervisor pass: bail out unless the queue is empty and the
// worker has been idle long enough, then sweep under the global lock.
func (s *supervisor) tick(ctx context.Context) {
	depth, err := s.rt.queue.QueueDepth(ctx)
	if err != nil {
		s.logger.Debug("queue depth sample failed", "error", err)
		return
	}
	if depth > 0 || s.rt.inFlight.Load() > 0 {
		return
	}

	idle := time.Since(time.Unix(0, s.rt.lastActive.Load()))
	if idle < s.opts.IdleThreshold {
		return
	}

	lockKey := recheckLockPrefix + s.opts.QueueName
	acquired, err := s.rt.queue.SetIfAbsent(ctx, lockKey, recheckLockTTL)
	if err != nil {
		s.logger.Warn("recheck lock attempt failed", "error", err)
		return
	}
	if !acquired {
		// Another worker owns the sweep; back off to the next tick.
		return
	}
	defer func() {
		if err := s.rt.queue.Delete(ctx, lockKey); err != nil {
			s.logger.Warn("recheck lock release failed", "error", err)
		}
	}()

	s.sweep(ctx)
}

func (s *supervisor) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.opts.RecheckInterval)
	stale, err := s.rt.store.StaleDomains(ctx, cutoff, s.opts.RecheckBatchSize)
	if err != nil {
		s.logger.Warn("stale domain query failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	if _, err := s.rt.queue.EnqueueRecheck(ctx, stale, recheckJobTimeout); err != nil {
		s.logger.Warn("recheck enqueue failed", "count", len(stale), "error", err)
		return
	}
	metrics.JobsEnqueuedTotal.WithLabelValues("recheck").Inc()
	metrics.RecheckSweepsTotal.Inc()

	// Reset the idle clock so the next sweep waits for a fresh idle window.
	s.rt.lastActive.Store(time.Now().UnixNano())
	s.logger.Info("recheck sweep enqueued", "count", len(stale), "cutoff", cutoff)
}
