// Package metrics defines Prometheus collectors shared by the API and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts requests per endpoint.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namescout_api_requests_total",
		Help: "Total API requests by endpoint",
	}, []string{"endpoint"})

	// QueueDepth tracks the last sampled depth of the check queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "namescout_queue_depth",
		Help: "Last sampled depth of the domain check queue",
	})

	// JobsEnqueuedTotal counts enqueued jobs by kind (check, recheck).
	JobsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namescout_jobs_enqueued_total",
		Help: "Total jobs enqueued by kind",
	}, []string{"kind"})

	// JobsHarvestedTotal counts dispatcher harvest outcomes (finished, failed, abandoned).
	JobsHarvestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namescout_jobs_harvested_total",
		Help: "Dispatcher job outcomes",
	}, []string{"outcome"})

	// ChecksTotal counts worker probes by resulting status.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namescout_checks_total",
		Help: "Domain probes by worker status",
	}, []string{"status"})

	// CheckDuration observes per-probe duration in seconds.
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "namescout_check_duration_seconds",
		Help:    "Domain probe duration",
		Buckets: prometheus.DefBuckets,
	})

	// LLMCallsTotal counts completion calls by outcome (ok, rate_limited, error).
	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "namescout_llm_calls_total",
		Help: "LLM completion calls by outcome",
	}, []string{"outcome"})

	// RecheckSweepsTotal counts idle recheck sweeps actually enqueued.
	RecheckSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "namescout_recheck_sweeps_total",
		Help: "Idle recheck sweeps enqueued",
	})
)
