package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_rows_total",
		Help: "Rows processed by the migration executor, by outcome",
	}, []string{"outcome"})

	batchCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_batches_total",
		Help: "Batch commits, by result",
	}, []string{"result"})

	batchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "migration_batch_retries_total",
		Help: "Batch commit attempts retried after a transient store error",
	})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "migration_batch_commit_seconds",
		Help:    "Latency of a single batch commit attempt",
		Buckets: prometheus.DefBuckets,
	})

	analyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "migration_analyze_seconds",
		Help:    "Duration of schema analysis runs",
		Buckets: prometheus.DefBuckets,
	})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_session_transitions_total",
		Help: "Migration session state transitions, by target state",
	}, []string{"state"})
)
