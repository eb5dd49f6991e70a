package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks events processed successfully per mode
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_events_processed_total",
			Help: "Total number of events processed successfully",
		},
		[]string{"mode"},
	)

	// EventsSkipped tracks events short-circuited by a processed marker
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_events_skipped_total",
			Help: "Total number of events skipped as already processed",
		},
		[]string{"mode"},
	)

	// EventsFailed tracks events that failed after all retries
	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_events_failed_total",
			Help: "Total number of events that failed after retries",
		},
		[]string{"mode"},
	)

	// ProcessingRetries tracks retry attempts per processor outcome
	ProcessingRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_processing_retries_total",
			Help: "Total number of event processing retries",
		},
		[]string{"reason"},
	)

	// ProcessingLatency tracks per-event dispatch latency
	ProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replay_event_duration_seconds",
			Help:    "Event processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"processor"},
	)

	// BatchesProcessed tracks ledger batches completed
	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_batches_total",
			Help: "Total number of ledger batches replayed",
		},
		[]string{"mode"},
	)

	// CheckpointsSaved tracks checkpoints written
	CheckpointsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_checkpoints_saved_total",
			Help: "Total number of checkpoints saved",
		},
		[]string{"kind"},
	)

	// CheckpointsPruned tracks checkpoints removed by retention
	CheckpointsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_checkpoints_pruned_total",
			Help: "Total number of checkpoints removed by retention cleanup",
		},
	)

	// SessionCurrentLedger tracks the next ledger each running session will replay
	SessionCurrentLedger = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replay_session_current_ledger",
			Help: "Next ledger a running replay session will process",
		},
		[]string{"session"},
	)

	// SessionTransitions tracks session state transitions
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_session_transitions_total",
			Help: "Total number of replay session state transitions",
		},
		[]string{"from", "to"},
	)

	// ActiveSessions tracks sessions currently running in this process
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_active_sessions",
			Help: "Number of replay sessions running in this process",
		},
	)

	// VerificationMismatches tracks verification replays that diverged from the sink
	VerificationMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_verification_mismatches_total",
			Help: "Total number of verification replays whose state differed from the persisted state",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
