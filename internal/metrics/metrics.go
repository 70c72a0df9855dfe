package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuoteRequestsTotal counts price and quote requests by endpoint and outcome
	QuoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_quote_requests_total",
			Help: "Total number of price and quote requests",
		},
		[]string{"endpoint", "outcome"},
	)

	// MakerRequestDuration tracks round-trip time to maker endpoints
	MakerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rfq_maker_request_duration_seconds",
			Help:    "Maker HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// JobsProcessedTotal counts jobs reaching a terminal status
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_jobs_processed_total",
			Help: "Total number of jobs processed by final status",
		},
		[]string{"status"},
	)

	// JobDuration tracks time from enqueue to resolution
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rfq_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// TransactionsSubmitted counts on-chain submissions by type
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_transactions_submitted_total",
			Help: "Total number of transactions submitted on chain",
		},
		[]string{"type"},
	)

	// GasEscalationsTotal counts gas price bumps during watch loops
	GasEscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rfq_gas_escalations_total",
			Help: "Total number of gas price escalations",
		},
	)

	// LastLookOutcomes counts maker last-look decisions
	LastLookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_last_look_outcomes_total",
			Help: "Total number of last-look confirmations by outcome",
		},
		[]string{"outcome"},
	)

	// QueueDepth tracks unresolved jobs waiting on workers
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rfq_queue_depth",
			Help: "Number of unresolved jobs in the queue",
		},
	)

	// WorkerBalance tracks worker wallet balance in wei
	WorkerBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rfq_worker_balance_wei",
			Help: "Current worker wallet balance in wei",
		},
		[]string{"address"},
	)

	// WorkerReady reports whether a worker passed its readiness checks
	WorkerReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rfq_worker_ready",
			Help: "Whether the worker is ready to process jobs (1 or 0)",
		},
		[]string{"address"},
	)

	// WorkerHeartbeatTimestamp tracks the last heartbeat written per worker
	WorkerHeartbeatTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rfq_worker_heartbeat_timestamp_seconds",
			Help: "Unix timestamp of the last worker heartbeat",
		},
		[]string{"address"},
	)

	// GasUsed tracks gas used by mined fill transactions
	GasUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rfq_gas_used",
			Help:    "Gas used by mined transactions",
			Buckets: []float64{21000, 50000, 100000, 200000, 300000, 500000},
		},
		[]string{"operation"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
