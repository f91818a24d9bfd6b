package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransactionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_applied_total",
			Help: "Wallet transactions applied, by type",
		},
		[]string{"type"},
	)

	UsageSyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_usage_sync_failures_total",
			Help: "Usage counter updates that failed alongside a successful primary operation",
		},
		[]string{"resource", "op"},
	)

	UsageDecrementClamps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_usage_decrement_clamps_total",
			Help: "Usage decrements that would have gone negative and were clamped at zero",
		},
		[]string{"resource"},
	)

	QuotaDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_quota_denials_total",
			Help: "Resource creations denied by the quota gate",
		},
		[]string{"resource"},
	)

	ReconcileDriftCorrected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_reconcile_drift_corrected_total",
			Help: "Reconcile runs that found and corrected a drifted usage counter",
		},
		[]string{"resource"},
	)
)
