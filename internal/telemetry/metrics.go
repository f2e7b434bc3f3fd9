package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contentkeep"

// HTTPRequestDuration records request latency by method, route pattern, and
// status. internal/httpserver's middleware observes into this directly.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
	[]string{"tenant"},
)

var IdempotencyHitsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "idempotency",
		Name:      "hits_total",
		Help:      "Total number of requests replayed from the idempotency cache.",
	},
)

var EventsDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped because a subscriber's channel was full.",
	},
)

var WebhookDeliveryAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "delivery_attempts_total",
		Help:      "Total number of webhook delivery attempts by outcome.",
	},
	[]string{"outcome"},
)

var PendingOver15mCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconciliation",
		Name:      "pending_over_15m_count",
		Help:      "Number of payments in the pending state older than the reconciliation threshold.",
	},
)

var ReconciliationCorrectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciliation",
		Name:      "corrections_total",
		Help:      "Total number of payment rows transitioned by the reconciliation worker.",
	},
)

var ReconciliationFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciliation",
		Name:      "failures_total",
		Help:      "Total number of reconciliation sweep failures querying the provider.",
	},
)

var PayoutTransfersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payout",
		Name:      "transfers_total",
		Help:      "Total number of payout transfers by terminal status.",
	},
	[]string{"status"},
)

var EntitlementConsumedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "consumed_total",
		Help:      "Total number of authorized reads that decremented an entitlement's quota.",
	},
)

// All returns every collector this service registers.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		RateLimitRejectionsTotal,
		IdempotencyHitsTotal,
		EventsDroppedTotal,
		WebhookDeliveryAttemptsTotal,
		PendingOver15mCount,
		ReconciliationCorrectionsTotal,
		ReconciliationFailuresTotal,
		PayoutTransfersTotal,
		EntitlementConsumedTotal,
	}
}
