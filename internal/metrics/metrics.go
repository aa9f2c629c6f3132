package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks ledger operations by name and outcome code ("ok" or the error code).
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations (by operation and result).",
		},
		[]string{"operation", "result"},
	)

	// Measures time spent inside ledger operations, payout included.
	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs → ~40s
		},
		[]string{"operation"},
	)

	// Tracks outbound HTTP calls (payout provider) by target, endpoint and status.
	OutboundRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_api_requests_total",
			Help: "Total number of outbound API requests (by target, endpoint, method and status).",
		},
		[]string{"target", "endpoint", "method", "status"},
	)

	OutboundRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbound_api_request_duration_seconds",
			Help:    "Duration of outbound API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"target", "endpoint", "method"},
	)

	// Payout outcomes as seen by the ledger's payer.
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_payouts_total",
			Help: "Payouts attempted by result.",
		},
		[]string{"mode", "result"},
	)

	// Tracks NATS messages processed by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks cache hits and misses for secrets.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"}, // hit | miss
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_component_errors_total",
			Help: "Count of component-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Escrow currently held on behalf of vendors, in the smallest currency unit.
	EscrowHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_escrow_held",
		Help: "Sum of escrow balances held for registered vendors.",
	})

	// Value that can no longer be withdrawn by anyone (removed vendors, orphaned listings).
	EscrowForfeited = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_escrow_forfeited",
		Help: "Cumulative escrow forfeited by vendor removal or orphaned purchases.",
	})

	LiveProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_live_products",
		Help: "Number of product listings currently in the catalog.",
	})

	LastSummaryTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_last_summary_timestamp",
		Help: "Timestamp (unix seconds) of the last published ledger summary.",
	})
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncOperation(operation, result string) {
	LedgerOperationsTotal.WithLabelValues(operation, result).Inc()
}

func IncOutboundRequest(target, endpoint, method, status string) {
	OutboundRequestsTotal.WithLabelValues(target, endpoint, method, status).Inc()
}

func IncPayout(mode, result string) {
	PayoutsTotal.WithLabelValues(mode, result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// SetLedgerTotals publishes the accounting gauges in one call.
func SetLedgerTotals(escrow, forfeited uint64, products int) {
	EscrowHeld.Set(float64(escrow))
	EscrowForfeited.Set(float64(forfeited))
	LiveProducts.Set(float64(products))
}

func SetLastSummary(t time.Time) {
	LastSummaryTimestamp.Set(float64(t.Unix()))
}
