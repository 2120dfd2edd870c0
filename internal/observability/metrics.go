// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Detection metrics
	SwapsDetected        *prometheus.CounterVec // by mode (push | poll)
	NotificationsDropped prometheus.Counter     // lossy debounce drops
	DuplicateSignatures  prometheus.Counter     // dedup set hits
	DetectionErrors      *prometheus.CounterVec // by mode, error type

	// Execution metrics
	TradesExecuted    *prometheus.CounterVec   // by side (buy | sell)
	TradeFailures     *prometheus.CounterVec   // by side
	GuardRejections   *prometheus.CounterVec   // by reason
	RetriesTotal      prometheus.Counter
	EmergencySells    *prometheus.CounterVec   // by outcome (ok | failed)
	SwapDuration      *prometheus.HistogramVec // seconds, by side
	SlippageUsedBps   prometheus.Histogram     // winning attempt slippage

	// State metrics
	HoldingsTracked  prometheus.Gauge
	PendingSellDepth prometheus.Gauge

	// Transport metrics
	RPCCallLatency *prometheus.HistogramVec // by method
	WSReconnects   prometheus.Counter

	// Health metrics
	LastTradeDetected prometheus.Gauge
	LastTradeExecuted prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "copy_trader"
	}

	return &Metrics{
		SwapsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "swaps_detected_total",
			Help:      "Total counterparty swaps detected",
		}, []string{"mode"}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped by the rate-limit debounce",
		}),
		DuplicateSignatures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "duplicate_signatures_total",
			Help:      "Redelivered source signatures dropped by the dedup set",
		}),
		DetectionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "errors_total",
			Help:      "Detection errors by mode and type",
		}, []string{"mode", "type"}),

		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_executed_total",
			Help:      "Confirmed copy trades by side",
		}, []string{"side"}),
		TradeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_failures_total",
			Help:      "Trades that exhausted all retries, by side",
		}, []string{"side"}),
		GuardRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "guard_rejections_total",
			Help:      "Trades rejected by a pre-execution guard, by reason",
		}, []string{"reason"}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Total swap attempt retries",
		}),
		EmergencySells: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "emergency_sells_total",
			Help:      "Emergency sell attempts by outcome",
		}, []string{"outcome"}),
		SwapDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swap_duration_seconds",
			Help:      "End-to-end swap execution duration by side",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"side"}),
		SlippageUsedBps: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "slippage_used_bps",
			Help:      "Slippage of the winning attempt in basis points",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000},
		}),

		HoldingsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "holdings_tracked",
			Help:      "Number of currently tracked holdings",
		}),
		PendingSellDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "pending_sells",
			Help:      "Depth of the pending sell retry queue",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "rpc_call_latency_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "ws_reconnects_total",
			Help:      "WebSocket reconnect attempts",
		}),

		LastTradeDetected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_trade_detected_timestamp",
			Help:      "Unix timestamp of the last detected counterparty trade",
		}),
		LastTradeExecuted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_trade_executed_timestamp",
			Help:      "Unix timestamp of the last confirmed copy trade",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSwapDetected increments the detected swap counter for a mode.
func RecordSwapDetected(mode string) {
	DefaultMetrics.SwapsDetected.WithLabelValues(mode).Inc()
}

// RecordGuardRejection records a guard short-circuit.
func RecordGuardRejection(reason string) {
	DefaultMetrics.GuardRejections.WithLabelValues(reason).Inc()
}

// RecordTradeExecuted records a confirmed copy trade.
func RecordTradeExecuted(side string, durationSeconds float64, slippageBps int) {
	DefaultMetrics.TradesExecuted.WithLabelValues(side).Inc()
	DefaultMetrics.SwapDuration.WithLabelValues(side).Observe(durationSeconds)
	DefaultMetrics.SlippageUsedBps.Observe(float64(slippageBps))
}

// RecordTradeFailure records an exhausted-retries trade failure.
func RecordTradeFailure(side string) {
	DefaultMetrics.TradeFailures.WithLabelValues(side).Inc()
}

// RecordEmergencySell records an emergency sell outcome.
func RecordEmergencySell(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	DefaultMetrics.EmergencySells.WithLabelValues(outcome).Inc()
}

// RecordDetectionError records a detection error.
func RecordDetectionError(mode, errorType string) {
	DefaultMetrics.DetectionErrors.WithLabelValues(mode, errorType).Inc()
}

// UpdateHoldingsTracked updates the tracked holdings gauge.
func UpdateHoldingsTracked(n int) {
	DefaultMetrics.HoldingsTracked.Set(float64(n))
}

// UpdatePendingSellDepth updates the pending sell queue gauge.
func UpdatePendingSellDepth(n int) {
	DefaultMetrics.PendingSellDepth.Set(float64(n))
}
