// Package metrics exposes Prometheus instrumentation for the
// coordinator, signal-processing, and order-execution domains, served
// at GET /metrics. Grounded on internal/bot/metrics.go's
// promauto Histogram/Counter/Gauge-plus-RecordXxx idiom, re-labeled
// from arbitrage-spread/exchange metrics to leader election, signal
// dispatch, and broker order execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Coordinator metrics ============

// LeaderChangesTotal counts leader transitions recorded by the
// coordinator's heartbeat loop.
var LeaderChangesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "coordinator",
		Name:      "leader_changes_total",
		Help:      "Total number of leader election transitions observed",
	},
)

// IsLeader reports whether this instance currently holds the lease
// (1) or is a follower (0).
var IsLeader = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "coordinator",
		Name:      "is_leader",
		Help:      "1 if this instance currently holds the leader lease, else 0",
	},
)

// SyncLatency is a histogram for the coordinator's lease-acquire/renew/
// release round trips against the shared store. Nothing in this module
// observes it; the coordinator keeps its latency samples in
// coordinator.Metrics.
var SyncLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "coordinator",
		Name:      "sync_latency_ms",
		Help:      "Latency of coordinator lease operations in milliseconds",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	},
	[]string{"op"}, // acquire, renew, release
)

// SplitBrainDetected counts self-demotions triggered by the
// memory/relational leader mismatch check.
var SplitBrainDetected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "coordinator",
		Name:      "split_brain_detected_total",
		Help:      "Total number of split-brain self-demotions",
	},
)

// ============ Signal-processing metrics ============

// SignalProcessingLatency times webhook-to-outcome handling for a
// single signal, per kind.
var SignalProcessingLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "signal",
		Name:      "processing_latency_ms",
		Help:      "Time from signal receipt to recorded outcome in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"kind"}, // base_entry, pyramid, exit, market_data, eod_monitor
)

// SignalsTotal counts every signal by its final audit outcome.
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "signal",
		Name:      "signals_total",
		Help:      "Total number of signals processed, by outcome",
	},
	[]string{"kind", "outcome"},
)

// DedupHitsTotal counts signals rejected as duplicates by the
// fingerprint cache.
var DedupHitsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "signal",
		Name:      "dedup_hits_total",
		Help:      "Total number of signals rejected as duplicates",
	},
)

// ============ Order execution metrics ============

// OrderExecutionLatency times a single broker order round trip.
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "execution",
		Name:      "order_latency_ms",
		Help:      "Time to execute an order on the broker in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 10000},
	},
	[]string{"instrument", "leg"}, // leg: single, put, call
)

// OrdersTotal counts broker orders by status.
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "execution",
		Name:      "orders_total",
		Help:      "Total number of broker orders submitted, by status",
	},
	[]string{"instrument", "status"}, // status: executed, partial, rejected
)

// SyntheticRollbacksTotal counts second-leg rollback attempts on
// synthetic two-leg execution, by outcome.
var SyntheticRollbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "execution",
		Name:      "synthetic_rollbacks_total",
		Help:      "Total number of synthetic second-leg rollback attempts, by outcome",
	},
	[]string{"outcome"}, // rolled_back, failed_ce_covered, rollback_failed_critical
)

// ============ Portfolio / risk metrics ============

// OpenPositions reports the current number of open positions per
// instrument.
var OpenPositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "portfolio",
		Name:      "open_positions",
		Help:      "Current number of open positions by instrument",
	},
	[]string{"instrument"},
)

// PortfolioRiskPercent reports the account's total open risk as a
// percentage of equity, checked against the portfolio gate.
var PortfolioRiskPercent = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "portfolio",
		Name:      "risk_percent",
		Help:      "Current total open risk as a percentage of account equity",
	},
)

// EquityHighWater reports the portfolio's running high-water mark.
var EquityHighWater = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "portfolio",
		Name:      "equity_high_water",
		Help:      "Current account equity high-water mark",
	},
)

// RolloverLatency times an automated position roll end to end.
var RolloverLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "rollover",
		Name:      "latency_ms",
		Help:      "Time to complete an automated contract roll in milliseconds",
		Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000},
	},
)

// RolloversTotal counts rollover attempts by outcome.
var RolloversTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "rollover",
		Name:      "total",
		Help:      "Total number of rollover attempts, by outcome",
	},
	[]string{"outcome"}, // rolled, failed
)

// ============ Confirmation metrics ============

// ConfirmationLatency times the dialog-vs-chat race to a response.
var ConfirmationLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "confirm",
		Name:      "latency_ms",
		Help:      "Time from confirmation request to resolved response in milliseconds",
		Buckets:   []float64{100, 500, 1000, 5000, 10000, 30000, 60000},
	},
	[]string{"source"}, // dialog, chat, timeout, error
)

// RecordSignalOutcome observes the processing latency and increments
// the outcome counter for a completed signal.
func RecordSignalOutcome(kind, outcome string, latencyMs float64) {
	SignalProcessingLatency.WithLabelValues(kind).Observe(latencyMs)
	SignalsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordOrder observes execution latency and increments the status
// counter for a single broker order leg.
func RecordOrder(instrument, leg, status string, latencyMs float64) {
	OrderExecutionLatency.WithLabelValues(instrument, leg).Observe(latencyMs)
	OrdersTotal.WithLabelValues(instrument, status).Inc()
}

// RecordConfirmation observes the race latency for a resolved
// confirmation, by which source won.
func RecordConfirmation(source string, latencyMs float64) {
	ConfirmationLatency.WithLabelValues(source).Observe(latencyMs)
}
