// Package metrics provides Prometheus metrics for the trigger engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stocktrigger"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// Evaluation
	EvaluationRuns     *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	TriggerEvents      *prometheus.CounterVec
	TradesExecuted     *prometheus.CounterVec
	TradeFailures      prometheus.Counter
	FeedFailures       prometheus.Counter
	StoreFailures      prometheus.Counter
	ActiveConstraints  prometheus.Gauge
	EvaluationRunning  prometheus.Gauge

	// Price refresh
	PriceRefreshRuns    *prometheus.CounterVec
	PositionsRefreshed  prometheus.Counter
	MissingPriceSymbols prometheus.Counter

	// Backtests
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
}

// New registers all collectors with reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		EvaluationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "runs_total",
			Help:      "Evaluation ticks by outcome (completed, skipped, failed)",
		}, []string{"outcome"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "duration_seconds",
			Help:      "Duration of completed evaluation ticks",
			Buckets:   prometheus.DefBuckets,
		}),
		TriggerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "trigger_events_total",
			Help:      "Trigger events emitted by kind",
		}, []string{"kind"}),
		TradesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "trades_total",
			Help:      "Simulated trades by side and reason",
		}, []string{"side", "reason"}),
		TradeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "trade_failures_total",
			Help:      "Trigger events whose trade could not be applied",
		}),
		FeedFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "feed_failures_total",
			Help:      "Symbols skipped in a tick because the price could not be fetched",
		}),
		StoreFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "baseline_store_failures_total",
			Help:      "Symbols skipped in a tick because the baseline store failed",
		}),
		ActiveConstraints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "active_constraints",
			Help:      "Active constraints seen by the last tick",
		}),
		EvaluationRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "running",
			Help:      "1 while this process runs an evaluation tick",
		}),

		PriceRefreshRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price_refresh",
			Name:      "runs_total",
			Help:      "Price refresh runs by outcome",
		}, []string{"outcome"}),
		PositionsRefreshed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price_refresh",
			Name:      "positions_updated_total",
			Help:      "Open positions whose current price was updated",
		}),
		MissingPriceSymbols: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price_refresh",
			Name:      "missing_symbols_total",
			Help:      "Symbols with no price during a refresh",
		}),

		BacktestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Backtest requests by outcome",
		}, []string{"outcome"}),
		BacktestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Duration of backtest requests",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// HandlerFor serves the collectors of g in the Prometheus exposition format.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
