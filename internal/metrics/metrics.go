// Package metrics exposes Prometheus collectors for the trading pipeline and
// an HTTP server serving /metrics and /healthz.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fastquant"

// Metrics holds all Prometheus metrics for the trading pipeline.
type Metrics struct {
	TicksTotal       *prometheus.CounterVec // labels: symbol
	DroppedTicks     *prometheus.CounterVec // labels: reason
	FeedReconnects   prometheus.Counter
	TickProcessDur   prometheus.Histogram
	SignalsTotal     *prometheus.CounterVec // labels: symbol, signal
	OrdersTotal      *prometheus.CounterVec // labels: symbol, side, status
	RiskBlocks       *prometheus.CounterVec // labels: symbol, side
	MovingAverage    *prometheus.GaugeVec   // labels: symbol, line
	IndicatorValue   *prometheus.GaugeVec   // labels: symbol, name
	Position         *prometheus.GaugeVec   // labels: symbol
	RealizedPnL      prometheus.Gauge
	PublishFailures  *prometheus.CounterVec // labels: sink
	PublishDur       *prometheus.HistogramVec
	TicksRecorded    prometheus.Counter
	SQLiteCommitDur  prometheus.Histogram
	RouterDrops      *prometheus.CounterVec // labels: symbol
	BreakerState     prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	BreakerTrips     prometheus.Counter
	ChannelSaturated *prometheus.GaugeVec // labels: channel_name
}

// New creates all collectors and registers them on reg.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	fast := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total ticks received per symbol",
		}, []string{"symbol"}),
		DroppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_ticks_total",
			Help:      "Ticks dropped (malformed, non-finite or channel full)",
		}, []string{"reason"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "Total market-data WebSocket reconnection attempts",
		}),
		TickProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_process_duration_seconds",
			Help:      "Strategy and indicator latency per tick",
			Buckets:   fast,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals emitted by strategies",
		}, []string{"symbol", "signal"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders placed by outcome",
		}, []string{"symbol", "side", "status"}),
		RiskBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_blocked_orders_total",
			Help:      "Orders suppressed by the risk gate or the RSI filter",
		}, []string{"symbol", "side"}),
		MovingAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moving_average",
			Help:      "Current crossover averages (line=fast|slow)",
		}, []string{"symbol", "line"}),
		IndicatorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_value",
			Help:      "Latest streaming indicator readings",
		}, []string{"symbol", "name"}),
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position",
			Help:      "Signed position per symbol",
		}, []string{"symbol"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl",
			Help:      "Realized P&L in quote currency",
		}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_publish_failures_total",
			Help:      "Signal publish failures per sink",
		}, []string{"sink"}),
		PublishDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signal_publish_duration_seconds",
			Help:      "Signal publish latency per sink",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		TicksRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_recorded_total",
			Help:      "Ticks persisted to SQLite",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sqlite_commit_duration_seconds",
			Help:      "SQLite batch commit latency",
			Buckets:   prometheus.DefBuckets,
		}),
		RouterDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_drops_total",
			Help:      "Ticks dropped by the symbol router because a runner was slow",
		}, []string{"symbol"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_trips_total",
			Help:      "Times the Redis circuit breaker tripped open",
		}),
		ChannelSaturated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_saturation_pct",
			Help:      "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.DroppedTicks,
		m.FeedReconnects,
		m.TickProcessDur,
		m.SignalsTotal,
		m.OrdersTotal,
		m.RiskBlocks,
		m.MovingAverage,
		m.IndicatorValue,
		m.Position,
		m.RealizedPnL,
		m.PublishFailures,
		m.PublishDur,
		m.TicksRecorded,
		m.SQLiteCommitDur,
		m.RouterDrops,
		m.BreakerState,
		m.BreakerTrips,
		m.ChannelSaturated,
	)

	return m
}
