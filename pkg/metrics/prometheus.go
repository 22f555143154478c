package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradeEvents   *prometheus.CounterVec
	ordersTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	subscribed    prometheus.Gauge
	screened      prometheus.Gauge
	cycleDuration prometheus.Histogram
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradeEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivottrader_trade_events_total",
				Help: "Total number of streamed trade events processed",
			},
			[]string{"symbol"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivottrader_orders_total",
				Help: "Total number of order submissions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivottrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pivottrader_last_price",
				Help: "Last streamed price for a symbol",
			},
			[]string{"symbol"},
		),
		subscribed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pivottrader_subscribed_symbols",
				Help: "Number of symbols on the live trade stream",
			},
		),
		screened: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pivottrader_screened_assets",
				Help: "Number of assets produced by the last screening cycle",
			},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pivottrader_screening_cycle_seconds",
				Help:    "Duration of screening cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordTradeEvent counts one processed trade print.
func (r *Recorder) RecordTradeEvent(symbol string) {
	r.tradeEvents.WithLabelValues(symbol).Inc()
}

// RecordOrder counts an order submission outcome.
func (r *Recorder) RecordOrder(action, outcome string) {
	r.ordersTotal.WithLabelValues(action, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordCycleDuration records one screening cycle duration in seconds.
func (r *Recorder) RecordCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

// SetSubscribedSymbols records the live subscription set size.
func (r *Recorder) SetSubscribedSymbols(n int) {
	r.subscribed.Set(float64(n))
}

// SetScreenedAssets records the size of the current screened set.
func (r *Recorder) SetScreenedAssets(n int) {
	r.screened.Set(float64(n))
}

// Nop is a Metrics implementation that records nothing.
type Nop struct{}

func (Nop) RecordTradeEvent(string)        {}
func (Nop) RecordOrder(string, string)     {}
func (Nop) RecordError(string)             {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordCycleDuration(float64)    {}
func (Nop) SetSubscribedSymbols(int)       {}
func (Nop) SetScreenedAssets(int)          {}
