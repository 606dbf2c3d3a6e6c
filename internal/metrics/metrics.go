package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "market"

// Metrics holds the engine's prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	Trades          *prometheus.CounterVec
	TradedVolume    *prometheus.CounterVec
	OrdersExpired   *prometheus.CounterVec
	BookDepth       *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted into a book.",
		}, []string{"asset", "side"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected before reaching a book.",
		}, []string{"reason"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}, []string{"asset"}),
		TradedVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_volume_total",
			Help:      "Quantity traded.",
		}, []string{"asset"}),
		OrdersExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_expired_total",
			Help:      "Pending orders cancelled by the lifecycle sweep.",
		}, []string{"asset"}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_depth",
			Help:      "Resting orders per book side.",
		}, []string{"asset", "side"}),
	}
	if reg != nil {
		reg.MustRegister(m.OrdersSubmitted, m.OrdersRejected, m.Trades, m.TradedVolume, m.OrdersExpired, m.BookDepth)
	}
	return m
}

func (m *Metrics) OrderSubmitted(asset, side string) {
	if m == nil {
		return
	}
	m.OrdersSubmitted.WithLabelValues(asset, side).Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) TradeExecuted(asset string, qty decimal.Decimal) {
	if m == nil {
		return
	}
	m.Trades.WithLabelValues(asset).Inc()
	m.TradedVolume.WithLabelValues(asset).Add(qty.InexactFloat64())
}

func (m *Metrics) Expired(asset string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OrdersExpired.WithLabelValues(asset).Add(float64(n))
}

func (m *Metrics) Depth(asset string, bids, asks int) {
	if m == nil {
		return
	}
	m.BookDepth.WithLabelValues(asset, "bid").Set(float64(bids))
	m.BookDepth.WithLabelValues(asset, "ask").Set(float64(asks))
}
