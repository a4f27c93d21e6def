// Package metrics exposes prometheus instrumentation for the pharmacy core.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the pharmacy services report into.
type Metrics struct {
	registry *prometheus.Registry

	StockTransactions *prometheus.CounterVec
	DispenseOps       *prometheus.CounterVec
	ReservationDenied prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		StockTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmacy_stock_transactions_total",
			Help: "Stock ledger transactions recorded, by type.",
		}, []string{"type"}),
		DispenseOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmacy_dispense_operations_total",
			Help: "Dispensing workflow operations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ReservationDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharmacy_stock_reservations_denied_total",
			Help: "Stock reservations denied due to insufficient available stock.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pharmacy_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(m.StockTransactions, m.DispenseOps, m.ReservationDenied, m.RequestDuration)
	return m
}

// Handler returns the /metrics scrape endpoint.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}
