// Package metrics expone los contadores Prometheus del motor de señales.
// Todos los métodos aceptan un *Registry nil, de forma que los componentes se
// pueden construir sin métricas en tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry agrupa las métricas del motor.
type Registry struct {
	gatherer prometheus.Gatherer

	Scans          *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	SignalsCreated *prometheus.CounterVec
	Settlements    *prometheus.CounterVec
	TradesDropped  *prometheus.CounterVec
	StoreErrors    *prometheus.CounterVec
	PendingSignals prometheus.Gauge
}

// NewRegistry crea las métricas y las registra en un registry propio.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		gatherer: reg,

		Scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_scans_total",
				Help: "Total number of scans by result",
			},
			[]string{"result"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polysignal_scan_duration_seconds",
				Help:    "Duration of a full scan in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		SignalsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_signals_created_total",
				Help: "Total number of signals persisted by market type",
			},
			[]string{"market_type"},
		),

		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_settlements_total",
				Help: "Total number of settled signals by outcome",
			},
			[]string{"outcome"},
		),

		TradesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_trades_dropped_total",
				Help: "Total number of trades dropped by the aggregator by reason",
			},
			[]string{"reason"},
		),

		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_store_errors_total",
				Help: "Total number of degraded store operations by component",
			},
			[]string{"component"},
		),

		PendingSignals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "polysignal_pending_signals",
				Help: "Pending signals seen by the last settlement sweep",
			},
		),
	}

	reg.MustRegister(
		r.Scans,
		r.ScanDuration,
		r.SignalsCreated,
		r.Settlements,
		r.TradesDropped,
		r.StoreErrors,
		r.PendingSignals,
	)
	return r
}

// Handler devuelve el handler HTTP de /metrics.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// ObserveScan registra un scan terminado.
func (r *Registry) ObserveScan(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.Scans.WithLabelValues(result).Inc()
	r.ScanDuration.Observe(d.Seconds())
}

func (r *Registry) SignalCreated(marketType string) {
	if r == nil {
		return
	}
	r.SignalsCreated.WithLabelValues(marketType).Inc()
}

func (r *Registry) Settled(outcome string) {
	if r == nil {
		return
	}
	r.Settlements.WithLabelValues(outcome).Inc()
}

// Dropped suma n trades descartados por reason.
func (r *Registry) Dropped(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.TradesDropped.WithLabelValues(reason).Add(float64(n))
}

func (r *Registry) StoreError(component string) {
	if r == nil {
		return
	}
	r.StoreErrors.WithLabelValues(component).Inc()
}

func (r *Registry) SetPending(n int) {
	if r == nil {
		return
	}
	r.PendingSignals.Set(float64(n))
}
