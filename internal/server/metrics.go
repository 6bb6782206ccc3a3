package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manumagallanes/STransmision/internal/sim"
)

// Metrics are the simulation counters exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	symbolsTotal *prometheus.CounterVec
	bitErrors    *prometheus.CounterVec
	lastBER      *prometheus.GaugeVec
	runDuration  *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stransmision_runs_total",
				Help: "Completed link simulations",
			},
			[]string{"scheme"},
		),
		symbolsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stransmision_symbols_total",
				Help: "Symbols sent through the link",
			},
			[]string{"scheme"},
		),
		bitErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stransmision_bit_errors_total",
				Help: "Bit errors measured after detection",
			},
			[]string{"scheme"},
		),
		lastBER: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stransmision_last_ber",
				Help: "Bit error rate of the latest run",
			},
			[]string{"scheme"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stransmision_run_duration_seconds",
				Help:    "Wall time of a link simulation",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"scheme"},
		),
	}
}

// Observe records a finished run.
func (m *Metrics) Observe(res *sim.Result) {
	scheme := res.Scheme.String()
	m.runsTotal.WithLabelValues(scheme).Inc()
	m.symbolsTotal.WithLabelValues(scheme).Add(float64(res.Metadata.TotalSymbols))
	m.bitErrors.WithLabelValues(scheme).Add(float64(res.Analysis.BitErrors))
	m.lastBER.WithLabelValues(scheme).Set(res.Analysis.BER)
	m.runDuration.WithLabelValues(scheme).Observe(res.Elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
