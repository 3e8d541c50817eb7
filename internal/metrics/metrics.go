// Package metrics exposes Prometheus instruments for the relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all instruments. Each instance owns its registry.
type Metrics struct {
	Registry *prometheus.Registry

	Updates        *prometheus.CounterVec
	InFlight       prometheus.Gauge
	Stages         *prometheus.CounterVec
	Runs           *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	AdapterErrors  *prometheus.CounterVec
	AdapterLatency *prometheus.HistogramVec
	RunLatency     prometheus.Histogram
	Sessions       prometheus.GaugeFunc
}

// New builds the instruments. sessions reports the live session count and
// may be nil.
func New(namespace string, sessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		Updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound updates by kind.",
		}, []string{"kind"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_in_flight",
			Help:      "Voice pipelines currently running.",
		}),
		Stages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Pipeline stage entries by stage.",
		}, []string{"stage"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by terminal state and failing stage.",
		}, []string{"final", "failed_at"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Replies delivered by medium.",
		}, []string{"medium"}),
		AdapterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "Adapter failures by adapter and error kind.",
		}, []string{"adapter", "kind"}),
		AdapterLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_latency_seconds",
			Help:      "Adapter call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"adapter"}),
		RunLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_latency_seconds",
			Help:      "End-to-end voice pipeline latency.",
			Buckets:   []float64{1, 2, 4, 8, 15, 30, 60},
		}),
	}
	if sessions != nil {
		m.Sessions = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Chats with a stored reply.",
		}, func() float64 { return float64(sessions()) })
	}
	return m
}

// ObserveAdapter records one adapter call. kind is empty on success.
func (m *Metrics) ObserveAdapter(adapter string, d time.Duration, kind string) {
	m.AdapterLatency.WithLabelValues(adapter).Observe(d.Seconds())
	if kind != "" {
		m.AdapterErrors.WithLabelValues(adapter, kind).Inc()
	}
}

func (m *Metrics) ObserveRun(final, failedAt string, d time.Duration) {
	m.Runs.WithLabelValues(final, failedAt).Inc()
	m.RunLatency.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
