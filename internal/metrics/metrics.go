// Package metrics exposes capture counters in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netrisk/internal/models"
)

const namespace = "netrisk"

// Metrics holds the collectors of one process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	packets   *prometheus.CounterVec
	degraded  prometheus.Counter
	dropped   prometheus.Counter
	sessions  prometheus.Counter
	capturing prometheus.Gauge
	failures  prometheus.Counter
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets captured, by assigned risk tier.",
		}, []string{"risk"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_packets_total",
			Help:      "Packets that could not be decoded or classified.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Frames delivered by a capture loop after its session was reset or replaced.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Capture sessions started.",
		}),
		capturing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capturing",
			Help:      "1 while a capture session is running.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Capture loops that ended with an error or panic.",
		}),
	}
	for _, r := range []models.Risk{models.RiskLow, models.RiskMedium, models.RiskHigh} {
		m.packets.WithLabelValues(string(r))
	}
	reg.MustRegister(m.packets, m.degraded, m.dropped, m.sessions, m.capturing, m.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// ObserveFallbacks exports a counter read from fn at scrape time.
func (m *Metrics) ObserveFallbacks(fn func() uint64) {
	if m == nil || fn == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifier_fallbacks_total",
		Help:      "Predictions answered by the random stub after a model failure.",
	}, func() float64 { return float64(fn()) }))
}

// Packet records one produced packet record.
func (m *Metrics) Packet(rec models.PacketRecord, degraded bool) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(string(rec.Risk)).Inc()
	if degraded {
		m.degraded.Inc()
	}
}

// Dropped records a frame discarded because its session no longer exists.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SessionStarted marks the start of a capture session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
	m.capturing.Set(1)
}

// SessionEnded marks the end of a capture session.
func (m *Metrics) SessionEnded(failed bool) {
	if m == nil {
		return
	}
	m.capturing.Set(0)
	if failed {
		m.failures.Inc()
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
