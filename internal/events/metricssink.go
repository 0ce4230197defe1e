package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts emitted events by component and level into its own
// Prometheus registry, served on the optional status surface's /metrics
// (spec.md §6). Grounded on vjache-cie's cmd/cie --metrics-addr flag,
// which exposes a promhttp.Handler() over a process-wide registry; here
// the registry is owned by the sink itself rather than the default
// global one, so a run without a status server never touches it.
type MetricsSink struct {
	registry    *prometheus.Registry
	eventsTotal *prometheus.CounterVec
}

// NewMetricsSink builds and registers the counters.
func NewMetricsSink() *MetricsSink {
	registry := prometheus.NewRegistry()
	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oreilly_library_events_total",
		Help: "Structured events emitted by the engine, by component and level.",
	}, []string{"component", "level"})
	registry.MustRegister(eventsTotal)

	return &MetricsSink{registry: registry, eventsTotal: eventsTotal}
}

// Emit increments the counter for e's component and level.
func (m *MetricsSink) Emit(e Event) {
	m.eventsTotal.WithLabelValues(e.Component, e.Level.String()).Inc()
}

// Registry returns the Prometheus registry the status server's /metrics
// handler should serve.
func (m *MetricsSink) Registry() *prometheus.Registry {
	return m.registry
}
