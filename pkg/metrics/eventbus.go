package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initEventBusMetrics() {
	m.eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_events_published_total",
			Help: "Actor events handed to the bus by type and status",
		},
		[]string{"type", "status"},
	)
	m.publishAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_event_publish_attempts",
			Help:    "Transport attempts needed per event",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
		[]string{"type"},
	)
	m.busDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dayloop_event_bus_degraded",
		Help: "1 while event publishing is failing",
	})
	m.busTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_event_bus_transitions_total",
			Help: "Changes of the event bus health state",
		},
		[]string{"to"},
	)

	m.registry.MustRegister(m.eventsPublished, m.publishAttempts, m.busDegraded, m.busTransitions)
}

// ObservePublish records the result of one event publish.
func (m *Manager) ObservePublish(eventType string, attempts int, err error) {
	if !m.enabled {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, status(err == nil)).Inc()
	m.publishAttempts.WithLabelValues(eventType).Observe(float64(attempts))
}

// SetDegraded records an event bus health transition.
func (m *Manager) SetDegraded(degraded bool) {
	if !m.enabled {
		return
	}
	if degraded {
		m.busDegraded.Set(1)
		m.busTransitions.WithLabelValues("degraded").Inc()
		return
	}
	m.busDegraded.Set(0)
	m.busTransitions.WithLabelValues("healthy").Inc()
}
