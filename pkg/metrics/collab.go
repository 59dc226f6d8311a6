package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initCollabMetrics(cfg Config) {
	m.collabCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_collaborator_calls_total",
			Help: "Collaborator calls by status",
		},
		[]string{"collaborator", "status"},
	)

	m.collabDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_collaborator_call_duration_seconds",
			Help:    "Collaborator call latency in seconds",
			Buckets: cfg.CollabDurationBuckets,
		},
		[]string{"collaborator"},
	)

	m.collabThrottle = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_collaborator_throttle_seconds",
			Help:    "Time spent waiting on the collaborator rate limiter",
			Buckets: cfg.CollabDurationBuckets,
		},
		[]string{"collaborator"},
	)

	m.registry.MustRegister(m.collabCalls)
	m.registry.MustRegister(m.collabDuration)
	m.registry.MustRegister(m.collabThrottle)
}

// RecordCall records one collaborator invocation.
func (m *Manager) RecordCall(collaborator string, success bool, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.collabCalls.WithLabelValues(collaborator, status(success)).Inc()
	m.collabDuration.WithLabelValues(collaborator).Observe(duration.Seconds())
}

// RecordThrottle records a rate limiter wait.
func (m *Manager) RecordThrottle(collaborator string, wait time.Duration) {
	if !m.enabled {
		return
	}
	m.collabThrottle.WithLabelValues(collaborator).Observe(wait.Seconds())
}
