package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initActionMetrics(cfg Config) {
	m.actionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_actions_started_total",
			Help: "Total number of actions started by actor and kind",
		},
		[]string{"actor", "kind"},
	)

	m.actionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_actions_finished_total",
			Help: "Total number of finished actions by outcome",
		},
		[]string{"actor", "kind", "outcome"},
	)

	m.actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_action_duration_seconds",
			Help:    "Wall-clock action execution time in seconds",
			Buckets: cfg.ActionDurationBuckets,
		},
		[]string{"kind"},
	)

	m.preemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_action_preemptions_total",
			Help: "Total number of running actions interrupted by a newer one",
		},
		[]string{"actor", "kind"},
	)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dayloop_action_queue_depth",
			Help: "Actions waiting to start per actor",
		},
		[]string{"actor"},
	)

	m.registry.MustRegister(m.actionsStarted)
	m.registry.MustRegister(m.actionsFinished)
	m.registry.MustRegister(m.actionDuration)
	m.registry.MustRegister(m.preemptions)
	m.registry.MustRegister(m.queueDepth)
}

// RecordActionStarted counts an action that began executing.
func (m *Manager) RecordActionStarted(actor, kind string) {
	if !m.enabled {
		return
	}
	m.actionsStarted.WithLabelValues(actor, kind).Inc()
}

// RecordActionFinished counts a settled action and observes its duration.
func (m *Manager) RecordActionFinished(actor, kind, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.actionsFinished.WithLabelValues(actor, kind, outcome).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPreemption counts an interrupted action.
func (m *Manager) RecordPreemption(actor, kind string) {
	if !m.enabled {
		return
	}
	m.preemptions.WithLabelValues(actor, kind).Inc()
}

// SetQueueDepth reports the scheduler backlog of actor.
func (m *Manager) SetQueueDepth(actor string, depth int) {
	if !m.enabled {
		return
	}
	m.queueDepth.WithLabelValues(actor).Set(float64(depth))
}

func (m *Manager) initPlannerMetrics() {
	m.revisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_plan_revisions_total",
			Help: "Plan revision attempts by outcome",
		},
		[]string{"actor", "outcome"},
	)

	m.expansions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_plan_expansions_total",
			Help: "Plan expansions by level and status",
		},
		[]string{"level", "status"},
	)

	m.registry.MustRegister(m.revisions)
	m.registry.MustRegister(m.expansions)
}

// RecordRevision counts a plan revision outcome.
func (m *Manager) RecordRevision(actor, outcome string) {
	if !m.enabled {
		return
	}
	m.revisions.WithLabelValues(actor, outcome).Inc()
}

// RecordExpansion counts an activity or action expansion.
func (m *Manager) RecordExpansion(_ string, level string, success bool) {
	if !m.enabled {
		return
	}
	m.expansions.WithLabelValues(level, status(success)).Inc()
}
