package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initMemoryMetrics(cfg Config) {
	m.stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_memory_stage_total",
			Help: "Memory pipeline stage runs by status",
		},
		[]string{"stage", "status"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_memory_stage_duration_seconds",
			Help:    "Memory pipeline stage duration in seconds",
			Buckets: cfg.StageDurationBuckets,
		},
		[]string{"stage"},
	)

	m.dayEndRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_day_end_runs_total",
			Help: "Completed day-end memory runs per actor",
		},
		[]string{"actor"},
	)

	m.chunksKept = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dayloop_day_end_chunks_kept",
			Help: "Chunks kept by the last day-end run",
		},
		[]string{"actor"},
	)

	m.longTermSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dayloop_long_term_entries",
			Help: "Long-term memory entries after the last day-end run",
		},
		[]string{"actor"},
	)

	m.shortTermSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dayloop_short_term_entries",
			Help: "Entries in the short-term log",
		},
		[]string{"actor"},
	)

	m.registry.MustRegister(m.stageRuns)
	m.registry.MustRegister(m.stageDuration)
	m.registry.MustRegister(m.dayEndRuns)
	m.registry.MustRegister(m.chunksKept)
	m.registry.MustRegister(m.longTermSize)
	m.registry.MustRegister(m.shortTermSize)
}

// RecordStage records one consolidate, filter or maintain stage.
func (m *Manager) RecordStage(_ string, stage string, success bool, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.stageRuns.WithLabelValues(stage, status(success)).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordDayEnd records the result of a completed day-end run.
func (m *Manager) RecordDayEnd(actor string, chunksKept, longTermSize int) {
	if !m.enabled {
		return
	}
	m.dayEndRuns.WithLabelValues(actor).Inc()
	m.chunksKept.WithLabelValues(actor).Set(float64(chunksKept))
	m.longTermSize.WithLabelValues(actor).Set(float64(longTermSize))
}

// SetShortTermSize reports the short-term log length of actor.
func (m *Manager) SetShortTermSize(actor string, size int) {
	if !m.enabled {
		return
	}
	m.shortTermSize.WithLabelValues(actor).Set(float64(size))
}
