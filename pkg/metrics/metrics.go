// Package metrics provides Prometheus instrumentation for dayloop.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every dayloop metric. A disabled Manager accepts all calls
// and records nothing, so it can be handed to components unconditionally.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Scheduler metrics
	actionsStarted  *prometheus.CounterVec
	actionsFinished *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	preemptions     *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec

	// Memory metrics
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	dayEndRuns    *prometheus.CounterVec
	chunksKept    *prometheus.GaugeVec
	longTermSize  *prometheus.GaugeVec
	shortTermSize *prometheus.GaugeVec

	// Planner metrics
	revisions  *prometheus.CounterVec
	expansions *prometheus.CounterVec

	// Collaborator metrics
	collabCalls    *prometheus.CounterVec
	collabDuration *prometheus.HistogramVec
	collabThrottle *prometheus.HistogramVec

	// Event bus metrics
	eventsPublished *prometheus.CounterVec
	publishAttempts *prometheus.HistogramVec
	busDegraded     prometheus.Gauge
	busTransitions  *prometheus.CounterVec

	// HTTP metrics
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpResponseSize *prometheus.HistogramVec
	httpInFlight     prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	// Histogram bucket configurations
	ActionDurationBuckets []float64
	StageDurationBuckets  []float64
	CollabDurationBuckets []float64
	HTTPDurationBuckets   []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Port:                  9091,
		Path:                  "/metrics",
		ActionDurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		StageDurationBuckets:  []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		CollabDurationBuckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		HTTPDurationBuckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()

	// Register Go runtime metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.initActionMetrics(cfg)
	m.initMemoryMetrics(cfg)
	m.initPlannerMetrics()
	m.initCollabMetrics(cfg)
	m.initEventBusMetrics()
	m.initHTTPMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registerer exposes the manager's registry so other packages can add
// collectors to the same endpoint. A disabled manager returns a throwaway
// registry.
func (m *Manager) Registerer() prometheus.Registerer {
	if !m.enabled {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer serves the metrics endpoint on its own port until ctx ends.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
