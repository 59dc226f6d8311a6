package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/api/middleware"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/planner"
	"github.com/prometheus/client_golang/prometheus"
)

// The Manager is handed directly to every component.
var (
	_ action.MetricsRecorder     = (*Manager)(nil)
	_ memory.MetricsRecorder     = (*Manager)(nil)
	_ planner.MetricsRecorder    = (*Manager)(nil)
	_ collab.MetricsRecorder     = (*Manager)(nil)
	_ eventbus.Telemetry         = (*Manager)(nil)
	_ middleware.MetricsRecorder = (*Manager)(nil)
)

func scrape(t *testing.T, m *Manager) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func scrapeOpenMetrics(t *testing.T, m *Manager) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordActionStarted("alice", "cook")
	m.RecordActionFinished("alice", "cook", "succeeded", 2*time.Second)
	m.RecordPreemption("alice", "wait")
	m.SetQueueDepth("alice", 2)
	m.RecordStage("alice", "consolidate", true, 10*time.Millisecond)
	m.RecordDayEnd("alice", 3, 12)
	m.SetShortTermSize("alice", 40)
	m.RecordRevision("alice", "revised")
	m.RecordExpansion("alice", "activities", false)
	m.RecordCall("generator", true, 30*time.Millisecond)
	m.RecordThrottle("generator", time.Millisecond)
	m.ObservePublish("day_end", 1, nil)
	m.ObservePublish("perception", 4, errors.New("relay down"))
	m.SetDegraded(true)
	m.ObserveRequest(context.Background(), "GET", "/api/v1/actors", 200, 64, 5*time.Millisecond)
	m.AddInFlight(1)

	code, body := scrape(t, m)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}

	expected := []string{
		`dayloop_actions_started_total{actor="alice",kind="cook"} 1`,
		`dayloop_actions_finished_total{actor="alice",kind="cook",outcome="succeeded"} 1`,
		"dayloop_action_duration_seconds",
		"dayloop_action_preemptions_total",
		`dayloop_action_queue_depth{actor="alice"} 2`,
		`dayloop_memory_stage_total{stage="consolidate",status="success"} 1`,
		"dayloop_memory_stage_duration_seconds",
		`dayloop_day_end_runs_total{actor="alice"} 1`,
		`dayloop_day_end_chunks_kept{actor="alice"} 3`,
		`dayloop_long_term_entries{actor="alice"} 12`,
		`dayloop_short_term_entries{actor="alice"} 40`,
		`dayloop_plan_revisions_total{actor="alice",outcome="revised"} 1`,
		`dayloop_plan_expansions_total{level="activities",status="failure"} 1`,
		`dayloop_collaborator_calls_total{collaborator="generator",status="success"} 1`,
		"dayloop_collaborator_throttle_seconds",
		`dayloop_events_published_total{status="success",type="day_end"} 1`,
		`dayloop_events_published_total{status="failure",type="perception"} 1`,
		`dayloop_event_publish_attempts_sum{type="perception"} 4`,
		"dayloop_event_bus_degraded 1",
		`dayloop_event_bus_transitions_total{to="degraded"} 1`,
		`dayloop_http_requests_total{code="200",method="GET",route="/api/v1/actors"} 1`,
		"dayloop_http_response_bytes",
		"dayloop_http_requests_in_flight 1",
	}
	for _, metric := range expected {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	code, _ := scrape(t, NewManager(cfg))
	if code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", code)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 19091

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		err := m.StartServer(ctx, cfg.Port, cfg.Path)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://localhost:19091/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-errCh:
		t.Errorf("Server error: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}
	if err := m.StartServer(context.Background(), 0, "/metrics"); err != nil {
		t.Errorf("disabled StartServer should return nil, got %v", err)
	}

	// These should not panic
	m.RecordActionStarted("a", "cook")
	m.RecordActionFinished("a", "cook", "failed", time.Second)
	m.RecordStage("a", "filter", false, time.Second)
	m.RecordDayEnd("a", 1, 1)
	m.RecordCall("decision", false, time.Second)
	m.ObservePublish("day_end", 2, nil)
	m.SetDegraded(false)
	m.ObserveRequest(context.Background(), "GET", "/", 200, 0, time.Second)
	m.AddInFlight(1)
}

func TestMetricsCardinalityUnderLoad(t *testing.T) {
	m := NewManager(DefaultConfig())

	actors := []string{"alice", "bob", "carol"}
	kinds := []string{"move", "talk", "cook", "wait"}
	outcomes := []string{"succeeded", "failed", "interrupted"}
	paths := []string{"/api/v1/actors", "/api/v1/actors/{actor}/plan", "/health", "/ready"}

	for i := 0; i < 100000; i++ {
		a, k := actors[i%len(actors)], kinds[i%len(kinds)]
		m.RecordActionStarted(a, k)
		m.RecordActionFinished(a, k, outcomes[i%len(outcomes)], time.Duration(i)*time.Microsecond)
		m.ObserveRequest(context.Background(), "GET", paths[i%len(paths)], 200, i%4096, time.Duration(i)*time.Microsecond)
	}

	code, body := scrape(t, m)
	if code != http.StatusOK {
		t.Errorf("Expected status 200 after heavy load, got %d", code)
	}
	if len(body) > 10*1024*1024 {
		t.Errorf("Metrics output too large: %d bytes", len(body))
	}
}

func BenchmarkRecordActionFinished(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 100 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordActionFinished("alice", "cook", "succeeded", d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordActionStarted("alice", "cook")
		m.RecordStage("alice", "maintain", true, time.Millisecond)
	}
}

func TestRegisterer_SharesEndpoint(t *testing.T) {
	m := NewManager(DefaultConfig())
	extra := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dayloop_grpc_test_total",
		Help: "Registered through the manager.",
	})
	if err := m.Registerer().Register(extra); err != nil {
		t.Fatalf("Register: %v", err)
	}
	extra.Inc()

	code, body := scrape(t, m)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, "dayloop_grpc_test_total") {
		t.Error("expected the extra collector on the metrics endpoint")
	}

	if err := NoOpManager().Registerer().Register(extra); err != nil {
		t.Errorf("a disabled manager should accept registrations: %v", err)
	}
}
