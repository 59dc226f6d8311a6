package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/api/handlers"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/sim"
	memstore "github.com/goclaw/dayloop/pkg/storage/memory"
	"github.com/gorilla/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			HTTP: config.HTTPConfig{
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Second,
				IdleTimeout:  10 * time.Second,
			},
			CORS: config.CORSConfig{
				Enabled: false,
			},
		},
	}
}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "discard",
	})
}

// createTestHandlers wires every handler around one actor, alice.
func createTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := sim.NewClock(date, plan.MustParseClock("06:00"), plan.MustParseClock("23:00"), 5)
	clock.Set(plan.MustParseClock("09:00"))
	world := sim.NewWorld(clock, sim.WithWorldLogger(logger.Nop()))
	store := memstore.NewMemoryStorage()
	inbox := collab.NewInbox()

	a, err := actor.New(context.Background(), "alice", actor.Deps{
		Store:  store,
		World:  world,
		Collab: collab.Heuristic(collab.DefaultRoutine(), clock.Now, inbox),
		Logger: logger.Nop(),
	}, actor.Config{DayStart: plan.MustParseClock("06:00")})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	registry := actor.NewRegistry()
	if err := registry.Add(a); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		registry.Close(ctx)
		store.Close()
	})

	log := testLogger()
	return &Handlers{
		Actors: handlers.NewActorHandler(registry, inbox, log),
		Memory: handlers.NewMemoryHandler(registry, log),
		Health: handlers.NewHealthHandler(registry),
		Events: handlers.NewEventStream(log, handlers.EventStreamConfig{}),
	}
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), &Handlers{})
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/actors/alice/plan", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status without handlers = %v, want %v", w.Code, http.StatusNotFound)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id on every response")
	}
}

func TestRegisterRoutes_HealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "health check", path: "/health", wantStatus: http.StatusOK},
		{name: "ready check", path: "/ready", wantStatus: http.StatusOK},
		{name: "status check", path: "/status", wantStatus: http.StatusOK},
	}

	router := NewRouter(testConfig(), testLogger(), createTestHandlers(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_ActorEndpoints(t *testing.T) {
	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{http.MethodGet, "/api/v1/actors", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice/plan", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice/plans", "", http.StatusOK},
		{http.MethodPost, "/api/v1/actors/alice/plan/expand", `{"task":"Lunch"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice/actions/stats", "", http.StatusOK},
		{http.MethodPost, "/api/v1/actors/alice/perceptions", `{"text":"rain"}`, http.StatusAccepted},
		{http.MethodGet, "/api/v1/actors/alice/memory/short-term", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice/memory/long-term", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice/memory/status", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/alice/memory/backups", "", http.StatusOK},
		{http.MethodGet, "/api/v1/actors/bob/memory/status", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/actors/alice/plan", "", http.StatusMethodNotAllowed},
	}

	router := NewRouter(testConfig(), testLogger(), createTestHandlers(t))

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v: %s", w.Code, tt.wantStatus, w.Body)
			}
		})
	}
}

func TestRouter_WebSocketBypassesWrappers(t *testing.T) {
	h := createTestHandlers(t)
	server := httptest.NewServer(NewRouter(testConfig(), testLogger(), h))
	defer server.Close()
	defer h.Events.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/events?actor=alice", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want 101", resp.StatusCode)
	}
}

func TestRouter_SwaggerDoc(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), &Handlers{})

	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want 200", w.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc is not JSON: %v", err)
	}
	if _, ok := doc.Paths["/api/v1/actors/{name}/plan"]; !ok {
		t.Error("expected the plan route in the document")
	}
}
