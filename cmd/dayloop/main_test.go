package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false
	cfg.EventBus.NodeID = "test-node"
	cfg.Server.HTTP.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestNewApp_ServesAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Actors = []string{"alice", "bob"}

	a, err := newApp(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.closeResources(context.Background()) })

	srv := httptest.NewServer(a.http.Handler())
	defer srv.Close()

	for _, path := range []string{"/health", "/ready", "/status", "/api/v1/actors/alice/plan"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	resp, err := http.Get(srv.URL + "/api/v1/actors")
	if err != nil {
		t.Fatalf("list actors: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode actors: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("total actors = %d, want 2", body.Total)
	}
}

func TestNewApp_WiresGRPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.GRPC.Enabled = true

	a, err := newApp(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.closeResources(context.Background()) })

	if a.grpc == nil {
		t.Fatal("grpc server not built when enabled")
	}
}

func TestNewApp_InvalidSimulation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad day start", mutate: func(c *config.Config) { c.Simulation.DayStart = "6am" }},
		{name: "bad start date", mutate: func(c *config.Config) { c.Simulation.StartDate = "tomorrow" }},
		{name: "missing routine", mutate: func(c *config.Config) { c.Simulation.RoutinePath = "/nonexistent/routine.yaml" }},
		{name: "duplicate actor", mutate: func(c *config.Config) { c.Simulation.Actors = []string{"alice", "alice"} }},
		{name: "unknown storage", mutate: func(c *config.Config) { c.Storage.Type = "tape" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := newApp(context.Background(), cfg, logger.Nop()); err == nil {
				t.Error("newApp() error = nil, want error")
			}
		})
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.AutoStart = true
	cfg.Simulation.TickInterval = 10 * time.Millisecond

	a, err := newApp(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "default", cfg: config.StorageConfig{}},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "dayloop.db")}}},
		{name: "badger", cfg: config.StorageConfig{Type: "badger", Badger: config.BadgerConfig{Path: filepath.Join(dir, "badger"), NumVersionsToKeep: 1}}},
		{name: "unknown", cfg: config.StorageConfig{Type: "tape"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}

func TestNodeID(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EventBus.NodeID = "node-7"
	if got := nodeID(cfg); got != "node-7" {
		t.Errorf("nodeID() = %q, want node-7", got)
	}

	cfg.EventBus.NodeID = ""
	if got := nodeID(cfg); got == "" {
		t.Error("nodeID() fell back to empty string")
	}
}

func TestOverrides(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]any
	}{
		{name: "none", args: nil, want: map[string]any{}},
		{name: "config path is not an override", args: []string{"-c", "dayloop.yaml"}, want: map[string]any{}},
		{
			name: "port and level",
			args: []string{"--port", "9000", "--log-level", "debug"},
			want: map[string]any{"server.port": 9000, "log.level": "debug"},
		},
		{
			name: "grpc port enables grpc",
			args: []string{"--grpc-port", "9191"},
			want: map[string]any{"server.grpc.port": 9191, "server.grpc.enabled": true},
		},
		{
			name: "storage and switches",
			args: []string{"--storage", "sqlite", "--auto-start", "--debug"},
			want: map[string]any{"storage.type": "sqlite", "simulation.auto_start": true, "app.debug": true},
		},
		{
			name: "explicit false still overrides",
			args: []string{"--auto-start=false"},
			want: map[string]any{"simulation.auto_start": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}
			got := overrides(cmd.Flags())
			if len(got) != len(tt.want) {
				t.Fatalf("overrides() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("override %s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "dayloop dev") {
		t.Errorf("output = %q", out.String())
	}
}
