package handlers

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/api/response"
	"github.com/goclaw/dayloop/pkg/version"
)

// StatusResponse is the body of /status.
type StatusResponse struct {
	Status    string        `json:"status"`
	Version   version.Build `json:"version"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    string        `json:"uptime"`
	Actors    []actor.Info  `json:"actors"`
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	registry  *actor.Registry
	startedAt time.Time
	draining  atomic.Bool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(registry *actor.Registry) *HealthHandler {
	return &HealthHandler{
		registry:  registry,
		startedAt: time.Now().UTC(),
	}
}

// SetDraining marks the process as shutting down so /ready fails.
func (h *HealthHandler) SetDraining(v bool) {
	h.draining.Store(v)
}

// Health handles the /health endpoint (liveness probe).
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 503 {object} map[string]bool
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready() {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
	} else {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
	}
}

// Status handles the /status endpoint (detailed status).
// @Summary Process and actor status
// @Tags health
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := StatusResponse{
		Status:    "running",
		Version:   version.Get(),
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Actors:    []actor.Info{},
	}
	if h.draining.Load() {
		out.Status = "draining"
	}
	for _, a := range h.registry.All() {
		out.Actors = append(out.Actors, a.Info())
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *HealthHandler) ready() bool {
	return !h.draining.Load() && len(h.registry.Names()) > 0
}
