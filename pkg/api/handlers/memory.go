package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/api/models"
	"github.com/goclaw/dayloop/pkg/api/response"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/memory"
)

const (
	defaultRecallLimit = 10
	maxRecallLimit     = 100
)

// MemoryHandler serves an actor's short-term log, long-term store and
// backups.
type MemoryHandler struct {
	registry  *actor.Registry
	logger    logger.Logger
	validator *validator.Validate
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(registry *actor.Registry, log logger.Logger) *MemoryHandler {
	return &MemoryHandler{
		registry:  registry,
		logger:    log,
		validator: validator.New(),
	}
}

func (h *MemoryHandler) lookup(w http.ResponseWriter, r *http.Request) (*actor.Actor, bool) {
	a, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, h.logger, err, "actor lookup")
		return nil, false
	}
	return a, true
}

// GetShortTerm handles GET /api/v1/actors/{name}/memory/short-term
// @Summary Read the short-term log
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Param kind query string false "Only entries of this kind"
// @Success 200 {object} models.ShortTermResponse
// @Router /api/v1/actors/{name}/memory/short-term [get]
func (h *MemoryHandler) GetShortTerm(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	entries := a.Memory().ShortTerm().All(r.Context())
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if string(e.Kind) == kind {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	response.JSON(w, http.StatusOK, models.ShortTermResponse{Actor: a.Name(), Entries: entries, Total: len(entries)})
}

// AppendShortTerm handles POST /api/v1/actors/{name}/memory/short-term
// @Summary Append to the short-term log
// @Tags memory
// @Accept json
// @Produce json
// @Param name path string true "Actor name"
// @Param entry body models.ShortTermAppendRequest true "Entry"
// @Success 201 {object} memory.ShortTermEntry
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/memory/short-term [post]
func (h *MemoryHandler) AppendShortTerm(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.ShortTermAppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, response.ErrCodeBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationFailed(w, r, err)
		return
	}
	if len(req.Details) > 0 && !json.Valid(req.Details) {
		badRequest(w, r, response.ErrCodeValidationFailed, "details must be valid JSON")
		return
	}

	e := memory.ShortTermEntry{
		Kind:     memory.EntryKind(req.Kind),
		Content:  req.Content,
		Details:  req.Details,
		Location: req.Location,
		Emotions: req.Emotions,
	}
	if req.Timestamp != nil {
		e.Timestamp = *req.Timestamp
	}
	stored, err := a.Memory().ShortTerm().AppendEntry(r.Context(), e)
	if err != nil {
		writeError(w, r, h.logger, err, "short-term append")
		return
	}
	response.JSON(w, http.StatusCreated, stored)
}

// GetLongTerm handles GET /api/v1/actors/{name}/memory/long-term
// @Summary Read the long-term store
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} models.LongTermResponse
// @Router /api/v1/actors/{name}/memory/long-term [get]
func (h *MemoryHandler) GetLongTerm(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	entries, err := a.Memory().LongTerm(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "long-term load")
		return
	}
	response.JSON(w, http.StatusOK, models.LongTermResponse{Actor: a.Name(), Entries: entries, Total: len(entries)})
}

// SearchLongTerm handles GET /api/v1/actors/{name}/memory/long-term/search
// @Summary Search the long-term store
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Param q query string true "Query text"
// @Param limit query int false "Maximum hits"
// @Success 200 {object} models.RecallResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/memory/long-term/search [get]
func (h *MemoryHandler) SearchLongTerm(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		badRequest(w, r, response.ErrCodeValidationFailed, "Query parameter q is required")
		return
	}
	limit := defaultRecallLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			badRequest(w, r, response.ErrCodeValidationFailed, "limit must be a positive integer")
			return
		}
		limit = min(v, maxRecallLimit)
	}

	hits, err := a.Memory().Recall(r.Context(), query, limit)
	if err != nil {
		writeError(w, r, h.logger, err, "long-term search")
		return
	}
	response.JSON(w, http.StatusOK, models.RecallResponse{Actor: a.Name(), Query: query, Hits: hits})
}

// ProcessDayEnd handles POST /api/v1/actors/{name}/memory/day-end
// @Summary Run the day-end memory pipeline
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} memory.RunReport
// @Router /api/v1/actors/{name}/memory/day-end [post]
func (h *MemoryHandler) ProcessDayEnd(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	report, err := a.ProcessDayEndMemory(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "day-end processing")
		return
	}
	response.JSON(w, http.StatusOK, report)
}

// CompactShortTerm handles POST /api/v1/actors/{name}/memory/compact
// @Summary Compact the short-term log
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Param keep query int false "Recent entries to leave untouched"
// @Success 200 {object} memory.CompactionReport
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/memory/compact [post]
func (h *MemoryHandler) CompactShortTerm(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	keep := 0
	if raw := r.URL.Query().Get("keep"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(w, r, response.ErrCodeValidationFailed, "keep must be a non-negative integer")
			return
		}
		keep = v
	}
	report, err := a.CompactShortTerm(r.Context(), keep)
	if err != nil {
		writeError(w, r, h.logger, err, "compaction")
		return
	}
	response.JSON(w, http.StatusOK, report)
}

// GetStatus handles GET /api/v1/actors/{name}/memory/status
// @Summary Memory counters and the last day-end run
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} memory.Status
// @Router /api/v1/actors/{name}/memory/status [get]
func (h *MemoryHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := a.Memory().Status(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "memory status")
		return
	}
	response.JSON(w, http.StatusOK, st)
}

// ListBackups handles GET /api/v1/actors/{name}/memory/backups
// @Summary List memory snapshots
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} models.BackupListResponse
// @Router /api/v1/actors/{name}/memory/backups [get]
func (h *MemoryHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	backups, err := a.Memory().ListBackups(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "backup listing")
		return
	}
	if backups == nil {
		backups = []memory.BackupInfo{}
	}
	response.JSON(w, http.StatusOK, models.BackupListResponse{Actor: a.Name(), Backups: backups})
}

// CreateBackup handles POST /api/v1/actors/{name}/memory/backups
// @Summary Snapshot both memory documents
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Success 201 {object} models.BackupResponse
// @Router /api/v1/actors/{name}/memory/backups [post]
func (h *MemoryHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id, err := a.Memory().Backup(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "backup")
		return
	}
	response.JSON(w, http.StatusCreated, models.BackupResponse{Actor: a.Name(), ID: id})
}

// RestoreBackup handles POST /api/v1/actors/{name}/memory/backups/{id}/restore
// @Summary Restore a memory snapshot
// @Tags memory
// @Produce json
// @Param name path string true "Actor name"
// @Param id path string true "Backup ID"
// @Success 200 {object} memory.Status
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/memory/backups/{id}/restore [post]
func (h *MemoryHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := a.Memory().Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err, "restore")
		return
	}
	st, err := a.Memory().Status(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "memory status")
		return
	}
	response.JSON(w, http.StatusOK, st)
}
