// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/api/models"
	"github.com/goclaw/dayloop/pkg/api/response"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
)

// ActorHandler serves actor, plan and action endpoints.
type ActorHandler struct {
	registry  *actor.Registry
	inbox     *collab.Inbox
	logger    logger.Logger
	validator *validator.Validate
}

// NewActorHandler creates an actor handler. inbox may be nil, in which
// case perceptions cannot be pushed.
func NewActorHandler(registry *actor.Registry, inbox *collab.Inbox, log logger.Logger) *ActorHandler {
	return &ActorHandler{
		registry:  registry,
		inbox:     inbox,
		logger:    log,
		validator: validator.New(),
	}
}

func (h *ActorHandler) lookup(w http.ResponseWriter, r *http.Request) (*actor.Actor, bool) {
	a, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, h.logger, err, "actor lookup")
		return nil, false
	}
	return a, true
}

func (h *ActorHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, r, response.ErrCodeBadRequest, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		validationFailed(w, r, err)
		return false
	}
	return true
}

// ListActors handles GET /api/v1/actors
// @Summary List actors
// @Tags actors
// @Produce json
// @Success 200 {object} models.ActorListResponse
// @Router /api/v1/actors [get]
func (h *ActorHandler) ListActors(w http.ResponseWriter, r *http.Request) {
	all := h.registry.All()
	infos := make([]actor.Info, 0, len(all))
	for _, a := range all {
		infos = append(infos, a.Info())
	}
	response.JSON(w, http.StatusOK, models.ActorListResponse{Actors: infos, Total: len(infos)})
}

// GetActor handles GET /api/v1/actors/{name}
// @Summary Get an actor
// @Tags actors
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} actor.Info
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/actors/{name} [get]
func (h *ActorHandler) GetActor(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, a.Info())
}

// GetPlan handles GET /api/v1/actors/{name}/plan
// @Summary Get a plan
// @Description Today's plan, generated on first access, or the stored plan of ?date=YYYY-MM-DD
// @Tags plans
// @Produce json
// @Param name path string true "Actor name"
// @Param date query string false "Plan date"
// @Success 200 {object} models.PlanResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/plan [get]
func (h *ActorHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			badRequest(w, r, response.ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		p, err := a.PlanFor(ctx, date)
		if err != nil {
			writeError(w, r, h.logger, err, "plan load")
			return
		}
		response.JSON(w, http.StatusOK, models.PlanResponse{Actor: a.Name(), Date: raw, Plan: p})
		return
	}

	p, err := a.Plan(ctx)
	if err != nil {
		writeError(w, r, h.logger, err, "plan load")
		return
	}
	response.JSON(w, http.StatusOK, models.PlanResponse{Actor: a.Name(), Date: a.Info().Date, Plan: p})
}

// ListPlanDates handles GET /api/v1/actors/{name}/plans
// @Summary List stored plan dates
// @Tags plans
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} models.PlanDatesResponse
// @Router /api/v1/actors/{name}/plans [get]
func (h *ActorHandler) ListPlanDates(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	dates, err := a.PlanDates(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "plan listing")
		return
	}
	out := models.PlanDatesResponse{Actor: a.Name(), Dates: make([]string, 0, len(dates))}
	for _, d := range dates {
		out.Dates = append(out.Dates, d.Format(time.DateOnly))
	}
	response.JSON(w, http.StatusOK, out)
}

// RevisePlan handles POST /api/v1/actors/{name}/plan/revise
// @Summary Revise a plan
// @Description With a summary the rest of the day is rebuilt; otherwise the perception is queued and the actor decides
// @Tags plans
// @Accept json
// @Produce json
// @Param name path string true "Actor name"
// @Param request body models.ReviseRequest true "Revision input"
// @Success 200 {object} actor.RevisionResult
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/plan/revise [post]
func (h *ActorHandler) RevisePlan(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req models.ReviseRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		res *actor.RevisionResult
		err error
	)
	switch {
	case req.Summary != "":
		res, err = a.Revise(r.Context(), req.Perception, req.Summary)
	default:
		if req.Perception != "" && h.inbox != nil {
			h.inbox.Push(a.Name(), req.Perception)
		}
		res, err = a.ReviseFromCurrentState(r.Context())
	}
	if err != nil {
		writeError(w, r, h.logger, err, "plan revision")
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// ExpandPlan handles POST /api/v1/actors/{name}/plan/expand
// @Summary Expand a task or an activity of today's plan
// @Tags plans
// @Accept json
// @Produce json
// @Param name path string true "Actor name"
// @Param request body models.ExpandRequest true "What to expand"
// @Success 200 {object} plan.Task
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/plan/expand [post]
func (h *ActorHandler) ExpandPlan(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req models.ExpandRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Task != "" {
		task, err := a.ExpandActivities(r.Context(), req.Task)
		if err != nil {
			writeError(w, r, h.logger, err, "activity expansion")
			return
		}
		response.JSON(w, http.StatusOK, task)
		return
	}
	activity, err := a.ExpandActions(r.Context(), req.Activity)
	if err != nil {
		writeError(w, r, h.logger, err, "action expansion")
		return
	}
	response.JSON(w, http.StatusOK, activity)
}

// SubmitAction handles POST /api/v1/actors/{name}/actions
// @Summary Submit an action
// @Description Queues, preempts or starts an action. With wait=true the response carries the outcome.
// @Tags actions
// @Accept json
// @Produce json
// @Param name path string true "Actor name"
// @Param request body models.ActionRequest true "Action"
// @Success 200 {object} models.ActionResponse "Settled action"
// @Success 202 {object} models.ActionResponse "Accepted action"
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/actions [post]
func (h *ActorHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req models.ActionRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind, err := plan.ParseActionKind(req.Kind)
	if err != nil {
		badRequest(w, r, response.ErrCodeUnknownActionKind, err.Error())
		return
	}
	params, err := plan.DecodeParams(kind, req.Params)
	if err != nil {
		badRequest(w, r, response.ErrCodeInvalidParams, err.Error())
		return
	}

	t := a.SubmitAction(kind, params)
	if !req.Wait {
		response.JSON(w, http.StatusAccepted, ticketResponse(t))
		return
	}
	if err := t.Wait(r.Context()); err != nil && r.Context().Err() != nil {
		// the client went away or the request timed out; the action goes on
		response.JSON(w, http.StatusAccepted, ticketResponse(t))
		return
	}
	response.JSON(w, http.StatusOK, ticketResponse(t))
}

// ActionStats handles GET /api/v1/actors/{name}/actions/stats
// @Summary Scheduler counters
// @Tags actions
// @Produce json
// @Param name path string true "Actor name"
// @Success 200 {object} action.Stats
// @Router /api/v1/actors/{name}/actions/stats [get]
func (h *ActorHandler) ActionStats(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, a.Scheduler().Stats())
}

// PushPerception handles POST /api/v1/actors/{name}/perceptions
// @Summary Queue an observation
// @Description The actor perceives it on its next revision round
// @Tags actors
// @Accept json
// @Param name path string true "Actor name"
// @Param request body models.PerceptionRequest true "Observation"
// @Success 202
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/actors/{name}/perceptions [post]
func (h *ActorHandler) PushPerception(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.inbox == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "perceptions are not accepted", requestID(r))
		return
	}
	var req models.PerceptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.inbox.Push(a.Name(), req.Text)
	response.JSON(w, http.StatusAccepted, map[string]int{"pending": h.inbox.Pending(a.Name())})
}

func ticketResponse(t *action.Ticket) models.ActionResponse {
	out := models.ActionResponse{
		TicketID: t.ID,
		Kind:     string(t.Kind),
		Outcome:  t.Outcome(),
	}
	if err := t.Err(); err != nil {
		out.Error = err.Error()
	}
	if d := t.Duration(); d > 0 {
		out.DurationMS = d.Milliseconds()
	}
	return out
}
