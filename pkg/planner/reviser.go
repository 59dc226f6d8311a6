// Package planner keeps or rebuilds an actor's plan when a perception
// invalidates it, and expands plan nodes lazily through collaborators.
package planner

import (
	"context"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dayloop.planner"

// DefaultDayStart is used as the plan start when a plan carries no
// parseable start time.
var DefaultDayStart = plan.MustParseClock("06:00")

// Reviser rebuilds plans while preserving what has already happened.
type Reviser struct {
	actor      string
	generator  PlanGenerator
	activities ActivityExpander
	actions    ActionExpander
	dayStart   plan.Clock
	logger     logger.Logger
	metrics    MetricsRecorder
	tracer     trace.Tracer
}

// Option is a functional option for configuring the Reviser.
type Option func(*Reviser)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Reviser) {
		if log != nil {
			r.logger = log
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(r *Reviser) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithExpanders sets the lazy expansion collaborators.
func WithExpanders(activities ActivityExpander, actions ActionExpander) Option {
	return func(r *Reviser) {
		r.activities = activities
		r.actions = actions
	}
}

// WithDayStart sets the fallback plan start.
func WithDayStart(c plan.Clock) Option {
	return func(r *Reviser) {
		r.dayStart = c
	}
}

// NewReviser creates a reviser for one actor.
func NewReviser(actor string, generator PlanGenerator, opts ...Option) *Reviser {
	r := &Reviser{
		actor:     actor,
		generator: generator,
		dayStart:  DefaultDayStart,
		logger:    logger.Global(),
		metrics:   nopMetrics{},
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.ForActor(r.logger, actor, "planner")
	return r
}

// ReviseFromCurrentState applies decision to current. A keep decision
// returns current itself; a revise decision returns a new plan built by
// Revise from the plan's own start time.
func (r *Reviser) ReviseFromCurrentState(ctx context.Context, current *plan.Plan, now plan.Clock, perception string, decision *Decision) (*plan.Plan, error) {
	if current == nil {
		return nil, &InputInvalidError{Field: "plan", Reason: "is nil"}
	}
	if decision == nil {
		return nil, &InputInvalidError{Field: "decision", Reason: "is nil"}
	}

	switch decision.Kind {
	case DecisionKeep:
		r.metrics.RecordRevision(r.actor, OutcomeKept)
		r.logger.DebugContext(ctx, "plan kept", "now", now.String())
		return current, nil
	case DecisionRevise:
		start, ok := current.StartClock()
		if !ok {
			start = r.dayStart
		}
		return r.Revise(ctx, current, now, start, perception, decision.Summary)
	default:
		return nil, &InputInvalidError{Field: "decision.kind", Reason: "unknown kind " + string(decision.Kind)}
	}
}

// Revise returns the preserved plan followed by freshly generated tasks.
// A generator failure leaves the plan unchanged: current is returned and
// the failure is only logged.
func (r *Reviser) Revise(ctx context.Context, current *plan.Plan, now, planStart plan.Clock, perception, summary string) (*plan.Plan, error) {
	if current == nil {
		return nil, &InputInvalidError{Field: "plan", Reason: "is nil"}
	}

	ctx, span := r.tracer.Start(ctx, "plan.revise", trace.WithAttributes(
		attribute.String("actor", r.actor),
		attribute.String("now", now.String()),
		attribute.String("plan_start", planStart.String()),
	))
	defer span.End()

	preserved := ExtractPreserved(current, now, planStart)

	started := time.Now()
	generated, err := r.generate(ctx, perception, summary, current)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan generator failed")
		r.metrics.RecordRevision(r.actor, OutcomeDegraded)
		r.logger.WarnContext(ctx, "plan generation failed, keeping current plan",
			"error", err,
			"duration", time.Since(started),
		)
		return current, nil
	}

	merged := Merge(preserved, generated)
	span.SetAttributes(
		attribute.Int("preserved_tasks", len(preserved.Tasks)),
		attribute.Int("generated_tasks", len(generated)),
	)
	r.metrics.RecordRevision(r.actor, OutcomeRevised)
	r.logger.InfoContext(ctx, "plan revised",
		"preserved_tasks", len(preserved.Tasks),
		"preserved_activities", preserved.CountActivities(),
		"generated_tasks", len(generated),
		"summary", summary,
	)
	return merged, nil
}

func (r *Reviser) generate(ctx context.Context, perception, summary string, current *plan.Plan) (tasks []*plan.Task, err error) {
	if r.generator == nil {
		return nil, &CollaboratorError{Collaborator: "plan_generator", Cause: errNotConfigured}
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &CollaboratorError{Collaborator: "plan_generator", Cause: panicError(rec)}
		}
	}()

	tasks, err = r.generator.Generate(ctx, perception, summary, current)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "plan_generator", Cause: err}
	}
	// The generator may hand back tasks it shares, so reset copies.
	out := make([]*plan.Task, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			out = append(out, nil)
			continue
		}
		c := t.Clone()
		c.SetActivities(make([]*plan.Activity, 0))
		out = append(out, c)
	}
	return out, nil
}

// ExpandActivities asks the activity expander for task's activities and
// stores them on task with back-references.
func (r *Reviser) ExpandActivities(ctx context.Context, task *plan.Task) ([]*plan.Activity, error) {
	if task == nil {
		return nil, &InputInvalidError{Field: "task", Reason: "is nil"}
	}
	if r.activities == nil {
		return nil, &CollaboratorError{Collaborator: "activity_expander", Cause: errNotConfigured}
	}

	ctx, span := r.tracer.Start(ctx, "plan.expand_activities", trace.WithAttributes(
		attribute.String("actor", r.actor),
		attribute.String("task", task.Name),
	))
	defer span.End()

	activities, err := r.activities.ExpandActivities(ctx, task)
	if err != nil {
		span.RecordError(err)
		r.metrics.RecordExpansion(r.actor, "activities", false)
		return nil, &CollaboratorError{Collaborator: "activity_expander", Cause: err}
	}

	activities = compactActivities(activities)
	for _, a := range activities {
		if a.Status == "" {
			a.Status = plan.StatusPending
		}
	}
	task.SetActivities(activities)
	r.metrics.RecordExpansion(r.actor, "activities", true)
	r.logger.DebugContext(ctx, "activities expanded", "task", task.Name, "count", len(activities))
	return activities, nil
}

// ExpandActions asks the action expander for activity's actions and stores
// them on activity with back-references.
func (r *Reviser) ExpandActions(ctx context.Context, activity *plan.Activity) ([]*plan.Action, error) {
	if activity == nil {
		return nil, &InputInvalidError{Field: "activity", Reason: "is nil"}
	}
	if r.actions == nil {
		return nil, &CollaboratorError{Collaborator: "action_expander", Cause: errNotConfigured}
	}

	ctx, span := r.tracer.Start(ctx, "plan.expand_actions", trace.WithAttributes(
		attribute.String("actor", r.actor),
		attribute.String("activity", activity.Name),
	))
	defer span.End()

	actions, err := r.actions.ExpandActions(ctx, activity)
	if err != nil {
		span.RecordError(err)
		r.metrics.RecordExpansion(r.actor, "actions", false)
		return nil, &CollaboratorError{Collaborator: "action_expander", Cause: err}
	}

	out := make([]*plan.Action, 0, len(actions))
	for _, a := range actions {
		if a == nil {
			continue
		}
		if a.Status == "" {
			a.Status = plan.StatusPending
		}
		out = append(out, a)
	}
	activity.SetActions(out)
	r.metrics.RecordExpansion(r.actor, "actions", true)
	r.logger.DebugContext(ctx, "actions expanded", "activity", activity.Name, "count", len(out))
	return out, nil
}

func compactActivities(in []*plan.Activity) []*plan.Activity {
	out := make([]*plan.Activity, 0, len(in))
	for _, a := range in {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
