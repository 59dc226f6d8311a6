package planner

import (
	"context"

	"github.com/goclaw/dayloop/pkg/plan"
)

// DecisionKind tells the reviser whether the current plan still holds.
type DecisionKind string

const (
	DecisionKeep   DecisionKind = "keep"
	DecisionRevise DecisionKind = "revise"
)

// Decision is the output of a DecisionProvider.
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	Summary string       `json:"summary,omitempty"`
}

// PerceptionProvider interprets what the actor currently sees.
type PerceptionProvider interface {
	Perceive(ctx context.Context, actor string, now plan.Clock) (string, error)
}

// DecisionProvider decides whether a perception invalidates the plan.
type DecisionProvider interface {
	Decide(ctx context.Context, perception string, current *plan.Plan, now plan.Clock) (*Decision, error)
}

// PlanGenerator produces the continuation tasks of a revised plan.
// Returned tasks are expected to carry no activities.
type PlanGenerator interface {
	Generate(ctx context.Context, perception, summary string, current *plan.Plan) ([]*plan.Task, error)
}

// ActivityExpander fills in a task's activities on demand.
type ActivityExpander interface {
	ExpandActivities(ctx context.Context, task *plan.Task) ([]*plan.Activity, error)
}

// ActionExpander fills in an activity's concrete actions on demand.
type ActionExpander interface {
	ExpandActions(ctx context.Context, activity *plan.Activity) ([]*plan.Action, error)
}

// MetricsRecorder receives reviser outcomes.
type MetricsRecorder interface {
	RecordRevision(actor string, outcome string)
	RecordExpansion(actor string, level string, success bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordRevision(string, string)        {}
func (nopMetrics) RecordExpansion(string, string, bool) {}

// Revision outcomes reported to MetricsRecorder.
const (
	OutcomeKept     = "kept"
	OutcomeRevised  = "revised"
	OutcomeDegraded = "degraded"
)
