package collab

import (
	"context"
	"time"

	"github.com/goclaw/dayloop/pkg/plan"
)

// RespondMinutes is the length of the task inserted to react to a
// perception that triggered a revision.
const RespondMinutes = 30

// RoutinePlanner generates and expands plans from a Routine. It implements
// planner.PlanGenerator, planner.ActivityExpander and planner.ActionExpander.
type RoutinePlanner struct {
	routine *Routine
	now     func() plan.Clock
}

// WallClock reads the time of day from the system clock.
func WallClock() plan.Clock {
	t := time.Now()
	return plan.Clock(t.Hour()*60 + t.Minute())
}

// NewRoutinePlanner creates a planner. now reports the actor's current
// time of day; nil uses WallClock.
func NewRoutinePlanner(routine *Routine, now func() plan.Clock) *RoutinePlanner {
	if routine == nil {
		routine = DefaultRoutine()
	}
	if now == nil {
		now = WallClock
	}
	return &RoutinePlanner{routine: routine, now: now}
}

// Routine returns the routine in use.
func (p *RoutinePlanner) Routine() *Routine { return p.routine }

// Generate continues the day from now. A non-empty summary becomes a short
// "Respond" task first; the remaining routine tasks follow, clipped so
// that nothing starts before now.
func (p *RoutinePlanner) Generate(ctx context.Context, perception, summary string, current *plan.Plan) ([]*plan.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := p.now()
	cursor := now
	tasks := make([]*plan.Task, 0, len(p.routine.Tasks)+1)

	if summary != "" {
		location := p.routine.Home
		if t := current.CurrentTask(now); t != nil && t.Location != "" {
			location = t.Location
		}
		end := now.Add(RespondMinutes)
		tasks = append(tasks, &plan.Task{
			Name:        "Respond",
			Description: summary,
			Start:       now.String(),
			End:         end.String(),
			Location:    location,
			Priority:    3,
			Activities:  make([]*plan.Activity, 0),
		})
		cursor = end
	}

	for _, rt := range p.routine.Tasks {
		start, _ := plan.ParseClock(rt.Start)
		end, _ := plan.ParseClock(rt.End)
		if end <= cursor {
			continue
		}
		if start < cursor {
			start = cursor
		}
		tasks = append(tasks, &plan.Task{
			Name:        rt.Name,
			Description: rt.Description,
			Start:       start.String(),
			End:         end.String(),
			Location:    rt.Location,
			Priority:    rt.Priority,
			Activities:  make([]*plan.Activity, 0),
		})
	}
	return tasks, nil
}

// DayPlan is the whole routine as a fresh plan, used when an actor has no
// plan for the day yet.
func (p *RoutinePlanner) DayPlan() *plan.Plan {
	out := &plan.Plan{Tasks: make([]*plan.Task, 0, len(p.routine.Tasks))}
	for _, rt := range p.routine.Tasks {
		out.Tasks = append(out.Tasks, &plan.Task{
			Name:        rt.Name,
			Description: rt.Description,
			Start:       rt.Start,
			End:         rt.End,
			Location:    rt.Location,
			Priority:    rt.Priority,
			Activities:  make([]*plan.Activity, 0),
		})
	}
	return out
}

// ExpandActivities lays the routine's activities for task end to end from
// the routine task's nominal start, then keeps the part inside the task's
// actual range. Tasks the routine does not know become one activity.
func (p *RoutinePlanner) ExpandActivities(ctx context.Context, task *plan.Task) ([]*plan.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	taskStart, ok1 := plan.ParseClock(task.Start)
	taskEnd, ok2 := plan.ParseClock(task.End)
	if !ok1 || !ok2 || taskEnd <= taskStart {
		return []*plan.Activity{}, nil
	}

	rt := p.routine.task(task.Name)
	if rt == nil || len(rt.Activities) == 0 {
		return []*plan.Activity{{
			Name:        task.Name,
			Description: task.Description,
			Start:       task.Start,
			End:         task.End,
			Location:    task.Location,
			Status:      plan.StatusPending,
		}}, nil
	}

	cursor, _ := plan.ParseClock(rt.Start)
	nominalEnd, _ := plan.ParseClock(rt.End)
	if taskEnd > nominalEnd {
		nominalEnd = taskEnd
	}

	out := make([]*plan.Activity, 0, len(rt.Activities))
	for _, ra := range rt.Activities {
		if cursor >= nominalEnd {
			break
		}
		end := nominalEnd
		if ra.Minutes > 0 {
			end = cursor.Add(ra.Minutes)
			if end > nominalEnd {
				end = nominalEnd
			}
		}
		start := cursor
		cursor = end

		if end <= taskStart || start >= taskEnd {
			continue
		}
		if start < taskStart {
			start = taskStart
		}
		if end > taskEnd {
			end = taskEnd
		}
		location := ra.Location
		if location == "" {
			location = task.Location
		}
		out = append(out, &plan.Activity{
			Name:        ra.Name,
			Description: ra.Description,
			Start:       start.String(),
			End:         end.String(),
			Location:    location,
			Status:      plan.StatusPending,
		})
	}
	return out, nil
}

// ExpandActions lays the routine's action templates for activity end to
// end and fills any remaining time with a Wait. Unknown activities get a
// Move to their location (when set) followed by a Wait.
func (p *RoutinePlanner) ExpandActions(ctx context.Context, activity *plan.Activity) ([]*plan.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start, ok1 := plan.ParseClock(activity.Start)
	end, ok2 := plan.ParseClock(activity.End)
	if !ok1 || !ok2 || end <= start {
		return []*plan.Action{}, nil
	}

	taskName := ""
	if t := activity.Task(); t != nil {
		taskName = t.Name
	}

	var templates []RoutineAction
	if ra := p.routine.activity(taskName, activity.Name); ra != nil {
		templates = ra.Actions
	} else if activity.Location != "" {
		templates = []RoutineAction{{
			Kind:    string(plan.KindMove),
			Minutes: 10,
			Params:  map[string]any{"destination": activity.Location},
		}}
	}

	out := make([]*plan.Action, 0, len(templates)+1)
	cursor := start
	for _, tmpl := range templates {
		if cursor >= end {
			break
		}
		kind, params, err := tmpl.decode()
		if err != nil {
			return nil, err
		}
		next := end
		if tmpl.Minutes > 0 && cursor.Add(tmpl.Minutes) < end {
			next = cursor.Add(tmpl.Minutes)
		}
		out = append(out, &plan.Action{
			Kind:        kind,
			Description: describe(tmpl.Description, kind, activity.Name),
			Start:       cursor.String(),
			End:         next.String(),
			Params:      params,
			Status:      plan.StatusPending,
		})
		cursor = next
	}

	if cursor < end {
		minutes := int(end - cursor)
		out = append(out, &plan.Action{
			Kind:        plan.KindWait,
			Description: describe("", plan.KindWait, activity.Name),
			Start:       cursor.String(),
			End:         end.String(),
			Params:      plan.WaitParams{Minutes: minutes},
			Status:      plan.StatusPending,
		})
	}
	return out, nil
}

func describe(description string, kind plan.ActionKind, activity string) string {
	if description != "" {
		return description
	}
	return string(kind) + " during " + activity
}
