package planner

import "github.com/goclaw/dayloop/pkg/plan"

// ExtractPreserved returns the part of current that has already been lived
// through at now.
//
// A minutes cursor starts at planStart and advances by each activity's
// duration, in task order. An activity that ends at or before now is copied
// whole with its actions. The activity straddling now is copied with its
// duration cut to now-cursor and no actions, and the walk stops there; the
// first activity lying entirely in the future also stops the walk. Tasks
// that keep no activity are dropped. current is never modified.
func ExtractPreserved(current *plan.Plan, now, planStart plan.Clock) *plan.Plan {
	out := &plan.Plan{Tasks: make([]*plan.Task, 0)}
	if current == nil {
		return out
	}

	cursor := int(planStart)
	target := int(now)

	for _, task := range current.Tasks {
		kept := make([]*plan.Activity, 0, len(task.Activities))
		stop := false

		for _, activity := range task.Activities {
			d := activity.Duration()
			switch {
			case cursor+d <= target:
				kept = append(kept, activity.Clone())
				cursor += d
			case cursor < target:
				kept = append(kept, truncate(activity, cursor, target-cursor))
				stop = true
			default:
				stop = true
			}
			if stop {
				break
			}
		}

		if len(kept) > 0 {
			t := task.Clone()
			t.SetActivities(kept)
			out.Tasks = append(out.Tasks, t)
		}
		if stop {
			break
		}
	}

	return out
}

// truncate copies a straddling activity with the given elapsed length and
// no actions.
func truncate(activity *plan.Activity, cursor, elapsed int) *plan.Activity {
	c := activity.Clone()
	start, ok := plan.ParseClock(activity.Start)
	if !ok {
		start = plan.Clock(cursor)
	}
	c.Start = start.String()
	c.End = start.Add(elapsed).String()
	c.SetActions(make([]*plan.Action, 0))
	return c
}

// Merge concatenates preserved tasks and generated tasks, each list in its
// original order. Generated tasks are attached as-is.
func Merge(preserved *plan.Plan, generated []*plan.Task) *plan.Plan {
	out := &plan.Plan{}
	if preserved != nil {
		out.Tasks = make([]*plan.Task, 0, len(preserved.Tasks)+len(generated))
		out.Tasks = append(out.Tasks, preserved.Tasks...)
	} else {
		out.Tasks = make([]*plan.Task, 0, len(generated))
	}
	for _, t := range generated {
		if t == nil {
			continue
		}
		if t.Activities == nil {
			t.SetActivities(make([]*plan.Activity, 0))
		}
		out.Tasks = append(out.Tasks, t)
	}
	return out
}
