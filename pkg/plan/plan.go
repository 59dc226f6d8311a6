// Package plan defines the three-level activity plan (Task → Activity →
// Action) and the forgiving clock arithmetic used to reason about it.
package plan

import (
	"encoding/json"
)

// Status is the lifecycle state of an activity or action.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Plan is an ordered list of tasks for one actor and one day.
type Plan struct {
	Tasks []*Task `json:"high_level_tasks"`
}

// Task is the coarsest plan level.
type Task struct {
	Name        string      `json:"task_name"`
	Description string      `json:"description"`
	Start       string      `json:"start_time"`
	End         string      `json:"end_time"`
	Location    string      `json:"location,omitempty"`
	Priority    int         `json:"priority,omitempty"`
	Activities  []*Activity `json:"detailed_activities"`
}

// Activity is a block of time inside a task.
type Activity struct {
	Name        string    `json:"activity_name"`
	Description string    `json:"description"`
	Start       string    `json:"start_time"`
	End         string    `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Status      Status    `json:"status"`
	Actions     []*Action `json:"specific_actions"`

	task *Task
}

// Action is one concrete step handed to the action scheduler.
type Action struct {
	Kind        ActionKind
	Description string
	Start       string
	End         string
	Params      Params
	Status      Status

	// raw holds parameters that did not decode, so a round trip keeps them.
	raw      json.RawMessage
	activity *Activity
}

// Duration returns the task length in minutes (0 when unparsable).
func (t *Task) Duration() int { return Duration(t.Start, t.End) }

// Duration returns the activity length in minutes (0 when unparsable).
func (a *Activity) Duration() int { return Duration(a.Start, a.End) }

// Duration returns the action length in minutes (0 when unparsable).
func (a *Action) Duration() int { return Duration(a.Start, a.End) }

// Task returns the parent task, or nil for a detached activity.
func (a *Activity) Task() *Task { return a.task }

// Activity returns the parent activity, or nil for a detached action.
func (a *Action) Activity() *Activity { return a.activity }

// SetActivities replaces the task's activities and points them back at t.
func (t *Task) SetActivities(activities []*Activity) {
	t.Activities = activities
	for _, a := range activities {
		a.task = t
	}
}

// SetActions replaces the activity's actions and points them back at a.
func (a *Activity) SetActions(actions []*Action) {
	a.Actions = actions
	for _, act := range actions {
		act.activity = a
	}
}

// Link restores parent back-references, e.g. after JSON decoding.
func (p *Plan) Link() {
	if p == nil {
		return
	}
	for _, t := range p.Tasks {
		t.SetActivities(t.Activities)
		for _, a := range t.Activities {
			a.SetActions(a.Actions)
		}
	}
}

// Clone returns a deep copy with back-references pointing into the copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{Tasks: make([]*Task, 0, len(p.Tasks))}
	for _, t := range p.Tasks {
		out.Tasks = append(out.Tasks, t.Clone())
	}
	return out
}

// Clone returns a deep copy of the task and its subtree.
func (t *Task) Clone() *Task {
	c := *t
	c.Activities = nil
	activities := make([]*Activity, 0, len(t.Activities))
	for _, a := range t.Activities {
		activities = append(activities, a.Clone())
	}
	c.SetActivities(activities)
	return &c
}

// Clone returns a deep copy of the activity and its actions, detached from
// its parent.
func (a *Activity) Clone() *Activity {
	c := *a
	c.task = nil
	c.Actions = nil
	actions := make([]*Action, 0, len(a.Actions))
	for _, act := range a.Actions {
		actions = append(actions, act.Clone())
	}
	c.SetActions(actions)
	return &c
}

// Clone returns a copy of the action detached from its parent.
func (a *Action) Clone() *Action {
	c := *a
	c.activity = nil
	if a.raw != nil {
		c.raw = append(json.RawMessage(nil), a.raw...)
	}
	if pm, ok := a.Params.(PrepareMenuParams); ok {
		pm.Items = append([]string(nil), pm.Items...)
		c.Params = pm
	}
	return &c
}

// StartClock returns the earliest parseable start of the plan, looking at
// tasks first and then their activities.
func (p *Plan) StartClock() (Clock, bool) {
	if p == nil {
		return 0, false
	}
	for _, t := range p.Tasks {
		if c, ok := ParseClock(t.Start); ok {
			return c, true
		}
		for _, a := range t.Activities {
			if c, ok := ParseClock(a.Start); ok {
				return c, true
			}
		}
	}
	return 0, false
}

// CountActivities returns the number of activities across all tasks.
func (p *Plan) CountActivities() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, t := range p.Tasks {
		n += len(t.Activities)
	}
	return n
}

type actionJSON struct {
	Kind        ActionKind      `json:"action_type"`
	Description string          `json:"description"`
	Start       string          `json:"start_time"`
	End         string          `json:"end_time"`
	Params      json.RawMessage `json:"parameters,omitempty"`
	Status      Status          `json:"status,omitempty"`
}

// MarshalJSON writes the action with its typed parameters.
func (a *Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{
		Kind:        a.Kind,
		Description: a.Description,
		Start:       a.Start,
		End:         a.End,
		Status:      a.Status,
	}
	switch {
	case a.Params != nil:
		raw, err := json.Marshal(a.Params)
		if err != nil {
			return nil, err
		}
		out.Params = raw
	case a.raw != nil:
		out.Params = a.raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the kind first and then the matching params struct.
// Unknown kinds or invalid params are kept raw rather than rejected; the
// scheduler reports them when the action is submitted.
func (a *Action) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	kind, err := ParseActionKind(string(in.Kind))
	if err != nil {
		kind = in.Kind
	}

	*a = Action{
		Kind:        kind,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
		Status:      in.Status,
	}
	if a.Status == "" {
		a.Status = StatusPending
	}

	if params, err := DecodeParams(kind, in.Params); err == nil {
		a.Params = params
	} else if len(in.Params) > 0 {
		a.raw = append(json.RawMessage(nil), in.Params...)
	}
	return nil
}
