package plan

// CurrentTask returns the task whose [start, end) range contains now.
func (p *Plan) CurrentTask(now Clock) *Task {
	if p == nil {
		return nil
	}
	for _, t := range p.Tasks {
		if contains(t.Start, t.End, now) {
			return t
		}
	}
	return nil
}

// CurrentActivity returns the activity covering now, searching every task
// so that activities scheduled outside their task's nominal range are found.
func (p *Plan) CurrentActivity(now Clock) *Activity {
	if p == nil {
		return nil
	}
	for _, t := range p.Tasks {
		for _, a := range t.Activities {
			if contains(a.Start, a.End, now) {
				return a
			}
		}
	}
	return nil
}

// CurrentAction returns the action covering now.
func (a *Activity) CurrentAction(now Clock) *Action {
	if a == nil {
		return nil
	}
	for _, act := range a.Actions {
		if contains(act.Start, act.End, now) {
			return act
		}
	}
	return nil
}

// NextPending returns the first action that has not been started yet.
func (a *Activity) NextPending() *Action {
	if a == nil {
		return nil
	}
	for _, act := range a.Actions {
		if act.Status == "" || act.Status == StatusPending {
			return act
		}
	}
	return nil
}
