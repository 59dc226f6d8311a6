// Package actor assembles one simulated character out of its plan, its
// action scheduler and its memory, and drives a population of them
// through simulated days.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
	"github.com/goclaw/dayloop/pkg/sim"
	"github.com/goclaw/dayloop/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dayloop.actor"

// EventPublisher sends actor events to watchers.
type EventPublisher interface {
	Publish(ctx context.Context, actor, eventType string, payload any) (eventbus.Envelope, error)
}

// MetricsRecorder is everything an actor's components report.
type MetricsRecorder interface {
	action.MetricsRecorder
	memory.MetricsRecorder
	planner.MetricsRecorder
}

// Config tunes an actor.
type Config struct {
	DayStart         plan.Clock
	RetentionRate    float64
	ShortTermKeep    int
	BackupOnDayEnd   bool
	DefaultTimestamp time.Time
}

// Deps are the shared services an actor is built from.
type Deps struct {
	Store   storage.DocumentStore
	World   *sim.World
	Collab  collab.Set
	Events  EventPublisher
	Logger  logger.Logger
	Metrics MetricsRecorder
}

// RevisionResult describes one perceive, decide and revise round.
type RevisionResult struct {
	Perception string            `json:"perception"`
	Decision   *planner.Decision `json:"decision"`
	Revised    bool              `json:"revised"`
	Plan       *plan.Plan        `json:"plan"`
}

// Info is a snapshot of an actor for listings.
type Info struct {
	Name      string       `json:"name"`
	Location  string       `json:"location"`
	Date      string       `json:"date"`
	Now       string       `json:"now"`
	Scheduler action.Stats `json:"scheduler"`
}

// Actor is one simulated character.
type Actor struct {
	name      string
	world     *sim.World
	clock     *sim.Clock
	collab    collab.Set
	plans     *planner.PlanStore
	reviser   *planner.Reviser
	scheduler *action.Scheduler
	memory    *memory.Manager
	events    EventPublisher
	logger    logger.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	plan     *plan.Plan
	planDate time.Time
	current  *plan.Action
}

// New builds an actor and loads its short-term log. ctx bounds the
// actor's lifetime: cancelling it interrupts whatever it is doing.
func New(ctx context.Context, name string, deps Deps, cfg Config) (*Actor, error) {
	if name == "" {
		return nil, errors.New("actor: name is required")
	}
	if deps.Store == nil || deps.World == nil {
		return nil, errors.New("actor: store and world are required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Global()
	}
	clock := deps.World.Clock()

	a := &Actor{
		name:   name,
		world:  deps.World,
		clock:  clock,
		collab: deps.Collab,
		plans:  planner.NewPlanStore(deps.Store),
		events: deps.Events,
		logger: logger.ForActor(log, name, "actor"),
		tracer: otel.Tracer(tracerName),
	}

	plannerOpts := []planner.Option{
		planner.WithLogger(log),
		planner.WithExpanders(deps.Collab.Activities, deps.Collab.Actions),
		planner.WithDayStart(cfg.DayStart),
	}
	var schedOpts []action.Option
	memOpts := []memory.Option{
		memory.WithLogger(log),
		memory.WithClock(clock.Time),
		memory.WithRetentionRate(cfg.RetentionRate),
		memory.WithShortTermKeep(cfg.ShortTermKeep),
		memory.WithBackupOnDayEnd(cfg.BackupOnDayEnd),
	}
	if !cfg.DefaultTimestamp.IsZero() {
		memOpts = append(memOpts, memory.WithDefaultTimestamp(cfg.DefaultTimestamp))
	}
	if deps.Metrics != nil {
		plannerOpts = append(plannerOpts, planner.WithMetrics(deps.Metrics))
		schedOpts = append(schedOpts, action.WithMetrics(deps.Metrics))
		memOpts = append(memOpts, memory.WithMetrics(deps.Metrics))
	}
	a.reviser = planner.NewReviser(name, deps.Collab.Generator, plannerOpts...)

	shortTerm := memory.NewShortTermLog(name, deps.Store, clock.Time)
	if err := shortTerm.Load(ctx); err != nil {
		return nil, fmt.Errorf("actor %s: load short-term log: %w", name, err)
	}
	a.memory = memory.NewManager(name, deps.Store, shortTerm, deps.Collab.Memory(), memOpts...)

	registry := action.NewRegistry()
	deps.World.Register(registry, name)
	schedOpts = append(schedOpts, action.WithLogger(log), action.WithObserver(a.observe))
	a.scheduler = action.NewScheduler(ctx, name, registry, schedOpts...)

	return a, nil
}

// Name returns the actor's name.
func (a *Actor) Name() string { return a.name }

// Memory exposes the actor's memory manager.
func (a *Actor) Memory() *memory.Manager { return a.memory }

// Scheduler exposes the actor's action scheduler.
func (a *Actor) Scheduler() *action.Scheduler { return a.scheduler }

// Info returns a listing snapshot.
func (a *Actor) Info() Info {
	return Info{
		Name:      a.name,
		Location:  a.world.Location(a.name),
		Date:      a.clock.Date().Format(time.DateOnly),
		Now:       a.clock.Now().String(),
		Scheduler: a.scheduler.Stats(),
	}
}

// Plan returns a copy of today's plan, generating and saving one first if
// none exists yet.
func (a *Actor) Plan(ctx context.Context) (*plan.Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.ensurePlanLocked(ctx)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// PlanFor loads the stored plan of another date.
func (a *Actor) PlanFor(ctx context.Context, date time.Time) (*plan.Plan, error) {
	return a.plans.Load(ctx, a.name, date)
}

// PlanDates lists the dates a plan is stored for.
func (a *Actor) PlanDates(ctx context.Context) ([]time.Time, error) {
	return a.plans.Dates(ctx, a.name)
}

func (a *Actor) ensurePlanLocked(ctx context.Context) (*plan.Plan, error) {
	date := a.clock.Date()
	if a.plan != nil && a.planDate.Equal(date) {
		return a.plan, nil
	}

	p, err := a.plans.Load(ctx, a.name, date)
	switch {
	case err == nil:
	case storage.IsNotFound(err):
		empty := &plan.Plan{}
		p, err = a.reviser.Revise(ctx, empty, a.clock.Now(), a.clock.DayStart(), "", "")
		if err != nil {
			return nil, err
		}
		if p == empty {
			// generation failed; try again on the next call
			return p, nil
		}
		if err := a.plans.Save(ctx, a.name, date, p); err != nil {
			return nil, err
		}
		a.remember(ctx, memory.KindPlan, fmt.Sprintf("planned the day with %d tasks", len(p.Tasks)), planDetails(p))
		a.publish(ctx, eventbus.TypePlanRevised, map[string]any{"date": date.Format(time.DateOnly), "tasks": taskNames(p)})
	default:
		return nil, err
	}

	a.plan = p
	a.planDate = date
	a.current = nil
	return p, nil
}

// ReviseFromCurrentState perceives the surroundings, asks whether the plan
// still fits and rebuilds the rest of the day when it does not.
func (a *Actor) ReviseFromCurrentState(ctx context.Context) (*RevisionResult, error) {
	now := a.clock.Now()
	ctx, span := a.tracer.Start(ctx, "actor.revise", trace.WithAttributes(
		attribute.String("actor", a.name),
		attribute.String("now", now.String()),
	))
	defer span.End()

	perception := ""
	if a.collab.Perception != nil {
		var err error
		perception, err = a.collab.Perception.Perceive(ctx, a.name, now)
		if err != nil {
			a.logger.WarnContext(ctx, "perception failed", "error", err)
			perception = ""
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	current, err := a.ensurePlanLocked(ctx)
	if err != nil {
		return nil, err
	}

	decision := &planner.Decision{Kind: planner.DecisionKeep}
	if perception != "" {
		a.remember(ctx, memory.KindPerception, perception, nil)
		a.publish(ctx, eventbus.TypePerception, map[string]any{"perception": perception, "now": now.String()})
		if a.collab.Decision != nil {
			d, err := a.collab.Decision.Decide(ctx, perception, current, now)
			if err != nil {
				a.logger.WarnContext(ctx, "decision failed, keeping plan", "error", err)
			} else if d != nil {
				decision = d
			}
		}
	}
	return a.applyLocked(ctx, current, now, perception, decision)
}

// Revise rebuilds the rest of today's plan around perception regardless
// of what the decision collaborator would say.
func (a *Actor) Revise(ctx context.Context, perception, summary string) (*RevisionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	current, err := a.ensurePlanLocked(ctx)
	if err != nil {
		return nil, err
	}
	if summary == "" {
		summary = perception
	}
	if perception != "" {
		a.remember(ctx, memory.KindPerception, perception, nil)
	}
	return a.applyLocked(ctx, current, a.clock.Now(), perception, &planner.Decision{Kind: planner.DecisionRevise, Summary: summary})
}

func (a *Actor) applyLocked(ctx context.Context, current *plan.Plan, now plan.Clock, perception string, decision *planner.Decision) (*RevisionResult, error) {
	next, err := a.reviser.ReviseFromCurrentState(ctx, current, now, perception, decision)
	if err != nil {
		return nil, err
	}
	res := &RevisionResult{Perception: perception, Decision: decision, Plan: next.Clone()}
	if decision.Kind != planner.DecisionRevise {
		return res, nil
	}

	a.remember(ctx, memory.KindDecision, decision.Summary, decision)
	if next == current {
		// the generator failed and the plan stayed as it was
		return res, nil
	}
	if err := a.plans.Save(ctx, a.name, a.planDate, next); err != nil {
		return nil, err
	}
	a.plan = next
	a.current = nil
	res.Revised = true
	a.remember(ctx, memory.KindPlan, fmt.Sprintf("revised the plan: %s", decision.Summary), planDetails(next))
	a.publish(ctx, eventbus.TypePlanRevised, map[string]any{
		"date":    a.planDate.Format(time.DateOnly),
		"summary": decision.Summary,
		"tasks":   taskNames(next),
	})
	return res, nil
}

// ExpandActivities fills in the activities of the named task of today's
// plan if it has none.
func (a *Actor) ExpandActivities(ctx context.Context, taskName string) (*plan.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.ensurePlanLocked(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range p.Tasks {
		if t.Name != taskName {
			continue
		}
		if err := a.expandTaskLocked(ctx, t); err != nil {
			return nil, err
		}
		return t.Clone(), nil
	}
	return nil, &planner.InputInvalidError{Field: "task", Reason: fmt.Sprintf("no task named %q today", taskName)}
}

// ExpandActions fills in the actions of the named activity of today's
// plan if it has none.
func (a *Actor) ExpandActions(ctx context.Context, activityName string) (*plan.Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.ensurePlanLocked(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range p.Tasks {
		for _, act := range t.Activities {
			if act.Name != activityName {
				continue
			}
			if err := a.expandActivityLocked(ctx, act); err != nil {
				return nil, err
			}
			return act.Clone(), nil
		}
	}
	return nil, &planner.InputInvalidError{Field: "activity", Reason: fmt.Sprintf("no activity named %q today", activityName)}
}

func (a *Actor) expandTaskLocked(ctx context.Context, t *plan.Task) error {
	if len(t.Activities) > 0 {
		return nil
	}
	acts, err := a.reviser.ExpandActivities(ctx, t)
	if err != nil {
		return err
	}
	t.SetActivities(acts)
	return a.plans.Save(ctx, a.name, a.planDate, a.plan)
}

func (a *Actor) expandActivityLocked(ctx context.Context, act *plan.Activity) error {
	if len(act.Actions) > 0 {
		return nil
	}
	actions, err := a.reviser.ExpandActions(ctx, act)
	if err != nil {
		return err
	}
	act.SetActions(actions)
	return a.plans.Save(ctx, a.name, a.planDate, a.plan)
}

// SubmitAction hands an action straight to the scheduler.
func (a *Actor) SubmitAction(kind plan.ActionKind, params plan.Params) *action.Ticket {
	return a.scheduler.Submit(kind, params)
}

// Step advances the actor to now: it makes sure the activity at hand is
// expanded and starts its next pending action when the scheduler is idle.
// It returns the submitted ticket, if any.
func (a *Actor) Step(ctx context.Context) (*action.Ticket, error) {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.ensurePlanLocked(ctx)
	if err != nil {
		return nil, err
	}

	if t := p.CurrentTask(now); t != nil {
		if err := a.expandTaskLocked(ctx, t); err != nil {
			a.logger.WarnContext(ctx, "activity expansion failed", "task", t.Name, "error", err)
		}
	}
	act := p.CurrentActivity(now)
	if act == nil {
		return nil, nil
	}
	if err := a.expandActivityLocked(ctx, act); err != nil {
		a.logger.WarnContext(ctx, "action expansion failed", "activity", act.Name, "error", err)
		return nil, nil
	}

	if state, _ := a.scheduler.State(); state != action.StateIdle || a.current != nil {
		return nil, nil
	}
	next := act.NextPending()
	if next == nil {
		return nil, nil
	}
	if start, ok := plan.ParseClock(next.Start); ok && start > now {
		return nil, nil
	}

	next.Status = plan.StatusInProgress
	if act.Status == "" || act.Status == plan.StatusPending {
		act.Status = plan.StatusInProgress
	}
	a.current = next
	ticket := a.scheduler.Submit(next.Kind, next.Params)
	go a.track(ctx, ticket, next)
	return ticket, nil
}

// track settles the plan status of a submitted plan action.
func (a *Actor) track(ctx context.Context, t *action.Ticket, act *plan.Action) {
	select {
	case <-t.Done():
	case <-ctx.Done():
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch t.Outcome() {
	case action.OutcomeSucceeded:
		act.Status = plan.StatusCompleted
	case action.OutcomeInterrupted:
		act.Status = plan.StatusInterrupted
	default:
		act.Status = plan.StatusFailed
	}
	if parent := act.Activity(); parent != nil && settled(parent) {
		parent.Status = plan.StatusCompleted
	}
	if a.current == act {
		a.current = nil
	}
	// a stale plan (replaced by a revision) is not written back
	if a.plan != nil && planContains(a.plan, act) {
		if err := a.plans.Save(ctx, a.name, a.planDate, a.plan); err != nil {
			a.logger.Warn("saving plan status failed", "error", err)
		}
	}
}

// ProcessDayEndMemory runs the day-end memory pipeline.
func (a *Actor) ProcessDayEndMemory(ctx context.Context) (*memory.RunReport, error) {
	report, err := a.memory.ProcessDayEndMemory(ctx)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, eventbus.TypeDayEnd, report)
	return report, nil
}

// CompactShortTerm folds all but the latest keep short-term entries into
// summaries.
func (a *Actor) CompactShortTerm(ctx context.Context, keep int) (*memory.CompactionReport, error) {
	report, err := a.memory.CompactShortTerm(ctx, keep)
	if err != nil {
		return nil, err
	}
	if report.Compacted {
		a.publish(ctx, eventbus.TypeCompacted, report)
	}
	return report, nil
}

// Close stops the scheduler.
func (a *Actor) Close(ctx context.Context) error {
	return a.scheduler.Close(ctx)
}

// remember appends to the short-term log. Failures are logged only: the
// log is a record of the day, not a gate on it.
func (a *Actor) remember(ctx context.Context, kind memory.EntryKind, content string, details any) {
	e := memory.ShortTermEntry{Kind: kind, Content: content, Location: a.world.Location(a.name)}
	if details != nil {
		raw, err := marshalDetails(details)
		if err != nil {
			a.logger.Warn("dropping unencodable entry details", "kind", string(kind), "error", err)
		} else {
			e.Details = raw
		}
	}
	if _, err := a.memory.ShortTerm().AppendEntry(ctx, e); err != nil {
		a.logger.Warn("short-term append failed", "kind", string(kind), "error", err)
	}
}

func (a *Actor) publish(ctx context.Context, eventType string, payload any) {
	if a.events == nil {
		return
	}
	if _, err := a.events.Publish(ctx, a.name, eventType, payload); err != nil {
		a.logger.Debug("event publish failed", "type", eventType, "error", err)
	}
}

func settled(act *plan.Activity) bool {
	for _, x := range act.Actions {
		switch x.Status {
		case plan.StatusCompleted, plan.StatusFailed, plan.StatusInterrupted:
		default:
			return false
		}
	}
	return len(act.Actions) > 0
}

func planContains(p *plan.Plan, target *plan.Action) bool {
	for _, t := range p.Tasks {
		for _, act := range t.Activities {
			for _, x := range act.Actions {
				if x == target {
					return true
				}
			}
		}
	}
	return false
}

func taskNames(p *plan.Plan) []string {
	names := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		names = append(names, t.Name)
	}
	return names
}
