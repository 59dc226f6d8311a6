// Package action runs an actor's concrete actions one at a time, with a
// FIFO queue and a fixed preemption rule.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dayloop.action"

// State is the scheduler state.
type State string

const (
	StateIdle      State = "idle"
	StateExecuting State = "executing"
	StateClosed    State = "closed"
)

// EventType identifies a scheduler lifecycle event.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventPreempted EventType = "preempted"
	EventStarted   EventType = "started"
	EventFinished  EventType = "finished"
)

// Event is delivered to observers. Finished events of a run are always
// delivered before the next run's started event.
type Event struct {
	Type     EventType
	Actor    string
	TicketID string
	Kind     plan.ActionKind
	Params   plan.Params
	Outcome  Outcome
	Err      error
	Duration time.Duration
	At       time.Time
}

// Observer receives scheduler events. It must not block for long.
type Observer func(Event)

// MetricsRecorder receives scheduler measurements.
type MetricsRecorder interface {
	RecordActionStarted(actor, kind string)
	RecordActionFinished(actor, kind, outcome string, duration time.Duration)
	RecordPreemption(actor, kind string)
	SetQueueDepth(actor string, depth int)
}

type nopMetrics struct{}

func (nopMetrics) RecordActionStarted(string, string)                         {}
func (nopMetrics) RecordActionFinished(string, string, string, time.Duration) {}
func (nopMetrics) RecordPreemption(string, string)                            {}
func (nopMetrics) SetQueueDepth(string, int)                                  {}

// Stats counts outcomes. Interrupted runs are never counted as failed.
type Stats struct {
	Submitted   int64  `json:"submitted"`
	Succeeded   int64  `json:"succeeded"`
	Failed      int64  `json:"failed"`
	Interrupted int64  `json:"interrupted"`
	Preempted   int64  `json:"preempted"`
	QueueDepth  int    `json:"queue_depth"`
	State       State  `json:"state"`
	Current     string `json:"current,omitempty"`
}

type run struct {
	ticket *Ticket
	cancel context.CancelFunc
}

// Scheduler executes at most one action at a time for one actor.
type Scheduler struct {
	actor    string
	registry *Registry

	base       context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	current *run
	pending *Ticket
	queue   []*Ticket
	closed  bool
	stats   Stats

	obsMu     sync.RWMutex
	observers []Observer

	wg      sync.WaitGroup
	logger  logger.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Scheduler) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// NewScheduler creates a scheduler. Runs derive their contexts from ctx;
// cancelling it interrupts whatever is executing.
func NewScheduler(ctx context.Context, actor string, registry *Registry, opts ...Option) *Scheduler {
	base, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		actor:      actor,
		registry:   registry,
		base:       base,
		baseCancel: cancel,
		queue:      make([]*Ticket, 0),
		logger:     logger.Global(),
		metrics:    nopMetrics{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.ForActor(s.logger, actor, "scheduler")
	return s
}

// Observe registers an observer.
func (s *Scheduler) Observe(o Observer) {
	if o == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// Submit hands an action to the scheduler. When idle the action starts at
// once. While another action runs, the new one either preempts it (see
// ShouldPreempt) or joins the back of the queue. Queued actions never
// preempt each other.
func (s *Scheduler) Submit(kind plan.ActionKind, params plan.Params) *Ticket {
	t := newTicket(kind, params)

	h, err := s.registry.Lookup(kind)
	if err == nil && params != nil && params.Kind() != kind {
		err = &plan.ParamsError{Kind: kind, Cause: fmt.Errorf("parameters are for %s", params.Kind())}
	}
	if err != nil {
		s.reject(t, err)
		return t
	}
	t.handler = h

	var events []Event
	var interrupted *Ticket

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.reject(t, ErrSchedulerClosed)
		return t
	}
	s.stats.Submitted++

	switch {
	case s.current == nil:
		s.startLocked(t)
	case ShouldPreempt(kind, s.effectiveKindLocked()):
		if s.pending != nil {
			interrupted = s.pending
			s.stats.Interrupted++
		}
		s.pending = t
		s.stats.Preempted++
		victim := s.current.ticket
		s.current.cancel()
		s.metrics.RecordPreemption(s.actor, string(kind))
		events = append(events, Event{Type: EventPreempted, TicketID: victim.ID, Kind: victim.Kind, Params: victim.Params})
		s.logger.Info("action preempted", "running", string(victim.Kind), "by", string(kind))
	default:
		s.queue = append(s.queue, t)
		s.metrics.SetQueueDepth(s.actor, len(s.queue))
		events = append(events, Event{Type: EventQueued, TicketID: t.ID, Kind: kind, Params: params})
		s.logger.Debug("action queued", "kind", string(kind), "depth", len(s.queue))
	}
	s.mu.Unlock()

	if interrupted != nil {
		s.finishUnstarted(interrupted, fmt.Errorf("%w: superseded by %s", ErrInterrupted, kind))
	}
	for _, ev := range events {
		s.emit(ev)
	}
	return t
}

// Run submits an action and waits for it.
func (s *Scheduler) Run(ctx context.Context, kind plan.ActionKind, params plan.Params) error {
	return s.Submit(kind, params).Wait(ctx)
}

// effectiveKindLocked is the kind that will be executing next: the
// pending preemptor if one is waiting, else the running action.
func (s *Scheduler) effectiveKindLocked() plan.ActionKind {
	if s.pending != nil {
		return s.pending.Kind
	}
	return s.current.ticket.Kind
}

func (s *Scheduler) startLocked(t *Ticket) {
	ctx, cancel := context.WithCancel(s.base)
	r := &run{ticket: t, cancel: cancel}
	s.current = r
	t.markStarted()
	s.wg.Add(1)
	go s.execute(ctx, r)
}

func (s *Scheduler) execute(ctx context.Context, r *run) {
	defer s.wg.Done()
	t := r.ticket

	ctx, span := s.tracer.Start(ctx, "action.run", trace.WithAttributes(
		attribute.String("actor", s.actor),
		attribute.String("action.kind", string(t.Kind)),
		attribute.String("ticket.id", t.ID),
	))

	s.metrics.RecordActionStarted(s.actor, string(t.Kind))
	s.emit(Event{Type: EventStarted, TicketID: t.ID, Kind: t.Kind, Params: t.Params})
	s.logger.DebugContext(ctx, "action started", "kind", string(t.Kind), "ticket_id", t.ID)

	err := s.invoke(ctx, t)

	var outcome Outcome
	switch {
	case ctx.Err() != nil:
		outcome = OutcomeInterrupted
		err = fmt.Errorf("%w: %s", ErrInterrupted, t.Kind)
		span.SetStatus(codes.Error, "interrupted")
	case err != nil:
		outcome = OutcomeFailed
		err = &HandlerError{Kind: t.Kind, Cause: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed")
	default:
		outcome = OutcomeSucceeded
		span.SetStatus(codes.Ok, "ok")
	}
	span.SetAttributes(attribute.String("action.outcome", string(outcome)))
	span.End()

	s.complete(ctx, r, outcome, err)
}

// invoke calls the handler, turning a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, t *Ticket) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return t.handler.Handle(ctx, t.Params)
}

// complete records the outcome, notifies observers, then returns the
// scheduler to idle and starts the next action. It always runs, however
// the handler ended.
func (s *Scheduler) complete(ctx context.Context, r *run, outcome Outcome, err error) {
	t := r.ticket
	r.cancel()
	t.settle(outcome, err)

	s.mu.Lock()
	switch outcome {
	case OutcomeSucceeded:
		s.stats.Succeeded++
	case OutcomeFailed:
		s.stats.Failed++
	case OutcomeInterrupted:
		s.stats.Interrupted++
	}
	s.mu.Unlock()

	d := t.Duration()
	s.metrics.RecordActionFinished(s.actor, string(t.Kind), string(outcome), d)
	s.emit(Event{Type: EventFinished, TicketID: t.ID, Kind: t.Kind, Params: t.Params, Outcome: outcome, Err: err, Duration: d})

	switch outcome {
	case OutcomeFailed:
		s.logger.WarnContext(ctx, "action failed", "kind", string(t.Kind), "error", err, "duration", d)
	case OutcomeInterrupted:
		s.logger.InfoContext(ctx, "action interrupted", "kind", string(t.Kind), "duration", d)
	default:
		s.logger.DebugContext(ctx, "action completed", "kind", string(t.Kind), "duration", d)
	}

	s.mu.Lock()
	s.current = nil
	if !s.closed {
		var next *Ticket
		if s.pending != nil {
			next, s.pending = s.pending, nil
		} else if len(s.queue) > 0 {
			next = s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.metrics.SetQueueDepth(s.actor, len(s.queue))
		}
		if next != nil {
			s.startLocked(next)
		}
	}
	s.mu.Unlock()

	t.release()
}

// reject finishes a ticket that was never accepted.
func (s *Scheduler) reject(t *Ticket, err error) {
	s.mu.Lock()
	s.stats.Submitted++
	s.stats.Failed++
	s.mu.Unlock()

	t.settle(OutcomeFailed, err)
	s.metrics.RecordActionFinished(s.actor, string(t.Kind), string(OutcomeFailed), 0)
	s.emit(Event{Type: EventFinished, TicketID: t.ID, Kind: t.Kind, Params: t.Params, Outcome: OutcomeFailed, Err: err})
	s.logger.Warn("action rejected", "kind", string(t.Kind), "error", err)
	t.release()
}

// finishUnstarted interrupts a ticket that was waiting to run.
func (s *Scheduler) finishUnstarted(t *Ticket, err error) {
	t.settle(OutcomeInterrupted, err)
	s.metrics.RecordActionFinished(s.actor, string(t.Kind), string(OutcomeInterrupted), 0)
	s.emit(Event{Type: EventFinished, TicketID: t.ID, Kind: t.Kind, Params: t.Params, Outcome: OutcomeInterrupted, Err: err})
	t.release()
}

func (s *Scheduler) emit(ev Event) {
	ev.Actor = s.actor
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, o := range observers {
		o(ev)
	}
}

// State returns the scheduler state and the running kind, if any.
func (s *Scheduler) State() (State, plan.ActionKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed, ""
	case s.current != nil:
		return StateExecuting, s.current.ticket.Kind
	default:
		return StateIdle, ""
	}
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.QueueDepth = len(s.queue)
	switch {
	case s.closed:
		st.State = StateClosed
	case s.current != nil:
		st.State = StateExecuting
		st.Current = string(s.current.ticket.Kind)
	default:
		st.State = StateIdle
	}
	return st
}

// Close interrupts the running action, drops the queue and waits for the
// running handler to unwind or ctx to end.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.queue
	s.queue = nil
	if s.pending != nil {
		dropped = append([]*Ticket{s.pending}, dropped...)
		s.pending = nil
	}
	s.stats.Interrupted += int64(len(dropped))
	s.mu.Unlock()

	s.baseCancel()
	s.metrics.SetQueueDepth(s.actor, 0)

	closedErr := fmt.Errorf("%w: %w", ErrInterrupted, ErrSchedulerClosed)
	for _, t := range dropped {
		s.finishUnstarted(t, closedErr)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("scheduler close: handler did not unwind"), ctx.Err())
	}
}
