package action

import (
	"context"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/google/uuid"
)

// Outcome is how a submitted action ended.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Ticket tracks one submission through the scheduler.
type Ticket struct {
	ID          string
	Kind        plan.ActionKind
	Params      plan.Params
	SubmittedAt time.Time

	handler Handler
	done    chan struct{}

	mu         sync.Mutex
	outcome    Outcome
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func newTicket(kind plan.ActionKind, params plan.Params) *Ticket {
	return &Ticket{
		ID:          uuid.NewString(),
		Kind:        kind,
		Params:      params,
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
		outcome:     OutcomePending,
	}
}

// Done is closed once the action has finished in any way.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the action finishes and returns its error: nil on
// success, a *HandlerError on failure, an error wrapping ErrInterrupted on
// cancellation. If ctx ends first, ctx.Err() is returned and the action
// keeps running.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns the current outcome.
func (t *Ticket) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Err returns the final error, if any.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Duration returns how long the handler ran, or 0 if it never started.
func (t *Ticket) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

func (t *Ticket) markStarted() {
	t.mu.Lock()
	t.startedAt = time.Now()
	t.mu.Unlock()
}

func (t *Ticket) settle(outcome Outcome, err error) {
	t.mu.Lock()
	t.outcome = outcome
	t.err = err
	t.finishedAt = time.Now()
	t.mu.Unlock()
}

func (t *Ticket) release() {
	close(t.done)
}
