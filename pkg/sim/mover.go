package sim

import (
	"context"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/plan"
)

// movement is one trip in flight. The world only honours the arrival of
// the movement currently stored for the actor.
type movement struct {
	dest    string
	arrived chan struct{}
	cancel  context.CancelFunc
}

// MoveTo walks actor to dest and waits for arrival. It returns false with
// a nil error when the arrival timeout passes; the trip is then abandoned
// and the actor stays where it was. Starting a new trip abandons the old
// one.
func (w *World) MoveTo(ctx context.Context, actor, dest string) (bool, error) {
	w.mu.Lock()
	if w.stateLocked(actor).Location == dest {
		w.mu.Unlock()
		return true, nil
	}
	if prev := w.moves[actor]; prev != nil {
		prev.cancel()
	}
	mctx, cancel := context.WithCancel(ctx)
	m := &movement{dest: dest, arrived: make(chan struct{}), cancel: cancel}
	w.moves[actor] = m
	w.mu.Unlock()

	go w.travel(mctx, actor, m)

	arrived, err := action.AwaitArrival(ctx, m.arrived, w.arrivalTimeout, func() { w.abandon(actor, m) })
	if err != nil {
		w.abandon(actor, m)
		return false, err
	}
	if !arrived {
		w.logger.Warn("gave up waiting for arrival", "actor", actor, "destination", dest)
	}
	return arrived, nil
}

func (w *World) travel(ctx context.Context, actor string, m *movement) {
	defer m.cancel()
	if err := w.clock.Delay(ctx, w.durations[plan.KindMove]); err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.moves[actor] != m || ctx.Err() != nil {
		return
	}
	w.stateLocked(actor).Location = m.dest
	delete(w.moves, actor)
	close(m.arrived)
}

func (w *World) abandon(actor string, m *movement) {
	m.cancel()
	w.mu.Lock()
	if w.moves[actor] == m {
		delete(w.moves, actor)
	}
	w.mu.Unlock()
}

// Moving reports the destination of actor's trip in flight, if any.
func (w *World) Moving(actor string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.moves[actor]
	if !ok {
		return "", false
	}
	return m.dest, true
}
