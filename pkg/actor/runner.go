package actor

import (
	"context"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/sim"
)

// RunnerConfig tunes the simulation loop.
type RunnerConfig struct {
	// TickInterval is the real time between clock ticks.
	TickInterval time.Duration
	// PerceiveEvery runs a perceive and decide round every n ticks. Zero
	// means every tick.
	PerceiveEvery int
	// CompactAbove compacts an actor's short-term log once it holds more
	// entries than this. Zero disables compaction.
	CompactAbove int
	// CompactKeep is how many recent entries compaction leaves untouched.
	CompactKeep int
}

// Runner advances the shared clock and lets every actor act on it.
type Runner struct {
	cfg      RunnerConfig
	registry *Registry
	world    *sim.World
	clock    *sim.Clock
	logger   logger.Logger

	mu    sync.Mutex
	ticks int
}

// NewRunner creates a runner over the actors of registry.
func NewRunner(registry *Registry, world *sim.World, cfg RunnerConfig, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Global()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PerceiveEvery <= 0 {
		cfg.PerceiveEvery = 1
	}
	return &Runner{
		cfg:      cfg,
		registry: registry,
		world:    world,
		clock:    world.Clock(),
		logger:   log.With("component", "runner"),
	}
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.logger.Info("simulation started",
		"date", r.clock.Date().Format(time.DateOnly),
		"now", r.clock.Now().String(),
		"actors", r.registry.Names(),
	)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("simulation stopped", "now", r.clock.Now().String())
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick moves the clock one step and lets each actor perceive and act.
// When the day ends every actor runs its day-end memory pipeline before
// the clock rolls over to the next morning.
func (r *Runner) Tick(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now, dayEnded := r.clock.Tick()
	r.ticks++
	if dayEnded {
		r.endDay(ctx)
		return
	}

	perceive := r.ticks%r.cfg.PerceiveEvery == 0
	for _, a := range r.registry.All() {
		if ctx.Err() != nil {
			return
		}
		if perceive {
			if _, err := a.ReviseFromCurrentState(ctx); err != nil {
				a.logger.WarnContext(ctx, "revision round failed", "now", now.String(), "error", err)
			}
		}
		if _, err := a.Step(ctx); err != nil {
			a.logger.WarnContext(ctx, "step failed", "now", now.String(), "error", err)
		}
		r.maybeCompact(ctx, a)
	}
}

func (r *Runner) maybeCompact(ctx context.Context, a *Actor) {
	if r.cfg.CompactAbove <= 0 || a.Memory().ShortTerm().Len() <= r.cfg.CompactAbove {
		return
	}
	if _, err := a.CompactShortTerm(ctx, r.cfg.CompactKeep); err != nil {
		a.logger.WarnContext(ctx, "short-term compaction failed", "error", err)
	}
}

func (r *Runner) endDay(ctx context.Context) {
	date := r.clock.Date()
	for _, a := range r.registry.All() {
		report, err := a.ProcessDayEndMemory(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "day-end memory failed", "error", err)
		} else {
			a.logger.InfoContext(ctx, "day ended",
				"chunks_appended", report.Appended,
				"long_term_size", report.LongTermSize,
				"degraded", report.Degraded,
			)
		}
		r.world.NewDay(a.Name())
	}
	next := r.clock.NextDay()
	r.logger.Info("new day",
		"previous", date.Format(time.DateOnly),
		"date", next.Format(time.DateOnly),
	)
}
