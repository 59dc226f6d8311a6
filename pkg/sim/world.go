package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
)

var (
	// ErrInsufficientFunds is returned when an actor pays more than it has.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotHolding is returned when an actor hands over or puts down an
	// item it does not carry.
	ErrNotHolding = errors.New("item not held")
)

// DefaultArrivalTimeout caps how long a Move waits for arrival.
const DefaultArrivalTimeout = 30 * time.Second

// DefaultDurations are the game minutes each kind takes. Wait uses its
// own parameter and Move uses the travel time.
var DefaultDurations = map[plan.ActionKind]int{
	plan.KindMove:               10,
	plan.KindTalk:               5,
	plan.KindPutDown:            1,
	plan.KindGiveMoney:          1,
	plan.KindGiveItem:           1,
	plan.KindExamine:            2,
	plan.KindNotifyReceptionist: 2,
	plan.KindPrepareMenu:        10,
	plan.KindNotifyDoctor:       2,
	plan.KindCook:               15,
	plan.KindPayment:            2,
}

// ActorState is what the world knows about one actor.
type ActorState struct {
	Location string   `json:"location"`
	Money    int      `json:"money"`
	Items    []string `json:"items"`
	Menu     []string `json:"menu,omitempty"`
	Met      []string `json:"met,omitempty"`
}

func (s *ActorState) clone() ActorState {
	out := *s
	out.Items = append([]string(nil), s.Items...)
	out.Menu = append([]string(nil), s.Menu...)
	out.Met = append([]string(nil), s.Met...)
	return out
}

func (s *ActorState) take(item string) bool {
	for i, it := range s.Items {
		if it == item {
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *ActorState) meet(name string) {
	for _, m := range s.Met {
		if m == name {
			return
		}
	}
	s.Met = append(s.Met, name)
}

// Notice is a message delivered to staff by NotifyReceptionist or
// NotifyDoctor.
type Notice struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Patient string    `json:"patient,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// World holds the state every handler acts on.
type World struct {
	clock          *Clock
	arrivalTimeout time.Duration
	durations      map[plan.ActionKind]int
	start          ActorState
	logger         logger.Logger

	mu      sync.Mutex
	actors  map[string]*ActorState
	placed  map[string][]string
	notices []Notice
	moves   map[string]*movement
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithArrivalTimeout caps movement waits.
func WithArrivalTimeout(d time.Duration) WorldOption {
	return func(w *World) {
		if d > 0 {
			w.arrivalTimeout = d
		}
	}
}

// WithDurations overrides the game minutes of individual kinds.
func WithDurations(d map[plan.ActionKind]int) WorldOption {
	return func(w *World) {
		for k, v := range d {
			w.durations[k] = v
		}
	}
}

// WithStartingState sets what every actor owns at the start of a day.
func WithStartingState(s ActorState) WorldOption {
	return func(w *World) {
		w.start = s.clone()
	}
}

// WithWorldLogger sets the logger.
func WithWorldLogger(log logger.Logger) WorldOption {
	return func(w *World) {
		if log != nil {
			w.logger = log
		}
	}
}

// NewWorld creates a world driven by clock.
func NewWorld(clock *Clock, opts ...WorldOption) *World {
	w := &World{
		clock:          clock,
		arrivalTimeout: DefaultArrivalTimeout,
		durations:      make(map[plan.ActionKind]int, len(DefaultDurations)),
		start:          ActorState{Location: "Home", Money: 100, Items: []string{"groceries", "cookies"}},
		logger:         logger.Global(),
		actors:         make(map[string]*ActorState),
		placed:         make(map[string][]string),
		moves:          make(map[string]*movement),
	}
	for k, v := range DefaultDurations {
		w.durations[k] = v
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Clock returns the world clock.
func (w *World) Clock() *Clock { return w.clock }

// stateLocked returns actor's state, creating it from the starting state.
func (w *World) stateLocked(actor string) *ActorState {
	s, ok := w.actors[actor]
	if !ok {
		st := w.start.clone()
		s = &st
		w.actors[actor] = s
	}
	return s
}

// State returns a copy of actor's state.
func (w *World) State(actor string) ActorState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked(actor).clone()
}

// Location returns where actor is.
func (w *World) Location(actor string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked(actor).Location
}

// NewDay restocks actor's items and tops its money up to the starting
// amount. Location and acquaintances carry over.
func (w *World) NewDay(actor string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stateLocked(actor)
	s.Items = append([]string(nil), w.start.Items...)
	if s.Money < w.start.Money {
		s.Money = w.start.Money
	}
	s.Menu = nil
}

// PlacedAt lists items put down at location.
func (w *World) PlacedAt(location string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.placed[location]...)
}

// Notices returns every staff notice so far.
func (w *World) Notices() []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Notice(nil), w.notices...)
}

// Register installs a handler for every action kind on behalf of actor.
func (w *World) Register(reg *action.Registry, actor string) {
	h := &handlers{world: w, actor: actor, logger: logger.ForActor(w.logger, actor, "world")}
	reg.Register(plan.KindMove, action.HandlerFunc(h.move))
	reg.Register(plan.KindTalk, action.HandlerFunc(h.talk))
	reg.Register(plan.KindPutDown, action.HandlerFunc(h.putDown))
	reg.Register(plan.KindGiveMoney, action.HandlerFunc(h.giveMoney))
	reg.Register(plan.KindGiveItem, action.HandlerFunc(h.giveItem))
	reg.Register(plan.KindExamine, action.HandlerFunc(h.examine))
	reg.Register(plan.KindNotifyReceptionist, action.HandlerFunc(h.notifyReceptionist))
	reg.Register(plan.KindPrepareMenu, action.HandlerFunc(h.prepareMenu))
	reg.Register(plan.KindNotifyDoctor, action.HandlerFunc(h.notifyDoctor))
	reg.Register(plan.KindCook, action.HandlerFunc(h.cook))
	reg.Register(plan.KindWait, action.HandlerFunc(h.wait))
	reg.Register(plan.KindPayment, action.HandlerFunc(h.payment))
}

// spend runs the kind's duration on the game clock.
func (w *World) spend(ctx context.Context, kind plan.ActionKind) error {
	return w.clock.Delay(ctx, w.durations[kind])
}

// apply runs fn against actor's state under the world lock, unless ctx
// has already ended.
func (w *World) apply(ctx context.Context, actor string, fn func(s *ActorState) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(w.stateLocked(actor))
}

func paramsOf[T plan.Params](p plan.Params) (T, error) {
	v, ok := p.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("expected %T parameters, got %T", zero, p)
	}
	return v, nil
}
