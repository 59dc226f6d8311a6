package action

import (
	"context"
	"sort"
	"sync"

	"github.com/goclaw/dayloop/pkg/plan"
)

// Handler carries out one action. Implementations must return promptly
// once ctx is cancelled, without completing the action's effect.
type Handler interface {
	Handle(ctx context.Context, params plan.Params) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params plan.Params) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, params plan.Params) error {
	return f(ctx, params)
}

// Registry maps action kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[plan.ActionKind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[plan.ActionKind]Handler)}
}

// Register installs h for kind, replacing any previous handler.
func (r *Registry) Register(kind plan.ActionKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Lookup returns the handler for kind or an *UnknownKindError.
func (r *Registry) Lookup(kind plan.ActionKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok || h == nil {
		return nil, &UnknownKindError{Kind: kind}
	}
	return h, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []plan.ActionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]plan.ActionKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ShouldPreempt reports whether a newly submitted action of kind next
// cancels a running action of kind current. Talk and Payment always win;
// a running Wait always yields; everything else queues.
func ShouldPreempt(next, current plan.ActionKind) bool {
	if next == plan.KindTalk || next == plan.KindPayment {
		return true
	}
	return current == plan.KindWait
}
