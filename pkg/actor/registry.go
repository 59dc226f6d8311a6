package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// UnknownActorError is returned when a name is not registered.
type UnknownActorError struct {
	Name string
}

func (e *UnknownActorError) Error() string {
	return fmt.Sprintf("unknown actor %q", e.Name)
}

// IsUnknownActorError returns true if err is or wraps an UnknownActorError.
func IsUnknownActorError(err error) bool {
	var target *UnknownActorError
	return errors.As(err, &target)
}

// Registry holds the running actors by name.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]*Actor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]*Actor)}
}

// Add registers a. A second actor with the same name is rejected.
func (r *Registry) Add(a *Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actors[a.Name()]; ok {
		return fmt.Errorf("actor %q already registered", a.Name())
	}
	r.actors[a.Name()] = a
	return nil
}

// Get looks up an actor.
func (r *Registry) Get(name string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[name]
	if !ok {
		return nil, &UnknownActorError{Name: name}
	}
	return a, nil
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actors))
	for n := range r.actors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the actors sorted by name.
func (r *Registry) All() []*Actor {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Actor, 0, len(names))
	for _, n := range names {
		if a, ok := r.actors[n]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Close closes every actor and joins their errors.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, a := range r.All() {
		if err := a.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
