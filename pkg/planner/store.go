package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/storage"
)

// PlanStore persists one plan document per actor and calendar date.
type PlanStore struct {
	store storage.DocumentStore
}

// NewPlanStore creates a PlanStore over a document store.
func NewPlanStore(store storage.DocumentStore) *PlanStore {
	return &PlanStore{store: store}
}

// Load returns the actor's plan for date with parent links restored.
func (s *PlanStore) Load(ctx context.Context, actor string, date time.Time) (*plan.Plan, error) {
	var p plan.Plan
	if err := storage.GetJSON(ctx, s.store, storage.PlanKey(actor, date), &p); err != nil {
		return nil, err
	}
	if p.Tasks == nil {
		p.Tasks = make([]*plan.Task, 0)
	}
	p.Link()
	return &p, nil
}

// Save writes the actor's plan for date.
func (s *PlanStore) Save(ctx context.Context, actor string, date time.Time, p *plan.Plan) error {
	if p == nil {
		return &InputInvalidError{Field: "plan", Reason: "is nil"}
	}
	if err := storage.PutJSON(ctx, s.store, storage.PlanKey(actor, date), p); err != nil {
		return fmt.Errorf("save plan for %s: %w", actor, err)
	}
	return nil
}

// HasPlanForDate reports whether a plan document exists for date.
func (s *PlanStore) HasPlanForDate(ctx context.Context, actor string, date time.Time) (bool, error) {
	_, err := s.store.Get(ctx, storage.PlanKey(actor, date))
	if err == nil {
		return true, nil
	}
	if storage.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Dates lists the dates for which the actor has plans, oldest first.
func (s *PlanStore) Dates(ctx context.Context, actor string) ([]time.Time, error) {
	names, err := s.store.List(ctx, actor, storage.KindPlan)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(names))
	for _, name := range names {
		d, err := time.Parse(storage.PlanDateLayout, name)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}
