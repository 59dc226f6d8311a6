package planner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/storage/memory"
)

func workPlan() *plan.Plan {
	task := &plan.Task{Name: "Work", Start: "09:00", End: "12:00"}

	done := &plan.Activity{Name: "Emails", Start: "09:00", End: "10:00", Status: plan.StatusCompleted}
	done.SetActions([]*plan.Action{{
		Kind: plan.KindMove, Start: "09:00", End: "09:05",
		Params: plan.MoveParams{Destination: "desk"}, Status: plan.StatusCompleted,
	}})

	current := &plan.Activity{Name: "Meeting", Start: "10:00", End: "11:00", Status: plan.StatusInProgress}
	current.SetActions([]*plan.Action{{
		Kind: plan.KindTalk, Start: "10:00", End: "10:30",
		Params: plan.TalkParams{Target: "boss"}, Status: plan.StatusInProgress,
	}})

	future := &plan.Activity{Name: "Report", Start: "11:00", End: "12:00", Status: plan.StatusPending}
	task.SetActivities([]*plan.Activity{done, current, future})

	lunch := &plan.Task{Name: "Lunch", Start: "12:00", End: "13:00"}
	lunch.SetActivities([]*plan.Activity{{Name: "Eat", Start: "12:00", End: "13:00"}})

	return &plan.Plan{Tasks: []*plan.Task{task, lunch}}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

type fakeGenerator struct {
	tasks []*plan.Task
	err   error
	panic bool
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, perception, summary string, current *plan.Plan) ([]*plan.Task, error) {
	g.calls++
	if g.panic {
		panic("generator exploded")
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.tasks, nil
}

func TestExtractPreserved_WorkExample(t *testing.T) {
	current := workPlan()
	before := mustJSON(t, current)

	got := ExtractPreserved(current, plan.MustParseClock("10:30"), plan.MustParseClock("09:00"))

	if len(got.Tasks) != 1 {
		t.Fatalf("expected 1 preserved task, got %d", len(got.Tasks))
	}
	acts := got.Tasks[0].Activities
	if len(acts) != 2 {
		t.Fatalf("expected 2 preserved activities, got %d", len(acts))
	}

	if mustJSON(t, acts[0]) != mustJSON(t, current.Tasks[0].Activities[0]) {
		t.Errorf("elapsed activity not reproduced unchanged:\n got %s\nwant %s",
			mustJSON(t, acts[0]), mustJSON(t, current.Tasks[0].Activities[0]))
	}

	partial := acts[1]
	if partial.Start != "10:00" || partial.End != "10:30" {
		t.Errorf("partial activity = %s-%s, want 10:00-10:30", partial.Start, partial.End)
	}
	if partial.Duration() != 30 {
		t.Errorf("partial duration = %d, want 30", partial.Duration())
	}
	if len(partial.Actions) != 0 {
		t.Errorf("partial activity should have no actions, got %d", len(partial.Actions))
	}
	if partial.Task() != got.Tasks[0] {
		t.Error("partial activity should point at the preserved task")
	}

	if mustJSON(t, current) != before {
		t.Error("ExtractPreserved modified the current plan")
	}
}

func TestExtractPreserved_Boundaries(t *testing.T) {
	tests := []struct {
		name           string
		now            string
		wantTasks      int
		wantActivities int
	}{
		{"before start", "08:00", 0, 0},
		{"at plan start", "09:00", 0, 0},
		{"exactly end of first activity", "10:00", 1, 1},
		{"inside first activity", "09:15", 1, 1},
		{"end of work task", "12:00", 1, 3},
		{"inside lunch", "12:30", 2, 4},
		{"after everything", "23:00", 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPreserved(workPlan(), plan.MustParseClock(tt.now), plan.MustParseClock("09:00"))
			if len(got.Tasks) != tt.wantTasks {
				t.Errorf("tasks = %d, want %d", len(got.Tasks), tt.wantTasks)
			}
			if got.CountActivities() != tt.wantActivities {
				t.Errorf("activities = %d, want %d", got.CountActivities(), tt.wantActivities)
			}
		})
	}
}

func TestExtractPreserved_CursorIgnoresGaps(t *testing.T) {
	task := &plan.Task{Name: "Errands"}
	task.SetActivities([]*plan.Activity{
		{Name: "Bank", Start: "09:00", End: "09:30"},
		// Starts an hour after Bank ends; the cursor still sits at 09:30.
		{Name: "Market", Start: "10:30", End: "11:30"},
	})
	p := &plan.Plan{Tasks: []*plan.Task{task}}

	got := ExtractPreserved(p, plan.MustParseClock("10:00"), plan.MustParseClock("09:00"))
	acts := got.Tasks[0].Activities
	if len(acts) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(acts))
	}
	if acts[1].Duration() != 30 {
		t.Errorf("partial duration = %d, want now-cursor = 30", acts[1].Duration())
	}
	if acts[1].Start != "10:30" || acts[1].End != "11:00" {
		t.Errorf("partial = %s-%s, want 10:30-11:00", acts[1].Start, acts[1].End)
	}
}

func TestExtractPreserved_UnparsableDurationIsZero(t *testing.T) {
	task := &plan.Task{Name: "Odd"}
	task.SetActivities([]*plan.Activity{
		{Name: "Broken", Start: "soon", End: "later"},
		{Name: "Real", Start: "09:00", End: "10:00"},
	})
	p := &plan.Plan{Tasks: []*plan.Task{task}}

	got := ExtractPreserved(p, plan.MustParseClock("09:30"), plan.MustParseClock("09:00"))
	acts := got.Tasks[0].Activities
	if len(acts) != 2 {
		t.Fatalf("expected zero-length activity and partial, got %d", len(acts))
	}
	if acts[0].Name != "Broken" || acts[1].Duration() != 30 {
		t.Errorf("unexpected preserved activities %s/%d", acts[0].Name, acts[1].Duration())
	}
}

func TestExtractPreserved_Nil(t *testing.T) {
	got := ExtractPreserved(nil, 0, 0)
	if got == nil || len(got.Tasks) != 0 {
		t.Errorf("expected empty plan, got %+v", got)
	}
}

func TestMerge(t *testing.T) {
	preserved := &plan.Plan{Tasks: []*plan.Task{{Name: "P1"}, {Name: "P2"}}}
	generated := []*plan.Task{{Name: "N1"}, {Name: "N2"}, {Name: "N3"}}

	got := Merge(preserved, generated)

	if len(got.Tasks) != len(preserved.Tasks)+len(generated) {
		t.Fatalf("merged length = %d, want %d", len(got.Tasks), 5)
	}
	want := []string{"P1", "P2", "N1", "N2", "N3"}
	for i, name := range want {
		if got.Tasks[i].Name != name {
			t.Errorf("task %d = %s, want %s", i, got.Tasks[i].Name, name)
		}
	}
	if got.Tasks[3].Activities == nil {
		t.Error("generated tasks should carry an empty activity list")
	}
}

func newTestReviser(gen PlanGenerator, opts ...Option) *Reviser {
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	return NewReviser("mina", gen, opts...)
}

func TestReviseFromCurrentState_InvalidInput(t *testing.T) {
	gen := &fakeGenerator{}
	r := newTestReviser(gen)
	ctx := context.Background()

	if _, err := r.ReviseFromCurrentState(ctx, nil, 600, "", &Decision{Kind: DecisionRevise}); !IsInputInvalidError(err) {
		t.Errorf("nil plan: expected InputInvalidError, got %v", err)
	}
	if _, err := r.ReviseFromCurrentState(ctx, workPlan(), 600, "", nil); !IsInputInvalidError(err) {
		t.Errorf("nil decision: expected InputInvalidError, got %v", err)
	}
	if _, err := r.ReviseFromCurrentState(ctx, workPlan(), 600, "", &Decision{Kind: "maybe"}); !IsInputInvalidError(err) {
		t.Errorf("unknown kind: expected InputInvalidError, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not be called on invalid input, got %d calls", gen.calls)
	}
}

func TestReviseFromCurrentState_KeepReturnsSamePlan(t *testing.T) {
	gen := &fakeGenerator{}
	r := newTestReviser(gen)
	current := workPlan()

	got, err := r.ReviseFromCurrentState(context.Background(), current, plan.MustParseClock("10:30"), "a cat", &Decision{Kind: DecisionKeep})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != current {
		t.Error("keep should return the identical plan")
	}
	if gen.calls != 0 {
		t.Error("keep should not call the generator")
	}
}

func TestReviseFromCurrentState_Revise(t *testing.T) {
	newTask := &plan.Task{Name: "Help the visitor", Start: "10:30", End: "11:30"}
	newTask.SetActivities([]*plan.Activity{{Name: "stale"}})
	gen := &fakeGenerator{tasks: []*plan.Task{newTask}}
	r := newTestReviser(gen)
	current := workPlan()

	got, err := r.ReviseFromCurrentState(context.Background(), current, plan.MustParseClock("10:30"), "visitor arrived", &Decision{Kind: DecisionRevise, Summary: "help"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == current {
		t.Fatal("revise should return a new plan")
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("expected preserved Work + generated task, got %d tasks", len(got.Tasks))
	}
	if got.Tasks[0].Name != "Work" || got.Tasks[1].Name != "Help the visitor" {
		t.Errorf("unexpected order %s, %s", got.Tasks[0].Name, got.Tasks[1].Name)
	}
	if len(got.Tasks[1].Activities) != 0 {
		t.Error("generated task activities should start empty")
	}
	if len(current.Tasks) != 2 || len(current.Tasks[0].Activities) != 3 {
		t.Error("current plan should be untouched")
	}
}

func TestReviseFromCurrentState_LeavesGeneratorTasksAlone(t *testing.T) {
	current := workPlan()
	template := &plan.Task{Name: "Help the visitor", Start: "10:30", End: "11:30"}
	template.SetActivities([]*plan.Activity{{Name: "Greet", Start: "10:30", End: "10:45"}})
	// The generator hands back a cached template and a task from current.
	gen := &fakeGenerator{tasks: []*plan.Task{template, current.Tasks[1]}}
	r := newTestReviser(gen)

	got, err := r.ReviseFromCurrentState(context.Background(), current, plan.MustParseClock("10:30"), "visitor arrived", &Decision{Kind: DecisionRevise})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(got.Tasks))
	}
	for _, task := range got.Tasks[1:] {
		if task == template || task == current.Tasks[1] {
			t.Errorf("generated task %q should be a copy", task.Name)
		}
		if len(task.Activities) != 0 {
			t.Errorf("generated task %q should start without activities", task.Name)
		}
	}
	if len(template.Activities) != 1 || template.Activities[0].Name != "Greet" {
		t.Error("template activities were modified")
	}
	if len(current.Tasks[1].Activities) != 1 || current.Tasks[1].Activities[0].Name != "Eat" {
		t.Error("current plan activities were modified")
	}
}

func TestRevise_GeneratorFailureKeepsPlan(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"error", &fakeGenerator{err: errors.New("llm down")}},
		{"panic", &fakeGenerator{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReviser(tt.gen)
			current := workPlan()
			got, err := r.Revise(context.Background(), current, plan.MustParseClock("10:30"), plan.MustParseClock("09:00"), "", "")
			if err != nil {
				t.Fatalf("generator failure should not escape, got %v", err)
			}
			if got != current {
				t.Error("expected the unchanged current plan")
			}
		})
	}
}

type fakeExpander struct {
	activities []*plan.Activity
	actions    []*plan.Action
	err        error
}

func (f *fakeExpander) ExpandActivities(ctx context.Context, task *plan.Task) ([]*plan.Activity, error) {
	return f.activities, f.err
}

func (f *fakeExpander) ExpandActions(ctx context.Context, activity *plan.Activity) ([]*plan.Action, error) {
	return f.actions, f.err
}

func TestExpand(t *testing.T) {
	exp := &fakeExpander{
		activities: []*plan.Activity{{Name: "Cook soup", Start: "11:00", End: "11:30"}, nil},
		actions:    []*plan.Action{{Kind: plan.KindCook, Params: plan.CookParams{Dish: "soup"}}},
	}
	r := newTestReviser(&fakeGenerator{}, WithExpanders(exp, exp))
	ctx := context.Background()
	task := &plan.Task{Name: "Lunch prep"}

	acts, err := r.ExpandActivities(ctx, task)
	if err != nil {
		t.Fatalf("ExpandActivities failed: %v", err)
	}
	if len(acts) != 1 || len(task.Activities) != 1 {
		t.Fatalf("expected one activity stored on task, got %d/%d", len(acts), len(task.Activities))
	}
	if acts[0].Task() != task || acts[0].Status != plan.StatusPending {
		t.Errorf("activity not linked or defaulted: task=%v status=%s", acts[0].Task(), acts[0].Status)
	}

	actions, err := r.ExpandActions(ctx, acts[0])
	if err != nil {
		t.Fatalf("ExpandActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Activity() != acts[0] {
		t.Error("action not linked to its activity")
	}
}

func TestExpand_Failures(t *testing.T) {
	ctx := context.Background()

	r := newTestReviser(&fakeGenerator{})
	if _, err := r.ExpandActivities(ctx, &plan.Task{}); !IsCollaboratorError(err) {
		t.Errorf("missing expander: expected CollaboratorError, got %v", err)
	}
	if _, err := r.ExpandActions(ctx, nil); !IsInputInvalidError(err) {
		t.Errorf("nil activity: expected InputInvalidError, got %v", err)
	}

	boom := errors.New("boom")
	r = newTestReviser(&fakeGenerator{}, WithExpanders(&fakeExpander{err: boom}, &fakeExpander{err: boom}))
	task := &plan.Task{Name: "t"}
	if _, err := r.ExpandActivities(ctx, task); !errors.Is(err, boom) {
		t.Errorf("expected wrapped expander error, got %v", err)
	}
	if task.Activities != nil {
		t.Error("failed expansion should not touch the task")
	}
}

func TestPlanStore(t *testing.T) {
	ctx := context.Background()
	s := NewPlanStore(memory.NewMemoryStorage())
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := s.HasPlanForDate(ctx, "mina", day)
	if err != nil || ok {
		t.Fatalf("HasPlanForDate on empty store = %v, %v", ok, err)
	}

	if err := s.Save(ctx, "mina", day, workPlan()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	ok, err = s.HasPlanForDate(ctx, "mina", day)
	if err != nil || !ok {
		t.Fatalf("HasPlanForDate after save = %v, %v", ok, err)
	}

	loaded, err := s.Load(ctx, "mina", day)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if mustJSON(t, loaded) != mustJSON(t, workPlan()) {
		t.Error("loaded plan differs from saved plan")
	}
	if loaded.Tasks[0].Activities[0].Task() != loaded.Tasks[0] {
		t.Error("loaded plan should have parent links")
	}

	dates, err := s.Dates(ctx, "mina")
	if err != nil || len(dates) != 1 || !dates[0].Equal(day) {
		t.Errorf("Dates = %v, %v", dates, err)
	}

	if err := s.Save(ctx, "mina", day, nil); !IsInputInvalidError(err) {
		t.Errorf("expected InputInvalidError saving nil plan, got %v", err)
	}
}
