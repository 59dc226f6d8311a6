package collab

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var validate = validator.New()

// Routine is an actor's habitual day. The heuristic planner lays plans,
// activities and actions out from it.
type Routine struct {
	Home  string        `koanf:"home" json:"home"`
	Tasks []RoutineTask `koanf:"tasks" json:"tasks" validate:"min=1,dive"`
}

// RoutineTask is one block of the day.
type RoutineTask struct {
	Name        string            `koanf:"name" json:"name" validate:"required"`
	Description string            `koanf:"description" json:"description"`
	Start       string            `koanf:"start" json:"start" validate:"required"`
	End         string            `koanf:"end" json:"end" validate:"required"`
	Location    string            `koanf:"location" json:"location"`
	Priority    int               `koanf:"priority" json:"priority"`
	Activities  []RoutineActivity `koanf:"activities" json:"activities" validate:"dive"`
}

// RoutineActivity lasts Minutes; zero takes the rest of its task.
type RoutineActivity struct {
	Name        string          `koanf:"name" json:"name" validate:"required"`
	Description string          `koanf:"description" json:"description"`
	Location    string          `koanf:"location" json:"location"`
	Minutes     int             `koanf:"minutes" json:"minutes" validate:"gte=0"`
	Actions     []RoutineAction `koanf:"actions" json:"actions" validate:"dive"`
}

// RoutineAction is an action template. Params are decoded with
// plan.DecodeParamsMap when the activity is expanded.
type RoutineAction struct {
	Kind        string         `koanf:"kind" json:"kind" validate:"required"`
	Description string         `koanf:"description" json:"description"`
	Minutes     int            `koanf:"minutes" json:"minutes" validate:"gte=0"`
	Params      map[string]any `koanf:"params" json:"params"`
}

// LoadRoutine reads a routine from a yaml, json or toml file.
func LoadRoutine(path string) (*Routine, error) {
	parser, err := config.ParserFor(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("read routine %s: %w", path, err)
	}

	var r Routine
	if err := k.UnmarshalWithConf("", &r, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode routine %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("routine %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks required fields, clock formats, task ordering and that
// every action template decodes.
func (r *Routine) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}

	var prevEnd plan.Clock
	for i, t := range r.Tasks {
		start, ok1 := plan.ParseClock(t.Start)
		end, ok2 := plan.ParseClock(t.End)
		if !ok1 || !ok2 || end <= start {
			return fmt.Errorf("task %q: invalid time range %s-%s", t.Name, t.Start, t.End)
		}
		if i > 0 && start < prevEnd {
			return fmt.Errorf("task %q overlaps the previous task", t.Name)
		}
		prevEnd = end

		for _, a := range t.Activities {
			for _, act := range a.Actions {
				if _, _, err := act.decode(); err != nil {
					return fmt.Errorf("task %q activity %q: %w", t.Name, a.Name, err)
				}
			}
		}
	}
	return nil
}

func (a RoutineAction) decode() (plan.ActionKind, plan.Params, error) {
	kind, err := plan.ParseActionKind(a.Kind)
	if err != nil {
		return kind, nil, err
	}
	params, err := plan.DecodeParamsMap(kind, a.Params)
	if err != nil {
		return kind, nil, err
	}
	return kind, params, nil
}

func (r *Routine) task(name string) *RoutineTask {
	for i := range r.Tasks {
		if strings.EqualFold(r.Tasks[i].Name, name) {
			return &r.Tasks[i]
		}
	}
	return nil
}

// activity finds an activity by name, preferring the named task.
func (r *Routine) activity(taskName, name string) *RoutineActivity {
	if t := r.task(taskName); t != nil {
		for i := range t.Activities {
			if strings.EqualFold(t.Activities[i].Name, name) {
				return &t.Activities[i]
			}
		}
	}
	for i := range r.Tasks {
		for j := range r.Tasks[i].Activities {
			if strings.EqualFold(r.Tasks[i].Activities[j].Name, name) {
				return &r.Tasks[i].Activities[j]
			}
		}
	}
	return nil
}

// DefaultRoutine is a cafe worker's weekday.
func DefaultRoutine() *Routine {
	return &Routine{
		Home: "Home",
		Tasks: []RoutineTask{
			{
				Name: "Morning routine", Description: "Get up and have breakfast",
				Start: "06:00", End: "07:00", Location: "Home",
				Activities: []RoutineActivity{
					{Name: "Wash up", Minutes: 20, Actions: []RoutineAction{
						{Kind: "wait", Minutes: 20, Params: map[string]any{"minutes": 20}},
					}},
					{Name: "Breakfast", Minutes: 40, Actions: []RoutineAction{
						{Kind: "cook", Description: "Make toast", Minutes: 15, Params: map[string]any{"dish": "toast"}},
						{Kind: "wait", Description: "Eat", Minutes: 25, Params: map[string]any{"minutes": 25}},
					}},
				},
			},
			{
				Name: "Commute", Description: "Walk to the cafe",
				Start: "07:00", End: "07:30", Location: "Street",
				Activities: []RoutineActivity{
					{Name: "Walk to work", Actions: []RoutineAction{
						{Kind: "move", Minutes: 30, Params: map[string]any{"destination": "Cafe"}},
					}},
				},
			},
			{
				Name: "Morning shift", Description: "Open the cafe and serve breakfast",
				Start: "07:30", End: "12:00", Location: "Cafe", Priority: 2,
				Activities: []RoutineActivity{
					{Name: "Prepare menu", Minutes: 30, Actions: []RoutineAction{
						{Kind: "prepare_menu", Minutes: 30, Params: map[string]any{"items": []any{"coffee", "sandwich", "pastry"}}},
					}},
					{Name: "Serve customers", Actions: []RoutineAction{
						{Kind: "talk", Description: "Greet the first customer", Minutes: 10, Params: map[string]any{"target": "Customer", "message": "Good morning"}},
						{Kind: "examine", Description: "Check the order board", Minutes: 5, Params: map[string]any{"target": "Order board"}},
					}},
				},
			},
			{
				Name: "Lunch", Description: "Lunch break",
				Start: "12:00", End: "13:00", Location: "Cafe",
				Activities: []RoutineActivity{
					{Name: "Eat lunch", Actions: []RoutineAction{
						{Kind: "cook", Minutes: 25, Params: map[string]any{"dish": "pasta"}},
						{Kind: "payment", Minutes: 5, Params: map[string]any{"target": "Cafe", "amount": 8, "item": "pasta"}},
					}},
				},
			},
			{
				Name: "Afternoon shift", Description: "Serve customers",
				Start: "13:00", End: "17:00", Location: "Cafe", Priority: 2,
				Activities: []RoutineActivity{
					{Name: "Serve customers", Actions: []RoutineAction{
						{Kind: "talk", Minutes: 10, Params: map[string]any{"target": "Customer"}},
					}},
				},
			},
			{
				Name: "Clinic visit", Description: "Weekly checkup",
				Start: "17:00", End: "18:00", Location: "Clinic",
				Activities: []RoutineActivity{
					{Name: "Check in", Minutes: 15, Actions: []RoutineAction{
						{Kind: "move", Minutes: 10, Params: map[string]any{"destination": "Clinic"}},
						{Kind: "notify_receptionist", Minutes: 5, Params: map[string]any{"message": "Checkup appointment"}},
					}},
					{Name: "Checkup", Actions: []RoutineAction{
						{Kind: "notify_doctor", Minutes: 5, Params: map[string]any{"message": "Here for the weekly checkup"}},
						{Kind: "give_money", Minutes: 5, Params: map[string]any{"target": "Receptionist", "amount": 20}},
					}},
				},
			},
			{
				Name: "Evening", Description: "Dinner and chores at home",
				Start: "18:00", End: "22:00", Location: "Home",
				Activities: []RoutineActivity{
					{Name: "Go home", Minutes: 30, Actions: []RoutineAction{
						{Kind: "move", Minutes: 30, Params: map[string]any{"destination": "Home"}},
					}},
					{Name: "Dinner", Minutes: 60, Actions: []RoutineAction{
						{Kind: "put_down", Minutes: 5, Params: map[string]any{"item": "groceries", "location": "Kitchen"}},
						{Kind: "cook", Minutes: 40, Params: map[string]any{"dish": "soup"}},
					}},
					{Name: "Visit neighbor", Minutes: 30, Actions: []RoutineAction{
						{Kind: "give_item", Minutes: 10, Params: map[string]any{"target": "Neighbor", "item": "cookies"}},
						{Kind: "talk", Minutes: 20, Params: map[string]any{"target": "Neighbor"}},
					}},
					{Name: "Relax"},
				},
			},
			{
				Name: "Wind down", Description: "Get ready for bed",
				Start: "22:00", End: "23:00", Location: "Home",
			},
		},
	}
}
