package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
)

// actionDetails is the JSON stored with action entries of the short-term
// log. The summarizer reads the people involved from params.
type actionDetails struct {
	TicketID string          `json:"ticket_id"`
	Kind     plan.ActionKind `json:"kind"`
	Params   plan.Params     `json:"params,omitempty"`
	Outcome  action.Outcome  `json:"outcome,omitempty"`
	Error    string          `json:"error,omitempty"`
	Seconds  float64         `json:"duration_seconds,omitempty"`
}

// actionEvent is the payload published for scheduler events.
type actionEvent struct {
	TicketID string          `json:"ticket_id"`
	Kind     plan.ActionKind `json:"kind"`
	Params   plan.Params     `json:"params,omitempty"`
	Outcome  action.Outcome  `json:"outcome,omitempty"`
	Error    string          `json:"error,omitempty"`
	Location string          `json:"location"`
}

// observe records scheduler events in the short-term log and republishes
// them. It runs on the scheduler's goroutines and never takes a.mu.
func (a *Actor) observe(ev action.Event) {
	ctx := context.Background()
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	payload := actionEvent{
		TicketID: ev.TicketID,
		Kind:     ev.Kind,
		Params:   ev.Params,
		Outcome:  ev.Outcome,
		Error:    errText,
		Location: a.world.Location(a.name),
	}

	switch ev.Type {
	case action.EventQueued:
		a.publish(ctx, eventbus.TypeActionQueued, payload)
	case action.EventPreempted:
		a.publish(ctx, eventbus.TypeActionPreempted, payload)
	case action.EventStarted:
		a.remember(ctx, memory.KindActionStart, "started to "+describe(ev.Kind, ev.Params), actionDetails{
			TicketID: ev.TicketID,
			Kind:     ev.Kind,
			Params:   ev.Params,
		})
		a.publish(ctx, eventbus.TypeActionStarted, payload)
	case action.EventFinished:
		kind := memory.KindActionComplete
		content := describe(ev.Kind, ev.Params)
		switch ev.Outcome {
		case action.OutcomeSucceeded:
			content = "finished: " + content
		case action.OutcomeInterrupted:
			kind = memory.KindActionInterrupt
			content = "stopped before finishing: " + content
		default:
			content = fmt.Sprintf("failed to %s: %s", content, errText)
		}
		a.remember(ctx, kind, content, actionDetails{
			TicketID: ev.TicketID,
			Kind:     ev.Kind,
			Params:   ev.Params,
			Outcome:  ev.Outcome,
			Error:    errText,
			Seconds:  ev.Duration.Seconds(),
		})
		a.publish(ctx, eventbus.TypeActionFinished, payload)
	}
}

// describe renders an action as a short English phrase.
func describe(kind plan.ActionKind, params plan.Params) string {
	switch p := params.(type) {
	case plan.MoveParams:
		return "go to " + p.Destination
	case plan.TalkParams:
		if p.Message != "" {
			return fmt.Sprintf("tell %s %q", p.Target, p.Message)
		}
		return "talk to " + p.Target
	case plan.PutDownParams:
		if p.Location != "" {
			return fmt.Sprintf("put down %s at %s", p.Item, p.Location)
		}
		return "put down " + p.Item
	case plan.GiveMoneyParams:
		return fmt.Sprintf("give %d to %s", p.Amount, p.Target)
	case plan.GiveItemParams:
		return fmt.Sprintf("give %s to %s", p.Item, p.Target)
	case plan.ExamineParams:
		return "examine " + p.Target
	case plan.NotifyReceptionistParams:
		return "notify the receptionist"
	case plan.PrepareMenuParams:
		return "prepare a menu of " + strings.Join(p.Items, ", ")
	case plan.NotifyDoctorParams:
		return "notify the doctor about " + p.Patient
	case plan.CookParams:
		return "cook " + p.Dish
	case plan.WaitParams:
		return fmt.Sprintf("wait %d minutes", p.Minutes)
	case plan.PaymentParams:
		if p.Item != "" {
			return fmt.Sprintf("pay %s %d for %s", p.Target, p.Amount, p.Item)
		}
		return fmt.Sprintf("pay %s %d", p.Target, p.Amount)
	default:
		return strings.ReplaceAll(string(kind), "_", " ")
	}
}

func marshalDetails(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

type planSummary struct {
	Tasks []taskSummary `json:"tasks"`
}

type taskSummary struct {
	Name     string `json:"name"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location,omitempty"`
}

func planDetails(p *plan.Plan) planSummary {
	out := planSummary{Tasks: make([]taskSummary, 0, len(p.Tasks))}
	for _, t := range p.Tasks {
		out.Tasks = append(out.Tasks, taskSummary{Name: t.Name, Start: t.Start, End: t.End, Location: t.Location})
	}
	return out
}
