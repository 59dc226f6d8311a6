package collab

import (
	"context"
	"strings"
	"sync"

	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
)

// Inbox is a PerceptionProvider fed by the outside world: the API pushes
// observations and the actor drains them on its next perception.
type Inbox struct {
	mu      sync.Mutex
	pending map[string][]string
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{pending: make(map[string][]string)}
}

// Push queues an observation for actor. Blank text is ignored.
func (in *Inbox) Push(actor, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.pending[actor] = append(in.pending[actor], text)
}

// Pending returns how many observations wait for actor.
func (in *Inbox) Pending(actor string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending[actor])
}

// Perceive drains actor's observations, joined with "; ". It returns ""
// when nothing happened.
func (in *Inbox) Perceive(ctx context.Context, actor string, now plan.Clock) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	in.mu.Lock()
	items := in.pending[actor]
	delete(in.pending, actor)
	in.mu.Unlock()
	return strings.Join(items, "; "), nil
}

// DefaultTriggers are words that make KeywordDecider revise.
var DefaultTriggers = []string{
	"urgent", "emergency", "help", "fire", "injured", "sick", "accident",
	"closed", "cancelled", "invite", "invited", "asks", "visitor",
}

// KeywordDecider revises the plan when a perception mentions a trigger
// word. Empty perceptions always keep the plan.
type KeywordDecider struct {
	triggers []string
}

// NewKeywordDecider creates a decider; no triggers means DefaultTriggers.
func NewKeywordDecider(triggers ...string) *KeywordDecider {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	return &KeywordDecider{triggers: lowerAll(triggers)}
}

// Decide implements planner.DecisionProvider.
func (d *KeywordDecider) Decide(ctx context.Context, perception string, current *plan.Plan, now plan.Clock) (*planner.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ToLower(perception)
	for _, t := range d.triggers {
		if containsWord(text, t) {
			return &planner.Decision{Kind: planner.DecisionRevise, Summary: strings.TrimSpace(perception)}, nil
		}
	}
	return &planner.Decision{Kind: planner.DecisionKeep}, nil
}

// containsWord matches word on letter boundaries.
func containsWord(text, word string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
