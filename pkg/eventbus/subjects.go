package eventbus

import (
	"fmt"
	"strings"
)

const (
	// SubjectPrefix is the root of every actor event subject.
	SubjectPrefix = "dayloop.v1.actor"
)

// Event types published for actors.
const (
	TypeActionQueued    = "action_queued"
	TypeActionPreempted = "action_preempted"
	TypeActionStarted   = "action_started"
	TypeActionFinished  = "action_finished"
	TypePerception      = "perception"
	TypePlanRevised     = "plan_revised"
	TypeDayEnd          = "day_end"
	TypeCompacted       = "short_term_compacted"
)

// ActorSubject returns the subject an actor's event of eventType is published on.
func ActorSubject(actor, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sanitizeSegment(actor), sanitizeSegment(eventType))
}

// ActorWildcardSubject matches every event of one actor.
func ActorWildcardSubject(actor string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sanitizeSegment(actor))
}

// AllActorsSubject matches every actor event.
func AllActorsSubject() string {
	return SubjectPrefix + ".>"
}

// sanitizeSegment keeps a name from splitting into several subject tokens
// or posing as a wildcard.
func sanitizeSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(value)
}
