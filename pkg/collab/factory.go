package collab

import (
	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/plan"
)

// Mode values accepted in CollaboratorConfig.
const (
	ModeHeuristic = "heuristic"
	ModeRemote    = "remote"
)

// Heuristic returns the in-process collaborators. inbox feeds perceptions
// and may be nil, in which case the actor never perceives anything.
func Heuristic(routine *Routine, now func() plan.Clock, inbox *Inbox) Set {
	rp := NewRoutinePlanner(routine, now)
	s := Set{
		Decision:   NewKeywordDecider(),
		Generator:  rp,
		Activities: rp,
		Actions:    rp,
		Summarizer: NewGapSummarizer(0, 0),
		ChunkScore: NewKeywordScorer(),
		EntryScore: NewOverlapScorer(0, 0),
	}
	if inbox != nil {
		s.Perception = inbox
	}
	return s
}

// New builds the collaborator set selected by cfg and wraps it with a
// shared rate limiter. In remote mode a non-nil inbox still supplies
// perceptions, so observations pushed through the API reach the actor.
func New(cfg config.CollaboratorConfig, routine *Routine, now func() plan.Clock, inbox *Inbox, metrics MetricsRecorder) Set {
	var s Set
	switch cfg.Mode {
	case ModeRemote:
		s = NewRemote(cfg.Endpoint, cfg.Timeout).Set()
		if inbox != nil {
			s.Perception = inbox
		}
	default:
		s = Heuristic(routine, now, inbox)
	}
	return Guard(s, NewLimiter(cfg.RateLimit, cfg.Burst), metrics)
}
