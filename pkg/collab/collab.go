// Package collab provides the planning and memory collaborators an actor
// consults: in-process heuristics driven by a daily routine, and a client
// for a remote JSON service implementing the same contracts.
package collab

import (
	"context"
	"time"

	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/planner"
	"golang.org/x/time/rate"
)

// Collaborator names, used in metrics and errors.
const (
	NamePerception = "perception"
	NameDecision   = "decision"
	NameGenerator  = "plan_generator"
	NameActivities = "activity_expander"
	NameActions    = "action_expander"
	NameSummarizer = "summarizer"
	NameChunk      = "chunk_scorer"
	NameEntry      = "entry_scorer"
)

// Set bundles every collaborator an actor needs.
type Set struct {
	Perception planner.PerceptionProvider
	Decision   planner.DecisionProvider
	Generator  planner.PlanGenerator
	Activities planner.ActivityExpander
	Actions    planner.ActionExpander
	Summarizer memory.Summarizer
	ChunkScore memory.ChunkScorer
	EntryScore memory.EntryScorer
}

// Memory returns the memory-side collaborators.
func (s Set) Memory() memory.Collaborators {
	return memory.Collaborators{
		Summarizer:  s.Summarizer,
		ChunkScorer: s.ChunkScore,
		EntryScorer: s.EntryScore,
	}
}

// MetricsRecorder receives one measurement per collaborator call.
type MetricsRecorder interface {
	RecordCall(collaborator string, success bool, duration time.Duration)
	RecordThrottle(collaborator string, wait time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordCall(string, bool, time.Duration) {}
func (nopMetrics) RecordThrottle(string, time.Duration)   {}

// NewLimiter builds a limiter for perSecond calls with the given burst.
// A non-positive rate yields nil, meaning unlimited.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// guard throttles and measures calls to one collaborator.
type guard struct {
	name    string
	limiter *rate.Limiter
	metrics MetricsRecorder
}

func (g guard) do(ctx context.Context, fn func(context.Context) error) error {
	if g.limiter != nil {
		start := time.Now()
		if err := g.limiter.Wait(ctx); err != nil {
			g.metrics.RecordCall(g.name, false, 0)
			return err
		}
		if wait := time.Since(start); wait > time.Millisecond {
			g.metrics.RecordThrottle(g.name, wait)
		}
	}

	start := time.Now()
	err := fn(ctx)
	g.metrics.RecordCall(g.name, err == nil, time.Since(start))
	return err
}

// Guard wraps every non-nil collaborator of s so that calls share limiter
// (nil means unlimited) and are reported to metrics (nil means discard).
// Calls that cannot get a token before ctx ends fail with ctx's error,
// which the reviser and memory manager treat like any collaborator failure.
func Guard(s Set, limiter *rate.Limiter, metrics MetricsRecorder) Set {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	g := func(name string) guard { return guard{name: name, limiter: limiter, metrics: metrics} }

	out := s
	if s.Perception != nil {
		out.Perception = &guardedPerception{g(NamePerception), s.Perception}
	}
	if s.Decision != nil {
		out.Decision = &guardedDecision{g(NameDecision), s.Decision}
	}
	if s.Generator != nil {
		out.Generator = &guardedGenerator{g(NameGenerator), s.Generator}
	}
	if s.Activities != nil {
		out.Activities = &guardedActivities{g(NameActivities), s.Activities}
	}
	if s.Actions != nil {
		out.Actions = &guardedActions{g(NameActions), s.Actions}
	}
	if s.Summarizer != nil {
		out.Summarizer = &guardedSummarizer{g(NameSummarizer), s.Summarizer}
	}
	if s.ChunkScore != nil {
		out.ChunkScore = &guardedChunkScorer{g(NameChunk), s.ChunkScore}
	}
	if s.EntryScore != nil {
		out.EntryScore = &guardedEntryScorer{g(NameEntry), s.EntryScore}
	}
	return out
}
