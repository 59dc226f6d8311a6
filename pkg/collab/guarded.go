package collab

import (
	"context"
	"time"

	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
)

type guardedPerception struct {
	guard
	next planner.PerceptionProvider
}

func (g *guardedPerception) Perceive(ctx context.Context, actor string, now plan.Clock) (out string, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.Perceive(ctx, actor, now)
		return err
	})
	return out, err
}

type guardedDecision struct {
	guard
	next planner.DecisionProvider
}

func (g *guardedDecision) Decide(ctx context.Context, perception string, current *plan.Plan, now plan.Clock) (out *planner.Decision, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.Decide(ctx, perception, current, now)
		return err
	})
	return out, err
}

type guardedGenerator struct {
	guard
	next planner.PlanGenerator
}

func (g *guardedGenerator) Generate(ctx context.Context, perception, summary string, current *plan.Plan) (out []*plan.Task, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.Generate(ctx, perception, summary, current)
		return err
	})
	return out, err
}

type guardedActivities struct {
	guard
	next planner.ActivityExpander
}

func (g *guardedActivities) ExpandActivities(ctx context.Context, task *plan.Task) (out []*plan.Activity, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.ExpandActivities(ctx, task)
		return err
	})
	return out, err
}

type guardedActions struct {
	guard
	next planner.ActionExpander
}

func (g *guardedActions) ExpandActions(ctx context.Context, activity *plan.Activity) (out []*plan.Action, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.ExpandActions(ctx, activity)
		return err
	})
	return out, err
}

type guardedSummarizer struct {
	guard
	next memory.Summarizer
}

func (g *guardedSummarizer) Summarize(ctx context.Context, entries []memory.ShortTermEntry) (out *memory.SummaryResult, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.Summarize(ctx, entries)
		return err
	})
	return out, err
}

type guardedChunkScorer struct {
	guard
	next memory.ChunkScorer
}

func (g *guardedChunkScorer) ScoreChunk(ctx context.Context, chunk memory.Chunk) (out *memory.ChunkScore, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.ScoreChunk(ctx, chunk)
		return err
	})
	return out, err
}

type guardedEntryScorer struct {
	guard
	next memory.EntryScorer
}

func (g *guardedEntryScorer) EvaluateEntry(ctx context.Context, store []memory.LongTermEntry, index int, now time.Time) (out *memory.EntryDecision, err error) {
	err = g.do(ctx, func(ctx context.Context) error {
		out, err = g.next.EvaluateEntry(ctx, store, index, now)
		return err
	})
	return out, err
}
