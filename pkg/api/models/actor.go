// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"encoding/json"
	"time"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
)

// ActorListResponse lists the simulated actors.
type ActorListResponse struct {
	Actors []actor.Info `json:"actors"`
	Total  int          `json:"total"`
}

// PlanResponse is one actor's plan for one date.
type PlanResponse struct {
	Actor string     `json:"actor"`
	Date  string     `json:"date"`
	Plan  *plan.Plan `json:"plan"`
}

// PlanDatesResponse lists the dates an actor has a stored plan for.
type PlanDatesResponse struct {
	Actor string   `json:"actor"`
	Dates []string `json:"dates"`
}

// ReviseRequest asks for a plan revision. With a summary the plan is
// rebuilt unconditionally; otherwise the perception goes through the
// actor's own decision step.
type ReviseRequest struct {
	Perception string `json:"perception" validate:"max=4096"`
	Summary    string `json:"summary,omitempty" validate:"max=4096"`
}

// ExpandRequest names the task or activity to expand. Exactly one is set.
type ExpandRequest struct {
	Task     string `json:"task,omitempty" validate:"required_without=Activity,excluded_with=Activity"`
	Activity string `json:"activity,omitempty" validate:"required_without=Task"`
}

// ActionRequest submits one action to an actor's scheduler.
type ActionRequest struct {
	Kind   string          `json:"kind" validate:"required"`
	Params json.RawMessage `json:"params,omitempty"`
	// Wait blocks the request until the action settles.
	Wait bool `json:"wait,omitempty"`
}

// ActionResponse describes a submitted action.
type ActionResponse struct {
	TicketID   string         `json:"ticket_id"`
	Kind       string         `json:"kind"`
	Outcome    action.Outcome `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
}

// PerceptionRequest queues an observation for an actor.
type PerceptionRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

// ShortTermAppendRequest appends an entry to the short-term log.
type ShortTermAppendRequest struct {
	Kind     string          `json:"kind" validate:"required,oneof=perception decision action_start action_complete action_interrupt plan summary"`
	Content  string          `json:"content" validate:"required"`
	Details  json.RawMessage `json:"details,omitempty"`
	Location string          `json:"location,omitempty"`
	Emotions []string        `json:"emotions,omitempty"`
	// Timestamp defaults to the simulation clock.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ShortTermResponse is an actor's short-term log.
type ShortTermResponse struct {
	Actor   string                  `json:"actor"`
	Entries []memory.ShortTermEntry `json:"entries"`
	Total   int                     `json:"total"`
}

// LongTermResponse is an actor's long-term store.
type LongTermResponse struct {
	Actor   string                 `json:"actor"`
	Entries []memory.LongTermEntry `json:"entries"`
	Total   int                    `json:"total"`
}

// RecallResponse holds long-term search hits.
type RecallResponse struct {
	Actor string             `json:"actor"`
	Query string             `json:"query"`
	Hits  []memory.RecallHit `json:"hits"`
}

// BackupListResponse lists memory snapshots.
type BackupListResponse struct {
	Actor   string              `json:"actor"`
	Backups []memory.BackupInfo `json:"backups"`
}

// BackupResponse identifies a snapshot.
type BackupResponse struct {
	Actor string `json:"actor"`
	ID    string `json:"id"`
}
