package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dayloop.collab"

// Remote method paths, relative to the endpoint.
const (
	PathPerceive         = "/v1/perceive"
	PathDecide           = "/v1/decide"
	PathGenerate         = "/v1/generate"
	PathExpandActivities = "/v1/expand_activities"
	PathExpandActions    = "/v1/expand_actions"
	PathSummarize        = "/v1/summarize"
	PathScoreChunk       = "/v1/score_chunk"
	PathEvaluateEntry    = "/v1/evaluate_entry"
)

// maxErrorBody bounds how much of a failed response is kept in RemoteError.
const maxErrorBody = 512

// RemoteError is a non-2xx answer from the collaborator service.
type RemoteError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("collaborator %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// IsRemoteError returns true if err is or wraps a RemoteError.
func IsRemoteError(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

// Remote calls a collaborator service over HTTP with JSON bodies. It
// implements every collaborator interface; trace context is propagated in
// the request headers.
type Remote struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

// NewRemote creates a client for baseURL. A non-positive timeout means 30s.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tracer:  otel.Tracer(tracerName),
	}
}

// Set returns a Set whose members all call r.
func (r *Remote) Set() Set {
	return Set{
		Perception: r,
		Decision:   r,
		Generator:  r,
		Activities: r,
		Actions:    r,
		Summarizer: r,
		ChunkScore: r,
		EntryScore: r,
	}
}

func (r *Remote) call(ctx context.Context, path string, in, out any) error {
	ctx, span := r.tracer.Start(ctx, "collab.remote "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.url", r.baseURL+path))

	err := r.do(ctx, path, in, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Remote) do(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("collaborator %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type perceiveRequest struct {
	Actor string `json:"actor"`
	Now   string `json:"now"`
}

type perceiveResponse struct {
	Perception string `json:"perception"`
}

// Perceive implements planner.PerceptionProvider.
func (r *Remote) Perceive(ctx context.Context, actor string, now plan.Clock) (string, error) {
	var out perceiveResponse
	if err := r.call(ctx, PathPerceive, perceiveRequest{Actor: actor, Now: now.String()}, &out); err != nil {
		return "", err
	}
	return out.Perception, nil
}

type decideRequest struct {
	Perception string     `json:"perception"`
	Plan       *plan.Plan `json:"plan"`
	Now        string     `json:"now"`
}

// Decide implements planner.DecisionProvider. The service answers with a
// planner.Decision.
func (r *Remote) Decide(ctx context.Context, perception string, current *plan.Plan, now plan.Clock) (*planner.Decision, error) {
	var out planner.Decision
	if err := r.call(ctx, PathDecide, decideRequest{Perception: perception, Plan: current, Now: now.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type generateRequest struct {
	Perception string     `json:"perception"`
	Summary    string     `json:"summary"`
	Plan       *plan.Plan `json:"plan"`
}

type generateResponse struct {
	Tasks []*plan.Task `json:"high_level_tasks"`
}

// Generate implements planner.PlanGenerator.
func (r *Remote) Generate(ctx context.Context, perception, summary string, current *plan.Plan) ([]*plan.Task, error) {
	var out generateResponse
	if err := r.call(ctx, PathGenerate, generateRequest{Perception: perception, Summary: summary, Plan: current}, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

type expandActivitiesResponse struct {
	Activities []*plan.Activity `json:"detailed_activities"`
}

// ExpandActivities implements planner.ActivityExpander.
func (r *Remote) ExpandActivities(ctx context.Context, task *plan.Task) ([]*plan.Activity, error) {
	var out expandActivitiesResponse
	if err := r.call(ctx, PathExpandActivities, task, &out); err != nil {
		return nil, err
	}
	return out.Activities, nil
}

type expandActionsRequest struct {
	Task     string         `json:"task_name,omitempty"`
	Activity *plan.Activity `json:"activity"`
}

type expandActionsResponse struct {
	Actions []*plan.Action `json:"specific_actions"`
}

// ExpandActions implements planner.ActionExpander.
func (r *Remote) ExpandActions(ctx context.Context, activity *plan.Activity) ([]*plan.Action, error) {
	in := expandActionsRequest{Activity: activity}
	if t := activity.Task(); t != nil {
		in.Task = t.Name
	}
	var out expandActionsResponse
	if err := r.call(ctx, PathExpandActions, in, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

type summarizeRequest struct {
	Entries []memory.ShortTermEntry `json:"entries"`
}

// Summarize implements memory.Summarizer.
func (r *Remote) Summarize(ctx context.Context, entries []memory.ShortTermEntry) (*memory.SummaryResult, error) {
	var out memory.SummaryResult
	if err := r.call(ctx, PathSummarize, summarizeRequest{Entries: entries}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type scoreChunkResponse struct {
	Score *memory.ChunkScore `json:"score"`
}

// ScoreChunk implements memory.ChunkScorer. A null score means no opinion.
func (r *Remote) ScoreChunk(ctx context.Context, chunk memory.Chunk) (*memory.ChunkScore, error) {
	var out scoreChunkResponse
	if err := r.call(ctx, PathScoreChunk, chunk, &out); err != nil {
		return nil, err
	}
	return out.Score, nil
}

type evaluateEntryRequest struct {
	Entries []memory.LongTermEntry `json:"entries"`
	Index   int                    `json:"index"`
	Now     time.Time              `json:"now"`
}

type evaluateEntryResponse struct {
	Decision *memory.EntryDecision `json:"decision"`
}

// EvaluateEntry implements memory.EntryScorer. A null decision means keep.
func (r *Remote) EvaluateEntry(ctx context.Context, store []memory.LongTermEntry, index int, now time.Time) (*memory.EntryDecision, error) {
	var out evaluateEntryResponse
	if err := r.call(ctx, PathEvaluateEntry, evaluateEntryRequest{Entries: store, Index: index, Now: now}, &out); err != nil {
		return nil, err
	}
	return out.Decision, nil
}
