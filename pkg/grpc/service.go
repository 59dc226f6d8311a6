package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
	"github.com/goclaw/dayloop/pkg/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ActorServiceName is the fully qualified gRPC service name.
const ActorServiceName = "dayloop.v1.ActorService"

const defaultWatchBuffer = 256

// ActorServiceServer is the server API for the actor service. Requests and
// responses are protobuf Structs carrying the same JSON shapes as the HTTP API.
type ActorServiceServer interface {
	ListActors(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevisePlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMemoryStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessDayEnd(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

// ActorServiceDesc describes the actor service for grpc.Server.RegisterService.
var ActorServiceDesc = grpc.ServiceDesc{
	ServiceName: ActorServiceName,
	HandlerType: (*ActorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListActors", ActorServiceServer.ListActors),
		unaryMethod("GetPlan", ActorServiceServer.GetPlan),
		unaryMethod("RevisePlan", ActorServiceServer.RevisePlan),
		unaryMethod("SubmitAction", ActorServiceServer.SubmitAction),
		unaryMethod("GetMemoryStatus", ActorServiceServer.GetMemoryStatus),
		unaryMethod("ProcessDayEnd", ActorServiceServer.ProcessDayEnd),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "dayloop/v1/actor.proto",
}

func unaryMethod[Req any](name string, call func(ActorServiceServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ActorServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(ActorServiceServer)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(svc, ctx, req.(*Req))
			})
		},
	}
}

func watchEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ActorServiceServer).WatchEvents(in, stream)
}

type actorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type getPlanRequest struct {
	Actor string `json:"actor" validate:"required"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type revisePlanRequest struct {
	Actor      string `json:"actor" validate:"required"`
	Perception string `json:"perception" validate:"max=4096"`
	Summary    string `json:"summary" validate:"max=4096"`
}

type submitActionRequest struct {
	Actor  string         `json:"actor" validate:"required"`
	Kind   string         `json:"kind" validate:"required"`
	Params map[string]any `json:"params"`
	Wait   bool           `json:"wait"`
}

type watchEventsRequest struct {
	Actor string `json:"actor"`
}

// ActorService exposes the actor registry over gRPC.
type ActorService struct {
	registry *actor.Registry
	bus      *eventbus.MemoryBus
	logger   logger.Logger
	validate *validator.Validate
	buffer   int
}

var _ ActorServiceServer = (*ActorService)(nil)

// ActorServiceOption configures an ActorService.
type ActorServiceOption func(*ActorService)

// WithServiceLogger sets the service logger.
func WithServiceLogger(l logger.Logger) ActorServiceOption {
	return func(s *ActorService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWatchBuffer sets the per-stream bus subscription buffer.
func WithWatchBuffer(n int) ActorServiceOption {
	return func(s *ActorService) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NewActorService creates the service. bus may be nil, in which case
// WatchEvents reports Unavailable.
func NewActorService(registry *actor.Registry, bus *eventbus.MemoryBus, opts ...ActorServiceOption) *ActorService {
	s := &ActorService{
		registry: registry,
		bus:      bus,
		logger:   logger.Nop(),
		validate: validator.New(),
		buffer:   defaultWatchBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListActors returns every registered actor.
func (s *ActorService) ListActors(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	infos := make([]actor.Info, 0)
	for _, a := range s.registry.All() {
		infos = append(infos, a.Info())
	}
	return toStruct(map[string]any{"actors": infos, "total": len(infos)})
}

// GetPlan returns today's plan, or the stored plan for date.
func (s *ActorService) GetPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req getPlanRequest
	a, err := s.lookup(in, &req, func() string { return req.Actor })
	if err != nil {
		return nil, err
	}

	var p *plan.Plan
	date := req.Date
	if date != "" {
		day, _ := time.Parse(time.DateOnly, date)
		p, err = a.PlanFor(ctx, day)
	} else {
		date = a.Info().Date
		p, err = a.Plan(ctx)
	}
	if err != nil {
		return nil, s.statusError(ctx, err, "plan load")
	}
	return toStruct(map[string]any{"actor": a.Name(), "date": date, "plan": p})
}

// RevisePlan runs one revision round. An empty perception revises from the
// actor's current state.
func (s *ActorService) RevisePlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req revisePlanRequest
	a, err := s.lookup(in, &req, func() string { return req.Actor })
	if err != nil {
		return nil, err
	}

	var res *actor.RevisionResult
	if req.Perception == "" && req.Summary == "" {
		res, err = a.ReviseFromCurrentState(ctx)
	} else {
		res, err = a.Revise(ctx, req.Perception, req.Summary)
	}
	if err != nil {
		return nil, s.statusError(ctx, err, "plan revision")
	}
	return toStruct(res)
}

// SubmitAction queues an action and optionally waits for it to settle.
func (s *ActorService) SubmitAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req submitActionRequest
	a, err := s.lookup(in, &req, func() string { return req.Actor })
	if err != nil {
		return nil, err
	}

	kind, err := plan.ParseActionKind(req.Kind)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	params, err := plan.DecodeParamsMap(kind, req.Params)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	t := a.SubmitAction(kind, params)
	if req.Wait {
		// a cancelled wait leaves the action running; report it as it stands
		_ = t.Wait(ctx)
	}
	return toStruct(ticketView(t))
}

// GetMemoryStatus reports the actor's memory counters.
func (s *ActorService) GetMemoryStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req actorRequest
	a, err := s.lookup(in, &req, func() string { return req.Actor })
	if err != nil {
		return nil, err
	}
	st, err := a.Memory().Status(ctx)
	if err != nil {
		return nil, s.statusError(ctx, err, "memory status")
	}
	return toStruct(st)
}

// ProcessDayEnd runs end-of-day consolidation for one actor.
func (s *ActorService) ProcessDayEnd(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req actorRequest
	a, err := s.lookup(in, &req, func() string { return req.Actor })
	if err != nil {
		return nil, err
	}
	report, err := a.ProcessDayEndMemory(ctx)
	if err != nil {
		return nil, s.statusError(ctx, err, "day end")
	}
	return toStruct(report)
}

// WatchEvents streams event envelopes for one actor, or for all actors when
// the request names none, until the client goes away.
func (s *ActorService) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	if s.bus == nil {
		return status.Error(codes.Unavailable, "event streaming is not enabled")
	}
	var req watchEventsRequest
	if err := s.decode(in, &req); err != nil {
		return err
	}

	pattern := eventbus.AllActorsSubject()
	if req.Actor != "" {
		if _, err := s.registry.Get(req.Actor); err != nil {
			return status.Error(codes.NotFound, err.Error())
		}
		pattern = eventbus.ActorWildcardSubject(req.Actor)
	}

	sub, err := s.bus.Subscribe(pattern, s.buffer)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	defer sub.Close()

	ctx := stream.Context()
	consumer := eventbus.NewEnvelopeConsumer(0)
	s.logger.DebugContext(ctx, "event stream opened", "pattern", pattern)
	defer func() {
		s.logger.DebugContext(ctx, "event stream closed", "pattern", pattern, "dropped", sub.Dropped())
	}()

	// tell the client the subscription is live before any event arrives
	if err := stream.SendHeader(nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			env, dup, err := consumer.Decode(msg.Payload)
			if err != nil {
				s.logger.WarnContext(ctx, "dropping undecodable event", "subject", msg.Subject, "error", err)
				continue
			}
			if dup {
				continue
			}
			out, err := toStruct(env)
			if err != nil {
				s.logger.WarnContext(ctx, "dropping unconvertible event", "event_id", env.EventID, "error", err)
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

// lookup decodes in into req and resolves the actor it names.
func (s *ActorService) lookup(in *structpb.Struct, req any, name func() string) (*actor.Actor, error) {
	if err := s.decode(in, req); err != nil {
		return nil, err
	}
	a, err := s.registry.Get(name())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return a, nil
}

func (s *ActorService) decode(in *structpb.Struct, req any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// statusError maps domain errors onto gRPC codes. Internal failures are
// logged and their detail is not returned to the caller.
func (s *ActorService) statusError(ctx context.Context, err error, what string) error {
	code := codeFor(err)
	if code == codes.Internal {
		s.logger.ErrorContext(ctx, what+" failed", "error", err)
		return status.Error(code, what+" failed")
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	var paramsErr *plan.ParamsError
	switch {
	case actor.IsUnknownActorError(err), storage.IsNotFound(err):
		return codes.NotFound
	case errors.As(err, &paramsErr),
		action.IsUnknownKindError(err),
		planner.IsInputInvalidError(err),
		memory.IsInputInvalidError(err):
		return codes.InvalidArgument
	case errors.Is(err, action.ErrSchedulerClosed):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

type ticketSummary struct {
	TicketID   string         `json:"ticket_id"`
	Kind       string         `json:"kind"`
	Outcome    action.Outcome `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
}

func ticketView(t *action.Ticket) ticketSummary {
	out := ticketSummary{
		TicketID: t.ID,
		Kind:     string(t.Kind),
		Outcome:  t.Outcome(),
	}
	if err := t.Err(); err != nil {
		out.Error = err.Error()
	}
	if d := t.Duration(); d > 0 {
		out.DurationMS = d.Milliseconds()
	}
	return out
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
