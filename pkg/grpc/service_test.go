package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/sim"
	memstore "github.com/goclaw/dayloop/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type serviceEnv struct {
	client *ActorClient
	conn   *ggrpc.ClientConn
	alice  *actor.Actor
}

// newServiceEnv serves the actor service over an in-memory listener with
// alice registered at 08:00 on an instant world.
func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	clock := sim.NewClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), plan.MustParseClock("06:00"), plan.MustParseClock("23:00"), 5)
	clock.Set(plan.MustParseClock("08:00"))
	instant := make(map[plan.ActionKind]int, len(sim.DefaultDurations))
	for k := range sim.DefaultDurations {
		instant[k] = 0
	}
	world := sim.NewWorld(clock, sim.WithDurations(instant), sim.WithWorldLogger(logger.Nop()))

	bus := eventbus.NewMemoryBus()
	publisher, err := eventbus.NewPublisher("node-test", bus, eventbus.DefaultRetryConfig(), nil)
	require.NoError(t, err)

	store := memstore.NewMemoryStorage()
	alice, err := actor.New(context.Background(), "alice", actor.Deps{
		Store:  store,
		World:  world,
		Collab: collab.Heuristic(collab.DefaultRoutine(), clock.Now, collab.NewInbox()),
		Events: publisher,
		Logger: logger.Nop(),
	}, actor.Config{DayStart: plan.MustParseClock("06:00")})
	require.NoError(t, err)

	registry := actor.NewRegistry()
	require.NoError(t, registry.Add(alice))

	cfg := DefaultConfig()
	cfg.Address = "bufnet"
	cfg.Tracing = false
	srv, err := New(cfg)
	require.NoError(t, err)
	srv.RegisterService(&ActorServiceDesc, NewActorService(registry, bus, WithWatchBuffer(16)))

	lis := bufconn.Listen(1 << 20)
	require.NoError(t, srv.Serve(lis))

	conn, err := ggrpc.NewClient("passthrough:///bufnet",
		ggrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		ggrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = registry.Close(ctx)
		store.Close()
	})

	return &serviceEnv{client: NewActorClient(conn), conn: conn, alice: alice}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestActorService_ListActors(t *testing.T) {
	env := newServiceEnv(t)

	out, err := env.client.ListActors(testContext(t))
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["total"])

	actors, ok := out["actors"].([]any)
	require.True(t, ok)
	require.Len(t, actors, 1)
	assert.Equal(t, "alice", actors[0].(map[string]any)["name"])
}

func TestActorService_GetPlan(t *testing.T) {
	env := newServiceEnv(t)
	ctx := testContext(t)

	var got struct {
		Actor string     `json:"actor"`
		Date  string     `json:"date"`
		Plan  *plan.Plan `json:"plan"`
	}
	require.NoError(t, env.client.Call(ctx, "GetPlan", map[string]any{"actor": "alice"}, &got))
	assert.Equal(t, "alice", got.Actor)
	assert.Equal(t, "2025-03-01", got.Date)
	require.NotNil(t, got.Plan)
	assert.NotEmpty(t, got.Plan.Tasks)

	tests := []struct {
		name string
		req  map[string]any
		code codes.Code
	}{
		{name: "stored date", req: map[string]any{"actor": "alice", "date": "2025-03-01"}, code: codes.OK},
		{name: "missing date", req: map[string]any{"actor": "alice", "date": "2024-01-01"}, code: codes.NotFound},
		{name: "bad date", req: map[string]any{"actor": "alice", "date": "yesterday"}, code: codes.InvalidArgument},
		{name: "unknown actor", req: map[string]any{"actor": "carol"}, code: codes.NotFound},
		{name: "no actor", req: map[string]any{}, code: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.client.Call(ctx, "GetPlan", tt.req, nil)
			assert.Equal(t, tt.code, status.Code(err), "error: %v", err)
		})
	}
}

func TestActorService_RevisePlan(t *testing.T) {
	env := newServiceEnv(t)

	var res actor.RevisionResult
	err := env.client.Call(testContext(t), "RevisePlan", map[string]any{
		"actor":      "alice",
		"perception": "the cafe is flooded",
		"summary":    "deal with the flood",
	}, &res)
	require.NoError(t, err)
	assert.True(t, res.Revised)

	task := res.Plan.CurrentTask(plan.MustParseClock("08:00"))
	require.NotNil(t, task)
	assert.Equal(t, "Respond", task.Name)
}

func TestActorService_SubmitAction(t *testing.T) {
	env := newServiceEnv(t)
	ctx := testContext(t)

	var got ticketSummary
	err := env.client.Call(ctx, "SubmitAction", map[string]any{
		"actor":  "alice",
		"kind":   "wait",
		"params": map[string]any{"minutes": 0},
		"wait":   true,
	}, &got)
	require.NoError(t, err)
	assert.Equal(t, "wait", got.Kind)
	assert.NotEmpty(t, got.TicketID)
	assert.EqualValues(t, "succeeded", got.Outcome)

	tests := []struct {
		name string
		req  map[string]any
	}{
		{name: "unknown kind", req: map[string]any{"actor": "alice", "kind": "fly"}},
		{name: "invalid params", req: map[string]any{"actor": "alice", "kind": "move", "params": map[string]any{}}},
		{name: "missing kind", req: map[string]any{"actor": "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.client.Call(ctx, "SubmitAction", tt.req, nil)
			assert.Equal(t, codes.InvalidArgument, status.Code(err), "error: %v", err)
		})
	}
}

func TestActorService_DayEndAndStatus(t *testing.T) {
	env := newServiceEnv(t)
	ctx := testContext(t)

	stm := env.alice.Memory().ShortTerm()
	for _, text := range []string{"bob ordered pasta at the cafe", "the delivery van was late", "bob paid for pasta"} {
		_, err := stm.Append(ctx, memory.KindPerception, text, nil)
		require.NoError(t, err)
	}

	var report memory.RunReport
	require.NoError(t, env.client.Call(ctx, "ProcessDayEnd", map[string]any{"actor": "alice"}, &report))
	assert.Equal(t, "alice", report.Actor)
	assert.NotZero(t, report.LongTermSize)

	var st memory.Status
	require.NoError(t, env.client.Call(ctx, "GetMemoryStatus", map[string]any{"actor": "alice"}, &st))
	assert.Equal(t, report.LongTermSize, st.LongTermCount)
	assert.NotNil(t, st.LastRun)
}

func TestActorService_WatchEvents(t *testing.T) {
	env := newServiceEnv(t)
	ctx := testContext(t)

	stream, err := env.client.WatchEvents(ctx, "alice")
	require.NoError(t, err)

	_, err = env.alice.Memory().ShortTerm().Append(ctx, memory.KindPerception, "opened the cafe", nil)
	require.NoError(t, err)
	require.NoError(t, env.client.Call(ctx, "ProcessDayEnd", map[string]any{"actor": "alice"}, nil))

	for {
		ev, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, "alice", ev.Actor)
		if ev.EventType == eventbus.TypeDayEnd {
			assert.Equal(t, "node-test", ev.NodeID)
			assert.NotEmpty(t, ev.Payload)
			return
		}
	}
}

func TestActorService_WatchEventsUnknownActor(t *testing.T) {
	env := newServiceEnv(t)
	ctx := testContext(t)

	stream, err := env.client.WatchEvents(ctx, "carol")
	if err == nil {
		_, err = stream.Recv()
	}
	assert.Equal(t, codes.NotFound, status.Code(err), "error: %v", err)
}

func TestActorService_WatchEventsWithoutBus(t *testing.T) {
	svc := NewActorService(actor.NewRegistry(), nil)
	err := svc.WatchEvents(nil, nil)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestActorService_HealthReportsService(t *testing.T) {
	env := newServiceEnv(t)

	resp, err := grpc_health_v1.NewHealthClient(env.conn).Check(testContext(t), &grpc_health_v1.HealthCheckRequest{Service: ActorServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "unknown actor", err: &actor.UnknownActorError{Name: "x"}, want: codes.NotFound},
		{name: "params", err: &plan.ParamsError{Kind: plan.KindMove, Cause: context.Canceled}, want: codes.InvalidArgument},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "other", err: assert.AnError, want: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codeFor(tt.err))
		})
	}
}
