package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/sim"
	memstore "github.com/goclaw/dayloop/pkg/storage/memory"
)

var testDate = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	registry *actor.Registry
	inbox    *collab.Inbox
	clock    *sim.Clock
	router   chi.Router
}

// newTestEnv registers alice at 08:00 on an instant world and mounts the
// actor and memory handlers the way the API router does.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := sim.NewClock(testDate, plan.MustParseClock("06:00"), plan.MustParseClock("23:00"), 5)
	clock.Set(plan.MustParseClock("08:00"))

	instant := make(map[plan.ActionKind]int, len(sim.DefaultDurations))
	for k := range sim.DefaultDurations {
		instant[k] = 0
	}
	world := sim.NewWorld(clock, sim.WithDurations(instant), sim.WithWorldLogger(logger.Nop()))
	store := memstore.NewMemoryStorage()
	inbox := collab.NewInbox()

	a, err := actor.New(context.Background(), "alice", actor.Deps{
		Store:  store,
		World:  world,
		Collab: collab.Heuristic(collab.DefaultRoutine(), clock.Now, inbox),
		Logger: logger.Nop(),
	}, actor.Config{DayStart: plan.MustParseClock("06:00")})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	registry := actor.NewRegistry()
	if err := registry.Add(a); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		registry.Close(ctx)
		store.Close()
	})

	actors := NewActorHandler(registry, inbox, logger.Nop())
	mem := NewMemoryHandler(registry, logger.Nop())

	r := chi.NewRouter()
	r.Get("/api/v1/actors", actors.ListActors)
	r.Route("/api/v1/actors/{name}", func(r chi.Router) {
		r.Get("/", actors.GetActor)
		r.Get("/plan", actors.GetPlan)
		r.Get("/plans", actors.ListPlanDates)
		r.Post("/plan/revise", actors.RevisePlan)
		r.Post("/plan/expand", actors.ExpandPlan)
		r.Post("/actions", actors.SubmitAction)
		r.Get("/actions/stats", actors.ActionStats)
		r.Post("/perceptions", actors.PushPerception)

		r.Get("/memory/short-term", mem.GetShortTerm)
		r.Post("/memory/short-term", mem.AppendShortTerm)
		r.Get("/memory/long-term", mem.GetLongTerm)
		r.Get("/memory/long-term/search", mem.SearchLongTerm)
		r.Post("/memory/day-end", mem.ProcessDayEnd)
		r.Post("/memory/compact", mem.CompactShortTerm)
		r.Get("/memory/status", mem.GetStatus)
		r.Get("/memory/backups", mem.ListBackups)
		r.Post("/memory/backups", mem.CreateBackup)
		r.Post("/memory/backups/{id}/restore", mem.RestoreBackup)
	})

	return &testEnv{registry: registry, inbox: inbox, clock: clock, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) alice(t *testing.T) *actor.Actor {
	t.Helper()
	a, err := e.registry.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	return a
}
