package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/api"
	"github.com/goclaw/dayloop/pkg/api/handlers"
	"github.com/goclaw/dayloop/pkg/collab"
	"github.com/goclaw/dayloop/pkg/eventbus"
	grpcpkg "github.com/goclaw/dayloop/pkg/grpc"
	"github.com/goclaw/dayloop/pkg/grpc/interceptors"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/metrics"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/sim"
	"github.com/goclaw/dayloop/pkg/storage"
	"github.com/goclaw/dayloop/pkg/storage/badger"
	"github.com/goclaw/dayloop/pkg/storage/memory"
	"github.com/goclaw/dayloop/pkg/storage/redis"
	"github.com/goclaw/dayloop/pkg/storage/sqlite"
	"github.com/goclaw/dayloop/pkg/telemetry/tracing"
	"github.com/goclaw/dayloop/pkg/version"
	goredis "github.com/redis/go-redis/v9"
)

// app owns every long-lived component of a dayloop process.
type app struct {
	cfg *config.Config
	log logger.Logger

	store     storage.DocumentStore
	metrics   *metrics.Manager
	bus       *eventbus.MemoryBus
	publisher *eventbus.Publisher
	relay     *goredis.Client
	nodeID    string

	clock    *sim.Clock
	world    *sim.World
	inbox    *collab.Inbox
	registry *actor.Registry
	runner   *actor.Runner

	http       *api.HTTPServer
	events     *handlers.EventStream
	grpc       *grpcpkg.Server
	stopTraces tracing.ShutdownFunc

	wg sync.WaitGroup
}

// newApp wires the process from cfg. Components that need ctx only for
// setup (storage dial, tracing exporter) use it here; background loops are
// started by run.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, nodeID: nodeID(cfg)}
	if err := a.build(ctx); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg
	var err error
	a.stopTraces, err = tracing.Init(ctx, cfg.Tracing, tracing.ServiceInfo{
		Name:       cfg.App.Name,
		Version:    version.Version,
		InstanceID: a.nodeID,
		Actors:     cfg.Simulation.Actors,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	a.store, err = openStore(ctx, cfg.Storage)
	if err != nil {
		a.store = nil
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Type, err)
	}
	a.log.Info("Storage ready", "type", cfg.Storage.Type)

	mc := metrics.DefaultConfig()
	mc.Enabled = cfg.Metrics.Enabled
	mc.Port = cfg.Metrics.Port
	mc.Path = cfg.Metrics.Path
	a.metrics = metrics.NewManager(mc)

	if err := a.buildEventBus(); err != nil {
		return err
	}
	if err := a.buildActors(ctx); err != nil {
		return err
	}
	return a.buildServers()
}

func (a *app) buildEventBus() error {
	a.bus = eventbus.NewMemoryBus()

	var transport eventbus.Transport = a.bus
	if a.cfg.EventBus.RedisRelay {
		a.relay = goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.Storage.Redis.Address,
			Password: a.cfg.Storage.Redis.Password,
			DB:       a.cfg.Storage.Redis.DB,
		})
		transport = eventbus.Fanout{a.bus, eventbus.NewRedisTransport(a.relay)}
	}

	publisher, err := eventbus.NewPublisher(a.nodeID, transport, eventbus.DefaultRetryConfig(), a.metrics)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	a.publisher = publisher
	return nil
}

func (a *app) buildActors(ctx context.Context) error {
	sc := a.cfg.Simulation
	startDate, err := a.cfg.StartDate()
	if err != nil {
		return fmt.Errorf("simulation start date: %w", err)
	}
	dayStart, ok := plan.ParseClock(sc.DayStart)
	if !ok {
		return fmt.Errorf("simulation day_start %q is not HH:MM", sc.DayStart)
	}
	dayEnd, ok := plan.ParseClock(sc.DayEnd)
	if !ok {
		return fmt.Errorf("simulation day_end %q is not HH:MM", sc.DayEnd)
	}
	defaultTS, err := a.cfg.DefaultTimestamp()
	if err != nil {
		return fmt.Errorf("memory default timestamp: %w", err)
	}

	routine := collab.DefaultRoutine()
	if sc.RoutinePath != "" {
		if routine, err = collab.LoadRoutine(sc.RoutinePath); err != nil {
			return fmt.Errorf("load routine: %w", err)
		}
	}

	a.clock = sim.NewClock(startDate, dayStart, dayEnd, sc.MinutesPerTick)
	a.world = sim.NewWorld(a.clock,
		sim.WithArrivalTimeout(sc.ArrivalTimeout),
		sim.WithWorldLogger(a.log),
	)
	a.inbox = collab.NewInbox()
	collaborators := collab.New(a.cfg.Collaborator, routine, a.clock.Now, a.inbox, a.metrics)

	a.registry = actor.NewRegistry()
	for _, name := range sc.Actors {
		act, err := actor.New(ctx, name, actor.Deps{
			Store:   a.store,
			World:   a.world,
			Collab:  collaborators,
			Events:  a.publisher,
			Logger:  a.log,
			Metrics: a.metrics,
		}, actor.Config{
			DayStart:         dayStart,
			RetentionRate:    a.cfg.Memory.RetentionRate,
			ShortTermKeep:    a.cfg.Memory.ShortTermKeep,
			BackupOnDayEnd:   a.cfg.Memory.BackupOnDayEnd,
			DefaultTimestamp: defaultTS,
		})
		if err != nil {
			return fmt.Errorf("create actor %s: %w", name, err)
		}
		if err := a.registry.Add(act); err != nil {
			_ = act.Close(ctx)
			return err
		}
	}

	a.runner = actor.NewRunner(a.registry, a.world, actor.RunnerConfig{
		TickInterval: sc.TickInterval,
		CompactAbove: a.cfg.Memory.ShortTermKeep * 4,
		CompactKeep:  a.cfg.Memory.ShortTermKeep,
	}, a.log)
	return nil
}

func (a *app) buildServers() error {
	a.events = handlers.NewEventStream(a.log, handlers.EventStreamConfig{
		AllowedOrigins: a.cfg.Server.CORS.AllowedOrigins,
	})
	apiHandlers := &api.Handlers{
		Actors: handlers.NewActorHandler(a.registry, a.inbox, a.log),
		Memory: handlers.NewMemoryHandler(a.registry, a.log),
		Health: handlers.NewHealthHandler(a.registry),
		Events: a.events,
	}
	if a.metrics.Enabled() {
		apiHandlers.Metrics = a.metrics
	}
	a.http = api.NewHTTPServer(a.cfg, a.log, apiHandlers)

	if !a.cfg.Server.GRPC.Enabled {
		return nil
	}
	opts := []grpcpkg.Option{grpcpkg.WithLogger(a.log.With("component", "grpc"))}
	if a.metrics.Enabled() {
		opts = append(opts, grpcpkg.WithMetrics(interceptors.NewMetrics(a.metrics.Registerer())))
	}
	grpcCfg := a.cfg.Server.GRPC.ToGRPCConfig(a.cfg.Server.Host, a.cfg.Tracing.Enabled)
	srv, err := grpcpkg.New(grpcCfg, opts...)
	if err != nil {
		return fmt.Errorf("create grpc server: %w", err)
	}
	srv.RegisterService(&grpcpkg.ActorServiceDesc, grpcpkg.NewActorService(a.registry, a.bus,
		grpcpkg.WithServiceLogger(a.log),
		grpcpkg.WithWatchBuffer(a.cfg.EventBus.Buffer),
	))
	a.grpc = srv
	return nil
}

// run starts every server and loop and blocks until ctx ends or a server
// fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	sub, err := a.bus.Subscribe(eventbus.AllActorsSubject(), a.cfg.EventBus.Buffer)
	if err != nil {
		return fmt.Errorf("subscribe websocket pump: %w", err)
	}
	a.goRun(func() {
		defer sub.Close()
		a.events.Pump(ctx, sub)
	})

	if a.relay != nil {
		a.goRun(func() {
			if err := eventbus.Relay(ctx, a.relay, a.bus, a.nodeID, a.log.With("component", "relay")); err != nil {
				a.log.Error("Event relay stopped", "error", err)
			}
		})
	}

	if a.metrics.Enabled() {
		a.goRun(func() {
			a.log.Info("Starting metrics server", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
			if err := a.metrics.StartServer(ctx, a.cfg.Metrics.Port, a.cfg.Metrics.Path); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Metrics server error", "error", err)
			}
		})
	}

	go func() {
		if err := a.http.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.grpc != nil {
		if err := a.grpc.Start(); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}

	if a.cfg.Simulation.AutoStart {
		a.goRun(func() {
			if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("Simulation runner stopped", "error", err)
			}
		})
	}

	a.log.Info("dayloop is running",
		"node", a.nodeID,
		"actors", a.registry.Names(),
		"http_port", a.cfg.Server.Port,
		"grpc_enabled", a.grpc != nil,
		"auto_start", a.cfg.Simulation.AutoStart,
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutdown requested")
	case runErr = <-errCh:
		a.log.Error("Server failed", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer shutdownCancel()
	a.shutdown(shutdownCtx, cancel)
	return runErr
}

// shutdown drains servers first so no new work reaches the actors, then
// stops the background loops and releases resources.
func (a *app) shutdown(ctx context.Context, stopLoops context.CancelFunc) {
	a.log.Info("Shutting down HTTP server")
	if err := a.http.Shutdown(ctx); err != nil {
		a.log.Error("Error shutting down HTTP server", "error", err)
	}
	if a.grpc != nil {
		a.log.Info("Stopping gRPC server")
		if err := a.grpc.Stop(ctx); err != nil {
			a.log.Error("Error stopping gRPC server", "error", err)
		}
	}

	stopLoops()
	a.wg.Wait()
	a.closeResources(ctx)
}

// closeResources releases what newApp acquired. Every field may be nil.
func (a *app) closeResources(ctx context.Context) {
	if a.registry != nil {
		if err := a.registry.Close(ctx); err != nil {
			a.log.Error("Error stopping actors", "error", err)
		}
	}
	if a.relay != nil {
		_ = a.relay.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Error closing storage", "error", err)
		}
	}
	if a.stopTraces != nil {
		if err := a.stopTraces(ctx); err != nil {
			a.log.Error("Error flushing traces", "error", err)
		}
	}
}

// watchConfig hot-reloads the log level when the config file changes.
func (a *app) watchConfig(ctx context.Context, path string, overrides map[string]any) {
	w, err := config.NewWatcher(path, config.NewLoader(),
		config.WithWatcherLogger(a.log),
		config.WithOverrides(overrides),
	)
	if err != nil {
		a.log.Warn("config hot reload disabled", "error", err)
		return
	}
	w.OnChange(config.ApplyLogLevel())
	w.OnChange(func(cfg *config.Config) {
		a.log.Info("configuration reloaded", "path", w.Path(), "log_level", cfg.Log.Level)
	})
	a.goRun(func() {
		defer w.Close()
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watcher stopped", "error", err)
		}
	})
}

func (a *app) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *app) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.HTTP.ShutdownTimeout; d > 0 {
		return d
	}
	return 30 * time.Second
}

// openStore builds the document store selected by cfg.Type.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.DocumentStore, error) {
	switch cfg.Type {
	case "badger":
		return badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
	case "redis":
		return redis.NewRedisStorage(ctx, &redis.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "sqlite":
		return sqlite.NewSQLiteStorage(cfg.SQLite.Path)
	case "memory", "":
		return memory.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func nodeID(cfg *config.Config) string {
	if cfg.EventBus.NodeID != "" {
		return cfg.EventBus.NodeID
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return cfg.App.Name
}
