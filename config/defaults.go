package config

import "time"

const (
	mib = 1 << 20
	gib = 1 << 30
)

// DefaultConfig is a single-node development setup: in-memory storage,
// heuristic collaborators, one actor and no gRPC listener.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "dayloop",
			Version:     "dev",
			Environment: "development",
		},
		Server:       defaultServer(),
		Log:          LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Storage:      defaultStorage(),
		Metrics:      MetricsConfig{Enabled: true, Path: "/metrics", Port: 9091},
		Tracing:      defaultTracing(),
		Simulation:   defaultSimulation(),
		Memory:       defaultMemory(),
		Collaborator: CollaboratorConfig{Mode: "heuristic", Timeout: 30 * time.Second, Burst: 1},
		EventBus:     EventBusConfig{Buffer: 256},
	}
}

func defaultServer() ServerConfig {
	return ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
		GRPC: GRPCConfig{
			Port:           9090,
			MaxStreams:     1000,
			MaxRecvMsgSize: 4 * mib,
			MaxSendMsgSize: 4 * mib,
			HealthCheck:    true,
			Keepalive: KeepaliveConfig{
				MaxIdle:     5 * time.Minute,
				MaxAge:      time.Hour,
				MaxAgeGrace: time.Minute,
				Time:        time.Minute,
				Timeout:     20 * time.Second,
				MinTime:     30 * time.Second,
			},
			RateLimit: RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
		},
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  time.Minute,
			MaxHeaderBytes:  mib,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
			MaxAge:         300,
		},
	}
}

func defaultStorage() StorageConfig {
	return StorageConfig{
		Type: "memory",
		Badger: BadgerConfig{
			Path:              "./data/badger",
			SyncWrites:        true,
			ValueLogFileSize:  gib,
			NumVersionsToKeep: 1,
		},
		Redis:  RedisConfig{Address: "localhost:6379", KeyPrefix: "dayloop"},
		SQLite: SQLiteConfig{Path: "./data/dayloop.db"},
	}
}

func defaultTracing() TracingConfig {
	return TracingConfig{
		Exporter:   "otlpgrpc",
		Endpoint:   "localhost:4317",
		Insecure:   true,
		Timeout:    5 * time.Second,
		Sampler:    "parentbased_traceidratio",
		SampleRate: 0.1,
		Headers:    map[string]string{},
	}
}

func defaultSimulation() SimulationConfig {
	return SimulationConfig{
		Actors:         []string{"alice"},
		StartDate:      "2025-03-01",
		DayStart:       "06:00",
		DayEnd:         "23:00",
		TickInterval:   time.Second,
		MinutesPerTick: 10,
		ArrivalTimeout: 30 * time.Second,
	}
}

func defaultMemory() MemoryConfig {
	return MemoryConfig{
		DefaultTimestamp: "2000-01-01T00:00:00Z",
		RetentionRate:    0.7,
		ShortTermKeep:    10,
	}
}
