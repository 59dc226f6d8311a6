// Package config loads and validates dayloop configuration. Values come
// from built-in defaults, an optional yaml, json or toml file, DAYLOOP_*
// environment variables and command-line overrides, in increasing order
// of precedence.
package config

import (
	"fmt"
	"time"
)

// Config is the complete server configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Simulation   SimulationConfig   `mapstructure:"simulation"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Collaborator CollaboratorConfig `mapstructure:"collaborator"`
	EventBus     EventBusConfig     `mapstructure:"event_bus"`
}

type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`
	// Debug forces debug logging.
	Debug bool `mapstructure:"debug"`
}

type ServerConfig struct {
	Host string     `mapstructure:"host" validate:"host"`
	Port int        `mapstructure:"port" validate:"required,port"`
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	CORS CORSConfig `mapstructure:"cors"`
}

// GRPCConfig is the optional gRPC listener, bound to Server.Host.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"port"`
	// MaxStreams caps concurrent streams per connection; 0 is unlimited.
	MaxStreams     int  `mapstructure:"max_streams" validate:"min=0"`
	MaxRecvMsgSize int  `mapstructure:"max_recv_msg_size" validate:"min=0"`
	MaxSendMsgSize int  `mapstructure:"max_send_msg_size" validate:"min=0"`
	Reflection     bool `mapstructure:"reflection"`
	HealthCheck    bool `mapstructure:"health_check"`

	TLS       TLSConfig       `mapstructure:"tls"`
	Keepalive KeepaliveConfig `mapstructure:"keepalive"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file" validate:"required_if=Enabled true,omitempty,file"`
	KeyFile  string `mapstructure:"key_file" validate:"required_if=Enabled true,omitempty,file"`
	// CAFile verifies client certificates; required with ClientAuth.
	CAFile     string `mapstructure:"ca_file" validate:"required_if=ClientAuth true,omitempty,file"`
	ClientAuth bool   `mapstructure:"client_auth"`
}

type KeepaliveConfig struct {
	MaxIdle             time.Duration `mapstructure:"max_idle" validate:"gte=0"`
	MaxAge              time.Duration `mapstructure:"max_age" validate:"gte=0"`
	MaxAgeGrace         time.Duration `mapstructure:"max_age_grace" validate:"gte=0"`
	Time                time.Duration `mapstructure:"time" validate:"gte=0"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MinTime             time.Duration `mapstructure:"min_time" validate:"gte=0"`
	PermitWithoutStream bool          `mapstructure:"permit_without_stream"`
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	// RequestTimeout bounds one API request; 0 disables the limit.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" validate:"min=0"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" validate:"min=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	// Output is stdout, stderr, discard or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// StorageConfig selects the document store. Only the section matching
// Type is read.
type StorageConfig struct {
	Type   string       `mapstructure:"type" validate:"oneof=memory badger redis sqlite"`
	Badger BadgerConfig `mapstructure:"badger"`
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type BadgerConfig struct {
	Path              string `mapstructure:"path"`
	SyncWrites        bool   `mapstructure:"sync_writes"`
	ValueLogFileSize  int64  `mapstructure:"value_log_file_size" validate:"min=0"`
	NumVersionsToKeep int    `mapstructure:"num_versions_to_keep" validate:"min=0"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
	Port    int    `mapstructure:"port" validate:"port"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Exporter is the span exporter; only otlpgrpc is built in.
	Exporter string        `mapstructure:"exporter" validate:"oneof=otlpgrpc"`
	Endpoint string        `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Sampler  string        `mapstructure:"sampler" validate:"oneof=always_on always_off parentbased_traceidratio"`
	// SampleRate applies to the parentbased_traceidratio sampler.
	SampleRate float64           `mapstructure:"sample_rate" validate:"min=0,max=1"`
	Headers    map[string]string `mapstructure:"headers"`
}

// SimulationConfig holds the game clock and the simulated actors.
type SimulationConfig struct {
	Actors []string `mapstructure:"actors" validate:"min=1,unique,dive,required,excludesall=/"`
	// StartDate is the first simulated day, YYYY-MM-DD.
	StartDate string `mapstructure:"start_date" validate:"datetime=2006-01-02"`
	DayStart  string `mapstructure:"day_start" validate:"clock"`
	// DayEnd is when the day-end memory pipeline runs; after DayStart.
	DayEnd string `mapstructure:"day_end" validate:"clock"`
	// TickInterval is the real time between clock ticks.
	TickInterval   time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	MinutesPerTick int           `mapstructure:"minutes_per_tick" validate:"min=1,max=1440"`
	ArrivalTimeout time.Duration `mapstructure:"arrival_timeout" validate:"gt=0"`
	// RoutinePath is an optional routine file in yaml, json or toml.
	RoutinePath string `mapstructure:"routine_path" validate:"omitempty,file"`
	AutoStart   bool   `mapstructure:"auto_start"`
}

type MemoryConfig struct {
	// DefaultTimestamp replaces unparseable entry timestamps, RFC 3339.
	DefaultTimestamp string  `mapstructure:"default_timestamp" validate:"datetime=2006-01-02T15:04:05Z07:00"`
	RetentionRate    float64 `mapstructure:"retention_rate" validate:"gt=0,lte=1"`
	ShortTermKeep    int     `mapstructure:"short_term_keep" validate:"min=1"`
	BackupOnDayEnd   bool    `mapstructure:"backup_on_day_end"`
}

// CollaboratorConfig selects the services that plan and score: heuristic
// runs in process, remote calls an HTTP JSON service at Endpoint.
type CollaboratorConfig struct {
	Mode     string        `mapstructure:"mode" validate:"oneof=heuristic remote"`
	Endpoint string        `mapstructure:"endpoint" validate:"required_if=Mode remote,omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// RateLimit is calls per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"min=0"`
}

type EventBusConfig struct {
	// NodeID stamps envelopes; empty means the hostname.
	NodeID string `mapstructure:"node_id"`
	// RedisRelay shares events with other nodes through Storage.Redis.
	RedisRelay bool `mapstructure:"redis_relay"`
	Buffer     int  `mapstructure:"buffer" validate:"min=1"`
}

// Validate checks every field and the rules that span fields. Failures
// come back as ValidationErrors.
func (c *Config) Validate() error {
	return ValidateStruct(c)
}

// StartDate parses Simulation.StartDate in UTC.
func (c *Config) StartDate() (time.Time, error) {
	return time.Parse(time.DateOnly, c.Simulation.StartDate)
}

// DefaultTimestamp parses Memory.DefaultTimestamp.
func (c *Config) DefaultTimestamp() (time.Time, error) {
	return time.Parse(time.RFC3339, c.Memory.DefaultTimestamp)
}

// String summarizes c for logs; it never includes credentials.
func (c *Config) String() string {
	grpc := "off"
	if c.Server.GRPC.Enabled {
		grpc = fmt.Sprintf(":%d", c.Server.GRPC.Port)
	}
	return fmt.Sprintf("%s/%s http=%s:%d grpc=%s storage=%s collaborators=%s actors=%v",
		c.App.Name, c.App.Environment, c.Server.Host, c.Server.Port, grpc,
		c.Storage.Type, c.Collaborator.Mode, c.Simulation.Actors)
}
