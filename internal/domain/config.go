package domain

import "time"

// Config holds the complete SnapNEarn configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Profile selects the deployment defaults
	Profile Profile `mapstructure:"profile" json:"profile"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Cache      CacheConfig      `mapstructure:"cache" json:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus" json:"eventBus"`

	// Domain settings
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" json:"lifecycle"`
	Policy    PolicyConfig    `mapstructure:"policy" json:"policy"`
	Detection DetectionConfig `mapstructure:"detection" json:"detection"`
	Worker    WorkerConfig    `mapstructure:"worker" json:"worker"`
	Intake    IntakeConfig    `mapstructure:"intake" json:"intake"`
	Notice    NoticeConfig    `mapstructure:"notice" json:"notice"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
	Sentry  SentryConfig  `mapstructure:"sentry" json:"sentry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host" json:"host"`
	Port         int    `mapstructure:"port" json:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `mapstructure:"write_timeout" json:"writeTimeout"` // seconds
}

// LifecycleConfig tunes the report lifecycle engine.
type LifecycleConfig struct {
	// DuplicateWindow rejects a second live report for the same plate and
	// violation type inside the window. Zero disables the check.
	DuplicateWindow time.Duration `mapstructure:"duplicate_window" json:"duplicateWindow"`
}

// PolicyConfig points at the YAML fine and risk policy.
type PolicyConfig struct {
	Path string `mapstructure:"path" json:"path"` // empty: built-in defaults
}

// DetectionConfig configures the AI detection service client.
type DetectionConfig struct {
	BaseURL  string        `mapstructure:"base_url" json:"baseUrl"` // empty disables lookups
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" json:"cacheTtl"`
}

// WorkerConfig configures the background assessment worker.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// IntakeConfig rate limits report submission per client.
type IntakeConfig struct {
	RatePerMinute int `mapstructure:"rate_per_minute" json:"ratePerMinute"` // 0 disables
	Burst         int `mapstructure:"burst" json:"burst"`
}

// NoticeConfig customises rendered challan notices.
type NoticeConfig struct {
	Authority  string `mapstructure:"authority" json:"authority"`
	PaymentURL string `mapstructure:"payment_url" json:"paymentUrl"` // challan number is appended
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	ServiceName string `mapstructure:"service_name" json:"serviceName"`
}

// SentryConfig enables opt-in error reporting.
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn" json:"-"`
	Environment string  `mapstructure:"environment" json:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sampleRate"`
}

// Profile represents the deployment profile.
type Profile string

const (
	// ProfileSingle runs everything in one process with SQLite + channels
	ProfileSingle Profile = "single"

	// ProfileCluster uses PostgreSQL + NATS + Redis
	ProfileCluster Profile = "cluster"
)

// DefaultConfig returns a single-node configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileSingle,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./snapnearn.db",
		},
		Cache: CacheConfig{
			Type:     "memory",
			LocalTTL: 5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Lifecycle: LifecycleConfig{
			DuplicateWindow: 10 * time.Minute,
		},
		Detection: DetectionConfig{
			Timeout:  10 * time.Second,
			CacheTTL: time.Hour,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Intake: IntakeConfig{
			RatePerMinute: 30,
			Burst:         10,
		},
		Notice: NoticeConfig{
			Authority: "Traffic Police",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "snapnearn",
		},
		Sentry: SentryConfig{
			SampleRate: 1.0,
		},
	}
}

// ClusterConfig returns a configuration for multi-node deployments.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "snapnearn",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalTTL:       30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "snapnearn-workers",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
