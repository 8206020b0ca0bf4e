package config

import (
	"time"

	"poshook/pkg/retry"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Dispatcher     DispatcherConfig     `mapstructure:"dispatcher"`
	Classifier     ClassifierConfig     `mapstructure:"classifier"`
	Journal        JournalConfig        `mapstructure:"journal"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Ingress        IngressConfig        `mapstructure:"ingress"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WebhookConfig describes the single outbound endpoint.
type WebhookConfig struct {
	URL                  string        `mapstructure:"url"`
	Timeout              time.Duration `mapstructure:"timeout"`
	BearerToken          string        `mapstructure:"bearer_token"`
	SigningSecret        string        `mapstructure:"signing_secret"`
	SignatureHeader      string        `mapstructure:"signature_header"`
	MaxResponseBodyBytes int64         `mapstructure:"max_response_body_bytes"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	TimeZone             string        `mapstructure:"time_zone"`
	Filter               string        `mapstructure:"filter"`
}

type DispatcherConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	Concurrency         int           `mapstructure:"concurrency"`
	QueueSize           int           `mapstructure:"queue_size"`
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	// MaxRetryAfter caps Retry-After hints; zero falls back to MaxInterval.
	MaxRetryAfter time.Duration `mapstructure:"max_retry_after"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

type ClassifierConfig struct {
	CreatedWindow time.Duration `mapstructure:"created_window"`
}

type JournalConfig struct {
	Backend    string `mapstructure:"backend"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// BrokerConfig enables the Kafka ingress and dead-letter topic. An empty
// type disables the broker entirely.
type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers            []string    `mapstructure:"brokers"`
	GroupID            string      `mapstructure:"group_id"`
	NotificationsTopic string      `mapstructure:"notifications_topic"`
	DLQTopic           string      `mapstructure:"dlq_topic"`
	Retry              RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// Policy overlays the configured (positive) values on base.
func (c RetryConfig) Policy(base retry.Policy) retry.Policy {
	if c.MaxAttempts > 0 {
		base.MaxAttempts = c.MaxAttempts
	}
	if c.InitialInterval > 0 {
		base.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		base.MaxInterval = c.MaxInterval
	}
	if c.Multiplier > 0 {
		base.Multiplier = c.Multiplier
	}
	if c.MaxElapsedTime > 0 {
		base.MaxElapsedTime = c.MaxElapsedTime
	}
	return base
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type IngressConfig struct {
	HTTPEnabled bool            `mapstructure:"http_enabled"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
