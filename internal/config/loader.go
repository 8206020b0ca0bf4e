package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"poshook/internal/constants"
)

// LoadConfig reads an optional YAML file, then environment variables
// (SECTION_KEY, e.g. WEBHOOK_URL), on top of built-in defaults.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")

	viper.SetDefault("webhook.url", constants.DefaultWebhookURL)
	viper.SetDefault("webhook.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("webhook.signature_header", constants.DefaultSignatureHeader)
	viper.SetDefault("webhook.max_response_body_bytes", constants.DefaultMaxResponseBodyBytes)
	viper.SetDefault("webhook.rate_limit_rps", 0)
	viper.SetDefault("webhook.rate_limit_burst", 1)
	viper.SetDefault("webhook.time_zone", "Local")

	viper.SetDefault("dispatcher.max_attempts", constants.DefaultMaxAttempts)
	viper.SetDefault("dispatcher.concurrency", constants.DefaultConcurrency)
	viper.SetDefault("dispatcher.queue_size", constants.DefaultQueueSize)
	viper.SetDefault("dispatcher.initial_interval", constants.DefaultInitialInterval)
	viper.SetDefault("dispatcher.max_interval", constants.DefaultMaxInterval)
	viper.SetDefault("dispatcher.multiplier", constants.DefaultMultiplier)
	viper.SetDefault("dispatcher.randomization_factor", constants.DefaultRandomizationFactor)
	viper.SetDefault("dispatcher.max_retry_after", 0)
	viper.SetDefault("dispatcher.shutdown_grace", constants.DefaultShutdownGrace)

	viper.SetDefault("classifier.created_window", constants.DefaultCreatedWindow)

	viper.SetDefault("journal.backend", constants.JournalBackendNone)
	viper.SetDefault("journal.ttl_seconds", constants.DefaultTTLSeconds)

	viper.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)
	viper.SetDefault("database.postgres.sslmode", "disable")

	viper.SetDefault("broker.kafka.group_id", constants.ServiceName)
	viper.SetDefault("broker.kafka.notifications_topic", constants.DefaultNotificationsTopic)
	viper.SetDefault("broker.kafka.dlq_topic", constants.DefaultDLQTopic)
	viper.SetDefault("broker.kafka.retry.max_attempts", 3)
	viper.SetDefault("broker.kafka.retry.initial_interval", "100ms")
	viper.SetDefault("broker.kafka.retry.max_interval", "2s")
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("ingress.http_enabled", true)
	viper.SetDefault("ingress.rate_limit.rps", 50)
	viper.SetDefault("ingress.rate_limit.burst", 100)
	viper.SetDefault("ingress.rate_limit.cleanup_interval", 60)
	viper.SetDefault("ingress.rate_limit.max_age", 300)

	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", "60s")
	viper.SetDefault("circuit_breaker.timeout", "30s")
	viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("circuit_breaker.min_requests", 5)

	viper.SetDefault("tracing.service_name", constants.ServiceName)
	viper.SetDefault("tracing.sampler.type", "always_on")
}

func bindEnvVariables() {
	_ = viper.BindEnv("webhook.url", "WEBHOOK_URL")
	_ = viper.BindEnv("webhook.bearer_token", "WEBHOOK_BEARER_TOKEN")
	_ = viper.BindEnv("webhook.signing_secret", "WEBHOOK_SIGNING_SECRET")
	_ = viper.BindEnv("webhook.filter", "WEBHOOK_FILTER")

	_ = viper.BindEnv("dispatcher.max_attempts", "DISPATCHER_MAX_ATTEMPTS")
	_ = viper.BindEnv("dispatcher.concurrency", "DISPATCHER_CONCURRENCY")

	_ = viper.BindEnv("journal.backend", "JOURNAL_BACKEND")

	_ = viper.BindEnv("broker.type", "BROKER_TYPE")
	_ = viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	_ = viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	_ = viper.BindEnv("broker.kafka.notifications_topic", "BROKER_KAFKA_NOTIFICATIONS_TOPIC")
	_ = viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	_ = viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	_ = viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	_ = viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	_ = viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	_ = viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	_ = viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	_ = viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	_ = viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	_ = viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	_ = viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	_ = viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	_ = viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	_ = viper.BindEnv("server.port", "SERVER_PORT")

	_ = viper.BindEnv("logging.level", "LOGGING_LEVEL")
	_ = viper.BindEnv("logging.format", "LOGGING_FORMAT")

	_ = viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	_ = viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	_ = viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	_ = viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
