package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"poshook/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateWebhook(c.Webhook) },
		func(c *Config) error { return validateDispatcher(c.Dispatcher) },
		func(c *Config) error { return validateClassifier(c.Classifier) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateDatabase(c.Database) },
		validateJournal,
	}

	var errs []error
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) error {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{
			Field:   "webhook.url",
			Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", cfg.URL),
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "webhook.timeout",
			Message: "timeout must be positive",
		}
	}

	if cfg.SigningSecret != "" && cfg.SignatureHeader == "" {
		return &ValidationError{
			Field:   "webhook.signature_header",
			Message: "signature header is required when a signing secret is set",
		}
	}

	if cfg.MaxResponseBodyBytes < 0 {
		return &ValidationError{
			Field:   "webhook.max_response_body_bytes",
			Message: "must be non-negative",
		}
	}

	if cfg.RateLimitRPS < 0 {
		return &ValidationError{
			Field:   "webhook.rate_limit_rps",
			Message: "must be non-negative",
		}
	}

	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst < 1 {
		return &ValidationError{
			Field:   "webhook.rate_limit_burst",
			Message: "burst must be at least 1 when rate limiting is enabled",
		}
	}

	if _, err := LoadLocation(cfg.TimeZone); err != nil {
		return &ValidationError{
			Field:   "webhook.time_zone",
			Message: err.Error(),
		}
	}

	return nil
}

func validateDispatcher(cfg DispatcherConfig) error {
	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "dispatcher.max_attempts",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.MaxAttempts),
		}
	}

	if cfg.Concurrency < 1 {
		return &ValidationError{
			Field:   "dispatcher.concurrency",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Concurrency),
		}
	}

	if cfg.QueueSize < 1 {
		return &ValidationError{
			Field:   "dispatcher.queue_size",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.QueueSize),
		}
	}

	if cfg.InitialInterval <= 0 {
		return &ValidationError{
			Field:   "dispatcher.initial_interval",
			Message: "initial_interval must be positive",
		}
	}

	if cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "dispatcher.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 1 {
		return &ValidationError{
			Field:   "dispatcher.multiplier",
			Message: "multiplier must be at least 1",
		}
	}

	if cfg.MaxRetryAfter < 0 {
		return &ValidationError{
			Field:   "dispatcher.max_retry_after",
			Message: "max_retry_after must not be negative",
		}
	}

	if cfg.RandomizationFactor < 0 || cfg.RandomizationFactor >= 1 {
		return &ValidationError{
			Field:   "dispatcher.randomization_factor",
			Message: "randomization_factor must be in [0, 1)",
		}
	}

	if cfg.ShutdownGrace < 0 {
		return &ValidationError{
			Field:   "dispatcher.shutdown_grace",
			Message: "shutdown_grace must be non-negative",
		}
	}

	return nil
}

func validateClassifier(cfg ClassifierConfig) error {
	if cfg.CreatedWindow < 0 {
		return &ValidationError{
			Field:   "classifier.created_window",
			Message: "created_window must be non-negative",
		}
	}
	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.NotificationsTopic == "" && cfg.DLQTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.notifications_topic",
			Message: "either notifications_topic or dlq_topic must be set",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validateJournal(cfg *Config) error {
	db := cfg.Database

	switch cfg.Journal.Backend {
	case "", constants.JournalBackendNone:
		return nil
	case constants.JournalBackendRedis:
		if db.Redis.Host == "" {
			return &ValidationError{Field: "database.redis.host", Message: "required by journal backend redis"}
		}
	case constants.JournalBackendPostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{Field: "database.postgres.host", Message: "required by journal backend postgres"}
		}
	case constants.JournalBackendMongoDB:
		if db.MongoDB.URI == "" {
			return &ValidationError{Field: "database.mongodb.uri", Message: "required by journal backend mongodb"}
		}
	default:
		return &ValidationError{
			Field:   "journal.backend",
			Message: fmt.Sprintf("unknown backend: %s (supported: none, redis, postgres, mongodb)", cfg.Journal.Backend),
		}
	}

	if cfg.Journal.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "journal.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

// LoadLocation resolves the payload time zone; "" and "Local" mean the
// process local zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
