package constants

import "time"

const (
	ServiceName = "webhook-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

// Outbound webhook defaults.
const (
	DefaultWebhookURL           = "https://api.say-say.ru/api/iikotest"
	DefaultMaxResponseBodyBytes = 64 * 1024
	DefaultSignatureHeader      = "X-Webhook-Signature"
	IdempotencyKeyHeader        = "X-Idempotency-Key"
	AttemptHeader               = "X-Delivery-Attempt"
	ContentTypeJSON             = "application/json; charset=utf-8"
)

// Dispatcher defaults.
const (
	DefaultMaxAttempts         = 5
	DefaultConcurrency         = 4
	DefaultQueueSize           = 1024
	DefaultInitialInterval     = 1 * time.Second
	DefaultMaxInterval         = 60 * time.Second
	DefaultMultiplier          = 2.0
	DefaultRandomizationFactor = 0.2
	DefaultShutdownGrace       = 3 * time.Second
	DefaultSinkTimeout         = 2 * time.Second
)

const (
	DefaultCreatedWindow = 5 * time.Second
	TimestampLayout      = "2006-01-02 15:04:05"
	NotAvailable         = "N/A"
)

const (
	DefaultNotificationsTopic = "pos_notifications"
	DefaultDLQTopic           = "webhook_dlq"
)

const (
	JournalBackendNone     = "none"
	JournalBackendRedis    = "redis"
	JournalBackendPostgres = "postgres"
	JournalBackendMongoDB  = "mongodb"
)

const (
	CacheKeyPrefixJournal = "webhook:attempt:"
	DefaultMongoDBName    = "poshook"
	DefaultTTLSeconds     = 7 * 24 * 3600
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
