package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_received_total",
			Help: "Total number of host notifications received (count)",
		},
		[]string{"entity_type", "source"},
	)

	NormalizationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_normalization_failures_total",
			Help: "Total number of notifications dropped because identity fields were missing (count)",
		},
		[]string{"entity_type"},
	)

	EventsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_classified_total",
			Help: "Total number of classified events by kind (count)",
		},
		[]string{"entity_type", "event_type"},
	)

	EventsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_filtered_total",
			Help: "Total number of events evaluated by the filter expression (count)",
		},
		[]string{"result"},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_delivery_sends_total",
			Help: "Total number of HTTP sends by result (count)",
		},
		[]string{"result"},
	)

	DeliveryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_delivery_outcomes_total",
			Help: "Total number of delivery attempts reaching a terminal outcome (count)",
		},
		[]string{"outcome", "reason"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_ms",
			Help:    "Duration of a single webhook HTTP send in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"result"},
	)

	RetryBackoffDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_retry_backoff_ms",
			Help:    "Scheduled retry delay in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000, 32000, 64000},
		},
	)

	DispatcherQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_dispatcher_queue_size",
			Help: "Attempts waiting in the dispatcher queue (count)",
		},
	)

	DispatcherPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_dispatcher_pending",
			Help: "Attempts not yet delivered or abandoned (count)",
		},
	)

	DispatcherInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_dispatcher_in_flight",
			Help: "HTTP sends currently in flight (count)",
		},
	)

	JournalWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_journal_writes_total",
			Help: "Total number of delivery journal writes (count)",
		},
		[]string{"backend", "status"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of broker message processing retries (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			NotificationsReceivedTotal,
			NormalizationFailuresTotal,
			EventsClassifiedTotal,
			EventsFilteredTotal,
			DeliveryAttemptsTotal,
			DeliveryOutcomesTotal,
			DeliveryDuration,
			RetryBackoffDuration,
			DispatcherQueueSize,
			DispatcherPending,
			DispatcherInFlight,
			JournalWritesTotal,
			DLQMessagesTotal,
			RetryAttemptsTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
			KafkaMessagesReadTotal,
			KafkaMessagesWrittenTotal,
			KafkaMessageSizeBytes,
			KafkaWriteDuration,
		)
	})
}

func IncNotificationReceived(entityType, source string) {
	NotificationsReceivedTotal.WithLabelValues(entityType, source).Inc()
}

func IncNormalizationFailure(entityType string) {
	NormalizationFailuresTotal.WithLabelValues(entityType).Inc()
}

func IncEventClassified(entityType, eventType string) {
	EventsClassifiedTotal.WithLabelValues(entityType, eventType).Inc()
}

func IncEventFiltered(result string) {
	EventsFilteredTotal.WithLabelValues(result).Inc()
}

func ObserveDeliverySend(result string, duration time.Duration) {
	DeliveryAttemptsTotal.WithLabelValues(result).Inc()
	DeliveryDuration.WithLabelValues(result).Observe(float64(duration.Milliseconds()))
}

func IncDeliveryOutcome(outcome, reason string) {
	DeliveryOutcomesTotal.WithLabelValues(outcome, reason).Inc()
}

func ObserveRetryBackoff(delay time.Duration) {
	RetryBackoffDuration.Observe(float64(delay.Milliseconds()))
}

func SetDispatcherGauges(queued, pending, inFlight int) {
	DispatcherQueueSize.Set(float64(queued))
	DispatcherPending.Set(float64(pending))
	DispatcherInFlight.Set(float64(inFlight))
}

func IncJournalWrite(backend, status string) {
	JournalWritesTotal.WithLabelValues(backend, status).Inc()
}

func IncDLQMessage(service, topic, reason string) {
	DLQMessagesTotal.WithLabelValues(service, topic, reason).Inc()
}

func IncRetryAttempt(service, topic string) {
	RetryAttemptsTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
