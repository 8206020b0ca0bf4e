package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"poshook/internal/config"
	"poshook/internal/constants"
	"poshook/internal/logger"
	"poshook/pkg/errors"
	"poshook/pkg/logging"
	"poshook/pkg/metrics"
	"poshook/pkg/models"
	"poshook/pkg/retry"
	"poshook/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer      messageWriter
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: constants.ServiceName}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, nil)

	start := time.Now()
	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   body,
			Headers: headers,
			Time:    start,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))
	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaMessageSize(p.serviceName, topic, "out", len(body))

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	mu          sync.Mutex
	reader      *kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, dlq Producer, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		dlqProducer: dlq,
		serviceName: constants.ServiceName,
	}
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume reads notification envelopes from topic until ctx is done.
// Every message is committed once handled, dead-lettered or found
// malformed, so a poison message never blocks the partition.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", topic,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", topic,
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			c.handleMessage(ctx, m, handler)

			if err := reader.CommitMessages(ctx, m); err != nil {
				c.logger.ErrorwCtx(consumeCtx, "Failed to commit message",
					"error", err,
					"topic", topic,
				)
			}
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, m kafka.Message, handler HandlerFunc) {
	metrics.IncKafkaMessagesRead(c.serviceName, m.Topic)
	metrics.ObserveKafkaMessageSize(c.serviceName, m.Topic, "in", len(m.Value))

	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
	defer span.End()
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	var envelope models.NotificationEnvelope
	if err := json.Unmarshal(m.Value, &envelope); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to unmarshal message",
			"error", err,
			"topic", m.Topic,
		)
		c.deadLetter(msgCtx, m, "malformed", err)
		return
	}

	if envelope.Metadata.TraceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, envelope.Metadata.TraceID)
	} else if traceID := tracing.TraceID(msgCtx); traceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, traceID)
	}
	msgCtx = logging.WithMessageID(msgCtx, envelope.ID)

	if err := models.ValidateNotificationEnvelope(&envelope); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Invalid notification envelope",
			"error", err,
			"topic", m.Topic,
		)
		c.deadLetter(msgCtx, m, "invalid", err)
		return
	}

	if err := c.processMessageWithRetry(msgCtx, envelope, handler, m.Topic); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to process message after retries",
			"error", err,
			"topic", m.Topic,
		)
		c.deadLetter(msgCtx, m, "processing_failed", err)
	}
}

func (c *KafkaConsumer) retryPolicy() retry.Policy {
	return c.cfg.Retry.Policy(retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
	})
}

func (c *KafkaConsumer) processMessageWithRetry(ctx context.Context, envelope models.NotificationEnvelope, handler HandlerFunc, topic string) error {
	policy := c.retryPolicy()

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, envelope)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRetryAttempt(c.serviceName, topic)
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

// deadLetter forwards an unprocessable notification to the DLQ topic,
// keeping the original bytes.
func (c *KafkaConsumer) deadLetter(ctx context.Context, m kafka.Message, reason string, cause error) {
	if c.dlqProducer == nil || c.cfg.DLQTopic == "" {
		c.logger.WarnwCtx(ctx, "No DLQ configured, dropping message",
			"topic", m.Topic,
			"reason", reason,
		)
		return
	}

	now := time.Now()
	letter := models.DeadLetter{
		Reason:      reason,
		Error:       cause.Error(),
		CreatedAt:   m.Time,
		AbandonedAt: now,
	}
	if json.Valid(m.Value) {
		letter.Payload = json.RawMessage(m.Value)
	}

	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, string(m.Key), letter); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to send message to DLQ",
			"error", err,
			"topic", m.Topic,
		)
		return
	}

	metrics.IncDLQMessage(c.serviceName, m.Topic, reason)
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", m.Topic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", reason,
	)
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	// The dead-letter producer is shared and closed by its owner.
	var err error
	if reader != nil {
		err = reader.Close()
	}
	c.wg.Wait()
	return err
}
