package broker

import (
	"context"
	"encoding/json"
	"time"

	"poshook/internal/delivery"
	"poshook/internal/logger"
	"poshook/pkg/metrics"
	"poshook/pkg/models"
	"poshook/pkg/retry"
)

// DeadLetterSink publishes every abandoned delivery attempt to the DLQ
// topic so that it can be inspected or replayed.
type DeadLetterSink struct {
	producer    Producer
	topic       string
	policy      retry.Policy
	logger      logger.Logger
	serviceName string
}

func NewDeadLetterSink(producer Producer, topic string, policy retry.Policy, log logger.Logger) *DeadLetterSink {
	return &DeadLetterSink{
		producer:    producer,
		topic:       topic,
		policy:      policy,
		logger:      log,
		serviceName: "webhook-dispatcher",
	}
}

func (s *DeadLetterSink) Delivered(context.Context, delivery.Attempt) {}

func (s *DeadLetterSink) Retrying(context.Context, delivery.Attempt, time.Duration) {}

func (s *DeadLetterSink) Abandoned(ctx context.Context, a delivery.Attempt) {
	letter := NewDeadLetter(a, time.Now())

	err := retry.RetryWithCallback(ctx, s.policy, func() error {
		return s.producer.Publish(ctx, s.topic, a.Payload.EntityKey(), letter)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRetryAttempt(s.serviceName, s.topic)
		s.logger.WarnwCtx(ctx, "Retrying dead letter publish",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish dead letter",
			"topic", s.topic,
			"error", err,
		)
		return
	}

	metrics.IncDLQMessage(s.serviceName, s.topic, letter.Reason)
}

func NewDeadLetter(a delivery.Attempt, at time.Time) models.DeadLetter {
	letter := models.DeadLetter{
		AttemptID:      a.ID,
		EntityType:     string(a.Payload.EntityType),
		EntityID:       a.Payload.EntityID,
		EventType:      string(a.Payload.EventType),
		IdempotencyKey: a.Payload.IdempotencyKey(),
		Attempts:       a.AttemptNumber,
		LastStatus:     a.LastStatus,
		Reason:         delivery.AbandonReason(a.LastError),
		Error:          a.LastErrorString(),
		CreatedAt:      a.CreatedAt,
		AbandonedAt:    at,
	}
	if len(a.Body) > 0 {
		letter.Payload = json.RawMessage(a.Body)
	}
	return letter
}
