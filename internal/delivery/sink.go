package delivery

import (
	"context"
	"time"

	"poshook/internal/logger"
	apperrors "poshook/pkg/errors"
	"poshook/pkg/metrics"
)

// Sink observes attempt transitions. Implementations must not block for
// long; the dispatcher calls them with a bounded context.
type Sink interface {
	Delivered(ctx context.Context, a Attempt)
	Retrying(ctx context.Context, a Attempt, delay time.Duration)
	Abandoned(ctx context.Context, a Attempt)
}

type NopSink struct{}

func (NopSink) Delivered(context.Context, Attempt)               {}
func (NopSink) Retrying(context.Context, Attempt, time.Duration) {}
func (NopSink) Abandoned(context.Context, Attempt)               {}

// MultiSink fans a transition out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Delivered(ctx context.Context, a Attempt) {
	for _, s := range m {
		s.Delivered(ctx, a)
	}
}

func (m MultiSink) Retrying(ctx context.Context, a Attempt, delay time.Duration) {
	for _, s := range m {
		s.Retrying(ctx, a, delay)
	}
}

func (m MultiSink) Abandoned(ctx context.Context, a Attempt) {
	for _, s := range m {
		s.Abandoned(ctx, a)
	}
}

// LogSink writes every transition to the structured log and the
// outcome counters.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Delivered(ctx context.Context, a Attempt) {
	metrics.IncDeliveryOutcome(string(OutcomeDelivered), "ok")
	s.logger.InfowCtx(ctx, "Webhook delivered",
		"attempt_id", a.ID,
		"entity", a.Payload.EntityKey(),
		"event_type", a.Payload.EventType,
		"attempt", a.AttemptNumber,
		"status_code", a.LastStatus,
	)
}

func (s *LogSink) Retrying(ctx context.Context, a Attempt, delay time.Duration) {
	metrics.ObserveRetryBackoff(delay)
	s.logger.WarnwCtx(ctx, "Webhook delivery failed, retry scheduled",
		"attempt_id", a.ID,
		"entity", a.Payload.EntityKey(),
		"attempt", a.AttemptNumber,
		"status_code", a.LastStatus,
		"delay", delay,
		"error", a.LastErrorString(),
	)
}

func (s *LogSink) Abandoned(ctx context.Context, a Attempt) {
	reason := AbandonReason(a.LastError)
	metrics.IncDeliveryOutcome(string(OutcomeAbandoned), reason)
	s.logger.ErrorwCtx(ctx, "Webhook delivery abandoned",
		"attempt_id", a.ID,
		"entity", a.Payload.EntityKey(),
		"event_type", a.Payload.EventType,
		"attempt", a.AttemptNumber,
		"status_code", a.LastStatus,
		"reason", reason,
		"error", a.LastErrorString(),
	)
}

// AbandonReason turns the terminal error into a low cardinality label.
func AbandonReason(err error) string {
	switch apperrors.Code(err) {
	case apperrors.ErrPermanentDelivery.Code:
		return "rejected"
	case apperrors.ErrAttemptsExhausted.Code:
		return "attempts_exhausted"
	case apperrors.ErrQueueFull.Code:
		return "queue_full"
	case apperrors.ErrShutdown.Code:
		return "shutdown"
	case apperrors.ErrSerialization.Code:
		return "serialization"
	case "":
		return "unknown"
	default:
		return "error"
	}
}
