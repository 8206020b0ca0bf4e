// Package journal keeps the last known state of every delivery attempt so
// that outcomes can be looked up after the dispatcher forgot them.
package journal

import (
	"context"
	"time"

	"poshook/internal/delivery"
	apperrors "poshook/pkg/errors"
)

type Record struct {
	AttemptID      string     `json:"attempt_id" bson:"_id"`
	EntityType     string     `json:"entity_type" bson:"entity_type"`
	EntityID       string     `json:"entity_id" bson:"entity_id"`
	EventType      string     `json:"event_type" bson:"event_type"`
	IdempotencyKey string     `json:"idempotency_key" bson:"idempotency_key"`
	Outcome        string     `json:"outcome" bson:"outcome"`
	Attempts       int        `json:"attempts" bson:"attempts"`
	HTTPStatus     int        `json:"http_status,omitempty" bson:"http_status"`
	LastError      string     `json:"last_error,omitempty" bson:"last_error,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at"`
}

func (r Record) Terminal() bool {
	return r.Outcome == string(delivery.OutcomeDelivered) || r.Outcome == string(delivery.OutcomeAbandoned)
}

// Store persists records keyed by attempt id. Save must not replace a
// terminal record with a pending one.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, attemptID string) (*Record, error)
	Name() string
}

func notFound(attemptID string) error {
	return apperrors.ErrNotFound.
		WithMessage("delivery attempt not found").
		WithDetail("attempt_id", attemptID)
}

func RecordFromAttempt(a delivery.Attempt) Record {
	return Record{
		AttemptID:      a.ID,
		EntityType:     string(a.Payload.EntityType),
		EntityID:       a.Payload.EntityID,
		EventType:      string(a.Payload.EventType),
		IdempotencyKey: a.Payload.IdempotencyKey(),
		Outcome:        string(a.Outcome),
		Attempts:       a.AttemptNumber,
		HTTPStatus:     a.LastStatus,
		LastError:      a.LastErrorString(),
		NextRetryAt:    a.NextRetryAt,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}
