package models

import (
	"encoding/json"
	"time"
)

type NotificationKind string

const (
	KindOrder    NotificationKind = "order"
	KindDelivery NotificationKind = "delivery"
)

// NotificationEnvelope carries one host change notification over the
// broker. Order holds the order (or delivery order) record as sent by the
// host; Restaurant is only set for deliveries.
type NotificationEnvelope struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	Kind       NotificationKind `json:"kind"`
	Timestamp  time.Time        `json:"timestamp"`
	Order      json.RawMessage  `json:"order"`
	Restaurant json.RawMessage  `json:"restaurant,omitempty"`
	Metadata   Metadata         `json:"metadata"`
}

type Metadata struct {
	TraceID string `json:"trace_id,omitempty"`
}

// DeadLetter is published for every abandoned delivery attempt.
type DeadLetter struct {
	AttemptID      string          `json:"attempt_id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Attempts       int             `json:"attempts"`
	LastStatus     int             `json:"last_status,omitempty"`
	Reason         string          `json:"reason"`
	Error          string          `json:"error,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	AbandonedAt    time.Time       `json:"abandoned_at"`
}
