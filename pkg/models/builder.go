package models

import (
	"encoding/json"
	"time"
)

type NotificationEnvelopeBuilder struct {
	envelope *NotificationEnvelope
	err      error
}

func NewNotificationEnvelopeBuilder() *NotificationEnvelopeBuilder {
	return &NotificationEnvelopeBuilder{
		envelope: &NotificationEnvelope{},
	}
}

func (b *NotificationEnvelopeBuilder) WithID(id string) *NotificationEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *NotificationEnvelopeBuilder) WithSource(source string) *NotificationEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *NotificationEnvelopeBuilder) WithTimestamp(timestamp time.Time) *NotificationEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *NotificationEnvelopeBuilder) WithTraceID(traceID string) *NotificationEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

// WithOrder marshals order into the envelope.
func (b *NotificationEnvelopeBuilder) WithOrder(order interface{}) *NotificationEnvelopeBuilder {
	b.envelope.Kind = KindOrder
	b.envelope.Order = b.marshal(order)
	return b
}

// WithDelivery marshals a delivery order and its restaurant.
func (b *NotificationEnvelopeBuilder) WithDelivery(order, restaurant interface{}) *NotificationEnvelopeBuilder {
	b.envelope.Kind = KindDelivery
	b.envelope.Order = b.marshal(order)
	if restaurant != nil {
		b.envelope.Restaurant = b.marshal(restaurant)
	}
	return b
}

func (b *NotificationEnvelopeBuilder) marshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil && b.err == nil {
		b.err = err
	}
	return raw
}

func (b *NotificationEnvelopeBuilder) Build() (*NotificationEnvelope, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	return b.envelope, nil
}
