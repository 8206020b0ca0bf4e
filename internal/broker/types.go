package broker

import (
	"context"

	"poshook/pkg/models"
)

type Producer interface {
	// Publish encodes value as JSON and writes it to topic under key.
	Publish(ctx context.Context, topic, key string, value interface{}) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg models.NotificationEnvelope) error
