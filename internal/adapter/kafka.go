package adapter

import (
	"context"
	"encoding/json"

	"poshook/internal/normalizer"
	apperrors "poshook/pkg/errors"
	"poshook/pkg/models"
)

// HandleEnvelope is the broker.HandlerFunc for notification envelopes.
// Malformed or incomplete records are fatal so the consumer dead-letters
// them at once; a full dispatcher queue is worth another try.
func (p *Pipeline) HandleEnvelope(ctx context.Context, env models.NotificationEnvelope) error {
	var err error

	switch env.Kind {
	case models.KindOrder:
		var order normalizer.Order
		if err := json.Unmarshal(env.Order, &order); err != nil {
			return decodeError(err, "order")
		}
		_, err = p.HandleOrder(ctx, &order, SourceKafka)

	case models.KindDelivery:
		var order normalizer.DeliveryOrder
		if err := json.Unmarshal(env.Order, &order); err != nil {
			return decodeError(err, "order")
		}
		var restaurant *normalizer.Restaurant
		if len(env.Restaurant) > 0 {
			restaurant = &normalizer.Restaurant{}
			if err := json.Unmarshal(env.Restaurant, restaurant); err != nil {
				return decodeError(err, "restaurant")
			}
		}
		_, err = p.HandleDelivery(ctx, &order, restaurant, SourceKafka)

	default:
		return apperrors.ErrValidation.WithMessage("unknown notification kind").WithDetail("kind", string(env.Kind))
	}

	if apperrors.Code(err) == apperrors.ErrQueueFull.Code {
		return apperrors.ErrQueueFull.WithCause(err).AsRetryable()
	}
	return err
}

func decodeError(err error, field string) error {
	return apperrors.ErrValidation.
		WithCause(err).
		WithMessage("failed to decode " + field + " record").
		WithDetail("field", field)
}
