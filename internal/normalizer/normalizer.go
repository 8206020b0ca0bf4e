// Package normalizer turns host order and delivery-order records into
// canonical events.
package normalizer

import (
	"strings"
	"time"

	"poshook/internal/event"
	apperrors "poshook/pkg/errors"
)

type Normalizer struct {
	now func() time.Time
}

type Option func(*Normalizer)

// WithClock overrides the wall clock used for ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds a canonical event from src. It fails only when one of
// the identity fields (id, number, status) is absent; every optional field
// degrades to a "not available" marker instead.
func (n *Normalizer) Normalize(src Source) (*event.CanonicalEvent, error) {
	if src == nil {
		return nil, apperrors.ErrNormalization.WithMessage("notification record is nil")
	}

	id := src.Identity()
	if missing := id.missing(); len(missing) > 0 {
		return nil, apperrors.ErrNormalization.
			WithMessage(string(src.EntityType()) + " notification is missing " + strings.Join(missing, ", ")).
			WithDetail("entity_type", string(src.EntityType())).
			WithDetail("missing_fields", missing)
	}

	return &event.CanonicalEvent{
		EntityType: src.EntityType(),
		EntityID:   id.ID,
		Number:     id.Number,
		Status:     event.CanonicalStatus(id.Status),
		OpenTime:   src.OpenedAt(),
		ObservedAt: n.now(),
		LineItems:  src.LineItems(),
		Total:      src.Total(),
		Extra:      src.Extra(),
	}, nil
}

func (n *Normalizer) NormalizeOrder(order *Order) (*event.CanonicalEvent, error) {
	return n.Normalize(order)
}

func (n *Normalizer) NormalizeDelivery(order *DeliveryOrder, restaurant *Restaurant) (*event.CanonicalEvent, error) {
	return n.Normalize(Delivery{Order: order, Restaurant: restaurant})
}
