package payload

import (
	"time"

	"poshook/internal/constants"
	"poshook/internal/event"
)

type Builder struct {
	now      func() time.Time
	location *time.Location
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithLocation sets the zone timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(b *Builder) {
		if loc != nil {
			b.location = loc
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build maps ev to a payload. The only impure input is the emission
// timestamp taken from the builder clock.
func (b *Builder) Build(ev *event.CanonicalEvent, kind event.Kind) WebhookPayload {
	items := make([]Item, 0, len(ev.LineItems))
	for _, li := range ev.LineItems {
		items = append(items, Item{
			Name:   li.Name,
			Amount: li.Quantity,
			Price:  li.UnitPrice,
			Sum:    li.LineTotal,
		})
	}

	p := WebhookPayload{
		Version:     Version,
		EventType:   kind,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		OrderNumber: ev.Number,
		Status:      ev.Status,
		Sum:         ev.Total,
		Items:       items,
		CreatedAt:   b.format(ev.OpenTime),
		Timestamp:   b.now().In(b.location).Format(constants.TimestampLayout),
	}

	switch ev.EntityType {
	case event.EntityOrder:
		p.TableNumber = extraOrNA(ev, event.ExtraTable)
	case event.EntityDelivery:
		p.DeliveryStatus = extraOrNA(ev, event.ExtraDeliveryStatus)
		p.CustomerName = extraOrNA(ev, event.ExtraCustomerName)
		p.CustomerPhone = extraOrNA(ev, event.ExtraCustomerPhone)
		p.Address = extraOrNA(ev, event.ExtraAddress)
		p.RestaurantName, _ = ev.ExtraValue(event.ExtraRestaurantName)
		if raw, ok := ev.ExtraValue(event.ExtraDeliveryDate); ok {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				p.DeliveryDate = b.format(&ts)
			} else {
				p.DeliveryDate = &raw
			}
		}
	}

	return p
}

func (b *Builder) format(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.In(b.location).Format(constants.TimestampLayout)
	return &s
}

func extraOrNA(ev *event.CanonicalEvent, key string) string {
	if v, ok := ev.ExtraValue(key); ok && v != "" {
		return v
	}
	return constants.NotAvailable
}
