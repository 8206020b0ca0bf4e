// Package event holds the canonical, source-agnostic representation of a
// POS change notification and the rules used to classify it.
package event

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityDelivery EntityType = "delivery"
)

type Kind string

const (
	KindCreated       Kind = "created"
	KindStatusChanged Kind = "status_changed"
	KindDeleted       Kind = "deleted"
)

// Keys used in CanonicalEvent.Extra.
const (
	ExtraTable          = "tableNumber"
	ExtraDeliveryStatus = "deliveryStatus"
	ExtraCustomerName   = "customerName"
	ExtraCustomerPhone  = "customerPhone"
	ExtraAddress        = "address"
	ExtraDeliveryDate   = "deliveryDate"
	ExtraRestaurantName = "restaurantName"
)

type LineItem struct {
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// CanonicalEvent exists only while a notification flows through the
// normalize, classify and build steps.
type CanonicalEvent struct {
	EntityType EntityType
	EntityID   string
	Number     string
	Status     string
	OpenTime   *time.Time
	ObservedAt time.Time
	LineItems  []LineItem
	Total      decimal.Decimal
	Extra      map[string]string
}

// IdempotencyKey identifies the logical business object across repeated
// notifications.
func (e *CanonicalEvent) IdempotencyKey() string {
	return string(e.EntityType) + ":" + e.EntityID
}

func (e *CanonicalEvent) LineItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range e.LineItems {
		sum = sum.Add(item.LineTotal)
	}
	return sum
}

func (e *CanonicalEvent) ExtraValue(key string) (string, bool) {
	v, ok := e.Extra[key]
	return v, ok
}
