package normalizer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poshook/internal/constants"
	"poshook/internal/event"
)

// Identity holds the mandatory fields of every notification.
type Identity struct {
	ID     string
	Number string
	Status string
}

func (i Identity) missing() []string {
	var fields []string
	if strings.TrimSpace(i.ID) == "" {
		fields = append(fields, "id")
	}
	if strings.TrimSpace(i.Number) == "" {
		fields = append(fields, "number")
	}
	if strings.TrimSpace(i.Status) == "" {
		fields = append(fields, "status")
	}
	return fields
}

// Source is the capability set the normalizer needs from a host record.
// Order and delivery records differ only in EntityType and Extra.
type Source interface {
	EntityType() event.EntityType
	Identity() Identity
	OpenedAt() *time.Time
	LineItems() []event.LineItem
	Total() decimal.Decimal
	Extra() map[string]string
}

var (
	_ Source = (*Order)(nil)
	_ Source = Delivery{}
)

func (o *Order) EntityType() event.EntityType {
	return event.EntityOrder
}

func (o *Order) Identity() Identity {
	if o == nil {
		return Identity{}
	}
	return Identity{ID: o.ID.String(), Number: o.Number.String(), Status: o.Status}
}

func (o *Order) OpenedAt() *time.Time {
	if o == nil || o.OpenTime == nil {
		return nil
	}
	t := *o.OpenTime
	return &t
}

// LineItems flattens guests into one sequence: guest order first, then item
// order within each guest.
func (o *Order) LineItems() []event.LineItem {
	if o == nil {
		return nil
	}

	items := make([]event.LineItem, 0, o.itemCount())
	for _, guest := range o.Guests {
		for _, item := range guest.Items {
			items = append(items, toLineItem(item))
		}
	}
	return items
}

func (o *Order) itemCount() int {
	n := 0
	for _, guest := range o.Guests {
		n += len(guest.Items)
	}
	return n
}

func (o *Order) Total() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	if o.Cost.Valid {
		return o.Cost.Decimal
	}

	sum := decimal.Zero
	for _, item := range o.LineItems() {
		sum = sum.Add(item.LineTotal)
	}
	return sum
}

func (o *Order) Extra() map[string]string {
	extra := map[string]string{event.ExtraTable: constants.NotAvailable}
	if o != nil && o.Table != nil && o.Table.Number != "" {
		extra[event.ExtraTable] = o.Table.Number.String()
	}
	return extra
}

func toLineItem(item Item) event.LineItem {
	name := constants.NotAvailable
	if item.Product != nil && item.Product.Name != "" {
		name = item.Product.Name
	}

	total := item.Amount.Mul(item.Price)
	if item.Cost.Valid {
		total = item.Cost.Decimal
	}

	return event.LineItem{
		Name:      name,
		Quantity:  item.Amount,
		UnitPrice: item.Price,
		LineTotal: total,
	}
}

// Delivery pairs a delivery order with the restaurant it was reported for.
type Delivery struct {
	Order      *DeliveryOrder
	Restaurant *Restaurant
}

func (d Delivery) base() *Order {
	if d.Order == nil {
		return nil
	}
	return &d.Order.Order
}

func (d Delivery) EntityType() event.EntityType {
	return event.EntityDelivery
}

func (d Delivery) Identity() Identity {
	return d.base().Identity()
}

func (d Delivery) OpenedAt() *time.Time {
	return d.base().OpenedAt()
}

func (d Delivery) LineItems() []event.LineItem {
	return d.base().LineItems()
}

func (d Delivery) Total() decimal.Decimal {
	return d.base().Total()
}

func (d Delivery) Extra() map[string]string {
	extra := map[string]string{
		event.ExtraDeliveryStatus: constants.NotAvailable,
		event.ExtraCustomerName:   constants.NotAvailable,
		event.ExtraCustomerPhone:  constants.NotAvailable,
		event.ExtraAddress:        constants.NotAvailable,
	}
	if d.Restaurant != nil && d.Restaurant.Name != "" {
		extra[event.ExtraRestaurantName] = d.Restaurant.Name
	}

	o := d.Order
	if o == nil {
		return extra
	}

	setIfPresent(extra, event.ExtraDeliveryStatus, o.DeliveryStatus)
	if o.Customer != nil {
		setIfPresent(extra, event.ExtraCustomerName, o.Customer.Name)
		setIfPresent(extra, event.ExtraCustomerPhone, o.Customer.Phone)
	}
	if o.Address != nil {
		setIfPresent(extra, event.ExtraAddress, o.Address.Line1)
	}
	if o.DeliveryDate != nil {
		extra[event.ExtraDeliveryDate] = o.DeliveryDate.Format(time.RFC3339Nano)
	}
	return extra
}

func setIfPresent(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
