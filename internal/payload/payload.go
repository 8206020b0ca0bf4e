// Package payload maps canonical events to the versioned JSON document
// posted to the webhook endpoint.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"poshook/internal/event"
)

const Version = 1

type Item struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	Sum    decimal.Decimal `json:"sum"`
}

// WebhookPayload is built once per canonical event and never modified
// afterwards. Money fields encode as decimal strings.
type WebhookPayload struct {
	Version        int
	EventType      event.Kind
	EntityType     event.EntityType
	EntityID       string
	OrderNumber    string
	Status         string
	TableNumber    string
	DeliveryStatus string
	CustomerName   string
	CustomerPhone  string
	Address        string
	RestaurantName string
	Sum            decimal.Decimal
	Items          []Item
	CreatedAt      *string
	DeliveryDate   *string
	Timestamp      string
}

// IdempotencyKey lets consumers deduplicate repeated deliveries of the same
// notification. It hashes the entity identity together with the encoded
// document, so every send of one attempt shares a key while two changes of
// an order within the same second do not.
func (p WebhookPayload) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(string(p.EntityType) + "|" + p.EntityID + "|" + p.Timestamp + "|"))
	if body, err := json.Marshal(p); err == nil {
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (p WebhookPayload) EntityKey() string {
	return string(p.EntityType) + ":" + p.EntityID
}

type orderWire struct {
	Version     int              `json:"version"`
	EventType   event.Kind       `json:"eventType"`
	EntityType  event.EntityType `json:"entityType"`
	OrderID     string           `json:"orderId"`
	OrderNumber string           `json:"orderNumber"`
	Status      string           `json:"status"`
	TableNumber string           `json:"tableNumber"`
	Sum         decimal.Decimal  `json:"sum"`
	Items       []Item           `json:"items"`
	CreatedAt   *string          `json:"createdAt"`
	Timestamp   string           `json:"timestamp"`
}

type deliveryWire struct {
	Version        int              `json:"version"`
	EventType      event.Kind       `json:"eventType"`
	EntityType     event.EntityType `json:"entityType"`
	DeliveryID     string           `json:"deliveryId"`
	OrderNumber    string           `json:"orderNumber"`
	Status         string           `json:"status"`
	DeliveryStatus string           `json:"deliveryStatus"`
	CustomerName   string           `json:"customerName"`
	CustomerPhone  string           `json:"customerPhone"`
	Address        string           `json:"address"`
	RestaurantName string           `json:"restaurantName,omitempty"`
	Sum            decimal.Decimal  `json:"sum"`
	Items          []Item           `json:"items"`
	CreatedAt      *string          `json:"createdAt"`
	DeliveryDate   *string          `json:"deliveryDate"`
	Timestamp      string           `json:"timestamp"`
}

func (p WebhookPayload) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []Item{}
	}

	switch p.EntityType {
	case event.EntityOrder:
		return json.Marshal(orderWire{
			Version:     p.Version,
			EventType:   p.EventType,
			EntityType:  p.EntityType,
			OrderID:     p.EntityID,
			OrderNumber: p.OrderNumber,
			Status:      p.Status,
			TableNumber: p.TableNumber,
			Sum:         p.Sum,
			Items:       items,
			CreatedAt:   p.CreatedAt,
			Timestamp:   p.Timestamp,
		})
	case event.EntityDelivery:
		return json.Marshal(deliveryWire{
			Version:        p.Version,
			EventType:      p.EventType,
			EntityType:     p.EntityType,
			DeliveryID:     p.EntityID,
			OrderNumber:    p.OrderNumber,
			Status:         p.Status,
			DeliveryStatus: p.DeliveryStatus,
			CustomerName:   p.CustomerName,
			CustomerPhone:  p.CustomerPhone,
			Address:        p.Address,
			RestaurantName: p.RestaurantName,
			Sum:            p.Sum,
			Items:          items,
			CreatedAt:      p.CreatedAt,
			DeliveryDate:   p.DeliveryDate,
			Timestamp:      p.Timestamp,
		})
	default:
		return nil, fmt.Errorf("unknown entity type %q", p.EntityType)
	}
}

func (p *WebhookPayload) UnmarshalJSON(data []byte) error {
	var w struct {
		deliveryWire
		OrderID     string `json:"orderId"`
		TableNumber string `json:"tableNumber"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*p = WebhookPayload{
		Version:        w.Version,
		EventType:      w.EventType,
		EntityType:     w.EntityType,
		EntityID:       w.DeliveryID,
		OrderNumber:    w.OrderNumber,
		Status:         w.Status,
		TableNumber:    w.TableNumber,
		DeliveryStatus: w.DeliveryStatus,
		CustomerName:   w.CustomerName,
		CustomerPhone:  w.CustomerPhone,
		Address:        w.Address,
		RestaurantName: w.RestaurantName,
		Sum:            w.Sum,
		Items:          w.Items,
		CreatedAt:      w.CreatedAt,
		DeliveryDate:   w.DeliveryDate,
		Timestamp:      w.Timestamp,
	}
	if w.EntityType == event.EntityOrder {
		p.EntityID = w.OrderID
	}
	return nil
}
