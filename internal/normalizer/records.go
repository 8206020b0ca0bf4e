package normalizer

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Text decodes from either a JSON string or a JSON number. Hosts report
// order and table numbers as integers while ids are usually strings.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string {
	return string(t)
}

type Product struct {
	Name string `json:"name"`
}

type Item struct {
	Product *Product        `json:"product"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
	// Cost is the host computed line total; absent means amount * price.
	Cost decimal.NullDecimal `json:"cost"`
}

type Guest struct {
	Name  string `json:"name,omitempty"`
	Items []Item `json:"items"`
}

type Table struct {
	Number Text `json:"number"`
}

// Order is the host's order record as seen by this service.
type Order struct {
	ID       Text       `json:"id"`
	Number   Text       `json:"number"`
	Status   string     `json:"status"`
	Table    *Table     `json:"table,omitempty"`
	OpenTime *time.Time `json:"openTime,omitempty"`
	Guests   []Guest    `json:"guests"`
	// Cost is the order sum; absent means the sum of line totals.
	Cost decimal.NullDecimal `json:"cost"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Address struct {
	Line1 string `json:"line1"`
}

type DeliveryOrder struct {
	Order
	DeliveryStatus string     `json:"deliveryStatus"`
	Customer       *Customer  `json:"customer,omitempty"`
	Address        *Address   `json:"address,omitempty"`
	DeliveryDate   *time.Time `json:"deliveryDate,omitempty"`
}

type Restaurant struct {
	ID   Text   `json:"id"`
	Name string `json:"name"`
}
