package event

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name     string
		status   string
		openTime *time.Time
		want     Kind
	}{
		{name: "closed without open time", status: "Closed", want: KindDeleted},
		{name: "closed just opened", status: "Closed", openTime: at(time.Second), want: KindDeleted},
		{name: "deleted long ago", status: "Deleted", openTime: at(time.Hour), want: KindDeleted},
		{name: "deleted lower case is not canonical", status: "deleted", openTime: at(0), want: KindStatusChanged},
		{name: "new opened now", status: "New", openTime: at(0), want: KindCreated},
		{name: "new opened 2s ago", status: "New", openTime: at(2 * time.Second), want: KindCreated},
		{name: "new at window boundary", status: "New", openTime: at(5 * time.Second), want: KindCreated},
		{name: "new just past boundary", status: "New", openTime: at(5001 * time.Millisecond), want: KindStatusChanged},
		{name: "new without open time", status: "New", want: KindStatusChanged},
		{name: "new opened in the future", status: "New", openTime: at(-time.Second), want: KindCreated},
		{name: "bill", status: "Bill", openTime: at(time.Second), want: KindStatusChanged},
		{name: "empty status", status: "", openTime: at(time.Second), want: KindStatusChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.openTime, now))
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	now := time.Now()
	open := now.Add(-3 * time.Second)

	first := Classify("New", &open, now)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify("New", &open, now))
	}
}

func TestClassifier_CustomWindow(t *testing.T) {
	now := time.Now()
	open := now.Add(-20 * time.Second)

	assert.Equal(t, KindStatusChanged, DefaultClassifier().Classify("New", &open, now))
	assert.Equal(t, KindCreated, NewClassifier(30*time.Second).Classify("New", &open, now))
}

func TestCanonicalEvent_Helpers(t *testing.T) {
	ev := CanonicalEvent{
		EntityType: EntityDelivery,
		EntityID:   "d-7",
		LineItems: []LineItem{
			{Name: "Soup", LineTotal: decimal.RequireFromString("10.10")},
			{Name: "Tea", LineTotal: decimal.RequireFromString("0.20")},
		},
		Extra: map[string]string{ExtraAddress: "Main st. 1"},
	}

	assert.Equal(t, "delivery:d-7", ev.IdempotencyKey())
	assert.True(t, decimal.RequireFromString("10.30").Equal(ev.LineItemsTotal()))

	v, ok := ev.ExtraValue(ExtraAddress)
	assert.True(t, ok)
	assert.Equal(t, "Main st. 1", v)
}

func TestCanonicalStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "New", want: StatusNew},
		{in: "new", want: StatusNew},
		{in: " CLOSED ", want: StatusClosed},
		{in: "deleted", want: StatusDeleted},
		{in: "Bill", want: "Bill"},
		{in: " Bill ", want: "Bill"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalStatus(tt.in))
		})
	}
}
