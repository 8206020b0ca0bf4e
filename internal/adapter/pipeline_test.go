package adapter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poshook/internal/event"
	"poshook/internal/normalizer"
	"poshook/internal/payload"
	"poshook/pkg/cel"
	apperrors "poshook/pkg/errors"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingSubmitter struct {
	mu       sync.Mutex
	payloads []payload.WebhookPayload
	err      error
	panics   bool
}

func (s *recordingSubmitter) Submit(p payload.WebhookPayload) (string, error) {
	if s.panics {
		panic("dispatcher exploded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.payloads = append(s.payloads, p)
	if s.err != nil {
		return "attempt-failed", s.err
	}
	return "attempt-" + p.EntityID, nil
}

func (s *recordingSubmitter) submitted() []payload.WebhookPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payload.WebhookPayload(nil), s.payloads...)
}

func newTestPipeline(sub Submitter, opts ...Option) *Pipeline {
	clock := func() time.Time { return testNow }
	base := []Option{
		WithNormalizer(normalizer.New(normalizer.WithClock(clock))),
		WithBuilder(payload.NewBuilder(payload.WithClock(clock), payload.WithLocation(time.UTC))),
	}
	return New(sub, append(base, opts...)...)
}

func order42() *normalizer.Order {
	openTime := testNow.Add(-2 * time.Second)
	return &normalizer.Order{
		ID:       "42",
		Number:   "42",
		Status:   "New",
		OpenTime: &openTime,
		Guests: []normalizer.Guest{{
			Items: []normalizer.Item{{
				Product: &normalizer.Product{Name: "Cola"},
				Amount:  decimal.NewFromInt(1),
				Price:   decimal.NewFromInt(100),
				Cost:    decimal.NewNullDecimal(decimal.NewFromInt(100)),
			}},
		}},
		Cost: decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}
}

func TestPipeline_NewOrderEndToEnd(t *testing.T) {
	sub := &recordingSubmitter{}
	p := newTestPipeline(sub)

	p.OnOrderChanged(order42())

	got := sub.submitted()
	require.Len(t, got, 1)

	body, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": 1,
		"eventType": "created",
		"entityType": "order",
		"orderId": "42",
		"orderNumber": "42",
		"status": "New",
		"tableNumber": "N/A",
		"sum": "100",
		"items": [{"name": "Cola", "amount": "1", "price": "100", "sum": "100"}],
		"createdAt": "2024-05-01 11:59:58",
		"timestamp": "2024-05-01 12:00:00"
	}`, string(body))
}

func TestPipeline_HandleOrderOutcome(t *testing.T) {
	sub := &recordingSubmitter{}
	p := newTestPipeline(sub)

	out, err := p.HandleOrder(context.Background(), order42(), SourceHTTP)
	require.NoError(t, err)
	assert.Equal(t, Outcome{AttemptID: "attempt-42", EntityKey: "order:42", Kind: event.KindCreated}, out)
}

func TestPipeline_Classification(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*normalizer.Order)
		want   event.Kind
	}{
		{name: "closed", mutate: func(o *normalizer.Order) { o.Status = "Closed" }, want: event.KindDeleted},
		{name: "deleted lowercase", mutate: func(o *normalizer.Order) { o.Status = "deleted" }, want: event.KindDeleted},
		{name: "new but old", mutate: func(o *normalizer.Order) {
			old := testNow.Add(-time.Minute)
			o.OpenTime = &old
		}, want: event.KindStatusChanged},
		{name: "new without open time", mutate: func(o *normalizer.Order) { o.OpenTime = nil }, want: event.KindStatusChanged},
		{name: "bill", mutate: func(o *normalizer.Order) { o.Status = "Bill" }, want: event.KindStatusChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &recordingSubmitter{}
			o := order42()
			tt.mutate(o)

			out, err := newTestPipeline(sub).HandleOrder(context.Background(), o, SourceHost)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Kind)
			require.Len(t, sub.submitted(), 1)
			assert.Equal(t, tt.want, sub.submitted()[0].EventType)
		})
	}
}

func TestPipeline_ConfiguredCreatedWindow(t *testing.T) {
	sub := &recordingSubmitter{}
	p := newTestPipeline(sub, WithClassifier(event.NewClassifier(time.Second)))

	out, err := p.HandleOrder(context.Background(), order42(), SourceHost)
	require.NoError(t, err)
	assert.Equal(t, event.KindStatusChanged, out.Kind)
}

func TestPipeline_NormalizationFailureIsNotSubmitted(t *testing.T) {
	sub := &recordingSubmitter{}
	p := newTestPipeline(sub)

	o := order42()
	o.ID = ""

	_, err := p.HandleOrder(context.Background(), o, SourceHTTP)
	require.True(t, apperrors.IsNormalization(err))
	assert.Empty(t, sub.submitted())
}

func TestPipeline_Delivery(t *testing.T) {
	sub := &recordingSubmitter{}
	p := newTestPipeline(sub)

	d := &normalizer.DeliveryOrder{
		Order:          *order42(),
		DeliveryStatus: "OnWay",
		Customer:       &normalizer.Customer{Name: "Ann", Phone: "+100"},
	}
	d.ID = "d-1"

	p.OnDeliveryOrderChanged(d, &normalizer.Restaurant{ID: "r-1", Name: "Main"})

	got := sub.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, event.EntityDelivery, got[0].EntityType)
	assert.Equal(t, "d-1", got[0].EntityID)
	assert.Equal(t, "OnWay", got[0].DeliveryStatus)
	assert.Equal(t, "Ann", got[0].CustomerName)
	assert.Equal(t, "N/A", got[0].Address)
	assert.Equal(t, "Main", got[0].RestaurantName)
}

func TestPipeline_Filter(t *testing.T) {
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)

	t.Run("rejects", func(t *testing.T) {
		f, err := eval.CompileFilter(`eventType != "created"`)
		require.NoError(t, err)

		sub := &recordingSubmitter{}
		out, err := newTestPipeline(sub, WithFilter(f)).HandleOrder(context.Background(), order42(), SourceHost)
		require.NoError(t, err)
		assert.True(t, out.Filtered)
		assert.Empty(t, out.AttemptID)
		assert.Empty(t, sub.submitted())
	})

	t.Run("permits", func(t *testing.T) {
		f, err := eval.CompileFilter(`entityType == "order" && total >= 100.0`)
		require.NoError(t, err)

		sub := &recordingSubmitter{}
		out, err := newTestPipeline(sub, WithFilter(f)).HandleOrder(context.Background(), order42(), SourceHost)
		require.NoError(t, err)
		assert.False(t, out.Filtered)
		assert.Len(t, sub.submitted(), 1)
	})

	t.Run("evaluation error forwards", func(t *testing.T) {
		f, err := eval.CompileFilter(`extra["missing"] == "x"`)
		require.NoError(t, err)

		sub := &recordingSubmitter{}
		out, err := newTestPipeline(sub, WithFilter(f)).HandleOrder(context.Background(), order42(), SourceHost)
		require.NoError(t, err)
		assert.False(t, out.Filtered)
		assert.Len(t, sub.submitted(), 1)
	})
}

func TestPipeline_CallbacksNeverPanic(t *testing.T) {
	p := newTestPipeline(&recordingSubmitter{panics: true})
	assert.NotPanics(t, func() { p.OnOrderChanged(order42()) })

	q := newTestPipeline(&recordingSubmitter{err: apperrors.ErrQueueFull})
	assert.NotPanics(t, func() { q.OnOrderChanged(order42()) })
	assert.NotPanics(t, func() { q.OnOrderChanged(nil) })
	assert.NotPanics(t, func() { q.OnDeliveryOrderChanged(nil, nil) })
}

type fakeSubscription struct {
	name   string
	closed *[]string
	err    error
}

func (s fakeSubscription) Close() error {
	*s.closed = append(*s.closed, s.name)
	return s.err
}

type fakeBus struct {
	closed      []string
	orderErr    error
	deliveryErr error
	disposeErr  error

	onOrder    func(*normalizer.Order)
	onDelivery func(*normalizer.DeliveryOrder, *normalizer.Restaurant)
}

func (b *fakeBus) SubscribeOrderChanged(h func(*normalizer.Order)) (io.Closer, error) {
	if b.orderErr != nil {
		return nil, b.orderErr
	}
	b.onOrder = h
	return fakeSubscription{name: "orders", closed: &b.closed, err: b.disposeErr}, nil
}

func (b *fakeBus) SubscribeDeliveryOrderChanged(h func(*normalizer.DeliveryOrder, *normalizer.Restaurant)) (io.Closer, error) {
	if b.deliveryErr != nil {
		return nil, b.deliveryErr
	}
	b.onDelivery = h
	return fakeSubscription{name: "deliveries", closed: &b.closed}, nil
}

func TestPipeline_RegisterAndClose(t *testing.T) {
	sub := &recordingSubmitter{}
	p := newTestPipeline(sub)
	bus := &fakeBus{disposeErr: stderrors.New("already disposed")}

	require.NoError(t, p.Register(bus))

	bus.onOrder(order42())
	assert.Len(t, sub.submitted(), 1)

	err := p.Close()
	assert.Error(t, err)
	assert.Equal(t, []string{"deliveries", "orders"}, bus.closed)

	assert.NoError(t, p.Close())
}

func TestPipeline_RegisterRollsBackOnFailure(t *testing.T) {
	p := newTestPipeline(&recordingSubmitter{})
	bus := &fakeBus{deliveryErr: stderrors.New("bus closed")}

	require.Error(t, p.Register(bus))
	assert.Equal(t, []string{"orders"}, bus.closed)
	assert.NoError(t, p.Close())
}
