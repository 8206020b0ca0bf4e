package journal

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poshook/internal/delivery"
	"poshook/internal/event"
	"poshook/internal/logger"
	"poshook/internal/payload"
	apperrors "poshook/pkg/errors"
)

// memoryStore mirrors the backends' rule that a terminal record is never
// replaced by a pending one.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]Record)}
}

func (s *memoryStore) Name() string { return "memory" }

func (s *memoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if existing, ok := s.records[rec.AttemptID]; ok && existing.Terminal() && !rec.Terminal() {
		return nil
	}
	s.records[rec.AttemptID] = rec
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return &rec, nil
}

func sampleAttempt() delivery.Attempt {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return delivery.Attempt{
		ID: "a-1",
		Payload: payload.WebhookPayload{
			Version:    payload.Version,
			EventType:  event.KindStatusChanged,
			EntityType: event.EntityDelivery,
			EntityID:   "d-7",
			Sum:        decimal.NewFromInt(10),
			Timestamp:  "2024-05-01 12:00:00",
		},
		AttemptNumber: 1,
		Outcome:       delivery.OutcomePending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestRecordFromAttempt(t *testing.T) {
	a := sampleAttempt()
	a.AttemptNumber = 2
	a.LastStatus = 503
	a.LastError = apperrors.ErrTransientDelivery

	rec := RecordFromAttempt(a)

	assert.Equal(t, "a-1", rec.AttemptID)
	assert.Equal(t, "delivery", rec.EntityType)
	assert.Equal(t, "d-7", rec.EntityID)
	assert.Equal(t, "status_changed", rec.EventType)
	assert.Equal(t, a.Payload.IdempotencyKey(), rec.IdempotencyKey)
	assert.Equal(t, "pending", rec.Outcome)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, 503, rec.HTTPStatus)
	assert.Contains(t, rec.LastError, "TRANSIENT_DELIVERY_ERROR")
	assert.False(t, rec.Terminal())
}

func TestSink_RecordsTransitions(t *testing.T) {
	store := newMemoryStore()
	sink := NewSink(store, logger.NopLogger())
	ctx := context.Background()

	a := sampleAttempt()
	sink.Retrying(ctx, a, time.Second)

	rec, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", rec.Outcome)

	a.Outcome = delivery.OutcomeDelivered
	a.AttemptNumber = 2
	a.LastStatus = 200
	sink.Delivered(ctx, a)

	// A late pending write must not roll the outcome back.
	pending := sampleAttempt()
	sink.Retrying(ctx, pending, time.Second)

	rec, err = store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "delivered", rec.Outcome)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, 200, rec.HTTPStatus)
}

func TestSink_StoreErrorIsSwallowed(t *testing.T) {
	store := newMemoryStore()
	store.err = stderrors.New("connection refused")
	sink := NewSink(store, logger.NopLogger())

	a := sampleAttempt()
	a.Outcome = delivery.OutcomeAbandoned
	assert.NotPanics(t, func() { sink.Abandoned(context.Background(), a) })
}

func TestNotFound(t *testing.T) {
	_, err := newMemoryStore().Get(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
