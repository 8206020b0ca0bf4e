package adapter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poshook/internal/event"
	"poshook/internal/normalizer"
	apperrors "poshook/pkg/errors"
	"poshook/pkg/models"
)

func TestHandleEnvelope(t *testing.T) {
	order := order42()
	delivery := &normalizer.DeliveryOrder{Order: *order42(), DeliveryStatus: "New"}
	delivery.ID = "d-7"

	orderEnv, err := models.NewNotificationEnvelopeBuilder().WithOrder(order).Build()
	require.NoError(t, err)
	deliveryEnv, err := models.NewNotificationEnvelopeBuilder().
		WithDelivery(delivery, &normalizer.Restaurant{ID: "r-1", Name: "Main"}).
		Build()
	require.NoError(t, err)

	t.Run("order", func(t *testing.T) {
		sub := &recordingSubmitter{}
		require.NoError(t, newTestPipeline(sub).HandleEnvelope(context.Background(), *orderEnv))

		got := sub.submitted()
		require.Len(t, got, 1)
		assert.Equal(t, event.EntityOrder, got[0].EntityType)
		assert.Equal(t, event.KindCreated, got[0].EventType)
	})

	t.Run("delivery", func(t *testing.T) {
		sub := &recordingSubmitter{}
		require.NoError(t, newTestPipeline(sub).HandleEnvelope(context.Background(), *deliveryEnv))

		got := sub.submitted()
		require.Len(t, got, 1)
		assert.Equal(t, "d-7", got[0].EntityID)
		assert.Equal(t, "Main", got[0].RestaurantName)
	})

	t.Run("malformed order is fatal", func(t *testing.T) {
		env := *orderEnv
		env.Order = json.RawMessage(`{"id": [1]}`)

		err := newTestPipeline(&recordingSubmitter{}).HandleEnvelope(context.Background(), env)
		require.True(t, apperrors.IsValidation(err))
		assert.False(t, apperrors.IsRetryable(err))
	})

	t.Run("unknown kind", func(t *testing.T) {
		env := *orderEnv
		env.Kind = "table"

		err := newTestPipeline(&recordingSubmitter{}).HandleEnvelope(context.Background(), env)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing identity is not retried", func(t *testing.T) {
		env := *orderEnv
		env.Order = json.RawMessage(`{"number": "1", "status": "New"}`)

		err := newTestPipeline(&recordingSubmitter{}).HandleEnvelope(context.Background(), env)
		require.True(t, apperrors.IsNormalization(err))
		assert.False(t, apperrors.IsRetryable(err))
	})

	t.Run("queue full is retried", func(t *testing.T) {
		sub := &recordingSubmitter{err: apperrors.ErrQueueFull}

		err := newTestPipeline(sub).HandleEnvelope(context.Background(), *orderEnv)
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})
}
