package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestHelpers(t *testing.T) {
	before := testutil.ToFloat64(DeliveryOutcomesTotal.WithLabelValues("abandoned", "PERMANENT_DELIVERY_ERROR"))
	IncDeliveryOutcome("abandoned", "PERMANENT_DELIVERY_ERROR")
	after := testutil.ToFloat64(DeliveryOutcomesTotal.WithLabelValues("abandoned", "PERMANENT_DELIVERY_ERROR"))
	assert.Equal(t, before+1, after)

	SetDispatcherGauges(3, 5, 2)
	assert.Equal(t, float64(3), testutil.ToFloat64(DispatcherQueueSize))
	assert.Equal(t, float64(5), testutil.ToFloat64(DispatcherPending))
	assert.Equal(t, float64(2), testutil.ToFloat64(DispatcherInFlight))

	ObserveDeliverySend("success", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(DeliveryDuration))
}
