package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"poshook/internal/config"
)

func TestKafkaTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "kind", Value: []byte("order")}})
	require.Len(t, headers, 2)
	assert.Equal(t, "kind", headers[0].Key)
	assert.Equal(t, "traceparent", headers[1].Key)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, TraceID(ctx), TraceID(extracted))
	assert.NotEmpty(t, TraceID(extracted))
}

func TestTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(context.Background(), config.TracingConfig{Enabled: false}, "")
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(config.SamplerConfig{Type: "always_off"}).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(config.SamplerConfig{}).Description())
}

func TestTransport(t *testing.T) {
	assert.NotNil(t, Transport(nil))
	assert.NotNil(t, Transport(http.DefaultTransport))
}

func TestDeliverySpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartDeliverySpan(context.Background(), "a-1", 2)
	EndDeliverySpan(span, 503, errors.New("endpoint returned HTTP 503"))

	_, span = StartDeliverySpan(context.Background(), "a-2", 1)
	EndDeliverySpan(span, 204, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	failed := ended[0]
	assert.Equal(t, "webhook.send", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	attrs := map[string]interface{}{}
	for _, kv := range failed.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "a-1", attrs[string(AttrAttemptID)])
	assert.Equal(t, int64(2), attrs[string(AttrAttemptNumber)])
	assert.Equal(t, int64(503), attrs[string(AttrStatusCode)])
	require.Len(t, failed.Events(), 1)

	assert.Equal(t, codes.Ok, ended[1].Status().Code)
}
