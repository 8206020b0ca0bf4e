package cel

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poshook/internal/event"
)

func sampleEvent() *event.CanonicalEvent {
	return &event.CanonicalEvent{
		EntityType: event.EntityOrder,
		EntityID:   "42",
		Number:     "42",
		Status:     "New",
		LineItems:  []event.LineItem{{Name: "Cola", LineTotal: decimal.NewFromInt(100)}},
		Total:      decimal.NewFromInt(100),
		Extra:      map[string]string{event.ExtraTable: "N/A"},
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "valid equality", expr: `entityType == "order"`},
		{name: "valid numeric", expr: `total > 10.0`},
		{name: "invalid syntax", expr: `entityType ==`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "x"`, wantError: true},
		{name: "non bool output", expr: `entityId`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			_, err := eval.CompileFilter(expr)
			assert.NoError(t, err)
		})
	}
}

func TestFilter_Allow(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		kind event.Kind
		want bool
	}{
		{name: "orders only", expr: FilterExpressionExamples["orders_only"], kind: event.KindCreated, want: true},
		{name: "skip status changes", expr: FilterExpressionExamples["skip_status_changes"], kind: event.KindStatusChanged, want: false},
		{name: "large orders", expr: FilterExpressionExamples["large_orders"], kind: event.KindCreated, want: false},
		{name: "table known", expr: FilterExpressionExamples["table_known"], kind: event.KindCreated, want: false},
		{name: "combined", expr: FilterExpressionExamples["combined"], kind: event.KindCreated, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)

			got, err := f.Allow(context.Background(), sampleEvent(), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.expr, f.Expression())
		})
	}
}

func TestFilter_EvaluationError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	f, err := eval.CompileFilter(`extra["missing"] == "x"`)
	require.NoError(t, err)

	_, err = f.Allow(context.Background(), sampleEvent(), event.KindCreated)
	assert.Error(t, err)
}
