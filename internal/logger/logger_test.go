package logger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"poshook/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	log, err := New(Options{Level: "debug", Format: "console", ServiceName: "webhook-service"})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core), "webhook-service")

	ctx := logging.WithAttemptID(context.Background(), "a-1")
	log.InfowCtx(ctx, "delivered", "status_code", 200)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a-1", fields["attempt_id"])
	assert.Equal(t, "webhook-service", fields["service_name"])
	assert.EqualValues(t, 200, fields["status_code"])
}

func TestContextLoggingReportsCallSite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core, zap.AddCaller()), "").Named("dispatcher")

	log.WarnwCtx(context.Background(), "retrying")
	log.Warnw("retrying")

	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.True(t, entry.Caller.Defined)
		assert.True(t, strings.HasSuffix(entry.Caller.File, "logger_test.go"), entry.Caller.File)
		assert.Equal(t, "dispatcher", entry.LoggerName)
	}
}
