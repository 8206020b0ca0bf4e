package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     = "trace_id"
	AttemptIDKey   = "attempt_id"
	EntityIDKey    = "entity_id"
	ServiceNameKey = "service_name"
	MessageIDKey   = "message_id"
	RequestIDKey   = "request_id"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey(TraceIDKey), traceID)
}

// WithAttemptID tags the context with a delivery attempt id.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, contextKey(AttemptIDKey), attemptID)
}

// WithEntityID tags the context with the entity a notification is about,
// in the form "<entityType>:<entityId>".
func WithEntityID(ctx context.Context, entityID string) context.Context {
	return context.WithValue(ctx, contextKey(EntityIDKey), entityID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, contextKey(ServiceNameKey), serviceName)
}

// WithMessageID tags the context with the id of an inbound broker message.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, contextKey(MessageIDKey), messageID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey(RequestIDKey), requestID)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetAttemptID(ctx context.Context) string {
	return stringValue(ctx, AttemptIDKey)
}

func GetEntityID(ctx context.Context) string {
	return stringValue(ctx, EntityIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

func stringValue(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 12)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	if attemptID := GetAttemptID(ctx); attemptID != "" {
		fields = append(fields, AttemptIDKey, attemptID)
	}

	if entityID := GetEntityID(ctx); entityID != "" {
		fields = append(fields, EntityIDKey, entityID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, MessageIDKey, messageID)
	}

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, RequestIDKey, requestID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	return fields
}
