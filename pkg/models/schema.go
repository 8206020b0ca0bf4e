package models

import (
	"bytes"
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateNotificationEnvelope(msg *NotificationEnvelope) error {
	if msg == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "notification envelope cannot be nil",
		}
	}

	if msg.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "message ID is required",
		}
	}

	if msg.Timestamp.IsZero() {
		return &ValidationError{
			Field:   "timestamp",
			Message: "message timestamp is required",
		}
	}

	switch msg.Kind {
	case KindOrder, KindDelivery:
	default:
		return &ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown notification kind %q (supported: order, delivery)", msg.Kind),
		}
	}

	if len(msg.Order) == 0 || bytes.Equal(msg.Order, []byte("null")) {
		return &ValidationError{
			Field:   "order",
			Message: "order record is required",
		}
	}

	return nil
}
