package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrTimeout            = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
)

// Webhook pipeline taxonomy.
var (
	ErrNormalization     = NewError("NORMALIZATION_ERROR", "notification is missing mandatory identity fields", http.StatusUnprocessableEntity).AsFatal()
	ErrTransientDelivery = NewError("TRANSIENT_DELIVERY_ERROR", "webhook delivery failed, will retry", http.StatusBadGateway).AsRetryable()
	ErrPermanentDelivery = NewError("PERMANENT_DELIVERY_ERROR", "webhook endpoint rejected the payload", http.StatusBadGateway).AsFatal()
	ErrSerialization     = NewError("SERIALIZATION_ERROR", "payload cannot be encoded", http.StatusInternalServerError).AsFatal()
	ErrQueueFull         = NewError("QUEUE_FULL", "delivery queue is full", http.StatusServiceUnavailable).AsFatal()
	ErrShutdown          = NewError("SHUTDOWN", "dispatcher is shutting down", http.StatusServiceUnavailable).AsFatal()
	ErrDispatcherClosed  = NewError("DISPATCHER_CLOSED", "dispatcher no longer accepts submissions", http.StatusServiceUnavailable).AsFatal()
	ErrAttemptsExhausted = NewError("ATTEMPTS_EXHAUSTED", "maximum delivery attempts reached", http.StatusBadGateway).AsFatal()
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so that errors.Is(err, ErrQueueFull) holds for
// copies produced by WithCause/WithDetail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return e.Code != ErrValidation.Code && e.Code != ErrNotFound.Code
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return e.Code == ErrValidation.Code || e.Code == ErrNotFound.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

// WithMessage overrides the human readable message, keeping the code.
func (e *Error) WithMessage(msg string) *Error {
	return e.WithDetail("message", msg)
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	retryable := true
	err.retryable = &retryable
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	retryable := false
	err.retryable = &retryable
	return err
}

// clone copies the error including its details map so that derived errors
// never share state with the package-level sentinels.
func (e *Error) clone() *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// hasCode walks the whole chain, so a wrapped cause still matches.
func hasCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsNormalization(err error) bool {
	return hasCode(err, ErrNormalization.Code)
}

func IsTransientDelivery(err error) bool {
	return hasCode(err, ErrTransientDelivery.Code)
}

func IsPermanentDelivery(err error) bool {
	return hasCode(err, ErrPermanentDelivery.Code)
}

// IsRetryable reports whether err may succeed on a later attempt.
// Errors outside this package are treated as not retryable.
func IsRetryable(err error) bool {
	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}
	return false
}

// Code returns the error code of an *Error in the chain, or "" otherwise.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Detail returns a detail value from the first *Error in the chain.
func Detail(err error, key string) (interface{}, bool) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return nil, false
	}
	v, ok := appErr.Details[key]
	return v, ok
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Error(),
		"error_code": appErr.Code,
	}

	details := make(map[string]interface{})
	for k, v := range appErr.Details {
		if k == "stack_trace" || k == "message" {
			continue
		}
		details[k] = v
	}
	if len(details) > 0 {
		response["details"] = details
	}

	return response
}
