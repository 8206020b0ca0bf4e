package delivery

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"poshook/internal/constants"
	apperrors "poshook/pkg/errors"
)

// Detail keys attached to delivery errors.
const (
	DetailStatusCode   = "status_code"
	DetailRetryAfter   = "retry_after"
	DetailResponseBody = "response_body"
	DetailReason       = "reason"
)

// classifyResponse maps an HTTP response to nil (delivered), a transient
// error (5xx, 429) or a permanent error (everything else).
func classifyResponse(status int, header http.Header, body []byte, now time.Time) error {
	if status >= constants.HTTPStatusOKMin && status < constants.HTTPStatusOKMax {
		return nil
	}

	snippet := strings.TrimSpace(string(body))

	switch {
	case status == http.StatusTooManyRequests:
		err := apperrors.ErrTransientDelivery.
			WithMessage("endpoint rate limited the request").
			WithDetail(DetailStatusCode, status).
			WithDetail(DetailResponseBody, snippet)
		if d, ok := ParseRetryAfter(header.Get("Retry-After"), now); ok {
			err = err.WithDetail(DetailRetryAfter, d)
		}
		return err
	case status >= 500:
		return apperrors.ErrTransientDelivery.
			WithMessage("endpoint returned HTTP " + strconv.Itoa(status)).
			WithDetail(DetailStatusCode, status).
			WithDetail(DetailResponseBody, snippet)
	default:
		return apperrors.ErrPermanentDelivery.
			WithMessage("endpoint returned HTTP " + strconv.Itoa(status)).
			WithDetail(DetailStatusCode, status).
			WithDetail(DetailResponseBody, snippet)
	}
}

// classifyTransportError wraps errors from http.Client.Do. Timeouts,
// refused connections and cancellations are all worth another try.
func classifyTransportError(err error) error {
	reason := "connection"

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		reason = "timeout"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	}

	return apperrors.ErrTransientDelivery.
		WithCause(err).
		WithMessage("webhook request failed: " + reason).
		WithDetail(DetailReason, reason)
}

// maxRetryAfterSeconds is the largest delta that fits a time.Duration.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter understands both delta-seconds and HTTP-date values.
// Deltas too large for a time.Duration are rejected.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 || seconds > maxRetryAfterSeconds {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

func retryAfterOf(err error) time.Duration {
	v, ok := apperrors.Detail(err, DetailRetryAfter)
	if !ok {
		return 0
	}
	d, _ := v.(time.Duration)
	return d
}

func statusCodeOf(err error) int {
	v, ok := apperrors.Detail(err, DetailStatusCode)
	if !ok {
		return 0
	}
	code, _ := v.(int)
	return code
}
