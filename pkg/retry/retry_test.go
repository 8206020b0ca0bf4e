package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "poshook/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		fatal     bool
		attempts  int
		wantCalls int
		wantError bool
	}{
		{name: "succeeds first time", failures: 0, attempts: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, attempts: 3, wantCalls: 3},
		{name: "exhausts attempts", failures: 5, attempts: 3, wantCalls: 3, wantError: true},
		{name: "fatal stops immediately", failures: 5, fatal: true, attempts: 3, wantCalls: 1, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(tt.attempts), func() error {
				calls++
				if calls <= tt.failures {
					if tt.fatal {
						return Stop(errors.New("bad request"))
					}
					return errors.New("unavailable")
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithCallback(t *testing.T) {
	var retried []int
	var delays []time.Duration
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		return errors.New("unavailable")
	}, func(attempt int, err error, nextDelay time.Duration) {
		retried = append(retried, attempt)
		delays = append(delays, nextDelay)
	})

	assert.EqualError(t, err, "unavailable")
	assert.Equal(t, []int{1, 2}, retried)
	for _, d := range delays {
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 5*time.Millisecond)
	}
}

func TestRetry_CodedFatalErrorStops(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return apperrors.ErrPermanentDelivery.WithMessage("endpoint returned HTTP 404")
	})

	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsPermanentDelivery(err))
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(5), func() error {
		calls++
		return errors.New("unavailable")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, time.Second, p.MaxInterval)
	assert.Equal(t, 2.0, p.Multiplier)
}
