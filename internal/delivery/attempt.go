// Package delivery posts webhook payloads to the configured endpoint with
// bounded concurrency, retries and a bounded shutdown.
package delivery

import (
	"time"

	"poshook/internal/payload"
	"poshook/pkg/retry"
)

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeDelivered Outcome = "delivered"
	OutcomeAbandoned Outcome = "abandoned"
)

// Attempt tracks one payload until it is delivered or abandoned. Sends of
// the same attempt are strictly sequential.
type Attempt struct {
	ID      string
	Payload payload.WebhookPayload
	// Body is the encoded payload, produced once at submission.
	Body []byte
	// AttemptNumber starts at 1 and advances after every retryable
	// failure. Once max attempts are exhausted it is one past the last send.
	AttemptNumber int
	NextRetryAt   *time.Time
	LastError     error
	LastStatus    int
	// Delays holds every scheduled retry delay, in order.
	Delays    []time.Duration
	Outcome   Outcome
	CreatedAt time.Time
	UpdatedAt time.Time

	schedule *retry.Schedule
	timer    *time.Timer
}

// Snapshot returns a copy safe to hand to other goroutines.
func (a *Attempt) Snapshot() Attempt {
	s := *a
	s.Delays = append([]time.Duration(nil), a.Delays...)
	if a.NextRetryAt != nil {
		t := *a.NextRetryAt
		s.NextRetryAt = &t
	}
	s.schedule = nil
	s.timer = nil
	return s
}

func (a *Attempt) Terminal() bool {
	return a.Outcome == OutcomeDelivered || a.Outcome == OutcomeAbandoned
}

func (a *Attempt) LastErrorString() string {
	if a.LastError == nil {
		return ""
	}
	return a.LastError.Error()
}
