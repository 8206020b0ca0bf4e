package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"poshook/internal/event"
	"poshook/internal/payload"
	"poshook/pkg/retry"
)

func testPayload(id string) payload.WebhookPayload {
	return payload.WebhookPayload{
		Version:     payload.Version,
		EventType:   event.KindCreated,
		EntityType:  event.EntityOrder,
		EntityID:    id,
		OrderNumber: id,
		Status:      "New",
		TableNumber: "N/A",
		Sum:         decimal.NewFromInt(100),
		Items: []payload.Item{{
			Name:   "Cola",
			Amount: decimal.NewFromInt(1),
			Price:  decimal.NewFromInt(100),
			Sum:    decimal.NewFromInt(100),
		}},
		Timestamp: "2024-05-01 12:00:00",
	}
}

func fastConfig(maxAttempts, concurrency int) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Concurrency: concurrency,
		QueueSize:   16,
		Backoff: retry.JitterPolicy{
			InitialInterval:     time.Millisecond,
			MaxInterval:         5 * time.Millisecond,
			Multiplier:          2,
			RandomizationFactor: 0.2,
		},
		SinkTimeout: time.Second,
	}
}

type recordingSink struct {
	mu        sync.Mutex
	delivered []Attempt
	abandoned []Attempt
	retries   []time.Duration
	terminal  chan Attempt
}

func newRecordingSink() *recordingSink {
	return &recordingSink{terminal: make(chan Attempt, 64)}
}

func (s *recordingSink) Delivered(_ context.Context, a Attempt) {
	s.mu.Lock()
	s.delivered = append(s.delivered, a)
	s.mu.Unlock()
	s.terminal <- a
}

func (s *recordingSink) Retrying(_ context.Context, _ Attempt, delay time.Duration) {
	s.mu.Lock()
	s.retries = append(s.retries, delay)
	s.mu.Unlock()
}

func (s *recordingSink) Abandoned(_ context.Context, a Attempt) {
	s.mu.Lock()
	s.abandoned = append(s.abandoned, a)
	s.mu.Unlock()
	s.terminal <- a
}

func (s *recordingSink) wait(t *testing.T, n int) []Attempt {
	t.Helper()

	var got []Attempt
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case a := <-s.terminal:
			got = append(got, a)
		case <-timeout:
			require.FailNowf(t, "timed out", "got %d of %d terminal attempts", len(got), n)
		}
	}
	return got
}

// scriptedSender replays results in order and repeats the last one.
type scriptedSender struct {
	mu      sync.Mutex
	results []Result
	calls   []Request
}

func (s *scriptedSender) Send(_ context.Context, req Request) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)
	i := len(s.calls) - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i]
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// blockingSender parks every send until release is closed or ctx ends.
type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingSender() *blockingSender {
	return &blockingSender{started: make(chan struct{}, 64), release: make(chan struct{})}
}

func (s *blockingSender) Send(ctx context.Context, _ Request) Result {
	s.started <- struct{}{}
	select {
	case <-s.release:
		return Result{StatusCode: 200}
	case <-ctx.Done():
		return Result{Err: classifyTransportError(ctx.Err())}
	}
}

// stuckSink holds every abandoned notification until its context ends,
// like a dead-letter publish against an unreachable broker.
type stuckSink struct {
	mu        sync.Mutex
	abandoned int
}

func (s *stuckSink) Delivered(context.Context, Attempt)               {}
func (s *stuckSink) Retrying(context.Context, Attempt, time.Duration) {}

func (s *stuckSink) Abandoned(ctx context.Context, _ Attempt) {
	s.mu.Lock()
	s.abandoned++
	s.mu.Unlock()
	<-ctx.Done()
}

func (s *stuckSink) abandonedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}
