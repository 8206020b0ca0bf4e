package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"poshook/internal/constants"
	"poshook/internal/logger"
	"poshook/internal/payload"
	apperrors "poshook/pkg/errors"
	"poshook/pkg/logging"
	"poshook/pkg/metrics"
	"poshook/pkg/retry"
)

type Config struct {
	MaxAttempts int
	Concurrency int
	QueueSize   int
	Backoff     retry.JitterPolicy
	// SinkTimeout bounds every sink callback.
	SinkTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: constants.DefaultMaxAttempts,
		Concurrency: constants.DefaultConcurrency,
		QueueSize:   constants.DefaultQueueSize,
		Backoff:     retry.DefaultJitterPolicy(),
		SinkTimeout: constants.DefaultSinkTimeout,
	}
}

type Stats struct {
	Queued   int `json:"queued"`
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
}

type Option func(*Dispatcher)

func WithSink(s Sink) Option {
	return func(d *Dispatcher) {
		d.sink = s
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// Dispatcher owns every attempt from submission until it is delivered or
// abandoned. Submit never blocks; sends happen on a fixed pool of workers
// and retries are parked on timers.
type Dispatcher struct {
	cfg    Config
	sender Sender
	sink   Sink
	logger logger.Logger
	now    func() time.Time

	queue chan *Attempt

	mu       sync.Mutex
	pending  map[string]*Attempt
	inFlight int

	closed       *atomic.Bool
	shutdownOnce sync.Once

	// loopCtx stops the workers and requeues; sendCtx aborts HTTP sends
	// once the shutdown grace period is over.
	loopCtx    context.Context
	loopCancel context.CancelFunc
	sendCtx    context.Context
	sendCancel context.CancelFunc

	workers sync.WaitGroup
}

func New(cfg Config, sender Sender, opts ...Option) *Dispatcher {
	defaults := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaults.SinkTimeout
	}

	d := &Dispatcher{
		cfg:     cfg,
		sender:  sender,
		sink:    NopSink{},
		logger:  logger.NopLogger(),
		now:     time.Now,
		queue:   make(chan *Attempt, cfg.QueueSize),
		pending: make(map[string]*Attempt),
		closed:  atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.loopCtx, d.loopCancel = context.WithCancel(context.Background())
	d.sendCtx, d.sendCancel = context.WithCancel(context.Background())

	for i := 0; i < cfg.Concurrency; i++ {
		d.workers.Add(1)
		go d.worker()
	}

	return d
}

// Submit hands p over for delivery and returns the new attempt id. It
// never blocks: when the queue is full the attempt is abandoned with
// ErrQueueFull. Submitting the same payload twice creates two attempts.
func (d *Dispatcher) Submit(p payload.WebhookPayload) (string, error) {
	if d.closed.Load() {
		return "", apperrors.ErrDispatcherClosed
	}

	now := d.now()
	a := &Attempt{
		ID:            uuid.New().String(),
		Payload:       p,
		AttemptNumber: 1,
		Outcome:       OutcomePending,
		CreatedAt:     now,
		UpdatedAt:     now,
		schedule:      d.cfg.Backoff.NewSchedule(),
	}

	body, err := json.Marshal(p)
	if err != nil {
		serr := apperrors.ErrSerialization.WithCause(err)
		a.LastError = serr
		a.Outcome = OutcomeAbandoned
		d.notifyAbandoned(context.Background(), a.Snapshot())
		return a.ID, serr
	}
	a.Body = body

	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return "", apperrors.ErrDispatcherClosed
	}
	d.pending[a.ID] = a
	d.mu.Unlock()

	select {
	case d.queue <- a:
		return a.ID, nil
	default:
		err := apperrors.ErrQueueFull.WithDetail("queue_size", d.cfg.QueueSize)
		d.finish(a, OutcomeAbandoned, err)
		return a.ID, err
	}
}

// Get returns a snapshot of a non-terminal attempt.
func (d *Dispatcher) Get(id string) (Attempt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.pending[id]
	if !ok {
		return Attempt{}, false
	}
	return a.Snapshot(), true
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	s := Stats{
		Queued:   len(d.queue),
		Pending:  len(d.pending),
		InFlight: d.inFlight,
	}
	d.mu.Unlock()

	metrics.SetDispatcherGauges(s.Queued, s.Pending, s.InFlight)
	return s
}

func (d *Dispatcher) Closed() bool {
	return d.closed.Load()
}

// QueueUsage reports how many attempts wait for a worker and the queue
// capacity.
func (d *Dispatcher) QueueUsage() (queued, capacity int) {
	return len(d.queue), cap(d.queue)
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()

	for {
		select {
		case <-d.loopCtx.Done():
			return
		case a := <-d.queue:
			d.process(a)
		}
	}
}

func (d *Dispatcher) process(a *Attempt) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			d.logger.Errorw("Delivery worker recovered from panic", "attempt_id", a.ID, "error", err)
			d.finish(a, OutcomeAbandoned, err)
		}
	}()

	// Attempts picked up after shutdown started are swept by Shutdown.
	if d.closed.Load() {
		return
	}

	d.mu.Lock()
	if _, ok := d.pending[a.ID]; !ok {
		d.mu.Unlock()
		return
	}
	a.NextRetryAt = nil
	number := a.AttemptNumber
	d.inFlight++
	d.mu.Unlock()

	res := d.sender.Send(d.sendCtx, Request{
		AttemptID:      a.ID,
		AttemptNumber:  number,
		Body:           a.Body,
		IdempotencyKey: a.Payload.IdempotencyKey(),
	})

	d.mu.Lock()
	d.inFlight--
	a.LastStatus = res.StatusCode
	a.LastError = res.Err
	a.UpdatedAt = d.now()
	d.mu.Unlock()

	d.observeSend(res)

	switch {
	case res.Err == nil:
		d.finish(a, OutcomeDelivered, nil)
	case !apperrors.IsRetryable(res.Err):
		d.finish(a, OutcomeAbandoned, res.Err)
	case d.closed.Load():
		d.finish(a, OutcomeAbandoned, apperrors.ErrShutdown.WithCause(res.Err))
	case number >= d.cfg.MaxAttempts:
		// The counter moves past the maximum, as it would before a retry.
		d.mu.Lock()
		a.AttemptNumber++
		d.mu.Unlock()
		d.finish(a, OutcomeAbandoned, apperrors.ErrAttemptsExhausted.
			WithCause(res.Err).
			WithDetail("attempts", number))
	default:
		d.scheduleRetry(a, res.RetryAfter)
	}
}

func (d *Dispatcher) observeSend(res Result) {
	result := "success"
	switch {
	case apperrors.IsPermanentDelivery(res.Err):
		result = "permanent"
	case res.Err != nil:
		result = "transient"
	}
	metrics.ObserveDeliverySend(result, res.Duration)
}

func (d *Dispatcher) scheduleRetry(a *Attempt, retryAfter time.Duration) {
	d.mu.Lock()
	if _, ok := d.pending[a.ID]; !ok {
		d.mu.Unlock()
		return
	}

	delay := a.schedule.Next(retryAfter)
	next := d.now().Add(delay)
	a.AttemptNumber++
	a.NextRetryAt = &next
	a.Delays = append(a.Delays, delay)
	a.timer = time.AfterFunc(delay, func() { d.requeue(a) })
	snap := a.Snapshot()
	d.mu.Unlock()

	d.notify(context.Background(), snap, func(ctx context.Context) { d.sink.Retrying(ctx, snap, delay) })
}

// requeue runs on the retry timer. It may block while the queue is full
// but gives up once shutdown starts.
func (d *Dispatcher) requeue(a *Attempt) {
	select {
	case d.queue <- a:
	case <-d.loopCtx.Done():
	}
}

// finish moves a to a terminal outcome. Only the first call for a given
// attempt has an effect.
func (d *Dispatcher) finish(a *Attempt, outcome Outcome, err error) {
	d.finishWithin(context.Background(), a, outcome, err)
}

// finishWithin is finish with the sink callbacks bounded by parent as well
// as by SinkTimeout.
func (d *Dispatcher) finishWithin(parent context.Context, a *Attempt, outcome Outcome, err error) {
	d.mu.Lock()
	if _, ok := d.pending[a.ID]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, a.ID)
	if a.timer != nil {
		a.timer.Stop()
	}
	a.Outcome = outcome
	a.NextRetryAt = nil
	if err != nil {
		a.LastError = err
	}
	a.UpdatedAt = d.now()
	snap := a.Snapshot()
	d.mu.Unlock()

	if outcome == OutcomeDelivered {
		d.notify(parent, snap, func(ctx context.Context) { d.sink.Delivered(ctx, snap) })
		return
	}
	d.notifyAbandoned(parent, snap)
}

func (d *Dispatcher) notifyAbandoned(parent context.Context, snap Attempt) {
	d.notify(parent, snap, func(ctx context.Context) { d.sink.Abandoned(ctx, snap) })
}

func (d *Dispatcher) notify(parent context.Context, a Attempt, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.SinkTimeout)
	defer cancel()

	ctx = logging.WithServiceName(ctx, constants.ServiceName)
	ctx = logging.WithAttemptID(ctx, a.ID)
	ctx = logging.WithEntityID(ctx, a.Payload.EntityKey())

	if err := apperrors.Guard(func() error {
		fn(ctx)
		return nil
	}); err != nil {
		d.logger.Errorw("Delivery sink failed", "attempt_id", a.ID, "error", err)
	}
}

// Shutdown stops accepting submissions, waits up to grace for in-flight
// sends, cancels whatever is still running and abandons every attempt
// that has not reached a terminal outcome. It is safe to call more than
// once; later calls return immediately.
func (d *Dispatcher) Shutdown(grace time.Duration) {
	d.shutdownOnce.Do(func() {
		d.shutdown(grace)
	})
}

func (d *Dispatcher) shutdown(grace time.Duration) {
	d.closed.Store(true)
	d.loopCancel()

	d.mu.Lock()
	for _, a := range d.pending {
		if a.timer != nil {
			a.timer.Stop()
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()

	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-done:
		case <-t.C:
		}
		t.Stop()
	}

	d.sendCancel()

	// Cancelled sends return promptly; the bound only matters for a
	// sender that ignores its context.
	t := time.NewTimer(d.cfg.SinkTimeout + time.Second)
	select {
	case <-done:
	case <-t.C:
		d.logger.Warnw("Delivery workers did not stop in time")
	}
	t.Stop()

	d.mu.Lock()
	rest := make([]*Attempt, 0, len(d.pending))
	for _, a := range d.pending {
		rest = append(rest, a)
	}
	d.mu.Unlock()

	// One deadline covers the whole sweep, so a stuck sink costs at most
	// SinkTimeout however many attempts are left.
	sweepCtx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, a := range rest {
		g.Go(func() error {
			d.finishWithin(sweepCtx, a, OutcomeAbandoned, apperrors.ErrShutdown)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Infow("Dispatcher stopped", "abandoned", len(rest))
	d.Stats()
}
