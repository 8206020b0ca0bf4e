// Package adapter connects host change notifications to the webhook
// dispatcher: normalize, classify, filter, build and submit.
package adapter

import (
	"context"
	stderrors "errors"
	"io"
	"sync"

	"poshook/internal/event"
	"poshook/internal/logger"
	"poshook/internal/normalizer"
	"poshook/internal/payload"
	"poshook/pkg/cel"
	apperrors "poshook/pkg/errors"
	"poshook/pkg/logging"
	"poshook/pkg/metrics"
)

// Notification sources, used as a metrics label.
const (
	SourceHost  = "host"
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// Submitter accepts built payloads for delivery without blocking.
type Submitter interface {
	Submit(p payload.WebhookPayload) (string, error)
}

// Outcome describes what happened to one notification.
type Outcome struct {
	AttemptID string
	EntityKey string
	Kind      event.Kind
	Filtered  bool
}

type Pipeline struct {
	normalizer *normalizer.Normalizer
	classifier event.Classifier
	filter     *cel.Filter
	builder    *payload.Builder
	submitter  Submitter
	logger     logger.Logger

	mu   sync.Mutex
	subs []io.Closer
}

type Option func(*Pipeline)

func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(p *Pipeline) {
		p.normalizer = n
	}
}

func WithClassifier(c event.Classifier) Option {
	return func(p *Pipeline) {
		p.classifier = c
	}
}

// WithFilter drops events for which f evaluates to false. Evaluation
// errors let the event through.
func WithFilter(f *cel.Filter) Option {
	return func(p *Pipeline) {
		p.filter = f
	}
}

func WithBuilder(b *payload.Builder) Option {
	return func(p *Pipeline) {
		p.builder = b
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func New(submitter Submitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer.New(),
		classifier: event.DefaultClassifier(),
		builder:    payload.NewBuilder(),
		submitter:  submitter,
		logger:     logger.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) HandleOrder(ctx context.Context, order *normalizer.Order, source string) (Outcome, error) {
	return p.Handle(ctx, order, source)
}

func (p *Pipeline) HandleDelivery(ctx context.Context, order *normalizer.DeliveryOrder, restaurant *normalizer.Restaurant, source string) (Outcome, error) {
	return p.Handle(ctx, normalizer.Delivery{Order: order, Restaurant: restaurant}, source)
}

// Handle runs one notification through the pipeline. It never performs
// network I/O itself; delivery happens on the dispatcher's workers.
func (p *Pipeline) Handle(ctx context.Context, src normalizer.Source, source string) (Outcome, error) {
	entityType := string(src.EntityType())
	metrics.IncNotificationReceived(entityType, source)

	ev, err := p.normalizer.Normalize(src)
	if err != nil {
		metrics.IncNormalizationFailure(entityType)
		p.logger.ErrorwCtx(ctx, "Dropping notification",
			"entity_type", entityType,
			"source", source,
			"error", err,
		)
		return Outcome{}, err
	}

	out := Outcome{EntityKey: string(ev.EntityType) + ":" + ev.EntityID}
	ctx = logging.WithEntityID(ctx, out.EntityKey)

	out.Kind = p.classifier.Classify(ev.Status, ev.OpenTime, ev.ObservedAt)
	metrics.IncEventClassified(entityType, string(out.Kind))

	if !p.allow(ctx, ev, out.Kind) {
		out.Filtered = true
		p.logger.DebugwCtx(ctx, "Notification filtered out",
			"event_type", out.Kind,
			"status", ev.Status,
		)
		return out, nil
	}

	built := p.builder.Build(ev, out.Kind)

	out.AttemptID, err = p.submitter.Submit(built)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to submit webhook",
			"event_type", out.Kind,
			"attempt_id", out.AttemptID,
			"error", err,
		)
		return out, err
	}

	p.logger.InfowCtx(ctx, "Webhook submitted",
		"event_type", out.Kind,
		"status", ev.Status,
		"attempt_id", out.AttemptID,
		"source", source,
	)
	return out, nil
}

func (p *Pipeline) allow(ctx context.Context, ev *event.CanonicalEvent, kind event.Kind) bool {
	if p.filter == nil {
		return true
	}

	allowed, err := p.filter.Allow(ctx, ev, kind)
	if err != nil {
		metrics.IncEventFiltered("error")
		p.logger.WarnwCtx(ctx, "Filter evaluation failed, forwarding event",
			"expression", p.filter.Expression(),
			"error", err,
		)
		return true
	}

	if allowed {
		metrics.IncEventFiltered("passed")
	} else {
		metrics.IncEventFiltered("rejected")
	}
	return allowed
}

// OnOrderChanged is the host callback for order changes. It never panics
// and never reports errors back to the host.
func (p *Pipeline) OnOrderChanged(order *normalizer.Order) {
	p.guard(func() error {
		_, err := p.HandleOrder(context.Background(), order, SourceHost)
		return err
	})
}

// OnDeliveryOrderChanged is the host callback for delivery order changes.
func (p *Pipeline) OnDeliveryOrderChanged(order *normalizer.DeliveryOrder, restaurant *normalizer.Restaurant) {
	p.guard(func() error {
		_, err := p.HandleDelivery(context.Background(), order, restaurant, SourceHost)
		return err
	})
}

// guard logs recovered panics; ordinary errors were logged by Handle.
func (p *Pipeline) guard(fn func() error) {
	defer func() {
		// The logger must not unwind into the host either.
		_ = recover()
	}()

	err := apperrors.Guard(fn)
	v, _ := apperrors.Detail(err, "panic")
	if panicked, _ := v.(bool); panicked {
		p.logger.Errorw("Recovered panic in notification callback", "error", err)
	}
}

// NotificationBus is the host's event bus.
type NotificationBus interface {
	SubscribeOrderChanged(handler func(order *normalizer.Order)) (io.Closer, error)
	SubscribeDeliveryOrderChanged(handler func(order *normalizer.DeliveryOrder, restaurant *normalizer.Restaurant)) (io.Closer, error)
}

// Register subscribes both callbacks to bus. On failure nothing stays
// subscribed.
func (p *Pipeline) Register(bus NotificationBus) error {
	orders, err := bus.SubscribeOrderChanged(p.OnOrderChanged)
	if err != nil {
		return apperrors.ErrInternal.WithCause(err).WithMessage("failed to subscribe to order changes")
	}

	deliveries, err := bus.SubscribeDeliveryOrderChanged(p.OnDeliveryOrderChanged)
	if err != nil {
		if closeErr := orders.Close(); closeErr != nil {
			p.logger.Warnw("Failed to dispose order subscription", "error", closeErr)
		}
		return apperrors.ErrInternal.WithCause(err).WithMessage("failed to subscribe to delivery order changes")
	}

	p.mu.Lock()
	p.subs = append(p.subs, orders, deliveries)
	p.mu.Unlock()

	p.logger.Infow("Subscribed to host notifications")
	return nil
}

// Close disposes subscriptions in reverse order of registration. Every
// subscription is disposed even if an earlier one fails.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	var errs []error
	for i := len(subs) - 1; i >= 0; i-- {
		if err := subs[i].Close(); err != nil {
			p.logger.Warnw("Failed to dispose subscription", "error", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
