package journal

import (
	"context"
	"time"

	"poshook/internal/delivery"
	"poshook/internal/logger"
	"poshook/pkg/metrics"
)

// Sink records every attempt transition in a Store. Write failures are
// logged and never affect delivery.
type Sink struct {
	store  Store
	logger logger.Logger
}

func NewSink(store Store, log logger.Logger) *Sink {
	return &Sink{store: store, logger: log}
}

func (s *Sink) Delivered(ctx context.Context, a delivery.Attempt) {
	s.save(ctx, a)
}

func (s *Sink) Retrying(ctx context.Context, a delivery.Attempt, _ time.Duration) {
	s.save(ctx, a)
}

func (s *Sink) Abandoned(ctx context.Context, a delivery.Attempt) {
	s.save(ctx, a)
}

func (s *Sink) save(ctx context.Context, a delivery.Attempt) {
	if err := s.store.Save(ctx, RecordFromAttempt(a)); err != nil {
		metrics.IncJournalWrite(s.store.Name(), "error")
		s.logger.ErrorwCtx(ctx, "Failed to write delivery journal",
			"backend", s.store.Name(),
			"attempt_id", a.ID,
			"outcome", a.Outcome,
			"error", err,
		)
		return
	}
	metrics.IncJournalWrite(s.store.Name(), "ok")
}
