package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poshook/internal/broker"
	"poshook/internal/config"
	"poshook/internal/logger"
)

// Base carries what every relay process owns: configuration, the root
// logger and the broker clients.
type Base struct {
	Config *config.Config
	Logger logger.Logger
	// Producer is set only when a dead-letter topic is configured.
	Producer broker.Producer
	// Consumer is set only when Kafka ingress is configured.
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) BrokerEnabled() bool {
	return b.Config.Broker.Type != ""
}

// InitBroker builds the clients the configured topics need. The producer
// is shared by the delivery dead-letter sink and the consumer's own
// poison-message path.
func (b *Base) InitBroker(serviceName string) error {
	if !b.BrokerEnabled() {
		b.Logger.Info("Broker disabled, skipping Kafka ingress and dead-letter topic")
		return nil
	}

	kafkaCfg := b.Config.Broker.Kafka

	if kafkaCfg.DLQTopic != "" {
		producer, err := broker.NewProducer(b.Config.Broker, b.Logger.Named("producer"))
		if err != nil {
			return fmt.Errorf("failed to create producer: %w", err)
		}
		b.Producer = producer
	}

	if kafkaCfg.NotificationsTopic != "" {
		consumer, err := broker.NewConsumer(b.Config.Broker, b.Producer, b.Logger.Named("consumer"))
		if err != nil {
			if b.Producer != nil {
				_ = b.Producer.Close()
				b.Producer = nil
			}
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		if serviceName != "" {
			consumer.SetServiceName(serviceName)
		}
		b.Consumer = consumer
	}

	b.Logger.Infow("Broker initialized",
		"type", b.Config.Broker.Type,
		"notifications_topic", kafkaCfg.NotificationsTopic,
		"dlq_topic", kafkaCfg.DLQTopic,
	)
	return nil
}

// ShutdownStep is one named stage of an ordered shutdown.
type ShutdownStep struct {
	Name string
	Fn   func(ctx context.Context) error
}

// brokerSteps closes the consumer before the producer so dead letters
// written while the last messages drain still reach the topic.
func (b *Base) brokerSteps() []ShutdownStep {
	var steps []ShutdownStep
	if b.Consumer != nil {
		steps = append(steps, ShutdownStep{Name: "kafka consumer", Fn: func(context.Context) error {
			return b.Consumer.Close()
		}})
	}
	if b.Producer != nil {
		steps = append(steps, ShutdownStep{Name: "kafka producer", Fn: func(context.Context) error {
			return b.Producer.Close()
		}})
	}
	return steps
}

// Shutdown runs steps in order and closes the broker last. A failing step
// does not stop the ones after it.
func (b *Base) Shutdown(ctx context.Context, steps ...ShutdownStep) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error
	for _, step := range append(steps, b.brokerSteps()...) {
		start := time.Now()
		if err := step.Fn(ctx); err != nil {
			b.Logger.ErrorwCtx(ctx, "Shutdown step failed", "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		b.Logger.DebugwCtx(ctx, "Shutdown step finished", "step", step.Name, "duration", time.Since(start))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
