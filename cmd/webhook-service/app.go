package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"poshook/internal/adapter"
	"poshook/internal/broker"
	"poshook/internal/config"
	"poshook/internal/constants"
	"poshook/internal/delivery"
	"poshook/internal/event"
	"poshook/internal/journal"
	"poshook/internal/logger"
	"poshook/internal/normalizer"
	"poshook/internal/payload"
	"poshook/pkg/bootstrap"
	"poshook/pkg/cel"
	"poshook/pkg/circuitbreaker"
	"poshook/pkg/health"
	"poshook/pkg/logging"
	"poshook/pkg/metrics"
	"poshook/pkg/middleware"
	"poshook/pkg/ratelimit"
	"poshook/pkg/retry"
	"poshook/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	dbs            *bootstrap.Databases
	store          journal.Store
	httpClient     *http.Client
	dispatcher     *delivery.Dispatcher
	pipeline       *adapter.Pipeline
	healthRegistry *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	stopLimiter    context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:           bootstrap.NewBase(cfg, log),
		dbConnector:    bootstrap.NewDatabaseConnector(cfg, log),
		healthRegistry: health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(ctx, a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	if err := a.initJournal(ctx); err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initDispatcher(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initJournal(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, dbs, err := a.dbConnector.InitJournal(initCtx)
	if err != nil {
		return err
	}
	a.store = store
	a.dbs = dbs
	a.dbs.RegisterHealth(a.healthRegistry)
	return nil
}

func (a *App) initDispatcher() error {
	cfg := a.Config

	transport := http.DefaultTransport.(*http.Transport).Clone()
	var rt http.RoundTripper = transport
	if cfg.Tracing.Enabled {
		rt = tracing.Transport(transport)
	}
	a.httpClient = delivery.NewHTTPClient(rt)

	var senderOpts []delivery.SenderOption
	if cfg.CircuitBreaker.Enabled {
		cbCfg := circuitbreaker.FromConfig("webhook-endpoint", cfg.CircuitBreaker)
		cbCfg.IsSuccessful = delivery.BreakerSuccess
		cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			a.Logger.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		}
		senderOpts = append(senderOpts, delivery.WithCircuitBreaker(circuitbreaker.NewWrapper(cbCfg)))
	}
	if cfg.Webhook.RateLimitRPS > 0 {
		senderOpts = append(senderOpts, delivery.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Webhook.RateLimitRPS), cfg.Webhook.RateLimitBurst)))
	}

	sender := delivery.NewHTTPSender(a.httpClient, delivery.SenderConfig{
		URL:                  cfg.Webhook.URL,
		Timeout:              cfg.Webhook.Timeout,
		BearerToken:          cfg.Webhook.BearerToken,
		SigningSecret:        cfg.Webhook.SigningSecret,
		SignatureHeader:      cfg.Webhook.SignatureHeader,
		MaxResponseBodyBytes: cfg.Webhook.MaxResponseBodyBytes,
	}, senderOpts...)

	sinks := delivery.MultiSink{delivery.NewLogSink(a.Logger.Named("delivery"))}
	if a.store != nil {
		sinks = append(sinks, journal.NewSink(a.store, a.Logger.Named("journal")))
	}
	if a.Producer != nil && cfg.Broker.Kafka.DLQTopic != "" {
		sinks = append(sinks, broker.NewDeadLetterSink(a.Producer, cfg.Broker.Kafka.DLQTopic, cfg.Broker.Kafka.Retry.Policy(retry.DefaultPolicy()), a.Logger.Named("dlq")))
	}

	a.dispatcher = delivery.New(delivery.Config{
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		Concurrency: cfg.Dispatcher.Concurrency,
		QueueSize:   cfg.Dispatcher.QueueSize,
		Backoff: retry.JitterPolicy{
			InitialInterval:     cfg.Dispatcher.InitialInterval,
			MaxInterval:         cfg.Dispatcher.MaxInterval,
			Multiplier:          cfg.Dispatcher.Multiplier,
			RandomizationFactor: cfg.Dispatcher.RandomizationFactor,
			MaxRetryAfter:       cfg.Dispatcher.MaxRetryAfter,
		},
		SinkTimeout: constants.DefaultSinkTimeout,
	}, sender, delivery.WithSink(sinks), delivery.WithLogger(a.Logger.Named("dispatcher")))

	a.healthRegistry.Register(health.NewDispatcherChecker(a.dispatcher))
	return nil
}

func compileFilter(expression string) (*cel.Filter, error) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	return eval.CompileFilter(expression)
}

func (a *App) initPipeline() error {
	loc, err := config.LoadLocation(a.Config.Webhook.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid webhook.time_zone %q: %w", a.Config.Webhook.TimeZone, err)
	}

	opts := []adapter.Option{
		adapter.WithNormalizer(normalizer.New()),
		adapter.WithClassifier(event.NewClassifier(a.Config.Classifier.CreatedWindow)),
		adapter.WithBuilder(payload.NewBuilder(payload.WithLocation(loc))),
		adapter.WithLogger(a.Logger.Named("adapter")),
	}

	if expr := a.Config.Webhook.Filter; expr != "" {
		filter, err := compileFilter(expr)
		if err != nil {
			return fmt.Errorf("invalid webhook.filter: %w", err)
		}
		opts = append(opts, adapter.WithFilter(filter))
		a.Logger.Infow("Event filter enabled", "expression", expr)
	}

	a.pipeline = adapter.New(a.dispatcher, opts...)
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger.Named("http")))

	router.GET("/health", a.healthRegistry.Handler())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.Config.Ingress.HTTPEnabled {
		api := router.Group("")
		if a.Config.Ingress.RateLimit.Enabled {
			limiterCtx, cancel := context.WithCancel(context.Background())
			a.stopLimiter = cancel

			rateLimitConfig := ratelimit.FromConfig(a.Config.Ingress.RateLimit)
			api.Use(ratelimit.RateLimitMiddleware(limiterCtx, rateLimitConfig))
			a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
		}

		handler := adapter.NewHandler(a.pipeline, a.dispatcher, a.store, a.Logger.Named("api"))
		handler.RegisterRoutes(api)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if a.Consumer != nil {
		topic := a.Config.Broker.Kafka.NotificationsTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting notification consumer", "topic", topic)
			err := a.Consumer.Consume(gCtx, topic, a.pipeline.HandleEnvelope)
			if gCtx.Err() != nil {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown stops intake first, then gives the dispatcher its grace period
// and finally releases the outbound client, stores and broker.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down webhook service")

	var steps []bootstrap.ShutdownStep

	if a.server != nil {
		steps = append(steps, bootstrap.ShutdownStep{Name: "http server", Fn: func(context.Context) error {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(serverCtx)
		}})
	}

	if a.stopLimiter != nil {
		steps = append(steps, bootstrap.ShutdownStep{Name: "ingress rate limiter", Fn: func(context.Context) error {
			a.stopLimiter()
			return nil
		}})
	}

	if a.pipeline != nil {
		steps = append(steps, bootstrap.ShutdownStep{Name: "pipeline", Fn: func(context.Context) error {
			return a.pipeline.Close()
		}})
	}

	if a.dispatcher != nil {
		steps = append(steps, bootstrap.ShutdownStep{Name: "dispatcher", Fn: func(context.Context) error {
			a.dispatcher.Shutdown(a.Config.Dispatcher.ShutdownGrace)
			return nil
		}})
	}

	if a.httpClient != nil {
		steps = append(steps, bootstrap.ShutdownStep{Name: "webhook client", Fn: func(context.Context) error {
			a.httpClient.CloseIdleConnections()
			return nil
		}})
	}

	if a.tracerProvider != nil {
		steps = append(steps, bootstrap.ShutdownStep{Name: "tracer provider", Fn: a.tracerProvider.Shutdown})
	}

	steps = append(steps, bootstrap.ShutdownStep{Name: "journal databases", Fn: func(ctx context.Context) error {
		return errors.Join(a.dbConnector.ShutdownDatabases(ctx, a.dbs)...)
	}})

	return a.Base.Shutdown(shutdownCtx, steps...)
}
