package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/pubsub"
	"github.com/ledgerline/ledgerline/internal/sentry"
)

// Router runs the side-effect handlers attached to the outbox topic
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
	config *config.OutboxConfig
}

// NewRouter creates a message router. Messages that still fail after the
// configured retries are moved to <topic>_dlq on the same transport.
func NewRouter(cfg *config.Configuration, log *logger.Logger, sentry *sentry.Service, ps pubsub.PubSub) (*Router, error) {
	wmLogger := logger.NewWatermillAdapter(log)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	poisonQueue, err := middleware.PoisonQueue(&dlqPublisher{ps: ps}, DeadLetterTopic(cfg.Outbox.Topic))
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          cfg.Outbox.MaxRetries,
			InitialInterval:     cfg.Outbox.InitialInterval,
			MaxInterval:         cfg.Outbox.MaxInterval,
			Multiplier:          cfg.Outbox.Multiplier,
			MaxElapsedTime:      cfg.Outbox.MaxElapsedTime,
			RandomizationFactor: 0.5,
			Logger:              wmLogger,
			OnRetryHook: func(retryNum int, delay time.Duration) {
				log.Infow("retrying outbox message",
					"retry_number", retryNum,
					"max_retries", cfg.Outbox.MaxRetries,
					"delay", delay,
				)
			},
		}.Middleware,
	)

	return &Router{
		router: router,
		logger: log,
		sentry: sentry,
		config: &cfg.Outbox,
	}, nil
}

// DeadLetterTopic names the topic exhausted messages are parked on
func DeadLetterTopic(topic string) string {
	return topic + "_dlq"
}

// AddNoPublishHandler adds a handler that doesn't publish messages. Errors
// that cannot succeed on retry are reported and acked.
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err == nil {
				return nil
			}

			r.sentry.CaptureExceptionWithTags(err, map[string]string{
				"handler":      handlerName,
				"message_uuid": msg.UUID,
			})
			r.logger.Errorw("outbox handler failed",
				"handler", handlerName,
				"error", err,
				"correlation_id", middleware.MessageCorrelationID(msg),
				"message_uuid", msg.UUID,
			)

			if !shouldRetry(r.logger, err) {
				return nil
			}
			return err
		},
	)

	for _, m := range middlewares {
		handler.AddMiddleware(m)
	}
}

// Running is closed once handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Run blocks until ctx is cancelled or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting outbox router")
	return r.router.Run(ctx)
}

// Close gracefully shuts down the router
func (r *Router) Close() error {
	r.logger.Info("closing outbox router")
	return r.router.Close()
}

type dlqPublisher struct {
	ps pubsub.Publisher
}

func (d *dlqPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if err := d.ps.Publish(msg.Context(), topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (d *dlqPublisher) Close() error {
	return nil
}
