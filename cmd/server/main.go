package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/api/cron"
	v1 "github.com/ledgerline/ledgerline/internal/api/v1"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/currency"
	"github.com/ledgerline/ledgerline/internal/dynamodb"
	"github.com/ledgerline/ledgerline/internal/integration/stripe"
	"github.com/ledgerline/ledgerline/internal/integration/zarinpal"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	"github.com/ledgerline/ledgerline/internal/pubsub"
	"github.com/ledgerline/ledgerline/internal/pubsub/kafka"
	"github.com/ledgerline/ledgerline/internal/pubsub/memory"
	pubsubRouter "github.com/ledgerline/ledgerline/internal/pubsub/router"
	"github.com/ledgerline/ledgerline/internal/pyroscope"
	"github.com/ledgerline/ledgerline/internal/repository"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/service"
	"github.com/ledgerline/ledgerline/internal/svix"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Stores
			providePostgres,
			dynamodb.NewClient,

			// Currency
			currency.NewRateProvider,
			currency.NewConverter,

			// Gateways
			stripe.NewClient,
			zarinpal.NewClient,
			provideNotifier,

			// Outbox
			providePubSub,
			pubsubRouter.NewRouter,
		),
		sentry.Module(),
		pyroscope.Module(),
		repository.Module(),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewPromotionService,
			service.NewInvoiceService,
			service.NewPaymentService,
			service.NewReconcilerService,
			service.NewClientService,
			service.NewProductService,
			service.NewSideEffectService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

// providePostgres connects only when postgres backs the stores
func providePostgres(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*postgres.DB, error) {
	if cfg.Store.Type != types.StoreTypePostgres {
		return nil, nil
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Postgres.AutoMigrate {
				return nil
			}
			return postgres.Migrate(ctx, db)
		},
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// provideNotifier keeps the svix client behind the service-facing interface
func provideNotifier(cfg *config.Configuration) (service.Notifier, error) {
	client, err := svix.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// providePubSub returns the single pubsub both the outbox publisher and the
// side-effect router share. The in-memory one only fans out inside this
// process, so it is meant for local mode.
func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)
	switch cfg.Outbox.PubSub {
	case types.KafkaPubSub:
		ps, err = kafka.NewPubSub(cfg, log)
		if err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func provideHandlers(
	cfg *config.Configuration,
	logger *logger.Logger,
	invoiceService service.InvoiceService,
	paymentService service.PaymentService,
	reconcilerService service.ReconcilerService,
	promotionService service.PromotionService,
	clientService service.ClientService,
	productService service.ProductService,
) api.Handlers {
	return api.Handlers{
		Health:      v1.NewHealthHandler(cfg, logger),
		Invoice:     v1.NewInvoiceHandler(invoiceService, paymentService, reconcilerService, logger),
		Payment:     v1.NewPaymentHandler(paymentService, logger),
		Promotion:   v1.NewPromotionHandler(promotionService, logger),
		Client:      v1.NewClientHandler(clientService, logger),
		Product:     v1.NewProductHandler(productService, logger),
		Webhook:     v1.NewWebhookHandler(reconcilerService, logger),
		CronInvoice: cron.NewInvoiceHandler(invoiceService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	sideEffects service.SideEffectService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, ps, sideEffects, log)
	case types.ModeAPI:
		if cfg.Outbox.PubSub != types.KafkaPubSub {
			log.Warnw("api mode with an in-process outbox; side effects run in this process")
			startMessageRouter(lc, router, ps, sideEffects, log)
		}
		startAPIServer(lc, r, cfg, log)
	case types.ModeConsumer:
		if cfg.Outbox.PubSub != types.KafkaPubSub {
			log.Fatal("consumer mode requires the kafka outbox")
		}
		startMessageRouter(lc, router, ps, sideEffects, log)
	case types.ModeAWSLambdaAPI:
		startMessageRouter(lc, router, ps, sideEffects, log)
		startAWSLambdaAPI(r)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

func startAWSLambdaAPI(r *gin.Engine) {
	ginLambda := ginadapter.New(r)
	lambda.Start(ginLambda.ProxyWithContext)
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	subscriber pubsub.Subscriber,
	sideEffects service.SideEffectService,
	logger *logger.Logger,
) {
	// Register handlers before starting the router
	sideEffects.RegisterHandler(router, subscriber)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			return router.Close()
		},
	})
}
