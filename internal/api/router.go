package api

import (
	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/api/cron"
	v1 "github.com/ledgerline/ledgerline/internal/api/v1"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/rest/middleware"
	"github.com/ledgerline/ledgerline/internal/types"
)

type Handlers struct {
	Health    *v1.HealthHandler
	Invoice   *v1.InvoiceHandler
	Payment   *v1.PaymentHandler
	Promotion *v1.PromotionHandler
	Client    *v1.ClientHandler
	Product   *v1.ProductHandler
	Webhook   *v1.WebhookHandler

	CronInvoice *cron.InvoiceHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Logging.Level != types.LogLevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.SentryScopeMiddleware,
		middleware.PyroscopeMiddleware(cfg),
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	v1Router := router.Group("/v1")

	invoices := v1Router.Group("/invoices")
	{
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/number/:number", handlers.Invoice.GetInvoiceByNumber)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.PUT("/:id", handlers.Invoice.UpdateInvoice)
		invoices.POST("/:id/send", handlers.Invoice.SendInvoice)
		invoices.POST("/:id/cancel", handlers.Invoice.CancelInvoice)
		invoices.POST("/:id/pay", handlers.Invoice.PayInvoice)
		invoices.POST("/:id/payments", handlers.Invoice.RecordPayment)
		invoices.GET("/:id/payments", handlers.Invoice.ListInvoicePayments)
	}

	payments := v1Router.Group("/payments")
	{
		payments.GET("", handlers.Payment.ListPayments)
		payments.GET("/:id", handlers.Payment.GetPayment)
	}

	promotions := v1Router.Group("/promotions")
	{
		promotions.POST("", handlers.Promotion.CreatePromotion)
		promotions.GET("", handlers.Promotion.ListPromotions)
		promotions.POST("/evaluate", handlers.Promotion.EvaluatePromotion)
		promotions.GET("/:id", handlers.Promotion.GetPromotion)
	}

	clients := v1Router.Group("/clients")
	{
		clients.POST("", handlers.Client.CreateClient)
		clients.GET("/:id", handlers.Client.GetClient)
	}

	products := v1Router.Group("/products")
	{
		products.POST("", handlers.Product.CreateProduct)
		products.GET("", handlers.Product.ListProducts)
		products.GET("/:id", handlers.Product.GetProduct)
	}

	webhooks := v1Router.Group("/webhooks")
	{
		webhooks.POST("/stripe", handlers.Webhook.HandleStripeWebhook)
		webhooks.GET("/zarinpal/callback", handlers.Webhook.HandleZarinpalCallback)
		webhooks.POST("/zarinpal/callback", handlers.Webhook.HandleZarinpalCallback)
	}

	cronGroup := v1Router.Group("/cron")
	{
		cronGroup.POST("/invoices/mark-overdue", handlers.CronInvoice.MarkOverdueInvoices)
	}

	logger.Infow("registered http routes", "count", len(router.Routes()))
	return router
}
