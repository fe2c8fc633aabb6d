package service

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/client"
	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	"github.com/ledgerline/ledgerline/internal/integration/stripe"
	"github.com/ledgerline/ledgerline/internal/integration/zarinpal"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/pubsub"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/shopspring/decimal"
)

// StripeGateway is the push-webhook gateway as the reconciler uses it
type StripeGateway interface {
	ParseEvent(payload []byte, signature string) (*stripe.PaymentNotice, error)
	CreateCheckoutSession(ctx context.Context, in stripe.CheckoutInput) (*stripe.CheckoutSession, error)
}

// ZarinpalGateway is the redirect-verify gateway as the reconciler uses it
type ZarinpalGateway interface {
	RequestPayment(ctx context.Context, in zarinpal.RequestInput) (*zarinpal.RequestResult, error)
	Verify(ctx context.Context, authority string, amount decimal.Decimal) (*zarinpal.VerifyResult, error)
}

// Notifier sends client-facing notifications such as receipts
type Notifier interface {
	Enabled() bool
	SendMessage(ctx context.Context, eventType, eventID string, payload interface{}) error
}

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger    *logger.Logger
	Config    *config.Configuration
	Sentry    *sentry.Service
	Converter *money.Converter
	Publisher pubsub.Publisher

	// Repositories
	InvoiceRepo   invoice.Repository
	PaymentRepo   payment.Repository
	PromotionRepo promotion.Repository
	ProductRepo   inventory.Repository
	ClientRepo    client.Repository

	// Gateways
	Stripe   StripeGateway
	Zarinpal ZarinpalGateway
	Notifier Notifier
}

// NewServiceParams creates a new ServiceParams with all dependencies. Gateway
// clients are taken as concrete types here so fx can provide them; a disabled
// gateway arrives as nil.
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	sentry *sentry.Service,
	converter *money.Converter,
	publisher pubsub.PubSub,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	promotionRepo promotion.Repository,
	productRepo inventory.Repository,
	clientRepo client.Repository,
	stripeClient *stripe.Client,
	zarinpalClient *zarinpal.Client,
	notifier Notifier,
) ServiceParams {
	params := ServiceParams{
		Logger:        logger,
		Config:        config,
		Sentry:        sentry,
		Converter:     converter,
		Publisher:     publisher,
		InvoiceRepo:   invoiceRepo,
		PaymentRepo:   paymentRepo,
		PromotionRepo: promotionRepo,
		ProductRepo:   productRepo,
		ClientRepo:    clientRepo,
		Notifier:      notifier,
	}
	// disabled gateways stay nil interfaces
	if stripeClient != nil {
		params.Stripe = stripeClient
	}
	if zarinpalClient != nil {
		params.Zarinpal = zarinpalClient
	}
	return params
}
