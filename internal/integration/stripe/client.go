package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerline/ledgerline/internal/config"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/stripe/stripe-go/v82"
)

// Client wraps the Stripe API for checkout creation and webhook decoding
type Client struct {
	api           *stripe.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        *logger.Logger
}

// NewClient creates a client from the gateway configuration
func NewClient(cfg *config.Configuration, log *logger.Logger) *Client {
	sc := cfg.Gateways.Stripe
	if !sc.Enabled {
		return nil
	}
	return &Client{
		api:           stripe.NewClient(sc.SecretKey, nil),
		webhookSecret: sc.WebhookSecret,
		successURL:    sc.SuccessURL,
		cancelURL:     sc.CancelURL,
		logger:        log.With("gateway", "stripe"),
	}
}

// CreateCheckoutSession opens a hosted checkout for exactly in.Amount. The
// invoice id travels in the session and payment intent metadata so the
// webhook can find the invoice again.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	metadata := map[string]string{
		MetadataKeyInvoiceID: in.InvoiceID,
		"client_id":          in.ClientID,
		"invoice_number":     in.InvoiceNumber,
	}

	successURL := in.SuccessURL
	if successURL == "" {
		successURL = c.successURL
	}
	cancelURL := in.CancelURL
	if cancelURL == "" {
		cancelURL = c.cancelURL
	}

	params := &stripe.CheckoutSessionCreateParams{
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(in.Currency.String())),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Invoice %s", in.InvoiceNumber)),
					},
					UnitAmount: stripe.Int64(money.ToMinorUnits(in.Amount, in.Currency)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String("payment"),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(in.InvoiceID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if in.ClientEmail != "" {
		params.CustomerEmail = stripe.String(in.ClientEmail)
	}

	session, err := c.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		c.logger.Errorw("failed to create checkout session", "invoice_id", in.InvoiceID, "error", err)
		return nil, ierr.WithError(err).
			WithHint("Unable to create Stripe checkout session").
			WithReportableDetails(map[string]any{
				"invoice_id": in.InvoiceID,
			}).
			Mark(ierr.ErrExternalService)
	}

	c.logger.Infow("created checkout session", "invoice_id", in.InvoiceID, "session_id", session.ID)
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
