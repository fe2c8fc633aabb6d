package stripe

import (
	"encoding/json"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseEvent verifies the Stripe-Signature header against the raw body and
// reduces the event to a PaymentNotice. A bad signature is ErrUnauthorized;
// an authentic but unreadable body is ErrValidation.
func (c *Client) ParseEvent(payload []byte, signature string) (*PaymentNotice, error) {
	if err := webhook.ValidatePayload(payload, signature, c.webhookSecret); err != nil {
		c.logger.Warnw("webhook signature verification failed", "error", err)
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrUnauthorized)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Webhook payload is not a valid event").
			Mark(ierr.ErrValidation)
	}
	if event.Data == nil {
		return nil, ierr.NewError("webhook event has no data").
			WithHint("Webhook payload is not a valid event").
			Mark(ierr.ErrValidation)
	}

	notice, err := decodeNotice(&event)
	if err != nil {
		return nil, err
	}
	c.logger.Infow("received webhook event",
		"event_id", notice.EventID,
		"event_type", notice.EventType,
		"kind", notice.Kind,
		"invoice_id", notice.InvoiceID,
		"gateway_ref", notice.GatewayRef,
	)
	return notice, nil
}

func decodeNotice(event *stripe.Event) (*PaymentNotice, error) {
	notice := &PaymentNotice{
		Kind:      NoticeIgnored,
		EventID:   event.ID,
		EventType: string(event.Type),
	}

	switch notice.EventType {
	case EventPaymentIntentSucceeded, EventPaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, malformed(err, notice.EventType)
		}
		notice.InvoiceID = pi.Metadata[MetadataKeyInvoiceID]
		notice.GatewayRef = pi.ID
		notice.Method = lo.FirstOr(pi.PaymentMethodTypes, "card")

		amount := pi.AmountReceived
		if amount == 0 {
			amount = pi.Amount
		}
		if err := notice.setAmount(amount, string(pi.Currency)); err != nil {
			return notice, nil
		}

		if notice.EventType == EventPaymentIntentSucceeded {
			notice.Kind = NoticeSucceeded
		} else {
			notice.Kind = NoticeFailed
			notice.FailureReason = "payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				notice.FailureReason = pi.LastPaymentError.Msg
			}
		}

	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, malformed(err, notice.EventType)
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			notice.Reason = "checkout session is not paid"
			return notice, nil
		}
		notice.InvoiceID = session.Metadata[MetadataKeyInvoiceID]
		if notice.InvoiceID == "" {
			notice.InvoiceID = session.ClientReferenceID
		}
		notice.GatewayRef = session.ID
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			notice.GatewayRef = session.PaymentIntent.ID
		}
		notice.Method = "card"
		if err := notice.setAmount(session.AmountTotal, string(session.Currency)); err != nil {
			return notice, nil
		}
		notice.Kind = NoticeSucceeded

	default:
		notice.Reason = "event type is not handled"
		return notice, nil
	}

	if notice.InvoiceID == "" {
		notice.Kind = NoticeIgnored
		notice.Reason = "event carries no invoice_id metadata"
	}
	return notice, nil
}

// setAmount converts Stripe minor units using the currency's precision. An
// unsupported currency turns the notice into an ignored one.
func (n *PaymentNotice) setAmount(minor int64, currency string) error {
	cur, err := types.ParseCurrency(currency)
	if err != nil {
		n.Kind = NoticeIgnored
		n.Reason = "unsupported currency " + currency
		return err
	}
	n.Currency = cur
	n.Amount = money.FromMinorUnits(minor, cur)
	return nil
}

func malformed(err error, eventType string) error {
	return ierr.WithError(err).
		WithHintf("Webhook %s payload could not be decoded", eventType).
		Mark(ierr.ErrValidation)
}
