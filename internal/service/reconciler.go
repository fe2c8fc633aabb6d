package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/integration/stripe"
	"github.com/ledgerline/ledgerline/internal/integration/zarinpal"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
)

// zarinpalStatusOK is the Status query value of a redirect the payer completed
const zarinpalStatusOK = "OK"

// metadata keys stored on zarinpal payments
const (
	metadataAuthority = "authority"
	metadataCardPAN   = "card_pan"
)

// ReconcilerService adapts gateway notifications onto ConfirmPayment
type ReconcilerService interface {
	// HandleStripeWebhook verifies and processes a signed Stripe event.
	// Unauthentic events are ErrUnauthorized and unreadable ones ErrValidation;
	// authentic events that cannot be applied are acknowledged as ignored.
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error)

	// VerifyZarinpal settles a redirect by verifying it server to server
	// against the amount the invoice expects
	VerifyZarinpal(ctx context.Context, req dto.ZarinpalVerifyRequest) (*dto.PaymentOutcomeResponse, error)

	// InitiatePayment starts a checkout for the invoice's next payable amount
	InitiatePayment(ctx context.Context, invoiceID string, req dto.PayInvoiceRequest) (*dto.PayInvoiceResponse, error)
}

type reconcilerService struct {
	ServiceParams
	payments PaymentService
}

func NewReconcilerService(params ServiceParams, payments PaymentService) ReconcilerService {
	return &reconcilerService{
		ServiceParams: params,
		payments:      payments,
	}
}

func (s *reconcilerService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error) {
	if s.Stripe == nil {
		return nil, gatewayDisabled(types.PaymentGatewayStripe)
	}

	notice, err := s.Stripe.ParseEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	switch notice.Kind {
	case stripe.NoticeSucceeded:
		result, err := s.payments.ConfirmPayment(ctx, ConfirmPaymentInput{
			InvoiceID:  notice.InvoiceID,
			Gateway:    types.PaymentGatewayStripe,
			GatewayRef: notice.GatewayRef,
			Amount:     notice.Amount,
			Currency:   notice.Currency,
			Method:     notice.Method,
			Metadata:   types.Metadata{"event_id": notice.EventID},
		})
		if err != nil {
			return s.acknowledgeOrFail(notice, err)
		}
		return &dto.WebhookResponse{
			Received: true,
			Outcome:  result.Outcome(),
			Reason:   result.Reason(),
		}, nil

	case stripe.NoticeFailed:
		if _, err := s.payments.RecordFailedPayment(ctx, FailedPaymentInput{
			InvoiceID:  notice.InvoiceID,
			Gateway:    types.PaymentGatewayStripe,
			GatewayRef: notice.GatewayRef,
			Amount:     notice.Amount,
			Currency:   notice.Currency,
			Reason:     notice.FailureReason,
		}); err != nil {
			return s.acknowledgeOrFail(notice, err)
		}
		return &dto.WebhookResponse{
			Received: true,
			Outcome:  types.PaymentOutcomeRejected,
			Reason:   notice.FailureReason,
		}, nil

	default:
		s.Logger.Infow("ignoring webhook event",
			"event_id", notice.EventID,
			"event_type", notice.EventType,
			"reason", notice.Reason,
		)
		return &dto.WebhookResponse{
			Received: true,
			Outcome:  types.PaymentOutcomeIgnored,
			Reason:   notice.Reason,
		}, nil
	}
}

// acknowledgeOrFail acks events a redelivery cannot fix, such as an unknown
// invoice or a currency mismatch. Anything else is returned so the gateway
// delivers the event again.
func (s *reconcilerService) acknowledgeOrFail(notice *stripe.PaymentNotice, err error) (*dto.WebhookResponse, error) {
	if !ierr.IsBusinessRule(err) {
		return nil, err
	}

	reason := ierr.GetHint(err)
	if reason == "" {
		reason = err.Error()
	}
	s.Logger.Warnw("webhook event not applicable",
		"event_id", notice.EventID,
		"event_type", notice.EventType,
		"invoice_id", notice.InvoiceID,
		"gateway_ref", notice.GatewayRef,
		"reason", reason,
	)
	s.Sentry.CaptureExceptionWithTags(err, map[string]string{
		"gateway":    string(types.PaymentGatewayStripe),
		"event_id":   notice.EventID,
		"invoice_id": notice.InvoiceID,
	})
	return &dto.WebhookResponse{
		Received: true,
		Outcome:  types.PaymentOutcomeIgnored,
		Reason:   reason,
	}, nil
}

func (s *reconcilerService) VerifyZarinpal(ctx context.Context, req dto.ZarinpalVerifyRequest) (*dto.PaymentOutcomeResponse, error) {
	if s.Zarinpal == nil {
		return nil, gatewayDisabled(types.PaymentGatewayZarinpal)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	// the redirect may be replayed after the authority was settled
	if p, err := s.findByAuthority(ctx, inv.ID, req.Authority); err != nil {
		return nil, err
	} else if p != nil {
		return dto.NewPaymentOutcomeResponse(paymentOutcome(p, true), lo.FromPtr(p.FailureReason), p, inv, now), nil
	}

	if !strings.EqualFold(req.Status, zarinpalStatusOK) {
		s.Logger.Infow("payer did not complete zarinpal payment",
			"invoice_id", inv.ID,
			"authority", req.Authority,
			"status", req.Status,
		)
		return dto.NewPaymentOutcomeResponse(types.PaymentOutcomeNotConfirmed, "payment was not completed at the gateway", nil, inv, now), nil
	}

	if !inv.IsPayable() {
		return nil, invoice.NewNotPayableError(inv)
	}
	if inv.Currency != types.CurrencyIRR {
		return nil, zarinpalCurrencyError(inv)
	}

	// the amount is taken from the invoice, never from the redirect
	expected := inv.NextPayableAmount()

	span, spanCtx := s.Sentry.StartGatewaySpan(ctx, string(types.PaymentGatewayZarinpal), "verify")
	res, err := s.Zarinpal.Verify(spanCtx, req.Authority, expected)
	sentry.FinishSpan(span)

	switch {
	case err == nil:
	case ierr.Is(err, payment.ErrPaymentRejected):
		reason := ierr.GetHint(err)
		if _, ferr := s.payments.RecordFailedPayment(ctx, FailedPaymentInput{
			InvoiceID:  inv.ID,
			Gateway:    types.PaymentGatewayZarinpal,
			GatewayRef: req.Authority,
			Amount:     expected,
			Currency:   inv.Currency,
			Reason:     reason,
		}); ferr != nil {
			s.Logger.Errorw("failed to record rejected payment", "invoice_id", inv.ID, "error", ferr)
		}
		return dto.NewPaymentOutcomeResponse(types.PaymentOutcomeRejected, reason, nil, inv, now), nil
	case ierr.Is(err, payment.ErrPaymentNotConfirmed):
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"gateway":    string(types.PaymentGatewayZarinpal),
			"invoice_id": inv.ID,
		})
		return dto.NewPaymentOutcomeResponse(types.PaymentOutcomeNotConfirmed, ierr.GetHint(err), nil, inv, now), nil
	default:
		return nil, err
	}

	metadata := types.Metadata{metadataAuthority: req.Authority}
	if res.CardPAN != "" {
		metadata[metadataCardPAN] = res.CardPAN
	}
	result, err := s.payments.ConfirmPayment(ctx, ConfirmPaymentInput{
		InvoiceID:  inv.ID,
		Gateway:    types.PaymentGatewayZarinpal,
		GatewayRef: res.RefID,
		Amount:     expected,
		Currency:   inv.Currency,
		Method:     "card",
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentOutcomeResponse(result.Outcome(), result.Reason(), result.Payment, result.Invoice, now), nil
}

// findByAuthority skips pending records so a replayed redirect goes back
// through verification and finishes them
func (s *reconcilerService) findByAuthority(ctx context.Context, invoiceID, authority string) (*payment.Payment, error) {
	filter := types.NewNoLimitPaymentFilter()
	filter.InvoiceID = invoiceID
	filter.Gateway = types.PaymentGatewayZarinpal
	filter.Statuses = []types.PaymentStatus{types.PaymentStatusCompleted, types.PaymentStatusUnapplied}

	items, err := s.PaymentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	p, ok := lo.Find(items, func(p *payment.Payment) bool {
		return p.Metadata[metadataAuthority] == authority
	})
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (s *reconcilerService) InitiatePayment(ctx context.Context, invoiceID string, req dto.PayInvoiceRequest) (*dto.PayInvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsPayable() {
		return nil, invoice.NewNotPayableError(inv)
	}
	amount := inv.NextPayableAmount()

	resp := &dto.PayInvoiceResponse{
		Gateway:  req.Gateway,
		Amount:   amount,
		Currency: inv.Currency,
	}

	switch req.Gateway {
	case types.PaymentGatewayStripe:
		if s.Stripe == nil {
			return nil, gatewayDisabled(req.Gateway)
		}
		cl, err := s.ClientRepo.Get(ctx, inv.ClientID)
		if err != nil {
			return nil, err
		}

		span, spanCtx := s.Sentry.StartGatewaySpan(ctx, string(req.Gateway), "checkout")
		session, err := s.Stripe.CreateCheckoutSession(spanCtx, stripe.CheckoutInput{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			ClientID:      inv.ClientID,
			ClientEmail:   cl.Email,
			Amount:        amount,
			Currency:      inv.Currency,
			SuccessURL:    req.SuccessURL,
			CancelURL:     req.CancelURL,
		})
		sentry.FinishSpan(span)
		if err != nil {
			return nil, err
		}
		resp.RedirectURL = session.URL
		resp.Reference = session.ID

	case types.PaymentGatewayZarinpal:
		if s.Zarinpal == nil {
			return nil, gatewayDisabled(req.Gateway)
		}
		if inv.Currency != types.CurrencyIRR {
			return nil, zarinpalCurrencyError(inv)
		}
		callback, err := callbackWithInvoice(lo.Ternary(req.SuccessURL != "", req.SuccessURL, s.Config.Gateways.Zarinpal.CallbackURL), inv.ID)
		if err != nil {
			return nil, err
		}

		span, spanCtx := s.Sentry.StartGatewaySpan(ctx, string(req.Gateway), "request")
		result, err := s.Zarinpal.RequestPayment(spanCtx, zarinpal.RequestInput{
			InvoiceID:   inv.ID,
			Amount:      amount,
			Description: fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
			CallbackURL: callback,
		})
		sentry.FinishSpan(span)
		if err != nil {
			return nil, err
		}
		resp.RedirectURL = result.RedirectURL
		resp.Reference = result.Authority
	}

	s.Logger.Infow("initiated payment",
		"invoice_id", inv.ID,
		"gateway", req.Gateway,
		"reference", resp.Reference,
		"amount", amount.String(),
	)
	return resp, nil
}

// callbackWithInvoice adds invoice_id to the redirect target so the verify
// endpoint knows which invoice the authority belongs to
func callbackWithInvoice(raw, invoiceID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return "", ierr.NewError("invalid zarinpal callback url").
			WithHint("A valid callback URL is required for Zarinpal payments").
			Mark(ierr.ErrValidation)
	}
	q := u.Query()
	q.Set("invoice_id", invoiceID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func gatewayDisabled(gateway types.PaymentGateway) error {
	return ierr.NewErrorf("gateway %s is not enabled", gateway).
		WithHintf("Payments through %s are not enabled", gateway).
		Mark(ierr.ErrInvalidOperation)
}

func zarinpalCurrencyError(inv *invoice.Invoice) error {
	return ierr.NewErrorf("zarinpal cannot settle %s invoices", inv.Currency).
		WithMark(payment.ErrCurrencyMismatch).
		WithHint("Zarinpal only accepts invoices issued in IRR").
		WithReportableDetails(map[string]any{
			"invoice_id": inv.ID,
			"currency":   inv.Currency,
		}).
		Mark(ierr.ErrValidation)
}
