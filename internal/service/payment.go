package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/idempotency"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentService confirms gateway settlements exactly once per gateway
// reference and applies them to invoices
type PaymentService interface {
	// ConfirmPayment is the single entry point every adapter converges on
	ConfirmPayment(ctx context.Context, in ConfirmPaymentInput) (*ConfirmPaymentResult, error)

	// RecordFailedPayment stores a gateway failure without touching the invoice
	RecordFailedPayment(ctx context.Context, in FailedPaymentInput) (*payment.Payment, error)

	// RecordManualPayment confirms a payment entered by an operator
	RecordManualPayment(ctx context.Context, invoiceID string, req dto.RecordPaymentRequest) (*dto.PaymentOutcomeResponse, error)

	GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error)
}

// ConfirmPaymentInput is a settlement reported by a gateway adapter
type ConfirmPaymentInput struct {
	InvoiceID  string
	Gateway    types.PaymentGateway
	GatewayRef string
	Amount     decimal.Decimal
	Currency   types.Currency
	Method     string
	Notes      string
	Metadata   types.Metadata
}

func (in ConfirmPaymentInput) Validate() error {
	if in.InvoiceID == "" || in.GatewayRef == "" {
		return ierr.NewError("invoice_id and gateway_ref are required").
			WithHint("Payment confirmation needs an invoice and a gateway reference").
			Mark(ierr.ErrValidation)
	}
	if err := in.Gateway.Validate(); err != nil {
		return err
	}
	if !in.Amount.IsPositive() {
		return ierr.NewError("payment amount must be positive").
			WithHint("Payment amount must be greater than zero").
			WithReportableDetails(map[string]any{
				"amount": in.Amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ConfirmPaymentResult reports what a confirmation did. Duplicate is set when
// the gateway reference had already been applied.
type ConfirmPaymentResult struct {
	Payment   *payment.Payment
	Invoice   *invoice.Invoice
	Duplicate bool
}

// Outcome maps the result onto the adapter-facing outcome
func (r *ConfirmPaymentResult) Outcome() types.PaymentOutcome {
	return paymentOutcome(r.Payment, r.Duplicate)
}

// Reason is set only for payments the invoice could not take
func (r *ConfirmPaymentResult) Reason() string {
	if r.Payment == nil {
		return ""
	}
	return lo.FromPtr(r.Payment.FailureReason)
}

func paymentOutcome(p *payment.Payment, duplicate bool) types.PaymentOutcome {
	switch {
	case p != nil && p.PaymentStatus == types.PaymentStatusUnapplied:
		return types.PaymentOutcomeUnapplied
	case duplicate:
		return types.PaymentOutcomeDuplicate
	default:
		return types.PaymentOutcomeConfirmed
	}
}

// reasonRefundRequired is stored on a captured payment that lost the race
// for an invoice settled or cancelled in the meantime
const reasonRefundRequired = "invoice already settled, refund required"

// FailedPaymentInput is a gateway failure notice
type FailedPaymentInput struct {
	InvoiceID  string
	Gateway    types.PaymentGateway
	GatewayRef string
	Amount     decimal.Decimal
	Currency   types.Currency
	Reason     string
}

// PaymentConfirmedEvent is the outbox fact published once per applied payment
type PaymentConfirmedEvent struct {
	PaymentID     string               `json:"payment_id"`
	InvoiceID     string               `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	ClientID      string               `json:"client_id"`
	Gateway       types.PaymentGateway `json:"gateway"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      types.Currency       `json:"currency"`
	InvoiceStatus types.InvoiceStatus  `json:"invoice_status"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
	Lines         []ConfirmedLine      `json:"lines"`
	ConfirmedAt   time.Time            `json:"confirmed_at"`
}

// ConfirmedLine is the stock-relevant part of an invoice line item
type ConfirmedLine struct {
	ProductID  *string `json:"product_id,omitempty"`
	VariantKey *string `json:"variant_key,omitempty"`
	Quantity   int     `json:"quantity"`
}

type paymentService struct {
	ServiceParams
	invoices InvoiceService
	keys     *idempotency.Generator
}

func NewPaymentService(params ServiceParams, invoices InvoiceService) PaymentService {
	return &paymentService{
		ServiceParams: params,
		invoices:      invoices,
		keys:          idempotency.NewGenerator(),
	}
}

func (s *paymentService) ConfirmPayment(ctx context.Context, in ConfirmPaymentInput) (*ConfirmPaymentResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	key := s.keys.PaymentKey(string(in.Gateway), in.GatewayRef)

	existing, err := s.PaymentRepo.GetByIdempotencyKey(ctx, key)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		inv, err := s.InvoiceRepo.Get(ctx, existing.InvoiceID)
		if err != nil {
			return nil, err
		}
		if existing.PaymentStatus == types.PaymentStatusUnapplied {
			return &ConfirmPaymentResult{Payment: existing, Invoice: inv, Duplicate: true}, nil
		}
		if inv.HasPayment(existing.ID) {
			s.Logger.Infow("payment already confirmed",
				"payment_id", existing.ID,
				"invoice_id", inv.ID,
				"gateway", in.Gateway,
				"gateway_ref", in.GatewayRef,
			)
			completed, err := s.complete(ctx, existing)
			if err != nil {
				return nil, err
			}
			return &ConfirmPaymentResult{Payment: completed, Invoice: inv, Duplicate: true}, nil
		}
		// stored by an earlier attempt that stopped before the invoice write
		return s.apply(ctx, existing)
	}

	inv, err := s.InvoiceRepo.Get(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsPayable() {
		return nil, invoice.NewNotPayableError(inv)
	}
	if in.Currency != inv.Currency {
		return nil, ierr.NewErrorf("payment currency %s does not match invoice currency %s", in.Currency, inv.Currency).
			WithMark(payment.ErrCurrencyMismatch).
			WithHintf("Payment must be made in %s", inv.Currency).
			WithReportableDetails(map[string]any{
				"invoice_id":       inv.ID,
				"payment_currency": in.Currency,
				"invoice_currency": inv.Currency,
			}).
			Mark(ierr.ErrValidation)
	}

	now := time.Now().UTC()
	conv := s.Converter.ConvertWithRate(in.Amount, inv.ExchangeRate)
	p := &payment.Payment{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		IdempotencyKey:       key,
		InvoiceID:            inv.ID,
		ClientID:             inv.ClientID,
		Gateway:              in.Gateway,
		GatewayRef:           in.GatewayRef,
		Method:               lo.Ternary(in.Method != "", in.Method, string(in.Gateway)),
		Amount:               in.Amount,
		AmountInBaseCurrency: conv.Amount,
		ExchangeRate:         conv.Rate,
		Currency:             in.Currency,
		BaseCurrency:         conv.Currency,
		PaymentStatus:        types.PaymentStatusPending,
		Notes:                in.Notes,
		PaidAt:               lo.ToPtr(now),
		Metadata:             in.Metadata,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}

	stored, created, err := s.PaymentRepo.CreateIfAbsent(ctx, p)
	if err != nil {
		return nil, err
	}
	if created {
		s.Logger.Infow("recorded payment",
			"payment_id", stored.ID,
			"invoice_id", stored.InvoiceID,
			"gateway", stored.Gateway,
			"gateway_ref", stored.GatewayRef,
			"amount", stored.Amount.String(),
			"currency", stored.Currency,
		)
	}

	// a concurrent delivery may have stored the record first; applying the
	// winner's record is idempotent by payment id
	return s.apply(ctx, stored)
}

// apply writes a pending payment onto its invoice and then settles the
// payment record. An invoice that stopped being payable after the record was
// stored leaves the payment unapplied.
func (s *paymentService) apply(ctx context.Context, p *payment.Payment) (*ConfirmPaymentResult, error) {
	inv, applied, err := s.invoices.ApplyPayment(ctx, p.InvoiceID, invoice.PaymentApplication{
		PaymentID: p.ID,
		Amount:    p.Amount,
		Method:    p.Method,
		Notes:     p.Notes,
		PaidAt:    lo.FromPtr(p.PaidAt),
	})
	if ierr.Is(err, invoice.ErrInvoiceNotPayable) {
		return s.markUnapplied(ctx, p, inv)
	}
	if err != nil {
		return nil, err
	}

	completed, err := s.complete(ctx, p)
	if err != nil {
		return nil, err
	}
	if applied {
		s.publishConfirmed(ctx, completed, inv)
	}
	return &ConfirmPaymentResult{Payment: completed, Invoice: inv, Duplicate: !applied}, nil
}

// complete moves a pending payment to completed once its invoice holds it
func (s *paymentService) complete(ctx context.Context, p *payment.Payment) (*payment.Payment, error) {
	if p.PaymentStatus != types.PaymentStatusPending {
		return p, nil
	}

	done := p.Clone()
	done.PaymentStatus = types.PaymentStatusCompleted
	done.Touch(ctx)

	err := s.PaymentRepo.UpdateStatus(ctx, done, types.PaymentStatusPending)
	if ierr.IsVersionConflict(err) {
		// a concurrent delivery of the same reference got there first
		return s.PaymentRepo.Get(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}
	return done, nil
}

func (s *paymentService) markUnapplied(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) (*ConfirmPaymentResult, error) {
	held := p.Clone()
	held.PaymentStatus = types.PaymentStatusUnapplied
	held.FailureReason = lo.ToPtr(reasonRefundRequired)
	held.Touch(ctx)

	err := s.PaymentRepo.UpdateStatus(ctx, held, types.PaymentStatusPending)
	if ierr.IsVersionConflict(err) {
		held, err = s.PaymentRepo.Get(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}

	s.Logger.Warnw("captured payment could not be applied to invoice",
		"payment_id", held.ID,
		"invoice_id", held.InvoiceID,
		"invoice_status", inv.InvoiceStatus,
		"gateway", held.Gateway,
		"gateway_ref", held.GatewayRef,
		"amount", held.Amount.String(),
		"currency", held.Currency,
	)
	s.Sentry.CaptureExceptionWithTags(invoice.NewNotPayableError(inv), map[string]string{
		"payment_id": held.ID,
		"invoice_id": held.InvoiceID,
		"gateway":    string(held.Gateway),
	})
	return &ConfirmPaymentResult{Payment: held, Invoice: inv}, nil
}

// publishConfirmed puts the payment on the outbox topic. The payment is
// already committed, so a failed publish is reported and not returned.
func (s *paymentService) publishConfirmed(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) {
	event := PaymentConfirmedEvent{
		PaymentID:     p.ID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      inv.ClientID,
		Gateway:       p.Gateway,
		Amount:        p.Amount,
		Currency:      p.Currency,
		InvoiceStatus: inv.InvoiceStatus,
		AmountPaid:    inv.AmountPaid,
		ConfirmedAt:   lo.FromPtr(p.PaidAt),
		Lines: lo.FilterMap(inv.LineItems, func(li invoice.LineItem, _ int) (ConfirmedLine, bool) {
			return ConfirmedLine{
				ProductID:  li.ProductID,
				VariantKey: li.VariantKey,
				Quantity:   li.Quantity,
			}, li.ProductID != nil
		}),
	}

	if err := s.publish(ctx, types.EventPaymentConfirmed, p.ID, inv.ID, event); err != nil {
		s.Logger.Errorw("failed to publish payment confirmed event",
			"payment_id", p.ID,
			"invoice_id", inv.ID,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"payment_id": p.ID,
			"invoice_id": inv.ID,
		})
	}
}

func (s *paymentService) publish(ctx context.Context, eventName, paymentID, invoiceID string, event interface{}) error {
	if s.Publisher == nil {
		return ierr.NewError("publisher not initialized").
			WithHint("Please check the outbox config").
			Mark(ierr.ErrSystem)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal outbox event").
			Mark(ierr.ErrValidation)
	}

	msg := message.NewMessage(types.GenerateUUIDWithPrefix(types.UUID_PREFIX_MESSAGE), payload)
	msg.Metadata.Set(types.MetadataKeyEventName, eventName)
	msg.Metadata.Set(types.MetadataKeyPaymentID, paymentID)
	msg.Metadata.Set(types.MetadataKeyInvoiceID, invoiceID)
	if requestID := types.GetRequestID(ctx); requestID != "" {
		middleware.SetCorrelationID(requestID, msg)
	}

	if err := s.Publisher.Publish(ctx, s.Config.Outbox.Topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish outbox event").
			Mark(ierr.ErrSystem)
	}

	s.Logger.Debugw("published outbox event",
		"event_name", eventName,
		"message_uuid", msg.UUID,
		"topic", s.Config.Outbox.Topic,
	)
	return nil
}

func (s *paymentService) RecordFailedPayment(ctx context.Context, in FailedPaymentInput) (*payment.Payment, error) {
	if in.InvoiceID == "" || in.GatewayRef == "" {
		return nil, ierr.NewError("invoice_id and gateway_ref are required").
			WithHint("Failed payment needs an invoice and a gateway reference").
			Mark(ierr.ErrValidation)
	}

	inv, err := s.InvoiceRepo.Get(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}

	p := &payment.Payment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		IdempotencyKey: s.keys.FailedPaymentKey(string(in.Gateway), in.GatewayRef),
		InvoiceID:      inv.ID,
		ClientID:       inv.ClientID,
		Gateway:        in.Gateway,
		GatewayRef:     in.GatewayRef,
		Method:         string(in.Gateway),
		Amount:         in.Amount,
		Currency:       lo.Ternary(in.Currency != "", in.Currency, inv.Currency),
		BaseCurrency:   inv.BaseCurrency,
		ExchangeRate:   inv.ExchangeRate,
		PaymentStatus:  types.PaymentStatusFailed,
		FailureReason:  lo.ToPtr(in.Reason),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	p.AmountInBaseCurrency = s.Converter.ConvertWithRate(in.Amount, inv.ExchangeRate).Amount

	stored, created, err := s.PaymentRepo.CreateIfAbsent(ctx, p)
	if err != nil {
		return nil, err
	}
	if created {
		s.Logger.Warnw("recorded failed payment",
			"payment_id", stored.ID,
			"invoice_id", stored.InvoiceID,
			"gateway", stored.Gateway,
			"gateway_ref", stored.GatewayRef,
			"reason", in.Reason,
		)
	}
	return stored, nil
}

func (s *paymentService) RecordManualPayment(ctx context.Context, invoiceID string, req dto.RecordPaymentRequest) (*dto.PaymentOutcomeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	currency, err := types.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	result, err := s.ConfirmPayment(ctx, ConfirmPaymentInput{
		InvoiceID:  invoiceID,
		Gateway:    types.PaymentGatewayManual,
		GatewayRef: req.Reference,
		Amount:     req.Amount,
		Currency:   currency,
		Method:     req.Method,
		Notes:      req.Notes,
		Metadata:   types.Metadata{"recorded_by": types.GetUserID(ctx)},
	})
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentOutcomeResponse(result.Outcome(), result.Reason(), result.Payment, result.Invoice, time.Now().UTC()), nil
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	if id == "" {
		return nil, ierr.NewError("payment_id is required").
			WithHint("Payment ID is required").
			Mark(ierr.ErrValidation)
	}

	p, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error) {
	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.PaymentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.PaymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(
		lo.Map(items, func(p *payment.Payment, _ int) *dto.PaymentResponse {
			return dto.NewPaymentResponse(p)
		}),
		total, filter.GetLimit(), filter.GetOffset(),
	)
	return &resp, nil
}
