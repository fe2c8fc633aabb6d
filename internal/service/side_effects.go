package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ledgerline/ledgerline/internal/cache"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/idempotency"
	"github.com/ledgerline/ledgerline/internal/pubsub"
	"github.com/ledgerline/ledgerline/internal/pubsub/router"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

const (
	sideEffectHandlerName = "payment_confirmed_side_effects"
	sideEffectInventory   = "inventory"
	sideEffectReceipt     = "receipt"

	// completed effects are remembered long enough to cover redeliveries to
	// this consumer; the stores and the notifier dedupe across consumers
	sideEffectMemory = 24 * time.Hour
)

// SideEffectService consumes payment confirmed facts from the outbox. Each
// effect runs independently; one failing never blocks another and never
// touches the payment or the invoice.
type SideEffectService interface {
	RegisterHandler(r *router.Router, subscriber pubsub.Subscriber)
	HandlePaymentConfirmed(msg *message.Message) error
}

// PaymentReceipt is delivered to the client's webhook endpoints
type PaymentReceipt struct {
	PaymentID     string              `json:"payment_id"`
	InvoiceID     string              `json:"invoice_id"`
	InvoiceNumber string              `json:"invoice_number"`
	ClientID      string              `json:"client_id"`
	ClientName    string              `json:"client_name"`
	ClientEmail   string              `json:"client_email"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      types.Currency      `json:"currency"`
	AmountPaid    decimal.Decimal     `json:"amount_paid"`
	InvoiceStatus types.InvoiceStatus `json:"invoice_status"`
	PaidAt        time.Time           `json:"paid_at"`
}

type sideEffect struct {
	name string
	run  func(ctx context.Context, event *PaymentConfirmedEvent) error
}

type sideEffectService struct {
	ServiceParams
	effects []sideEffect
	done    cache.Cache
	keys    *idempotency.Generator
}

func NewSideEffectService(params ServiceParams) SideEffectService {
	s := &sideEffectService{
		ServiceParams: params,
		done:          cache.NewInMemoryCache(sideEffectMemory),
		keys:          idempotency.NewGenerator(),
	}
	s.effects = []sideEffect{
		{name: sideEffectInventory, run: s.decrementInventory},
		{name: sideEffectReceipt, run: s.sendReceipt},
	}
	return s
}

func (s *sideEffectService) RegisterHandler(r *router.Router, subscriber pubsub.Subscriber) {
	r.AddNoPublishHandler(
		sideEffectHandlerName,
		s.Config.Outbox.Topic,
		subscriber,
		s.HandlePaymentConfirmed,
	)
	s.Logger.Infow("registered outbox handler",
		"handler", sideEffectHandlerName,
		"topic", s.Config.Outbox.Topic,
	)
}

// HandlePaymentConfirmed runs every side effect of one confirmed payment
// concurrently. Effects that already succeeded are skipped on redelivery.
func (s *sideEffectService) HandlePaymentConfirmed(msg *message.Message) error {
	var event PaymentConfirmedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return ierr.WithError(err).
			WithHint("Outbox message is not a payment confirmed event").
			WithReportableDetails(map[string]any{
				"message_uuid": msg.UUID,
			}).
			Mark(ierr.ErrValidation)
	}

	ctx := msg.Context()
	span, ctx := s.Sentry.MonitorOutboxLag(ctx, types.EventPaymentConfirmed, event.ConfirmedAt, map[string]interface{}{
		"payment_id": event.PaymentID,
		"invoice_id": event.InvoiceID,
	})
	defer sentry.FinishSpan(span)

	p := pool.New().WithErrors()
	for _, effect := range s.effects {
		effect := effect
		p.Go(func() error {
			return s.runOnce(ctx, effect, &event)
		})
	}
	return p.Wait()
}

func (s *sideEffectService) runOnce(ctx context.Context, effect sideEffect, event *PaymentConfirmedEvent) error {
	key := cache.GenerateKey(cache.PrefixSideEffect, event.PaymentID, effect.name)
	if _, ok := s.done.Get(ctx, key); ok {
		return nil
	}

	if err := effect.run(ctx, event); err != nil {
		s.Logger.Errorw("side effect failed",
			"effect", effect.name,
			"payment_id", event.PaymentID,
			"invoice_id", event.InvoiceID,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"effect":     effect.name,
			"payment_id": event.PaymentID,
			"invoice_id": event.InvoiceID,
		})
		return err
	}

	s.done.Set(ctx, key, true, sideEffectMemory)
	return nil
}

// decrementInventory lowers stock for every product line. Each line carries
// its own key into the store, so a retry on any consumer never decrements a
// line twice.
func (s *sideEffectService) decrementInventory(ctx context.Context, event *PaymentConfirmedEvent) error {
	for idx, line := range event.Lines {
		if line.ProductID == nil || line.Quantity <= 0 {
			continue
		}

		key := s.keys.StockDecrementKey(event.PaymentID, idx)
		product, err := s.ProductRepo.Decrement(ctx, key, *line.ProductID, line.VariantKey, line.Quantity)
		if err != nil {
			if ierr.IsNotFound(err) {
				s.Logger.Warnw("skipping stock decrement for unknown product",
					"product_id", *line.ProductID,
					"payment_id", event.PaymentID,
				)
				continue
			}
			return err
		}

		s.Logger.Debugw("decremented stock",
			"product_id", product.ID,
			"variant_key", lo.FromPtr(line.VariantKey),
			"quantity", line.Quantity,
			"payment_id", event.PaymentID,
		)
	}
	return nil
}

func (s *sideEffectService) sendReceipt(ctx context.Context, event *PaymentConfirmedEvent) error {
	if s.Notifier == nil || !s.Notifier.Enabled() {
		return nil
	}

	cl, err := s.ClientRepo.Get(ctx, event.ClientID)
	if err != nil {
		return err
	}

	receipt := PaymentReceipt{
		PaymentID:     event.PaymentID,
		InvoiceID:     event.InvoiceID,
		InvoiceNumber: event.InvoiceNumber,
		ClientID:      cl.ID,
		ClientName:    cl.Name,
		ClientEmail:   cl.Email,
		Amount:        event.Amount,
		Currency:      event.Currency,
		AmountPaid:    event.AmountPaid,
		InvoiceStatus: event.InvoiceStatus,
		PaidAt:        event.ConfirmedAt,
	}

	// the payment id doubles as the delivery id, so the notifier drops repeats
	if err := s.Notifier.SendMessage(ctx, types.EventPaymentReceipt, event.PaymentID, receipt); err != nil {
		return err
	}
	s.Logger.Infow("sent payment receipt", "payment_id", event.PaymentID, "client_id", cl.ID)
	return nil
}
