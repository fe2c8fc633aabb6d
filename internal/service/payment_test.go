package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/idempotency"
	"github.com/ledgerline/ledgerline/internal/testutil"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  PaymentService
	invoices InvoiceService
	clientID string
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.invoices = NewInvoiceService(params, NewPromotionService(params))
	s.service = NewPaymentService(params, s.invoices)
	s.clientID = createTestClient(&s.BaseServiceTestSuite).ID
}

func (s *PaymentServiceSuite) sentInvoice(currency types.Currency, total string) *dto.InvoiceResponse {
	resp, err := s.invoices.CreateInvoice(s.GetContext(), sent(invoiceRequest(s.clientID, currency, dec(total))))
	s.Require().NoError(err)
	return resp
}

func (s *PaymentServiceSuite) confirmInput(invoiceID, ref, amount string) ConfirmPaymentInput {
	return ConfirmPaymentInput{
		InvoiceID:  invoiceID,
		Gateway:    types.PaymentGatewayStripe,
		GatewayRef: ref,
		Amount:     dec(amount),
		Currency:   types.CurrencyUSD,
		Method:     "card",
	}
}

func (s *PaymentServiceSuite) outbox() []PaymentConfirmedEvent {
	msgs := s.GetPubSub().GetMessages(s.GetConfig().Outbox.Topic)
	events := make([]PaymentConfirmedEvent, 0, len(msgs))
	for _, msg := range msgs {
		var event PaymentConfirmedEvent
		s.Require().NoError(json.Unmarshal(msg.Payload, &event))
		events = append(events, event)
	}
	return events
}

func (s *PaymentServiceSuite) storedPayments(invoiceID string) []*payment.Payment {
	filter := types.NewNoLimitPaymentFilter()
	filter.InvoiceID = invoiceID
	items, err := s.GetStores().PaymentRepo.List(s.GetContext(), filter)
	s.Require().NoError(err)
	return items
}

func (s *PaymentServiceSuite) TestConfirmIsIdempotent() {
	inv := s.sentInvoice(types.CurrencyUSD, "120")
	in := s.confirmInput(inv.ID, "pi_replayed", "120")

	first, err := s.service.ConfirmPayment(s.GetContext(), in)
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeConfirmed, first.Outcome())
	s.Equal(types.InvoiceStatusPaid, first.Invoice.InvoiceStatus)

	for i := 0; i < 5; i++ {
		again, err := s.service.ConfirmPayment(s.GetContext(), in)
		s.Require().NoError(err)
		s.Equal(types.PaymentOutcomeDuplicate, again.Outcome())
		s.Equal(first.Payment.ID, again.Payment.ID)
		s.True(dec("120").Equal(again.Invoice.AmountPaid))
	}

	s.Len(s.storedPayments(inv.ID), 1)
	events := s.outbox()
	s.Require().Len(events, 1)
	s.Equal(first.Payment.ID, events[0].PaymentID)
	s.Equal(inv.InvoiceNumber, events[0].InvoiceNumber)
	s.Equal(types.InvoiceStatusPaid, events[0].InvoiceStatus)

	msg := s.GetPubSub().GetMessages(s.GetConfig().Outbox.Topic)[0]
	s.Equal(types.EventPaymentConfirmed, msg.Metadata.Get(types.MetadataKeyEventName))
	s.Equal(inv.ID, msg.Metadata.Get(types.MetadataKeyInvoiceID))
}

func (s *PaymentServiceSuite) TestConcurrentDeliveriesOfOneReference() {
	inv := s.sentInvoice(types.CurrencyUSD, "75")
	in := s.confirmInput(inv.ID, "pi_race", "75")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		errs    []error
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.ConfirmPayment(s.GetContext(), in)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if !result.Duplicate {
				applied++
			}
		}()
	}
	wg.Wait()

	s.Empty(errs)
	s.Equal(1, applied)
	s.Len(s.storedPayments(inv.ID), 1)
	s.Len(s.outbox(), 1)

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.True(dec("75").Equal(stored.AmountPaid))
	s.Len(stored.AppliedPaymentIDs, 1)
}

func (s *PaymentServiceSuite) TestConcurrentDistinctPartialPayments() {
	cfg := s.GetConfig()
	previous := cfg.Billing.MaxConfirmAttempts
	cfg.Billing.MaxConfirmAttempts = 10
	defer func() { cfg.Billing.MaxConfirmAttempts = previous }()

	inv := s.sentInvoice(types.CurrencyUSD, "100")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for n := 0; n < 5; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, fmt.Sprintf("pi_part_%d", n), "20"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.True(dec("100").Equal(stored.AmountPaid))
	s.Equal(types.InvoiceStatusPaid, stored.InvoiceStatus)
	s.Len(stored.AppliedPaymentIDs, 5)
	s.Len(s.outbox(), 5)
}

func (s *PaymentServiceSuite) TestCurrencyMismatchRejected() {
	inv := s.sentInvoice(types.CurrencyUSD, "40")
	in := s.confirmInput(inv.ID, "pi_eur", "40")
	in.Currency = types.CurrencyEUR

	_, err := s.service.ConfirmPayment(s.GetContext(), in)
	s.Require().Error(err)
	s.True(ierr.Is(err, payment.ErrCurrencyMismatch))
	s.True(ierr.IsValidation(err))
	s.Empty(s.storedPayments(inv.ID))
}

func (s *PaymentServiceSuite) TestDraftInvoiceNotPayable() {
	draft, err := s.invoices.CreateInvoice(s.GetContext(), invoiceRequest(s.clientID, types.CurrencyUSD, dec("40")))
	s.Require().NoError(err)

	_, err = s.service.ConfirmPayment(s.GetContext(), s.confirmInput(draft.ID, "pi_draft", "40"))
	s.Require().Error(err)
	s.True(ierr.Is(err, invoice.ErrInvoiceNotPayable))
	s.Empty(s.storedPayments(draft.ID))
	s.Empty(s.outbox())
}

func (s *PaymentServiceSuite) TestOverpaymentAccepted() {
	inv := s.sentInvoice(types.CurrencyUSD, "50")

	result, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_over", "65"))
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, result.Invoice.InvoiceStatus)
	s.True(dec("65").Equal(result.Invoice.AmountPaid))
	s.True(result.Invoice.AmountDue().IsZero())
}

func (s *PaymentServiceSuite) TestPublishFailureKeepsPayment() {
	inv := s.sentInvoice(types.CurrencyUSD, "30")
	s.GetPubSub().FailPublish(errors.New("broker unavailable"))

	result, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_nobroker", "30"))
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeConfirmed, result.Outcome())

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, stored.InvoiceStatus)
	s.Len(s.storedPayments(inv.ID), 1)
	s.Empty(s.outbox())
}

func (s *PaymentServiceSuite) TestRecoversStoredButUnappliedPayment() {
	inv := s.sentInvoice(types.CurrencyUSD, "90")

	// left behind by an attempt that stopped before the invoice write
	orphan := &payment.Payment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		IdempotencyKey: idempotency.NewGenerator().PaymentKey(string(types.PaymentGatewayStripe), "pi_orphan"),
		InvoiceID:      inv.ID,
		ClientID:       inv.ClientID,
		Gateway:        types.PaymentGatewayStripe,
		GatewayRef:     "pi_orphan",
		Method:         "card",
		Amount:         dec("90"),
		Currency:       types.CurrencyUSD,
		PaymentStatus:  types.PaymentStatusPending,
		PaidAt:         lo.ToPtr(time.Now().UTC()),
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	_, created, err := s.GetStores().PaymentRepo.CreateIfAbsent(s.GetContext(), orphan)
	s.Require().NoError(err)
	s.Require().True(created)

	result, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_orphan", "90"))
	s.Require().NoError(err)
	s.False(result.Duplicate)
	s.Equal(orphan.ID, result.Payment.ID)
	s.Equal(types.PaymentStatusCompleted, result.Payment.PaymentStatus)
	s.Equal(types.InvoiceStatusPaid, result.Invoice.InvoiceStatus)
	s.Len(s.storedPayments(inv.ID), 1)
	s.Len(s.outbox(), 1)
}

// gatedPaymentRepo holds every CreateIfAbsent caller until all of them arrive
type gatedPaymentRepo struct {
	payment.Repository
	arrived sync.WaitGroup
}

func (r *gatedPaymentRepo) CreateIfAbsent(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.Repository.CreateIfAbsent(ctx, p)
}

func (s *PaymentServiceSuite) TestTwoGatewaysSettleOneInvoice() {
	cfg := s.GetConfig()
	previous := cfg.Billing.MaxConfirmAttempts
	cfg.Billing.MaxConfirmAttempts = 10
	defer func() { cfg.Billing.MaxConfirmAttempts = previous }()

	inv := s.sentInvoice(types.CurrencyUSD, "100")

	gated := &gatedPaymentRepo{Repository: s.GetStores().PaymentRepo}
	gated.arrived.Add(2)
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	params.PaymentRepo = gated
	svc := NewPaymentService(params, NewInvoiceService(params, NewPromotionService(params)))

	refs := []string{"pi_webhook", "pi_redirect"}
	results := make([]*ConfirmPaymentResult, len(refs))
	errs := make([]error, len(refs))
	var wg sync.WaitGroup
	for n, ref := range refs {
		n, ref := n, ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[n], errs[n] = svc.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, ref, "100"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}
	outcomes := lo.Map(results, func(r *ConfirmPaymentResult, _ int) types.PaymentOutcome { return r.Outcome() })
	s.ElementsMatch([]types.PaymentOutcome{types.PaymentOutcomeConfirmed, types.PaymentOutcomeUnapplied}, outcomes)

	loser, ok := lo.Find(results, func(r *ConfirmPaymentResult) bool {
		return r.Outcome() == types.PaymentOutcomeUnapplied
	})
	s.Require().True(ok)
	s.Equal(reasonRefundRequired, loser.Reason())

	byStatus := lo.CountValuesBy(s.storedPayments(inv.ID), func(p *payment.Payment) types.PaymentStatus {
		return p.PaymentStatus
	})
	s.Equal(map[types.PaymentStatus]int{
		types.PaymentStatusCompleted: 1,
		types.PaymentStatusUnapplied: 1,
	}, byStatus)

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, stored.InvoiceStatus)
	s.True(dec("100").Equal(stored.AmountPaid))
	s.Len(stored.AppliedPaymentIDs, 1)
	s.Len(s.outbox(), 1)

	// the held payment stays held on redelivery
	replay, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, loser.Payment.GatewayRef, "100"))
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeUnapplied, replay.Outcome())
	s.Equal(loser.Payment.ID, replay.Payment.ID)
	s.Len(s.storedPayments(inv.ID), 2)
}

func (s *PaymentServiceSuite) TestPendingPaymentForSettledInvoiceIsHeld() {
	inv := s.sentInvoice(types.CurrencyUSD, "90")
	_, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_first", "90"))
	s.Require().NoError(err)

	late := &payment.Payment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		IdempotencyKey: idempotency.NewGenerator().PaymentKey(string(types.PaymentGatewayStripe), "pi_late"),
		InvoiceID:      inv.ID,
		ClientID:       inv.ClientID,
		Gateway:        types.PaymentGatewayStripe,
		GatewayRef:     "pi_late",
		Amount:         dec("90"),
		Currency:       types.CurrencyUSD,
		PaymentStatus:  types.PaymentStatusPending,
		PaidAt:         lo.ToPtr(time.Now().UTC()),
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	_, _, err = s.GetStores().PaymentRepo.CreateIfAbsent(s.GetContext(), late)
	s.Require().NoError(err)

	result, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_late", "90"))
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeUnapplied, result.Outcome())

	held, err := s.GetStores().PaymentRepo.Get(s.GetContext(), late.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusUnapplied, held.PaymentStatus)
	s.Equal(reasonRefundRequired, lo.FromPtr(held.FailureReason))

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.True(dec("90").Equal(stored.AmountPaid))
	s.NotContains(stored.AppliedPaymentIDs, late.ID)
	s.Len(s.outbox(), 1)
}

func (s *PaymentServiceSuite) TestBaseAmountUsesInvoiceRate() {
	inv := s.sentInvoice(types.CurrencyEUR, "100")
	in := s.confirmInput(inv.ID, "pi_eur_half", "50")
	in.Currency = types.CurrencyEUR

	result, err := s.service.ConfirmPayment(s.GetContext(), in)
	s.Require().NoError(err)
	s.True(dec("55").Equal(result.Payment.AmountInBaseCurrency))
	s.True(dec("1.10").Equal(result.Payment.ExchangeRate))
	s.Equal(types.CurrencyUSD, result.Payment.BaseCurrency)
	s.Equal(types.InvoiceStatusPartial, result.Invoice.InvoiceStatus)
}

func (s *PaymentServiceSuite) TestRecordManualPayment() {
	inv := s.sentInvoice(types.CurrencyUSD, "200")
	req := dto.RecordPaymentRequest{
		Reference: "wire-2026-0042",
		Amount:    dec("200"),
		Currency:  "USD",
		Method:    "bank_transfer",
		Notes:     "received by wire",
	}

	resp, err := s.service.RecordManualPayment(s.GetContext(), inv.ID, req)
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeConfirmed, resp.Outcome)
	s.Equal(types.PaymentGatewayManual, resp.Payment.Gateway)
	s.Equal(types.DefaultUserID, resp.Payment.Metadata["recorded_by"])
	s.Equal(types.InvoiceStatusPaid, resp.Invoice.InvoiceStatus)
	s.Equal("bank_transfer", lo.FromPtr(resp.Invoice.PaymentMethod))

	resp, err = s.service.RecordManualPayment(s.GetContext(), inv.ID, req)
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeDuplicate, resp.Outcome)
}

func (s *PaymentServiceSuite) TestRecordFailedPaymentLeavesInvoice() {
	inv := s.sentInvoice(types.CurrencyUSD, "60")

	failed, err := s.service.RecordFailedPayment(s.GetContext(), FailedPaymentInput{
		InvoiceID:  inv.ID,
		Gateway:    types.PaymentGatewayStripe,
		GatewayRef: "pi_declined",
		Amount:     dec("60"),
		Reason:     "card_declined",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, failed.PaymentStatus)
	s.Equal("card_declined", lo.FromPtr(failed.FailureReason))

	// the same reference may still succeed later
	result, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_declined", "60"))
	s.Require().NoError(err)
	s.Equal(types.PaymentOutcomeConfirmed, result.Outcome())
	s.Len(s.storedPayments(inv.ID), 2)
}

func (s *PaymentServiceSuite) TestListPayments() {
	inv := s.sentInvoice(types.CurrencyUSD, "60")
	_, err := s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_a", "20"))
	s.Require().NoError(err)
	_, err = s.service.ConfirmPayment(s.GetContext(), s.confirmInput(inv.ID, "pi_b", "20"))
	s.Require().NoError(err)

	filter := types.NewPaymentFilter()
	filter.InvoiceID = inv.ID
	resp, err := s.service.ListPayments(s.GetContext(), filter)
	s.Require().NoError(err)
	s.Len(resp.Items, 2)
	s.Equal(2, resp.Pagination.Total)

	got, err := s.service.GetPayment(s.GetContext(), resp.Items[0].ID)
	s.Require().NoError(err)
	s.Equal(inv.ID, got.InvoiceID)
}
