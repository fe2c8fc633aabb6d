package service

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/testutil"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service    InvoiceService
	promotions PromotionService
	clientID   string
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.promotions = NewPromotionService(params)
	s.service = NewInvoiceService(params, s.promotions)
	s.clientID = createTestClient(&s.BaseServiceTestSuite).ID
}

func (s *InvoiceServiceSuite) create(req dto.CreateInvoiceRequest) *dto.InvoiceResponse {
	resp, err := s.service.CreateInvoice(s.GetContext(), req)
	s.Require().NoError(err)
	return resp
}

func (s *InvoiceServiceSuite) pay(invoiceID, amount string) *invoice.Invoice {
	inv, applied, err := s.service.ApplyPayment(s.GetContext(), invoiceID, invoice.PaymentApplication{
		PaymentID: types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Amount:    dec(amount),
		Method:    "card",
		PaidAt:    time.Now().UTC(),
	})
	s.Require().NoError(err)
	s.Require().True(applied)
	return inv
}

func (s *InvoiceServiceSuite) TestCreateInvoiceTotals() {
	createTestPromotion(&s.BaseServiceTestSuite, "TEN", nil)

	req := invoiceRequest(s.clientID, types.CurrencyUSD, dec("1000000"))
	req.TaxRate = lo.ToPtr(dec("9"))
	req.PromotionCode = lo.ToPtr("ten")

	resp := s.create(req)
	s.True(dec("1000000").Equal(resp.Subtotal))
	s.True(dec("90000").Equal(resp.TaxAmount))
	s.True(dec("100000").Equal(resp.DiscountAmount))
	s.True(dec("990000").Equal(resp.Total))
	s.True(dec("990000").Equal(resp.TotalInBaseCurrency))
	s.True(dec("1").Equal(resp.ExchangeRate))
	s.Equal(types.CurrencyUSD, resp.BaseCurrency)
	s.Equal(types.InvoiceStatusDraft, resp.InvoiceStatus)
	s.Regexp(`^INV-\d{8}-[A-Z0-9]{1,6}$`, resp.InvoiceNumber)

	s.Require().NotNil(resp.Promotion)
	s.Equal("TEN", resp.Promotion.Code)
	s.True(dec("100000").Equal(resp.Promotion.DiscountAmount))

	stored, err := s.GetStores().InvoiceRepo.GetByNumber(s.GetContext(), resp.InvoiceNumber)
	s.Require().NoError(err)
	s.Equal(resp.ID, stored.ID)
}

func (s *InvoiceServiceSuite) TestCreateInvoiceConvertsToBase() {
	resp := s.create(invoiceRequest(s.clientID, types.CurrencyEUR, dec("100")))
	s.True(dec("110").Equal(resp.TotalInBaseCurrency))
	s.True(dec("1.10").Equal(resp.ExchangeRate))
	s.Equal(types.CurrencyEUR, resp.Currency)
}

func (s *InvoiceServiceSuite) TestCreateInvoiceWithoutRateStoresNothing() {
	p := createTestPromotion(&s.BaseServiceTestSuite, "AEDTEN", nil)

	req := invoiceRequest(s.clientID, types.CurrencyAED, dec("500"))
	req.PromotionCode = lo.ToPtr("AEDTEN")
	_, err := s.service.CreateInvoice(s.GetContext(), req)
	s.Require().Error(err)
	s.True(ierr.Is(err, money.ErrConversionUnavailable))

	count, err := s.GetStores().InvoiceRepo.Count(s.GetContext(), types.NewNoLimitInvoiceFilter())
	s.Require().NoError(err)
	s.Zero(count)

	stored, err := s.GetStores().PromotionRepo.Get(s.GetContext(), p.ID)
	s.Require().NoError(err)
	s.Zero(stored.UsedCount)
}

func (s *InvoiceServiceSuite) TestCreateInvoiceUnknownClient() {
	_, err := s.service.CreateInvoice(s.GetContext(), invoiceRequest("client_missing", types.CurrencyUSD, dec("10")))
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *InvoiceServiceSuite) TestInstallmentScheduleClampsMonthEnd() {
	req := invoiceRequest(s.clientID, types.CurrencyUSD, dec("1000"))
	req.IssueDate = lo.ToPtr(time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC))
	req.PaymentPlan = &dto.PaymentPlanRequest{
		InstallmentsCount: 3,
		Period:            types.InstallmentPeriodMonthly,
	}

	resp := s.create(req)
	plan := resp.PaymentPlan
	s.Require().NotNil(plan)
	s.True(plan.DownPaymentPaid)
	s.Require().Len(plan.Schedule, 3)

	wantDates := []time.Time{
		time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC),
	}
	wantAmounts := []string{"333.33", "333.33", "333.34"}
	for idx, in := range plan.Schedule {
		s.True(wantDates[idx].Equal(in.DueDate), "installment %d due %s", in.Number, in.DueDate)
		s.True(dec(wantAmounts[idx]).Equal(in.Amount), "installment %d amount %s", in.Number, in.Amount)
		s.Equal(types.InstallmentStatusUnpaid, in.Status)
	}
	s.True(plan.ScheduleTotal().Equal(resp.Total))
	s.True(wantDates[2].Equal(resp.DueDate))
}

func (s *InvoiceServiceSuite) TestDownPaymentAboveTotalRejected() {
	req := invoiceRequest(s.clientID, types.CurrencyUSD, dec("100"))
	req.PaymentPlan = &dto.PaymentPlanRequest{
		DownPayment:       dec("150"),
		InstallmentsCount: 2,
		Period:            types.InstallmentPeriodMonthly,
	}
	_, err := s.service.CreateInvoice(s.GetContext(), req)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *InvoiceServiceSuite) TestRequestedNumberCollision() {
	req := invoiceRequest(s.clientID, types.CurrencyUSD, dec("10"))
	req.InvoiceNumber = lo.ToPtr("INV-CUSTOM-1")
	resp := s.create(req)
	s.Equal("INV-CUSTOM-1", resp.InvoiceNumber)

	_, err := s.service.CreateInvoice(s.GetContext(), req)
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

// collidingInvoiceRepo reports the first few generated numbers as taken
type collidingInvoiceRepo struct {
	invoice.Repository
	collisions int
	tried      []string
}

func (r *collidingInvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	r.tried = append(r.tried, inv.InvoiceNumber)
	if len(r.tried) <= r.collisions {
		return invoice.NewNumberTakenError(inv.InvoiceNumber)
	}
	return r.Repository.Create(ctx, inv)
}

func (s *InvoiceServiceSuite) withCollisions(n int) (InvoiceService, *collidingInvoiceRepo) {
	repo := &collidingInvoiceRepo{Repository: s.GetStores().InvoiceRepo, collisions: n}
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	params.InvoiceRepo = repo
	return NewInvoiceService(params, NewPromotionService(params)), repo
}

func (s *InvoiceServiceSuite) TestGeneratedNumberRetriedOnCollision() {
	cfg := s.GetConfig()
	previous := cfg.Billing.InvoiceNumberAttempts
	cfg.Billing.InvoiceNumberAttempts = 4
	defer func() { cfg.Billing.InvoiceNumberAttempts = previous }()

	svc, repo := s.withCollisions(3)
	resp, err := svc.CreateInvoice(s.GetContext(), invoiceRequest(s.clientID, types.CurrencyUSD, dec("50")))
	s.Require().NoError(err)

	s.Len(repo.tried, 4)
	s.Len(lo.Uniq(repo.tried), 4)
	s.Equal(repo.tried[3], resp.InvoiceNumber)

	stored, err := s.GetStores().InvoiceRepo.GetByNumber(s.GetContext(), resp.InvoiceNumber)
	s.Require().NoError(err)
	s.Equal(resp.ID, stored.ID)
}

func (s *InvoiceServiceSuite) TestGeneratedNumberAttemptsExhausted() {
	cfg := s.GetConfig()
	previous := cfg.Billing.InvoiceNumberAttempts
	cfg.Billing.InvoiceNumberAttempts = 4
	defer func() { cfg.Billing.InvoiceNumberAttempts = previous }()

	svc, repo := s.withCollisions(4)
	_, err := svc.CreateInvoice(s.GetContext(), invoiceRequest(s.clientID, types.CurrencyUSD, dec("50")))
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
	s.Len(repo.tried, 4)

	count, err := s.GetStores().InvoiceRepo.Count(s.GetContext(), types.NewInvoiceFilter())
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *InvoiceServiceSuite) TestUpdateKeepsPromotionWithoutRedeemingAgain() {
	p := createTestPromotion(&s.BaseServiceTestSuite, "ONCE", func(p *promotion.Promotion) {
		p.UsageLimit = lo.ToPtr(1)
	})

	req := invoiceRequest(s.clientID, types.CurrencyUSD, dec("200"))
	req.PromotionCode = lo.ToPtr("ONCE")
	created := s.create(req)
	s.True(dec("20").Equal(created.DiscountAmount))

	updated, err := s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems: []dto.CreateInvoiceLineItemRequest{
			{Description: "Course enrollment", Quantity: 2, UnitPrice: dec("200")},
		},
	})
	s.Require().NoError(err)
	s.True(dec("400").Equal(updated.Subtotal))
	s.True(dec("40").Equal(updated.DiscountAmount))
	s.True(dec("360").Equal(updated.Total))
	s.True(created.DueDate.Equal(updated.DueDate))

	stored, err := s.GetStores().PromotionRepo.Get(s.GetContext(), p.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.UsedCount)

	// an empty code drops the promotion
	cleared, err := s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems:     []dto.CreateInvoiceLineItemRequest{{Description: "Course", Quantity: 1, UnitPrice: dec("200")}},
		PromotionCode: lo.ToPtr(""),
	})
	s.Require().NoError(err)
	s.Nil(cleared.Promotion)
	s.True(dec("200").Equal(cleared.Total))
}

func (s *InvoiceServiceSuite) TestUpdateKeepsPaymentPlanUnlessRemoved() {
	req := invoiceRequest(s.clientID, types.CurrencyUSD, dec("400"))
	req.PaymentPlan = &dto.PaymentPlanRequest{
		DownPayment:       dec("100"),
		InstallmentsCount: 3,
		Period:            types.InstallmentPeriodMonthly,
	}
	created := s.create(req)
	s.Require().NotNil(created.PaymentPlan)

	lines := []dto.CreateInvoiceLineItemRequest{
		{Description: "Course enrollment", Quantity: 1, UnitPrice: dec("400")},
	}
	notesOnly, err := s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems: lines,
		Notes:     lo.ToPtr("paid by the parent"),
	})
	s.Require().NoError(err)
	s.Equal("paid by the parent", notesOnly.Notes)
	plan := notesOnly.PaymentPlan
	s.Require().NotNil(plan)
	s.True(dec("100").Equal(plan.DownPayment))
	s.Equal(3, plan.InstallmentsCount)
	s.Equal(types.InstallmentPeriodMonthly, plan.Period)
	s.Require().Len(plan.Schedule, 3)
	s.True(plan.ScheduleTotal().Equal(notesOnly.Total))
	s.True(created.DueDate.Equal(notesOnly.DueDate))

	// a new total reprices the kept terms
	repriced, err := s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems: []dto.CreateInvoiceLineItemRequest{
			{Description: "Course enrollment", Quantity: 1, UnitPrice: dec("700")},
		},
	})
	s.Require().NoError(err)
	s.Require().NotNil(repriced.PaymentPlan)
	s.Len(repriced.PaymentPlan.Schedule, 3)
	s.True(dec("200").Equal(repriced.PaymentPlan.InstallmentAmount))
	s.True(repriced.PaymentPlan.ScheduleTotal().Equal(repriced.Total))

	removed, err := s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems:         lines,
		RemovePaymentPlan: true,
	})
	s.Require().NoError(err)
	s.Nil(removed.PaymentPlan)

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Nil(stored.PaymentPlan)

	_, err = s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems:         lines,
		PaymentPlan:       req.PaymentPlan,
		RemovePaymentPlan: true,
	})
	s.True(ierr.IsValidation(err))
}

func (s *InvoiceServiceSuite) TestUpdateLockedAfterPayment() {
	created := s.create(sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("300"))))
	inv := s.pay(created.ID, "100")
	s.Equal(types.InvoiceStatusPartial, inv.InvoiceStatus)

	_, err := s.service.UpdateInvoice(s.GetContext(), created.ID, dto.UpdateInvoiceRequest{
		LineItems: []dto.CreateInvoiceLineItemRequest{{Description: "Course", Quantity: 1, UnitPrice: dec("50")}},
	})
	s.Require().Error(err)
	s.True(ierr.Is(err, invoice.ErrInvoiceLocked))

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.True(dec("300").Equal(stored.Total))
}

func (s *InvoiceServiceSuite) TestSendAndCancel() {
	created := s.create(invoiceRequest(s.clientID, types.CurrencyUSD, dec("80")))

	resp, err := s.service.SendInvoice(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusSent, resp.InvoiceStatus)
	s.NotNil(resp.SentAt)

	// sending again is a no-op
	resp, err = s.service.SendInvoice(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusSent, resp.InvoiceStatus)

	resp, err = s.service.CancelInvoice(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusCancelled, resp.InvoiceStatus)
	s.NotNil(resp.CancelledAt)

	_, err = s.service.SendInvoice(s.GetContext(), created.ID)
	s.Error(err)
}

func (s *InvoiceServiceSuite) TestCancelPaidInvoiceFails() {
	created := s.create(sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("80"))))
	inv := s.pay(created.ID, "80")
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.NotNil(inv.PaidAt)

	_, err := s.service.CancelInvoice(s.GetContext(), created.ID)
	s.Error(err)
}

func (s *InvoiceServiceSuite) TestMarkOverdueInvoices() {
	issued := time.Now().UTC().AddDate(0, -2, 0)
	due := issued.AddDate(0, 0, 14)

	late := sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("50")))
	late.IssueDate = lo.ToPtr(issued)
	late.DueDate = lo.ToPtr(due)
	lateResp := s.create(late)
	s.Equal(types.InvoiceStatusOverdue, lateResp.EffectiveStatus)

	draft := invoiceRequest(s.clientID, types.CurrencyUSD, dec("50"))
	draft.IssueDate = lo.ToPtr(issued)
	draft.DueDate = lo.ToPtr(due)
	draftResp := s.create(draft)

	current := s.create(sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("50"))))

	resp, err := s.service.MarkOverdueInvoices(s.GetContext())
	s.Require().NoError(err)
	s.Equal(2, resp.Checked)
	s.Equal(1, resp.MarkedCount)
	s.Equal([]string{lateResp.ID}, resp.MarkedIDs)
	s.Empty(resp.FailedIDs)

	for id, want := range map[string]types.InvoiceStatus{
		lateResp.ID:  types.InvoiceStatusOverdue,
		draftResp.ID: types.InvoiceStatusDraft,
		current.ID:   types.InvoiceStatusSent,
	} {
		stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), id)
		s.Require().NoError(err)
		s.Equal(want, stored.InvoiceStatus)
	}

	// an overdue invoice still accepts payment
	inv := s.pay(lateResp.ID, "50")
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestInstallmentAllocationIsCumulative() {
	req := sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("1000")))
	req.PaymentPlan = &dto.PaymentPlanRequest{
		DownPayment:       dec("400"),
		InstallmentsCount: 3,
		Period:            types.InstallmentPeriodMonthly,
	}
	created := s.create(req)
	s.False(created.PaymentPlan.DownPaymentPaid)
	s.True(dec("400").Equal(created.NextPayableAmount))

	inv := s.pay(created.ID, "300")
	s.False(inv.PaymentPlan.DownPaymentPaid)
	s.True(dec("100").Equal(inv.NextPayableAmount()))

	inv = s.pay(created.ID, "250")
	s.True(inv.PaymentPlan.DownPaymentPaid)
	s.Equal(types.InstallmentStatusUnpaid, inv.PaymentPlan.Schedule[0].Status)
	s.True(dec("50").Equal(inv.NextPayableAmount()))

	inv = s.pay(created.ID, "50")
	s.Equal(types.InstallmentStatusPaid, inv.PaymentPlan.Schedule[0].Status)
	s.Equal(types.InstallmentStatusUnpaid, inv.PaymentPlan.Schedule[1].Status)
	s.True(dec("200").Equal(inv.NextPayableAmount()))
	s.Equal(types.InvoiceStatusPartial, inv.InvoiceStatus)

	inv = s.pay(created.ID, "400")
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	for _, in := range inv.PaymentPlan.Schedule {
		s.Equal(types.InstallmentStatusPaid, in.Status)
	}
	s.True(inv.AmountDue().IsZero())
}

func (s *InvoiceServiceSuite) TestApplyPaymentTwiceIsNoop() {
	created := s.create(sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("90"))))
	app := invoice.PaymentApplication{
		PaymentID: "pay_once",
		Amount:    dec("30"),
		PaidAt:    time.Now().UTC(),
	}

	_, applied, err := s.service.ApplyPayment(s.GetContext(), created.ID, app)
	s.Require().NoError(err)
	s.True(applied)

	inv, applied, err := s.service.ApplyPayment(s.GetContext(), created.ID, app)
	s.Require().NoError(err)
	s.False(applied)
	s.True(dec("30").Equal(inv.AmountPaid))
}

func (s *InvoiceServiceSuite) TestApplyPaymentToDraftFails() {
	created := s.create(invoiceRequest(s.clientID, types.CurrencyUSD, dec("90")))
	_, _, err := s.service.ApplyPayment(s.GetContext(), created.ID, invoice.PaymentApplication{
		PaymentID: "pay_draft",
		Amount:    dec("90"),
		PaidAt:    time.Now().UTC(),
	})
	s.Require().Error(err)
	s.True(ierr.Is(err, invoice.ErrInvoiceNotPayable))
}

func (s *InvoiceServiceSuite) TestListAndLookupInvoices() {
	other := createTestClient(&s.BaseServiceTestSuite).ID

	first := s.create(invoiceRequest(s.clientID, types.CurrencyUSD, dec("100")))
	s.create(sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("200"))))
	s.create(invoiceRequest(other, types.CurrencyUSD, dec("300")))

	byNumber, err := s.service.GetInvoiceByNumber(s.GetContext(), first.InvoiceNumber)
	s.Require().NoError(err)
	s.Equal(first.ID, byNumber.ID)

	_, err = s.service.GetInvoiceByNumber(s.GetContext(), "INV-MISSING")
	s.True(ierr.IsNotFound(err))

	_, err = s.service.GetInvoiceByNumber(s.GetContext(), "")
	s.True(ierr.IsValidation(err))

	filter := types.NewInvoiceFilter()
	filter.ClientID = s.clientID
	list, err := s.service.ListInvoices(s.GetContext(), filter)
	s.Require().NoError(err)
	s.Len(list.Items, 2)
	s.Equal(2, list.Pagination.Total)

	filter.Statuses = []types.InvoiceStatus{types.InvoiceStatusSent}
	list, err = s.service.ListInvoices(s.GetContext(), filter)
	s.Require().NoError(err)
	s.Require().Len(list.Items, 1)
	s.Equal(types.InvoiceStatusSent, list.Items[0].InvoiceStatus)

	all, err := s.service.ListInvoices(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Equal(3, all.Pagination.Total)
}
