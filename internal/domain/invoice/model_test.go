package invoice

import (
	"testing"
	"time"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCanTransition(t *testing.T) {
	all := []types.InvoiceStatus{
		types.InvoiceStatusDraft,
		types.InvoiceStatusSent,
		types.InvoiceStatusPartial,
		types.InvoiceStatusPaid,
		types.InvoiceStatusOverdue,
		types.InvoiceStatusCancelled,
	}
	allowed := map[types.InvoiceStatus][]types.InvoiceStatus{
		types.InvoiceStatusDraft:     {types.InvoiceStatusSent, types.InvoiceStatusCancelled},
		types.InvoiceStatusSent:      {types.InvoiceStatusPartial, types.InvoiceStatusPaid, types.InvoiceStatusOverdue, types.InvoiceStatusCancelled},
		types.InvoiceStatusPartial:   {types.InvoiceStatusPaid, types.InvoiceStatusOverdue, types.InvoiceStatusCancelled},
		types.InvoiceStatusOverdue:   {types.InvoiceStatusPartial, types.InvoiceStatusPaid, types.InvoiceStatusCancelled},
		types.InvoiceStatusPaid:      {},
		types.InvoiceStatusCancelled: {},
	}

	for _, from := range all {
		for _, to := range all {
			want := from == to || lo.Contains(allowed[from], to)
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionTo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := &Invoice{ID: "inv_1", InvoiceStatus: types.InvoiceStatusDraft}

	changed, err := inv.TransitionTo(types.InvoiceStatusSent, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, now, *inv.SentAt)

	changed, err = inv.TransitionTo(types.InvoiceStatusSent, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, now, *inv.SentAt)

	_, err = inv.TransitionTo(types.InvoiceStatusDraft, now)
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ErrInvalidTransition))
	assert.True(t, ierr.IsInvalidOperation(err))
}

func newPlanInvoice() *Invoice {
	issue := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	return &Invoice{
		ID:            "inv_plan",
		InvoiceStatus: types.InvoiceStatusSent,
		IssueDate:     issue,
		Currency:      types.CurrencyUSD,
		Total:         dec("1000"),
		PaymentPlan: &PaymentPlan{
			DownPayment:       dec("100"),
			InstallmentsCount: 3,
			InstallmentAmount: dec("300"),
			Period:            types.InstallmentPeriodMonthly,
			Schedule: []Installment{
				{Number: 1, DueDate: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), Amount: dec("300"), Status: types.InstallmentStatusUnpaid},
				{Number: 2, DueDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), Amount: dec("300"), Status: types.InstallmentStatusUnpaid},
				{Number: 3, DueDate: time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), Amount: dec("300"), Status: types.InstallmentStatusUnpaid},
			},
		},
	}
}

func TestApplyPaymentInstallments(t *testing.T) {
	inv := newPlanInvoice()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, dec("100").Equal(inv.NextPayableAmount()))

	changed, err := inv.ApplyPayment(PaymentApplication{PaymentID: "pay_1", Amount: dec("100"), Method: "zarinpal", PaidAt: now})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.InvoiceStatusPartial, inv.InvoiceStatus)
	assert.True(t, inv.PaymentPlan.DownPaymentPaid)
	assert.Equal(t, "zarinpal", *inv.PaymentMethod)
	assert.True(t, dec("300").Equal(inv.NextPayableAmount()))

	// replaying the same payment changes nothing
	changed, err = inv.ApplyPayment(PaymentApplication{PaymentID: "pay_1", Amount: dec("100"), PaidAt: now})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, dec("100").Equal(inv.AmountPaid))

	_, err = inv.ApplyPayment(PaymentApplication{PaymentID: "pay_2", Amount: dec("300"), PaidAt: now})
	require.NoError(t, err)
	assert.Equal(t, types.InstallmentStatusPaid, inv.PaymentPlan.Schedule[0].Status)
	assert.Equal(t, types.InstallmentStatusUnpaid, inv.PaymentPlan.Schedule[1].Status)

	// short payment toward the second installment is tracked but settles nothing
	_, err = inv.ApplyPayment(PaymentApplication{PaymentID: "pay_3", Amount: dec("200"), PaidAt: now})
	require.NoError(t, err)
	assert.Equal(t, types.InstallmentStatusUnpaid, inv.PaymentPlan.Schedule[1].Status)
	assert.True(t, dec("100").Equal(inv.NextPayableAmount()))

	_, err = inv.ApplyPayment(PaymentApplication{PaymentID: "pay_4", Amount: dec("400"), PaidAt: now})
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, inv.InvoiceStatus)
	assert.NotNil(t, inv.PaidAt)
	for _, in := range inv.PaymentPlan.Schedule {
		assert.Equal(t, types.InstallmentStatusPaid, in.Status)
	}
	assert.True(t, inv.AmountDue().IsZero())

	_, err = inv.ApplyPayment(PaymentApplication{PaymentID: "pay_5", Amount: dec("1"), PaidAt: now})
	assert.True(t, ierr.Is(err, ErrInvoiceNotPayable))
}

func TestApplyPaymentFullSettlement(t *testing.T) {
	inv := &Invoice{ID: "inv_1", InvoiceStatus: types.InvoiceStatusOverdue, Total: dec("990000")}
	changed, err := inv.ApplyPayment(PaymentApplication{PaymentID: "pay_1", Amount: dec("990000"), PaidAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func TestApplyPaymentRejectsDraft(t *testing.T) {
	inv := &Invoice{ID: "inv_1", InvoiceStatus: types.InvoiceStatusDraft, Total: dec("10")}
	_, err := inv.ApplyPayment(PaymentApplication{PaymentID: "pay_1", Amount: dec("10"), PaidAt: time.Now()})
	assert.True(t, ierr.Is(err, ErrInvoiceNotPayable))
	assert.True(t, ierr.IsInvalidOperation(err))
}

func TestEffectiveStatus(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	inv := &Invoice{InvoiceStatus: types.InvoiceStatusSent, DueDate: due, Total: dec("10")}

	assert.Equal(t, types.InvoiceStatusSent, inv.EffectiveStatus(due.Add(-time.Hour)))
	assert.Equal(t, types.InvoiceStatusOverdue, inv.EffectiveStatus(due.Add(time.Hour)))

	inv.InvoiceStatus = types.InvoiceStatusDraft
	assert.Equal(t, types.InvoiceStatusDraft, inv.EffectiveStatus(due.Add(time.Hour)))

	plan := newPlanInvoice()
	assert.Equal(t, types.InvoiceStatusSent, plan.EffectiveStatus(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, types.InvoiceStatusOverdue, plan.EffectiveStatus(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCloneIsDeep(t *testing.T) {
	inv := newPlanInvoice()
	inv.LineItems = []LineItem{{Description: "x", Quantity: 1, ProductID: lo.ToPtr("prod_1")}}
	inv.AppliedPaymentIDs = []string{"pay_1"}

	c := inv.Clone()
	c.PaymentPlan.Schedule[0].Status = types.InstallmentStatusPaid
	*c.LineItems[0].ProductID = "prod_2"
	c.AppliedPaymentIDs[0] = "pay_2"

	assert.Equal(t, types.InstallmentStatusUnpaid, inv.PaymentPlan.Schedule[0].Status)
	assert.Equal(t, "prod_1", *inv.LineItems[0].ProductID)
	assert.Equal(t, "pay_1", inv.AppliedPaymentIDs[0])
}

func TestSortAndPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var items []*Invoice
	for i := 0; i < 5; i++ {
		inv := &Invoice{ID: string(rune('a' + i))}
		inv.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		items = append(items, inv)
	}

	f := types.NewInvoiceFilter()
	f.Limit = lo.ToPtr(2)
	f.Offset = lo.ToPtr(1)
	page := SortAndPage(items, f)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
	assert.Equal(t, "c", page[1].ID)
}
