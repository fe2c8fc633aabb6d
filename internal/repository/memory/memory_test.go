package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentInvoice(id, number string) *invoice.Invoice {
	return &invoice.Invoice{
		ID:            id,
		InvoiceNumber: number,
		ClientID:      "client_1",
		InvoiceStatus: types.InvoiceStatusSent,
		Currency:      types.CurrencyUSD,
		Total:         decimal.NewFromInt(100),
		LineItems: []invoice.LineItem{
			{Description: "widget", Quantity: 1, UnitPrice: decimal.NewFromInt(100), Amount: decimal.NewFromInt(100)},
		},
		BaseModel: types.BaseModel{CreatedAt: time.Now().UTC()},
	}
}

func TestInvoiceStoreUniqueNumber(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()

	require.NoError(t, s.Create(ctx, sentInvoice("inv_1", "INV-1")))
	err := s.Create(ctx, sentInvoice("inv_2", "INV-1"))
	assert.True(t, ierr.IsAlreadyExists(err))

	got, err := s.GetByNumber(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, "inv_1", got.ID)

	_, err = s.Get(ctx, "missing")
	assert.True(t, ierr.IsNotFound(err))
}

func TestInvoiceStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()
	require.NoError(t, s.Create(ctx, sentInvoice("inv_1", "INV-1")))

	got, err := s.Get(ctx, "inv_1")
	require.NoError(t, err)
	got.LineItems[0].Description = "changed"

	again, err := s.Get(ctx, "inv_1")
	require.NoError(t, err)
	assert.Equal(t, "widget", again.LineItems[0].Description)
}

func TestInvoiceStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()
	require.NoError(t, s.Create(ctx, sentInvoice("inv_1", "INV-1")))

	first, _ := s.Get(ctx, "inv_1")
	second, _ := s.Get(ctx, "inv_1")

	first.InvoiceStatus = types.InvoiceStatusPaid
	require.NoError(t, s.Update(ctx, first, types.InvoiceStatusSent))
	assert.Equal(t, 1, first.Version)

	// the second writer read the same version and loses
	second.InvoiceStatus = types.InvoiceStatusPartial
	err := s.Update(ctx, second, types.InvoiceStatusSent)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, 0, second.Version)

	stored, _ := s.Get(ctx, "inv_1")
	assert.Equal(t, types.InvoiceStatusPaid, stored.InvoiceStatus)
	assert.Equal(t, 1, stored.Version)
}

func TestInvoiceStoreConcurrentUpdatesOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()
	require.NoError(t, s.Create(ctx, sentInvoice("inv_1", "INV-1")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := s.Get(ctx, "inv_1")
			if err != nil || inv.Version != 0 {
				return
			}
			inv.InvoiceStatus = types.InvoiceStatusPaid
			if s.Update(ctx, inv, types.InvoiceStatusSent) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestInvoiceStoreListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()
	a := sentInvoice("inv_1", "INV-1")
	b := sentInvoice("inv_2", "INV-2")
	b.ClientID = "client_2"
	b.CreatedAt = a.CreatedAt.Add(time.Minute)
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	filter := types.NewInvoiceFilter()
	filter.ClientID = "client_2"
	items, err := s.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "inv_2", items[0].ID)

	count, err := s.Count(ctx, types.NewInvoiceFilter())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPaymentStoreCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewPaymentStore()

	p1 := &payment.Payment{ID: "pay_1", IdempotencyKey: "key", InvoiceID: "inv_1", Amount: decimal.NewFromInt(10)}
	p2 := &payment.Payment{ID: "pay_2", IdempotencyKey: "key", InvoiceID: "inv_1", Amount: decimal.NewFromInt(10)}

	stored, created, err := s.CreateIfAbsent(ctx, p1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "pay_1", stored.ID)

	stored, created, err = s.CreateIfAbsent(ctx, p2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "pay_1", stored.ID)

	byKey, err := s.GetByIdempotencyKey(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", byKey.ID)

	_, err = s.Get(ctx, "pay_2")
	assert.True(t, ierr.IsNotFound(err))
}

func TestPaymentStoreUpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewPaymentStore()

	p := &payment.Payment{ID: "pay_1", IdempotencyKey: "key", InvoiceID: "inv_1", PaymentStatus: types.PaymentStatusPending}
	_, _, err := s.CreateIfAbsent(ctx, p)
	require.NoError(t, err)

	done := p.Clone()
	done.PaymentStatus = types.PaymentStatusCompleted
	require.NoError(t, s.UpdateStatus(ctx, done, types.PaymentStatusPending))

	late := p.Clone()
	late.PaymentStatus = types.PaymentStatusUnapplied
	err = s.UpdateStatus(ctx, late, types.PaymentStatusPending)
	assert.True(t, ierr.Is(err, ierr.ErrVersionConflict))

	got, err := s.Get(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusCompleted, got.PaymentStatus)

	missing := p.Clone()
	missing.ID = "pay_missing"
	assert.True(t, ierr.IsNotFound(s.UpdateStatus(ctx, missing, types.PaymentStatusPending)))
}

func TestPromotionStoreIncrementUsageBoundary(t *testing.T) {
	ctx := context.Background()
	s := NewPromotionStore()
	require.NoError(t, s.Create(ctx, &promotion.Promotion{
		ID: "promo_1", Code: "SPRING", Type: types.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), UsageLimit: lo.ToPtr(5), UsedCount: 4, Active: true,
	}))

	assert.True(t, ierr.IsAlreadyExists(s.Create(ctx, &promotion.Promotion{ID: "promo_2", Code: "SPRING"})))

	require.NoError(t, s.IncrementUsage(ctx, "promo_1"))
	err := s.IncrementUsage(ctx, "promo_1")
	assert.True(t, ierr.Is(err, promotion.ErrUsageExhausted))

	p, err := s.GetByCode(ctx, "SPRING")
	require.NoError(t, err)
	assert.Equal(t, 5, p.UsedCount)
}

func TestPromotionStoreConcurrentRedemptionsRespectLimit(t *testing.T) {
	ctx := context.Background()
	s := NewPromotionStore()
	require.NoError(t, s.Create(ctx, &promotion.Promotion{
		ID: "promo_1", Code: "LIMITED", UsageLimit: lo.ToPtr(3), Active: true,
	}))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.IncrementUsage(ctx, "promo_1") == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), ok.Load())
}

func TestProductStoreDecrement(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore()
	require.NoError(t, s.Create(ctx, &inventory.Product{
		ID: "prod_1", Name: "shirt", TrackStock: true, Stock: 2,
		VariantStock: map[string]int{"size:L": 1},
	}))

	p, err := s.Decrement(ctx, "dec_1", "prod_1", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	p, err = s.Decrement(ctx, "dec_2", "prod_1", lo.ToPtr("size:L"), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, p.VariantStock["size:L"])

	_, err = s.Decrement(ctx, "dec_3", "missing", nil, 1)
	assert.True(t, ierr.IsNotFound(err))
}

func TestProductStoreDecrementKeyAppliedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore()
	require.NoError(t, s.Create(ctx, &inventory.Product{ID: "prod_1", Name: "shirt", TrackStock: true, Stock: 10}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Decrement(ctx, "pay_1:0", "prod_1", nil, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := s.Get(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
}
