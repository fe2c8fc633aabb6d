package service

import (
	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/client"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	"github.com/ledgerline/ledgerline/internal/testutil"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:        s.GetLogger(),
		Config:        s.GetConfig(),
		Sentry:        s.GetSentry(),
		Converter:     s.GetConverter(),
		Publisher:     s.GetPubSub(),
		InvoiceRepo:   stores.InvoiceRepo,
		PaymentRepo:   stores.PaymentRepo,
		PromotionRepo: stores.PromotionRepo,
		ProductRepo:   stores.ProductRepo,
		ClientRepo:    stores.ClientRepo,
		Stripe:        s.GetStripeClient(),
		Zarinpal:      s.GetZarinpalClient(),
		Notifier:      s.GetNotifier(),
	}
}

func createTestClient(s *testutil.BaseServiceTestSuite) *client.Client {
	c := &client.Client{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CLIENT),
		Name:      "Acme Learning",
		Email:     "billing@acme.test",
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().ClientRepo.Create(s.GetContext(), c))
	return c
}

func createTestPromotion(s *testutil.BaseServiceTestSuite, code string, mutate func(p *promotion.Promotion)) *promotion.Promotion {
	p := &promotion.Promotion{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PROMOTION),
		Code:      promotion.NormalizeCode(code),
		Name:      code,
		Type:      types.DiscountTypePercentage,
		Value:     decimal.NewFromInt(10),
		Active:    true,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	if mutate != nil {
		mutate(p)
	}
	s.Require().NoError(s.GetStores().PromotionRepo.Create(s.GetContext(), p))
	return p
}

// invoiceRequest is a single-line invoice with no tax
func invoiceRequest(clientID string, currency types.Currency, unitPrice decimal.Decimal) dto.CreateInvoiceRequest {
	return dto.CreateInvoiceRequest{
		ClientID: clientID,
		Currency: string(currency),
		TaxRate:  lo.ToPtr(decimal.Zero),
		LineItems: []dto.CreateInvoiceLineItemRequest{
			{Description: "Course enrollment", Quantity: 1, UnitPrice: unitPrice},
		},
	}
}

func sent(req dto.CreateInvoiceRequest) dto.CreateInvoiceRequest {
	req.InvoiceStatus = lo.ToPtr(types.InvoiceStatusSent)
	return req
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
