package service

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/testutil"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type SideEffectServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SideEffectService
	invoices InvoiceService
	payments PaymentService
	clientID string
}

func TestSideEffectService(t *testing.T) {
	suite.Run(t, new(SideEffectServiceSuite))
}

func (s *SideEffectServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.invoices = NewInvoiceService(params, NewPromotionService(params))
	s.payments = NewPaymentService(params, s.invoices)
	s.service = NewSideEffectService(params)
	s.clientID = createTestClient(&s.BaseServiceTestSuite).ID
}

func (s *SideEffectServiceSuite) createProduct(stock int) *inventory.Product {
	p := &inventory.Product{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		Name:       "Notebook",
		Category:   "stationery",
		Price:      dec("12"),
		Currency:   types.CurrencyUSD,
		TrackStock: true,
		Stock:      stock,
		BaseModel:  types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().ProductRepo.Create(s.GetContext(), p))
	return p
}

// confirmedMessage pays an invoice for qty units of productID and returns the
// outbox message the payment produced
func (s *SideEffectServiceSuite) confirmedMessage(productID string, qty int) *message.Message {
	req := sent(invoiceRequest(s.clientID, types.CurrencyUSD, dec("12")))
	req.LineItems = []dto.CreateInvoiceLineItemRequest{
		{Description: "Notebook", Quantity: qty, UnitPrice: dec("12"), ProductID: lo.ToPtr(productID)},
		{Description: "Gift wrap", Quantity: 1, UnitPrice: dec("2")},
	}
	inv, err := s.invoices.CreateInvoice(s.GetContext(), req)
	s.Require().NoError(err)

	_, err = s.payments.ConfirmPayment(s.GetContext(), ConfirmPaymentInput{
		InvoiceID:  inv.ID,
		Gateway:    types.PaymentGatewayStripe,
		GatewayRef: "pi_" + inv.ID,
		Amount:     inv.Total,
		Currency:   inv.Currency,
	})
	s.Require().NoError(err)

	msgs := s.GetPubSub().GetMessages(s.GetConfig().Outbox.Topic)
	s.Require().NotEmpty(msgs)
	return msgs[len(msgs)-1]
}

func (s *SideEffectServiceSuite) stock(productID string) int {
	p, err := s.GetStores().ProductRepo.Get(s.GetContext(), productID)
	s.Require().NoError(err)
	return p.Stock
}

func (s *SideEffectServiceSuite) TestPaymentConfirmedRunsEveryEffectOnce() {
	product := s.createProduct(10)
	msg := s.confirmedMessage(product.ID, 3)

	s.Require().NoError(s.service.HandlePaymentConfirmed(msg))
	s.Equal(7, s.stock(product.ID))

	sentReceipts := s.GetNotifier().Sent()
	s.Require().Len(sentReceipts, 1)
	s.Equal(types.EventPaymentReceipt, sentReceipts[0].EventType)
	receipt, ok := sentReceipts[0].Payload.(PaymentReceipt)
	s.Require().True(ok)
	s.Equal("billing@acme.test", receipt.ClientEmail)
	s.Equal(types.InvoiceStatusPaid, receipt.InvoiceStatus)

	// redelivery
	s.Require().NoError(s.service.HandlePaymentConfirmed(msg))
	s.Equal(7, s.stock(product.ID))
	s.Len(s.GetNotifier().Sent(), 1)
}

func (s *SideEffectServiceSuite) TestRedeliveryToAnotherConsumer() {
	product := s.createProduct(10)
	msg := s.confirmedMessage(product.ID, 3)

	// each consumer process has its own in-memory markers
	other := NewSideEffectService(newTestServiceParams(&s.BaseServiceTestSuite))

	s.Require().NoError(s.service.HandlePaymentConfirmed(msg))
	s.Require().NoError(other.HandlePaymentConfirmed(msg))
	s.Require().NoError(other.HandlePaymentConfirmed(msg))

	s.Equal(7, s.stock(product.ID))
	s.Len(s.GetNotifier().Sent(), 1)
}

func (s *SideEffectServiceSuite) TestFailingReceiptDoesNotBlockInventory() {
	product := s.createProduct(5)
	msg := s.confirmedMessage(product.ID, 2)

	s.GetNotifier().FailWith(errors.New("portal unavailable"))
	s.Require().Error(s.service.HandlePaymentConfirmed(msg))
	s.Equal(3, s.stock(product.ID))
	s.Empty(s.GetNotifier().Sent())

	// the retry only sends the receipt
	s.GetNotifier().FailWith(nil)
	s.Require().NoError(s.service.HandlePaymentConfirmed(msg))
	s.Equal(3, s.stock(product.ID))
	s.Len(s.GetNotifier().Sent(), 1)
}

func (s *SideEffectServiceSuite) TestStockNeverGoesNegative() {
	product := s.createProduct(1)
	msg := s.confirmedMessage(product.ID, 4)

	s.Require().NoError(s.service.HandlePaymentConfirmed(msg))
	s.Equal(0, s.stock(product.ID))
}

func (s *SideEffectServiceSuite) TestUnknownProductIsSkipped() {
	msg := s.confirmedMessage("prod_removed", 1)

	s.Require().NoError(s.service.HandlePaymentConfirmed(msg))
	s.Len(s.GetNotifier().Sent(), 1)
}

func (s *SideEffectServiceSuite) TestMalformedPayload() {
	err := s.service.HandlePaymentConfirmed(message.NewMessage("msg_bad", []byte("{not json")))
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
	s.Empty(s.GetNotifier().Sent())
}
