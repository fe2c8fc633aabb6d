package testutil

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/currency"
	"github.com/ledgerline/ledgerline/internal/httpclient"
	"github.com/ledgerline/ledgerline/internal/integration/stripe"
	"github.com/ledgerline/ledgerline/internal/integration/zarinpal"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/repository/memory"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
	"github.com/stretchr/testify/suite"
)

const (
	// TestWebhookSecret signs stripe events in tests
	TestWebhookSecret = "whsec_ledgerline_test"
	// TestZarinpalBaseURL is the prefix every mocked zarinpal route ends with
	TestZarinpalBaseURL = "https://zarinpal.test"
)

// TestRates are the static rates into USD used by every suite
var TestRates = map[string]string{
	"EUR": "1.10",
	"GBP": "1.25",
	"IRR": "0.000024",
}

// Stores holds the in-memory repositories for testing
type Stores struct {
	InvoiceRepo   *memory.InvoiceStore
	PaymentRepo   *memory.PaymentStore
	PromotionRepo *memory.PromotionStore
	ProductRepo   *memory.ProductStore
	ClientRepo    *memory.ClientStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	stores     Stores
	pubsub     *InMemoryPubSub
	httpClient *MockHTTPClient
	notifier   *RecordingNotifier
	logger     *logger.Logger
	config     *config.Configuration
	sentry     *sentry.Service
	converter  *money.Converter
	now        time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Gateways.Stripe.Enabled = true
	cfg.Gateways.Stripe.SecretKey = "sk_test_ledgerline"
	cfg.Gateways.Stripe.WebhookSecret = TestWebhookSecret
	cfg.Gateways.Zarinpal.Enabled = true
	cfg.Gateways.Zarinpal.MerchantID = "00000000-0000-0000-0000-000000000001"
	cfg.Gateways.Zarinpal.BaseURL = TestZarinpalBaseURL
	cfg.Gateways.Zarinpal.CallbackURL = "https://shop.test/pay/callback"
	cfg.Currency.Rates = TestRates
	s.config = cfg

	s.logger = logger.NewNopLogger()
	s.sentry = sentry.NewSentryService(cfg, s.logger)

	provider, err := currency.NewStaticProvider(cfg.Billing.BaseCurrency, TestRates)
	if err != nil {
		s.T().Fatalf("failed to create rate provider: %v", err)
	}
	s.converter = money.NewConverter(cfg.Billing.BaseCurrency, provider)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.pubsub = NewInMemoryPubSub()
	s.httpClient = NewMockHTTPClient()
	s.notifier = NewRecordingNotifier(true)
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		InvoiceRepo:   memory.NewInvoiceStore(),
		PaymentRepo:   memory.NewPaymentStore(),
		PromotionRepo: memory.NewPromotionStore(),
		ProductRepo:   memory.NewProductStore(),
		ClientRepo:    memory.NewClientStore(),
	}
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.InvoiceRepo.Clear()
	s.stores.PaymentRepo.Clear()
	s.stores.PromotionRepo.Clear()
	s.stores.ProductRepo.Clear()
	s.stores.ClientRepo.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the recording outbox transport
func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

// GetHTTPClient returns the mock HTTP client behind the zarinpal client
func (s *BaseServiceTestSuite) GetHTTPClient() *MockHTTPClient {
	return s.httpClient
}

// GetNotifier returns the recording receipt notifier
func (s *BaseServiceTestSuite) GetNotifier() *RecordingNotifier {
	return s.notifier
}

// GetStripeClient returns a stripe client that verifies TestWebhookSecret
func (s *BaseServiceTestSuite) GetStripeClient() *stripe.Client {
	return stripe.NewClient(s.config, s.logger)
}

// GetZarinpalClient returns a zarinpal client talking to the mock HTTP client
func (s *BaseServiceTestSuite) GetZarinpalClient() *zarinpal.Client {
	var hc httpclient.Client = s.httpClient
	return zarinpal.NewClientWithHTTP(s.config.Gateways.Zarinpal, hc, s.logger)
}

// GetConverter returns the converter into the base currency
func (s *BaseServiceTestSuite) GetConverter() *money.Converter {
	return s.converter
}

// GetSentry returns a disabled sentry service
func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
