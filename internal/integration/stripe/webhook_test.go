package stripe

import (
	"testing"
	"time"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func newTestClient() *Client {
	return &Client{webhookSecret: testSecret, logger: logger.NewNopLogger()}
}

func sign(payload string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

const succeededEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "payment_intent.succeeded",
  "data": {"object": {
    "id": "pi_123",
    "object": "payment_intent",
    "amount": 109000,
    "amount_received": 109000,
    "currency": "usd",
    "payment_method_types": ["card"],
    "metadata": {"invoice_id": "inv_1"}
  }}
}`

func TestParseEventSucceeded(t *testing.T) {
	notice, err := newTestClient().ParseEvent([]byte(succeededEvent), sign(succeededEvent))
	require.NoError(t, err)

	assert.Equal(t, NoticeSucceeded, notice.Kind)
	assert.Equal(t, "inv_1", notice.InvoiceID)
	assert.Equal(t, "pi_123", notice.GatewayRef)
	assert.Equal(t, types.CurrencyUSD, notice.Currency)
	assert.True(t, decimal.NewFromInt(1090).Equal(notice.Amount))
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	_, err := newTestClient().ParseEvent([]byte(succeededEvent), "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.True(t, ierr.IsUnauthorized(err))

	// signed with another secret
	other := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(succeededEvent),
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})
	_, err = newTestClient().ParseEvent([]byte(succeededEvent), other.Header)
	assert.True(t, ierr.IsUnauthorized(err))
}

func TestParseEventMalformedBody(t *testing.T) {
	body := `{"id": "evt_2", "type": `
	_, err := newTestClient().ParseEvent([]byte(body), sign(body))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.False(t, ierr.IsUnauthorized(err))
}

func TestParseEventCheckoutUsesPaymentIntentRef(t *testing.T) {
	body := `{
  "id": "evt_3",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "amount_total": 5000,
    "currency": "eur",
    "payment_status": "paid",
    "payment_intent": "pi_456",
    "client_reference_id": "inv_9",
    "metadata": {}
  }}
}`
	notice, err := newTestClient().ParseEvent([]byte(body), sign(body))
	require.NoError(t, err)

	assert.Equal(t, NoticeSucceeded, notice.Kind)
	assert.Equal(t, "inv_9", notice.InvoiceID)
	assert.Equal(t, "pi_456", notice.GatewayRef)
	assert.Equal(t, types.CurrencyEUR, notice.Currency)
	assert.True(t, decimal.NewFromInt(50).Equal(notice.Amount))
}

func TestParseEventFailedAndIgnored(t *testing.T) {
	failed := `{
  "id": "evt_4",
  "object": "event",
  "type": "payment_intent.payment_failed",
  "data": {"object": {
    "id": "pi_789",
    "object": "payment_intent",
    "amount": 2000,
    "currency": "gbp",
    "metadata": {"invoice_id": "inv_2"},
    "last_payment_error": {"message": "Your card was declined."}
  }}
}`
	notice, err := newTestClient().ParseEvent([]byte(failed), sign(failed))
	require.NoError(t, err)
	assert.Equal(t, NoticeFailed, notice.Kind)
	assert.Equal(t, "Your card was declined.", notice.FailureReason)

	other := `{"id": "evt_5", "object": "event", "type": "customer.created", "data": {"object": {"id": "cus_1"}}}`
	notice, err = newTestClient().ParseEvent([]byte(other), sign(other))
	require.NoError(t, err)
	assert.Equal(t, NoticeIgnored, notice.Kind)
	assert.NotEmpty(t, notice.Reason)

	noInvoice := `{"id": "evt_6", "object": "event", "type": "payment_intent.succeeded",
  "data": {"object": {"id": "pi_1", "object": "payment_intent", "amount": 100, "currency": "usd", "metadata": {}}}}`
	notice, err = newTestClient().ParseEvent([]byte(noInvoice), sign(noInvoice))
	require.NoError(t, err)
	assert.Equal(t, NoticeIgnored, notice.Kind)
}
