package config

import (
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigReadsYAMLAndEnv(t *testing.T) {
	t.Setenv("LEDGERLINE_BILLING_DEFAULT_TAX_RATE", "7.5")
	t.Setenv("LEDGERLINE_GATEWAYS_ZARINPAL_TIMEOUT", "3s")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, types.CurrencyUSD, cfg.Billing.BaseCurrency)
	assert.True(t, decimal.RequireFromString("7.5").Equal(cfg.Billing.DefaultTaxRate))
	assert.Equal(t, 3*time.Second, cfg.Gateways.Zarinpal.Timeout)
	assert.Equal(t, "1.08", cfg.Currency.Rates["eur"])
}

func TestValidateMissingSecrets(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateways.Stripe.Enabled = true
	cfg.Gateways.Zarinpal.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateways.stripe.secret_key")
	assert.Contains(t, err.Error(), "gateways.stripe.webhook_secret")
	assert.Contains(t, err.Error(), "gateways.zarinpal.merchant_id")

	cfg.Gateways.Stripe.SecretKey = "sk_test"
	cfg.Gateways.Stripe.WebhookSecret = "whsec_test"
	cfg.Gateways.Zarinpal.MerchantID = "merchant"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Billing.BaseCurrency = "XYZ"
	assert.Error(t, cfg.Validate())

	cfg = GetDefaultConfig()
	cfg.Billing.DefaultTaxRate = decimal.NewFromInt(101)
	assert.Error(t, cfg.Validate())

	cfg = GetDefaultConfig()
	cfg.Currency.Rates = map[string]string{"EUR": "-2"}
	assert.Error(t, cfg.Validate())
}
