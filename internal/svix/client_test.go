package svix

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClientDropsMessages(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Notifications.Svix.Enabled = false

	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	appID, err := c.EnsureApplication(context.Background())
	require.NoError(t, err)
	assert.Empty(t, appID)
	assert.NoError(t, c.SendMessage(context.Background(), "payment.receipt", "pay_1", map[string]any{"amount": "10"}))
}

func TestToPayloadMap(t *testing.T) {
	type receipt struct {
		InvoiceNumber string `json:"invoice_number"`
	}

	m, err := toPayloadMap(receipt{InvoiceNumber: "INV-1"})
	require.NoError(t, err)
	assert.Equal(t, "INV-1", m["invoice_number"])

	m, err = toPayloadMap(json.RawMessage(`{"amount":"5"}`))
	require.NoError(t, err)
	assert.Equal(t, "5", m["amount"])

	_, err = toPayloadMap([]byte("not json"))
	assert.Error(t, err)
}
