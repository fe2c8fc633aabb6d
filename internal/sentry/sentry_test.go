package sentry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Sentry.Enabled = false
	svc := NewSentryService(cfg, logger.NewNopLogger())

	ctx := context.Background()
	span, spanCtx := svc.StartDBSpan(ctx, "db.postgres", "invoice.get", nil)
	assert.Nil(t, span)
	assert.Equal(t, ctx, spanCtx)

	span, _ = svc.StartGatewaySpan(ctx, "stripe", "checkout")
	assert.Nil(t, span)

	span, _ = svc.MonitorOutboxLag(ctx, "payment.confirmed", time.Now(), nil)
	assert.Nil(t, span)

	assert.NotPanics(t, func() {
		svc.CaptureException(errors.New("boom"))
		svc.CaptureExceptionWithTags(errors.New("boom"), map[string]string{"invoice_id": "inv_1"})
		FinishSpan(nil)
	})
	assert.True(t, svc.Flush(1))
}

func TestNilServiceIsDisabled(t *testing.T) {
	var svc *Service
	assert.False(t, svc.IsEnabled())
	assert.NotPanics(t, func() { svc.CaptureException(errors.New("boom")) })
}
