package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/api/dto"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/service"
)

// maxWebhookBody caps the size of a gateway payload
const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	reconciler service.ReconcilerService
	logger     *logger.Logger
}

func NewWebhookHandler(reconciler service.ReconcilerService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// HandleStripeWebhook verifies the Stripe-Signature header over the raw body
// and settles the payment. Authentic events that cannot be applied are
// acknowledged with 200 so Stripe stops retrying them.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Errorw("failed to read request body", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Failed to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.logger.Warnw("missing Stripe-Signature header")
		c.Error(ierr.NewError("missing stripe signature").
			WithHint("Missing Stripe-Signature header").
			Mark(ierr.ErrUnauthorized))
		return
	}

	resp, err := h.reconciler.HandleStripeWebhook(c.Request.Context(), body, signature)
	if err != nil {
		h.logger.Errorw("failed to handle stripe webhook", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleZarinpalCallback receives the payer redirect. Authority and Status
// arrive as query parameters on GET or form fields on POST.
func (h *WebhookHandler) HandleZarinpalCallback(c *gin.Context) {
	var req dto.ZarinpalVerifyRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid callback parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.reconciler.VerifyZarinpal(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorw("failed to verify zarinpal payment",
			"invoice_id", req.InvoiceID,
			"authority", req.Authority,
			"error", err,
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
