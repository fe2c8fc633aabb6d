package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/service"
)

// InvoiceHandler handles invoice related cron jobs
type InvoiceHandler struct {
	invoiceService service.InvoiceService
	logger         *logger.Logger
}

func NewInvoiceHandler(invoiceService service.InvoiceService, logger *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// MarkOverdueInvoices persists the overdue status for every invoice whose
// due date has passed
func (h *InvoiceHandler) MarkOverdueInvoices(c *gin.Context) {
	h.logger.Infow("starting mark overdue invoices cron job", "time", time.Now().UTC().Format(time.RFC3339))

	resp, err := h.invoiceService.MarkOverdueInvoices(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to mark overdue invoices", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed mark overdue invoices cron job",
		"checked", resp.Checked,
		"marked", resp.MarkedCount,
	)
	c.JSON(http.StatusOK, resp)
}
