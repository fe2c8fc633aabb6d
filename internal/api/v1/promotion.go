package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/api/dto"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/service"
	"github.com/ledgerline/ledgerline/internal/types"
)

type PromotionHandler struct {
	service service.PromotionService
	log     *logger.Logger
}

func NewPromotionHandler(service service.PromotionService, log *logger.Logger) *PromotionHandler {
	return &PromotionHandler{service: service, log: log}
}

func (h *PromotionHandler) CreatePromotion(c *gin.Context) {
	var req dto.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreatePromotion(c.Request.Context(), req)
	if err != nil {
		h.log.Errorw("failed to create promotion", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *PromotionHandler) GetPromotion(c *gin.Context) {
	resp, err := h.service.GetPromotion(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PromotionHandler) ListPromotions(c *gin.Context) {
	filter := types.NewPromotionFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListPromotions(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// EvaluatePromotion previews the discount a code gives a cart without
// redeeming it
func (h *PromotionHandler) EvaluatePromotion(c *gin.Context) {
	var req dto.EvaluatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.EvaluatePromotion(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
