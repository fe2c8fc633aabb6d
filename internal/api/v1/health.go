package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
)

type HealthHandler struct {
	config *config.Configuration
	logger *logger.Logger
}

func NewHealthHandler(config *config.Configuration, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{config: config, logger: logger}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status: "ok",
		Mode:   string(h.config.Deployment.Mode),
	})
}
