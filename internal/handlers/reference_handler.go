package handlers

import (
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"

	"github.com/gin-gonic/gin"
)

type ReferenceHandler struct {
	orchestrator *services.Orchestrator
	logger       *logger.Logger
}

func NewReferenceHandler(orchestrator *services.Orchestrator, logger *logger.Logger) *ReferenceHandler {
	return &ReferenceHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *ReferenceHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Reference cache status retrieved",
		Data:    h.orchestrator.ReferenceStatus(),
	})
}

// Refresh forces a reference refresh regardless of the cache age.
func (h *ReferenceHandler) Refresh(c *gin.Context) {
	status, err := h.orchestrator.RefreshReference(c.Request.Context())
	if err != nil {
		h.logger.WithRequestID(requestID(c)).WithError(err).Warn("Manual reference refresh failed")
		respondError(c, "Reference refresh failed", err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Reference cache refreshed",
		Data:    status,
	})
}
