package handlers

import (
	"fmt"
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"

	"github.com/gin-gonic/gin"
)

type RunHandler struct {
	orchestrator *services.Orchestrator
	logger       *logger.Logger
}

func NewRunHandler(orchestrator *services.Orchestrator, logger *logger.Logger) *RunHandler {
	return &RunHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *RunHandler) GetRunStatus(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Message: "Run ID is required",
		})
		return
	}

	status, err := h.orchestrator.GetRunStatus(runID)
	if err != nil {
		respondError(c, "Run not found", err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Run status retrieved",
		Data:    status,
	})
}

func (h *RunHandler) CancelRun(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Message: "Run ID is required",
		})
		return
	}

	if err := h.orchestrator.CancelRun(runID); err != nil {
		respondError(c, "Failed to cancel run", err)
		return
	}

	h.logger.WithRequestID(requestID(c)).WithField("run_id", runID).Info("Run cancelled")

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("Run %s cancellation requested", runID),
	})
}

func (h *RunHandler) GetActiveRuns(c *gin.Context) {
	runs := h.orchestrator.ListActiveRuns()

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Active runs retrieved",
		Data: gin.H{
			"active_runs": len(runs),
			"runs":        runs,
		},
	})
}
