package handlers

import (
	"context"
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"
	"time"

	"github.com/gin-gonic/gin"
)

const maxActiveRuns = 100

type HealthHandler struct {
	orchestrator *services.Orchestrator
	logger       *logger.Logger
	startTime    time.Time
}

func NewHealthHandler(orchestrator *services.Orchestrator, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		orchestrator: orchestrator,
		logger:       logger,
		startTime:    time.Now(),
	}
}

func (healthHandler *HealthHandler) HealthCheck(c *gin.Context) {
	startTime := time.Now()

	healthHandler.logger.Debug("Health Check requested")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	dependencies, err := healthHandler.orchestrator.HealthCheck(ctx)

	status := "healthy"
	statusCode := http.StatusOK
	if err != nil {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		healthHandler.logger.WithError(err).Error("Health Check failed")
	} else {
		healthHandler.logger.WithFields(logger.Fields{
			"duration": time.Since(startTime).String(),
		}).Debug("Health Check succeeded")
	}

	c.JSON(statusCode, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  dependencies,
		Uptime:    time.Since(healthHandler.startTime).Seconds(),
	})
}

func (healthHandler *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(healthHandler.startTime).Seconds(),
	})
}

func (healthHandler *HealthHandler) ReadinessProbe(c *gin.Context) {
	activeRuns := healthHandler.orchestrator.GetActiveRunsCount()
	ready := activeRuns < maxActiveRuns

	status := "ready"
	statusCode := http.StatusOK

	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":      status,
		"ready":       ready,
		"active_runs": activeRuns,
		"timestamp":   time.Now(),
	})
}
