package handlers

import (
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

type MetricsHandler struct {
	orchestrator *services.Orchestrator
	logger       *logger.Logger
}

func NewMetricsHandler(orchestrator *services.Orchestrator, logger *logger.Logger) *MetricsHandler {
	return &MetricsHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	startTime := time.Now()

	response := models.MetricsResponse{
		Service:         "newsdigest-pipeline",
		Timestamp:       time.Now(),
		Pipeline:        h.orchestrator.GetStats(),
		ActiveRuns:      h.orchestrator.GetActiveRunsCount(),
		SystemResources: h.getSystemResources(),
	}

	h.logger.WithFields(logger.Fields{
		"duration": time.Since(startTime).String(),
	}).Debug("Metrics collected")

	c.JSON(http.StatusOK, response)
}

func (h *MetricsHandler) GetPipelineStats(c *gin.Context) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Pipeline stats retrieved",
		Data:    h.orchestrator.GetStats(),
	})
}

func (h *MetricsHandler) GetSystemResources(c *gin.Context) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "System resources retrieved",
		Data:    h.getSystemResources(),
	})
}

func (h *MetricsHandler) getSystemResources() models.SystemResourcesInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	allocMB := float64(memStats.Alloc) / 1024 / 1024
	sysMB := float64(memStats.Sys) / 1024 / 1024

	usage := 0.0
	if sysMB > 0 {
		usage = (allocMB / sysMB) * 100
	}

	return models.SystemResourcesInfo{
		HeapAllocMB:    allocMB,
		MemoryUsage:    usage,
		GoroutineCount: runtime.NumGoroutine(),
	}
}
