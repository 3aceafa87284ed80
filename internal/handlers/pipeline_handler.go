package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const streamBuffer = 64

type PipelineHandler struct {
	orchestrator      *services.Orchestrator
	logger            *logger.Logger
	validator         *validator.Validate
	defaultCredential string
}

func NewPipelineHandler(orchestrator *services.Orchestrator, defaultCredential string, logger *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		orchestrator:      orchestrator,
		logger:            logger,
		validator:         validator.New(),
		defaultCredential: defaultCredential,
	}
}

func (h *PipelineHandler) bindEnrich(c *gin.Context) (*models.EnrichRequest, bool) {
	var req models.EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithRequestID(requestID(c)).WithError(err).Warn("Failed to bind enrich request")
		respondBadRequest(c, "Invalid Request Format", err)
		return nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		respondBadRequest(c, "Invalid Articles", err)
		return nil, false
	}
	return &req, true
}

func (h *PipelineHandler) bindSummarize(c *gin.Context) (*models.SummarizeRequest, bool) {
	var req models.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithRequestID(requestID(c)).WithError(err).Warn("Failed to bind summarize request")
		respondBadRequest(c, "Invalid Request Format", err)
		return nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		respondBadRequest(c, "Invalid URLs", err)
		return nil, false
	}
	return &req, true
}

func (h *PipelineHandler) Enrich(c *gin.Context) {
	startTime := time.Now()
	req, ok := h.bindEnrich(c)
	if !ok {
		return
	}

	response, err := h.orchestrator.Enrich(c.Request.Context(), req.Articles, requestCredential(c, h.defaultCredential))
	if err != nil {
		respondError(c, "Enrichment failed", err)
		return
	}

	h.logger.WithRequestID(requestID(c)).WithFields(logger.Fields{
		"run_id":   response.RunID,
		"articles": len(response.Articles),
		"groups":   response.Groups,
		"matched":  response.Matched,
		"duration": time.Since(startTime).String(),
	}).Info("Articles enriched")

	c.Header("X-Run-ID", response.RunID)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Articles enriched",
		Data:    response,
	})
}

func (h *PipelineHandler) Summarize(c *gin.Context) {
	startTime := time.Now()
	req, ok := h.bindSummarize(c)
	if !ok {
		return
	}

	response, err := h.orchestrator.Summarize(c.Request.Context(), req.URLs, req.MetadataByURL(), requestCredential(c, h.defaultCredential))
	if err != nil {
		respondError(c, "Summarization failed", err)
		return
	}

	h.logger.WithRequestID(requestID(c)).WithFields(logger.Fields{
		"run_id":    response.RunID,
		"succeeded": response.Succeeded,
		"failed":    response.Failed,
		"duration":  time.Since(startTime).String(),
	}).Info("Articles summarized")

	c.Header("X-Run-ID", response.RunID)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Articles summarized",
		Data:    response,
	})
}

func (h *PipelineHandler) Categorize(c *gin.Context) {
	startTime := time.Now()
	var req models.CategorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithRequestID(requestID(c)).WithError(err).Warn("Failed to bind categorize request")
		respondBadRequest(c, "Invalid Request Format", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondBadRequest(c, "Invalid Articles", err)
		return
	}

	response, err := h.orchestrator.Categorize(c.Request.Context(), req.Articles, requestCredential(c, h.defaultCredential))
	if err != nil {
		respondError(c, "Categorization failed", err)
		return
	}

	h.logger.WithRequestID(requestID(c)).WithFields(logger.Fields{
		"run_id":    response.RunID,
		"articles":  len(response.Articles),
		"defaulted": response.Defaulted,
		"duration":  time.Since(startTime).String(),
	}).Info("Articles categorized")

	c.Header("X-Run-ID", response.RunID)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Articles categorized",
		Data:    response,
	})
}

// StreamEnrich answers with server-sent events, one JSON event per data line.
func (h *PipelineHandler) StreamEnrich(c *gin.Context) {
	req, ok := h.bindEnrich(c)
	if !ok {
		return
	}
	credential := requestCredential(c, h.defaultCredential)

	h.streamEvents(c, func(ctx context.Context, emit models.EmitFunc) {
		h.orchestrator.StreamEnrich(ctx, req.Articles, credential, emit)
	})
}

func (h *PipelineHandler) StreamSummarize(c *gin.Context) {
	req, ok := h.bindSummarize(c)
	if !ok {
		return
	}
	credential := requestCredential(c, h.defaultCredential)
	metadata := req.MetadataByURL()

	h.streamEvents(c, func(ctx context.Context, emit models.EmitFunc) {
		h.orchestrator.StreamSummarize(ctx, req.URLs, metadata, credential, emit)
	})
}

// streamEvents runs the pipeline in its own goroutine and relays its events
// until the terminal one. A client that goes away cancels the run.
func (h *PipelineHandler) streamEvents(c *gin.Context, run func(ctx context.Context, emit models.EmitFunc)) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan models.StreamEvent, streamBuffer)
	go func() {
		defer close(events)
		run(ctx, func(event models.StreamEvent) {
			select {
			case events <- event:
			case <-ctx.Done():
			}
		})
	}()

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.WithRequestID(requestID(c)).WithError(err).Error("Failed to encode stream event")
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		return !event.IsTerminal()
	})
}
