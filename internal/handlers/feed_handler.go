package handlers

import (
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FeedHandler struct {
	orchestrator *services.Orchestrator
	logger       *logger.Logger
	validator    *validator.Validate
}

func NewFeedHandler(orchestrator *services.Orchestrator, logger *logger.Logger) *FeedHandler {
	return &FeedHandler{
		orchestrator: orchestrator,
		logger:       logger,
		validator:    validator.New(),
	}
}

// MatchFeeds maps newspaper names to feed URLs from the catalog.
func (h *FeedHandler) MatchFeeds(c *gin.Context) {
	var req models.MatchFeedsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid Request Format", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondBadRequest(c, "Invalid Newspapers", err)
		return
	}

	feeds := h.orchestrator.MatchFeeds(req.Newspapers)

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Feeds matched",
		Data: models.MatchFeedsResponse{
			Feeds: feeds,
			Count: len(feeds),
		},
	})
}

func (h *FeedHandler) FetchFeeds(c *gin.Context) {
	var req models.FetchFeedsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid Request Format", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondBadRequest(c, "Invalid Feed Request", err)
		return
	}

	articles, err := h.orchestrator.FetchFeeds(c.Request.Context(), req.FeedURLs, req.Date, req.TimeRange)
	if err != nil {
		respondError(c, "Feed fetch failed", err)
		return
	}

	h.logger.WithRequestID(requestID(c)).WithFields(logger.Fields{
		"feeds":    len(req.FeedURLs),
		"articles": len(articles),
	}).Info("Feeds fetched")

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Articles fetched",
		Data: models.FetchFeedsResponse{
			Articles: articles,
			Count:    len(articles),
		},
	})
}
