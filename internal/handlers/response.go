package handlers

import (
	"net/http"
	"newsdigest-pipeline/internal/models"
	"strings"

	"github.com/gin-gonic/gin"
)

const CredentialHeader = "X-Gemini-API-Key"

// requestCredential prefers the caller's key over the server default.
func requestCredential(c *gin.Context, fallback string) string {
	if key := strings.TrimSpace(c.GetHeader(CredentialHeader)); key != "" {
		return key
	}
	return fallback
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func respondError(c *gin.Context, message string, err error) {
	appErr := models.AsAppError(err)
	if appErr.RequestID == "" {
		appErr = appErr.WithRequestID(requestID(c))
	}
	if appErr.RunID != "" {
		c.Header("X-Run-ID", appErr.RunID)
	}

	statusCode := appErr.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Message: message,
		Error:   appErr.Error(),
		Data:    appErr,
	})
}

func respondBadRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
