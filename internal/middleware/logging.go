package middleware

import (
	"newsdigest-pipeline/internal/pkg/logger"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDKey = "request_id"

func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set(RequestIDKey, requestID)

		startTime := time.Now()

		log.WithRequestID(requestID).WithFields(logger.Fields{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"query":          c.Request.URL.RawQuery,
			"content_length": c.Request.ContentLength,
		}).Debug("HTTP Request")

		c.Next()

		log.LogRequest(requestID, c.Request.Method, c.Request.URL.Path, c.Request.UserAgent(), c.ClientIP(), time.Since(startTime), c.Writer.Status())

		if len(c.Errors) > 0 {
			log.WithRequestID(requestID).WithFields(logger.Fields{
				"errors": c.Errors.String(),
			}).Error("Request errors")
		}
	})
}
