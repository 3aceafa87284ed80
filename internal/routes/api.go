package routes

import (
	"newsdigest-pipeline/internal/handlers"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Pipeline  *handlers.PipelineHandler
	Stream    *handlers.StreamHandler
	Feed      *handlers.FeedHandler
	Run       *handlers.RunHandler
	Reference *handlers.ReferenceHandler
	Health    *handlers.HealthHandler
	Metrics   *handlers.MetricsHandler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service": "newsdigest-pipeline",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		articles := v1.Group("/articles")
		{
			articles.POST("/enrich", h.Pipeline.Enrich)
			articles.POST("/enrich/stream", h.Pipeline.StreamEnrich)
			articles.POST("/summarize", h.Pipeline.Summarize)
			articles.POST("/categorize", h.Pipeline.Categorize)
			articles.POST("/summarize/stream", h.Pipeline.StreamSummarize)
		}

		v1.GET("/ws/pipeline", h.Stream.Pipeline)

		rss := v1.Group("/rss")
		{
			rss.POST("/match", h.Feed.MatchFeeds)
			rss.POST("/fetch", h.Feed.FetchFeeds)
		}

		runs := v1.Group("/runs")
		{
			runs.GET("/active", h.Run.GetActiveRuns)
			runs.GET("/:id/status", h.Run.GetRunStatus)
			runs.DELETE("/:id", h.Run.CancelRun)
		}

		reference := v1.Group("/reference")
		{
			reference.GET("/status", h.Reference.GetStatus)
			reference.POST("/refresh", h.Reference.Refresh)
		}

		health := v1.Group("/health")
		{
			health.GET("", h.Health.HealthCheck)
			health.GET("/live", h.Health.LivenessProbe)
			health.GET("/ready", h.Health.ReadinessProbe)
		}

		metrics := v1.Group("/metrics")
		{
			metrics.GET("", h.Metrics.GetMetrics)
			metrics.GET("/pipeline", h.Metrics.GetPipelineStats)
			metrics.GET("/system", h.Metrics.GetSystemResources)
		}
	}
}
