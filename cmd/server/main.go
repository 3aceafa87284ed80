package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/handlers"
	"newsdigest-pipeline/internal/middleware"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/routes"
	"newsdigest-pipeline/internal/services"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "newsdigest-pipeline"
	serviceVersion = "1.0.0"
)

func main() {
	config, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(config.Log)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	appLogger.WithFields(logger.Fields{
		"version":     serviceVersion,
		"environment": config.Environment,
		"port":        config.HTTP.Port,
		"log_level":   config.Log.Level,
	}).Info("Starting news digest pipeline")

	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		appLogger.Info("Running in production mode")
	} else {
		gin.SetMode(gin.DebugMode)
		appLogger.Info("Running in development mode")
	}

	serviceContainer, err := initializeServices(config, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize services")
	}

	serviceContainer.warmUp(config, appLogger)
	if serviceContainer.scheduler != nil {
		serviceContainer.scheduler.Start()
	}

	router := gin.New()

	setupMiddleware(router, config, appLogger)

	routes.SetupRoutes(router, initializeHandlers(serviceContainer.orchestrator, config, appLogger))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  config.HTTP.ReadTimeout,
		WriteTimeout: config.HTTP.WriteTimeout,
		IdleTimeout:  config.HTTP.IdleTimeout,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"addr":          server.Addr,
			"read_timeout":  config.HTTP.ReadTimeout.String(),
			"write_timeout": config.HTTP.WriteTimeout.String(),
		}).Info("HTTP server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-quit
	appLogger.WithFields(logger.Fields{"signal": sig.String()}).Info("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("HTTP server forced to shutdown")
	} else {
		appLogger.Info("HTTP server shutdown completed")
	}

	if err := serviceContainer.close(); err != nil {
		appLogger.WithError(err).Error("Error during service cleanup")
	} else {
		appLogger.Info("Service cleanup completed")
	}

	appLogger.WithFields(logger.Fields{
		"version": serviceVersion,
	}).Info("News digest pipeline shutdown complete")
}

type ServiceContainer struct {
	completer    services.Completer
	publisher    services.ProgressPublisher
	cache        *services.ReferenceCache
	scheduler    *services.ReferenceScheduler
	orchestrator *services.Orchestrator
}

func initializeServices(config *config.Config, log *logger.Logger) (*ServiceContainer, error) {
	log.Info("Initializing services...")

	completer, err := services.NewCompleter(config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion service: %w", err)
	}

	publisher := services.NewProgressPublisher(config.Redis, log)

	fetcher, err := services.NewCollyFetcher(config.Scraper, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create page fetcher: %w", err)
	}

	reader := services.NewGofeedReader(config.Scraper)
	cache := services.NewReferenceCache(config.Feeds.Reference, reader, config.Reference, log)

	var scheduler *services.ReferenceScheduler
	if config.Reference.RefreshSchedule != "" {
		scheduler, err = services.NewReferenceScheduler(cache, config.Reference.RefreshSchedule, log)
		if err != nil {
			return nil, err
		}
	}

	orchestrator := services.NewOrchestrator(
		services.NewClusterEngine(completer, config.Pipeline, log),
		services.NewCoverageMatcher(cache, completer, config.Pipeline, log),
		services.NewSummarizer(fetcher, completer, config.Pipeline, config.Feeds.Newspapers, log),
		services.NewCategorizer(completer, config.Pipeline, log),
		services.NewFeedService(reader, &config.Feeds, log),
		cache,
		completer,
		publisher,
		config,
		log,
	)

	log.Info("All services initialized successfully")

	return &ServiceContainer{
		completer:    completer,
		publisher:    publisher,
		cache:        cache,
		scheduler:    scheduler,
		orchestrator: orchestrator,
	}, nil
}

// warmUp fills the reference cache in the background so the first enrich
// request does not wait on it.
func (sc *ServiceContainer) warmUp(config *config.Config, log *logger.Logger) {
	if !config.Reference.WarmOnStart {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := sc.cache.EnsureFresh(ctx); err != nil {
			log.WithError(err).Warn("Reference cache warm-up failed")
		}
	}()
}

func (sc *ServiceContainer) close() error {
	var errs []error

	if sc.scheduler != nil {
		sc.scheduler.Stop()
	}

	if err := sc.orchestrator.Close(); err != nil {
		errs = append(errs, fmt.Errorf("orchestrator close error: %w", err))
	}

	if closer, ok := sc.completer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("completion service close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

func initializeHandlers(orchestrator *services.Orchestrator, config *config.Config, log *logger.Logger) routes.Handlers {
	log.Info("Initializing HTTP handlers")

	credential := config.Gemini.APIKey
	if config.Completion.Provider == "openai" {
		credential = config.OpenAI.APIKey
	}

	return routes.Handlers{
		Pipeline:  handlers.NewPipelineHandler(orchestrator, credential, log),
		Stream:    handlers.NewStreamHandler(orchestrator, config.CORS.AllowedOrigins, credential, log),
		Feed:      handlers.NewFeedHandler(orchestrator, log),
		Run:       handlers.NewRunHandler(orchestrator, log),
		Reference: handlers.NewReferenceHandler(orchestrator, log),
		Health:    handlers.NewHealthHandler(orchestrator, log),
		Metrics:   handlers.NewMetricsHandler(orchestrator, log),
	}
}

func setupMiddleware(router *gin.Engine, config *config.Config, log *logger.Logger) {
	log.Info("Setting up middleware stack")

	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(config.CORS.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware(log))

	log.Info("Middleware stack configured")
}
