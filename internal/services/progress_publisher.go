package services

import (
	"context"
	"encoding/json"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressPublisher mirrors run progress to an external store so other
// processes can follow a run. Publishing never affects a run's result.
type ProgressPublisher interface {
	PublishEvent(ctx context.Context, event models.StreamEvent) error
	StoreRunState(ctx context.Context, state models.RunStatusResponse) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type RedisProgressPublisher struct {
	client *redis.Client
	config config.RedisConfig
	logger *logger.Logger
}

func NewRedisProgressPublisher(cfg config.RedisConfig, log *logger.Logger) (*RedisProgressPublisher, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	configureRedisOptions(opt, cfg)

	publisher := newRedisProgressPublisher(redis.NewClient(opt), cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := publisher.client.Ping(ctx).Err(); err != nil {
		_ = publisher.client.Close()
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.WithFields(logger.Fields{
		"pool_size":      cfg.PoolSize,
		"stream_max_len": cfg.StreamMaxLen,
		"state_ttl":      cfg.StateTTL.String(),
	}).Info("Redis progress publisher initialized")

	return publisher, nil
}

func newRedisProgressPublisher(client *redis.Client, cfg config.RedisConfig, log *logger.Logger) *RedisProgressPublisher {
	return &RedisProgressPublisher{client: client, config: cfg, logger: log}
}

// NewProgressPublisher returns the Redis mirror when it is enabled and
// reachable, and a no-op publisher otherwise.
func NewProgressPublisher(cfg config.RedisConfig, log *logger.Logger) ProgressPublisher {
	if !cfg.Enabled {
		return NoopProgressPublisher{}
	}
	publisher, err := NewRedisProgressPublisher(cfg, log)
	if err != nil {
		log.WithError(err).Warn("Redis progress publisher unavailable, continuing without it")
		return NoopProgressPublisher{}
	}
	return publisher
}

func configureRedisOptions(opt *redis.Options, cfg config.RedisConfig) {
	opt.PoolSize = cfg.PoolSize
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	opt.DialTimeout = cfg.DialTimeout
}

func runEventsStream(runID string) string {
	return fmt.Sprintf("run:%s:events", runID)
}

func runStateKey(runID string) string {
	return fmt.Sprintf("run:%s:state", runID)
}

func (publisher *RedisProgressPublisher) PublishEvent(ctx context.Context, event models.StreamEvent) error {
	streamName := runEventsStream(event.RunID)

	values := map[string]interface{}{
		"step":      event.Step,
		"status":    string(event.Status),
		"message":   event.Message,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	if event.Data != nil {
		dataJSON, err := json.Marshal(event.Data)
		if err == nil {
			values["data"] = string(dataJSON)
		} else {
			publisher.logger.WithError(err).Warn("Failed to marshal stream event data")
		}
	}
	if event.Articles != nil {
		values["articles"] = len(event.Articles)
	}

	_, err := publisher.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: values,
		MaxLen: publisher.config.StreamMaxLen,
		Approx: true,
	}).Result()
	if err != nil {
		publisher.logger.LogService("redis", "publish_event", 0, map[string]interface{}{
			"stream_name": streamName,
			"step":        event.Step,
		}, err)
		return models.NewExternalError("REDIS_PUBLISH_FAILED", "Failed to publish run event").WithCause(err)
	}
	return nil
}

func (publisher *RedisProgressPublisher) StoreRunState(ctx context.Context, state models.RunStatusResponse) error {
	key := runStateKey(state.RunID)
	startTime := time.Now()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize run state").WithCause(err)
	}

	err = publisher.client.Set(ctx, key, stateJSON, publisher.config.StateTTL).Err()
	publisher.logger.LogService("redis", "store_run_state", time.Since(startTime), map[string]interface{}{
		"run_id": state.RunID,
		"status": state.Status,
	}, err)
	if err != nil {
		return models.NewExternalError("REDIS_STORE_FAILED", "Failed to store run state").WithCause(err)
	}
	return nil
}

func (publisher *RedisProgressPublisher) HealthCheck(ctx context.Context) error {
	if err := publisher.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection unhealthy: %w", err)
	}
	return nil
}

func (publisher *RedisProgressPublisher) Close() error {
	publisher.logger.Info("Closing Redis progress publisher")
	return publisher.client.Close()
}

// NoopProgressPublisher is used when Redis is disabled.
type NoopProgressPublisher struct{}

func (NoopProgressPublisher) PublishEvent(context.Context, models.StreamEvent) error { return nil }

func (NoopProgressPublisher) StoreRunState(context.Context, models.RunStatusResponse) error {
	return nil
}

func (NoopProgressPublisher) HealthCheck(context.Context) error { return nil }

func (NoopProgressPublisher) Close() error { return nil }
