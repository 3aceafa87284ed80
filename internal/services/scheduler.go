package services

import (
	"context"
	"fmt"
	"newsdigest-pipeline/internal/pkg/logger"
	"time"

	"github.com/robfig/cron/v3"
)

// ReferenceScheduler refreshes the reference cache on a cron schedule so
// enrich requests rarely pay for a synchronous refresh.
type ReferenceScheduler struct {
	cron     *cron.Cron
	cache    *ReferenceCache
	schedule string
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewReferenceScheduler(cache *ReferenceCache, schedule string, log *logger.Logger) (*ReferenceScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reference refresh schedule %q: %w", schedule, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := &ReferenceScheduler{
		cron:     cron.New(),
		cache:    cache,
		schedule: schedule,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
	}

	if _, err := scheduler.cron.AddFunc(schedule, scheduler.refresh); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule reference refresh: %w", err)
	}
	return scheduler, nil
}

func (scheduler *ReferenceScheduler) refresh() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(scheduler.ctx, referenceRefreshLimit)
	defer cancel()

	err := scheduler.cache.Refresh(ctx)
	scheduler.logger.LogService("reference_scheduler", "scheduled_refresh", time.Since(startTime), map[string]interface{}{
		"headlines": scheduler.cache.Size(),
	}, err)
}

func (scheduler *ReferenceScheduler) Start() {
	scheduler.cron.Start()
	scheduler.logger.WithFields(logger.Fields{
		"schedule": scheduler.schedule,
	}).Info("Reference refresh scheduled")
}

// Stop cancels a refresh in progress and waits for it to return.
func (scheduler *ReferenceScheduler) Stop() {
	scheduler.cancel()
	<-scheduler.cron.Stop().Done()
	scheduler.logger.Info("Reference scheduler stopped")
}
