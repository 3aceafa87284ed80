package services

import (
	"context"
	"errors"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	runRetention   = 30 * time.Minute
	publishTimeout = 2 * time.Second
)

type Orchestrator struct {
	clusterEngine *ClusterEngine
	matcher       *CoverageMatcher
	summarizer    *Summarizer
	categorizer   *Categorizer
	feeds         *FeedService
	cache         *ReferenceCache
	completer     Completer
	publisher     ProgressPublisher
	config        *config.Config
	logger        *logger.Logger

	runs      sync.Map
	startTime time.Time

	runsStarted        atomic.Int64
	runsCompleted      atomic.Int64
	runsFailed         atomic.Int64
	runsCancelled      atomic.Int64
	articlesEnriched   atomic.Int64
	summariesSucceeded atomic.Int64
	summariesFailed    atomic.Int64
}

type runEntry struct {
	run    *models.RunContext
	cancel context.CancelFunc
}

func NewOrchestrator(
	clusterEngine *ClusterEngine,
	matcher *CoverageMatcher,
	summarizer *Summarizer,
	categorizer *Categorizer,
	feeds *FeedService,
	cache *ReferenceCache,
	completer Completer,
	publisher ProgressPublisher,
	cfg *config.Config,
	log *logger.Logger) *Orchestrator {

	if publisher == nil {
		publisher = NoopProgressPublisher{}
	}

	orchestrator := &Orchestrator{
		clusterEngine: clusterEngine,
		matcher:       matcher,
		summarizer:    summarizer,
		categorizer:   categorizer,
		feeds:         feeds,
		cache:         cache,
		completer:     completer,
		publisher:     publisher,
		config:        cfg,
		logger:        log,
		startTime:     time.Now(),
	}

	log.WithFields(logger.Fields{
		"completion_provider": cfg.Completion.Provider,
		"reference_feeds":     len(cfg.Feeds.Reference),
		"summary_concurrency": cfg.Pipeline.SummaryConcurrency,
		"wave_size":           cfg.Pipeline.WaveSize,
	}).Info("Pipeline orchestrator initialized")

	return orchestrator
}

// Enrich runs prefilter, clustering and coverage matching over a private copy
// of articles and returns every article in input order.
func (orchestrator *Orchestrator) Enrich(ctx context.Context, articles []models.Article, credential string) (*models.EnrichResponse, error) {
	return orchestrator.enrich(ctx, articles, credential, nil)
}

// StreamEnrich is Enrich with ordered progress events. The last event is
// always a complete or an error event.
func (orchestrator *Orchestrator) StreamEnrich(ctx context.Context, articles []models.Article, credential string, emit models.EmitFunc) {
	response, err := orchestrator.enrich(ctx, articles, credential, emit)
	if err != nil {
		emit(models.NewErrorEvent(err).WithRunID(runIDOf(err)))
		return
	}
	emit(models.NewCompleteArticlesEvent(response.Articles).WithRunID(response.RunID))
}

func (orchestrator *Orchestrator) enrich(ctx context.Context, articles []models.Article, credential string, stream models.EmitFunc) (*models.EnrichResponse, error) {
	if err := orchestrator.validateArticles(articles); err != nil {
		return nil, err
	}

	run, runCtx, finish := orchestrator.startRun(ctx, models.RunKindEnrich)
	defer finish()
	emit := orchestrator.emitter(run, stream)

	run.UpdateStats(func(stats *models.RunStats) {
		stats.ArticlesIn = len(articles)
	})

	enriched, err := orchestrator.runEnrich(runCtx, run, articles, credential, emit)
	if err != nil {
		return nil, orchestrator.failRun(run, err)
	}

	groups, matched := 0, 0
	for _, article := range enriched {
		if article.IsMaster {
			groups++
		}
		if article.OfficialSourceLink != nil {
			matched++
		}
	}

	orchestrator.articlesEnriched.Add(int64(len(enriched)))
	orchestrator.completeRun(run)

	return &models.EnrichResponse{
		RunID:    run.ID,
		Articles: enriched,
		Groups:   groups,
		Matched:  matched,
	}, nil
}

func (orchestrator *Orchestrator) runEnrich(ctx context.Context, run *models.RunContext, articles []models.Article, credential string, emit models.EmitFunc) ([]models.Article, error) {
	working := make([]models.Article, len(articles))
	copy(working, articles)

	// Prefilter
	stageStart := time.Now()
	emit(models.NewStreamEvent(models.StagePrefilter, models.StepStatusRunning, "Đang phân tích tin trùng lặp..."))
	working = MarkExactDuplicates(working)
	duplicates := CountExactDuplicates(working)
	output := map[string]any{"exact_duplicates": duplicates}
	run.AddStage(models.StagePrefilter, models.StepStatusDone, stageStart, output, nil)
	run.UpdateStats(func(stats *models.RunStats) { stats.ExactDuplicates = duplicates })
	orchestrator.logger.LogStage(run.ID, models.StagePrefilter, "completed", time.Since(stageStart), output, nil)
	emit(models.NewStreamEvent(models.StagePrefilter, models.StepStatusDone,
		fmt.Sprintf("Phát hiện %d tin trùng tiêu đề", duplicates)).WithData(output))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Cluster
	stageStart = time.Now()
	emit(models.NewStreamEvent(models.StageCluster, models.StepStatusRunning, "Đang gom nhóm tin cùng sự kiện..."))
	working, clusterStats := orchestrator.clusterEngine.Cluster(ctx, working, credential)
	output = map[string]any{
		"categories":       clusterStats.Categories,
		"groups":           clusterStats.Groups,
		"completion_calls": clusterStats.CompletionCalls,
		"fallbacks":        clusterStats.Fallbacks,
		"overflow":         clusterStats.Overflow,
	}
	status := models.StepStatusDone
	message := fmt.Sprintf("Đã gom %d bài thành %d nhóm sự kiện", len(working), clusterStats.Groups)
	if credential == "" {
		status = models.StepStatusSkipped
		message = "Bỏ qua gom nhóm: chưa có API key"
	}
	run.AddStage(models.StageCluster, status, stageStart, output, nil)
	run.UpdateStats(func(stats *models.RunStats) {
		stats.Groups = clusterStats.Groups
		stats.CompletionCalls += clusterStats.CompletionCalls
		stats.CategoriesFallback = clusterStats.Fallbacks
	})
	orchestrator.logger.LogStage(run.ID, models.StageCluster, "completed", time.Since(stageStart), output, nil)
	emit(models.NewStreamEvent(models.StageCluster, status, message).WithData(output))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Match
	stageStart = time.Now()
	emit(models.NewStreamEvent(models.StageMatch, models.StepStatusRunning, "Đang xác thực với Báo Nhân Dân..."))
	working, matchStats := orchestrator.matcher.Match(ctx, working, credential)
	output = map[string]any{
		"categories":       matchStats.Categories,
		"matched":          matchStats.Matched,
		"completion_calls": matchStats.CompletionCalls,
		"failures":         matchStats.Failures,
	}
	status = models.StepStatusDone
	message = fmt.Sprintf("Tìm thấy %d bài có nguồn chính thống", matchStats.Matched)
	if matchStats.Skipped != "" {
		status = models.StepStatusSkipped
		output["skipped"] = matchStats.Skipped
		message = "Bỏ qua xác thực: " + matchStats.Skipped
	}
	run.AddStage(models.StageMatch, status, stageStart, output, nil)
	run.UpdateStats(func(stats *models.RunStats) {
		stats.OfficialMatches = matchStats.Matched
		stats.CompletionCalls += matchStats.CompletionCalls
	})
	orchestrator.logger.LogStage(run.ID, models.StageMatch, "completed", time.Since(stageStart), output, nil)
	emit(models.NewStreamEvent(models.StageMatch, status, message).WithData(output))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return working, nil
}

// Summarize renders the summary of urls.
func (orchestrator *Orchestrator) Summarize(ctx context.Context, urls []string, metadata map[string]models.ArticleMeta, credential string) (*models.SummarizeResponse, error) {
	return orchestrator.SummarizeWithProgress(ctx, urls, metadata, credential, nil)
}

func (orchestrator *Orchestrator) SummarizeWithProgress(ctx context.Context, urls []string, metadata map[string]models.ArticleMeta, credential string, progress models.ProgressFunc) (*models.SummarizeResponse, error) {
	return orchestrator.summarize(ctx, urls, metadata, credential, progress, nil)
}

// StreamSummarize emits wave and per-article progress, then the rendered
// summary as the complete event.
func (orchestrator *Orchestrator) StreamSummarize(ctx context.Context, urls []string, metadata map[string]models.ArticleMeta, credential string, emit models.EmitFunc) {
	response, err := orchestrator.summarize(ctx, urls, metadata, credential, nil, emit)
	if err != nil {
		emit(models.NewErrorEvent(err).WithRunID(runIDOf(err)))
		return
	}
	event := models.NewCompleteSummaryEvent(response.Summary).WithRunID(response.RunID)
	if response.TimedOut {
		event = event.WithData(map[string]interface{}{"timed_out": true})
	}
	emit(event)
}

func (orchestrator *Orchestrator) summarize(ctx context.Context, urls []string, metadata map[string]models.ArticleMeta, credential string, progress models.ProgressFunc, stream models.EmitFunc) (*models.SummarizeResponse, error) {
	if err := orchestrator.validateURLs(urls); err != nil {
		return nil, err
	}

	run, runCtx, finish := orchestrator.startRun(ctx, models.RunKindSummarize)
	defer finish()
	emit := orchestrator.emitter(run, stream)

	total := len(urls)
	run.UpdateStats(func(stats *models.RunStats) { stats.TotalArticlesQueued = total })

	opts := SummarizeOptions{
		Observer: &runWaveObserver{run: run, emit: emit},
		Progress: func(completed, total int, url string, status models.ProgressStatus) {
			stepStatus := models.StepStatusRunning
			if status == models.ProgressCompleted {
				stepStatus = models.StepStatusDone
				run.UpdateStats(func(stats *models.RunStats) { stats.ProcessedArticles = completed })
			}
			if progress != nil {
				progress(completed, total, url, status)
			}
			emit(models.NewStreamEvent(models.StageArticle, stepStatus, url).WithData(map[string]interface{}{
				"completed":       completed,
				"total":           total,
				"current_article": url,
				"status":          string(status),
			}))
		},
	}

	stageStart := time.Now()
	emit(models.NewStreamEvent(models.StageSummarize, models.StepStatusRunning,
		fmt.Sprintf("Đang tóm tắt %d bài viết...", total)).WithData(map[string]interface{}{"total": total}))

	report := orchestrator.summarizer.Summarize(runCtx, urls, metadata, credential, opts)

	output := map[string]any{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}
	run.UpdateStats(func(stats *models.RunStats) {
		stats.SummariesSucceeded = report.Succeeded
		stats.SummariesFailed = report.Failed
	})
	orchestrator.summariesSucceeded.Add(int64(report.Succeeded))
	orchestrator.summariesFailed.Add(int64(report.Failed))

	timedOut := false
	if err := runCtx.Err(); err != nil {
		// the run's own deadline keeps the partial summary; a caller that went
		// away gets the error
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			run.AddStage(models.StageSummarize, models.StepStatusError, stageStart, output, err)
			return nil, orchestrator.failRun(run, err)
		}
		timedOut = true
		output["timed_out"] = true
		run.UpdateStats(func(stats *models.RunStats) { stats.TimedOut = true })
		orchestrator.logger.WithRunID(run.ID).WithFields(logger.Fields{
			"succeeded": report.Succeeded,
			"failed":    report.Failed,
		}).Warn("Summarize run reached its deadline, returning partial summary")
	}

	message := fmt.Sprintf("Hoàn tất: %d thành công, %d thất bại", report.Succeeded, report.Failed)
	if timedOut {
		message += " (hết thời gian)"
	}
	run.AddStage(models.StageSummarize, models.StepStatusDone, stageStart, output, nil)
	orchestrator.logger.LogStage(run.ID, models.StageSummarize, "completed", time.Since(stageStart), output, nil)
	emit(models.NewStreamEvent(models.StageSummarize, models.StepStatusDone, message).WithData(output))

	orchestrator.completeRun(run)

	return &models.SummarizeResponse{
		RunID:     run.ID,
		Summary:   report.Text,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		TimedOut:  timedOut,
	}, nil
}

// Categorize assigns one of the fixed categories to every article.
func (orchestrator *Orchestrator) Categorize(ctx context.Context, articles []models.Article, credential string) (*models.CategorizeResponse, error) {
	if err := orchestrator.validateArticles(articles); err != nil {
		return nil, err
	}

	run, runCtx, finish := orchestrator.startRun(ctx, models.RunKindCategorize)
	defer finish()
	run.UpdateStats(func(stats *models.RunStats) { stats.ArticlesIn = len(articles) })

	stageStart := time.Now()
	categorized, categorizeStats := orchestrator.categorizer.Categorize(runCtx, articles, credential)

	counts := make(map[string]int, len(models.Categories))
	for _, article := range categorized {
		counts[article.Category]++
	}
	output := map[string]any{
		"completion_calls": categorizeStats.CompletionCalls,
		"defaulted":        categorizeStats.Defaulted,
		"categories":       counts,
	}

	if err := runCtx.Err(); err != nil {
		run.AddStage(models.StageCategorize, models.StepStatusError, stageStart, output, err)
		return nil, orchestrator.failRun(run, err)
	}

	status := models.StepStatusDone
	if categorizeStats.Skipped != "" {
		status = models.StepStatusSkipped
		output["skipped"] = categorizeStats.Skipped
	}
	run.AddStage(models.StageCategorize, status, stageStart, output, nil)
	run.UpdateStats(func(stats *models.RunStats) { stats.CompletionCalls += categorizeStats.CompletionCalls })
	orchestrator.logger.LogStage(run.ID, models.StageCategorize, "completed", time.Since(stageStart), output, nil)
	orchestrator.completeRun(run)

	return &models.CategorizeResponse{
		RunID:      run.ID,
		Articles:   categorized,
		Categories: counts,
		Defaulted:  categorizeStats.Defaulted,
	}, nil
}

// runWaveObserver turns wave boundaries into run stats and stream events.
type runWaveObserver struct {
	run  *models.RunContext
	emit models.EmitFunc
}

func (observer *runWaveObserver) OnWaveStart(index, total int, urls []string) {
	observer.emit(models.NewStreamEvent(models.StageWave, models.StepStatusRunning,
		fmt.Sprintf("Đợt %d/%d", index, total)).WithData(map[string]interface{}{
		"wave":  index,
		"waves": total,
		"urls":  urls,
	}))
}

func (observer *runWaveObserver) OnWaveDone(index, total, succeeded, failed int) {
	observer.run.UpdateStats(func(stats *models.RunStats) { stats.WavesCompleted = index })
	observer.emit(models.NewStreamEvent(models.StageWave, models.StepStatusDone,
		fmt.Sprintf("Xong đợt %d/%d", index, total)).WithData(map[string]interface{}{
		"wave":      index,
		"waves":     total,
		"succeeded": succeeded,
		"failed":    failed,
	}))
}

// FetchFeeds reads the given feeds and keeps entries inside the date and
// time window.
func (orchestrator *Orchestrator) FetchFeeds(ctx context.Context, feedURLs []string, date, timeRange string) ([]models.Article, error) {
	if len(feedURLs) == 0 {
		return nil, models.NewValidationError("NO_FEEDS", "At least one feed URL is required", "")
	}
	return orchestrator.feeds.FetchAndFilter(ctx, feedURLs, date, timeRange)
}

func (orchestrator *Orchestrator) MatchFeeds(names string) []string {
	return orchestrator.feeds.MatchFeeds(names)
}

func (orchestrator *Orchestrator) ReferenceStatus() models.ReferenceStatusResponse {
	return orchestrator.cache.Status()
}

func (orchestrator *Orchestrator) RefreshReference(ctx context.Context) (models.ReferenceStatusResponse, error) {
	if err := orchestrator.cache.Refresh(ctx); err != nil {
		return orchestrator.cache.Status(), models.WrapExternalError("reference_feeds", err)
	}
	return orchestrator.cache.Status(), nil
}

func (orchestrator *Orchestrator) validateArticles(articles []models.Article) error {
	if len(articles) == 0 {
		return models.ErrNoArticles()
	}
	if limit := orchestrator.config.Pipeline.MaxArticlesPerRun; limit > 0 && len(articles) > limit {
		return models.NewValidationError("TOO_MANY_ARTICLES",
			fmt.Sprintf("At most %d articles per run", limit), fmt.Sprintf("received %d", len(articles)))
	}
	for i, article := range articles {
		if strings.TrimSpace(article.URL) == "" {
			return models.NewValidationError("INVALID_ARTICLE", "Article url is required", fmt.Sprintf("articles[%d]", i))
		}
	}
	return nil
}

func (orchestrator *Orchestrator) validateURLs(urls []string) error {
	if len(urls) == 0 {
		return models.ErrNoURLs()
	}
	if limit := orchestrator.config.Pipeline.MaxSummaryURLsPerRun; limit > 0 && len(urls) > limit {
		return models.NewValidationError("TOO_MANY_URLS",
			fmt.Sprintf("At most %d urls per run", limit), fmt.Sprintf("received %d", len(urls)))
	}
	for i, url := range urls {
		if strings.TrimSpace(url) == "" {
			return models.NewValidationError("INVALID_URL", "Empty url", fmt.Sprintf("urls[%d]", i))
		}
	}
	return nil
}

func (orchestrator *Orchestrator) startRun(ctx context.Context, kind models.RunKind) (*models.RunContext, context.Context, func()) {
	orchestrator.pruneRuns()

	run := models.NewRunContext(kind, models.GenerateRequestID())
	run.MarkProcessing()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout := orchestrator.config.Pipeline.RunTimeout; timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	orchestrator.runs.Store(run.ID, &runEntry{run: run, cancel: cancel})
	orchestrator.runsStarted.Add(1)
	orchestrator.logger.LogRun(run.ID, string(kind), "run_started", 0, nil)
	orchestrator.storeState(run)

	return run, runCtx, cancel
}

func (orchestrator *Orchestrator) completeRun(run *models.RunContext) {
	run.MarkCompleted()
	orchestrator.runsCompleted.Add(1)
	orchestrator.logger.LogRun(run.ID, string(run.Kind), "run_completed", run.GetDuration(), nil)
	orchestrator.storeState(run)
}

// failRun records err on the run and returns it as an AppError tagged with
// the run id.
func (orchestrator *Orchestrator) failRun(run *models.RunContext, err error) error {
	appErr := models.AsAppError(models.WrapContextError("pipeline_run", err)).WithRunID(run.ID)

	if appErr.Type == models.ErrorTypeCancelled || appErr.Type == models.ErrorTypeTimeout {
		run.MarkCancelled(err)
		orchestrator.runsCancelled.Add(1)
	} else {
		run.MarkFailed(err)
		orchestrator.runsFailed.Add(1)
	}
	orchestrator.logger.LogRun(run.ID, string(run.Kind), "run_failed", run.GetDuration(), err)
	orchestrator.storeState(run)
	return appErr
}

func runIDOf(err error) string {
	return models.AsAppError(err).RunID
}

// emitter stamps events with the run id, forwards them to stream and mirrors
// them to the progress publisher.
func (orchestrator *Orchestrator) emitter(run *models.RunContext, stream models.EmitFunc) models.EmitFunc {
	return func(event models.StreamEvent) {
		event = event.WithRunID(run.ID)
		if stream != nil {
			stream(event)
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := orchestrator.publisher.PublishEvent(ctx, event); err != nil {
			orchestrator.logger.WithRunID(run.ID).WithError(err).Debug("Failed to mirror run event")
		}
	}
}

func (orchestrator *Orchestrator) storeState(run *models.RunContext) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := orchestrator.publisher.StoreRunState(ctx, run.Snapshot()); err != nil {
		orchestrator.logger.WithRunID(run.ID).WithError(err).Debug("Failed to mirror run state")
	}
}

// pruneRuns drops finished runs older than the retention window.
func (orchestrator *Orchestrator) pruneRuns() {
	orchestrator.runs.Range(func(key, value interface{}) bool {
		entry := value.(*runEntry)
		if entry.run.IsFinished() {
			snapshot := entry.run.Snapshot()
			if snapshot.EndTime != nil && time.Since(*snapshot.EndTime) > runRetention {
				orchestrator.runs.Delete(key)
			}
		}
		return true
	})
}

func (orchestrator *Orchestrator) GetRunStatus(runID string) (*models.RunStatusResponse, error) {
	if value, exists := orchestrator.runs.Load(runID); exists {
		snapshot := value.(*runEntry).run.Snapshot()
		return &snapshot, nil
	}
	return nil, models.ErrRunNotFound(runID)
}

// ListActiveRuns returns the runs still in progress.
func (orchestrator *Orchestrator) ListActiveRuns() []models.RunStatusResponse {
	active := []models.RunStatusResponse{}
	orchestrator.runs.Range(func(_, value interface{}) bool {
		entry := value.(*runEntry)
		if !entry.run.IsFinished() {
			active = append(active, entry.run.Snapshot())
		}
		return true
	})
	return active
}

func (orchestrator *Orchestrator) GetActiveRunsCount() int {
	count := 0
	orchestrator.runs.Range(func(_, value interface{}) bool {
		if !value.(*runEntry).run.IsFinished() {
			count++
		}
		return true
	})
	return count
}

// CancelRun cancels the context of an active run. Waves not yet started are
// never scheduled.
func (orchestrator *Orchestrator) CancelRun(runID string) error {
	value, exists := orchestrator.runs.Load(runID)
	if !exists {
		return models.ErrRunNotFound(runID)
	}
	entry := value.(*runEntry)
	if entry.run.IsFinished() {
		return models.NewValidationError("RUN_FINISHED", fmt.Sprintf("Run %s has already finished", runID), "").WithRunID(runID)
	}

	entry.cancel()
	orchestrator.logger.LogRun(runID, string(entry.run.Kind), "run_cancel_requested", entry.run.GetDuration(), nil)
	return nil
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck reports per-dependency state. The error is non-nil only when a
// dependency the pipeline cannot run without is down.
func (orchestrator *Orchestrator) HealthCheck(ctx context.Context) (map[string]string, error) {
	services := map[string]string{}
	var failed []string

	if checker, ok := orchestrator.completer.(healthChecker); ok {
		if err := checker.HealthCheck(ctx); err != nil {
			services["completion"] = "unhealthy: " + err.Error()
			failed = append(failed, "completion")
		} else {
			services["completion"] = "healthy"
		}
	} else {
		services["completion"] = "unknown"
	}

	if err := orchestrator.publisher.HealthCheck(ctx); err != nil {
		// the mirror is optional; the pipeline runs without it
		services["progress_publisher"] = "degraded: " + err.Error()
	} else {
		services["progress_publisher"] = "healthy"
	}

	switch {
	case orchestrator.cache.Size() == 0:
		services["reference_cache"] = "empty"
	case orchestrator.cache.IsStale():
		services["reference_cache"] = "stale"
	default:
		services["reference_cache"] = "healthy"
	}

	if len(failed) > 0 {
		return services, fmt.Errorf("unhealthy services: %s", strings.Join(failed, ", "))
	}
	return services, nil
}

func (orchestrator *Orchestrator) GetStats() map[string]interface{} {
	uptime := time.Since(orchestrator.startTime)
	reference := orchestrator.cache.Status()

	return map[string]interface{}{
		"service":             "newsdigest_pipeline",
		"uptime_seconds":      uptime.Seconds(),
		"active_runs":         orchestrator.GetActiveRunsCount(),
		"runs_started":        orchestrator.runsStarted.Load(),
		"runs_completed":      orchestrator.runsCompleted.Load(),
		"runs_failed":         orchestrator.runsFailed.Load(),
		"runs_cancelled":      orchestrator.runsCancelled.Load(),
		"articles_enriched":   orchestrator.articlesEnriched.Load(),
		"summaries_succeeded": orchestrator.summariesSucceeded.Load(),
		"summaries_failed":    orchestrator.summariesFailed.Load(),
		"reference_cache": map[string]interface{}{
			"size":        reference.Size,
			"age_seconds": reference.AgeSeconds,
			"stale":       reference.Stale,
			"refreshes":   orchestrator.cache.RefreshCount(),
		},
		"stages": []string{models.StagePrefilter, models.StageCluster, models.StageMatch, models.StageSummarize},
	}
}

// Close waits up to 30s for active runs to finish, then cancels the rest.
func (orchestrator *Orchestrator) Close() error {
	orchestrator.logger.Info("Pipeline orchestrator shutting down")

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if orchestrator.GetActiveRunsCount() == 0 {
			orchestrator.logger.Info("All runs completed, orchestrator closed")
			return orchestrator.publisher.Close()
		}
		select {
		case <-timeout:
			active := orchestrator.GetActiveRunsCount()
			orchestrator.logger.WithFields(logger.Fields{"active_runs": active}).Warn("Timeout waiting for runs to complete, cancelling")
			orchestrator.runs.Range(func(_, value interface{}) bool {
				value.(*runEntry).cancel()
				return true
			})
			return orchestrator.publisher.Close()
		case <-ticker.C:
		}
	}
}
