package services

import (
	"context"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	serviceSummarizer = "summarizer"

	defaultSummarySource = "Nguồn Khác"
	defaultSummaryTitle  = "Tiêu đề bài viết"
	summaryErrorPrefix   = "Lỗi xử lý: "
)

// WaveObserver is told when each wave of summaries starts and finishes.
type WaveObserver interface {
	OnWaveStart(index, total int, urls []string)
	OnWaveDone(index, total, succeeded, failed int)
}

type SummarizeOptions struct {
	Progress models.ProgressFunc
	Observer WaveObserver
}

// Summarizer fetches article pages and condenses each into a markdown block.
type Summarizer struct {
	fetcher    PageFetcher
	completer  Completer
	config     config.PipelineConfig
	newspapers []config.Newspaper
	logger     *logger.Logger
}

func NewSummarizer(fetcher PageFetcher, completer Completer, cfg config.PipelineConfig, newspapers []config.Newspaper, log *logger.Logger) *Summarizer {
	return &Summarizer{
		fetcher:    fetcher,
		completer:  completer,
		config:     cfg,
		newspapers: newspapers,
		logger:     log,
	}
}

// progressTracker serializes progress callbacks so completed counts are
// reported in order.
type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
	fn        models.ProgressFunc
}

func (p *progressTracker) started(url string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(p.completed, p.total, url, models.ProgressProcessing)
}

func (p *progressTracker) finished(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.fn != nil {
		p.fn(p.completed, p.total, url, models.ProgressCompleted)
	}
}

// Summarize processes urls in sequential waves. Inside a wave, articles run
// concurrently under the summary semaphore. When ctx is cancelled no further
// wave is started and the unscheduled urls are reported as failures.
func (s *Summarizer) Summarize(ctx context.Context, urls []string, metadata map[string]models.ArticleMeta, credential string, opts SummarizeOptions) models.SummaryReport {
	startTime := time.Now()
	total := len(urls)
	results := make([]models.SummarizationResult, total)

	waveSize := max(s.config.WaveSize, 1)
	waveCount := (total + waveSize - 1) / waveSize
	semaphore := make(chan struct{}, max(s.config.SummaryConcurrency, 1))
	tracker := &progressTracker{total: total, fn: opts.Progress}

	scheduled := 0
	for wave := 0; wave < waveCount; wave++ {
		if ctx.Err() != nil {
			break
		}
		if wave > 0 {
			if err := sleepContext(ctx, s.config.WaveCooldown); err != nil {
				break
			}
		}

		start := wave * waveSize
		end := min(start+waveSize, total)
		if opts.Observer != nil {
			opts.Observer.OnWaveStart(wave+1, waveCount, urls[start:end])
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				select {
				case semaphore <- struct{}{}:
				case <-ctx.Done():
					results[i] = models.NewSummaryFailure(urls[i], summaryErrorPrefix+ctx.Err().Error())
					tracker.finished(urls[i])
					return nil
				}
				defer func() { <-semaphore }()

				tracker.started(urls[i])
				results[i] = s.summarizeOne(ctx, urls[i], s.resolveMeta(urls[i], metadata), credential)
				tracker.finished(urls[i])
				return nil
			})
		}
		_ = g.Wait()
		scheduled = end

		if opts.Observer != nil {
			succeeded, failed := countResults(results[start:end])
			opts.Observer.OnWaveDone(wave+1, waveCount, succeeded, failed)
		}
	}

	for i := scheduled; i < total; i++ {
		reason := "run cancelled"
		if ctx.Err() != nil {
			reason = ctx.Err().Error()
		}
		results[i] = models.NewSummaryFailure(urls[i], summaryErrorPrefix+reason)
	}

	succeeded, failed := countResults(results)
	report := models.SummaryReport{
		Text:      RenderSummary(results),
		Results:   results,
		Succeeded: succeeded,
		Failed:    failed,
	}

	s.logger.LogService(serviceSummarizer, "summarize", time.Since(startTime), map[string]interface{}{
		"urls":      total,
		"waves":     waveCount,
		"succeeded": succeeded,
		"failed":    failed,
	}, nil)

	return report
}

// resolveMeta looks metadata up by normalized URL, then by the raw URL, and
// fills the gaps with defaults.
func (s *Summarizer) resolveMeta(url string, metadata map[string]models.ArticleMeta) models.ArticleMeta {
	meta, ok := metadata[models.NormalizeURL(url)]
	if !ok {
		meta = metadata[url]
	}
	if strings.TrimSpace(meta.Category) == "" {
		meta.Category = CategoryFromURL(url)
	}
	if strings.TrimSpace(meta.Source) == "" {
		meta.Source = catalogSourceName(url, s.newspapers)
	}
	if meta.Source == "" {
		meta.Source = defaultSummarySource
	}
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = defaultSummaryTitle
	}
	return meta
}

func (s *Summarizer) summarizeOne(ctx context.Context, url string, meta models.ArticleMeta, credential string) models.SummarizationResult {
	category := models.NormalizeCategory(meta.Category)

	if err := sleepContext(ctx, s.config.PreFetchDelay); err != nil {
		return models.NewSummaryFailure(url, summaryErrorPrefix+err.Error())
	}

	content, err := s.fetchContent(ctx, url)
	if err != nil {
		return models.NewSummaryFailure(url, summaryErrorPrefix+err.Error())
	}
	if utf8.RuneCountInString(content) < s.config.MinContentLength {
		s.logger.WithFields(logger.Fields{
			"url":    url,
			"length": utf8.RuneCountInString(content),
		}).Warn("Article content short or empty, using fallback block")
		return models.NewSummarySuccess(url, category, buildFallbackBlock(url, meta))
	}

	text, err := s.complete(ctx, buildSummarizePrompt(url, meta, content), credential)
	if err != nil {
		s.logger.WithFields(logger.Fields{"url": url}).WithError(err).Warn("Article summary failed")
		return models.NewSummaryFailure(url, summaryErrorPrefix+err.Error())
	}
	return models.NewSummarySuccess(url, category, strings.TrimSpace(text))
}

// fetchContent returns the extracted text of the page. Fetch errors and short
// extractions are retried; once attempts run out whatever was extracted is
// returned, possibly empty. Only cancellation is returned as an error.
func (s *Summarizer) fetchContent(ctx context.Context, url string) (string, error) {
	attempts := max(s.config.FetchAttempts, 1)
	var best string

	for attempt := 0; attempt < attempts; attempt++ {
		page, err := s.fetcher.Fetch(ctx, url)
		if err == nil {
			text := ExtractMainText(page, s.config.MinContentLength, s.config.MaxContentLength)
			if utf8.RuneCountInString(text) >= s.config.MinContentLength {
				return text, nil
			}
			if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
				best = text
			}
		} else {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.logger.WithFields(logger.Fields{
				"url":     url,
				"attempt": attempt + 1,
			}).WithError(err).Warn("Article fetch failed")
		}

		if attempt < attempts-1 {
			if err := sleepContext(ctx, s.config.FetchBackoff*time.Duration(attempt+1)); err != nil {
				return "", err
			}
		}
	}
	return best, nil
}

// complete retries only on rate limiting; any other error ends the article.
func (s *Summarizer) complete(ctx context.Context, prompt, credential string) (string, error) {
	attempts := max(s.config.SummaryRetries, 1)
	cfg := ModelConfig{
		Temperature: s.config.SummaryTemperature,
		MaxTokens:   s.config.SummaryMaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		text, err := s.completer.Complete(ctx, prompt, cfg, credential)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRateLimited(err) {
			return "", err
		}
		if attempt < attempts-1 {
			if err := sleepContext(ctx, s.config.RateLimitBackoff*time.Duration(attempt+1)); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("rate limit retries exhausted: %w", lastErr)
}

// RenderSummary groups successful blocks by category and lists failures at
// the end.
func RenderSummary(results []models.SummarizationResult) string {
	groups := make(map[string][]string)
	var failures []string

	for _, result := range results {
		if !result.OK() {
			failures = append(failures, fmt.Sprintf("- [%s](%s): %s", result.URL, result.URL, result.Error))
			continue
		}
		category := result.Category
		if category == "" {
			category = models.CategoryOther
		}
		groups[category] = append(groups[category], result.Text)
	}

	categories := make([]string, 0, len(groups))
	for category := range groups {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var parts []string
	for i, category := range categories {
		texts := groups[category]
		parts = append(parts, fmt.Sprintf("## %d. Chuyên mục %s (%d bài)", i+1, category, len(texts)))
		parts = append(parts, texts...)
		parts = append(parts, "")
	}

	if len(failures) > 0 {
		parts = append(parts, "---")
		parts = append(parts, fmt.Sprintf("### ⚠️ Không thể tóm tắt (%d bài)", len(failures)))
		parts = append(parts, strings.Join(failures, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

func countResults(results []models.SummarizationResult) (succeeded, failed int) {
	for _, result := range results {
		if result.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
