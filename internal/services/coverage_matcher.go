package services

import (
	"context"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"time"

	"golang.org/x/sync/errgroup"
)

const serviceCoverageMatcher = "coverage_matcher"

// CoverageMatcher links articles to the authoritative outlet's coverage of
// the same event.
type CoverageMatcher struct {
	cache     *ReferenceCache
	completer Completer
	config    config.PipelineConfig
	logger    *logger.Logger
}

type MatchStats struct {
	Categories      int
	CompletionCalls int
	Matched         int
	Failures        int
	Skipped         string
}

type categoryMatch struct {
	links map[int]string
	err   error
}

func NewCoverageMatcher(cache *ReferenceCache, completer Completer, cfg config.PipelineConfig, log *logger.Logger) *CoverageMatcher {
	return &CoverageMatcher{
		cache:     cache,
		completer: completer,
		config:    cfg,
		logger:    log,
	}
}

// Match sets official_source_link on every article, null unless the model
// picked a headline that was actually presented to it.
func (matcher *CoverageMatcher) Match(ctx context.Context, articles []models.Article, credential string) ([]models.Article, MatchStats) {
	startTime := time.Now()
	stats := MatchStats{}

	for i := range articles {
		articles[i].OfficialSourceLink = nil
	}

	if credential == "" {
		stats.Skipped = "no_credential"
		return articles, stats
	}

	if err := matcher.cache.EnsureFresh(ctx); err != nil {
		matcher.logger.WithError(err).Warn("Reference cache refresh failed")
	}
	if matcher.cache.Size() == 0 {
		stats.Skipped = "empty_reference_cache"
		return articles, stats
	}

	order, buckets := partitionByCategory(articles)

	type job struct {
		category  string
		indices   []int
		headlines []models.ReferenceHeadline
	}
	var jobs []job
	for _, category := range order {
		if !matcher.cache.HasCategory(category) {
			continue
		}
		headlines := matcher.cache.Get(category)
		if len(headlines) == 0 {
			continue
		}
		if len(headlines) > matcher.config.MatchHeadlineLimit {
			headlines = headlines[:matcher.config.MatchHeadlineLimit]
		}
		indices := buckets[category]
		if len(indices) > matcher.config.MaxPerCategory {
			indices = indices[:matcher.config.MaxPerCategory]
		}
		jobs = append(jobs, job{category: category, indices: indices, headlines: headlines})
	}
	stats.Categories = len(jobs)

	results := make([]categoryMatch, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			links, err := matcher.matchCategory(gctx, articles, j.indices, j.headlines, credential)
			results[i] = categoryMatch{links: links, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, result := range results {
		stats.CompletionCalls++
		if result.err != nil {
			stats.Failures++
			matcher.logger.WithFields(logger.Fields{
				"category": jobs[i].category,
				"articles": len(jobs[i].indices),
			}).WithError(result.err).Warn("Coverage match failed for category")
		}
		for idx, link := range result.links {
			articles[idx].OfficialSourceLink = models.StringPtr(link)
			stats.Matched++
		}
	}

	matcher.logger.LogService(serviceCoverageMatcher, "match", time.Since(startTime), map[string]interface{}{
		"articles":   len(articles),
		"categories": stats.Categories,
		"matched":    stats.Matched,
		"failures":   stats.Failures,
	}, nil)

	return articles, stats
}

// matchCategory returns article index -> reference link for one category.
// Entries that parsed before an error are still returned.
func (matcher *CoverageMatcher) matchCategory(ctx context.Context, articles []models.Article, indices []int, headlines []models.ReferenceHeadline, credential string) (map[int]string, error) {
	prompt := buildMatchPrompt(articles, indices, headlines)

	response, err := matcher.completer.Complete(ctx, prompt, ModelConfig{
		Temperature: matcher.config.MatchTemperature,
		MaxTokens:   matcher.config.MatchMaxTokens,
		JSON:        true,
	}, credential)
	if err != nil {
		return nil, err
	}

	switch parsed := parseMatchResponse(response).(type) {
	case ParsedMatchResponse:
		return resolveMatches(parsed.Entries, indices, headlines), nil
	case ParseFailure:
		return nil, parsed
	default:
		return nil, fmt.Errorf("unexpected parse result %T", parsed)
	}
}

// resolveMatches keeps entries whose index is in range and whose link is one
// of the presented headlines.
func resolveMatches(entries []MatchEntry, indices []int, headlines []models.ReferenceHeadline) map[int]string {
	presented := make(map[string]string, len(headlines))
	for _, h := range headlines {
		presented[models.NormalizeURL(h.Link)] = h.Link
	}

	links := make(map[int]string)
	for _, entry := range entries {
		if entry.ArticleIndex == nil || entry.MatchedLink == nil {
			continue
		}
		position := *entry.ArticleIndex
		if position < 0 || position >= len(indices) {
			continue
		}
		link, ok := presented[models.NormalizeURL(*entry.MatchedLink)]
		if !ok {
			continue
		}
		if _, seen := links[indices[position]]; seen {
			continue
		}
		links[indices[position]] = link
	}
	return links
}
