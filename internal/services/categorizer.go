package services

import (
	"context"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	serviceCategorizer         = "categorizer"
	categorizeDescriptionLimit = 500
)

type CategorizeStats struct {
	CompletionCalls int
	Defaulted       int
	Skipped         string
}

// Categorizer asks the completion service for the category of each article.
// Articles are sent in small batches with a pause between batches.
type Categorizer struct {
	completer Completer
	config    config.PipelineConfig
	logger    *logger.Logger
}

func NewCategorizer(completer Completer, cfg config.PipelineConfig, log *logger.Logger) *Categorizer {
	return &Categorizer{
		completer: completer,
		config:    cfg,
		logger:    log,
	}
}

// Categorize returns a copy of articles with Category set to one of
// models.Categories. A failed call or an unrecognised answer yields XÃ HỘI.
// Without a credential the category is inferred from the article URL.
func (categorizer *Categorizer) Categorize(ctx context.Context, articles []models.Article, credential string) ([]models.Article, CategorizeStats) {
	startTime := time.Now()
	out := make([]models.Article, len(articles))
	copy(out, articles)
	stats := CategorizeStats{}

	if credential == "" {
		for i := range out {
			out[i].Category = CategoryFromURL(out[i].URL)
		}
		stats.Skipped = "no_credential"
		return out, stats
	}

	batchSize := max(categorizer.config.CategorizeBatchSize, 1)
	var defaulted atomic.Int32

	for start := 0; start < len(out); start += batchSize {
		if start > 0 {
			if err := sleepContext(ctx, categorizer.config.CategorizePause); err != nil {
				for i := start; i < len(out); i++ {
					out[i].Category = models.CategorySociety
					defaulted.Add(1)
				}
				break
			}
		}

		end := min(start+batchSize, len(out))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				category, ok := categorizer.categorizeOne(ctx, out[i], credential)
				out[i].Category = category
				if !ok {
					defaulted.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
		stats.CompletionCalls += end - start
	}
	stats.Defaulted = int(defaulted.Load())

	categorizer.logger.LogService(serviceCategorizer, "categorize", time.Since(startTime), map[string]interface{}{
		"articles":         len(out),
		"completion_calls": stats.CompletionCalls,
		"defaulted":        stats.Defaulted,
	}, nil)

	return out, stats
}

func (categorizer *Categorizer) categorizeOne(ctx context.Context, article models.Article, credential string) (string, bool) {
	prompt := buildCategorizePrompt(article.Title, plainDescription(article.Description, categorizeDescriptionLimit))

	response, err := categorizer.completer.Complete(ctx, prompt, ModelConfig{
		Temperature: 0,
		MaxTokens:   categorizer.config.CategorizeMaxTokens,
	}, credential)
	if err != nil {
		categorizer.logger.WithFields(logger.Fields{"url": article.URL}).WithError(err).Warn("Categorization failed, using default category")
		return models.CategorySociety, false
	}

	category, ok := parseCategory(response)
	if !ok {
		categorizer.logger.WithFields(logger.Fields{
			"url":      article.URL,
			"response": response,
		}).Warn("Unrecognised category in model response, using default")
		return models.CategorySociety, false
	}
	return category, true
}

// parseCategory accepts an exact category name, or the first known category
// the answer mentions.
func parseCategory(response string) (string, bool) {
	answer := models.NormalizeCategory(strings.Trim(strings.TrimSpace(response), "*.\"'`"))
	if answer == "" {
		return "", false
	}
	for _, category := range models.Categories {
		if answer == category {
			return category, true
		}
	}
	for _, category := range models.Categories {
		if strings.Contains(answer, category) {
			return category, true
		}
	}
	return "", false
}

// plainDescription drops markup from a feed description and bounds its length.
func plainDescription(description string, limit int) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	text := description
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(description)); err == nil {
		text = doc.Text()
	}
	return truncateRunes(collapseWhitespace(text), limit)
}
