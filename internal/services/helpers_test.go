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

	"github.com/mmcdole/gofeed"
)

type stubCompleter struct {
	fn    func(prompt string, cfg ModelConfig) (string, error)
	calls atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, cfg ModelConfig, credential string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.fn == nil {
		return "", errors.New("no response configured")
	}
	return s.fn(prompt, cfg)
}

func (s *stubCompleter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

type stubFeedReader struct {
	feeds map[string]*gofeed.Feed
	errs  map[string]error
	calls atomic.Int32
}

func (s *stubFeedReader) ReadFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	s.calls.Add(1)
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	if feed, ok := s.feeds[url]; ok {
		return feed, nil
	}
	return nil, fmt.Errorf("no feed for %s", url)
}

type stubFetcher struct {
	fn    func(url string) (string, error)
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.fn(url)
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxPerCategory:       70,
		MatchHeadlineLimit:   20,
		SummaryConcurrency:   2,
		WaveSize:             2,
		CategorizeBatchSize:  2,
		FetchAttempts:        2,
		MinContentLength:     40,
		MaxContentLength:     2000,
		SummaryRetries:       3,
		RunTimeout:           time.Minute,
		MaxArticlesPerRun:    50,
		MaxSummaryURLsPerRun: 20,
	}
}

func testNewspapers() []config.Newspaper {
	return []config.Newspaper{
		{Domain: "laodong.vn", Name: "LAO ĐỘNG", Aliases: []string{"lao động", "laodong"}},
		{Domain: "dantri.com.vn", Name: "DÂN TRÍ", Aliases: []string{"dân trí"}},
		{Domain: "tuoitre.vn", Name: "TUỔI TRẺ", Aliases: []string{"tuổi trẻ", "tuoitre"}},
	}
}

const referenceEconomyFeed = "https://ref.test/kinhte.rss"

func referenceFeed(links ...string) *gofeed.Feed {
	feed := &gofeed.Feed{}
	base := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	for i, link := range links {
		published := base.Add(time.Duration(i) * time.Minute)
		feed.Items = append(feed.Items, &gofeed.Item{
			Title:           "Tin chính thống " + link,
			Link:            link,
			PublishedParsed: &published,
		})
	}
	return feed
}

func newTestCache(reader FeedReader) *ReferenceCache {
	return NewReferenceCache(
		[]config.ReferenceFeed{{Category: models.CategoryEconomy, URL: referenceEconomyFeed}},
		reader,
		config.ReferenceConfig{TTL: time.Hour, PerCategory: 20},
		logger.NewDiscard(),
	)
}

// articlePage builds an article page whose body is long enough to summarize.
func articlePage(body string) string {
	return "<html><head><script>var x = 1;</script></head><body><nav>menu</nav>" +
		`<div class="cms-body"><p>` + body + "</p></div><footer>footer</footer></body></html>"
}

func longText(word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", 30))
}
