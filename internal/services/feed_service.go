package services

import (
	"context"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

const (
	serviceFeeds = "feed_service"

	feedDateLayout    = "02/01/2006"
	publishedAtLayout = "15:04 02/01/2006"
	feedFetchParallel = 6
)

var timeRangePattern = regexp.MustCompile(`(\d+)h(\d+)\s*đến\s*(\d+)h(\d+)`)

// FeedService turns newspaper RSS feeds into Article metadata for a given
// day and time window.
type FeedService struct {
	reader  FeedReader
	catalog *config.FeedCatalog
	logger  *logger.Logger
}

func NewFeedService(reader FeedReader, catalog *config.FeedCatalog, log *logger.Logger) *FeedService {
	return &FeedService{
		reader:  reader,
		catalog: catalog,
		logger:  log,
	}
}

// TimeWindow is an inclusive range of minutes since midnight.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
}

// Contains compares at second precision, so 8h00 excludes 08:00:30.
func (w TimeWindow) Contains(t time.Time) bool {
	seconds := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return seconds >= w.StartMinute*60 && seconds <= w.EndMinute*60
}

// ParseTimeRange reads a window written as "6h00 đến 8h00".
func ParseTimeRange(raw string) (TimeWindow, error) {
	match := timeRangePattern.FindStringSubmatch(raw)
	if match == nil {
		return TimeWindow{}, fmt.Errorf("invalid time range format: %s", raw)
	}

	values := make([]int, 4)
	for i := range values {
		n, err := strconv.Atoi(match[i+1])
		if err != nil {
			return TimeWindow{}, fmt.Errorf("invalid time range format: %s", raw)
		}
		values[i] = n
	}
	if values[0] > 23 || values[1] > 59 || values[2] > 23 || values[3] > 59 {
		return TimeWindow{}, fmt.Errorf("time out of range: %s", raw)
	}

	return TimeWindow{
		StartMinute: values[0]*60 + values[1],
		EndMinute:   values[2]*60 + values[3],
	}, nil
}

// FetchAndFilter reads every feed and keeps entries published on date
// (DD/MM/YYYY) inside the time window. A feed that fails is skipped.
func (service *FeedService) FetchAndFilter(ctx context.Context, feedURLs []string, date, timeRange string) ([]models.Article, error) {
	startTime := time.Now()

	targetDate, err := time.Parse(feedDateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, models.NewValidationError("INVALID_DATE",
			fmt.Sprintf("Invalid date format: %s. Expected DD/MM/YYYY", date), err.Error())
	}
	window, err := ParseTimeRange(timeRange)
	if err != nil {
		return nil, models.NewValidationError("INVALID_TIME_RANGE", err.Error(), "")
	}

	perFeed := make([][]models.Article, len(feedURLs))
	var (
		mu       sync.Mutex
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedFetchParallel)
	for i, feedURL := range feedURLs {
		g.Go(func() error {
			feed, err := service.reader.ReadFeed(gctx, feedURL)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				service.logger.WithFields(logger.Fields{"feed_url": feedURL}).WithError(err).Warn("Feed fetch failed")
				return nil
			}
			perFeed[i] = service.filterFeed(feed, feedURL, targetDate, window)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, models.WrapContextError("fetch_feeds", err)
	}

	articles := []models.Article{}
	for _, batch := range perFeed {
		articles = append(articles, batch...)
	}

	service.logger.LogService(serviceFeeds, "fetch_and_filter", time.Since(startTime), map[string]interface{}{
		"feeds":    len(feedURLs),
		"failures": failures,
		"articles": len(articles),
	}, nil)

	return articles, nil
}

func (service *FeedService) filterFeed(feed *gofeed.Feed, feedURL string, targetDate time.Time, window TimeWindow) []models.Article {
	category := CategoryFromURL(feedURL)
	source := SourceName(feedURL, service.catalog.Newspapers)

	var articles []models.Article
	for _, item := range feed.Items {
		if item == nil || item.PublishedParsed == nil {
			continue
		}
		published := *item.PublishedParsed
		y, m, d := published.Date()
		ty, tm, td := targetDate.Date()
		if y != ty || m != tm || d != td {
			continue
		}
		if !window.Contains(published) {
			continue
		}

		articles = append(articles, models.Article{
			URL:         strings.TrimSpace(item.Link),
			Title:       strings.TrimSpace(item.Title),
			Description: item.Description,
			Category:    category,
			Source:      source,
			PublishedAt: published.Format(publishedAtLayout),
			Thumbnail:   itemThumbnail(item),
		})
	}
	return articles
}

// itemThumbnail looks for an image in media:content, media:thumbnail, image
// enclosures, the item image and finally the first <img> of the description.
func itemThumbnail(item *gofeed.Item) string {
	for _, name := range []string{"content", "thumbnail"} {
		for _, media := range item.Extensions["media"][name] {
			if url := media.Attrs["url"]; url != "" {
				return url
			}
		}
	}

	for _, enclosure := range item.Enclosures {
		if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") && enclosure.URL != "" {
			return enclosure.URL
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}
	if description == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

// MatchFeeds resolves comma-separated newspaper names to the catalog feeds
// served from those newspapers' domains.
func (service *FeedService) MatchFeeds(names string) []string {
	domains := resolveNewspaperDomains(names, service.catalog.Newspapers)

	feeds := []string{}
	for _, feedURL := range service.catalog.Feeds {
		for _, domain := range domains {
			if strings.Contains(feedURL, domain) {
				feeds = append(feeds, feedURL)
				break
			}
		}
	}
	return feeds
}
