package services

import (
	"context"
	"fmt"
	"net/http"
	"newsdigest-pipeline/internal/config"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedReader fetches and parses one RSS or Atom feed.
type FeedReader interface {
	ReadFeed(ctx context.Context, url string) (*gofeed.Feed, error)
}

type GofeedReader struct {
	client    *http.Client
	userAgent string
}

func NewGofeedReader(cfg config.ScraperConfig) *GofeedReader {
	return &GofeedReader{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

func (reader *GofeedReader) ReadFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	// gofeed parsers keep per-parse state, so each call gets its own.
	parser := gofeed.NewParser()
	parser.Client = reader.client
	if reader.userAgent != "" {
		parser.UserAgent = reader.userAgent
	}

	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}
	return feed, nil
}

// itemTime returns the publish time of an item, falling back to its update time.
func itemTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}
