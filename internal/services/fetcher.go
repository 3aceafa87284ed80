package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/debug"
)

// PageFetcher downloads the raw HTML of an article page.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (string, error)
}

var ErrEmptyPage = errors.New("empty page body")

// CollyFetcher fetches pages through a shared colly collector with browser
// headers and a rotating user agent.
type CollyFetcher struct {
	collector  *colly.Collector
	logger     *logger.Logger
	mu         sync.Mutex
	userAgents []string
	uaIndex    int
}

type fetchOutcome struct {
	body   string
	status int
	err    error
}

func NewCollyFetcher(cfg config.ScraperConfig, log *logger.Logger) (*CollyFetcher, error) {
	options := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	}
	if cfg.Debug {
		options = append(options, colly.Debugger(&debug.LogDebugger{}))
	}
	collector := colly.NewCollector(options...)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("failed to set scraper limits: %w", err)
	}
	collector.SetRequestTimeout(cfg.Timeout)

	fetcher := &CollyFetcher{
		collector: collector,
		logger:    log,
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/120.0",
		},
	}

	log.WithFields(logger.Fields{
		"parallelism": cfg.Parallelism,
		"delay":       cfg.Delay.String(),
		"timeout":     cfg.Timeout.String(),
	}).Info("Page fetcher initialized")

	return fetcher, nil
}

func (fetcher *CollyFetcher) nextUserAgent() string {
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	ua := fetcher.userAgents[fetcher.uaIndex]
	fetcher.uaIndex = (fetcher.uaIndex + 1) % len(fetcher.userAgents)
	return ua
}

func (fetcher *CollyFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	startTime := time.Now()

	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", targetURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %s", parsedURL.Scheme)
	}

	c := fetcher.collector.Clone()
	var outcome fetchOutcome

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", fetcher.nextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
		r.Headers.Set("DNT", "1")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "none")
		r.Headers.Set("Cache-Control", "max-age=0")
		r.Headers.Set("Referer", parsedURL.Scheme+"://"+parsedURL.Host+"/")
	})

	c.OnResponse(func(r *colly.Response) {
		outcome.status = r.StatusCode
		outcome.body = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			outcome.status = r.StatusCode
		}
		outcome.err = fmt.Errorf("HTTP %d: %w", outcome.status, err)
	})

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: fmt.Errorf("scraper panic: %v", r)}
			}
		}()

		if err := c.Visit(targetURL); err != nil && outcome.err == nil {
			outcome.err = err
		}
		done <- outcome
	}()

	var result fetchOutcome
	select {
	case result = <-done:
	case <-ctx.Done():
		fetcher.logger.WithFields(logger.Fields{
			"url":      targetURL,
			"duration": time.Since(startTime).String(),
		}).Warn("Page fetch abandoned")
		return "", models.WrapContextError("fetch", ctx.Err())
	}

	if result.err == nil && result.body == "" {
		result.err = ErrEmptyPage
	}

	fetcher.logger.LogService("fetcher", "fetch", time.Since(startTime), map[string]interface{}{
		"url":         targetURL,
		"status_code": result.status,
		"size":        len(result.body),
	}, result.err)

	if result.err != nil {
		return "", result.err
	}
	return result.body, nil
}
