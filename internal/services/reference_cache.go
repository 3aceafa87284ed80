package services

import (
	"context"
	"errors"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	serviceReferenceCache = "reference_cache"
	referenceRefreshKey   = "refresh"
	referenceRefreshLimit = 2 * time.Minute
)

// referenceSnapshot is immutable once published.
type referenceSnapshot struct {
	byCategory map[string][]models.ReferenceHeadline
	fetchedAt  time.Time
	size       int
}

// ReferenceCache holds the latest headlines of the authoritative outlet per
// category. A refresh builds a new snapshot and swaps it in whole, so readers
// never see a half-built set.
type ReferenceCache struct {
	feeds       []config.ReferenceFeed
	reader      FeedReader
	ttl         time.Duration
	perCategory int
	logger      *logger.Logger

	snapshot  atomic.Pointer[referenceSnapshot]
	group     singleflight.Group
	refreshes atomic.Int64

	now func() time.Time
}

func NewReferenceCache(feeds []config.ReferenceFeed, reader FeedReader, cfg config.ReferenceConfig, log *logger.Logger) *ReferenceCache {
	return &ReferenceCache{
		feeds:       feeds,
		reader:      reader,
		ttl:         cfg.TTL,
		perCategory: cfg.PerCategory,
		logger:      log,
		now:         time.Now,
	}
}

// Refresh fetches every reference feed and publishes a new snapshot. A feed
// that fails leaves its category empty. The returned error is non-nil only
// when every feed failed.
func (cache *ReferenceCache) Refresh(ctx context.Context) error {
	startTime := time.Now()
	cache.refreshes.Add(1)

	var (
		mu         sync.Mutex
		byCategory = make(map[string][]models.ReferenceHeadline, len(cache.feeds))
		failures   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, feed := range cache.feeds {
		g.Go(func() error {
			headlines, err := cache.fetchCategory(gctx, feed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				cache.logger.WithFields(logger.Fields{
					"category": feed.Category,
					"url":      feed.URL,
				}).WithError(err).Warn("Reference feed fetch failed")
				return nil
			}
			byCategory[feed.Category] = headlines
			return nil
		})
	}
	_ = g.Wait()

	size := 0
	for _, headlines := range byCategory {
		size += len(headlines)
	}

	cache.snapshot.Store(&referenceSnapshot{
		byCategory: byCategory,
		fetchedAt:  cache.now(),
		size:       size,
	})

	var err error
	if len(cache.feeds) > 0 && len(failures) == len(cache.feeds) {
		err = errors.Join(failures...)
	}

	cache.logger.LogService(serviceReferenceCache, "refresh", time.Since(startTime), map[string]interface{}{
		"categories": len(byCategory),
		"headlines":  size,
		"failures":   len(failures),
	}, err)

	return err
}

func (cache *ReferenceCache) fetchCategory(ctx context.Context, feed config.ReferenceFeed) ([]models.ReferenceHeadline, error) {
	parsed, err := cache.reader.ReadFeed(ctx, feed.URL)
	if err != nil {
		return nil, err
	}

	items := newestFirst(parsed.Items)
	if len(items) > cache.perCategory {
		items = items[:cache.perCategory]
	}

	headlines := make([]models.ReferenceHeadline, 0, len(items))
	for _, item := range items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		headlines = append(headlines, models.ReferenceHeadline{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			Category:  feed.Category,
			Published: item.Published,
		})
	}
	return headlines, nil
}

// newestFirst sorts items by publish time when every item carries one;
// otherwise the feed's own order is kept.
func newestFirst(items []*gofeed.Item) []*gofeed.Item {
	sorted := make([]*gofeed.Item, 0, len(items))
	for _, item := range items {
		if item != nil {
			sorted = append(sorted, item)
		}
	}
	for _, item := range sorted {
		if itemTime(item) == nil {
			return sorted
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return itemTime(sorted[i]).After(*itemTime(sorted[j]))
	})
	return sorted
}

// Get returns a copy of the headlines cached for category.
func (cache *ReferenceCache) Get(category string) []models.ReferenceHeadline {
	snap := cache.snapshot.Load()
	if snap == nil {
		return nil
	}
	headlines := snap.byCategory[category]
	out := make([]models.ReferenceHeadline, len(headlines))
	copy(out, headlines)
	return out
}

// IsStale is true when nothing is cached or the snapshot is older than the TTL.
func (cache *ReferenceCache) IsStale() bool {
	snap := cache.snapshot.Load()
	if snap == nil || snap.size == 0 {
		return true
	}
	return cache.now().Sub(snap.fetchedAt) > cache.ttl
}

// EnsureFresh refreshes synchronously when the cache is stale. Concurrent
// callers share a single refresh.
func (cache *ReferenceCache) EnsureFresh(ctx context.Context) error {
	if !cache.IsStale() {
		return nil
	}

	_, err, shared := cache.group.Do(referenceRefreshKey, func() (interface{}, error) {
		if !cache.IsStale() {
			return nil, nil
		}
		// one caller going away must not fail the refresh for the others
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), referenceRefreshLimit)
		defer cancel()
		return nil, cache.Refresh(refreshCtx)
	})

	if shared {
		cache.logger.Debug("Reference refresh shared between callers")
	}
	return err
}

func (cache *ReferenceCache) Size() int {
	snap := cache.snapshot.Load()
	if snap == nil {
		return 0
	}
	return snap.size
}

func (cache *ReferenceCache) LastFetchTime() (time.Time, bool) {
	snap := cache.snapshot.Load()
	if snap == nil {
		return time.Time{}, false
	}
	return snap.fetchedAt, true
}

// HasCategory reports whether category has a configured reference feed or
// headlines in the current snapshot.
func (cache *ReferenceCache) HasCategory(category string) bool {
	for _, feed := range cache.feeds {
		if feed.Category == category {
			return true
		}
	}
	if snap := cache.snapshot.Load(); snap != nil {
		_, ok := snap.byCategory[category]
		return ok
	}
	return false
}

// CategorySizes returns the number of cached headlines per category.
func (cache *ReferenceCache) CategorySizes() map[string]int {
	sizes := make(map[string]int, len(cache.feeds))
	snap := cache.snapshot.Load()
	for _, feed := range cache.feeds {
		if snap != nil {
			sizes[feed.Category] = len(snap.byCategory[feed.Category])
		} else {
			sizes[feed.Category] = 0
		}
	}
	return sizes
}

func (cache *ReferenceCache) RefreshCount() int64 {
	return cache.refreshes.Load()
}

func (cache *ReferenceCache) Status() models.ReferenceStatusResponse {
	status := models.ReferenceStatusResponse{
		Size:       cache.Size(),
		Categories: cache.CategorySizes(),
		TTLSeconds: cache.ttl.Seconds(),
		Stale:      cache.IsStale(),
	}
	if fetchedAt, ok := cache.LastFetchTime(); ok {
		status.LastFetchTime = &fetchedAt
		status.AgeSeconds = cache.now().Sub(fetchedAt).Seconds()
	}
	return status
}
