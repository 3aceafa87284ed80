package models

import (
	"time"
)

type EnrichRequest struct {
	Articles []Article `json:"articles" validate:"required,min=1,dive"`
}

type EnrichResponse struct {
	RunID    string    `json:"run_id"`
	Articles []Article `json:"articles"`
	Groups   int       `json:"groups"`
	Matched  int       `json:"matched"`
}

type CategorizeRequest struct {
	Articles []Article `json:"articles" validate:"required,min=1,dive"`
}

type CategorizeResponse struct {
	RunID      string         `json:"run_id"`
	Articles   []Article      `json:"articles"`
	Categories map[string]int `json:"categories"`
	Defaulted  int            `json:"defaulted"`
}

// SummarizeRequest carries per-url metadata either as a map or as the
// article objects returned by enrich; the map wins when both name a url.
type SummarizeRequest struct {
	URLs     []string               `json:"urls" validate:"required,min=1,dive,required,url"`
	Metadata map[string]ArticleMeta `json:"metadata,omitempty"`
	Articles []Article              `json:"articles,omitempty"`
}

// MetadataByURL merges Articles and Metadata keyed by normalized url.
func (r SummarizeRequest) MetadataByURL() map[string]ArticleMeta {
	return MergeArticleMeta(r.Metadata, r.Articles)
}

type SummarizeResponse struct {
	RunID     string `json:"run_id"`
	Summary   string `json:"summary"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	TimedOut  bool   `json:"timed_out,omitempty"`
}

type FetchFeedsRequest struct {
	FeedURLs  []string `json:"feed_urls" validate:"required,min=1,dive,required,url"`
	Date      string   `json:"date" validate:"required"`
	TimeRange string   `json:"time_range" validate:"required"`
}

type FetchFeedsResponse struct {
	Articles []Article `json:"articles"`
	Count    int       `json:"count"`
}

type MatchFeedsRequest struct {
	Newspapers string `json:"newspapers" validate:"required"`
}

type MatchFeedsResponse struct {
	Feeds []string `json:"feeds"`
	Count int      `json:"count"`
}

// PipelineSocketRequest is the first frame a websocket client sends.
type PipelineSocketRequest struct {
	Action   string                 `json:"action" validate:"required,oneof=enrich summarize"`
	APIKey   string                 `json:"api_key,omitempty"`
	Articles []Article              `json:"articles,omitempty" validate:"omitempty,dive"`
	URLs     []string               `json:"urls,omitempty" validate:"omitempty,dive,required,url"`
	Metadata map[string]ArticleMeta `json:"metadata,omitempty"`
}

type RunStatusResponse struct {
	RunID      string           `json:"run_id"`
	RequestID  string           `json:"request_id"`
	Kind       RunKind          `json:"kind"`
	Status     RunStatus        `json:"status"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	Stages     []StageExecution `json:"stages"`
	Stats      RunStats         `json:"stats"`
	Error      string           `json:"error,omitempty"`
}

type ReferenceStatusResponse struct {
	Size          int            `json:"size"`
	Categories    map[string]int `json:"categories"`
	LastFetchTime *time.Time     `json:"last_fetch_time,omitempty"`
	AgeSeconds    float64        `json:"age_seconds"`
	TTLSeconds    float64        `json:"ttl_seconds"`
	Stale         bool           `json:"stale"`
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Uptime    float64           `json:"uptime_seconds"`
}

type MetricsResponse struct {
	Service         string                 `json:"service"`
	Timestamp       time.Time              `json:"timestamp"`
	Pipeline        map[string]interface{} `json:"pipeline"`
	ActiveRuns      int                    `json:"active_runs"`
	SystemResources SystemResourcesInfo    `json:"system_resources"`
}

type SystemResourcesInfo struct {
	HeapAllocMB    float64 `json:"heap_alloc_mb"`
	MemoryUsage    float64 `json:"memory_usage_percent"`
	GoroutineCount int     `json:"goroutine_count"`
}
