package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type RunKind string

const (
	RunKindEnrich     RunKind = "enrich"
	RunKindSummarize  RunKind = "summarize"
	RunKindCategorize RunKind = "categorize"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// StageExecution records one stage of a run.
type StageExecution struct {
	Stage     string         `json:"stage"`
	Status    StepStatus     `json:"status"`
	StartTime time.Time      `json:"start_time"`
	Duration  time.Duration  `json:"duration"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type RunStats struct {
	ArticlesIn          int  `json:"articles_in"`
	Groups              int  `json:"groups"`
	ExactDuplicates     int  `json:"exact_duplicates"`
	OfficialMatches     int  `json:"official_matches"`
	SummariesSucceeded  int  `json:"summaries_succeeded"`
	SummariesFailed     int  `json:"summaries_failed"`
	CompletionCalls     int  `json:"completion_calls"`
	CategoriesFallback  int  `json:"categories_fallback"`
	WavesCompleted      int  `json:"waves_completed"`
	ProcessedArticles   int  `json:"processed_articles"`
	TotalArticlesQueued int  `json:"total_articles_queued"`
	TimedOut            bool `json:"timed_out,omitempty"`
}

// RunContext is the registry entry for one pipeline run. It is shared between
// the goroutine doing the work and status readers, so access goes through
// its methods.
type RunContext struct {
	mu sync.RWMutex

	ID        string           `json:"id"`
	RequestID string           `json:"request_id"`
	Kind      RunKind          `json:"kind"`
	Status    RunStatus        `json:"status"`
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Stages    []StageExecution `json:"stages"`
	Stats     RunStats         `json:"stats"`
	Error     string           `json:"error,omitempty"`
}

func NewRunContext(kind RunKind, requestID string) *RunContext {
	return &RunContext{
		ID:        GenerateRunID(),
		RequestID: requestID,
		Kind:      kind,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Stages:    []StageExecution{},
	}
}

func (rc *RunContext) MarkProcessing() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Status = RunStatusProcessing
}

func (rc *RunContext) MarkCompleted() {
	rc.finish(RunStatusCompleted, nil)
}

func (rc *RunContext) MarkFailed(err error) {
	rc.finish(RunStatusFailed, err)
}

func (rc *RunContext) MarkCancelled(err error) {
	rc.finish(RunStatusCancelled, err)
}

func (rc *RunContext) finish(status RunStatus, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.EndTime != nil {
		return
	}
	now := time.Now()
	rc.Status = status
	rc.EndTime = &now
	if err != nil {
		rc.Error = err.Error()
	}
}

func (rc *RunContext) AddStage(stage string, status StepStatus, start time.Time, output map[string]any, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	execution := StageExecution{
		Stage:     stage,
		Status:    status,
		StartTime: start,
		Duration:  time.Since(start),
		Output:    output,
	}
	if err != nil {
		execution.Status = StepStatusError
		execution.Error = err.Error()
	}
	rc.Stages = append(rc.Stages, execution)
}

// UpdateStats applies fn to the run's counters under the lock.
func (rc *RunContext) UpdateStats(fn func(stats *RunStats)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	fn(&rc.Stats)
}

func (rc *RunContext) GetDuration() time.Duration {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.EndTime != nil {
		return rc.EndTime.Sub(rc.StartTime)
	}
	return time.Since(rc.StartTime)
}

func (rc *RunContext) IsFinished() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.EndTime != nil
}

// Snapshot returns a copy that is safe to serialize.
func (rc *RunContext) Snapshot() RunStatusResponse {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	stages := make([]StageExecution, len(rc.Stages))
	copy(stages, rc.Stages)

	end := rc.EndTime
	duration := time.Since(rc.StartTime)
	if end != nil {
		duration = end.Sub(rc.StartTime)
	}

	return RunStatusResponse{
		RunID:      rc.ID,
		RequestID:  rc.RequestID,
		Kind:       rc.Kind,
		Status:     rc.Status,
		StartTime:  rc.StartTime,
		EndTime:    end,
		DurationMs: duration.Milliseconds(),
		Stages:     stages,
		Stats:      rc.Stats,
		Error:      rc.Error,
	}
}

type ProgressStatus string

const (
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
)

// ProgressFunc is invoked before and after each summarized article.
type ProgressFunc func(completed, total int, url string, status ProgressStatus)

// SummarizationResult holds exactly one of a rendered block or an error.
type SummarizationResult struct {
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewSummarySuccess(url, category, text string) SummarizationResult {
	return SummarizationResult{URL: url, Category: category, Text: text}
}

func NewSummaryFailure(url, errMsg string) SummarizationResult {
	return SummarizationResult{URL: url, Error: errMsg}
}

func (r SummarizationResult) OK() bool {
	return r.Error == ""
}

type SummaryReport struct {
	Text      string                `json:"summary"`
	Results   []SummarizationResult `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

func GenerateRequestID() string {
	return uuid.New().String()
}

func GenerateRunID() string {
	return uuid.New().String()
}
