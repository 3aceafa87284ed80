package models

import "time"

type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusDone    StepStatus = "done"
	StepStatusSkipped StepStatus = "skipped"
	StepStatusError   StepStatus = "error"
)

// Stage names used in stream events and run records.
const (
	StagePrefilter  = "prefilter"
	StageCluster    = "cluster"
	StageMatch      = "match"
	StageSummarize  = "summarize"
	StageCategorize = "categorize"
	StageWave       = "wave"
	StageArticle    = "article"
	StageComplete   = "complete"
	StageError      = "error"
)

// StreamEvent is one ordered progress message of a streaming run. A stream
// always ends with exactly one StageComplete or StageError event.
type StreamEvent struct {
	RunID     string                 `json:"run_id,omitempty"`
	Step      string                 `json:"step"`
	Status    StepStatus             `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Articles  []Article              `json:"articles,omitempty"`
	Summary   *string                `json:"summary,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EmitFunc receives stream events in order. Implementations must not block
// for long; the pipeline calls it from its own goroutine.
type EmitFunc func(event StreamEvent)

func NewStreamEvent(step string, status StepStatus, message string) StreamEvent {
	return StreamEvent{
		Step:      step,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (e StreamEvent) WithData(data map[string]interface{}) StreamEvent {
	e.Data = data
	return e
}

func (e StreamEvent) WithRunID(runID string) StreamEvent {
	e.RunID = runID
	return e
}

func NewCompleteArticlesEvent(articles []Article) StreamEvent {
	event := NewStreamEvent(StageComplete, StepStatusDone, "")
	event.Articles = articles
	return event
}

func NewCompleteSummaryEvent(summary string) StreamEvent {
	event := NewStreamEvent(StageComplete, StepStatusDone, "")
	event.Summary = &summary
	return event
}

func NewErrorEvent(err error) StreamEvent {
	return NewStreamEvent(StageError, StepStatusError, err.Error())
}

// IsTerminal reports whether the event closes a stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Step == StageComplete || e.Step == StageError
}
