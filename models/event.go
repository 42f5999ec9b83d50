package models

import "time"

// EventType tags a ProgressEvent.
type EventType string

const (
	EventStarting    EventType = "starting"
	EventTesting     EventType = "testing"
	EventFetching    EventType = "fetching"
	EventBatch       EventType = "batch"
	EventPaginating  EventType = "paginating"
	EventRateLimited EventType = "rate_limited"
	EventProcessing  EventType = "processing"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Terminal reports whether no further events follow t.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// ProgressEvent is one milestone of a running scrape. Which fields are set
// depends on Type: batch carries Total plus the freshly normalized items,
// rate_limited carries RetryAfterMs, complete carries Result, error carries Error.
type ProgressEvent struct {
	Type         EventType     `json:"type"`
	ScrapeID     string        `json:"scrapeId"`
	Message      string        `json:"message,omitempty"`
	Page         int           `json:"page,omitempty"`
	Total        int           `json:"total,omitempty"`
	Products     []Product     `json:"products,omitempty"`
	Collections  []Collection  `json:"collections,omitempty"`
	RetryAfterMs int64         `json:"retryAfterMs,omitempty"`
	Result       *ScrapeResult `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}
