package pipeline

import (
	"time"

	"github.com/mtzanidakis/erevna/internal/stage"
)

// Request describes one research run. RunID may be set by callers that need
// to know the id before the run finishes (the async web endpoint); it is
// generated otherwise.
type Request struct {
	Topic      string `json:"topic"`
	Query      string `json:"query,omitempty"`
	MaxSources int    `json:"max_sources,omitempty"`
	Format     string `json:"format,omitempty"`
	RunID      string `json:"-"`
}

// Step statuses. A run always reports one StepResult per stage, in order;
// stages that never ran because their input stage failed report an error.
const (
	StepCompleted = "completed"
	StepError     = "error"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial_failure"
	StatusFailure = "failure"
)

// StepResult is the transcript entry for one stage of a run.
type StepResult struct {
	Step     string         `json:"step"`
	Agent    string         `json:"agent"`
	Status   string         `json:"status"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration float64        `json:"duration"` // seconds, including retries
}

// RunReport is the full outcome of one run.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Topic       string        `json:"topic"`
	Status      string        `json:"status"`
	Steps       []StepResult  `json:"steps"`
	Report      *stage.Report `json:"report,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// EventPublisher receives run lifecycle events. Implementations must not
// block; a nil publisher disables events.
type EventPublisher interface {
	PublishRunEvent(runID, kind string, payload map[string]any)
}
