package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// Status is the lifecycle phase of the controller's task.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusPolling    Status = "polling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s ends a task.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// State is a read-only copy of the controller's task.
type State struct {
	TaskID        string                   `json:"task_id,omitempty"`
	LastTaskID    string                   `json:"last_task_id,omitempty"`
	Status        Status                   `json:"status"`
	Progress      int                      `json:"progress"`
	Message       string                   `json:"message,omitempty"`
	Results       []remote.AssetDescriptor `json:"results,omitempty"`
	PollFailures  int                      `json:"poll_failures,omitempty"`
	LastPollError string                   `json:"last_poll_error,omitempty"`
	Params        remote.Params            `json:"params"`
	StartedAt     time.Time                `json:"started_at,omitzero"`
	FinishedAt    time.Time                `json:"finished_at,omitzero"`
}

// Busy reports whether a task is in flight.
func (s State) Busy() bool {
	return s.Status == StatusSubmitting || s.Status == StatusPolling
}

func (s State) clone() State {
	if s.Results != nil {
		s.Results = append([]remote.AssetDescriptor(nil), s.Results...)
	}
	return s
}

// Parameter limits, matching the sliders of the generation form.
const (
	DefaultDuration = 10
	MinDuration     = 1
	MaxDuration     = 30
	DefaultCount    = 1
	MaxCount        = 5
)

// Normalize trims free text and fills in default duration and count.
func Normalize(p remote.Params) remote.Params {
	p.Description = strings.TrimSpace(p.Description)
	if p.Duration == 0 {
		p.Duration = DefaultDuration
	}
	if p.Count == 0 {
		p.Count = DefaultCount
	}
	return p
}

// Validate requires at least one usable input: free text, a melody or a
// facet. Whitespace-only values count as empty. Zero duration and count
// mean the defaults.
func Validate(p remote.Params) error {
	if strings.TrimSpace(p.Description) == "" && !p.HasMelody() && p.Facets.Empty() {
		return &ValidationError{Reason: "enter a description, choose a facet or attach a melody"}
	}
	if p.Duration != 0 && (p.Duration < MinDuration || p.Duration > MaxDuration) {
		return &ValidationError{
			Field:  "duration",
			Reason: fmt.Sprintf("must be between %d and %d seconds", MinDuration, MaxDuration),
		}
	}
	if p.Count != 0 && (p.Count < 1 || p.Count > MaxCount) {
		return &ValidationError{
			Field:  "num_generations",
			Reason: fmt.Sprintf("must be between 1 and %d", MaxCount),
		}
	}
	return nil
}
