package history

import (
	"context"
	"time"
)

// EventType defines the kind of job outcome being exported.
type EventType string

const (
	EventCompleted EventType = "completed"
	EventOrphaned  EventType = "orphaned"
)

// Record is the durable outcome of one job, as written to metadata.json and
// exported to sinks.
type Record struct {
	JobID          string    `json:"jobId"`
	TaskID         string    `json:"taskId,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	PID            int       `json:"pid"`
	ExitCode       int       `json:"exitCode"`
	Signal         string    `json:"signal,omitempty"`
	Success        bool      `json:"success"`
	Orphaned       bool      `json:"orphaned,omitempty"`
	DurationMs     int64     `json:"durationMs"`
	OutputByteSize int       `json:"outputByteSize"`
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt"`
}

// Event represents a job outcome to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
