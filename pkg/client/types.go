package client

import (
	"encoding/json"
	"time"
)

// SpawnRequest starts a long-lived agent job.
type SpawnRequest struct {
	JobID   string            `json:"jobId"`
	TaskID  string            `json:"taskId,omitempty"`
	Input   string            `json:"input,omitempty"`
	WorkDir string            `json:"workDir,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dialect string            `json:"dialect,omitempty"`
}

// RunRequest starts a one-shot run. The daemon generates RunID when empty.
type RunRequest struct {
	RunID     string            `json:"runId,omitempty"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Input     string            `json:"input,omitempty"`
	WorkDir   string            `json:"workDir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	TimeoutMs int64             `json:"timeoutMs,omitempty"`
	Dialect   string            `json:"dialect,omitempty"`
}

type SpawnResult struct {
	JobID string `json:"jobId"`
	PID   int    `json:"pid"`
}

type RunResult struct {
	RunID string `json:"runId"`
	PID   int    `json:"pid"`
}

type KillResult struct {
	JobID  string `json:"jobId"`
	PID    int    `json:"pid"`
	Signal string `json:"signal"`
}

// Stats is a resource sample for one job.
type Stats struct {
	JobID         string  `json:"jobId"`
	PID           int     `json:"pid"`
	Alive         bool    `json:"alive"`
	CPU           float64 `json:"cpu"`
	MemoryMB      float64 `json:"memoryMb"`
	OSState       string  `json:"osState"`
	RunningTimeMs int64   `json:"runningTimeMs"`
}

// ActiveJob is one entry of List.
type ActiveJob struct {
	JobID         string    `json:"jobId"`
	TaskID        string    `json:"taskId,omitempty"`
	Kind          string    `json:"kind"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"startedAt"`
	RunningTimeMs int64     `json:"runningTimeMs"`
	CPU           float64   `json:"cpu"`
	MemoryMB      float64   `json:"memoryMb"`
	OSState       string    `json:"osState"`
	Terminating   bool      `json:"terminating,omitempty"`
}

type Health struct {
	Status         string `json:"status"`
	ActiveJobCount int    `json:"activeJobCount"`
	ActiveRunCount int    `json:"activeRunCount"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Event is one server-sent event. Data is decoded with the typed accessors.
type Event struct {
	Type  string          `json:"type"`
	JobID string          `json:"jobId,omitempty"`
	Kind  string          `json:"kind,omitempty"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data"`
}

type OutputEvent struct {
	JobID  string `json:"jobId"`
	Kind   string `json:"kind"`
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

type CompletedEvent struct {
	JobID        string `json:"jobId"`
	TaskID       string `json:"taskId,omitempty"`
	Kind         string `json:"kind"`
	ExitCode     int    `json:"exitCode"`
	Signal       string `json:"signal,omitempty"`
	Success      bool   `json:"success"`
	DurationMs   int64  `json:"durationMs"`
	OutputLength int    `json:"outputLength"`
}

type SpawnErrorEvent struct {
	JobID   string `json:"jobId"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Orphan struct {
	JobID    string `json:"jobId"`
	TaskID   string `json:"taskId,omitempty"`
	Kind     string `json:"kind,omitempty"`
	PID      int    `json:"pid"`
	ExitCode int    `json:"exitCode"`
	Success  bool   `json:"success"`
	Orphaned bool   `json:"orphaned"`
}

type OrphanBatchEvent struct {
	Orphans []Orphan `json:"orphans"`
	Count   int      `json:"count"`
}
