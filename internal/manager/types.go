package manager

import (
	"time"

	"github.com/fiercefairy/PortOS-sub006/internal/stream"
)

// Kind separates long-lived agents from one-shot runs.
type Kind string

const (
	KindAgent Kind = "agent"
	KindRun   Kind = "run"
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
	// Dialect overrides output interpretation; empty means detect.
	Dialect stream.Dialect `json:"dialect,omitempty"`
}

// RunRequest starts a one-shot CLI run. An empty RunID is generated.
type RunRequest struct {
	RunID     string            `json:"runId,omitempty"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Input     string            `json:"input,omitempty"`
	WorkDir   string            `json:"workDir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	TimeoutMs int64             `json:"timeoutMs,omitempty"`
	Dialect   stream.Dialect    `json:"dialect,omitempty"`
}

// SpawnResult identifies a started job.
type SpawnResult struct {
	JobID string `json:"jobId"`
	PID   int    `json:"pid"`
}

// RunResult identifies a started run.
type RunResult struct {
	RunID string `json:"runId"`
	PID   int    `json:"pid"`
}

// KillResult reports a forced kill.
type KillResult struct {
	JobID  string `json:"jobId"`
	PID    int    `json:"pid"`
	Signal string `json:"signal"`
}

// Stats is a resource sample for one tracked job. Alive is false when the
// OS no longer reports the process.
type Stats struct {
	JobID         string  `json:"jobId"`
	PID           int     `json:"pid"`
	Alive         bool    `json:"alive"`
	CPU           float64 `json:"cpu"`
	MemoryMB      float64 `json:"memoryMb"`
	OSState       string  `json:"osState"`
	RunningTimeMs int64   `json:"runningTimeMs"`
}

// ActiveJob is one row of ListActive.
type ActiveJob struct {
	JobID         string    `json:"jobId"`
	TaskID        string    `json:"taskId,omitempty"`
	Kind          Kind      `json:"kind"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"startedAt"`
	RunningTimeMs int64     `json:"runningTimeMs"`
	CPU           float64   `json:"cpu"`
	MemoryMB      float64   `json:"memoryMb"`
	OSState       string    `json:"osState"`
	Terminating   bool      `json:"terminating,omitempty"`
}

// Health is the liveness summary.
type Health struct {
	Status         string `json:"status"`
	ActiveJobCount int    `json:"activeJobCount"`
	ActiveRunCount int    `json:"activeRunCount"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
}
