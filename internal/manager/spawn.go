package manager

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fiercefairy/PortOS-sub006/internal/env"
	"github.com/fiercefairy/PortOS-sub006/internal/events"
	"github.com/fiercefairy/PortOS-sub006/internal/history"
	"github.com/fiercefairy/PortOS-sub006/internal/jobdir"
	"github.com/fiercefairy/PortOS-sub006/internal/metrics"
	"github.com/fiercefairy/PortOS-sub006/internal/process"
	"github.com/fiercefairy/PortOS-sub006/internal/state"
	"github.com/fiercefairy/PortOS-sub006/internal/stream"
)

type launch struct {
	kind    Kind
	id      string
	taskID  string
	spec    process.Spec
	dialect stream.Dialect
	timeout time.Duration
}

// Spawn starts a long-lived agent job.
func (m *Manager) Spawn(req SpawnRequest) (SpawnResult, error) {
	l, err := m.prepare(KindAgent, req.JobID, req.Command, req.Args, req.WorkDir, req.Dialect)
	if err != nil {
		return SpawnResult{}, err
	}
	l.taskID = req.TaskID
	l.spec.Env = m.envM.Merge(env.FromMap(req.Env))
	l.spec.Input = []byte(req.Input)
	pid, err := m.start(l)
	if err != nil {
		return SpawnResult{}, err
	}
	return SpawnResult{JobID: l.id, PID: pid}, nil
}

// Run starts a one-shot CLI run. A positive TimeoutMs terminates the run
// once the wall-clock budget is spent.
func (m *Manager) Run(req RunRequest) (RunResult, error) {
	id := req.RunID
	if id == "" {
		id = uuid.NewString()
	}
	if req.TimeoutMs < 0 {
		return RunResult{}, fmt.Errorf("%w: negative timeout", ErrInvalidRequest)
	}
	l, err := m.prepare(KindRun, id, req.Command, req.Args, req.WorkDir, req.Dialect)
	if err != nil {
		return RunResult{}, err
	}
	l.spec.Env = m.envM.Merge(env.FromMap(req.Env))
	l.spec.Input = []byte(req.Input)
	l.timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	pid, err := m.start(l)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{RunID: id, PID: pid}, nil
}

// prepare validates a request without touching the OS.
func (m *Manager) prepare(kind Kind, id, command string, args []string, workDir string, dialect stream.Dialect) (launch, error) {
	if !jobdir.ValidID(id) {
		return launch{}, fmt.Errorf("%w: invalid job id %q", ErrInvalidRequest, id)
	}
	if !m.allow.Load().Permits(command) {
		return launch{}, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	d, ok := stream.ParseDialect(string(dialect))
	if !ok {
		return launch{}, fmt.Errorf("%w: unknown dialect %q", ErrInvalidRequest, dialect)
	}
	if workDir != "" {
		if fi, err := os.Stat(workDir); err != nil || !fi.IsDir() {
			return launch{}, fmt.Errorf("%w: work dir %q is not a directory", ErrInvalidRequest, workDir)
		}
	}
	return launch{
		kind:    kind,
		id:      id,
		spec:    process.Spec{Command: strings.TrimSpace(command), Args: args, WorkDir: workDir},
		dialect: stream.Resolve(d, command, args),
	}, nil
}

func (m *Manager) start(l launch) (int, error) {
	if m.closing.Load() {
		return 0, ErrShuttingDown
	}
	h := newHandler(l.id, l.taskID, l.kind, l.dialect)

	m.mu.Lock()
	if _, exists := m.jobs[l.id]; exists {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrDuplicateJob, l.id)
	}
	// Reserve the ID so a concurrent spawn of the same job is rejected.
	m.jobs[l.id] = h
	m.mu.Unlock()

	p, err := process.Start(l.spec, pipeWriter{h: h, typ: msgStdout}, pipeWriter{h: h, typ: msgStderr})
	if err != nil {
		m.remove(l.id, h)
		metrics.IncSpawnError(string(l.kind))
		m.log.Error("spawn failed", "job", l.id, "kind", l.kind, "command", l.spec.Command, "error", err)
		m.hub.Publish(events.Event{
			Type:  events.TypeSpawnError,
			JobID: l.id,
			Kind:  string(l.kind),
			Time:  time.Now(),
			Data:  events.SpawnError{JobID: l.id, Kind: string(l.kind), Message: err.Error()},
		})
		return 0, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	h.attach(p)

	if err := m.state.RecordSpawn(l.id, state.Entry{
		PID:       p.PID(),
		TaskID:    l.taskID,
		Kind:      string(l.kind),
		StartedAt: p.StartedAt(),
		StartUnix: p.StartUnixTime(),
	}); err != nil {
		m.log.Warn("state write failed", "job", l.id, "error", err)
	}
	metrics.IncSpawned(string(l.kind))
	m.mu.Lock()
	m.updateActiveLocked()
	m.mu.Unlock()
	m.log.Info("job started", "job", l.id, "kind", l.kind, "pid", p.PID(), "command", l.spec.Command, "dialect", l.dialect)

	go m.dispatch(h)
	go func() {
		info := p.Wait()
		h.msgs <- message{typ: msgExit, exit: info}
	}()

	if l.timeout > 0 {
		h.mu.Lock()
		if !h.exited {
			h.deadline = time.AfterFunc(l.timeout, func() {
				m.log.Warn("run exceeded its timeout", "job", l.id, "timeout", l.timeout)
				_ = m.terminateHandler(h)
			})
		}
		h.mu.Unlock()
	}
	return p.PID(), nil
}

// dispatch is the job's single consumer. It runs until the exit message,
// which exec guarantees arrives after all output has been copied.
func (m *Manager) dispatch(h *handler) {
	for msg := range h.msgs {
		switch msg.typ {
		case msgStdout:
			m.onStdout(h, msg.data)
		case msgStderr:
			m.onStderr(h, h.whole(msgStderr, msg.data))
		case msgExit:
			m.complete(h, msg.exit)
			return
		}
	}
}

func (m *Manager) onStdout(h *handler, data []byte) {
	if h.interp == nil {
		m.emit(h, "stdout", string(h.whole(msgStdout, data)))
		return
	}
	for _, line := range h.interp.Feed(data) {
		m.emit(h, "stdout", line+"\n")
	}
}

func (m *Manager) onStderr(h *handler, data []byte) {
	if len(data) > 0 {
		m.emit(h, "stderr", stderrMarker+string(data))
	}
}

func (m *Manager) emit(h *handler, streamName, text string) {
	if text == "" {
		return
	}
	h.appendOutput(text)
	m.hub.Publish(events.Event{
		Type:  events.TypeOutput,
		JobID: h.id,
		Kind:  string(h.kind),
		Time:  time.Now(),
		Data:  events.Output{JobID: h.id, Kind: string(h.kind), Stream: streamName, Text: text},
	})
}

// complete runs exactly once per job. Everything durable is written before
// the completed event is published.
func (m *Manager) complete(h *handler, info process.ExitInfo) {
	if !h.markExited() {
		return
	}
	m.emit(h, "stdout", string(h.drain(msgStdout)))
	m.onStderr(h, h.drain(msgStderr))
	if h.interp != nil {
		for _, line := range h.interp.Flush() {
			m.emit(h, "stdout", line+"\n")
		}
	}
	p := h.process()
	now := time.Now()
	duration := now.Sub(h.startedAt)

	output := h.outputString()
	if h.interp != nil {
		if res, ok := h.interp.FinalResult(); ok && res != "" {
			output = res
		}
	}
	if err := m.dir.WriteOutput(h.id, output); err != nil {
		m.log.Warn("output write failed", "job", h.id, "error", err)
	}
	success := info.Success()
	rec := history.Record{
		JobID:          h.id,
		TaskID:         h.taskID,
		Kind:           string(h.kind),
		PID:            p.PID(),
		ExitCode:       info.Code,
		Signal:         info.Signal,
		Success:        success,
		DurationMs:     duration.Milliseconds(),
		OutputByteSize: len(output),
		StartedAt:      h.startedAt.UTC(),
		CompletedAt:    now.UTC(),
	}
	if err := m.dir.MergeMetadata(h.id, rec); err != nil {
		m.log.Warn("metadata write failed", "job", h.id, "error", err)
	}
	if err := m.state.RecordCompletion(h.id, p.PID(), !success); err != nil {
		m.log.Warn("state write failed", "job", h.id, "error", err)
	}
	m.remove(h.id, h)

	m.hub.Publish(events.Event{
		Type:  events.TypeCompleted,
		JobID: h.id,
		Kind:  string(h.kind),
		Time:  now,
		Data: events.Completed{
			JobID:        h.id,
			TaskID:       h.taskID,
			Kind:         string(h.kind),
			ExitCode:     info.Code,
			Signal:       info.Signal,
			Success:      success,
			DurationMs:   rec.DurationMs,
			OutputLength: len(output),
		},
	})

	metrics.IncCompleted(string(h.kind), success)
	metrics.ObserveDuration(string(h.kind), duration.Seconds())
	metrics.ForgetJob(h.id, string(h.kind))
	m.log.Info("job completed", "job", h.id, "kind", h.kind, "pid", p.PID(),
		"exit_code", info.Code, "signal", info.Signal, "duration", duration, "output_bytes", len(output))

	m.exportHistory(history.EventCompleted, rec)
}
