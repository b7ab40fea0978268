package manager

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fiercefairy/PortOS-sub006/internal/jobdir"
	"github.com/fiercefairy/PortOS-sub006/internal/metrics"
	"github.com/fiercefairy/PortOS-sub006/internal/process"
)

const osStateDead = "dead"

// Query samples resource usage for a tracked job. A job whose process the
// OS no longer reports comes back with Alive false.
func (m *Manager) Query(id string) (Stats, error) {
	h := m.tracked(id)
	if h == nil {
		return Stats{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snap, ok := h.snapshot()
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	st := Stats{JobID: id, PID: snap.pid, RunningTimeMs: time.Since(snap.startedAt).Milliseconds()}
	u, err := process.Sample(snap.pid)
	if err != nil {
		if errors.Is(err, process.ErrDead) {
			st.OSState = osStateDead
			return st, nil
		}
		return Stats{}, err
	}
	st.Alive = true
	st.CPU = u.CPUPercent
	st.MemoryMB = u.MemoryMB
	st.OSState = u.State
	metrics.SetJobUsage(id, string(snap.kind), u.CPUPercent, u.MemoryMB)
	return st, nil
}

// ListActive returns every started job, oldest first.
func (m *Manager) ListActive() []ActiveJob {
	var out []ActiveJob
	now := time.Now()
	for _, h := range m.handlers() {
		snap, ok := h.snapshot()
		if !ok {
			continue
		}
		aj := ActiveJob{
			JobID:         snap.id,
			TaskID:        snap.taskID,
			Kind:          snap.kind,
			PID:           snap.pid,
			StartedAt:     snap.startedAt,
			RunningTimeMs: now.Sub(snap.startedAt).Milliseconds(),
			Terminating:   snap.terminating,
			OSState:       osStateDead,
		}
		if u, err := process.Sample(snap.pid); err == nil {
			aj.CPU = u.CPUPercent
			aj.MemoryMB = u.MemoryMB
			aj.OSState = u.State
			metrics.SetJobUsage(snap.id, string(snap.kind), u.CPUPercent, u.MemoryMB)
		}
		out = append(out, aj)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Output returns the live accumulator for a tracked job, or the persisted
// output.txt for a finished one.
func (m *Manager) Output(id string) (string, error) {
	if h := m.tracked(id); h != nil {
		return h.outputString(), nil
	}
	out, err := m.dir.ReadOutput(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, jobdir.ErrInvalidID) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", err
	}
	return out, nil
}
