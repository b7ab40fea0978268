package manager

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/fiercefairy/PortOS-sub006/internal/metrics"
	"github.com/fiercefairy/PortOS-sub006/internal/process"
)

// Terminate asks the job to stop with SIGTERM and arms the SIGKILL
// escalation. It returns without waiting for the exit.
func (m *Manager) Terminate(id string) error {
	h := m.tracked(id)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.terminateHandler(h)
}

func (m *Manager) terminateHandler(h *handler) error {
	p := h.process()
	if p == nil || h.hasExited() {
		return nil
	}

	metrics.IncSignal("SIGTERM")
	m.log.Info("terminating job", "job", h.id, "pid", p.PID(), "grace", m.grace)
	if err := m.sendSignal(p, syscall.SIGTERM); err != nil && !errors.Is(err, process.ErrDead) {
		m.log.Warn("SIGTERM failed", "job", h.id, "pid", p.PID(), "error", err)
		return err
	}

	// The escalation is armed only once SIGTERM went out.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return nil
	}
	h.terminating = true
	if h.killTimer == nil {
		h.killTimer = time.AfterFunc(m.grace, func() { m.escalate(h) })
	}
	return nil
}

// escalate fires when the grace window runs out. A handler that exited, or
// whose ID now belongs to another job, is left alone.
func (m *Manager) escalate(h *handler) {
	if m.get(h.id) != h || h.hasExited() {
		return
	}
	p := h.process()
	if p == nil {
		return
	}
	m.escalations.Add(1)
	metrics.IncSignal("SIGKILL")
	m.log.Warn("grace window elapsed, sending SIGKILL", "job", h.id, "pid", p.PID())
	if err := m.sendSignal(p, syscall.SIGKILL); err != nil && !errors.Is(err, process.ErrDead) {
		m.log.Warn("SIGKILL failed", "job", h.id, "pid", p.PID(), "error", err)
	}
}

// ForceKill sends SIGKILL at once and drops the job from the registry and
// state store. Completion still arrives through the exit path.
func (m *Manager) ForceKill(id string) (KillResult, error) {
	h := m.tracked(id)
	if h == nil {
		return KillResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	h.mu.Lock()
	p := h.proc
	h.terminating = true
	if h.killTimer != nil {
		h.killTimer.Stop()
		h.killTimer = nil
	}
	h.mu.Unlock()

	metrics.IncSignal("SIGKILL")
	if err := m.sendSignal(p, syscall.SIGKILL); err != nil && !errors.Is(err, process.ErrDead) {
		m.log.Warn("SIGKILL failed", "job", id, "pid", p.PID(), "error", err)
	}
	m.remove(id, h)
	if err := m.state.RemoveProcess(id, p.PID()); err != nil {
		m.log.Warn("state write failed", "job", id, "error", err)
	}
	m.log.Info("job force-killed", "job", id, "pid", p.PID())
	return KillResult{JobID: id, PID: p.PID(), Signal: "SIGKILL"}, nil
}

// TerminateAll terminates every tracked job and returns how many were
// signalled.
func (m *Manager) TerminateAll() int {
	n := 0
	for _, h := range m.handlers() {
		if h.pending() {
			continue
		}
		if err := m.terminateHandler(h); err == nil {
			n++
		}
	}
	return n
}
