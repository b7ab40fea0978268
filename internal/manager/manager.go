package manager

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fiercefairy/PortOS-sub006/internal/env"
	"github.com/fiercefairy/PortOS-sub006/internal/events"
	"github.com/fiercefairy/PortOS-sub006/internal/history"
	"github.com/fiercefairy/PortOS-sub006/internal/jobdir"
	"github.com/fiercefairy/PortOS-sub006/internal/metrics"
	"github.com/fiercefairy/PortOS-sub006/internal/process"
	"github.com/fiercefairy/PortOS-sub006/internal/state"
)

const (
	DefaultGracePeriod      = 5 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
	DefaultOrphanCheckDelay = 2 * time.Second

	historyTimeout = 5 * time.Second
)

// Options tune a Manager. Zero durations take the defaults above.
type Options struct {
	AllowedCommands  []string
	GracePeriod      time.Duration
	DrainTimeout     time.Duration
	OrphanCheckDelay time.Duration
	Env              *env.Env
	Logger           *slog.Logger
}

// Manager is the process registry. It owns every tracked job and is the
// only writer of the state store and job directories.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*handler

	allow atomic.Pointer[process.AllowList]
	state *state.Store
	dir   *jobdir.Dir
	hub   *events.Hub
	envM  *env.Env
	log   *slog.Logger

	grace       time.Duration
	drain       time.Duration
	orphanDelay time.Duration
	startedAt   time.Time

	sinksMu   sync.RWMutex
	histSinks []history.Sink

	reconMu     sync.Mutex
	reconTimer  *time.Timer
	closing     atomic.Bool
	escalations atomic.Int64

	sendSignal func(*process.Process, syscall.Signal) error
}

func New(st *state.Store, dir *jobdir.Dir, hub *events.Hub, opts Options) *Manager {
	m := &Manager{
		jobs:        make(map[string]*handler),
		state:       st,
		dir:         dir,
		hub:         hub,
		envM:        opts.Env,
		log:         opts.Logger,
		grace:       opts.GracePeriod,
		drain:       opts.DrainTimeout,
		orphanDelay: opts.OrphanCheckDelay,
		startedAt:   time.Now(),
		sendSignal:  (*process.Process).Signal,
	}
	m.SetAllowedCommands(opts.AllowedCommands)
	if m.envM == nil {
		m.envM = env.New()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.grace <= 0 {
		m.grace = DefaultGracePeriod
	}
	if m.drain <= 0 {
		m.drain = DefaultDrainTimeout
	}
	if m.orphanDelay <= 0 {
		m.orphanDelay = DefaultOrphanCheckDelay
	}
	return m
}

// SetAllowedCommands replaces the allow-list. Jobs already running are
// not affected.
func (m *Manager) SetAllowedCommands(commands []string) {
	al := process.NewAllowList(commands)
	m.allow.Store(&al)
}

// SetHistorySinks configures external history sinks.
// Passing nil or no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.sinksMu.Lock()
	m.histSinks = append([]history.Sink(nil), sinks...)
	m.sinksMu.Unlock()
}

func (m *Manager) exportHistory(typ history.EventType, recs ...history.Record) {
	m.sinksMu.RLock()
	sinks := append([]history.Sink(nil), m.histSinks...)
	m.sinksMu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, rec := range recs {
		evt := history.Event{Type: typ, OccurredAt: now, Record: rec}
		for _, s := range sinks {
			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			if err := s.Send(ctx, evt); err != nil {
				m.log.Warn("history export failed", "job", rec.JobID, "event", typ, "error", err)
			}
			cancel()
		}
	}
}

func (m *Manager) get(id string) *handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// tracked returns a started handler for id, or nil.
func (m *Manager) tracked(id string) *handler {
	h := m.get(id)
	if h == nil || h.pending() {
		return nil
	}
	return h
}

// remove deletes id only if it still maps to h. A job ID reused after a
// ForceKill must not be removed by the old job's exit path.
func (m *Manager) remove(id string, h *handler) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.jobs[id]; ok && cur == h {
		delete(m.jobs, id)
		m.updateActiveLocked()
		return true
	}
	return false
}

func (m *Manager) handlers() []*handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*handler, 0, len(m.jobs))
	for _, h := range m.jobs {
		out = append(out, h)
	}
	return out
}

func (m *Manager) updateActiveLocked() {
	counts := map[Kind]int{KindAgent: 0, KindRun: 0}
	for _, h := range m.jobs {
		counts[h.kind]++
	}
	for k, n := range counts {
		metrics.SetActive(string(k), n)
	}
}

// Count returns the number of registered jobs, including spawns in flight.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Escalations returns how many times a grace window expired and the
// forceful signal was sent.
func (m *Manager) Escalations() int64 { return m.escalations.Load() }

// Health summarizes the registry.
func (m *Manager) Health() Health {
	h := Health{Status: "ok", UptimeSeconds: int64(time.Since(m.startedAt).Seconds())}
	if m.closing.Load() {
		h.Status = "shutting_down"
	}
	for _, hd := range m.handlers() {
		if hd.pending() {
			continue
		}
		switch hd.kind {
		case KindRun:
			h.ActiveRunCount++
		default:
			h.ActiveJobCount++
		}
	}
	return h
}

// Shutdown terminates every job and waits until the registry drains or the
// drain window elapses. It returns the number of jobs still registered.
func (m *Manager) Shutdown(ctx context.Context) int {
	m.closing.Store(true)
	m.StopReconciler()
	n := m.TerminateAll()
	m.log.Info("shutting down", "terminating", n, "drain", m.drain)

	deadline := time.NewTimer(m.drain)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for m.Count() > 0 {
		select {
		case <-ctx.Done():
			return m.closeSinks(m.Count())
		case <-deadline.C:
			left := m.Count()
			m.log.Warn("drain window elapsed with jobs still running", "remaining", left)
			return m.closeSinks(left)
		case <-tick.C:
		}
	}
	return m.closeSinks(0)
}

func (m *Manager) closeSinks(remaining int) int {
	m.sinksMu.Lock()
	sinks := m.histSinks
	m.histSinks = nil
	m.sinksMu.Unlock()
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return remaining
}
