package manager

import (
	"time"

	"github.com/fiercefairy/PortOS-sub006/internal/events"
	"github.com/fiercefairy/PortOS-sub006/internal/history"
	"github.com/fiercefairy/PortOS-sub006/internal/metrics"
	"github.com/fiercefairy/PortOS-sub006/internal/process"
)

// StartReconciler schedules a single ReconcileOrphans pass after the
// configured delay.
func (m *Manager) StartReconciler() {
	m.reconMu.Lock()
	defer m.reconMu.Unlock()
	if m.reconTimer != nil || m.closing.Load() {
		return
	}
	m.reconTimer = time.AfterFunc(m.orphanDelay, func() { m.ReconcileOrphans() })
}

// StopReconciler cancels a pending reconcile pass.
func (m *Manager) StopReconciler() {
	m.reconMu.Lock()
	defer m.reconMu.Unlock()
	if m.reconTimer != nil {
		m.reconTimer.Stop()
	}
}

// ReconcileOrphans checks every persisted process that this daemon does not
// track. Dead ones are recorded as orphaned and announced in one batch;
// live ones are left in the state store. It returns the orphans found.
func (m *Manager) ReconcileOrphans() []events.Orphan {
	entries := m.state.Processes()
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	dead := make(map[string]int)
	live := 0
	for id, e := range entries {
		if m.get(id) != nil {
			continue
		}
		if process.Alive(e.PID, e.StartUnix) {
			live++
			m.log.Warn("untracked process from a previous run is still alive", "job", id, "pid", e.PID)
			continue
		}
		dead[id] = e.PID
	}
	if len(dead) == 0 {
		return nil
	}

	// Only entries still holding the PID found dead are removed; an ID
	// re-spawned meanwhile keeps its new entry and is not announced.
	ids, err := m.state.RecordOrphans(dead)
	if err != nil {
		m.log.Warn("state write failed", "error", err)
	}
	if len(ids) == 0 {
		return nil
	}

	orphans := make([]events.Orphan, 0, len(ids))
	recs := make([]history.Record, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		rec := history.Record{
			JobID:       id,
			TaskID:      e.TaskID,
			Kind:        e.Kind,
			PID:         e.PID,
			ExitCode:    -1,
			Orphaned:    true,
			StartedAt:   e.StartedAt.UTC(),
			CompletedAt: now.UTC(),
		}
		if !e.StartedAt.IsZero() {
			rec.DurationMs = now.Sub(e.StartedAt).Milliseconds()
		}
		if err := m.dir.MergeMetadata(id, rec); err != nil {
			m.log.Warn("metadata write failed", "job", id, "error", err)
		}
		recs = append(recs, rec)
		orphans = append(orphans, events.Orphan{
			JobID:    id,
			TaskID:   e.TaskID,
			Kind:     e.Kind,
			PID:      e.PID,
			ExitCode: -1,
			Orphaned: true,
		})
	}

	m.hub.Publish(events.Event{
		Type: events.TypeOrphanBatch,
		Time: now,
		Data: events.OrphanBatch{Orphans: orphans, Count: len(orphans)},
	})
	metrics.AddOrphans(len(orphans))
	m.log.Info("orphaned jobs reconciled", "count", len(orphans), "still_alive", live)
	m.exportHistory(history.EventOrphaned, recs...)
	return orphans
}
