// Package state persists the supervisor's record of running jobs and its
// lifetime counters so a restarted daemon can find processes it lost.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// Version is the only record layout this package reads and writes.
const Version = 1

// ErrCorruptState reports a state file that exists but cannot be trusted.
var ErrCorruptState = errors.New("corrupt state file")

// Entry is the persisted identity of one running job.
type Entry struct {
	PID       int       `json:"pid"`
	TaskID    string    `json:"taskId,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	// StartUnix is the OS start time of PID, used to detect PID reuse.
	StartUnix int64 `json:"startUnix,omitempty"`
}

// Stats are monotonic lifetime counters.
type Stats struct {
	Spawned   int64 `json:"spawned"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Orphaned  int64 `json:"orphaned"`
}

// State is the whole persisted record.
type State struct {
	Version   int              `json:"version"`
	Processes map[string]Entry `json:"processes"`
	Stats     Stats            `json:"stats"`
}

// Empty returns the default record.
func Empty() State {
	return State{Version: Version, Processes: map[string]Entry{}}
}

func (s State) clone() State {
	c := s
	c.Processes = maps.Clone(s.Processes)
	if c.Processes == nil {
		c.Processes = map[string]Entry{}
	}
	return c
}

// Store owns the state file. Every mutation is a read-modify-write under one
// mutex followed by an atomic replace of the file.
type Store struct {
	mu   sync.Mutex
	path string
	st   State
	log  *slog.Logger
	now  func() time.Time
}

// Open loads path, quarantining it when corrupt. Only a failure to create
// the parent directory is returned; every other problem degrades to the
// empty state.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &Store{path: path, log: log, now: time.Now}
	st, err := Load(path)
	switch {
	case err == nil:
		s.st = st
	case errors.Is(err, os.ErrNotExist):
		s.st = Empty()
	case errors.Is(err, ErrCorruptState):
		backup := s.quarantine()
		log.Warn("state file corrupt, starting empty", "path", path, "backup", backup, "error", err)
		s.st = Empty()
	default:
		log.Warn("state file unreadable, starting empty", "path", path, "error", err)
		s.st = Empty()
	}
	return s, nil
}

// Load reads and validates a state file.
func Load(path string) (State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	return decode(b)
}

func decode(b []byte) (State, error) {
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	switch st.Version {
	case 0:
		st.Version = Version
	case Version:
	default:
		return State{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, st.Version)
	}
	if st.Processes == nil {
		st.Processes = map[string]Entry{}
	}
	for id, e := range st.Processes {
		if id == "" || e.PID <= 0 {
			delete(st.Processes, id)
		}
	}
	return st, nil
}

func (s *Store) quarantine() string {
	backup := s.path + ".corrupt-" + s.now().UTC().Format("20060102T150405.000000000Z")
	if err := os.Rename(s.path, backup); err != nil {
		s.log.Warn("quarantine state file", "path", s.path, "error", err)
		return ""
	}
	return backup
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Snapshot returns a deep copy of the current record.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Processes returns a copy of the persisted process table.
func (s *Store) Processes() map[string]Entry {
	return s.Snapshot().Processes
}

// Stats returns the lifetime counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Stats
}

// RecordSpawn adds a process entry and bumps the spawned counter.
func (s *Store) RecordSpawn(jobID string, e Entry) error {
	return s.update(func(st *State) {
		st.Processes[jobID] = e
		st.Stats.Spawned++
	})
}

// RecordCompletion removes the entry for jobID if it still belongs to pid
// and counts the completion.
func (s *Store) RecordCompletion(jobID string, pid int, failed bool) error {
	return s.update(func(st *State) {
		if e, ok := st.Processes[jobID]; ok && e.PID == pid {
			delete(st.Processes, jobID)
		}
		st.Stats.Completed++
		if failed {
			st.Stats.Failed++
		}
	})
}

// RemoveProcess drops the entry for jobID if it belongs to pid.
func (s *Store) RemoveProcess(jobID string, pid int) error {
	return s.update(func(st *State) {
		if e, ok := st.Processes[jobID]; ok && e.PID == pid {
			delete(st.Processes, jobID)
		}
	})
}

// RecordOrphans removes each entry in dead (job ID to the PID found dead)
// whose persisted PID still matches, and adds the number removed to the
// orphaned counter in a single rewrite. It returns the removed IDs, sorted.
func (s *Store) RecordOrphans(dead map[string]int) ([]string, error) {
	if len(dead) == 0 {
		return nil, nil
	}
	var removed []string
	err := s.update(func(st *State) {
		for id, pid := range dead {
			if e, ok := st.Processes[id]; ok && e.PID == pid {
				delete(st.Processes, id)
				removed = append(removed, id)
			}
		}
		st.Stats.Orphaned += int64(len(removed))
	})
	sort.Strings(removed)
	return removed, err
}

// update applies fn to the in-memory record and persists it. The in-memory
// record keeps the change even when the write fails.
func (s *Store) update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := renameio.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
