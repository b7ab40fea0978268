// Package events fans supervisor notifications out to live subscribers.
package events

import (
	"sync"
	"time"
)

// Type identifies an event on the wire. The values double as SSE event names.
type Type string

const (
	TypeOutput      Type = "output"
	TypeCompleted   Type = "completed"
	TypeSpawnError  Type = "spawnError"
	TypeOrphanBatch Type = "orphanBatch"
)

// Event is one notification. Data holds one of the payload structs below.
type Event struct {
	Type  Type      `json:"type"`
	JobID string    `json:"jobId,omitempty"`
	Kind  string    `json:"kind,omitempty"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data"`
}

type Output struct {
	JobID  string `json:"jobId"`
	Kind   string `json:"kind"`
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

type Completed struct {
	JobID        string `json:"jobId"`
	TaskID       string `json:"taskId,omitempty"`
	Kind         string `json:"kind"`
	ExitCode     int    `json:"exitCode"`
	Signal       string `json:"signal,omitempty"`
	Success      bool   `json:"success"`
	DurationMs   int64  `json:"durationMs"`
	OutputLength int    `json:"outputLength"`
}

type SpawnError struct {
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

type OrphanBatch struct {
	Orphans []Orphan `json:"orphans"`
	Count   int      `json:"count"`
}

// Hub broadcasts events. Publish never blocks: a subscriber whose buffer is
// full misses the event and OnDrop is called.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	// OnDrop, if set, is called once per event dropped for a slow subscriber.
	OnDrop func(Type)
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]*Subscription{}}
}

// Subscription is one consumer's view of the hub.
type Subscription struct {
	id   uint64
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Events returns the delivery channel. It is closed by Close or Hub.Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Subscribe registers a consumer with the given channel buffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{id: h.nextID, ch: make(chan Event, buffer), hub: h}
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s.id] = s
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}

// Publish delivers e to every subscriber and returns how many received it.
func (h *Hub) Publish(e Event) int {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, s := range h.subs {
		select {
		case s.ch <- e:
			delivered++
		default:
			if h.OnDrop != nil {
				h.OnDrop(e.Type)
			}
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		s.once.Do(func() { close(s.ch) })
	}
}
