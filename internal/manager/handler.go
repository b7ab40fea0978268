package manager

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fiercefairy/PortOS-sub006/internal/process"
	"github.com/fiercefairy/PortOS-sub006/internal/stream"
)

const stderrMarker = "[stderr] "

type msgType int

const (
	msgStdout msgType = iota
	msgStderr
	msgExit
)

// message is posted by the pipe writers and the exit waiter and drained by
// the job's dispatcher goroutine.
type message struct {
	typ  msgType
	data []byte
	exit process.ExitInfo
}

// handler owns one tracked job: its process, its output accumulator and the
// timers that act on it. Output and exit are serialized through msgs.
type handler struct {
	id        string
	taskID    string
	kind      Kind
	dialect   stream.Dialect
	interp    *stream.Interpreter // touched only by the dispatcher
	held      [2][]byte           // incomplete UTF-8 tail per stream; dispatcher only
	msgs      chan message
	startedAt time.Time

	mu          sync.Mutex
	proc        *process.Process // nil while the spawn is in flight
	output      strings.Builder
	killTimer   *time.Timer
	deadline    *time.Timer
	terminating bool
	exited      bool
}

func newHandler(id, taskID string, kind Kind, dialect stream.Dialect) *handler {
	return &handler{
		id:      id,
		taskID:  taskID,
		kind:    kind,
		dialect: dialect,
		interp:  stream.NewFor(dialect),
		msgs:    make(chan message, 64),
	}
}

// pipeWriter forwards child output into the handler's message channel.
// exec copies each pipe from its own goroutine, so Write blocks until the
// dispatcher takes the chunk and order within a stream is kept.
type pipeWriter struct {
	h   *handler
	typ msgType
}

func (w pipeWriter) Write(p []byte) (int, error) {
	w.h.msgs <- message{typ: w.typ, data: append([]byte(nil), p...)}
	return len(p), nil
}

// whole prepends the bytes held back from the previous chunk of the same
// stream and holds back a trailing partial UTF-8 sequence, so every
// returned chunk ends on a character boundary.
func (h *handler) whole(typ msgType, data []byte) []byte {
	buf := append(h.held[typ], data...)
	h.held[typ] = nil
	if cut := completePrefix(buf); cut < len(buf) {
		h.held[typ] = append([]byte(nil), buf[cut:]...)
		buf = buf[:cut]
	}
	return buf
}

// drain returns whatever is still held for typ, complete or not.
func (h *handler) drain(typ msgType) []byte {
	b := h.held[typ]
	h.held[typ] = nil
	return b
}

// completePrefix returns the length of b without an unfinished multibyte
// sequence at its end. Invalid bytes are not held back.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

func (h *handler) attach(p *process.Process) {
	h.mu.Lock()
	h.proc = p
	h.startedAt = p.StartedAt()
	h.mu.Unlock()
}

func (h *handler) process() *process.Process {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc
}

func (h *handler) pending() bool { return h.process() == nil }

func (h *handler) appendOutput(s string) {
	h.mu.Lock()
	h.output.WriteString(s)
	h.mu.Unlock()
}

func (h *handler) outputString() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output.String()
}

// markExited flips the handler into its terminal state and stops every
// timer. It reports false if the handler had already exited.
func (h *handler) markExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return false
	}
	h.exited = true
	if h.killTimer != nil {
		h.killTimer.Stop()
		h.killTimer = nil
	}
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
	return true
}

func (h *handler) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

type snapshot struct {
	id          string
	taskID      string
	kind        Kind
	pid         int
	startedAt   time.Time
	terminating bool
}

func (h *handler) snapshot() (snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return snapshot{}, false
	}
	return snapshot{
		id:          h.id,
		taskID:      h.taskID,
		kind:        h.kind,
		pid:         h.proc.PID(),
		startedAt:   h.startedAt,
		terminating: h.terminating,
	}, true
}
