package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ioDrainDelay bounds how long Wait keeps draining pipes after the child
// exits. Grandchildren that inherited stdout would otherwise hold it open.
const ioDrainDelay = 2 * time.Second

// ErrDead is returned when an operation targets a process that has exited.
var ErrDead = errors.New("process is not running")

// ExitInfo describes how a process ended. Code is -1 when the process was
// terminated by a signal, in which case Signal carries its name.
type ExitInfo struct {
	Code   int
	Signal string
	Err    error
}

// Success reports a clean zero exit.
func (e ExitInfo) Success() bool { return e.Code == 0 && e.Signal == "" && e.Err == nil }

// Process is one launched child. It is safe for concurrent use.
type Process struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	startUnix int64

	mu     sync.Mutex
	exited bool

	waitOnce sync.Once
	exit     ExitInfo
	done     chan struct{}
}

// Start launches spec with stdout and stderr wired to the given writers.
// spec.Input, when non-empty, is written to stdin in the background before
// stdin is closed.
func Start(spec Spec, stdout, stderr io.Writer) (*Process, error) {
	if spec.Command == "" {
		return nil, errors.New("empty command")
	}
	cmd := spec.BuildCommand()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = ioDrainDelay
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, err
	}
	p := &Process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	p.startUnix = StartUnix(p.pid)
	go func(in []byte) {
		if len(in) > 0 {
			_, _ = stdin.Write(in)
		}
		_ = stdin.Close()
	}(spec.Input)
	return p, nil
}

func (p *Process) PID() int             { return p.pid }
func (p *Process) StartedAt() time.Time { return p.startedAt }

// StartUnixTime is the kernel-reported start time used to tell this process
// apart from a later one that reuses its PID. Zero when unavailable.
func (p *Process) StartUnixTime() int64 { return p.startUnix }

// Done is closed once Wait has reaped the process.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process exits and its output has been drained.
// It may be called from several goroutines; all observe the same result.
func (p *Process) Wait() ExitInfo {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.mu.Lock()
		p.exited = true
		p.mu.Unlock()
		p.exit = exitInfoFrom(p.cmd, err)
		close(p.done)
	})
	<-p.done
	return p.exit
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// Signal delivers sig to the process group, falling back to the process
// itself when the group is already gone.
func (p *Process) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return ErrDead
	}
	return signalGroup(p.pid, sig)
}

func exitInfoFrom(cmd *exec.Cmd, err error) ExitInfo {
	ps := cmd.ProcessState
	if ps == nil {
		return ExitInfo{Code: -1, Err: err}
	}
	info := ExitInfo{Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		info.Code = -1
		info.Signal = SignalName(ws.Signal())
	}
	// ErrWaitDelay only means a descendant kept the pipes open.
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			info.Err = err
		}
	}
	return info
}

var signalNames = map[syscall.Signal]string{
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGABRT: "SIGABRT",
	syscall.SIGKILL: "SIGKILL",
	syscall.SIGSEGV: "SIGSEGV",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGTERM: "SIGTERM",
}

// SignalName returns the conventional SIGxxx name for sig.
func SignalName(sig syscall.Signal) string {
	if n, ok := signalNames[sig]; ok {
		return n
	}
	return fmt.Sprintf("SIG%d", int(sig))
}
