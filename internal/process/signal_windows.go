//go:build windows

package process

import (
	"os"
	"syscall"
)

// signalGroup terminates pid. Windows has no signal delivery, so every
// signal is a hard kill.
func signalGroup(pid int, _ syscall.Signal) error {
	if pid <= 0 {
		return ErrDead
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return ErrDead
	}
	return p.Kill()
}
