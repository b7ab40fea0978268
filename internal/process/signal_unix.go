//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// signalGroup sends sig to the process group led by pid, then to pid alone
// if no such group exists.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return ErrDead
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return ErrDead
	}
	return err
}
