//go:build !windows

package process

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strconv"
	"syscall"
)

// Alive reports whether pid names a running process. A permission error from
// the probe still means the process exists. When startUnix is non-zero the
// process must also have started at that time, so a recycled PID reads as
// dead.
func Alive(pid int, startUnix int64) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}
	return sameStart(pid, startUnix)
}

func sameStart(pid int, startUnix int64) bool {
	if startUnix <= 0 {
		return true
	}
	cur := StartUnix(pid)
	if cur <= 0 {
		return true
	}
	d := cur - startUnix
	return d >= -1 && d <= 1
}

// isZombieLinux returns true if /proc/<pid>/status reports state Z.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
