//go:build windows

package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func Alive(pid int, startUnix int64) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil || !ok {
		return false
	}
	if startUnix <= 0 {
		return true
	}
	cur := StartUnix(pid)
	d := cur - startUnix
	return cur <= 0 || (d >= -1 && d <= 1)
}
