package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource sample for one process.
type Usage struct {
	CPUPercent float64 `json:"cpu"`
	MemoryMB   float64 `json:"memoryMb"`
	NumThreads int32   `json:"threads,omitempty"`
	State      string  `json:"state"`
}

// Sample reads resource usage for pid. It returns ErrDead when the process
// no longer exists or is a zombie.
func Sample(pid int) (Usage, error) {
	if pid <= 0 {
		return Usage{}, ErrDead
	}
	exists, err := gopsproc.PidExists(int32(pid))
	if err != nil || !exists {
		return Usage{}, ErrDead
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, ErrDead
	}
	var u Usage
	if st, err := p.Status(); err == nil && len(st) > 0 {
		u.State = st[0]
	}
	if u.State == gopsproc.Zombie {
		return Usage{}, ErrDead
	}
	if u.State == "" {
		u.State = gopsproc.Running
	}
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}
