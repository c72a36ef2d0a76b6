package proctable

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// ProbeTimeout bounds every process-table query.
const ProbeTimeout = 5 * time.Second

// Prober answers questions about the OS process table.
type Prober interface {
	// Exists reports whether a process with the given pid is alive.
	Exists(ctx context.Context, pid int32) (bool, error)
	// Info returns a populated ProcessInfo for a live process.
	Info(ctx context.Context, pid int32) (*types.ProcessInfo, error)
	// FindByName returns the first live process whose name matches, or nil.
	FindByName(ctx context.Context, name string) (*types.ProcessInfo, error)
}

// SystemProber implements Prober against the real process table via
// gopsutil, with a /proc fast path on Linux.
type SystemProber struct{}

// NewSystemProber creates a prober for the local process table.
func NewSystemProber() *SystemProber {
	return &SystemProber{}
}

// Exists checks /proc/<pid> first (cheap, exact on Linux) and falls back to
// gopsutil elsewhere.
func (p *SystemProber) Exists(ctx context.Context, pid int32) (bool, error) {
	if pid < 1 {
		return false, fmt.Errorf("invalid pid %d", pid)
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		// /proc unavailable or unreadable; ask gopsutil instead.
		return process.PidExistsWithContext(ctx, pid)
	}
	return process.PidExistsWithContext(ctx, pid)
}

// Info populates a ProcessInfo for pid. Optional fields that fail to resolve
// (cwd, username on restricted systems) are left zero rather than failing
// the whole probe.
func (p *SystemProber) Info(ctx context.Context, pid int32) (*types.ProcessInfo, error) {
	if pid < 1 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("process %d not found: %w", pid, err)
	}
	return buildInfo(ctx, proc)
}

// FindByName scans the process table for a live process with the exact name.
func (p *SystemProber) FindByName(ctx context.Context, name string) (*types.ProcessInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	for _, proc := range procs {
		pname, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if pname == name {
			return buildInfo(ctx, proc)
		}
	}
	return nil, nil
}

func buildInfo(ctx context.Context, proc *process.Process) (*types.ProcessInfo, error) {
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read process name: %w", err)
	}

	info := &types.ProcessInfo{
		PID:    proc.Pid,
		Name:   name,
		Status: types.ProcessUnknown,
	}

	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cmdline
	}
	if createMs, err := proc.CreateTimeWithContext(ctx); err == nil {
		info.StartTime = time.UnixMilli(createMs)
	}
	if statuses, err := proc.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
		info.Status = mapStatus(statuses[0])
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.MemoryBytes = mem.RSS
	}
	if user, err := proc.UsernameWithContext(ctx); err == nil {
		info.Username = user
	}
	if cwd, err := proc.CwdWithContext(ctx); err == nil {
		info.Cwd = cwd
	}
	return info, nil
}

func mapStatus(s string) types.ProcessStatus {
	switch strings.ToLower(s) {
	case process.Running:
		return types.ProcessRunning
	case process.Sleep, process.Idle:
		return types.ProcessSleeping
	case process.Stop:
		return types.ProcessStopped
	case process.Zombie:
		return types.ProcessZombie
	default:
		return types.ProcessUnknown
	}
}
