package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"statuspage/internal/config"
)

// HostProbe reports the local machine: disk usage of one mount and memory
// usage, each compared with degraded/down percentage thresholds.
type HostProbe struct {
	spec     config.ProbeSpec
	readDisk func(path string) (total, used uint64, err error)
	readMem  func() (total, available uint64, err error)
}

func NewHostProbe(spec config.ProbeSpec) *HostProbe {
	if spec.Path == "" {
		spec.Path = "/"
	}
	if spec.DiskDegraded == 0 {
		spec.DiskDegraded = 85
	}
	if spec.DiskDown == 0 {
		spec.DiskDown = 95
	}
	if spec.MemDegraded == 0 {
		spec.MemDegraded = 90
	}
	if spec.MemDown == 0 {
		spec.MemDown = 98
	}
	return &HostProbe{spec: spec, readDisk: readDiskUsage, readMem: readMem}
}

func (h *HostProbe) Name() string { return h.spec.Name }

func (h *HostProbe) Check(ctx context.Context) Result {
	total, used, err := h.readDisk(h.spec.Path)
	if err != nil {
		return Result{Status: Unhealthy, Err: fmt.Errorf("disk usage: %w", err)}
	}
	diskPct := percent(used, total)
	status := grade(diskPct, h.spec.DiskDegraded, h.spec.DiskDown)
	var notes []string
	if status != Healthy {
		notes = append(notes, fmt.Sprintf("disk %s %.1f%% used", h.spec.Path, diskPct))
	}

	memTotal, memAvail, err := h.readMem()
	if err == nil {
		memPct := percent(memTotal-memAvail, memTotal)
		if s := grade(memPct, h.spec.MemDegraded, h.spec.MemDown); s != Healthy {
			notes = append(notes, fmt.Sprintf("memory %.1f%% used", memPct))
			status = min(status, s)
		}
	}
	return Result{Status: status, Description: strings.Join(notes, ", ")}
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

func grade(pct, degraded, down float64) HealthStatus {
	switch {
	case pct >= down:
		return Unhealthy
	case pct >= degraded:
		return Degraded
	}
	return Healthy
}

func readMem() (total, available uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[0] == "MemTotal:" {
			total, _ = strconv.ParseUint(fields[1], 10, 64)
			total *= 1024
		}
		if fields[0] == "MemAvailable:" {
			available, _ = strconv.ParseUint(fields[1], 10, 64)
			available *= 1024
		}
	}
	if total == 0 {
		return 0, 0, errors.New("meminfo parse failed")
	}
	return total, available, nil
}

func readDiskUsage(path string) (total, used uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	total, used = diskFigures(st.Blocks, st.Bfree, st.Bavail, uint64(st.Bsize))
	return total, used, nil
}

// diskFigures follows df: used excludes free blocks reserved for root, and
// the percentage base is what a regular user can reach (used + available).
func diskFigures(blocks, bfree, bavail, bsize uint64) (total, used uint64) {
	used = (blocks - bfree) * bsize
	return used + bavail*bsize, used
}
