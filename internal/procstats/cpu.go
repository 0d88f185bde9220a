// Package procstats reports this process's container-aware CPU and memory
// usage, feeding the Prometheus gauges.
package procstats

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// cgroupCPU reads cumulative CPU usage directly from cgroup accounting
// files, so usage is reported relative to the container's CPU quota
// rather than the host's full core count.
type cgroupCPU struct {
	mu             sync.Mutex
	lastUsageUsec  uint64
	lastSampleTime time.Time
	version        int // 1 or 2
	path           string
	allocatedCPUs  float64
}

func newCgroupCPU() (*cgroupCPU, error) {
	path, version, err := detectCgroupPath()
	if err != nil {
		return nil, fmt.Errorf("detect cgroup: %w", err)
	}

	quota, period, err := readCPUQuota(path, version)
	if err != nil {
		return nil, fmt.Errorf("read cpu quota: %w", err)
	}
	allocated := float64(runtime.NumCPU())
	if quota > 0 && period > 0 {
		allocated = float64(quota) / float64(period)
	}

	usage, err := readCPUUsage(path, version)
	if err != nil {
		return nil, fmt.Errorf("read initial cpu usage: %w", err)
	}

	return &cgroupCPU{
		lastUsageUsec:  usage,
		lastSampleTime: time.Now(),
		version:        version,
		path:           path,
		allocatedCPUs:  allocated,
	}, nil
}

// percent returns CPU usage as a percentage of the container's allocation
// since the previous call.
func (c *cgroupCPU) percent() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsedUsec := now.Sub(c.lastSampleTime).Microseconds()
	if elapsedUsec == 0 {
		return 0, fmt.Errorf("sample interval too small")
	}

	usage, err := readCPUUsage(c.path, c.version)
	if err != nil {
		return 0, err
	}
	delta := usage - c.lastUsageUsec
	c.lastUsageUsec = usage
	c.lastSampleTime = now

	raw := (float64(delta) / float64(elapsedUsec)) * 100.0
	return raw / c.allocatedCPUs, nil
}

func detectCgroupPath() (path string, version int, err error) {
	file, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ":")
		if len(parts) != 3 {
			continue
		}
		if parts[0] == "0" && parts[1] == "" {
			return "/sys/fs/cgroup" + parts[2], 2, nil
		}
		if strings.Contains(parts[1], "cpu") {
			return "/sys/fs/cgroup/cpu" + parts[2], 1, nil
		}
	}
	return "", 0, fmt.Errorf("could not detect cgroup path")
}

func readCPUQuota(path string, version int) (quota, period int64, err error) {
	if version == 2 {
		data, err := os.ReadFile(path + "/cpu.max")
		if err != nil {
			return 0, 0, err
		}
		fields := strings.Fields(string(data))
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("unexpected cpu.max format: %s", data)
		}
		if fields[0] == "max" {
			return -1, 0, nil
		}
		quota, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		period, err = strconv.ParseInt(fields[1], 10, 64)
		return quota, period, err
	}

	quotaData, err := os.ReadFile(path + "/cpu.cfs_quota_us")
	if err != nil {
		return 0, 0, err
	}
	periodData, err := os.ReadFile(path + "/cpu.cfs_period_us")
	if err != nil {
		return 0, 0, err
	}
	quota, err = strconv.ParseInt(strings.TrimSpace(string(quotaData)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	period, err = strconv.ParseInt(strings.TrimSpace(string(periodData)), 10, 64)
	return quota, period, err
}

func readCPUUsage(path string, version int) (uint64, error) {
	if version == 2 {
		file, err := os.Open(path + "/cpu.stat")
		if err != nil {
			return 0, err
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if fields := strings.Fields(scanner.Text()); len(fields) == 2 && fields[0] == "usage_usec" {
				return strconv.ParseUint(fields[1], 10, 64)
			}
		}
		return 0, fmt.Errorf("usage_usec not found in cpu.stat")
	}

	data, err := os.ReadFile(path + "/cpuacct.usage")
	if err != nil {
		return 0, err
	}
	nsec, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, err
	}
	return nsec / 1000, nil
}

// Monitor measures CPU usage with automatic container/host fallback: the
// cgroup's usage when one is detected, otherwise host-wide usage via
// gopsutil (e.g. running outside a container).
type Monitor struct {
	mode      string
	cgroup    *cgroupCPU
	logger    zerolog.Logger
}

// NewMonitor probes for a cgroup and falls back to host-wide measurement
// via gopsutil if none is found.
func NewMonitor(logger zerolog.Logger) *Monitor {
	if cg, err := newCgroupCPU(); err == nil {
		logger.Info().Float64("cpus_allocated", cg.allocatedCPUs).Msg("using container-aware CPU measurement")
		return &Monitor{mode: "container", cgroup: cg, logger: logger}
	} else {
		logger.Warn().Err(err).Msg("no cgroup detected, falling back to host CPU measurement")
	}
	return &Monitor{mode: "host", logger: logger}
}

// Percent returns CPU usage since the previous call: relative to the
// container's allocation in container mode, or host-wide otherwise.
func (m *Monitor) Percent() (float64, error) {
	if m.mode == "container" {
		return m.cgroup.percent()
	}
	pcts, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no CPU data")
	}
	return pcts[0], nil
}

// Mode reports whether usage is measured "container" or "host" relative.
func (m *Monitor) Mode() string { return m.mode }
