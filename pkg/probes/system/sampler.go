package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler reads host and process statistics
type Sampler interface {
	// CPU returns the system CPU usage over window (0-100) and the logical core count
	CPU(ctx context.Context, window time.Duration) (percent float64, cores int, err error)
	// Memory returns used and total system memory in bytes
	Memory(ctx context.Context) (used, total uint64, err error)
	// ProcessRSS returns the resident set size of the current process
	ProcessRSS(ctx context.Context) (uint64, error)
	// Uptime returns the host uptime in seconds
	Uptime(ctx context.Context) (uint64, error)
	Hostname() (string, error)
}

// GoSampler implements Sampler using gopsutil
type GoSampler struct {
	isDarwin bool
}

// NewGoSampler creates a gopsutil backed sampler
func NewGoSampler() *GoSampler {
	return &GoSampler{isDarwin: runtime.GOOS == "darwin"}
}

// CPU samples the system CPU usage over window
func (s *GoSampler) CPU(ctx context.Context, window time.Duration) (float64, int, error) {
	// Core count - fallback to runtime.NumCPU()
	cores := runtime.NumCPU()
	if c, err := cpu.CountsWithContext(ctx, true); err == nil && c > 0 {
		cores = c
	}

	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err == nil && len(percents) > 0 {
		return round(percents[0], 2), cores, nil
	}
	if s.isDarwin {
		// Fallback for Darwin when CGO is disabled or cpu.Times fails
		if val, derr := darwinSystemCPU(ctx); derr == nil {
			return val, cores, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no CPU sample available")
	}
	return 0, cores, err
}

// Memory reads the virtual memory statistics
func (s *GoSampler) Memory(ctx context.Context) (uint64, uint64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return v.Used, v.Total, nil
}

// ProcessRSS reads the resident memory of the running process
func (s *GoSampler) ProcessRSS(ctx context.Context) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		// Fallback to Go runtime memory stats
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Sys, nil
	}
	return info.RSS, nil
}

// Uptime reads the host uptime
func (s *GoSampler) Uptime(ctx context.Context) (uint64, error) {
	return host.UptimeWithContext(ctx)
}

// Hostname returns the host name
func (s *GoSampler) Hostname() (string, error) {
	return os.Hostname()
}

// darwinSystemCPU parses 'top' output on macOS
func darwinSystemCPU(ctx context.Context) (float64, error) {
	// Output format: "CPU usage: 12.34% user, 5.67% sys, 81.99% idle"
	out, err := exec.CommandContext(ctx, "top", "-l", "1", "-n", "0").Output()
	if err != nil {
		return 0, err
	}
	return parseTopCPU(string(out))
}

func parseTopCPU(out string) (float64, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "CPU usage:") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}

		userVal := 0.0
		userPart := strings.TrimSpace(strings.TrimPrefix(parts[0], "CPU usage:"))
		fmt.Sscanf(userPart, "%f%%", &userVal)

		sysVal := 0.0
		fmt.Sscanf(strings.TrimSpace(parts[1]), "%f%%", &sysVal)

		return round(userVal+sysVal, 2), nil
	}
	return 0, fmt.Errorf("could not parse top output")
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := float64(1)
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	return float64(int(val*shift+0.5)) / shift
}
