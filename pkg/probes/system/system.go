// Package system provides a probe that reports statistics of the host the
// probes run on: CPU, memory, process RSS and uptime.
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/types"
)

// Metric names
const (
	MetricCPUPercent  = "hal.system.cpu.percent"
	MetricCPUCores    = "hal.system.cpu.cores"
	MetricMemoryUsed  = "hal.system.memory.used_bytes"
	MetricMemoryTotal = "hal.system.memory.total_bytes"
	MetricProcessRSS  = "hal.system.process.rss_bytes"
	MetricUptime      = "hal.system.uptime_seconds"
)

// Config configures the probe
type Config struct {
	probes.BaseConfig

	// SampleWindow is how long CPU usage is measured for
	SampleWindow time.Duration
	Sampler      Sampler
}

// DefaultConfig returns the probe defaults
func DefaultConfig() Config {
	return Config{
		BaseConfig:   probes.DefaultBaseConfig(),
		SampleWindow: 500 * time.Millisecond,
	}
}

func (c Config) merge(override Config) Config {
	out := c
	out.BaseConfig = c.BaseConfig.Merge(override.BaseConfig)
	if override.SampleWindow > 0 {
		out.SampleWindow = override.SampleWindow
	}
	if override.Sampler != nil {
		out.Sampler = override.Sampler
	}
	return out
}

// Probe samples the local host
type Probe struct {
	probes.Base
	config Config
}

// New creates the probe. Fields left empty in cfg keep their defaults.
func New(cfg Config, opts ...probes.Option) *Probe {
	merged := DefaultConfig().merge(cfg)
	if merged.Sampler == nil {
		merged.Sampler = NewGoSampler()
	}
	return &Probe{
		Base:   probes.NewBase("SystemProbe", merged.BaseConfig, opts...),
		config: merged,
	}
}

// Config returns the merged probe configuration
func (p *Probe) Config() Config {
	return p.config
}

// Run samples the host
func (p *Probe) Run(ctx context.Context) error {
	return p.Base.Run(ctx, p.collect)
}

func (p *Probe) collect(ctx context.Context) (types.Results, error) {
	s := p.config.Sampler

	hostname, err := s.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	tag := "host:" + hostname

	percent, cores, err := s.CPU(ctx, p.config.SampleWindow)
	if err != nil {
		return nil, fmt.Errorf("run failed. CPU sample returns '%v'", err)
	}
	used, total, err := s.Memory(ctx)
	if err != nil {
		return nil, fmt.Errorf("run failed. Memory sample returns '%v'", err)
	}

	results := types.Results{}
	results.Add(MetricCPUPercent, percent, tag)
	results.Add(MetricCPUCores, float64(cores), tag)
	results.Add(MetricMemoryUsed, float64(used), tag)
	results.Add(MetricMemoryTotal, float64(total), tag)

	if rss, err := s.ProcessRSS(ctx); err == nil {
		results.Add(MetricProcessRSS, float64(rss), tag)
	} else {
		p.Logger().Debug("process memory not available", "error", err)
	}
	if uptime, err := s.Uptime(ctx); err == nil {
		results.Add(MetricUptime, float64(uptime), tag)
	} else {
		p.Logger().Debug("uptime not available", "error", err)
	}

	return results, nil
}

var _ probes.Probe = (*Probe)(nil)
