// Package watchdog provides a probe that detects which hosts of a list are
// reachable from the probe network.
//
// Every host is pinged with a single packet; reachable hosts are counted
// under the tag they were configured with.
package watchdog

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/types"
)

// MetricDetectedHosts counts reachable hosts per tag
const MetricDetectedHosts = "hal.watchdog.detected_hosts"

// Host is an address and the tag its successes are counted under
type Host struct {
	Address string
	Tag     string
}

// Pinger checks whether a single address answers
type Pinger interface {
	Ping(ctx context.Context, address string, timeout time.Duration) error
}

// ExecPinger runs the system ping command
type ExecPinger struct {
	// Command defaults to "ping"
	Command string
}

// Ping sends one packet and reports an error on a non-zero exit status
func (e ExecPinger) Ping(ctx context.Context, address string, timeout time.Duration) error {
	command := e.Command
	if command == "" {
		command = "ping"
	}
	wait := int(math.Ceil(timeout.Seconds()))
	if wait < 1 {
		wait = 1
	}

	cmd := exec.CommandContext(ctx, command, "-c", "1", "-W", strconv.Itoa(wait), address)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

// Config configures the probe
type Config struct {
	probes.BaseConfig

	Hosts   []Host
	Timeout time.Duration
	Pinger  Pinger
}

// DefaultConfig returns the probe defaults
func DefaultConfig() Config {
	return Config{
		BaseConfig: probes.DefaultBaseConfig(),
		Timeout:    time.Second,
		Pinger:     ExecPinger{},
	}
}

func (c Config) merge(override Config) Config {
	out := c
	out.BaseConfig = c.BaseConfig.Merge(override.BaseConfig)
	if override.Hosts != nil {
		out.Hosts = append([]Host(nil), override.Hosts...)
	}
	if override.Timeout > 0 {
		out.Timeout = override.Timeout
	}
	if override.Pinger != nil {
		out.Pinger = override.Pinger
	}
	return out
}

// HostsFrom converts configured host entries
func HostsFrom(entries []config.HostEntry) []Host {
	hosts := make([]Host, 0, len(entries))
	for _, e := range entries {
		hosts = append(hosts, Host{Address: e.Address, Tag: e.Tag})
	}
	return hosts
}

// Probe counts reachable hosts
type Probe struct {
	probes.Base
	config Config
}

// New creates the probe. Fields left empty in cfg keep their defaults.
func New(cfg Config, opts ...probes.Option) *Probe {
	merged := DefaultConfig().merge(cfg)
	return &Probe{
		Base:   probes.NewBase("WatchdogProbe", merged.BaseConfig, opts...),
		config: merged,
	}
}

// Config returns the merged probe configuration
func (p *Probe) Config() Config {
	return p.config
}

// Run pings every configured host
func (p *Probe) Run(ctx context.Context) error {
	return p.Base.Run(ctx, p.collect)
}

func (p *Probe) collect(ctx context.Context) (types.Results, error) {
	if len(p.config.Hosts) == 0 {
		return nil, &config.ConfigError{Field: "Hosts", Message: "run failed for missing hosts to monitor"}
	}

	var order []string
	counts := make(map[string]int)
	for _, host := range p.config.Hosts {
		if _, seen := counts[host.Tag]; !seen {
			order = append(order, host.Tag)
			counts[host.Tag] = 0
		}
		if err := p.config.Pinger.Ping(ctx, host.Address, p.config.Timeout); err != nil {
			p.Logger().Debug(fmt.Sprintf("Probe watchdog: host '%s' not found", host.Address), "error", err)
			continue
		}
		counts[host.Tag]++
	}

	results := types.Results{}
	results.Init(MetricDetectedHosts)
	for _, tag := range order {
		// tags without a reachable host are omitted, not reported as zero
		if counts[tag] > 0 {
			results.Add(MetricDetectedHosts, float64(counts[tag]), tag)
		}
	}
	return results, nil
}

var _ probes.Probe = (*Probe)(nil)
