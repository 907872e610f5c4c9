// Package elmo provides a probe that reports the state of an e-Connect alarm panel.
package elmo

import (
	"context"
	"fmt"

	client "github.com/gravito-framework/hal-go/internal/elmo"
	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/types"
)

// Metric names
const (
	MetricAreas  = "hal.elmo.areas"
	MetricInputs = "hal.elmo.inputs"
)

// AlarmClient is the subset of the vendor API used by the probe
type AlarmClient interface {
	Auth(ctx context.Context, username, password string) error
	Check(ctx context.Context) (*client.Status, error)
}

// Config configures the probe
type Config struct {
	probes.BaseConfig

	BaseURL  string
	Vendor   string
	Username string
	Password string

	// Client overrides the HTTP client built from BaseURL and Vendor
	Client AlarmClient
}

// DefaultConfig returns the probe defaults
func DefaultConfig() Config {
	return Config{BaseConfig: probes.DefaultBaseConfig()}
}

func (c Config) merge(override Config) Config {
	out := c
	out.BaseConfig = c.BaseConfig.Merge(override.BaseConfig)
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Vendor != "" {
		out.Vendor = override.Vendor
	}
	if override.Username != "" {
		out.Username = override.Username
	}
	if override.Password != "" {
		out.Password = override.Password
	}
	if override.Client != nil {
		out.Client = override.Client
	}
	return out
}

// Probe collects armed/disarmed areas and alerted/waiting inputs
type Probe struct {
	probes.Base
	config Config
}

// New creates the probe. Fields left empty in cfg keep their defaults.
func New(cfg Config, opts ...probes.Option) *Probe {
	merged := DefaultConfig().merge(cfg)
	return &Probe{
		Base:   probes.NewBase("ElmoProbe", merged.BaseConfig, opts...),
		config: merged,
	}
}

// Config returns the merged probe configuration
func (p *Probe) Config() Config {
	return p.config
}

// Run collects the alarm panel status
func (p *Probe) Run(ctx context.Context) error {
	return p.Base.Run(ctx, p.collect)
}

func (p *Probe) validate() error {
	if p.config.BaseURL == "" || p.config.Vendor == "" {
		return &config.ConfigError{Field: "BaseURL", Message: "run failed for missing 'base_url' and 'vendor' endpoint"}
	}
	if p.config.Username == "" || p.config.Password == "" {
		return &config.ConfigError{Field: "Username", Message: "run failed for missing credentials"}
	}
	return nil
}

func (p *Probe) collect(ctx context.Context) (types.Results, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	c := p.config.Client
	if c == nil {
		c = client.NewClient(p.config.BaseURL, p.config.Vendor, nil)
	}

	if err := c.Auth(ctx, p.config.Username, p.config.Password); err != nil {
		return nil, fmt.Errorf("run failed. ElmoClient returns '%v'", err)
	}
	status, err := c.Check(ctx)
	if err != nil {
		return nil, fmt.Errorf("run failed. ElmoClient returns '%v'", err)
	}

	results := types.Results{}
	results.Init(MetricAreas)
	results.Init(MetricInputs)

	for _, item := range status.AreasArmed {
		results.Add(MetricAreas, 1, "name:"+item.Name, "status:armed")
	}
	for _, item := range status.AreasDisarmed {
		results.Add(MetricAreas, 1, "name:"+item.Name, "status:disarmed")
	}
	for _, item := range status.InputsAlerted {
		results.Add(MetricInputs, 1, "name:"+item.Name, "status:alerted")
	}
	for _, item := range status.InputsWait {
		results.Add(MetricInputs, 1, "name:"+item.Name, "status:wait")
	}

	return results, nil
}

var _ probes.Probe = (*Probe)(nil)
