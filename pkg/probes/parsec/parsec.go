// Package parsec provides a probe that collects account data from the Parsec API.
//
// A session ID is required to authorize the request. The API is not officially
// supported; a valid session ID can be extracted from the `parsec_login`
// cookie of a browser session.
package parsec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/types"
	"github.com/valyala/fastjson"
)

// Metric names
const (
	MetricPlayTime = "hal.parsec.play_time"
	MetricCredits  = "hal.parsec.credits"
)

// Config configures the probe
type Config struct {
	probes.BaseConfig

	SessionID string
	URL       string
	HeaderKey string

	HTTPClient *http.Client
}

// DefaultConfig returns the probe defaults
func DefaultConfig() Config {
	return Config{
		BaseConfig: probes.DefaultBaseConfig(),
		URL:        "https://parsecgaming.com/v1/me",
		HeaderKey:  "X-Parsec-Session-Id",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c Config) merge(override Config) Config {
	out := c
	out.BaseConfig = c.BaseConfig.Merge(override.BaseConfig)
	if override.SessionID != "" {
		out.SessionID = override.SessionID
	}
	if override.URL != "" {
		out.URL = override.URL
	}
	if override.HeaderKey != "" {
		out.HeaderKey = override.HeaderKey
	}
	if override.HTTPClient != nil {
		out.HTTPClient = override.HTTPClient
	}
	return out
}

// Probe collects play time and credits of a Parsec account
type Probe struct {
	probes.Base
	config Config
}

// New creates the probe. Fields left empty in cfg keep their defaults.
func New(cfg Config, opts ...probes.Option) *Probe {
	merged := DefaultConfig().merge(cfg)
	return &Probe{
		Base:   probes.NewBase("ParsecProbe", merged.BaseConfig, opts...),
		config: merged,
	}
}

// Config returns the merged probe configuration
func (p *Probe) Config() Config {
	return p.config
}

// Run collects the account metrics
func (p *Probe) Run(ctx context.Context) error {
	return p.Base.Run(ctx, p.collect)
}

func (p *Probe) collect(ctx context.Context) (types.Results, error) {
	if p.config.SessionID == "" {
		// a missing session ID results in a 403
		return nil, &config.ConfigError{Field: "SessionID", Message: "run failed for missing 'session_id'"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(p.config.HeaderKey, p.config.SessionID)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run failed. %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("run failed. %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("run failed. Server returns '%s'", body)
	}

	var parser fastjson.Parser
	v, err := parser.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("run failed. Invalid response: %w", err)
	}

	results := types.Results{}
	for _, f := range []struct{ metric, field string }{
		{MetricPlayTime, "play_time"},
		{MetricCredits, "credits"},
	} {
		value := v.Get(f.field)
		if value == nil || value.Type() != fastjson.TypeNumber {
			return nil, fmt.Errorf("run failed. Invalid '%s' in response", f.field)
		}
		results.Set(f.metric, value.GetFloat64())
	}
	return results, nil
}

var _ probes.Probe = (*Probe)(nil)
