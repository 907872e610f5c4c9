// Package paperspace provides a probe that collects machine state and billing
// data from the Paperspace REST API.
//
// Collected metrics:
//   - number of registered machines
//   - state of every machine (off/ready, plus transitional states)
//   - usage in seconds, hourly rate and storage monthly rate per machine
//
// Billing data is requested for the current month.
package paperspace

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/types"
	"github.com/valyala/fastjson"
)

// Metric names
const (
	MetricMachinesCount    = "hal.paperspace.machines.count"
	MetricMachinesInstance = "hal.paperspace.machines.instance"
	MetricUsageSeconds     = "hal.paperspace.utilization.instance.usage_seconds"
	MetricHourlyRate       = "hal.paperspace.utilization.instance.hourly_rate"
	MetricStorageRate      = "hal.paperspace.utilization.storage.monthly_rate"
)

// Machine states with a dedicated data point
const (
	StateOff   = "off"
	StateReady = "ready"
)

// Config configures the probe
type Config struct {
	probes.BaseConfig

	APIKey    string
	BaseURL   string
	HeaderKey string

	HTTPClient *http.Client
	// Now returns the time used to compute the billing month
	Now func() time.Time
}

// DefaultConfig returns the probe defaults
func DefaultConfig() Config {
	return Config{
		BaseConfig: probes.DefaultBaseConfig(),
		BaseURL:    "https://api.paperspace.io",
		HeaderKey:  "x-api-key",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Now:        time.Now,
	}
}

func (c Config) merge(override Config) Config {
	out := c
	out.BaseConfig = c.BaseConfig.Merge(override.BaseConfig)
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		out.BaseURL = strings.TrimRight(override.BaseURL, "/")
	}
	if override.HeaderKey != "" {
		out.HeaderKey = override.HeaderKey
	}
	if override.HTTPClient != nil {
		out.HTTPClient = override.HTTPClient
	}
	if override.Now != nil {
		out.Now = override.Now
	}
	return out
}

// Probe collects Paperspace machine metrics
type Probe struct {
	probes.Base
	config Config
}

// New creates the probe. Fields left empty in cfg keep their defaults.
func New(cfg Config, opts ...probes.Option) *Probe {
	merged := DefaultConfig().merge(cfg)
	return &Probe{
		Base:   probes.NewBase("PaperspaceProbe", merged.BaseConfig, opts...),
		config: merged,
	}
}

// Config returns the merged probe configuration
func (p *Probe) Config() Config {
	return p.config
}

// Run collects machine and billing metrics
func (p *Probe) Run(ctx context.Context) error {
	return p.Base.Run(ctx, p.collect)
}

// BillingPeriod formats t as the billing month expected by the API (e.g. 2019-09)
func BillingPeriod(t time.Time) string {
	return t.Format("2006-01")
}

func (p *Probe) collect(ctx context.Context) (types.Results, error) {
	if p.config.APIKey == "" {
		return nil, &config.ConfigError{Field: "APIKey", Message: "run failed for missing Paperspace API key"}
	}

	period := BillingPeriod(p.config.Now())

	body, status, err := p.get(ctx, "machines/getMachines", nil)
	if err != nil {
		return nil, fmt.Errorf("run failed. %w", err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("run failed. Server returns '%s'", body)
	}

	var parser fastjson.Parser
	v, err := parser.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("run failed. Invalid machine list: %w", err)
	}
	machines, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("run failed. Invalid machine list: %w", err)
	}

	results := types.Results{}
	results.Set(MetricMachinesCount, float64(len(machines)))
	results.Init(MetricMachinesInstance)

	for _, machine := range machines {
		id := stringOf(machine.Get("id"))
		if id == "" {
			p.Logger().Error("Skip machine check. Machine without 'id'", "probe", p.Name())
			continue
		}
		state := string(machine.GetStringBytes("state"))
		idTag := "machine_id:" + id

		isOff := state == StateOff
		isReady := state == StateReady
		results.Add(MetricMachinesInstance, boolValue(isOff), idTag, "state:"+StateOff)
		results.Add(MetricMachinesInstance, boolValue(isReady), idTag, "state:"+StateReady)
		if !isOff && !isReady {
			// transitional state (starting, stopping, restarting, ...)
			results.Add(MetricMachinesInstance, 1, idTag, "state:"+state)
		}

		if err := p.collectBilling(ctx, results, id, period); err != nil {
			p.Logger().Error("Skip machine check. "+err.Error(), "probe", p.Name(), "machine_id", id)
		}
	}

	return results, nil
}

// collectBilling adds the utilization metrics of a single machine
func (p *Probe) collectBilling(ctx context.Context, results types.Results, id, period string) error {
	params := url.Values{}
	params.Set("machineId", id)
	params.Set("billingMonth", period)

	body, status, err := p.get(ctx, "machines/getUtilization", params)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("Server returns '%s'", body)
	}

	var parser fastjson.Parser
	billing, err := parser.ParseBytes(body)
	if err != nil {
		return fmt.Errorf("invalid utilization payload: %w", err)
	}

	seconds, err := numberOf(billing.Get("utilization", "secondsUsed"))
	if err != nil {
		return fmt.Errorf("invalid utilization.secondsUsed: %w", err)
	}
	hourly, err := numberOf(billing.Get("utilization", "hourlyRate"))
	if err != nil {
		return fmt.Errorf("invalid utilization.hourlyRate: %w", err)
	}
	storage, err := numberOf(billing.Get("storageUtilization", "monthlyRate"))
	if err != nil {
		return fmt.Errorf("invalid storageUtilization.monthlyRate: %w", err)
	}

	idTag := "machine_id:" + id
	results.Add(MetricUsageSeconds, math.Trunc(seconds), idTag)
	results.Add(MetricHourlyRate, hourly, idTag)
	results.Add(MetricStorageRate, storage, idTag)
	return nil
}

func (p *Probe) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	u := p.config.BaseURL + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(p.config.HeaderKey, p.config.APIKey)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// stringOf renders an id that may be a JSON string or number
func stringOf(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}

// numberOf reads a JSON number, accepting numbers encoded as strings ("0.51")
func numberOf(v *fastjson.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("missing value")
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.Float64()
	case fastjson.TypeString:
		return strconv.ParseFloat(strings.TrimSpace(string(v.GetStringBytes())), 64)
	case fastjson.TypeNull:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected type %s", v.Type())
	}
}

var _ probes.Probe = (*Probe)(nil)
