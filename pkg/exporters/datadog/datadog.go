// Package datadog provides an exporter that sends probe results to the
// Datadog metrics API.
//
// Every metric name in the results is used as the Datadog metric name, so
// results like {"hal.metric": 42} are sent as a gauge named hal.metric.
// Exporter tags are merged with the tags of each data point, exporter tags
// first.
package datadog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gravito-framework/hal-go/pkg/types"
)

// Config configures the exporter
type Config struct {
	APIKey   string
	Hostname string
	Site     string
	Tags     []string

	// Client defaults to an APIClient built from APIKey and Site
	Client Client
}

// DefaultConfig returns the exporter defaults
func DefaultConfig() Config {
	return Config{
		Hostname: "hal",
		Site:     "datadoghq.com",
	}
}

func (c Config) merge(override Config) Config {
	out := c
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.Hostname != "" {
		out.Hostname = override.Hostname
	}
	if override.Site != "" {
		out.Site = override.Site
	}
	if override.Tags != nil {
		out.Tags = append([]string(nil), override.Tags...)
	}
	if override.Client != nil {
		out.Client = override.Client
	}
	return out
}

// Exporter sends every data point as a separate series submission
type Exporter struct {
	config Config
	logger *slog.Logger
}

// New creates the exporter. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Exporter {
	merged := DefaultConfig().merge(cfg)
	if merged.Client == nil && merged.APIKey != "" {
		merged.Client = NewAPIClient(merged.APIKey, merged.Site, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{config: merged, logger: logger}
}

// Config returns the merged exporter configuration
func (e *Exporter) Config() Config {
	return e.config
}

// Send implements probes.Exporter
func (e *Exporter) Send(ctx context.Context, results types.Results) {
	if e.config.APIKey == "" {
		e.logger.Error("DatadogExporter: api_key is not configured.")
		return
	}

	for _, name := range results.Names() {
		for _, point := range results[name] {
			tags := append([]string(nil), e.config.Tags...)
			if point.Tagged() {
				tags = append(tags, point.Tags...)
			}

			resp, err := e.config.Client.Submit(ctx, Series{
				Metric: name,
				Value:  point.Value,
				Tags:   tags,
				Host:   e.config.Hostname,
			})
			if err != nil {
				e.logger.Error(fmt.Sprintf("DatadogExporter: unable to send metric. Server response was '%v'", err))
				continue
			}
			if resp.Status != "ok" {
				e.logger.Error(fmt.Sprintf("DatadogExporter: unable to send metric. Server response was '%s'", resp.Status))
				continue
			}
			e.logger.Info(fmt.Sprintf("DatadogExporter: metric '%s' sent correctly", name))
		}
	}
}
