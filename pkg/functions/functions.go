// Package functions provides the entrypoints that run a single probe: build
// its configuration, run it and push its results through the configured
// exporters.
//
// Probe failures are reported through logs only. An entrypoint returns an
// error when the invocation itself cannot be set up (unknown probe, unknown
// exporter, invalid exporter settings).
package functions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	hredis "github.com/gravito-framework/hal-go/internal/redis"
	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/exporters/datadog"
	"github.com/gravito-framework/hal-go/pkg/exporters/graphite"
	logexporter "github.com/gravito-framework/hal-go/pkg/exporters/logger"
	"github.com/gravito-framework/hal-go/pkg/exporters/redis"
	"github.com/gravito-framework/hal-go/pkg/probes"
	"github.com/gravito-framework/hal-go/pkg/probes/elmo"
	"github.com/gravito-framework/hal-go/pkg/probes/paperspace"
	"github.com/gravito-framework/hal-go/pkg/probes/parsec"
	"github.com/gravito-framework/hal-go/pkg/probes/system"
	"github.com/gravito-framework/hal-go/pkg/probes/watchdog"
)

// Entrypoint runs one probe invocation
type Entrypoint func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error

var entrypoints = map[string]Entrypoint{
	"elmo":       Elmo,
	"paperspace": Paperspace,
	"parsec":     Parsec,
	"watchdog":   Watchdog,
	"system":     System,
}

// Names returns the available probe names
func Names() []string {
	names := make([]string, 0, len(entrypoints))
	for name := range entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the probe registered under name
func Invoke(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger) error {
	fn, ok := entrypoints[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown probe %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return fn(ctx, cfg, logger)
}

// Elmo reports the alarm panel state
func Elmo(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	exporters, closeFn, err := Exporters(cfg, cfg.Elmo.Tags, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	p := elmo.New(elmo.Config{
		BaseConfig: probes.BaseConfig{Exporters: exporters},
		BaseURL:    cfg.Elmo.BaseURL,
		Vendor:     cfg.Elmo.Vendor,
		Username:   cfg.Elmo.Username,
		Password:   cfg.Elmo.Password,
	}, probes.WithLogger(logger))
	return runAndExport(ctx, p)
}

// Paperspace reports GPU machine states and billing
func Paperspace(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	exporters, closeFn, err := Exporters(cfg, cfg.Paperspace.Tags, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	p := paperspace.New(paperspace.Config{
		BaseConfig: probes.BaseConfig{Exporters: exporters},
		APIKey:     cfg.Paperspace.APIKey,
		BaseURL:    cfg.Paperspace.BaseURL,
	}, probes.WithLogger(logger))
	return runAndExport(ctx, p)
}

// Parsec reports play time and credits
func Parsec(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	exporters, closeFn, err := Exporters(cfg, cfg.Parsec.Tags, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	p := parsec.New(parsec.Config{
		BaseConfig: probes.BaseConfig{Exporters: exporters},
		SessionID:  cfg.Parsec.SessionID,
		URL:        cfg.Parsec.URL,
	}, probes.WithLogger(logger))
	return runAndExport(ctx, p)
}

// Watchdog reports reachable hosts
func Watchdog(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	exporters, closeFn, err := Exporters(cfg, cfg.Watchdog.Tags, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	p := watchdog.New(watchdog.Config{
		BaseConfig: probes.BaseConfig{Exporters: exporters},
		Hosts:      watchdog.HostsFrom(cfg.Watchdog.Hosts),
		Timeout:    cfg.Watchdog.Timeout,
	}, probes.WithLogger(logger))
	return runAndExport(ctx, p)
}

// System reports statistics of the host running the probes
func System(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	exporters, closeFn, err := Exporters(cfg, cfg.System.Tags, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	p := system.New(system.Config{
		BaseConfig:   probes.BaseConfig{Exporters: exporters},
		SampleWindow: cfg.System.SampleWindow,
	}, probes.WithLogger(logger))
	return runAndExport(ctx, p)
}

// runAndExport exports even after a failed run; Export then logs a warning
func runAndExport(ctx context.Context, p probes.Probe) error {
	_ = p.Run(ctx)
	return p.Export(ctx)
}

// Exporters builds the exporters named in cfg.Exporters. Tags are attached
// by exporters that support them. The returned func releases connections.
func Exporters(cfg *config.Config, tags []string, logger *slog.Logger) ([]probes.Exporter, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	exporters := make([]probes.Exporter, 0, len(cfg.Exporters))
	for _, name := range cfg.Exporters {
		switch name {
		case config.ExporterLog:
			exporters = append(exporters, logexporter.New(logger))
		case config.ExporterDatadog:
			exporters = append(exporters, datadog.New(datadog.Config{
				APIKey:   cfg.Datadog.APIKey,
				Hostname: cfg.Datadog.Hostname,
				Site:     cfg.Datadog.Site,
				Tags:     tags,
			}, logger))
		case config.ExporterGraphite:
			exporters = append(exporters, graphite.New(graphite.Config{
				Host:   cfg.Graphite.Host,
				Port:   cfg.Graphite.Port,
				Prefix: cfg.Graphite.Prefix,
				Tags:   tags,
			}, graphite.WithLogger(logger)))
		case config.ExporterRedis:
			client, err := hredis.NewClient(cfg.Redis.URL)
			if err != nil {
				closeAll()
				return nil, nil, &config.ConfigError{Field: "Redis.URL", Message: err.Error()}
			}
			closers = append(closers, client.Close)
			exporters = append(exporters, redis.New(client, redis.Config{
				Prefix: cfg.Redis.Prefix,
				TTL:    cfg.Redis.TTL,
				Tags:   tags,
			}, logger))
		}
	}
	return exporters, closeAll, nil
}
