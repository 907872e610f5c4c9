// Package probes defines the Probe and Exporter contracts and the shared
// run/export logic every probe builds on.
//
// A probe is used for exactly one cycle:
//
//	p := parsec.New(parsec.Config{SessionID: token, BaseConfig: probes.BaseConfig{
//		Exporters: []probes.Exporter{logger.New(nil)},
//	}})
//	if err := p.Run(ctx); err == nil {
//		_ = p.Export(ctx)
//	}
package probes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/gravito-framework/hal-go/pkg/types"
)

// ErrNotImplemented is returned when the base run logic has no collector
var ErrNotImplemented = errors.New("probe logic not implemented")

// Exporter delivers probe results to a monitoring sink.
// Send must not modify the results it receives.
type Exporter interface {
	Send(ctx context.Context, results types.Results)
}

// Probe collects metrics from a single source
type Probe interface {
	Name() string
	// Run collects metrics. A nil error means success.
	Run(ctx context.Context) error
	// Export pushes the collected results through the configured exporters.
	Export(ctx context.Context) error
	Results() types.Results
}

// Collector holds the probe-specific logic invoked by Base.Run
type Collector func(ctx context.Context) (types.Results, error)

// BaseConfig contains the settings shared by every probe
type BaseConfig struct {
	Exporters []Exporter
}

// DefaultBaseConfig returns the base defaults: no exporters
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{Exporters: []Exporter{}}
}

// Merge layers override on top of b. Only non-nil fields replace the defaults.
func (b BaseConfig) Merge(override BaseConfig) BaseConfig {
	out := b
	if override.Exporters != nil {
		out.Exporters = append([]Exporter(nil), override.Exporters...)
	} else if out.Exporters != nil {
		out.Exporters = append([]Exporter{}, out.Exporters...)
	}
	return out
}

// ExporterError reports a malformed exporter collection
type ExporterError struct {
	Index   int
	Message string
}

func (e *ExporterError) Error() string {
	return fmt.Sprintf("exporter %d: %s", e.Index, e.Message)
}

// Option is a functional option shared by probe constructors
type Option func(*Base)

// WithLogger sets a custom logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Base implements the run/export cycle common to all probes.
// Concrete probes embed it and pass their Collector to Run.
type Base struct {
	name      string
	logger    *slog.Logger
	exporters []Exporter
	results   types.Results
}

// NewBase creates the shared state for a probe named name
func NewBase(name string, cfg BaseConfig, opts ...Option) Base {
	b := Base{
		name:      name,
		logger:    slog.Default(),
		exporters: DefaultBaseConfig().Merge(cfg).Exporters,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Name returns the probe name used in log lines
func (b *Base) Name() string {
	return b.name
}

// Logger returns the probe logger
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// Results returns the results of the last successful run, or nil
func (b *Base) Results() types.Results {
	return b.results
}

// Run executes collect, storing its results only on success
func (b *Base) Run(ctx context.Context, collect Collector) error {
	b.results = nil
	if collect == nil {
		return ErrNotImplemented
	}

	b.logger.Debug("started", "probe", b.name)
	results, err := collect(ctx)
	if err != nil {
		b.logger.Error(fmt.Sprintf("%s: %s", b.name, err), "probe", b.name)
		return err
	}

	b.results = results
	b.logger.Info("completed with success", "probe", b.name)
	return nil
}

// Export sends the stored results to every configured exporter.
// With no results it logs a warning and returns nil.
func (b *Base) Export(ctx context.Context) error {
	if len(b.results) == 0 {
		b.logger.Warn(fmt.Sprintf("%s: export() executed with no results available", b.name), "probe", b.name)
		return nil
	}

	if err := b.validateExporters(); err != nil {
		b.logger.Error(fmt.Sprintf("%s: some exporters are not valid; execution aborted", b.name),
			"probe", b.name,
			"error", err,
		)
		return err
	}

	for _, exporter := range b.exporters {
		exporter.Send(ctx, b.results.Clone())
	}
	return nil
}

func (b *Base) validateExporters() error {
	for i, exporter := range b.exporters {
		if exporter == nil {
			return &ExporterError{Index: i, Message: "exporter is nil"}
		}
		if v := reflect.ValueOf(exporter); v.Kind() == reflect.Ptr && v.IsNil() {
			return &ExporterError{Index: i, Message: fmt.Sprintf("exporter is a nil %T", exporter)}
		}
	}
	return nil
}
