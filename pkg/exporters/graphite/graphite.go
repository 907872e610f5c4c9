// Package graphite provides an exporter that writes probe results to a
// Graphite (carbon) plaintext listener.
//
// Tags are sent with the Graphite tagged series syntax: "key:value" becomes
// ";key=value" and a bare label becomes ";label=true".
package graphite

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gravito-framework/hal-go/pkg/types"
	"github.com/marpaia/graphite-golang"
)

// Config configures the exporter
type Config struct {
	Host   string
	Port   int
	Prefix string
	Tags   []string
}

// Sender delivers a batch of metrics to carbon
type Sender interface {
	SendMetrics(metrics []graphite.Metric) error
	Disconnect() error
}

// Dialer opens a connection to carbon
type Dialer func(host string, port int) (Sender, error)

func dial(host string, port int) (Sender, error) {
	return graphite.NewGraphite(host, port)
}

// Exporter sends results in a single batch per Send
type Exporter struct {
	config Config
	logger *slog.Logger
	dial   Dialer
	now    func() time.Time
}

// Option configures the exporter
type Option func(*Exporter)

// WithDialer replaces the carbon connection
func WithDialer(d Dialer) Option {
	return func(e *Exporter) {
		e.dial = d
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates the exporter
func New(cfg Config, opts ...Option) *Exporter {
	if cfg.Port == 0 {
		cfg.Port = 2003
	}
	e := &Exporter{
		config: cfg,
		logger: slog.Default(),
		dial:   dial,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send implements probes.Exporter
func (e *Exporter) Send(_ context.Context, results types.Results) {
	if e.config.Host == "" {
		e.logger.Error("GraphiteExporter: host is not configured.")
		return
	}

	metrics := e.Convert(results)
	if len(metrics) == 0 {
		return
	}

	g, err := e.dial(e.config.Host, e.config.Port)
	if err != nil {
		e.logger.Error(fmt.Sprintf("GraphiteExporter: unable to connect. %v", err), "host", e.config.Host, "port", e.config.Port)
		return
	}
	defer g.Disconnect()

	if err := g.SendMetrics(metrics); err != nil {
		e.logger.Error(fmt.Sprintf("GraphiteExporter: unable to send metrics. %v", err))
		return
	}
	e.logger.Info(fmt.Sprintf("GraphiteExporter: %d metrics sent correctly", len(metrics)))
}

// Convert builds the carbon metrics for results, in metric name order
func (e *Exporter) Convert(results types.Results) []graphite.Metric {
	ts := e.now().Unix()
	metrics := make([]graphite.Metric, 0, results.Len())
	for _, name := range results.Names() {
		for _, point := range results[name] {
			tags := append([]string(nil), e.config.Tags...)
			tags = append(tags, point.Tags...)
			metrics = append(metrics, graphite.Metric{
				Name:      SeriesName(e.config.Prefix, name, tags),
				Value:     strconv.FormatFloat(point.Value, 'f', -1, 64),
				Timestamp: ts,
			})
		}
	}
	return metrics
}

// SeriesName builds a tagged series name, e.g. "hal.elmo.areas;name=Garage;status=armed"
func SeriesName(prefix, name string, tags []string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.TrimSuffix(prefix, "."))
		b.WriteByte('.')
	}
	b.WriteString(name)
	for _, tag := range tags {
		key, value, found := strings.Cut(tag, ":")
		if key == "" {
			continue
		}
		if !found || value == "" {
			value = "true"
		}
		b.WriteByte(';')
		b.WriteString(sanitize(key))
		b.WriteByte('=')
		b.WriteString(sanitize(value))
	}
	return b.String()
}

// sanitize drops the characters carbon reserves in tag names and values
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', '=', '~', '!', '^', ' ':
			return '_'
		}
		return r
	}, s)
}
