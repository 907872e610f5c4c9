// Package logger provides an exporter that writes probe results to the log.
package logger

import (
	"context"
	"log/slog"

	"github.com/gravito-framework/hal-go/pkg/types"
)

// Exporter logs results as a single info line
type Exporter struct {
	logger *slog.Logger
}

// New creates the exporter. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Send implements probes.Exporter
func (e *Exporter) Send(_ context.Context, results types.Results) {
	e.logger.Info("probe results", "results", results)
}
