// Package testutil provides helpers shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gravito-framework/hal-go/pkg/types"
)

// LogBuffer captures slog text output
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Lines returns the captured lines, optionally filtered by level
// ("DEBUG", "INFO", "WARN", "ERROR").
func (b *LogBuffer) Lines(level string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		if level != "" && !strings.Contains(line, "level="+level) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// String returns everything captured so far
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewLogger returns a debug level logger writing into the returned buffer
func NewLogger() (*slog.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, buf
}

// RecordingExporter records every Send call
type RecordingExporter struct {
	mu    sync.Mutex
	Calls []types.Results
}

// Send implements probes.Exporter
func (e *RecordingExporter) Send(_ context.Context, results types.Results) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, results)
}

// Count returns the number of Send calls
func (e *RecordingExporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
