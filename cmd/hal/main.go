// HAL - scheduled monitoring probes
//
// Runs a single probe, then pushes its metrics through the configured
// exporters. Meant to be triggered periodically by an external scheduler
// (cron, Cloud Scheduler, a Kubernetes CronJob).
//
// Usage:
//
//	PARSEC_TOKEN=... DD_API_KEY=... hal parsec
//
// Or with a config file:
//
//	HAL_CONFIG_FILE=/etc/hal/config.yaml hal watchdog
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/functions"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 1
	}

	switch args[0] {
	case "--help", "-h":
		printBanner()
		printHelp()
		return 0
	case "--version", "-v":
		fmt.Printf("hal %s (commit: %s, built: %s)\n", version, commit, date)
		return 0
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := functions.Invoke(ctx, args[0], cfg, logger); err != nil {
		logger.Error("Invocation failed", "probe", args[0], "error", err)
		fmt.Fprintln(os.Stderr, "\nRun 'hal --help' for usage information.")
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner() {
	fmt.Printf(`
  ██   ██  █████  ██
  ██   ██ ██   ██ ██
  ███████ ███████ ██
  ██   ██ ██   ██ ██
  ██   ██ ██   ██ ███████
  HAL %s (%s)

`, version, commit[:min(7, len(commit))])
}

func printHelp() {
	fmt.Printf(`Usage: hal <probe> [options]

HAL runs one monitoring probe and sends the collected metrics to the
configured exporters. Probe failures are reported in the logs.

Probes:
  %s

Environment Variables:
  HAL_CONFIG_FILE       YAML config file, overridden by the variables below
  HAL_EXPORTERS         Comma separated exporters: datadog, log, graphite, redis (default: datadog)
  HAL_LOG_LEVEL         debug, info, warn, error (default: info)

  DD_API_KEY            Datadog API key
  DD_HOSTNAME           Hostname attached to Datadog metrics (default: hal)
  DD_SITE               Datadog site (default: datadoghq.com)
  GRAPHITE_HOST         Carbon host
  GRAPHITE_PORT         Carbon plaintext port (default: 2003)
  GRAPHITE_PREFIX       Prefix for every series name
  HAL_REDIS_URL         Redis URL (default: redis://localhost:6379)
  HAL_REDIS_PREFIX      Key prefix (default: hal:metrics:)
  HAL_REDIS_TTL         Key TTL in seconds (default: 600)

  ELMO_BASE_URL, ELMO_VENDOR, ELMO_USERNAME, ELMO_PASSWORD, ELMO_TAGS
  PAPERSPACE_API_KEY, PAPERSPACE_BASE_URL, PAPERSPACE_TAGS
  PARSEC_TOKEN, PARSEC_URL, PARSEC_TAGS
  WATCHDOG_HOSTS        Whitespace separated address|tag pairs
  WATCHDOG_TIMEOUT      Ping timeout in seconds (default: 1)
  WATCHDOG_TAGS
  SYSTEM_SAMPLE         CPU sample window (default: 500ms)
  SYSTEM_TAGS

Options:
  -h, --help      Show this help message
  -v, --version   Show version information

Examples:
  # Print the alarm panel state instead of sending it
  HAL_EXPORTERS=log ELMO_BASE_URL=https://connect.example.com ELMO_VENDOR=acme \
  ELMO_USERNAME=me ELMO_PASSWORD=secret hal elmo

  # Check which phones are at home, sending to Datadog and Graphite
  HAL_EXPORTERS=datadog,graphite GRAPHITE_HOST=carbon \
  WATCHDOG_HOSTS="192.168.1.10|phones 192.168.1.11|phones" hal watchdog
`, strings.Join(functions.Names(), ", "))
}
