// Package config handles configuration loading from environment variables and files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Exporter names accepted in HAL_EXPORTERS
const (
	ExporterDatadog  = "datadog"
	ExporterLog      = "log"
	ExporterGraphite = "graphite"
	ExporterRedis    = "redis"
)

// Config holds the configuration of every probe and exporter.
// A single invocation only reads the sections it needs.
type Config struct {
	LogLevel  string   `koanf:"log_level"`
	Exporters []string `koanf:"exporters"`

	Datadog  DatadogConfig  `koanf:"datadog"`
	Graphite GraphiteConfig `koanf:"graphite"`
	Redis    RedisConfig    `koanf:"redis"`

	Elmo       ElmoConfig       `koanf:"elmo"`
	Paperspace PaperspaceConfig `koanf:"paperspace"`
	Parsec     ParsecConfig     `koanf:"parsec"`
	Watchdog   WatchdogConfig   `koanf:"watchdog"`
	System     SystemConfig     `koanf:"system"`
}

// DatadogConfig configures the metrics backend exporter
type DatadogConfig struct {
	APIKey   string `koanf:"api_key"`
	Hostname string `koanf:"hostname"`
	Site     string `koanf:"site"`
}

// GraphiteConfig configures the graphite exporter
type GraphiteConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	Prefix string `koanf:"prefix"`
}

// RedisConfig configures the redis exporter
type RedisConfig struct {
	URL    string        `koanf:"url"`
	Prefix string        `koanf:"prefix"`
	TTL    time.Duration `koanf:"ttl"`
}

// ElmoConfig configures the alarm panel probe
type ElmoConfig struct {
	BaseURL  string   `koanf:"base_url"`
	Vendor   string   `koanf:"vendor"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	Tags     []string `koanf:"tags"`
}

// PaperspaceConfig configures the GPU billing probe
type PaperspaceConfig struct {
	APIKey  string   `koanf:"api_key"`
	BaseURL string   `koanf:"base_url"`
	Tags    []string `koanf:"tags"`
}

// ParsecConfig configures the game streaming probe
type ParsecConfig struct {
	SessionID string   `koanf:"session_id"`
	URL       string   `koanf:"url"`
	Tags      []string `koanf:"tags"`
}

// WatchdogConfig configures the reachability probe
type WatchdogConfig struct {
	Hosts   []HostEntry   `koanf:"hosts"`
	Timeout time.Duration `koanf:"timeout"`
	Tags    []string      `koanf:"tags"`
}

// HostEntry is an address to ping and the tag its successes are counted under
type HostEntry struct {
	Address string `koanf:"address"`
	Tag     string `koanf:"tag"`
}

// SystemConfig configures the host statistics probe
type SystemConfig struct {
	SampleWindow time.Duration `koanf:"sample_window"`
	Tags         []string      `koanf:"tags"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		Exporters: []string{ExporterDatadog},
		Datadog: DatadogConfig{
			Hostname: "hal",
			Site:     "datadoghq.com",
		},
		Graphite: GraphiteConfig{
			Port: 2003,
		},
		Redis: RedisConfig{
			URL:    "redis://localhost:6379",
			Prefix: "hal:metrics:",
			TTL:    10 * time.Minute,
		},
		Watchdog: WatchdogConfig{
			Timeout: time.Second,
		},
		System: SystemConfig{
			SampleWindow: 500 * time.Millisecond,
		},
	}
}

// Load creates a Config from environment variables, on top of the file
// named by HAL_CONFIG_FILE when set.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("HAL_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the YAML file at path on the current configuration.
// Keys absent from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if err := k.Unmarshal("", c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.LogLevel, "HAL_LOG_LEVEL")
	if v := os.Getenv("HAL_EXPORTERS"); v != "" {
		c.Exporters = ParseList(v)
	}

	// Datadog
	setString(&c.Datadog.APIKey, "DD_API_KEY")
	setString(&c.Datadog.Hostname, "DD_HOSTNAME")
	setString(&c.Datadog.Site, "DD_SITE")

	// Graphite
	setString(&c.Graphite.Host, "GRAPHITE_HOST")
	setInt(&c.Graphite.Port, "GRAPHITE_PORT")
	setString(&c.Graphite.Prefix, "GRAPHITE_PREFIX")

	// Redis
	setString(&c.Redis.URL, "HAL_REDIS_URL")
	setString(&c.Redis.Prefix, "HAL_REDIS_PREFIX")
	setSeconds(&c.Redis.TTL, "HAL_REDIS_TTL")

	// Elmo
	setString(&c.Elmo.BaseURL, "ELMO_BASE_URL")
	setString(&c.Elmo.Vendor, "ELMO_VENDOR")
	setString(&c.Elmo.Username, "ELMO_USERNAME")
	setString(&c.Elmo.Password, "ELMO_PASSWORD")
	setList(&c.Elmo.Tags, "ELMO_TAGS")

	// Paperspace
	setString(&c.Paperspace.APIKey, "PAPERSPACE_API_KEY")
	setString(&c.Paperspace.BaseURL, "PAPERSPACE_BASE_URL")
	setList(&c.Paperspace.Tags, "PAPERSPACE_TAGS")

	// Parsec
	setString(&c.Parsec.SessionID, "PARSEC_TOKEN")
	setString(&c.Parsec.URL, "PARSEC_URL")
	setList(&c.Parsec.Tags, "PARSEC_TAGS")

	// Watchdog
	if v := os.Getenv("WATCHDOG_HOSTS"); v != "" {
		c.Watchdog.Hosts = ParseHosts(v)
	}
	setSeconds(&c.Watchdog.Timeout, "WATCHDOG_TIMEOUT")
	setList(&c.Watchdog.Tags, "WATCHDOG_TAGS")

	// System
	if v := os.Getenv("SYSTEM_SAMPLE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.System.SampleWindow = d
		}
	}
	setList(&c.System.Tags, "SYSTEM_TAGS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(seconds) * time.Second
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = ParseList(v)
	}
}

// ParseList parses a comma separated list, dropping empty items.
// Example: "env:prod, team:home" -> ["env:prod", "team:home"]
func ParseList(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// ParseHosts parses a whitespace separated list of "address|tag" pairs.
// An entry without a tag is counted under its own address.
// Example: "192.168.1.1|router 10.0.0.5|nas 10.0.0.6"
func ParseHosts(s string) []HostEntry {
	var hosts []HostEntry
	for _, field := range strings.Fields(s) {
		address, tag, found := strings.Cut(field, "|")
		if address == "" {
			continue
		}
		if !found || tag == "" {
			tag = address
		}
		hosts = append(hosts, HostEntry{Address: address, Tag: tag})
	}
	return hosts
}

// Validate checks the settings shared by all invocations
func (c *Config) Validate() error {
	if len(c.Exporters) == 0 {
		return &ConfigError{Field: "Exporters", Message: "at least one exporter is required (set HAL_EXPORTERS)"}
	}
	for _, name := range c.Exporters {
		switch name {
		case ExporterDatadog, ExporterLog, ExporterGraphite, ExporterRedis:
		default:
			return &ConfigError{Field: "Exporters", Message: fmt.Sprintf("unknown exporter %q", name)}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
