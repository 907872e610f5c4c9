// Package redis provides an exporter that stores the latest probe results in
// Redis, one key per metric name, expiring after a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gravito-framework/hal-go/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Setter is the subset of the go-redis client used by the exporter
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Config configures the exporter
type Config struct {
	Prefix string
	TTL    time.Duration
	Tags   []string
}

// Snapshot is the value stored under each key
type Snapshot struct {
	Metric    string        `json:"metric"`
	Points    []types.Point `json:"points"`
	Tags      []string      `json:"tags,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Exporter writes a Snapshot per metric name
type Exporter struct {
	client Setter
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates the exporter. A nil logger uses slog.Default().
func New(client Setter, cfg Config, logger *slog.Logger) *Exporter {
	if cfg.Prefix == "" {
		cfg.Prefix = "hal:metrics:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{client: client, config: cfg, logger: logger, now: time.Now}
}

// Key returns the key a metric is stored under
func (e *Exporter) Key(metric string) string {
	return e.config.Prefix + metric
}

// Send implements probes.Exporter
func (e *Exporter) Send(ctx context.Context, results types.Results) {
	if e.client == nil {
		e.logger.Error("RedisExporter: client is not configured.")
		return
	}

	ts := e.now().UnixMilli()
	for _, name := range results.Names() {
		data, err := json.Marshal(Snapshot{
			Metric:    name,
			Points:    results[name],
			Tags:      e.config.Tags,
			Timestamp: ts,
		})
		if err != nil {
			e.logger.Error(fmt.Sprintf("RedisExporter: failed to marshal metric '%s'", name), "error", err)
			continue
		}

		key := e.Key(name)
		if err := e.client.Set(ctx, key, data, e.config.TTL).Err(); err != nil {
			e.logger.Error(fmt.Sprintf("RedisExporter: unable to store metric '%s'", name), "key", key, "error", err)
			continue
		}
		e.logger.Debug("Metric stored", "key", key)
	}
}

// Reader is the subset of the go-redis client used to read snapshots back
type Reader interface {
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ReadSnapshots returns the snapshots stored under prefix, sorted by key.
// Keys that expired between listing and reading are skipped.
func ReadSnapshots(ctx context.Context, client Reader, prefix string) ([]Snapshot, error) {
	keys, err := client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)

	snapshots := make([]Snapshot, 0, len(keys))
	for _, key := range keys {
		val, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}

		var s Snapshot
		if err := json.Unmarshal(val, &s); err != nil {
			return nil, fmt.Errorf("invalid snapshot %s: %w", key, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}
