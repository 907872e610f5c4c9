// hal-inspect prints the latest metrics stored by the redis exporter.
//
// Usage:
//
//	HAL_REDIS_URL=redis://localhost:6379 hal-inspect
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	hredis "github.com/gravito-framework/hal-go/internal/redis"
	"github.com/gravito-framework/hal-go/pkg/config"
	"github.com/gravito-framework/hal-go/pkg/exporters/redis"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr))
}

func run(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	client, err := hredis.NewClient(cfg.Redis.URL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshots, err := redis.ReadSnapshots(ctx, client, cfg.Redis.Prefix)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	render(stdout, snapshots)
	return 0
}

func render(w io.Writer, snapshots []redis.Snapshot) {
	fmt.Fprintf(w, "Found %d metrics:\n\n", len(snapshots))
	for _, s := range snapshots {
		fmt.Fprintf(w, "%s (updated %s)\n", s.Metric, time.UnixMilli(s.Timestamp).UTC().Format(time.RFC3339))
		if len(s.Tags) > 0 {
			fmt.Fprintf(w, "   Tags: %s\n", strings.Join(s.Tags, ", "))
		}
		for _, p := range s.Points {
			if p.Tagged() {
				fmt.Fprintf(w, "   - %g [%s]\n", p.Value, strings.Join(p.Tags, ", "))
			} else {
				fmt.Fprintf(w, "   - %g\n", p.Value)
			}
		}
	}
}
