// Package redis builds go-redis clients from connection URLs.
package redis

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ParseURL parses a redis:// URL and returns options.
// The port defaults to 6379 and the path selects the database (redis://host/1).
func ParseURL(rawURL string) (*redis.Options, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty Redis URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if u.Scheme != "redis" {
		return nil, fmt.Errorf("invalid Redis URL: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid Redis URL: missing host")
	}

	opts := &redis.Options{Addr: u.Host}
	if u.Port() == "" {
		opts.Addr = u.Hostname() + ":6379"
	}

	if u.User != nil {
		opts.Username = u.User.Username()
		if pwd, ok := u.User.Password(); ok {
			opts.Password = pwd
		}
	}

	if len(u.Path) > 1 {
		db, err := strconv.Atoi(u.Path[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL: bad database %q", u.Path[1:])
		}
		opts.DB = db
	}

	return opts, nil
}

// NewClient creates a client without testing the connection
func NewClient(rawURL string) (*redis.Client, error) {
	opts, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
