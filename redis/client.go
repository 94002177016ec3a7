package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cabepi/lab-pbm-senasa/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client used by the workflow store
type Client struct {
	client *redis.Client
}

// NewClient connects and pings the server
func NewClient(cfg config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{client: rdb}, nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying go-redis client
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// Ping checks the connection for health probes
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
