package redisclient

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"render-engine/pkg/config"
)

// Client wraps the go-redis client to allow tailored helpers.
type Client struct {
	native *redis.Client
}

// New builds a redis client using service configuration and validates the connection.
func New(cfg config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr: cfg.GetRedisAddr(),
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}

	opts.DialTimeout = pickDuration(cfg.DialTimeout, 5*time.Second)
	opts.ReadTimeout = pickDuration(cfg.ReadTimeout, 3*time.Second)
	opts.WriteTimeout = pickDuration(cfg.WriteTimeout, 3*time.Second)

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cli := redis.NewClient(opts)
	if err := cli.Ping(context.Background()).Err(); err != nil {
		_ = cli.Close()
		return nil, err
	}

	return &Client{native: cli}, nil
}

// Raw exposes the underlying go-redis client for advanced use cases.
func (c *Client) Raw() *redis.Client {
	return c.native
}

// AcquireLock takes a best-effort distributed lock via SET NX. Returns false
// when another holder owns the key.
func (c *Client) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.native.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock releases a lock previously taken by owner. Releasing a lock the
// caller no longer owns is a no-op.
func (c *Client) ReleaseLock(ctx context.Context, key, owner string) error {
	val, err := c.native.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != owner {
		return nil
	}
	return c.native.Del(ctx, key).Err()
}

// Close stops the redis client and releases pooled connections.
func (c *Client) Close() error {
	return c.native.Close()
}

func pickDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
