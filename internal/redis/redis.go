package redis

import (
	"context"
	"fmt"
	"time"

	"discord-invite-tracker/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Client struct {
	client *redis.Client
	log    *zap.Logger
}

var ctx = context.Background()

func New(cfg config.RedisConfig, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	network := "tcp"
	if cfg.Network != "" {
		network = cfg.Network
	}
	// socket path
	if len(cfg.Addr) > 0 && cfg.Addr[0] == '/' {
		network = "unix"
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Network:      network,
		PoolSize:     20,
		MinIdleConns: 4,
		MaxRetries:   3,
		PoolTimeout:  4 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("redis connected", zap.String("network", network), zap.String("addr", cfg.Addr))

	return &Client{client: rdb, log: log.Named("redis")}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping() error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Set(key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Get(key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *Client) Del(keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *Client) HGetAll(key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// ExecutePipeline runs fn's queued commands in one round-trip.
func (c *Client) ExecutePipeline(fn func(redis.Pipeliner) error) error {
	pipe := c.client.TxPipeline()
	if err := fn(pipe); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}
