package cache

import (
	"context"
	"discord-invite-tracker/internal/metrics"
	"discord-invite-tracker/internal/redis"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// Cache provides a multi-layer caching system with L1 (in-memory) and L2 (Redis).
// Values are stored as JSON so both layers hold the same bytes.
type Cache struct {
	l1           *ristretto.Cache
	l2           *redis.Client
	singleflight singleflight.Group
	ttl          time.Duration

	// per-guild generation, bumped to invalidate every key of a guild at once
	generations sync.Map
	epoch       uint64

	l1Hits   atomic.Uint64
	l1Misses atomic.Uint64
	l2Hits   atomic.Uint64
	l2Misses atomic.Uint64
}

type Config struct {
	L1MaxCost     int64         // bytes, default 10MB
	L1NumCounters int64         // default 100k
	DefaultTTL    time.Duration // default 1 minute
}

// NewCache creates a multi-layer cache. redis may be nil for an L1-only cache.
func NewCache(redis *redis.Client, cfg Config) (*Cache, error) {
	if cfg.L1MaxCost == 0 {
		cfg.L1MaxCost = 10 << 20
	}
	if cfg.L1NumCounters == 0 {
		cfg.L1NumCounters = 100000
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Minute
	}

	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.L1NumCounters,
		MaxCost:     cfg.L1MaxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &Cache{
		l1: l1,
		l2: redis,
		// keys from a previous process never collide with ours in L2
		epoch: uint64(time.Now().UnixNano()),
		ttl:   cfg.DefaultTTL,
	}, nil
}

func (c *Cache) generation(guildID string) *atomic.Uint64 {
	if g, ok := c.generations.Load(guildID); ok {
		return g.(*atomic.Uint64)
	}
	g := &atomic.Uint64{}
	g.Store(c.epoch)
	actual, _ := c.generations.LoadOrStore(guildID, g)
	return actual.(*atomic.Uint64)
}

// Key builds a guild-scoped key that changes whenever the guild is invalidated.
func (c *Cache) Key(guildID string, parts ...string) string {
	return fmt.Sprintf("stats:%s:%d:%s", guildID, c.generation(guildID).Load(), strings.Join(parts, ":"))
}

// InvalidateGuild drops every cached entry for guildID.
func (c *Cache) InvalidateGuild(guildID string) {
	c.generation(guildID).Add(1)
}

// GetJSON decodes key into dest, trying L1, then L2, then load. Concurrent misses on the
// same key share one load.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}, load func(ctx context.Context) (interface{}, error)) error {
	if val, found := c.l1.Get(key); found {
		c.l1Hits.Add(1)
		metrics.CacheResults.WithLabelValues("l1", "hit").Inc()
		return json.Unmarshal(val.([]byte), dest)
	}
	c.l1Misses.Add(1)
	metrics.CacheResults.WithLabelValues("l1", "miss").Inc()

	if c.l2 != nil {
		if val, err := c.l2.Get(key); err == nil && val != "" {
			c.l2Hits.Add(1)
			metrics.CacheResults.WithLabelValues("l2", "hit").Inc()
			raw := []byte(val)
			c.l1.SetWithTTL(key, raw, int64(len(raw)), c.ttl)
			return json.Unmarshal(raw, dest)
		}
		c.l2Misses.Add(1)
		metrics.CacheResults.WithLabelValues("l2", "miss").Inc()
	}

	val, err, _ := c.singleflight.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		c.Set(key, raw, c.ttl)
		return raw, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(val.([]byte), dest)
}

// Set stores raw JSON in both layers.
func (c *Cache) Set(key string, raw []byte, ttl time.Duration) {
	c.l1.SetWithTTL(key, raw, int64(len(raw)), ttl)
	c.l1.Wait()

	if c.l2 != nil {
		c.l2.Set(key, raw, ttl)
	}
}

// GetMetrics returns cache performance metrics
func (c *Cache) GetMetrics() Metrics {
	l1Metrics := c.l1.Metrics

	l1Total := c.l1Hits.Load() + c.l1Misses.Load()
	l2Total := c.l2Hits.Load() + c.l2Misses.Load()

	var l1HitRate, l2HitRate float64
	if l1Total > 0 {
		l1HitRate = float64(c.l1Hits.Load()) / float64(l1Total)
	}
	if l2Total > 0 {
		l2HitRate = float64(c.l2Hits.Load()) / float64(l2Total)
	}

	return Metrics{
		L1Hits:        c.l1Hits.Load(),
		L1Misses:      c.l1Misses.Load(),
		L1HitRate:     l1HitRate,
		L2Hits:        c.l2Hits.Load(),
		L2Misses:      c.l2Misses.Load(),
		L2HitRate:     l2HitRate,
		L1KeysAdded:   l1Metrics.KeysAdded(),
		L1KeysEvicted: l1Metrics.KeysEvicted(),
	}
}

type Metrics struct {
	L1Hits        uint64
	L1Misses      uint64
	L1HitRate     float64
	L2Hits        uint64
	L2Misses      uint64
	L2HitRate     float64
	L1KeysAdded   uint64
	L1KeysEvicted uint64
}

func (c *Cache) Close() {
	c.l1.Close()
}
