package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var log = logrus.WithField("prefix", "cache")

const (
	defaultL1Size = 4096
	defaultTTL    = time.Hour
	redisTimeout  = 150 * time.Millisecond
	redisPrefix   = "ephemerisd:pos:"
)

// Config sizes the cache tiers. Redis is optional; without it the cache
// is purely in-process.
type Config struct {
	L1Size int
	TTL    time.Duration
	Redis  redis.UniversalClient
}

type entry struct {
	data       []byte
	insertedAt time.Time
}

// Cache is a two-tier response cache with single-flight computation.
// Values are serialized response bodies; errors are never cached.
type Cache struct {
	l1    *lru.Cache[string, entry]
	ttl   time.Duration
	rdb   redis.UniversalClient
	group singleflight.Group
}

// New builds the cache.
func New(cfg Config) (*Cache, error) {
	if cfg.L1Size <= 0 {
		cfg.L1Size = defaultL1Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	l1, err := lru.New[string, entry](cfg.L1Size)
	if err != nil {
		return nil, errors.Wrap(err, "could not create LRU")
	}
	return &Cache{l1: l1, ttl: cfg.TTL, rdb: cfg.Redis}, nil
}

// ComputeFunc produces the serialized response for a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// GetOrCompute returns the cached response for key, or computes and caches
// it. Concurrent callers with the same key share one computation; the
// leader's work runs detached from any single caller's deadline so a
// canceled request cannot strand the rest of the flight. The bool reports
// whether the value came from cache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) ([]byte, bool, error) {
	if data, ok := c.getL1(key); ok {
		l1Hits.Inc()
		return data, true, nil
	}
	l1Misses.Inc()

	if data, ok := c.getL2(ctx, key); ok {
		l2Hits.Inc()
		c.l1.Add(key, entry{data: data, insertedAt: time.Now()})
		return data, true, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		data, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.l1.Add(key, entry{data: data, insertedAt: time.Now()})
		c.putL2(key, data)
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Peek reports whether key is presently cached, without promotion or
// computation. The conditional-request path uses it only as an
// optimization; ETag matching never requires a cache entry.
func (c *Cache) Peek(key string) bool {
	_, ok := c.getL1(key)
	return ok
}

func (c *Cache) getL1(key string) ([]byte, bool) {
	e, ok := c.l1.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(e.insertedAt) > c.ttl {
		c.l1.Remove(key)
		return nil, false
	}
	return e.data, true
}

func (c *Cache) getL2(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb == nil {
		return nil, false
	}
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	data, err := c.rdb.Get(rctx, redisPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l2Failures.Inc()
			log.WithError(err).Debug("Redis read failed, treating as miss")
		} else {
			l2Misses.Inc()
		}
		return nil, false
	}
	return data, true
}

// putL2 writes behind on a detached context; an unreachable redis only
// costs the shared tier, never the response.
func (c *Cache) putL2(key string, data []byte) {
	if c.rdb == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := c.rdb.Set(rctx, redisPrefix+key, data, c.ttl).Err(); err != nil {
		l2Failures.Inc()
		log.WithError(err).Debug("Redis write failed")
	}
}

// Len reports the L1 entry count, for the health endpoint.
func (c *Cache) Len() int {
	return c.l1.Len()
}

// PingL2 probes the shared tier with a bounded round trip. The bool
// reports whether a shared tier is configured at all.
func (c *Cache) PingL2(ctx context.Context) (bool, error) {
	if c.rdb == nil {
		return false, nil
	}
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	return true, c.rdb.Ping(rctx).Err()
}
