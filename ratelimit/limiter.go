package ratelimit

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ratelimit")

// degradedWindow is how long after a redis failure the limiter reports
// itself degraded.
const degradedWindow = time.Minute

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter int
}

// Config wires the limiter. With no redis client every bucket is local.
type Config struct {
	Rules    []Rule
	Redis    redis.UniversalClient
	Disabled bool
}

// Limiter admits or rejects requests. The rule list is ordered: the
// first rule that yields a key for a request decides it, and only that
// rule's bucket is charged.
type Limiter struct {
	cfg      Config
	redis    *redisStore
	local    *localStore
	lastFail atomic.Int64 // unix nanos of the most recent redis failure
}

// New builds the limiter.
func New(cfg Config) *Limiter {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	l := &Limiter{cfg: cfg, local: newLocalStore()}
	if cfg.Redis != nil {
		l.redis = &redisStore{rdb: cfg.Redis}
	}
	return l
}

// Allow checks req against the first rule that recognizes it; a keyed
// client is never also debited from a later rule's bucket. Redis
// failures fail open to the local store so an unavailable backend never
// blocks traffic.
func (l *Limiter) Allow(ctx context.Context, req *http.Request) Decision {
	if l.cfg.Disabled {
		return Decision{Allowed: true}
	}
	for _, rule := range l.cfg.Rules {
		key := rule.Key(req)
		if key == "" {
			continue
		}
		d := l.take(ctx, key, rule)
		if !d.Allowed {
			deniedTotal.WithLabelValues(rule.ID).Inc()
			return d
		}
		allowedTotal.Inc()
		return d
	}
	allowedTotal.Inc()
	return Decision{Allowed: true}
}

func (l *Limiter) take(ctx context.Context, key string, rule Rule) Decision {
	if l.redis == nil {
		return l.local.take(key, rule)
	}
	d, err := l.redis.take(ctx, key, rule)
	if err != nil {
		redisFailures.Inc()
		l.lastFail.Store(time.Now().UnixNano())
		log.WithError(err).Debug("Redis bucket failed, falling back to local store")
		return l.local.take(key, rule)
	}
	return d
}

// Start satisfies the service lifecycle; the limiter has no goroutines.
func (l *Limiter) Start() {}

// Stop satisfies the service lifecycle.
func (l *Limiter) Stop() error { return nil }

// Status reports degraded while the limiter is running on its local
// fallback because redis recently failed.
func (l *Limiter) Status() error {
	last := l.lastFail.Load()
	if last == 0 {
		return nil
	}
	if time.Since(time.Unix(0, last)) < degradedWindow {
		return errors.New("rate limiting degraded to per-replica buckets: redis unreachable")
	}
	return nil
}
