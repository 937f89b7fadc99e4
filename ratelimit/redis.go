package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ephemerisd:rl:"

// redisOpTimeout bounds every bucket operation so a slow redis degrades to
// fail-open instead of stalling requests.
const redisOpTimeout = 150 * time.Millisecond

// tokenBucketScript refills and takes atomically. The bucket is a hash of
// {tokens, ts}; refill is computed from elapsed time at per-second rate,
// clamped to burst. Returns {allowed, tokens*1000, retry_after_sec}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local burst = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local b = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(b[1])
local ts = tonumber(b[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
tokens = math.min(burst, tokens + (now - ts) * rate)
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)
local retry = 0
if allowed == 0 then
  retry = math.ceil((1 - tokens) / rate)
end
return {allowed, math.floor(tokens * 1000), retry}
`)

// redisStore runs token buckets on a shared redis.
type redisStore struct {
	rdb redis.UniversalClient
}

func (s *redisStore) take(ctx context.Context, key string, rule Rule) (Decision, error) {
	rctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	// TTL long enough for a full refill from empty, so idle buckets expire.
	ttl := int(float64(rule.Burst)/rule.PerSecond) + 60
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	res, err := tokenBucketScript.Run(rctx, s.rdb,
		[]string{redisKeyPrefix + key},
		rule.Burst, rule.PerSecond, now, ttl,
	).Slice()
	if err != nil {
		return Decision{}, errors.Wrap(err, "token bucket script failed")
	}
	if len(res) != 3 {
		return Decision{}, errors.Errorf("token bucket script returned %d values", len(res))
	}
	allowed, _ := res[0].(int64)
	milliTokens, _ := res[1].(int64)
	retry, _ := res[2].(int64)
	return Decision{
		Allowed:    allowed == 1,
		Remaining:  milliTokens / 1000,
		RetryAfter: int(retry),
	}, nil
}
