package ratelimiter

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
)

// luaFixedWindowScript counts one use and reports {allowed, count, ttl_ms}.
// The window starts with the first use; a denied use is not counted.
const luaFixedWindowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
  redis.call("PEXPIRE", key, window_ms)
  ttl = window_ms
end

if count > limit then
  redis.call("DECR", key)
  return { 0, count - 1, ttl }
end
return { 1, count, ttl }
`

// RedisLimiter shares usage counters across replicas. Key expiry replaces the
// sweep. It fails open when Redis is unavailable.
type RedisLimiter struct {
	redis  *redis.Client
	rules  map[string]Rule
	script *redis.Script
	prefix string
}

// NewRedisLimiter returns nil when rdb is nil.
func NewRedisLimiter(rdb *redis.Client, rules map[string]Rule) *RedisLimiter {
	if rdb == nil {
		return nil
	}
	cp := make(map[string]Rule, len(rules))
	for k, v := range rules {
		cp[k] = v
	}
	return &RedisLimiter{
		redis:  rdb,
		rules:  cp,
		script: redis.NewScript(luaFixedWindowScript),
		prefix: "relay:usage:",
	}
}

// CheckAndIncrement implements Limiter.
func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, userID int64, feature string) (Decision, error) {
	if l == nil || l.redis == nil {
		return allow(0, 0), nil
	}
	rule, ok := l.rules[feature]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return allow(0, 0), nil
	}

	res, err := l.script.Run(ctx, l.redis, []string{l.prefix + usageKey(userID, feature)}, rule.Limit, rule.Window.Milliseconds()).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.Int64("user_id", userID), slog.String("feature", feature), slog.Any("error", err))
		// Fail open: the limiter guards cost, not correctness.
		return allow(0, rule.Limit), err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		slog.Error("redis rate limiter unexpected script result", slog.String("feature", feature), slog.Any("result", res))
		return allow(0, rule.Limit), nil
	}

	count := int(toInt64(vals[1]))
	if toInt64(vals[0]) != 1 {
		observability.RateLimitDeniedTotal.WithLabelValues(feature).Inc()
		retryAfter := time.Duration(toInt64(vals[2])) * time.Millisecond
		return deny(feature, count, rule.Limit, retryAfter), nil
	}
	return allow(count, rule.Limit), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
