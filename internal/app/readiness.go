package app

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/httpserver"
)

// Pinger is anything that can report its own reachability.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal Redis surface needed for readiness.
type RedisClient interface {
	Ping(ctx context.Context) RedisPingResult
}

type goRedis struct{ rdb *redis.Client }

func (g goRedis) Ping(ctx context.Context) RedisPingResult { return g.rdb.Ping(ctx) }

// RedisReadiness adapts a go-redis client. A nil client yields nil.
func RedisReadiness(rdb *redis.Client) RedisClient {
	if rdb == nil {
		return nil
	}
	return goRedis{rdb: rdb}
}

// BuildReadinessChecks returns probes for whichever backends are wired.
// Unset backends are left out rather than reported as failing.
func BuildReadinessChecks(store, db Pinger, rdb RedisClient) []httpserver.Check {
	var checks []httpserver.Check
	if store != nil {
		checks = append(checks, httpserver.Check{Name: "reminder_store", Probe: store.Ping})
	}
	if db != nil {
		checks = append(checks, httpserver.Check{Name: "db", Probe: db.Ping})
	}
	if rdb != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}
