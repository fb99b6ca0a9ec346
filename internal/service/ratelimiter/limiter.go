// Package ratelimiter caps per-user use of expensive features within a fixed window.
package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Limiter checks and counts one use of feature by user.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, userID int64, feature string) (Decision, error)
}

// Rule is the allowance of a feature per window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one check. A denied call is not counted.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
	Message    string
}

func allow(count, limit int) Decision {
	return Decision{Allowed: true, Count: count, Limit: limit}
}

func deny(feature string, count, limit int, retryAfter time.Duration) Decision {
	return Decision{
		Allowed:    false,
		Count:      count,
		Limit:      limit,
		RetryAfter: retryAfter,
		Message:    denyMessage(feature, limit, retryAfter),
	}
}

func denyMessage(feature string, limit int, retryAfter time.Duration) string {
	mins := int(math.Ceil(retryAfter.Minutes()))
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("⏳ You have used %s %d times in this window. Try again in %d min.", feature, limit, mins)
}

func usageKey(userID int64, feature string) string {
	return fmt.Sprintf("%d:%s", userID, feature)
}
