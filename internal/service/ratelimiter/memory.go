package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
)

type usage struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter keeps usage counters in process memory.
type MemoryLimiter struct {
	mu    sync.Mutex
	rules map[string]Rule
	usage map[string]usage
	now   func() time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter builds a limiter for the given feature rules. Features
// without a rule are never limited.
func NewMemoryLimiter(rules map[string]Rule, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		rules: make(map[string]Rule, len(rules)),
		usage: make(map[string]usage),
		now:   time.Now,
	}
	for k, v := range rules {
		l.rules[k] = v
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CheckAndIncrement implements Limiter.
func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, userID int64, feature string) (Decision, error) {
	rule, ok := l.rules[feature]
	if !ok || rule.Limit <= 0 {
		return allow(0, 0), nil
	}
	now := l.now()
	key := usageKey(userID, feature)

	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.usage[key]
	if !ok || !now.Before(u.expiresAt) {
		l.usage[key] = usage{count: 1, expiresAt: now.Add(rule.Window)}
		return allow(1, rule.Limit), nil
	}
	if u.count >= rule.Limit {
		observability.RateLimitDeniedTotal.WithLabelValues(feature).Inc()
		return deny(feature, u.count, rule.Limit, u.expiresAt.Sub(now)), nil
	}
	u.count++
	l.usage[key] = u
	return allow(u.count, rule.Limit), nil
}

// Sweep deletes expired records and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, u := range l.usage {
		if !now.Before(u.expiresAt) {
			delete(l.usage, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live records.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.usage)
}

// Run sweeps on every interval tick until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limit records swept", slog.Int("removed", n))
			}
		}
	}
}
