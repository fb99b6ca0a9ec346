package providerchain

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState represents the state of a provider circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen skips the provider until the recovery timeout passes.
	BreakerOpen
	// BreakerHalfOpen allows a probe call after recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after consecutive failures of one provider.
type Breaker struct {
	mu               sync.Mutex
	provider         string
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	state        BreakerState
	failureCount int
	lastFailure  time.Time
}

func newBreaker(provider string, threshold int, recovery time.Duration, now func() time.Time) *Breaker {
	return &Breaker{
		provider:         provider,
		failureThreshold: threshold,
		recoveryTimeout:  recovery,
		now:              now,
	}
}

// Allow reports whether a call should be attempted. An open breaker moves to
// half-open once the recovery timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerClosed {
		slog.Info("provider breaker closed after successful call", slog.String("provider", b.provider))
	}
	b.failureCount = 0
	b.state = BreakerClosed
}

// RecordFailure counts a failure and opens the breaker at the threshold. A
// failed half-open probe reopens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failureCount >= b.failureThreshold {
		if b.state != BreakerOpen {
			slog.Warn("provider breaker opened",
				slog.String("provider", b.provider),
				slog.Int("failure_count", b.failureCount),
				slog.Int("threshold", b.failureThreshold),
				slog.Duration("recovery", b.recoveryTimeout))
		}
		b.state = BreakerOpen
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
