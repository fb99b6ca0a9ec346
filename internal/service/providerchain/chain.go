// Package providerchain tries interchangeable backends for one capability
// until one succeeds.
//
// Rotating chains spread load: each call starts at a cursor that moves past the
// provider that last succeeded. Priority chains always start with the first
// provider and only fall through on failure.
package providerchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// Mode selects where a call starts.
type Mode int

const (
	// Rotating starts at the cursor and advances it past each success.
	Rotating Mode = iota
	// Priority always starts at the first provider.
	Priority
)

func (m Mode) String() string {
	if m == Priority {
		return "priority"
	}
	return "rotating"
}

// Provider is one backend of a chain.
type Provider[In, Out any] struct {
	Name    string
	Enabled bool
	Call    func(ctx context.Context, in In) (Out, error)
}

// Attempt records one failed provider call.
type Attempt struct {
	Provider string
	Category domain.Category
	Err      error
	Latency  time.Duration
}

// ChainError is returned when every enabled provider failed.
type ChainError struct {
	Chain    string
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %v: no enabled provider", e.Chain, domain.ErrAllProvidersFailed)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", a.Provider, a.Category, a.Err))
	}
	return fmt.Sprintf("%s: %v: %s", e.Chain, domain.ErrAllProvidersFailed, strings.Join(parts, "; "))
}

func (e *ChainError) Unwrap() error { return domain.ErrAllProvidersFailed }

type settings struct {
	breakerThreshold int
	breakerRecovery  time.Duration
	now              func() time.Time
}

// Option configures a Chain.
type Option func(*settings)

// WithBreaker enables per-provider circuit breakers. A provider is skipped
// after threshold consecutive failures until recovery has elapsed.
func WithBreaker(threshold int, recovery time.Duration) Option {
	return func(s *settings) {
		s.breakerThreshold = threshold
		s.breakerRecovery = recovery
	}
}

// WithClock overrides the breaker time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Chain is an ordered provider list for one capability.
type Chain[In, Out any] struct {
	name      string
	mode      Mode
	providers []Provider[In, Out]
	breakers  map[string]*Breaker

	mu     sync.Mutex
	cursor int
}

// New builds a chain. The provider slice is copied.
func New[In, Out any](name string, mode Mode, providers []Provider[In, Out], opts ...Option) *Chain[In, Out] {
	s := settings{now: time.Now}
	for _, o := range opts {
		o(&s)
	}
	c := &Chain[In, Out]{
		name:      name,
		mode:      mode,
		providers: append([]Provider[In, Out](nil), providers...),
	}
	if s.breakerThreshold > 0 {
		c.breakers = make(map[string]*Breaker, len(providers))
		for _, p := range providers {
			c.breakers[p.Name] = newBreaker(p.Name, s.breakerThreshold, s.breakerRecovery, s.now)
		}
	}
	return c
}

// Name returns the chain label.
func (c *Chain[In, Out]) Name() string { return c.name }

// Cursor returns the index the next rotating call starts from.
func (c *Chain[In, Out]) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Enabled returns the names of enabled providers in chain order.
func (c *Chain[In, Out]) Enabled() []string {
	out := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		if p.Enabled {
			out = append(out, p.Name)
		}
	}
	return out
}

// BreakerState reports the breaker state of provider, or closed when breakers are off.
func (c *Chain[In, Out]) BreakerState(provider string) BreakerState {
	if b, ok := c.breakers[provider]; ok {
		return b.State()
	}
	return BreakerClosed
}

// candidates lists enabled provider indexes in call order, each at most once.
func (c *Chain[In, Out]) candidates() []int {
	n := len(c.providers)
	start := 0
	if c.mode == Rotating {
		c.mu.Lock()
		start = c.cursor
		c.mu.Unlock()
	}
	order := make([]int, 0, n)
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if c.providers[i].Enabled {
			order = append(order, i)
		}
	}
	if c.breakers == nil {
		return order
	}
	allowed := make([]int, 0, len(order))
	for _, i := range order {
		if c.breakers[c.providers[i].Name].Allow() {
			allowed = append(allowed, i)
		}
	}
	if len(allowed) == 0 {
		// every breaker is open; degrade to trying them all
		return order
	}
	return allowed
}

// Invoke calls providers in order until one succeeds. It stops early when ctx
// is done and returns a *ChainError when every candidate failed.
func (c *Chain[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	var zero Out
	ctx, span := otel.Tracer("providerchain").Start(ctx, "providerchain.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("chain", c.name), attribute.String("mode", c.mode.String()))

	lg := observability.LoggerFromContext(ctx)
	var attempts []Attempt
	for _, i := range c.candidates() {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "context done")
			return zero, fmt.Errorf("op=providerchain.%s: %w", c.name, err)
		}
		p := c.providers[i]
		start := time.Now()
		out, err := p.Call(ctx, in)
		dur := time.Since(start)
		observability.ObserveProviderCall(c.name, p.Name, err == nil, dur)
		if err == nil {
			if b := c.breakers[p.Name]; b != nil {
				b.RecordSuccess()
			}
			if c.mode == Rotating {
				c.mu.Lock()
				c.cursor = (i + 1) % len(c.providers)
				c.mu.Unlock()
			}
			span.SetAttributes(attribute.String("provider", p.Name), attribute.Int("failed_attempts", len(attempts)))
			lg.Debug("provider succeeded", slog.String("chain", c.name), slog.String("provider", p.Name), slog.Duration("latency", dur))
			return out, nil
		}
		if b := c.breakers[p.Name]; b != nil {
			b.RecordFailure()
		}
		cat := domain.CategoryOf(err)
		attempts = append(attempts, Attempt{Provider: p.Name, Category: cat, Err: err, Latency: dur})
		lg.Warn("provider failed; trying next",
			slog.String("chain", c.name),
			slog.String("provider", p.Name),
			slog.String("category", cat.String()),
			slog.Duration("latency", dur),
			slog.Any("error", err))
	}
	chainErr := &ChainError{Chain: c.name, Attempts: attempts}
	span.RecordError(chainErr)
	span.SetStatus(codes.Error, "all providers failed")
	lg.Error("all providers failed", slog.String("chain", c.name), slog.Int("attempts", len(attempts)))
	return zero, chainErr
}
