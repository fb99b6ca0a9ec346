// Package keypool rotates API credentials for one upstream service.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

const (
	defaultSingleKeyAttempts = 3
	defaultRetryDelay        = 2 * time.Second
)

// ParseKeys splits a raw key list on commas, semicolons or newlines, trimming
// whitespace and dropping empty entries. Order is preserved.
func ParseKeys(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		if k := strings.TrimSpace(f); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Pool is an ordered credential list with a current index.
type Pool struct {
	name     string
	keys     []string
	attempts int
	delay    time.Duration

	mu  sync.Mutex
	idx int
}

// Option configures a Pool.
type Option func(*Pool)

// WithSingleKeyRetry sets how a one-key pool retries transient failures.
func WithSingleKeyRetry(attempts int, delay time.Duration) Option {
	return func(p *Pool) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if delay >= 0 {
			p.delay = delay
		}
	}
}

// New builds a pool named name from a raw key list.
func New(name, raw string, opts ...Option) *Pool {
	p := &Pool{
		name:     name,
		keys:     ParseKeys(raw),
		attempts: defaultSingleKeyAttempts,
		delay:    defaultRetryDelay,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the pool's label.
func (p *Pool) Name() string { return p.name }

// Len returns the number of credentials.
func (p *Pool) Len() int { return len(p.keys) }

// Configured reports whether the pool has at least one credential.
func (p *Pool) Configured() bool { return len(p.keys) > 0 }

// Current returns the credential at the current index.
func (p *Pool) Current() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.idx], p.idx
}

// rotate advances from the index the caller observed. If another caller
// already moved the index, the pool is left alone so one failure never skips
// a healthy key.
func (p *Pool) rotate(from int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx != from {
		return
	}
	p.idx = (p.idx + 1) % len(p.keys)
	observability.KeyPoolRotationsTotal.WithLabelValues(p.name).Inc()
}

// ExhaustedError reports that every attempt on a pool hit transient capacity errors.
type ExhaustedError struct {
	Pool     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s pool exhausted after %d attempts: %v", e.Pool, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{domain.ErrPoolExhausted, e.Last} }

// Execute runs op with the pool's current credential.
//
// With several keys each key is tried at most once, rotating after every
// transient capacity failure. With a single key op is retried on the same key
// a fixed number of times with a fixed delay. Any other failure is returned
// unchanged and does not rotate.
func Execute[T any](ctx context.Context, p *Pool, op func(ctx context.Context, key string) (T, error)) (T, error) {
	var zero T
	if !p.Configured() {
		return zero, domain.NewProviderError(p.name, domain.CategoryConfig, fmt.Errorf("%w: no credentials for %s", domain.ErrNotConfigured, p.name))
	}
	if p.Len() == 1 {
		return executeSingle(ctx, p, op)
	}

	var lastErr error
	for attempt := 0; attempt < p.Len(); attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		key, idx := p.Current()
		out, err := op(ctx, key)
		if err == nil {
			return out, nil
		}
		if !domain.IsTransient(err) {
			return zero, err
		}
		lastErr = err
		slog.Warn("credential hit capacity limit; rotating",
			slog.String("pool", p.name),
			slog.Int("key_index", idx),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
		p.rotate(idx)
	}
	observability.KeyPoolExhaustedTotal.WithLabelValues(p.name).Inc()
	return zero, &ExhaustedError{Pool: p.name, Attempts: p.Len(), Last: lastErr}
}

func executeSingle[T any](ctx context.Context, p *Pool, op func(ctx context.Context, key string) (T, error)) (T, error) {
	var (
		out      T
		attempts int
		lastErr  error
	)
	key, _ := p.Current()
	operation := func() error {
		attempts++
		res, err := op(ctx, key)
		if err == nil {
			out = res
			return nil
		}
		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		lastErr = err
		slog.Warn("single credential hit capacity limit; retrying",
			slog.String("pool", p.name),
			slog.Int("attempt", attempts),
			slog.Duration("delay", p.delay),
			slog.Any("error", err))
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.delay), uint64(p.attempts-1)), ctx)
	err := backoff.Retry(operation, bo)
	if err == nil {
		return out, nil
	}
	var zero T
	if lastErr == nil || !domain.IsTransient(err) {
		// permanent error or cancelled context before any transient failure
		return zero, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	observability.KeyPoolExhaustedTotal.WithLabelValues(p.name).Inc()
	return zero, &ExhaustedError{Pool: p.name, Attempts: attempts, Last: lastErr}
}

// IsExhausted reports whether err came from an exhausted pool.
func IsExhausted(err error) bool { return errors.Is(err, domain.ErrPoolExhausted) }
