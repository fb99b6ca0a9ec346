package keypool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errQuota = domain.StatusError("test", 429, "quota exceeded")

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"single", "k1", []string{"k1"}},
		{"commas and spaces", " k1 , k2,,k3 ", []string{"k1", "k2", "k3"}},
		{"mixed separators", "k1;k2\nk3\r\nk4", []string{"k1", "k2", "k3", "k4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeys(tt.raw))
		})
	}
}

func TestExecute_RotatesOnTransientAndStartsFromNewIndex(t *testing.T) {
	p := New("gemini", "k1,k2,k3")
	var seen []string
	out, err := Execute(context.Background(), p, func(_ context.Context, key string) (string, error) {
		seen = append(seen, key)
		if key == "k1" {
			return "", errQuota
		}
		return "ok:" + key, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok:k2", out)
	assert.Equal(t, []string{"k1", "k2"}, seen)

	// the rotated index sticks for the next call
	key, idx := p.Current()
	assert.Equal(t, "k2", key)
	assert.Equal(t, 1, idx)
}

func TestExecute_NonTransientDoesNotRotate(t *testing.T) {
	p := New("groq", "k1,k2")
	calls := 0
	_, err := Execute(context.Background(), p, func(_ context.Context, _ string) (int, error) {
		calls++
		return 0, domain.StatusError("groq", 400, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	_, idx := p.Current()
	assert.Equal(t, 0, idx)
	assert.False(t, IsExhausted(err))
}

func TestExecute_AllKeysExhausted(t *testing.T) {
	p := New("tavily", "a,b,c")
	calls := 0
	_, err := Execute(context.Background(), p, func(_ context.Context, _ string) (string, error) {
		calls++
		return "", errQuota
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "each key tried exactly once")
	assert.True(t, IsExhausted(err))

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "tavily", ex.Pool)
	assert.Contains(t, err.Error(), "tavily")
	assert.Equal(t, domain.CategoryTransientCapacity, domain.CategoryOf(err))
}

func TestExecute_SingleKeyRetriesWithDelay(t *testing.T) {
	p := New("elevenlabs", "only", WithSingleKeyRetry(3, 5*time.Millisecond))
	calls := 0
	start := time.Now()
	_, err := Execute(context.Background(), p, func(_ context.Context, key string) (string, error) {
		calls++
		assert.Equal(t, "only", key)
		return "", errQuota
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.True(t, IsExhausted(err))
}

func TestExecute_SingleKeyRecovers(t *testing.T) {
	p := New("hf", "only", WithSingleKeyRetry(3, time.Millisecond))
	calls := 0
	out, err := Execute(context.Background(), p, func(_ context.Context, _ string) (string, error) {
		calls++
		if calls < 2 {
			return "", errQuota
		}
		return "img", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "img", out)
	assert.Equal(t, 2, calls)
}

func TestExecute_SingleKeyPermanentStopsImmediately(t *testing.T) {
	p := New("hf", "only", WithSingleKeyRetry(3, time.Millisecond))
	calls := 0
	bad := domain.StatusError("hf", 401, "bad key")
	_, err := Execute(context.Background(), p, func(_ context.Context, _ string) (string, error) {
		calls++
		return "", bad
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, bad)
}

func TestExecute_EmptyPool(t *testing.T) {
	p := New("groq", " , ")
	called := false
	_, err := Execute(context.Background(), p, func(_ context.Context, _ string) (string, error) {
		called = true
		return "", nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.Equal(t, domain.CategoryConfig, domain.CategoryOf(err))
}

func TestExecute_CancelledContext(t *testing.T) {
	p := New("gemini", "k1,k2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, p, func(_ context.Context, _ string) (string, error) {
		t.Fatal("op must not run on a cancelled context")
		return "", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRotate_IgnoresStaleIndex(t *testing.T) {
	p := New("x", "a,b,c")
	p.rotate(0)
	p.rotate(0) // a second caller that observed index 0 must not skip b
	_, idx := p.Current()
	assert.Equal(t, 1, idx)
}
