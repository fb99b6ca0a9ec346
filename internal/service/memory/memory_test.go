package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_KeepsLastNTurns(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 8; i++ {
		s.Append(1, domain.RoleUser, fmt.Sprintf("m%d", i))
	}
	turns := s.Turns(1)
	require.Len(t, turns, DefaultMaxTurns)
	assert.Equal(t, "m3", turns[0].Text)
	assert.Equal(t, "m8", turns[5].Text)
}

func TestAppend_TruncatesToWordCap(t *testing.T) {
	s := NewStore(WithLimits(6, 150))
	long := strings.TrimSpace(strings.Repeat("word ", 200))
	s.Append(1, domain.RoleAssistant, long)

	turns := s.Turns(1)
	require.Len(t, turns, 1)
	assert.Len(t, strings.Fields(turns[0].Text), 150)
}

func TestAppend_IgnoresEmpty(t *testing.T) {
	s := NewStore()
	s.Append(1, domain.RoleUser, "   ")
	assert.Zero(t, s.Len())
	assert.Equal(t, "", s.FormattedContext(1))
}

func TestFormattedContext(t *testing.T) {
	s := NewStore()
	s.Append(5, domain.RoleUser, "hello")
	s.Append(5, domain.RoleAssistant, "hi there")
	assert.Equal(t, "User: hello\nAssistant: hi there", s.FormattedContext(5))
	assert.Equal(t, "", s.FormattedContext(6))
}

func TestSweep_RemovesIdleContexts(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return now }))

	s.Append(1, domain.RoleUser, "old")
	now = now.Add(9 * time.Minute)
	s.Append(2, domain.RoleUser, "fresh")
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 1, s.Sweep(10*time.Minute))
	assert.Empty(t, s.Turns(1))
	assert.Len(t, s.Turns(2), 1)
}

func TestSweep_AppendRefreshesActivity(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return now }))
	s.Append(1, domain.RoleUser, "a")
	now = now.Add(8 * time.Minute)
	s.Append(1, domain.RoleAssistant, "b")
	now = now.Add(8 * time.Minute)
	assert.Zero(t, s.Sweep(10*time.Minute))
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Append(1, domain.RoleUser, "x")
	s.Clear(1)
	assert.Zero(t, s.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewStore(WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	s.Append(1, domain.RoleUser, "x")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()
	// entries stay fresh under this clock; only the loop shutdown is checked
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
