// Package memory keeps a short rolling conversation window per chat.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/pkg/textx"
)

const (
	DefaultMaxTurns = 6
	DefaultMaxWords = 150
)

// Turn is one stored message.
type Turn struct {
	Role domain.Role
	Text string
}

// Context is the rolling window of one chat.
type Context struct {
	Turns        []Turn
	LastActiveAt time.Time
}

// Store holds conversation contexts in memory. Contexts are lost on restart.
type Store struct {
	mu       sync.Mutex
	chats    map[int64]*Context
	maxTurns int
	maxWords int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLimits sets the window size and the per-turn word cap.
func WithLimits(maxTurns, maxWords int) Option {
	return func(s *Store) {
		if maxTurns > 0 {
			s.maxTurns = maxTurns
		}
		if maxWords > 0 {
			s.maxWords = maxWords
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		chats:    make(map[int64]*Context),
		maxTurns: DefaultMaxTurns,
		maxWords: DefaultMaxWords,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append stores text under role, truncated to the word cap, evicting the
// oldest turn when the window is full.
func (s *Store) Append(chatID int64, role domain.Role, text string) {
	text = textx.TruncateWords(text, s.maxWords)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		c = &Context{}
		s.chats[chatID] = c
	}
	c.Turns = append(c.Turns, Turn{Role: role, Text: text})
	if over := len(c.Turns) - s.maxTurns; over > 0 {
		c.Turns = append([]Turn(nil), c.Turns[over:]...)
	}
	c.LastActiveAt = s.now()
}

// FormattedContext renders the window as "Role: text" lines, or "" when the
// chat has no history.
func (s *Store) FormattedContext(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok || len(c.Turns) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range c.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

// Turns returns a copy of the chat's window.
func (s *Store) Turns(chatID int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	return append([]Turn(nil), c.Turns...)
}

// Clear drops the chat's history.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}

// Len returns the number of stored contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

// Sweep removes whole contexts idle for longer than maxAge and returns how
// many were removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.chats {
		if c.LastActiveAt.Before(cutoff) {
			delete(s.chats, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval tick until ctx is done.
func (s *Store) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(maxAge); n > 0 {
				observability.MemorySweptTotal.Add(float64(n))
				slog.Debug("conversation contexts swept", slog.Int("removed", n), slog.Int("remaining", s.Len()))
			}
		}
	}
}
