// Package memory is an in-process reminder store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// Store keeps reminders in insertion order.
type Store struct {
	mu    sync.RWMutex
	items []domain.Reminder
}

// New returns an empty store.
func New() *Store { return &Store{} }

func (s *Store) List(_ context.Context) ([]domain.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Reminder(nil), s.items...), nil
}

func (s *Store) Add(_ context.Context, r domain.Reminder) error {
	if r.ID == "" || !r.Type.Valid() {
		return fmt.Errorf("op=memory.Add: %w", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, r)
	return nil
}

// Delete removes every entry with id. Unknown ids are not an error.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items[:0]
	for _, r := range s.items {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.items = out
	return nil
}

var _ domain.ReminderStore = (*Store)(nil)
