package reminder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// Service implements the chat-facing reminder commands.
type Service struct {
	store domain.ReminderStore
	ids   *IDGenerator
	loc   *time.Location
	now   func() time.Time
}

// NewService wires a Service; loc is the civil timezone commands are read in.
func NewService(store domain.ReminderStore, ids *IDGenerator, loc *time.Location, now func() time.Time) *Service {
	if ids == nil {
		ids = NewIDGenerator(now)
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, ids: ids, loc: loc, now: now}
}

// Location returns the service timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Add parses args and stores a new reminder for chatID.
func (s *Service) Add(ctx context.Context, chatID int64, args string) (domain.Reminder, error) {
	p, err := ParseCommand(args, s.now(), s.loc)
	if err != nil {
		return domain.Reminder{}, err
	}
	r := domain.Reminder{
		ID:     s.ids.Next(nil),
		ChatID: chatID,
		Time:   p.Time,
		Note:   p.Note,
		Type:   p.Type,
	}
	if err := s.store.Add(ctx, r); err != nil {
		return domain.Reminder{}, fmt.Errorf("op=reminder.Add: %w", err)
	}
	return r, nil
}

// ListForChat returns chatID's reminders ordered by time.
func (s *Service) ListForChat(ctx context.Context, chatID int64) ([]domain.Reminder, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=reminder.List: %w", err)
	}
	mine := make([]domain.Reminder, 0, len(all))
	for _, r := range all {
		if r.ChatID == chatID {
			mine = append(mine, r)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].Time.Before(mine[j].Time) })
	return mine, nil
}

// Delete removes a reminder by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("op=reminder.Delete: %w: empty id", domain.ErrInvalidArgument)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=reminder.Delete: %w", err)
	}
	return nil
}
