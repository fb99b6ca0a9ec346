// Package reminder parses reminder commands and fires due reminders.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// Notifier delivers a reminder message.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Checked     int
	Due         int
	Sent        int
	Deleted     int
	Rescheduled int
	Failed      int
}

// Scheduler fires due reminders from the store.
type Scheduler struct {
	store         domain.ReminderStore
	notifier      Notifier
	ids           *IDGenerator
	reinsertDelay time.Duration
	now           func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReinsertDelay sets the pause before re-adding a daily reminder.
func WithReinsertDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.reinsertDelay = d }
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler wires a scheduler. ids may be shared with the Service so both
// draw from the same sequence.
func NewScheduler(store domain.ReminderStore, notifier Notifier, ids *IDGenerator, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:         store,
		notifier:      notifier,
		ids:           ids,
		reinsertDelay: time.Second,
		now:           time.Now,
	}
	if s.ids == nil {
		s.ids = NewIDGenerator(nil)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsDue reports whether r is due at now, compared at minute granularity.
func IsDue(r domain.Reminder, now time.Time) bool {
	return !now.Truncate(time.Minute).Before(r.Time.Truncate(time.Minute))
}

// FormatMessage renders the text sent when a reminder fires.
func FormatMessage(r domain.Reminder) string {
	return fmt.Sprintf("⏰ REMINDER:\n%s", r.Note)
}

// Run ticks once immediately, then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every due reminder once. A failure on one reminder never
// stops the others.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	tracer := otel.Tracer("reminder.scheduler")
	ctx, span := tracer.Start(ctx, "Scheduler.Tick")
	defer span.End()

	var res TickResult
	all, err := s.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		observability.ReminderErrorsTotal.WithLabelValues("list").Inc()
		slog.Error("reminder tick failed to list reminders", slog.Any("error", err))
		return res
	}
	res.Checked = len(all)

	taken := make(map[string]struct{}, len(all))
	for _, r := range all {
		taken[r.ID] = struct{}{}
	}

	now := s.now()
	for _, r := range all {
		if ctx.Err() != nil {
			break
		}
		if !IsDue(r, now) {
			continue
		}
		res.Due++
		s.fire(ctx, r, taken, &res)
	}

	span.SetAttributes(
		attribute.Int("reminders.checked", res.Checked),
		attribute.Int("reminders.due", res.Due),
		attribute.Int("reminders.failed", res.Failed),
	)
	if res.Due > 0 {
		slog.Info("reminder tick complete",
			slog.Int("checked", res.Checked),
			slog.Int("due", res.Due),
			slog.Int("sent", res.Sent),
			slog.Int("rescheduled", res.Rescheduled),
			slog.Int("failed", res.Failed))
	}
	return res
}

func (s *Scheduler) fire(ctx context.Context, r domain.Reminder, taken map[string]struct{}, res *TickResult) {
	lg := slog.With(slog.String("reminder_id", r.ID), slog.Int64("chat_id", r.ChatID), slog.String("type", string(r.Type)))
	defer func() {
		if rec := recover(); rec != nil {
			res.Failed++
			observability.ReminderErrorsTotal.WithLabelValues("panic").Inc()
			lg.Error("reminder processing panicked", slog.Any("panic", rec))
		}
	}()

	// delivery is best effort; the entry is removed either way
	if err := s.notifier.SendText(ctx, r.ChatID, FormatMessage(r)); err != nil {
		observability.ReminderErrorsTotal.WithLabelValues("send").Inc()
		lg.Warn("reminder delivery failed", slog.Any("error", err))
	} else {
		res.Sent++
		observability.RemindersFiredTotal.WithLabelValues(string(r.Type)).Inc()
	}

	if err := s.store.Delete(ctx, r.ID); err != nil {
		// keep the entry rather than risk a duplicate daily series
		res.Failed++
		observability.ReminderErrorsTotal.WithLabelValues("delete").Inc()
		lg.Error("reminder delete failed", slog.Any("error", err))
		return
	}
	res.Deleted++
	delete(taken, r.ID)

	if r.Type != domain.ReminderDaily {
		return
	}
	if s.reinsertDelay > 0 {
		select {
		case <-ctx.Done():
			lg.Warn("daily reminder not rescheduled; shutting down")
			res.Failed++
			return
		case <-time.After(s.reinsertDelay):
		}
	}
	next := domain.Reminder{
		ID:     s.ids.Next(taken),
		ChatID: r.ChatID,
		Time:   r.Time.Add(24 * time.Hour),
		Note:   r.Note,
		Type:   domain.ReminderDaily,
	}
	if err := s.store.Add(ctx, next); err != nil {
		res.Failed++
		observability.ReminderErrorsTotal.WithLabelValues("reschedule").Inc()
		lg.Error("daily reminder reschedule failed", slog.Any("error", err))
		return
	}
	taken[next.ID] = struct{}{}
	res.Rescheduled++
	lg.Debug("daily reminder rescheduled", slog.String("next_id", next.ID), slog.Time("next_time", next.Time))
}
