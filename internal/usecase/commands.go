package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
)

// handleCancel reports a cancel already applied at admission. The abandoned
// job keeps running until its next checkpoint, where it notices it no longer
// owns the chat.
func (b *Bot) handleCancel(ctx context.Context, chatID int64, cancelled bool) {
	if cancelled {
		observability.LoggerFromContext(ctx).Info("request cancelled by user")
		b.reply(ctx, chatID, msgCancelled)
		return
	}
	b.reply(ctx, chatID, msgNothingToStop)
}

func (b *Bot) handleSystem(ctx context.Context, chatID int64, cmd command) {
	switch cmd.name {
	case "/reset":
		if b.Memory != nil {
			b.Memory.Clear(chatID)
		}
		b.reply(ctx, chatID, msgMemoryCleared)
	default:
		b.reply(ctx, chatID, fmt.Sprintf(helpText, b.cfg.CancelToken))
	}
}

// handleReminder serves /nn, /bt and /dtb. These never take the chat lock.
func (b *Bot) handleReminder(ctx context.Context, chatID int64, cmd command) {
	lg := observability.LoggerFromContext(ctx)
	if b.Reminders == nil {
		b.reply(ctx, chatID, msgStoreDown)
		return
	}
	loc := b.Reminders.Location()
	switch cmd.name {
	case "/nn":
		r, err := b.Reminders.Add(ctx, chatID, cmd.args)
		if err != nil {
			lg.Warn("reminder add failed", slog.Any("error", err))
			b.reply(ctx, chatID, reminderErrorMessage(err))
			return
		}
		lg.Info("reminder added", slog.String("reminder_id", r.ID), slog.String("type", string(r.Type)))
		b.reply(ctx, chatID, formatReminderSaved(r, loc))
	case "/bt":
		items, err := b.Reminders.ListForChat(ctx, chatID)
		if err != nil {
			lg.Warn("reminder list failed", slog.Any("error", err))
			b.reply(ctx, chatID, msgStoreDown)
			return
		}
		if len(items) == 0 {
			b.reply(ctx, chatID, msgNoReminders)
			return
		}
		b.reply(ctx, chatID, formatReminderList(items, loc))
	case "/dtb":
		if cmd.args == "" {
			b.reply(ctx, chatID, msgDeleteUsage)
			return
		}
		if err := b.Reminders.Delete(ctx, cmd.args); err != nil {
			lg.Warn("reminder delete failed", slog.Any("error", err))
			b.reply(ctx, chatID, msgStoreDown)
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf(msgDeleteSent, cmd.args))
	}
}
