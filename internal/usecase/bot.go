// Package usecase turns inbound chat events into provider calls and replies.
package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/ai"
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/lifecycle"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/memory"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/reminder"
)

// DefaultSystemPrompt is sent with every chat request.
const DefaultSystemPrompt = "You are a helpful assistant. Answer concisely."

// ChatChain answers chat requests; *providerchain.Chain satisfies it.
type ChatChain interface {
	Invoke(ctx context.Context, req domain.ChatRequest) (string, error)
}

// ImageChain renders images.
type ImageChain interface {
	Invoke(ctx context.Context, prompt string) (domain.Media, error)
}

// VoiceChain synthesizes speech.
type VoiceChain interface {
	Invoke(ctx context.Context, text string) (domain.Media, error)
}

// SearchChain runs web searches.
type SearchChain interface {
	Invoke(ctx context.Context, query string) (domain.SearchResponse, error)
}

// Settings are the dispatcher's tunables.
type Settings struct {
	SystemPrompt   string
	CancelToken    string
	MaxFileBytes   int64
	DocTokenBudget int
	DocModel       string
	ChunkSize      int
}

// Deps groups the collaborators of a Bot. Chains left nil disable their
// commands.
type Deps struct {
	Messenger domain.Messenger
	Lifecycle *lifecycle.Tracker
	Memory    *memory.Store
	Limiter   ratelimiter.Limiter
	Reminders *reminder.Service

	Chat   ChatChain
	Vision ChatChain
	Image  ImageChain
	Voice  VoiceChain
	Search SearchChain
}

// Bot dispatches inbound events.
type Bot struct {
	Deps
	cfg     Settings
	cleaner *ai.ResponseCleaner
}

// NewBot builds a dispatcher, filling unset settings with defaults.
func NewBot(d Deps, s Settings) *Bot {
	if s.SystemPrompt == "" {
		s.SystemPrompt = DefaultSystemPrompt
	}
	if s.CancelToken == "" {
		s.CancelToken = "//"
	}
	if s.MaxFileBytes <= 0 {
		s.MaxFileBytes = 10 << 20
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = 4000
	}
	if d.Lifecycle == nil {
		d.Lifecycle = lifecycle.NewTracker()
	}
	return &Bot{Deps: d, cfg: s, cleaner: ai.NewResponseCleaner()}
}

// command is a parsed slash command.
type command struct {
	name string
	args string
}

// parseCommand splits "/name@bot args" into its parts. Non-commands return
// an empty name.
func parseCommand(text string) command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}
	}
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	if at := strings.Index(head, "@"); at >= 0 {
		head = head[:at]
	}
	return command{name: strings.ToLower(head), args: strings.TrimSpace(rest)}
}

// Kinds of inbound events, in classification order.
const (
	kindCancel   = "cancel"
	kindReminder = "reminder"
	kindSystem   = "system"
	kindImage    = "image"
	kindVoice    = "voice"
	kindSearch   = "search"
	kindCheck    = "check"
	kindChat     = "chat"
)

func (b *Bot) classify(ev domain.InboundEvent) (string, command) {
	text := ev.Text
	if text == "" {
		text = ev.Caption
	}
	if strings.TrimSpace(text) == b.cfg.CancelToken {
		return kindCancel, command{}
	}
	cmd := parseCommand(text)
	switch cmd.name {
	case "/nn", "/bt", "/dtb":
		return kindReminder, cmd
	case "/start", "/help", "/reset":
		return kindSystem, cmd
	case "/img", "/image":
		return kindImage, cmd
	case "/voice", "/tts":
		return kindVoice, cmd
	case "/search", "/s":
		return kindSearch, cmd
	case "/check", "/verify":
		return kindCheck, cmd
	}
	return kindChat, command{args: text}
}

// Handle processes one inbound event end to end. It never panics and never
// returns an error; failures are reported to the chat or logged.
func (b *Bot) Handle(ctx context.Context, ev domain.InboundEvent) {
	if run := b.Admit(ctx, ev); run != nil {
		run(ctx)
	}
}

// Admit classifies ev and applies its effect on the chat lock right away:
// the cancel token clears the lock and AI commands take it. Callers must
// admit one chat's events in arrival order; the returned work (replies,
// provider calls) may then run concurrently. A nil result means there is
// nothing left to do. Work returned for an admitted job must be run, since
// it releases the lock.
func (b *Bot) Admit(ctx context.Context, ev domain.InboundEvent) func(context.Context) {
	if strings.TrimSpace(ev.Text) == "" && strings.TrimSpace(ev.Caption) == "" && ev.Photo == nil && ev.Document == nil {
		return nil
	}
	rid := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	lg := observability.LoggerFromContext(ctx).With(slog.Int64("chat_id", ev.ChatID), slog.String("request_id", rid))

	kind, cmd := b.classify(ev)
	observability.UpdatesTotal.WithLabelValues(kind).Inc()
	lg.Info("update received", slog.String("kind", kind), slog.String("command", cmd.name))

	u := update{ev: ev, kind: kind, rid: rid, lg: lg}
	switch kind {
	case kindCancel:
		cancelled := b.Lifecycle.ForceCancel(ev.ChatID)
		return b.work(u, func(ctx context.Context) { b.handleCancel(ctx, ev.ChatID, cancelled) })
	case kindReminder:
		return b.work(u, func(ctx context.Context) { b.handleReminder(ctx, ev.ChatID, cmd) })
	case kindSystem:
		return b.work(u, func(ctx context.Context) { b.handleSystem(ctx, ev.ChatID, cmd) })
	}
	job, ok := b.Lifecycle.Begin(ev.ChatID)
	if !ok {
		return b.work(u, func(ctx context.Context) {
			observability.LoggerFromContext(ctx).Info("chat busy; request rejected")
			b.reply(ctx, ev.ChatID, fmt.Sprintf(msgBusy, b.cfg.CancelToken))
		})
	}
	return b.work(u, func(ctx context.Context) { b.runJob(ctx, job, ev, kind, cmd) })
}

// update carries what admission learned about an event into its work.
type update struct {
	ev   domain.InboundEvent
	kind string
	rid  string
	lg   *slog.Logger
}

// work wraps fn with the per-update logger, request id, span and panic guard.
func (b *Bot) work(u update, fn func(ctx context.Context)) func(context.Context) {
	return func(ctx context.Context) {
		ctx = observability.ContextWithLogger(ctx, u.lg)
		ctx = observability.ContextWithRequestID(ctx, u.rid)
		ctx, span := otel.Tracer("usecase.bot").Start(ctx, "Bot.Handle")
		defer span.End()
		span.SetAttributes(
			attribute.Int64("chat.id", u.ev.ChatID),
			attribute.String("update.kind", u.kind),
			attribute.String("request.id", u.rid),
		)
		defer func() {
			if r := recover(); r != nil {
				u.lg.Error("panic while handling update", slog.Any("panic", r))
				span.SetStatus(codes.Error, fmt.Sprint(r))
			}
		}()
		fn(ctx)
	}
}

// reply sends text and logs delivery failures.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.Messenger.SendText(ctx, chatID, text); err != nil {
		observability.LoggerFromContext(ctx).Warn("reply failed", slog.Any("error", err))
	}
}
