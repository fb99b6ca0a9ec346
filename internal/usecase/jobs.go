package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/config"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/lifecycle"
	"github.com/fairyhunter13/ai-relay-bot/pkg/textx"
)

// Chat actions understood by the messenger.
const (
	actionTyping      = "typing"
	actionUploadPhoto = "upload_photo"
	actionRecordVoice = "record_voice"
)

// runJob executes an AI-processing command under the lock taken at
// admission. The lock is released when the job returns whatever the outcome;
// a cancelled job's results and errors are dropped at the next checkpoint.
func (b *Bot) runJob(ctx context.Context, job *lifecycle.Job, ev domain.InboundEvent, kind string, cmd command) {
	defer job.Release()
	lg := observability.LoggerFromContext(ctx)
	lg = lg.With(slog.Uint64("job_id", uint64(job.ID)))
	ctx = observability.ContextWithLogger(ctx, lg)
	trace.SpanFromContext(ctx).AddEvent("lock acquired")

	var err error
	switch kind {
	case kindImage:
		err = b.imageJob(ctx, job, cmd.args)
	case kindVoice:
		err = b.voiceJob(ctx, job, cmd.args)
	case kindSearch:
		err = b.searchJob(ctx, job, cmd.args)
	case kindCheck:
		err = b.checkJob(ctx, job, cmd.args)
	default:
		err = b.chatJob(ctx, job, ev, cmd.args)
	}
	if err == nil {
		lg.Info("job finished", slog.Duration("took", job.Age()))
		return
	}
	if !job.Current() {
		lg.Info("cancelled job failed; error dropped", slog.Any("error", err))
		return
	}
	lg.Warn("job failed", slog.String("category", domain.CategoryOf(err).String()), slog.Any("error", err))
	b.reply(ctx, ev.ChatID, userMessageFor(err, int(b.cfg.MaxFileBytes>>20)))
}

// status sends a progress note if the job still owns the chat.
func (b *Bot) status(ctx context.Context, job *lifecycle.Job, text string) {
	if job.Current() {
		b.reply(ctx, job.ChatID, text)
	}
}

func (b *Bot) action(ctx context.Context, job *lifecycle.Job, action string) {
	if !job.Current() {
		return
	}
	if err := b.Messenger.SendChatAction(ctx, job.ChatID, action); err != nil {
		observability.LoggerFromContext(ctx).Debug("chat action failed", slog.Any("error", err))
	}
}

// allowed consults the feature limiter. It replies and returns false when the
// user is over their allowance. Limiter errors fail open.
func (b *Bot) allowed(ctx context.Context, job *lifecycle.Job, feature string) bool {
	if b.Limiter == nil {
		return true
	}
	d, err := b.Limiter.CheckAndIncrement(ctx, job.ChatID, feature)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("rate limiter unavailable; allowing", slog.String("feature", feature), slog.Any("error", err))
	}
	if d.Allowed {
		return true
	}
	b.status(ctx, job, d.Message)
	return false
}

// deliverText sends an answer in chunks, re-checking ownership before each.
func (b *Bot) deliverText(ctx context.Context, job *lifecycle.Job, text string) bool {
	for _, chunk := range textx.Chunk(text, b.cfg.ChunkSize) {
		if !job.Current() {
			return false
		}
		if err := b.Messenger.SendText(ctx, job.ChatID, chunk); err != nil {
			observability.LoggerFromContext(ctx).Warn("answer delivery failed", slog.Any("error", err))
			return false
		}
	}
	return true
}

func (b *Bot) imageJob(ctx context.Context, job *lifecycle.Job, prompt string) error {
	if prompt == "" {
		b.status(ctx, job, msgMissingPrompt)
		return nil
	}
	if b.Image == nil {
		return fmt.Errorf("op=usecase.image: %w", domain.ErrNotConfigured)
	}
	if !b.allowed(ctx, job, config.FeatureImage) {
		return nil
	}
	b.status(ctx, job, msgDrawing)
	b.action(ctx, job, actionUploadPhoto)
	img, err := b.Image.Invoke(ctx, prompt)
	if err != nil {
		return fmt.Errorf("op=usecase.image: %w", err)
	}
	if !job.Current() {
		return nil
	}
	if err := b.Messenger.SendPhoto(ctx, job.ChatID, img, prompt); err != nil {
		return fmt.Errorf("op=usecase.image: deliver: %w", err)
	}
	return nil
}

func (b *Bot) voiceJob(ctx context.Context, job *lifecycle.Job, text string) error {
	if text == "" {
		b.status(ctx, job, msgMissingVoice)
		return nil
	}
	if b.Voice == nil {
		return fmt.Errorf("op=usecase.voice: %w", domain.ErrNotConfigured)
	}
	if !b.allowed(ctx, job, config.FeatureVoice) {
		return nil
	}
	b.status(ctx, job, msgRecording)
	b.action(ctx, job, actionRecordVoice)
	clip, err := b.Voice.Invoke(ctx, text)
	if err != nil {
		return fmt.Errorf("op=usecase.voice: %w", err)
	}
	if !job.Current() {
		return nil
	}
	if err := b.Messenger.SendVoice(ctx, job.ChatID, clip, ""); err != nil {
		return fmt.Errorf("op=usecase.voice: deliver: %w", err)
	}
	return nil
}

func searchPrompt(query string, res domain.SearchResponse) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the search results below. Cite results as [n].\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\nResults:\n", query)
	writeResults(&sb, res)
	return sb.String()
}

func checkPrompt(claim string, res domain.SearchResponse) string {
	var sb strings.Builder
	sb.WriteString("Fact-check the claim against the search results below. ")
	sb.WriteString("Start with one verdict line: ✅ TRUE, ❌ FALSE or ⚠️ UNVERIFIED. Then explain briefly and cite results as [n].\n\n")
	fmt.Fprintf(&sb, "Claim: %s\n\nResults:\n", claim)
	writeResults(&sb, res)
	return sb.String()
}

func writeResults(sb *strings.Builder, res domain.SearchResponse) {
	if res.Answer != "" {
		fmt.Fprintf(sb, "Summary: %s\n", res.Answer)
	}
	for i, r := range res.Results {
		fmt.Fprintf(sb, "[%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Snippet)
	}
}

func (b *Bot) searchJob(ctx context.Context, job *lifecycle.Job, query string) error {
	if query == "" {
		b.status(ctx, job, msgMissingQuery)
		return nil
	}
	if b.Search == nil {
		return fmt.Errorf("op=usecase.search: %w", domain.ErrNotConfigured)
	}
	if !b.allowed(ctx, job, config.FeatureSearch) {
		return nil
	}
	b.status(ctx, job, msgSearching)
	res, err := b.Search.Invoke(ctx, query)
	if err != nil {
		return fmt.Errorf("op=usecase.search: %w", err)
	}
	if !job.Current() {
		return nil
	}
	answer := formatSearchResults(res)
	if b.Chat != nil {
		b.action(ctx, job, actionTyping)
		sum, err := b.Chat.Invoke(ctx, domain.ChatRequest{System: b.cfg.SystemPrompt, Prompt: searchPrompt(query, res)})
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("search summary failed; sending raw results", slog.Any("error", err))
		} else if cleaned := b.cleaner.CleanAnswer(sum); cleaned != "" {
			answer = cleaned + formatSources(res.Results)
		}
	}
	b.deliverText(ctx, job, answer)
	return nil
}

func (b *Bot) checkJob(ctx context.Context, job *lifecycle.Job, claim string) error {
	if claim == "" {
		b.status(ctx, job, msgMissingClaim)
		return nil
	}
	if b.Search == nil || b.Chat == nil {
		return fmt.Errorf("op=usecase.check: %w", domain.ErrNotConfigured)
	}
	if !b.allowed(ctx, job, config.FeatureCheck) {
		return nil
	}
	b.status(ctx, job, msgChecking)
	res, err := b.Search.Invoke(ctx, claim)
	if err != nil {
		return fmt.Errorf("op=usecase.check: %w", err)
	}
	if !job.Current() {
		return nil
	}
	b.action(ctx, job, actionTyping)
	verdict, err := b.Chat.Invoke(ctx, domain.ChatRequest{System: b.cfg.SystemPrompt, Prompt: checkPrompt(claim, res)})
	if err != nil {
		return fmt.Errorf("op=usecase.check: %w", err)
	}
	verdict = b.cleaner.CleanAnswer(verdict)
	if verdict == "" {
		return fmt.Errorf("op=usecase.check: %w", domain.ErrEmptyResponse)
	}
	b.deliverText(ctx, job, verdict+formatSources(res.Results))
	return nil
}

// chatJob answers plain text, photos and documents. Conversation memory is
// read and written only for plain text; unrecognized slash commands are
// answered but kept out of it.
func (b *Bot) chatJob(ctx context.Context, job *lifecycle.Job, ev domain.InboundEvent, text string) error {
	req := domain.ChatRequest{System: b.cfg.SystemPrompt, Prompt: strings.TrimSpace(text)}
	chain := b.Chat
	plain := ev.Photo == nil && ev.Document == nil && !strings.HasPrefix(req.Prompt, "/")

	switch {
	case ev.Document != nil:
		b.status(ctx, job, fmt.Sprintf(msgReadingFile, b.cfg.MaxFileBytes>>20))
		prompt, err := b.documentPrompt(ctx, ev.Document, req.Prompt)
		if err != nil {
			return fmt.Errorf("op=usecase.chat: %w", err)
		}
		req.Prompt = prompt
	case ev.Photo != nil:
		b.status(ctx, job, msgLookingAtPhoto)
		img, err := b.loadPhoto(ctx, ev.Photo)
		if err != nil {
			return fmt.Errorf("op=usecase.chat: %w", err)
		}
		req.Image = img
		chain = b.Vision
	default:
		b.action(ctx, job, actionTyping)
		if plain && b.Memory != nil {
			req.History = b.Memory.FormattedContext(job.ChatID)
		}
	}
	if chain == nil {
		return fmt.Errorf("op=usecase.chat: %w", domain.ErrNotConfigured)
	}
	if !job.Current() {
		return nil
	}

	raw, err := chain.Invoke(ctx, req)
	if err != nil {
		return fmt.Errorf("op=usecase.chat: %w", err)
	}
	answer := b.cleaner.CleanAnswer(raw)
	if answer == "" {
		return fmt.Errorf("op=usecase.chat: %w", domain.ErrEmptyResponse)
	}
	if !b.deliverText(ctx, job, answer) {
		return nil
	}
	if plain && b.Memory != nil && job.Current() {
		b.Memory.Append(job.ChatID, domain.RoleUser, req.Prompt)
		b.Memory.Append(job.ChatID, domain.RoleAssistant, answer)
	}
	return nil
}
