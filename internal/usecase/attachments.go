package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/pkg/textx"
)

// isText reports whether a sniffed type is plain text or one of its
// descendants (json, csv, html, source code...).
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// documentPrompt downloads a document and appends its content to the
// caption. Only text documents are accepted; content beyond the token
// budget is cut.
func (b *Bot) documentPrompt(ctx context.Context, doc *domain.FileRef, caption string) (string, error) {
	if doc.Size > b.cfg.MaxFileBytes {
		return "", fmt.Errorf("%w: %d bytes", domain.ErrTooLarge, doc.Size)
	}
	data, err := b.Messenger.DownloadFile(ctx, doc.FileID, b.cfg.MaxFileBytes)
	if err != nil {
		return "", err
	}
	mt := mimetype.Detect(data)
	if !isText(mt) || !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mt.String())
	}
	content := textx.SanitizeText(string(data))
	if b.cfg.DocTokenBudget > 0 {
		var cut bool
		content, cut = tokencount.TruncateDefault(content, b.cfg.DocModel, b.cfg.DocTokenBudget)
		if cut {
			observability.LoggerFromContext(ctx).Info("document truncated to token budget",
				slog.String("file", doc.FileName),
				slog.Int("budget", b.cfg.DocTokenBudget))
			content += "\n...[truncated]"
		}
	}
	name := doc.FileName
	if name == "" {
		name = "file"
	}
	var sb strings.Builder
	sb.WriteString(caption)
	fmt.Fprintf(&sb, "\n\n[FILE CONTENT: %s]\n```\n%s\n```", name, content)
	return strings.TrimSpace(sb.String()), nil
}

// loadPhoto downloads a photo and checks that it really is an image.
func (b *Bot) loadPhoto(ctx context.Context, photo *domain.FileRef) (*domain.Image, error) {
	data, err := b.Messenger.DownloadFile(ctx, photo.FileID, b.cfg.MaxFileBytes)
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mt.String())
	}
	return &domain.Image{Data: data, MIME: mt.String()}, nil
}
