package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message,omitempty"`
}

type message struct {
	MessageID int64       `json:"message_id"`
	Chat      chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []photoSize `json:"photo,omitempty"`
	Document  *document   `json:"document,omitempty"`
}

type chat struct {
	ID int64 `json:"id"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// GetUpdates long-polls for updates starting at offset. It returns the updates
// that carry a message and the offset to use next.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]domain.InboundEvent, int64, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}
	q.Set("allowed_updates", `["message"]`)

	reqCtx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, offset, fmt.Errorf("op=telegram.getUpdates: %w", err)
	}
	raw, err := c.do(req, "getUpdates")
	if err != nil {
		return nil, offset, err
	}
	var ups []update
	if err := json.Unmarshal(raw, &ups); err != nil {
		return nil, offset, fmt.Errorf("op=telegram.getUpdates: %w", err)
	}
	next := offset
	events := make([]domain.InboundEvent, 0, len(ups))
	for _, u := range ups {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		if ev, ok := toEvent(u); ok {
			events = append(events, ev)
		}
	}
	return events, next, nil
}

func toEvent(u update) (domain.InboundEvent, bool) {
	if u.Message == nil || u.Message.Chat.ID == 0 {
		return domain.InboundEvent{}, false
	}
	m := u.Message
	ev := domain.InboundEvent{
		UpdateID:  u.UpdateID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Text:      m.Text,
		Caption:   m.Caption,
	}
	if best := largestPhoto(m.Photo); best != nil {
		ev.Photo = &domain.FileRef{FileID: best.FileID, MIME: "image/jpeg", Size: best.FileSize}
	}
	if m.Document != nil && m.Document.FileID != "" {
		ev.Document = &domain.FileRef{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MIME:     m.Document.MimeType,
			Size:     m.Document.FileSize,
		}
	}
	return ev, true
}

func largestPhoto(sizes []photoSize) *photoSize {
	var best *photoSize
	for i := range sizes {
		p := &sizes[i]
		if best == nil || p.Width*p.Height > best.Width*best.Height ||
			(p.Width*p.Height == best.Width*best.Height && p.FileSize > best.FileSize) {
			best = p
		}
	}
	return best
}

// Handler admits one inbound event and returns the work left to do, or nil.
// The poller calls it on the loop goroutine in update order, so state changes
// made there (taking or clearing a chat lock) follow arrival order.
type Handler func(ctx context.Context, ev domain.InboundEvent) func(context.Context)

// Poller feeds updates to a Handler. Admission is serial; the returned work
// runs on its own goroutine so a slow chat never blocks the loop.
// MaxConcurrent bounds how much work runs at once.
type Poller struct {
	Client        *Client
	Handler       Handler
	Timeout       time.Duration
	MaxConcurrent int

	offset int64
	wg     sync.WaitGroup
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	if p.Client == nil || p.Handler == nil {
		return fmt.Errorf("op=telegram.Poller.Run: %w: client and handler are required", domain.ErrInvalidArgument)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := p.MaxConcurrent
	if limit <= 0 {
		limit = 64
	}
	sem := make(chan struct{}, limit)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	slog.Info("telegram poller started", slog.Duration("timeout", timeout), slog.Int("max_concurrent", limit))
	defer p.wg.Wait()
	for {
		if ctx.Err() != nil {
			slog.Info("telegram poller stopping")
			return nil
		}
		events, next, err := p.Client.GetUpdates(ctx, p.offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			slog.Warn("getUpdates failed", slog.Any("error", err), slog.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		p.offset = next
		for _, ev := range events {
			work := p.admit(ctx, ev)
			if work == nil {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Admitted work may hold a chat lock; let it run out unbounded.
				p.spawn(ctx, ev, work, nil)
				return nil
			}
			p.spawn(ctx, ev, work, sem)
		}
	}
}

func (p *Poller) admit(ctx context.Context, ev domain.InboundEvent) (work func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("update admission panicked", slog.Int64("chat_id", ev.ChatID), slog.Any("panic", r))
			work = nil
		}
	}()
	return p.Handler(ctx, ev)
}

func (p *Poller) spawn(ctx context.Context, ev domain.InboundEvent, work func(context.Context), sem chan struct{}) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if sem != nil {
			defer func() { <-sem }()
		}
		defer func() {
			if r := recover(); r != nil {
				slog.Error("update handler panicked", slog.Int64("chat_id", ev.ChatID), slog.Any("panic", r))
			}
		}()
		work(ctx)
	}()
}

// Offset returns the next update offset.
func (p *Poller) Offset() int64 { return p.offset }

