// Package gas stores reminders in a Google Apps Script web app backed by a
// spreadsheet. GET returns every row; POST carries add and delete actions.
package gas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// Store is a domain.ReminderStore over the Apps Script endpoint.
type Store struct {
	url      string
	hc       *http.Client
	async    bool
	validate *validator.Validate

	wg sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Store) {
		if hc != nil {
			s.hc = hc
		}
	}
}

// WithSync makes Add and Delete wait for the endpoint and return its error.
// The default sends writes in the background and only logs failures.
func WithSync() Option { return func(s *Store) { s.async = false } }

// New builds a Store for the given web app URL.
func New(url string, timeout time.Duration, opts ...Option) *Store {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &Store{
		url:      strings.TrimSpace(url),
		hc:       &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		async:    true,
		validate: validator.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// wireReminder mirrors a sheet row. Sheets hand back ids and chat ids as
// either numbers or strings, so both are accepted.
type wireReminder struct {
	ID     json.RawMessage `json:"id"`
	ChatID json.RawMessage `json:"chatId"`
	Time   string          `json:"time"`
	Note   string          `json:"note"`
	Type   string          `json:"type"`
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (w wireReminder) toDomain() (domain.Reminder, error) {
	chatID, err := strconv.ParseInt(rawString(w.ChatID), 10, 64)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("chatId: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(w.Time))
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("time: %w", err)
	}
	typ := domain.ReminderType(strings.ToUpper(strings.TrimSpace(w.Type)))
	if typ == "" {
		typ = domain.ReminderOneTime
	}
	return domain.Reminder{ID: rawString(w.ID), ChatID: chatID, Time: at, Note: w.Note, Type: typ}, nil
}

// List fetches every reminder. Rows that fail to parse or validate are
// skipped and logged so one bad row never hides the rest.
func (s *Store) List(ctx context.Context) ([]domain.Reminder, error) {
	tracer := otel.Tracer("reminderstore.gas")
	ctx, span := tracer.Start(ctx, "gas.List")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("op=gas.List: %w", err)
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=gas.List: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("op=gas.List: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("op=gas.List: %w", err)
	}
	var rows []wireReminder
	if err := json.Unmarshal(raw, &rows); err != nil {
		// the script answers with an object on internal errors; treat it as empty
		slog.Warn("reminder sheet returned a non-list payload", slog.Any("error", err))
		return []domain.Reminder{}, nil
	}
	out := make([]domain.Reminder, 0, len(rows))
	for i, w := range rows {
		r, err := w.toDomain()
		if err == nil {
			err = s.validate.Struct(r)
		}
		if err != nil {
			slog.Warn("skipping invalid reminder row", slog.Int("row", i), slog.Any("error", err))
			observability.ReminderErrorsTotal.WithLabelValues("decode").Inc()
			continue
		}
		out = append(out, r)
	}
	span.SetAttributes(attribute.Int("reminders.count", len(out)))
	return out, nil
}

type addPayload struct {
	Action string `json:"action"`
	ID     string `json:"id"`
	ChatID int64  `json:"chatId"`
	Time   string `json:"time"`
	Note   string `json:"note"`
	Type   string `json:"type"`
}

type deletePayload struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

// Add appends a reminder row.
func (s *Store) Add(ctx context.Context, r domain.Reminder) error {
	if err := s.validate.Struct(r); err != nil {
		return fmt.Errorf("op=gas.Add: %w: %v", domain.ErrInvalidArgument, err)
	}
	p := addPayload{
		Action: "add",
		ID:     r.ID,
		ChatID: r.ChatID,
		Time:   r.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
		Note:   r.Note,
		Type:   string(r.Type),
	}
	return s.write(ctx, "add", p)
}

// Delete removes the row with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("op=gas.Delete: %w: empty id", domain.ErrInvalidArgument)
	}
	return s.write(ctx, "delete", deletePayload{Action: "delete", ID: id})
}

func (s *Store) write(ctx context.Context, action string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=gas.%s: %w", action, err)
	}
	if !s.async {
		return s.post(ctx, action, body)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// detached so the write survives the caller's request context
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hc.Timeout)
		defer cancel()
		if err := s.post(bg, action, body); err != nil {
			slog.Error("reminder sheet write failed", slog.String("action", action), slog.Any("error", err))
			observability.ReminderErrorsTotal.WithLabelValues("store_" + action).Inc()
		}
	}()
	return nil
}

func (s *Store) post(ctx context.Context, action string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("op=gas.%s: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=gas.%s: %w", action, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("op=gas.%s: http %d", action, resp.StatusCode)
	}
	return nil
}

// Flush waits for background writes or until ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping checks that the endpoint answers.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.List(ctx)
	return err
}

var _ domain.ReminderStore = (*Store)(nil)
