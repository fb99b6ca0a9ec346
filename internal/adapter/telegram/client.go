// Package telegram implements domain.Messenger and the update poller on top of
// the Telegram Bot HTTP API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/pkg/textx"
)

const (
	defaultBaseURL   = "https://api.telegram.org"
	defaultChunkSize = 4000
	parseMarkdown    = "Markdown"
)

// Chat actions accepted by SendChatAction.
const (
	ActionTyping      = "typing"
	ActionUploadPhoto = "upload_photo"
	ActionRecordVoice = "record_voice"
)

// Client talks to the Bot API for one bot token.
type Client struct {
	hc        *http.Client
	baseURL   string
	token     string
	chunkSize int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithChunkSize sets the maximum characters per outbound text message.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// NewClient builds a Bot API client. An empty baseURL means the public API.
func NewClient(baseURL, token string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		hc:        &http.Client{Timeout: 90 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:   baseURL,
		token:     strings.TrimSpace(token),
		chunkSize: defaultChunkSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RequestError is a non-OK Bot API reply.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *RequestError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = "request failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("telegram %s http %d: %s", e.Method, e.StatusCode, desc)
	}
	return fmt.Sprintf("telegram %s: %s", e.Method, desc)
}

func isParseError(err error) bool {
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	desc := strings.ToLower(re.Description)
	return strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "can't parse entity")
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// do sends req and decodes the Bot API envelope, returning its result payload.
func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return nil, &RequestError{Method: method, StatusCode: resp.StatusCode, ErrorCode: out.ErrorCode, Description: desc}
	}
	return out.Result, nil
}

func (c *Client) postJSON(ctx context.Context, method string, body any) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method)
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// SendText delivers text to chatID, split into chunks no longer than the
// configured size. Each chunk is sent with Markdown first and resent as plain
// text when Telegram rejects the entities.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, chunk := range textx.Chunk(text, c.chunkSize) {
		if err := c.sendMessage(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.postJSON(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMarkdown, DisableWebPagePreview: true})
	if err == nil {
		return nil
	}
	if !isParseError(err) {
		return err
	}
	slog.Debug("markdown rejected; resending as plain text", slog.Int64("chat_id", chatID))
	_, err = c.postJSON(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	return err
}

// SendChatAction shows a transient status such as "typing".
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := c.postJSON(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": action})
	return err
}

// SendPhoto uploads an image with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo domain.Media, caption string) error {
	return c.upload(ctx, "sendPhoto", "photo", chatID, photo, filenameFor("image", photo.MIME), caption)
}

// SendVoice uploads an audio clip as a voice message.
func (c *Client) SendVoice(ctx context.Context, chatID int64, voice domain.Media, caption string) error {
	return c.upload(ctx, "sendVoice", "voice", chatID, voice, filenameFor("voice", voice.MIME), caption)
}

func (c *Client) upload(ctx context.Context, method, field string, chatID int64, m domain.Media, filename, caption string) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("op=telegram.%s: %w", method, domain.ErrEmptyResponse)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption = strings.TrimSpace(caption); caption != "" {
		_ = mw.WriteField("caption", textx.Truncate(caption, 1024))
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	if _, err := part.Write(m.Data); err != nil {
		return fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), &buf)
	if err != nil {
		return fmt.Errorf("op=telegram.%s: %w", method, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	_, err = c.do(req, method)
	return err
}

func filenameFor(base, mime string) string {
	switch {
	case strings.Contains(mime, "png"):
		return base + ".png"
	case strings.Contains(mime, "webp"):
		return base + ".webp"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return base + ".jpg"
	case strings.Contains(mime, "ogg"):
		return base + ".ogg"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return base + ".mp3"
	default:
		return base
	}
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// DownloadFile resolves fileID and fetches its content. Files larger than
// maxBytes fail with domain.ErrTooLarge.
func (c *Client) DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("op=telegram.getFile: %w: missing file_id", domain.ErrInvalidArgument)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getFile")+"?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.getFile: %w", err)
	}
	raw, err := c.do(req, "getFile")
	if err != nil {
		return nil, err
	}
	var fi fileInfo
	if err := json.Unmarshal(raw, &fi); err != nil {
		return nil, fmt.Errorf("op=telegram.getFile: %w", err)
	}
	if fi.FilePath == "" {
		return nil, fmt.Errorf("op=telegram.getFile: missing file_path")
	}
	if maxBytes > 0 && fi.FileSize > maxBytes {
		return nil, fmt.Errorf("op=telegram.download: %w: %d bytes", domain.ErrTooLarge, fi.FileSize)
	}

	dl := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(fi.FilePath, "/"))
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, dl, nil)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("op=telegram.download: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	r := io.Reader(resp.Body)
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.download: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("op=telegram.download: %w: more than %d bytes", domain.ErrTooLarge, maxBytes)
	}
	return data, nil
}

var _ domain.Messenger = (*Client)(nil)
