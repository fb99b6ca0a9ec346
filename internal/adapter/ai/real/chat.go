package real

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/keypool"
)

// DefaultVisionPrompt is used when an image arrives without a caption.
const DefaultVisionPrompt = "Describe this image in detail."

// userPrompt renders the user turn, prefixing rendered history when present.
func userPrompt(req domain.ChatRequest) string {
	p := strings.TrimSpace(req.Prompt)
	if p == "" && req.Image != nil {
		p = DefaultVisionPrompt
	}
	if p == "" {
		p = "Hello"
	}
	if h := strings.TrimSpace(req.History); h != "" {
		return "Conversation so far:\n" + h + "\n\nUser: " + p
	}
	return p
}

// OpenAIChat calls an OpenAI-compatible chat completions endpoint (Groq).
type OpenAIChat struct {
	name    string
	baseURL string
	model   string
	pool    *keypool.Pool
	hc      *http.Client
}

// NewOpenAIChat builds a chat provider named name.
func NewOpenAIChat(name, baseURL, model string, pool *keypool.Pool, hc *http.Client) *OpenAIChat {
	return &OpenAIChat{name: name, baseURL: strings.TrimRight(baseURL, "/"), model: model, pool: pool, hc: hc}
}

func (c *OpenAIChat) Name() string { return c.name }

// Enabled reports whether the provider has credentials.
func (c *OpenAIChat) Enabled() bool { return c.pool.Configured() }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat returns the first choice of a chat completion. Image input is not
// supported by this provider.
func (c *OpenAIChat) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.Image != nil {
		return "", domain.NewProviderError(c.name, domain.CategoryContent, domain.ErrUnsupportedMedia)
	}
	msgs := make([]chatMessage, 0, 2)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: s})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userPrompt(req)})
	body, _ := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0.7,
		"messages":    msgs,
	})

	return keypool.Execute(ctx, c.pool, func(ctx context.Context, key string) (string, error) {
		// rebuilt per attempt so the body reader is fresh
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		r.Header.Set("Authorization", "Bearer "+key)
		r.Header.Set("Content-Type", "application/json")
		var out struct {
			Model   string `json:"model"`
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		start := time.Now()
		if err := sendJSON(ctx, c.hc, c.name, r, &out); err != nil {
			return "", err
		}
		if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
			return "", emptyAnswer(c.name)
		}
		observability.LoggerFromContext(ctx).Debug("chat completion ok",
			slog.String("provider", c.name),
			slog.String("model", out.Model),
			slog.Duration("took", time.Since(start)))
		return out.Choices[0].Message.Content, nil
	})
}

// Gemini calls the generateContent API and supports inline images.
type Gemini struct {
	baseURL string
	model   string
	pool    *keypool.Pool
	hc      *http.Client
}

// NewGemini builds the Gemini provider.
func NewGemini(baseURL, model string, pool *keypool.Pool, hc *http.Client) *Gemini {
	return &Gemini{baseURL: strings.TrimRight(baseURL, "/"), model: model, pool: pool, hc: hc}
}

func (g *Gemini) Name() string { return "gemini" }

// Enabled reports whether the provider has credentials.
func (g *Gemini) Enabled() bool { return g.pool.Configured() }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Gemini) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	parts := make([]geminiPart, 0, 2)
	if req.Image != nil {
		mime := req.Image.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image.Data)}})
	}
	parts = append(parts, geminiPart{Text: userPrompt(req)})
	payload := map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: parts}},
	}
	if s := strings.TrimSpace(req.System); s != "" {
		payload["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: s}}}
	}
	body, _ := json.Marshal(payload)
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))

	return keypool.Execute(ctx, g.pool, func(ctx context.Context, key string) (string, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		r.Header.Set("x-goog-api-key", key)
		r.Header.Set("Content-Type", "application/json")
		var out geminiResponse
		if err := sendJSON(ctx, g.hc, "gemini", r, &out); err != nil {
			return "", err
		}
		if out.PromptFeedback.BlockReason != "" {
			return "", domain.NewProviderError("gemini", domain.CategoryContent, fmt.Errorf("blocked: %s", out.PromptFeedback.BlockReason))
		}
		var b strings.Builder
		for _, c := range out.Candidates {
			for _, p := range c.Content.Parts {
				b.WriteString(p.Text)
			}
			if b.Len() > 0 {
				break
			}
		}
		if strings.TrimSpace(b.String()) == "" {
			return "", emptyAnswer("gemini")
		}
		return b.String(), nil
	})
}

// PollinationsText is the keyless text endpoint used as the last resort.
type PollinationsText struct {
	baseURL string
	hc      *http.Client
}

// NewPollinationsText builds the free text provider.
func NewPollinationsText(baseURL string, hc *http.Client) *PollinationsText {
	return &PollinationsText{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (p *PollinationsText) Name() string { return "pollinations" }

func (p *PollinationsText) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.Image != nil {
		return "", domain.NewProviderError("pollinations", domain.CategoryContent, domain.ErrUnsupportedMedia)
	}
	q := url.Values{}
	if s := strings.TrimSpace(req.System); s != "" {
		q.Set("system", s)
	}
	endpoint := p.baseURL + "/" + url.PathEscape(userPrompt(req))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	body, _, err := send(ctx, p.hc, "pollinations", r, 1<<20)
	if err != nil {
		return "", err
	}
	ans := strings.TrimSpace(string(body))
	if ans == "" {
		return "", emptyAnswer("pollinations")
	}
	return ans, nil
}

var (
	_ domain.ChatProvider = (*OpenAIChat)(nil)
	_ domain.ChatProvider = (*Gemini)(nil)
	_ domain.ChatProvider = (*PollinationsText)(nil)
)
