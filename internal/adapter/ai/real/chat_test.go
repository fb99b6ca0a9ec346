package real

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/keypool"
)

func testPool(name, keys string) *keypool.Pool {
	return keypool.New(name, keys, keypool.WithSingleKeyRetry(2, 0))
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t, "hi", userPrompt(domain.ChatRequest{Prompt: " hi "}))
	assert.Equal(t, DefaultVisionPrompt, userPrompt(domain.ChatRequest{Image: &domain.Image{}}))
	assert.Equal(t, "Hello", userPrompt(domain.ChatRequest{}))
	got := userPrompt(domain.ChatRequest{Prompt: "and now?", History: "User: a\nAssistant: b"})
	assert.True(t, strings.HasPrefix(got, "Conversation so far:\nUser: a\nAssistant: b"))
	assert.True(t, strings.HasSuffix(got, "User: and now?"))
}

func TestOpenAIChat_RotatesOnQuota(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth := r.Header.Get("Authorization")
		mu.Lock()
		seen = append(seen, auth)
		mu.Unlock()
		if auth == "Bearer k1" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"rate limit"}}`)
			return
		}
		var body struct {
			Model    string        `json:"model"`
			Messages []chatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		_, _ = io.WriteString(w, `{"model":"llama","choices":[{"message":{"content":"pong"}}]}`)
	}))
	defer srv.Close()

	pool := testPool("groq", "k1,k2")
	c := NewOpenAIChat("groq", srv.URL, "llama", pool, NewHTTPClient(5*time.Second))
	got, err := c.Chat(context.Background(), domain.ChatRequest{System: "be brief", Prompt: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Equal(t, []string{"Bearer k1", "Bearer k2"}, seen)

	// the pool stays on the working key
	_, idx := pool.Current()
	assert.Equal(t, 1, idx)
}

func TestOpenAIChat_AuthErrorIsConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIChat("groq", srv.URL, "m", testPool("groq", "k1,k2"), NewHTTPClient(time.Second))
	_, err := c.Chat(context.Background(), domain.ChatRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryConfig, domain.CategoryOf(err))
}

func TestOpenAIChat_RejectsImages(t *testing.T) {
	c := NewOpenAIChat("groq", "http://unused", "m", testPool("groq", "k"), NewHTTPClient(time.Second))
	_, err := c.Chat(context.Background(), domain.ChatRequest{Image: &domain.Image{Data: []byte{1}}})
	require.ErrorIs(t, err, domain.ErrUnsupportedMedia)
}

func TestOpenAIChat_NoKeys(t *testing.T) {
	c := NewOpenAIChat("groq", "http://unused", "m", testPool("groq", ""), NewHTTPClient(time.Second))
	assert.False(t, c.Enabled())
	_, err := c.Chat(context.Background(), domain.ChatRequest{Prompt: "x"})
	require.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestGemini_SendsInlineImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-x:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
		var body struct {
			Contents          []geminiContent `json:"contents"`
			SystemInstruction geminiContent   `json:"systemInstruction"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		parts := body.Contents[0].Parts
		require.Len(t, parts, 2)
		require.NotNil(t, parts[0].InlineData)
		assert.Equal(t, "image/png", parts[0].InlineData.MimeType)
		assert.Equal(t, "AQID", parts[0].InlineData.Data)
		assert.Equal(t, DefaultVisionPrompt, parts[1].Text)
		assert.Equal(t, "sys", body.SystemInstruction.Parts[0].Text)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"a "},{"text":"cat"}]}}]}`)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, "gemini-x", testPool("gemini", "gk"), NewHTTPClient(time.Second))
	got, err := g.Chat(context.Background(), domain.ChatRequest{System: "sys", Image: &domain.Image{Data: []byte{1, 2, 3}, MIME: "image/png"}})
	require.NoError(t, err)
	assert.Equal(t, "a cat", got)
}

func TestGemini_BlockedIsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, "m", testPool("gemini", "gk"), NewHTTPClient(time.Second))
	_, err := g.Chat(context.Background(), domain.ChatRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryContent, domain.CategoryOf(err))
}

func TestGemini_SingleKeyRetriesQuota(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `RESOURCE_EXHAUSTED`)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, "m", testPool("gemini", "only"), NewHTTPClient(time.Second))
	_, err := g.Chat(context.Background(), domain.ChatRequest{Prompt: "x"})
	require.ErrorIs(t, err, domain.ErrPoolExhausted)
	assert.Equal(t, 2, calls)
}

func TestPollinationsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/what is go?", r.URL.Path)
		assert.Equal(t, "sys", r.URL.Query().Get("system"))
		_, _ = io.WriteString(w, "  a language  ")
	}))
	defer srv.Close()

	p := NewPollinationsText(srv.URL, NewHTTPClient(time.Second))
	got, err := p.Chat(context.Background(), domain.ChatRequest{System: "sys", Prompt: "what is go?"})
	require.NoError(t, err)
	assert.Equal(t, "a language", got)
}

func TestSend_TimeoutIsCategorised(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewPollinationsText(srv.URL, NewHTTPClient(20*time.Millisecond))
	_, err := p.Chat(context.Background(), domain.ChatRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryTimeout, domain.CategoryOf(err))
}
