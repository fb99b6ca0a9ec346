package real

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

func TestTavily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tk", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"answer":"42","results":[{"title":"T","url":"https://x","content":"c"}]}`)
	}))
	defer srv.Close()

	got, err := NewTavily(srv.URL, testPool("tavily", "tk"), NewHTTPClient(time.Second)).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "42", got.Answer)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "https://x", got.Results[0].URL)
}

func TestDuckDuckGo_FlattensTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = io.WriteString(w, `{"Heading":"Go","AbstractText":"Go is a language.","AbstractURL":"https://go.dev",
			"RelatedTopics":[{"Text":"Gopher","FirstURL":"https://g"},{"Name":"More","Topics":[{"Text":"Nested","FirstURL":"https://n"}]}]}`)
	}))
	defer srv.Close()

	got, err := NewDuckDuckGo(srv.URL, NewHTTPClient(time.Second)).Search(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", got.Answer)
	require.Len(t, got.Results, 3)
	assert.Equal(t, "https://n", got.Results[2].URL)
}

func TestDuckDuckGo_EmptyIsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"RelatedTopics":[]}`)
	}))
	defer srv.Close()

	_, err := NewDuckDuckGo(srv.URL, NewHTTPClient(time.Second)).Search(context.Background(), "zzz")
	require.ErrorIs(t, err, domain.ErrEmptyResponse)
}
